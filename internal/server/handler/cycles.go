package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/signalist/internal/domain"
)

// CycleRunner runs one evaluation cycle on demand.
type CycleRunner interface {
	RunCycle(ctx context.Context) (domain.CycleReport, error)
}

// CycleHandler serves the manual trigger endpoint.
type CycleHandler struct {
	runner CycleRunner
	base   context.Context
	logger *slog.Logger
}

// NewCycleHandler creates a CycleHandler. Manual cycles run under base, which
// should be the application's lifetime context.
func NewCycleHandler(base context.Context, runner CycleRunner, logger *slog.Logger) *CycleHandler {
	return &CycleHandler{runner: runner, base: base, logger: logHandler(logger, "cycles")}
}

// RunCycle runs one cycle synchronously and returns its report. The cycle
// runs under the handler's base context: a disconnecting client does not
// cancel it, shutdown does.
// POST /api/cycles/run
func (h *CycleHandler) RunCycle(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "manual cycle requested")

	report, err := h.runner.RunCycle(h.base)
	switch {
	case errors.Is(err, domain.ErrCycleInProgress), errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "manual cycle failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "cycle failed")
		return
	}
	writeJSON(w, http.StatusAccepted, report)
}
