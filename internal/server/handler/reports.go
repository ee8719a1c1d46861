package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/alanyoungcy/signalist/internal/domain"
)

// ReportArchive reads archived cycle reports.
type ReportArchive interface {
	ListDay(ctx context.Context, day time.Time) ([]string, error)
	Get(ctx context.Context, day time.Time, cycleID string) ([]byte, error)
}

var cycleIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

// ReportHandler serves archived reports.
type ReportHandler struct {
	archive ReportArchive
	logger  *slog.Logger
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(archive ReportArchive, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{archive: archive, logger: logHandler(logger, "reports")}
}

// ListReports lists the cycle IDs archived on one UTC day (default today).
// GET /api/reports?date=YYYY-MM-DD
func (h *ReportHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC()
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = d
	}

	ids, err := h.archive.ListDay(r.Context(), day)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list reports failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "report archive unavailable")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":   day.Format(time.DateOnly),
		"cycles": ids,
	})
}

// GetReport returns one archived report.
// GET /api/reports/{date}/{cycle_id}
func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	day, err := time.Parse(time.DateOnly, r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	id := r.PathValue("cycle_id")
	if !cycleIDPattern.MatchString(id) {
		writeError(w, http.StatusBadRequest, "invalid cycle id")
		return
	}

	data, err := h.archive.Get(r.Context(), day, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "report not found")
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "get report failed",
			slog.String("cycle_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "report archive unavailable")
		return
	}
	writeRawJSON(w, http.StatusOK, data)
}
