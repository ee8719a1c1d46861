package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/signalist/internal/domain"
	"github.com/alanyoungcy/signalist/internal/engine"
)

// SchedulerView is the read-only part of the scheduler the status endpoint
// reports on.
type SchedulerView interface {
	State() engine.State
	Interval() time.Duration
	Cycles() int64
	SkippedTicks() int64
}

// ReportGetter returns the most recent cycle report, if any.
type ReportGetter interface {
	Get() (domain.CycleReport, bool)
}

// StatusHandler serves the engine status.
type StatusHandler struct {
	mode      string
	scheduler SchedulerView
	last      ReportGetter
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, scheduler SchedulerView, last ReportGetter, startedAt time.Time) *StatusHandler {
	return &StatusHandler{mode: mode, scheduler: scheduler, last: last, startedAt: startedAt}
}

type statusResponse struct {
	Mode          string              `json:"mode"`
	State         string              `json:"state"`
	Interval      string              `json:"interval"`
	Cycles        int64               `json:"cycles"`
	SkippedTicks  int64               `json:"skipped_ticks"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	LastReport    *domain.CycleReport `json:"last_report"`
}

// GetStatus responds with the scheduler state and the last cycle report.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Mode:          h.mode,
		State:         h.scheduler.State().String(),
		Interval:      h.scheduler.Interval().String(),
		Cycles:        h.scheduler.Cycles(),
		SkippedTicks:  h.scheduler.SkippedTicks(),
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	}
	if report, ok := h.last.Get(); ok {
		resp.LastReport = &report
	}
	writeJSON(w, http.StatusOK, resp)
}
