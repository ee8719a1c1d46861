package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/signalist/internal/domain"
	"github.com/alanyoungcy/signalist/internal/engine"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeRunner struct {
	report domain.CycleReport
	err    error
	ctxErr error
}

func (f *fakeRunner) RunCycle(ctx context.Context) (domain.CycleReport, error) {
	f.ctxErr = ctx.Err()
	return f.report, f.err
}

func TestCycleHandler_RunCycle(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ran", nil, http.StatusAccepted},
		{"in progress", domain.ErrCycleInProgress, http.StatusConflict},
		{"lock held", fmt.Errorf("redis: acquire: %w", domain.ErrLockHeld), http.StatusConflict},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{report: domain.CycleReport{CycleID: "c-1", TriggersFound: 2}, err: tt.err}
			h := NewCycleHandler(context.Background(), runner, discardLogger())

			rec := httptest.NewRecorder()
			h.RunCycle(rec, httptest.NewRequest(http.MethodPost, "/api/cycles/run", nil))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.err == nil {
				var got domain.CycleReport
				if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil || got.CycleID != "c-1" || got.TriggersFound != 2 {
					t.Fatalf("body = %s (err %v)", rec.Body.String(), err)
				}
			}
		})
	}
}

func TestCycleHandler_DetachesFromRequest(t *testing.T) {
	runner := &fakeRunner{}
	h := NewCycleHandler(context.Background(), runner, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodPost, "/api/cycles/run", nil).WithContext(ctx)
	h.RunCycle(httptest.NewRecorder(), req)
	if runner.ctxErr != nil {
		t.Fatalf("cycle context cancelled with request: %v", runner.ctxErr)
	}
}

func TestCycleHandler_ShutdownCancelsCycle(t *testing.T) {
	runner := &fakeRunner{}
	base, cancel := context.WithCancel(context.Background())
	h := NewCycleHandler(base, runner, discardLogger())
	cancel()

	h.RunCycle(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/cycles/run", nil))
	if !errors.Is(runner.ctxErr, context.Canceled) {
		t.Fatalf("cycle context err = %v, want context.Canceled", runner.ctxErr)
	}
}

type fakeScheduler struct{}

func (fakeScheduler) State() engine.State     { return engine.StateFetching }
func (fakeScheduler) Interval() time.Duration { return time.Minute }
func (fakeScheduler) Cycles() int64           { return 7 }
func (fakeScheduler) SkippedTicks() int64     { return 1 }

type fakeLast struct {
	report *domain.CycleReport
}

func (f fakeLast) Get() (domain.CycleReport, bool) {
	if f.report == nil {
		return domain.CycleReport{}, false
	}
	return *f.report, true
}

func TestStatusHandler(t *testing.T) {
	h := NewStatusHandler("full", fakeScheduler{}, fakeLast{&domain.CycleReport{CycleID: "c-9"}}, time.Now())
	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	var got statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.State != "fetching" || got.Interval != "1m0s" || got.Cycles != 7 || got.SkippedTicks != 1 {
		t.Fatalf("unexpected status %+v", got)
	}
	if got.LastReport == nil || got.LastReport.CycleID != "c-9" {
		t.Fatalf("last report = %+v", got.LastReport)
	}

	rec = httptest.NewRecorder()
	NewStatusHandler("once", fakeScheduler{}, fakeLast{}, time.Now()).GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if !strings.Contains(rec.Body.String(), `"last_report":null`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestHealthHandler(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	rec := httptest.NewRecorder()
	NewHealthHandler(map[string]Checker{"postgres": ok}, discardLogger()).
		HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthy status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	NewHealthHandler(map[string]Checker{"postgres": ok, "redis": down}, discardLogger()).
		HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d", rec.Code)
	}
	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "degraded" || body.Dependencies["redis"] != "connection refused" || body.Dependencies["postgres"] != "ok" {
		t.Fatalf("body = %+v", body)
	}
}

type fakeArchive struct {
	days    map[string][]string
	reports map[string][]byte
	err     error
}

func (f *fakeArchive) ListDay(_ context.Context, day time.Time) ([]string, error) {
	return f.days[day.Format(time.DateOnly)], f.err
}

func (f *fakeArchive) Get(_ context.Context, day time.Time, id string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.reports[day.Format(time.DateOnly)+"/"+id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

func serveReports(h *ReportHandler, target string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/reports", h.ListReports)
	mux.HandleFunc("GET /api/reports/{date}/{cycle_id}", h.GetReport)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestReportHandler(t *testing.T) {
	archive := &fakeArchive{
		days:    map[string][]string{"2026-10-18": {"c-1", "c-2"}},
		reports: map[string][]byte{"2026-10-18/c-1": []byte(`{"cycle_id":"c-1"}`)},
	}
	h := NewReportHandler(archive, discardLogger())

	tests := []struct {
		name   string
		target string
		status int
		body   string
	}{
		{"list", "/api/reports?date=2026-10-18", http.StatusOK, `"cycles":["c-1","c-2"]`},
		{"list empty day", "/api/reports?date=2026-10-17", http.StatusOK, `"cycles":[]`},
		{"list bad date", "/api/reports?date=yesterday", http.StatusBadRequest, "YYYY-MM-DD"},
		{"get", "/api/reports/2026-10-18/c-1", http.StatusOK, `{"cycle_id":"c-1"}`},
		{"get missing", "/api/reports/2026-10-18/c-3", http.StatusNotFound, "not found"},
		{"get bad id", "/api/reports/2026-10-18/c.1", http.StatusBadRequest, "invalid cycle id"},
		{"get bad date", "/api/reports/18-10-2026/c-1", http.StatusBadRequest, "YYYY-MM-DD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveReports(h, tt.target)
			if rec.Code != tt.status || !strings.Contains(rec.Body.String(), tt.body) {
				t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
			}
		})
	}

	archive.err = errors.New("s3 down")
	if rec := serveReports(h, "/api/reports?date=2026-10-18"); rec.Code != http.StatusBadGateway {
		t.Fatalf("archive failure status = %d", rec.Code)
	}
}
