package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/signalist/internal/domain"
	"github.com/alanyoungcy/signalist/internal/engine"
	"github.com/alanyoungcy/signalist/internal/server/handler"
)

type stubScheduler struct{}

func (stubScheduler) State() engine.State     { return engine.StateIdle }
func (stubScheduler) Interval() time.Duration { return time.Minute }
func (stubScheduler) Cycles() int64           { return 0 }
func (stubScheduler) SkippedTicks() int64     { return 0 }

func (stubScheduler) RunCycle(context.Context) (domain.CycleReport, error) {
	return domain.CycleReport{CycleID: "manual"}, nil
}

func newTestServer(apiKey string) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handlers := Handlers{
		Health:  handler.NewHealthHandler(nil, logger),
		Status:  handler.NewStatusHandler("full", stubScheduler{}, &engine.LastReport{}, time.Now()),
		Cycles:  handler.NewCycleHandler(context.Background(), stubScheduler{}, logger),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "# metrics") }),
	}
	return NewServer(Config{APIKey: apiKey}, handlers, nil, nil, logger)
}

func TestServer_Routes(t *testing.T) {
	srv := httptest.NewServer(newTestServer("key").Handler())
	defer srv.Close()

	tests := []struct {
		method, path, key string
		want              int
	}{
		{http.MethodGet, "/api/health", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/api/status", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/status", "key", http.StatusOK},
		{http.MethodPost, "/api/cycles/run", "key", http.StatusAccepted},
		{http.MethodGet, "/api/cycles/run", "key", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/reports", "key", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, srv.URL+tt.path, nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}
