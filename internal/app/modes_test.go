package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/signalist/internal/config"
	"github.com/alanyoungcy/signalist/internal/domain"
	"github.com/alanyoungcy/signalist/internal/engine"
	"github.com/alanyoungcy/signalist/internal/notify"
)

type stubStore struct{ err error }

func (s stubStore) ListDue(context.Context, time.Time) ([]domain.Alert, []domain.ItemError, error) {
	return nil, nil, s.err
}
func (stubStore) MarkTriggered(context.Context, string, time.Time) (bool, error) {
	return false, nil
}

type stubDirectory struct{}

func (stubDirectory) ResolveContacts(context.Context, []string) (map[string]domain.Contact, error) {
	return map[string]domain.Contact{}, nil
}

type stubQuotes struct{}

func (stubQuotes) Quote(context.Context, string) (domain.QuoteSnapshot, error) {
	return domain.QuoteSnapshot{}, domain.ErrMalformedQuote
}

func testApp(t *testing.T, storeErr error) (*App, *Dependencies) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Defaults()
	cfg.Mode = "once"

	renderer, err := notify.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	store := stubStore{err: storeErr}
	last := &engine.LastReport{}
	sched := engine.NewScheduler(
		engine.SchedulerConfig{Interval: time.Minute, CycleTimeout: time.Second},
		engine.NewSelector(store, logger),
		engine.NewFetcher(stubQuotes{}, 1, logger),
		engine.NewDispatcher(stubDirectory{}, renderer, notify.NewLogMailer(logger), 1, logger),
		engine.NewRecorder(store, 1, time.Second, logger),
		last,
		logger,
	)
	return New(&cfg, logger), &Dependencies{Scheduler: sched, LastReport: last}
}

func TestOnceMode_EmptyCycleSucceeds(t *testing.T) {
	a, deps := testApp(t, nil)
	if err := a.OnceMode(context.Background(), deps); err != nil {
		t.Fatalf("OnceMode: %v", err)
	}
	if _, ok := deps.LastReport.Get(); !ok {
		t.Fatal("report was not published")
	}
}

func TestOnceMode_AbortedCycleIsError(t *testing.T) {
	a, deps := testApp(t, errors.New("connection refused"))
	if err := a.OnceMode(context.Background(), deps); err == nil {
		t.Fatal("expected error for aborted cycle")
	}
}

func TestEngineMode_ReturnsNilOnCancel(t *testing.T) {
	a, deps := testApp(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.EngineMode(ctx, deps) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("EngineMode: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("EngineMode did not stop")
	}
}

func TestIgnoreCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	boom := errors.New("boom")

	if err := ignoreCancel(ctx, boom); !errors.Is(err, boom) {
		t.Fatalf("live ctx: got %v", err)
	}
	cancel()
	if err := ignoreCancel(ctx, context.Canceled); err != nil {
		t.Fatalf("cancelled ctx: got %v", err)
	}
	if err := ignoreCancel(ctx, boom); !errors.Is(err, boom) {
		t.Fatalf("unrelated error must survive: got %v", err)
	}
}
