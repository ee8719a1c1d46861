package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/signalist/internal/domain"
)

func triggeredOutcome(id, owner string) domain.Outcome {
	return domain.Outcome{
		Alert:     priceAlert(id, owner, "AAPL", domain.ComparisonGreater, "1"),
		Triggered: true,
		Kind:      domain.NotificationUpper,
		Quote:     &domain.QuoteSnapshot{Symbol: "AAPL", Price: dec("2")},
	}
}

func TestDispatcher_IsolatesFailuresPerRecipient(t *testing.T) {
	users := newFakeDirectory("u1", "u2", "u3")
	sink := newFakeMessageSink()
	sink.failTo["u2@example.com"] = true

	d := NewDispatcher(users, fakeRenderer{}, sink, 2, discardLogger())
	got := d.Dispatch(context.Background(), []domain.Outcome{
		triggeredOutcome("a1", "u1"),
		triggeredOutcome("a2", "u2"),
		triggeredOutcome("a3", "u3"),
	})

	if users.calls != 1 {
		t.Fatalf("directory called %d times, want 1", users.calls)
	}
	if sink.sentCount() != 2 {
		t.Fatalf("sent %d messages, want 2", sink.sentCount())
	}
	for i, want := range []bool{true, false, true} {
		if !got[i].Attempted {
			t.Fatalf("delivery %d should be attempted", i)
		}
		if got[i].Sent() != want {
			t.Fatalf("delivery %d Sent() = %v, want %v (err=%v)", i, got[i].Sent(), want, got[i].Err)
		}
	}
	if !errors.Is(got[1].Err, errSinkDown) {
		t.Fatalf("expected sink error, got %v", got[1].Err)
	}
}

func TestDispatcher_MissingContactIsAttemptedFailure(t *testing.T) {
	users := newFakeDirectory("u1")
	sink := newFakeMessageSink()

	d := NewDispatcher(users, fakeRenderer{}, sink, 2, discardLogger())
	got := d.Dispatch(context.Background(), []domain.Outcome{triggeredOutcome("a1", "ghost")})

	if !got[0].Attempted || !errors.Is(got[0].Err, domain.ErrNoContact) {
		t.Fatalf("unexpected delivery %+v", got[0])
	}
	if sink.sentCount() != 0 {
		t.Fatalf("nothing should be sent")
	}
}

func TestDispatcher_DirectoryErrorLeavesAllUnattempted(t *testing.T) {
	users := newFakeDirectory("u1", "u2")
	users.err = errors.New("connection refused")
	sink := newFakeMessageSink()

	d := NewDispatcher(users, fakeRenderer{}, sink, 2, discardLogger())
	got := d.Dispatch(context.Background(), []domain.Outcome{
		triggeredOutcome("a1", "u1"),
		triggeredOutcome("a2", "u2"),
	})
	for i, dl := range got {
		if dl.Attempted || dl.Err == nil {
			t.Fatalf("delivery %d: expected unattempted failure, got %+v", i, dl)
		}
	}
}

func TestDispatcher_RenderErrorIsAttemptedFailure(t *testing.T) {
	users := newFakeDirectory("u1")
	renderErr := errors.New("template: missing field")

	d := NewDispatcher(users, fakeRenderer{err: renderErr}, newFakeMessageSink(), 1, discardLogger())
	got := d.Dispatch(context.Background(), []domain.Outcome{triggeredOutcome("a1", "u1")})
	if !got[0].Attempted || !errors.Is(got[0].Err, renderErr) {
		t.Fatalf("unexpected delivery %+v", got[0])
	}
}

func TestDispatcher_CancelledContextSkipsUnstarted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDispatcher(newFakeDirectory("u1"), fakeRenderer{}, newFakeMessageSink(), 1, discardLogger())
	got := d.Dispatch(ctx, []domain.Outcome{triggeredOutcome("a1", "u1")})
	if got[0].Attempted {
		t.Fatalf("delivery should not be attempted after cancellation")
	}
	if !errors.Is(got[0].Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", got[0].Err)
	}
}

func TestRecorder_RecordsOnlyAttempted(t *testing.T) {
	store := newFakeAlertStore(
		priceAlert("a1", "u1", "AAPL", domain.ComparisonGreater, "1"),
		priceAlert("a2", "u2", "AAPL", domain.ComparisonGreater, "1"),
		priceAlert("a3", "u3", "AAPL", domain.ComparisonGreater, "1"),
	)
	store.markErr["a3"] = errors.New("deadlock detected")
	at := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

	r := NewRecorder(store, 2, time.Second, discardLogger())
	written, errs := r.Record(context.Background(), []Delivery{
		{Outcome: triggeredOutcome("a1", "u1"), Attempted: true},
		{Outcome: triggeredOutcome("a2", "u2"), Attempted: false, Err: context.Canceled},
		{Outcome: triggeredOutcome("a3", "u3"), Attempted: true, Err: errSinkDown},
	}, at)

	if written != 1 {
		t.Fatalf("written = %d, want 1", written)
	}
	if len(errs) != 1 || errs[0].Key != "a3" || errs[0].Stage != domain.StageRecord {
		t.Fatalf("unexpected errors %+v", errs)
	}
	if ts, ok := store.markedAt("a1"); !ok || !ts.Equal(at) {
		t.Fatalf("a1 marked at %v (ok=%v), want %v", ts, ok, at)
	}
	if _, ok := store.markedAt("a2"); ok {
		t.Fatalf("unattempted a2 must not be recorded")
	}
}

func TestRecorder_SurvivesCancelledCycle(t *testing.T) {
	store := newFakeAlertStore(priceAlert("a1", "u1", "AAPL", domain.ComparisonGreater, "1"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRecorder(store, 1, time.Second, discardLogger())
	written, errs := r.Record(ctx, []Delivery{{Outcome: triggeredOutcome("a1", "u1"), Attempted: true}}, time.Now())
	if written != 1 || len(errs) != 0 {
		t.Fatalf("written=%d errs=%v", written, errs)
	}
}
