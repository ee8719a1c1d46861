package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/signalist/internal/domain"
)

// DefaultRecordTimeout bounds the trigger writes of one cycle.
const DefaultRecordTimeout = 15 * time.Second

// Recorder writes last-triggered timestamps after dispatch.
//
// Every attempted delivery is recorded, successful or not. A notification
// that was sent but whose record write fails can be sent again next cycle;
// a duplicate is preferred over an alert that silently stops firing.
type Recorder struct {
	store       domain.AlertStore
	maxInFlight int
	timeout     time.Duration
	logger      *slog.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(store domain.AlertStore, maxInFlight int, timeout time.Duration, logger *slog.Logger) *Recorder {
	if maxInFlight < 1 {
		maxInFlight = DefaultMaxInFlight
	}
	if timeout <= 0 {
		timeout = DefaultRecordTimeout
	}
	return &Recorder{
		store:       store,
		maxInFlight: maxInFlight,
		timeout:     timeout,
		logger:      logger.With(slog.String("component", "recorder")),
	}
}

// Record marks each attempted delivery's alert as triggered at the cycle start
// time. Unattempted deliveries are skipped. The writes run on a context that
// survives cancellation of ctx, bounded by the recorder timeout, so a shutdown
// mid-cycle still records what was already sent.
func (r *Recorder) Record(ctx context.Context, deliveries []Delivery, at time.Time) (int, []domain.ItemError) {
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		written int
		errs    []domain.ItemError
		g       errgroup.Group
	)
	g.SetLimit(r.maxInFlight)

	for _, d := range deliveries {
		if !d.Attempted {
			continue
		}
		id := d.Outcome.Alert.ID
		g.Go(func() error {
			updated, err := r.store.MarkTriggered(recCtx, id, at)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				r.logger.ErrorContext(ctx, "record trigger failed",
					slog.String("alert_id", id),
					slog.String("error", err.Error()),
				)
				errs = append(errs, domain.ItemError{Stage: domain.StageRecord, Key: id, Err: err})
			case !updated:
				r.logger.DebugContext(ctx, "trigger already recorded or alert gone",
					slog.String("alert_id", id),
				)
			default:
				written++
			}
			return nil
		})
	}
	_ = g.Wait()

	return written, errs
}
