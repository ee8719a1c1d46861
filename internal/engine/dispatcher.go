package engine

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/signalist/internal/domain"
)

// Renderer turns a triggered outcome into a message for one recipient.
type Renderer interface {
	Render(outcome domain.Outcome, to domain.Contact) (domain.Message, error)
}

// Delivery is the dispatch result for one triggered outcome. Attempted is
// true once the engine committed to notifying the owner, even if the send
// then failed; only attempted deliveries are recorded.
type Delivery struct {
	Outcome   domain.Outcome
	Attempted bool
	Err       error
}

// Sent reports whether the message reached the sink.
func (d Delivery) Sent() bool { return d.Attempted && d.Err == nil }

// Dispatcher sends one message per triggered outcome.
type Dispatcher struct {
	users       domain.UserDirectory
	renderer    Renderer
	sink        domain.MessageSink
	maxInFlight int
	logger      *slog.Logger
}

// NewDispatcher creates a Dispatcher. A maxInFlight below 1 uses
// DefaultMaxInFlight.
func NewDispatcher(users domain.UserDirectory, renderer Renderer, sink domain.MessageSink, maxInFlight int, logger *slog.Logger) *Dispatcher {
	if maxInFlight < 1 {
		maxInFlight = DefaultMaxInFlight
	}
	return &Dispatcher{
		users:       users,
		renderer:    renderer,
		sink:        sink,
		maxInFlight: maxInFlight,
		logger:      logger.With(slog.String("component", "dispatcher")),
	}
}

// Dispatch resolves every owner in one directory call, then renders and sends
// concurrently. The returned slice is parallel to triggered.
//
// A directory error leaves every delivery unattempted so the alerts are
// retried next cycle. An owner without an address, a render failure or a sink
// failure is an attempted delivery with an error. Outcomes not started before
// ctx is done are left unattempted.
func (d *Dispatcher) Dispatch(ctx context.Context, triggered []domain.Outcome) []Delivery {
	deliveries := make([]Delivery, len(triggered))
	for i, o := range triggered {
		deliveries[i].Outcome = o
	}
	if len(triggered) == 0 {
		return deliveries
	}

	contacts, err := d.users.ResolveContacts(ctx, ownerIDs(triggered))
	if err != nil {
		err = fmt.Errorf("engine: resolve contacts: %w", err)
		d.logger.ErrorContext(ctx, "contact resolution failed",
			slog.Int("recipients", len(triggered)),
			slog.String("error", err.Error()),
		)
		for i := range deliveries {
			deliveries[i].Err = err
		}
		return deliveries
	}

	// Each goroutine owns deliveries[i].
	var g errgroup.Group
	g.SetLimit(d.maxInFlight)

	for i := range deliveries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				deliveries[i].Err = err
				return nil
			}
			deliveries[i].Attempted = true
			deliveries[i].Err = d.deliver(ctx, deliveries[i].Outcome, contacts)
			return nil
		})
	}
	_ = g.Wait()

	return deliveries
}

func (d *Dispatcher) deliver(ctx context.Context, o domain.Outcome, contacts map[string]domain.Contact) error {
	logger := d.logger.With(
		slog.String("alert_id", o.Alert.ID),
		slog.String("symbol", o.Alert.Symbol),
		slog.String("kind", string(o.Kind)),
	)

	contact, ok := contacts[o.Alert.OwnerID]
	if !ok || contact.Email == "" {
		err := fmt.Errorf("%w: user %s", domain.ErrNoContact, o.Alert.OwnerID)
		logger.WarnContext(ctx, "alert owner has no contact address", slog.String("owner_id", o.Alert.OwnerID))
		return err
	}

	msg, err := d.renderer.Render(o, contact)
	if err != nil {
		logger.ErrorContext(ctx, "render notification failed", slog.String("error", err.Error()))
		return fmt.Errorf("engine: render alert %s: %w", o.Alert.ID, err)
	}

	if err := d.sink.Send(ctx, msg); err != nil {
		logger.WarnContext(ctx, "notification send failed", slog.String("error", err.Error()))
		return fmt.Errorf("engine: send alert %s: %w", o.Alert.ID, err)
	}

	logger.InfoContext(ctx, "notification sent")
	return nil
}

func ownerIDs(outcomes []domain.Outcome) []string {
	seen := make(map[string]struct{}, len(outcomes))
	ids := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		if _, ok := seen[o.Alert.OwnerID]; ok {
			continue
		}
		seen[o.Alert.OwnerID] = struct{}{}
		ids = append(ids, o.Alert.OwnerID)
	}
	return ids
}
