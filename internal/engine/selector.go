// Package engine implements the alert evaluation cycle: due-alert selection,
// quote fetching, condition evaluation, notification dispatch and trigger
// recording, sequenced by a single-flight Scheduler.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/signalist/internal/domain"
)

// Selection is the result of one selector pass.
type Selection struct {
	// Alerts are the due, valid alerts to evaluate this cycle.
	Alerts []domain.Alert
	// Examined is the number of rows the store matched, readable or not.
	Examined int
	// Invalid holds one select-stage error per row the store could not read
	// and per alert excluded by validation.
	Invalid []domain.ItemError
}

// Selector reads due alerts from the store in a single query.
type Selector struct {
	store  domain.AlertStore
	logger *slog.Logger
}

// NewSelector creates a Selector backed by the given AlertStore.
func NewSelector(store domain.AlertStore, logger *slog.Logger) *Selector {
	return &Selector{
		store:  store,
		logger: logger.With(slog.String("component", "selector")),
	}
}

// Select returns every active alert whose cooldown has elapsed at now. A store
// error is returned as-is and must abort the cycle. Rows the store returns
// that are not due in memory are dropped; rows the store rejected and rows
// that fail validation are reported in Selection.Invalid and never evaluated.
func (s *Selector) Select(ctx context.Context, now time.Time) (Selection, error) {
	rows, rejected, err := s.store.ListDue(ctx, now)
	if err != nil {
		return Selection{}, fmt.Errorf("engine: select due alerts: %w", err)
	}

	sel := Selection{
		Alerts:   make([]domain.Alert, 0, len(rows)),
		Examined: len(rows) + len(rejected),
	}
	for _, ie := range rejected {
		ie.Stage = domain.StageSelect
		sel.Invalid = append(sel.Invalid, ie)
	}
	for _, a := range rows {
		if !a.IsDue(now) {
			s.logger.DebugContext(ctx, "store returned alert that is not due",
				slog.String("alert_id", a.ID),
				slog.String("cooldown", string(a.Cooldown)),
			)
			continue
		}
		if err := a.Validate(); err != nil {
			sel.Invalid = append(sel.Invalid, domain.ItemError{
				Stage: domain.StageSelect,
				Key:   a.ID,
				Err:   err,
			})
			continue
		}
		sel.Alerts = append(sel.Alerts, a)
	}
	return sel, nil
}

// UniqueSymbols returns the distinct symbols of alerts in first-seen order.
func UniqueSymbols(alerts []domain.Alert) []string {
	seen := make(map[string]struct{}, len(alerts))
	out := make([]string, 0, len(alerts))
	for _, a := range alerts {
		if _, ok := seen[a.Symbol]; ok {
			continue
		}
		seen[a.Symbol] = struct{}{}
		out = append(out, a.Symbol)
	}
	return out
}
