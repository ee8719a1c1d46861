package domain

import (
	"context"
	"time"
)

// AlertStore is the engine's view of persisted alerts.
type AlertStore interface {
	// ListDue returns every active alert that is due at now, using a single
	// query built from DueCutoffs(now). Rows that matched but could not be
	// decoded into an Alert are returned in rejected as StageSelect errors
	// wrapping ErrInvalidAlert; err is reserved for failures of the query
	// itself.
	ListDue(ctx context.Context, now time.Time) (alerts []Alert, rejected []ItemError, err error)
	// MarkTriggered moves one alert's last-triggered timestamp forward to at.
	// It never touches other fields and never moves the timestamp backwards;
	// updated is false when the stored value was already >= at or the alert
	// no longer exists.
	MarkTriggered(ctx context.Context, alertID string, at time.Time) (updated bool, err error)
}

// UserDirectory resolves alert owners to delivery addresses.
type UserDirectory interface {
	// ResolveContacts looks up all given user IDs at once. Unknown IDs are
	// absent from the returned map.
	ResolveContacts(ctx context.Context, userIDs []string) (map[string]Contact, error)
}

// QuoteSource fetches the current quote for one symbol.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (QuoteSnapshot, error)
}

// MessageSink delivers one rendered message.
type MessageSink interface {
	Send(ctx context.Context, msg Message) error
}
