package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteSnapshot is the market data for one symbol captured during a cycle.
// It lives only as long as the cycle that fetched it.
type QuoteSnapshot struct {
	Symbol        string
	Price         decimal.Decimal
	Volume        decimal.Decimal
	ChangePercent decimal.Decimal
	PreviousClose decimal.Decimal
	FetchedAt     time.Time
}

// NotificationKind selects the message template for a triggered alert.
type NotificationKind string

const (
	NotificationUpper  NotificationKind = "upper"
	NotificationLower  NotificationKind = "lower"
	NotificationVolume NotificationKind = "volume"
)

// Outcome is the evaluator's verdict for one alert in one cycle.
type Outcome struct {
	Alert     Alert
	Triggered bool
	Kind      NotificationKind
	Quote     *QuoteSnapshot
	// Reason is a short machine-readable explanation when Triggered is false.
	Reason string
}

// Contact is the resolved delivery address of an alert owner.
type Contact struct {
	UserID string
	Email  string
	Name   string
}

// Message is a rendered notification ready for a sink.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}
