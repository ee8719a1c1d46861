package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AlertKind selects which quote field an alert watches.
type AlertKind string

const (
	AlertKindPrice  AlertKind = "price"
	AlertKindVolume AlertKind = "volume"
)

// Comparison is the trigger condition applied to the watched field.
type Comparison string

const (
	// ComparisonGreater fires when the watched value is >= the threshold.
	ComparisonGreater Comparison = "greater"
	// ComparisonLess fires when the watched value is <= the threshold.
	ComparisonLess Comparison = "less"
	// ComparisonMovesUpBy fires when the percent change since the previous
	// close is >= the threshold.
	ComparisonMovesUpBy Comparison = "moves_up_by"
	// ComparisonMovesDownBy fires when the percent change since the previous
	// close is <= -threshold.
	ComparisonMovesDownBy Comparison = "moves_down_by"
)

// Alert is one user's standing watch condition on an instrument. The engine
// only ever writes LastTriggeredAt; every other field belongs to the CRUD
// surface that owns alert records.
type Alert struct {
	ID              string
	OwnerID         string
	Symbol          string
	Company         string
	Name            string
	Kind            AlertKind
	Comparison      Comparison
	Threshold       decimal.Decimal
	Cooldown        Cooldown
	Active          bool
	LastTriggeredAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NormalizeSymbol trims and upper-cases an instrument symbol.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Validate checks the invariants the engine relies on. It returns an error
// wrapping ErrInvalidAlert describing the first problem found.
func (a Alert) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidAlert)
	}
	if a.OwnerID == "" {
		return fmt.Errorf("%w: alert %s: owner is required", ErrInvalidAlert, a.ID)
	}
	if a.Symbol == "" || a.Symbol != NormalizeSymbol(a.Symbol) {
		return fmt.Errorf("%w: alert %s: symbol %q is empty or not normalized", ErrInvalidAlert, a.ID, a.Symbol)
	}
	if !a.Cooldown.Valid() {
		return fmt.Errorf("%w: alert %s: unknown cooldown %q", ErrInvalidAlert, a.ID, a.Cooldown)
	}

	switch a.Kind {
	case AlertKindPrice:
		switch a.Comparison {
		case ComparisonGreater, ComparisonLess:
			if a.Threshold.IsNegative() {
				return fmt.Errorf("%w: alert %s: price threshold must not be negative", ErrInvalidAlert, a.ID)
			}
		case ComparisonMovesUpBy, ComparisonMovesDownBy:
			if !a.Threshold.IsPositive() {
				return fmt.Errorf("%w: alert %s: percent move threshold must be positive", ErrInvalidAlert, a.ID)
			}
		default:
			return fmt.Errorf("%w: alert %s: unknown comparison %q", ErrInvalidAlert, a.ID, a.Comparison)
		}
	case AlertKindVolume:
		if a.Comparison != ComparisonGreater {
			return fmt.Errorf("%w: alert %s: volume alerts only support %q, got %q",
				ErrInvalidAlert, a.ID, ComparisonGreater, a.Comparison)
		}
		if a.Threshold.IsNegative() {
			return fmt.Errorf("%w: alert %s: volume threshold must not be negative", ErrInvalidAlert, a.ID)
		}
	default:
		return fmt.Errorf("%w: alert %s: unknown kind %q", ErrInvalidAlert, a.ID, a.Kind)
	}
	return nil
}

// IsDue reports whether the alert may be evaluated at now: it must be active
// and either never triggered or past its cooldown window.
func (a Alert) IsDue(now time.Time) bool {
	if !a.Active {
		return false
	}
	if a.LastTriggeredAt == nil {
		return true
	}
	window, repeats := a.Cooldown.Window()
	if !repeats {
		return false
	}
	return !a.LastTriggeredAt.After(now.Add(-window))
}
