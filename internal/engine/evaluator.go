package engine

import (
	"github.com/alanyoungcy/signalist/internal/domain"
)

// Reasons attached to outcomes that did not trigger.
const (
	ReasonNoQuote     = "no_quote"
	ReasonNotMet      = "condition_not_met"
	ReasonUnsupported = "unsupported_condition"
)

// Evaluate decides whether alert fires against quote. It has no side effects.
// A nil quote never triggers, so a failed fetch does not consume the alert's
// cooldown. Comparisons are inclusive and use exact decimal arithmetic.
func Evaluate(alert domain.Alert, quote *domain.QuoteSnapshot) domain.Outcome {
	out := domain.Outcome{Alert: alert, Quote: quote}
	if quote == nil {
		out.Reason = ReasonNoQuote
		return out
	}

	switch alert.Kind {
	case domain.AlertKindPrice:
		switch alert.Comparison {
		case domain.ComparisonGreater:
			out.Triggered = quote.Price.GreaterThanOrEqual(alert.Threshold)
			out.Kind = domain.NotificationUpper
		case domain.ComparisonLess:
			out.Triggered = quote.Price.LessThanOrEqual(alert.Threshold)
			out.Kind = domain.NotificationLower
		case domain.ComparisonMovesUpBy:
			out.Triggered = quote.ChangePercent.GreaterThanOrEqual(alert.Threshold)
			out.Kind = domain.NotificationUpper
		case domain.ComparisonMovesDownBy:
			out.Triggered = quote.ChangePercent.LessThanOrEqual(alert.Threshold.Neg())
			out.Kind = domain.NotificationLower
		default:
			out.Reason = ReasonUnsupported
			return out
		}
	case domain.AlertKindVolume:
		if alert.Comparison != domain.ComparisonGreater {
			out.Reason = ReasonUnsupported
			return out
		}
		out.Triggered = quote.Volume.GreaterThanOrEqual(alert.Threshold)
		out.Kind = domain.NotificationVolume
	default:
		out.Reason = ReasonUnsupported
		return out
	}

	if !out.Triggered {
		out.Kind = ""
		out.Reason = ReasonNotMet
	}
	return out
}

// EvaluateAll evaluates each alert against the quote for its symbol.
func EvaluateAll(alerts []domain.Alert, quotes map[string]domain.QuoteSnapshot) []domain.Outcome {
	out := make([]domain.Outcome, 0, len(alerts))
	for _, a := range alerts {
		var qp *domain.QuoteSnapshot
		if q, ok := quotes[a.Symbol]; ok {
			qp = &q
		}
		out = append(out, Evaluate(a, qp))
	}
	return out
}

// Triggered filters outcomes down to the ones that fired.
func Triggered(outcomes []domain.Outcome) []domain.Outcome {
	var out []domain.Outcome
	for _, o := range outcomes {
		if o.Triggered {
			out = append(out, o)
		}
	}
	return out
}
