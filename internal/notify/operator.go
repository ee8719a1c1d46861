package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/signalist/internal/domain"
)

// Operator events. Notifier allow-lists are written in these names.
const (
	EventCycleAborted  = "cycle_aborted"
	EventCycleFailures = "cycle_failures"
	EventCycleTriggers = "cycle_triggers"
)

// maxListedErrors caps how many item errors an operator message lists.
const maxListedErrors = 5

// OperatorAlerter turns cycle reports into operator notifications. It is
// registered as a report sink next to the metrics collector and report bus.
type OperatorAlerter struct {
	notifier *Notifier
}

// NewOperatorAlerter wraps n.
func NewOperatorAlerter(n *Notifier) *OperatorAlerter {
	return &OperatorAlerter{notifier: n}
}

// Publish notifies operators about an aborted cycle, a cycle with failures
// or a cycle that triggered alerts. Quiet cycles produce nothing.
func (o *OperatorAlerter) Publish(ctx context.Context, r domain.CycleReport) error {
	event, title, ok := classify(r)
	if !ok {
		return nil
	}
	return o.notifier.Notify(ctx, event, title, summarize(r))
}

func classify(r domain.CycleReport) (event, title string, ok bool) {
	switch {
	case r.Aborted:
		return EventCycleAborted, "Signalist cycle aborted", true
	case r.HasFailures():
		return EventCycleFailures, fmt.Sprintf("Signalist cycle finished with %d error(s)", len(r.Errors)), true
	case r.TriggersFound > 0:
		return EventCycleTriggers, fmt.Sprintf("Signalist cycle triggered %d alert(s)", r.TriggersFound), true
	}
	return "", "", false
}

func summarize(r domain.CycleReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "cycle %s at %s (%s)\n", r.CycleID, r.StartedAt.UTC().Format("2006-01-02 15:04:05Z"), r.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "alerts %d (invalid %d), symbols %d/%d, triggers %d\n",
		r.AlertsExamined, r.InvalidAlerts, r.SymbolsFetched, r.SymbolsRequested, r.TriggersFound)
	fmt.Fprintf(&b, "sent %d, failed %d, recorded %d, record failures %d",
		r.NotificationsSent, r.NotificationFailures, r.RecordsWritten, r.RecordFailures)
	for i, e := range r.Errors {
		if i == maxListedErrors {
			fmt.Fprintf(&b, "\n... and %d more", len(r.Errors)-maxListedErrors)
			break
		}
		b.WriteString("\n- ")
		b.WriteString(e.Error())
	}
	return b.String()
}
