package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/signalist/internal/domain"
)

// ReportSink receives the report of every finished cycle.
type ReportSink interface {
	Publish(ctx context.Context, report domain.CycleReport) error
}

// ReportSinkFunc adapts a function to ReportSink.
type ReportSinkFunc func(ctx context.Context, report domain.CycleReport) error

// Publish calls f.
func (f ReportSinkFunc) Publish(ctx context.Context, report domain.CycleReport) error {
	return f(ctx, report)
}

// MultiSink fans a report out to several sinks. A failing sink is logged and
// never prevents delivery to the others.
type MultiSink struct {
	sinks  []ReportSink
	logger *slog.Logger
}

// NewMultiSink creates a MultiSink. Nil sinks are ignored.
func NewMultiSink(logger *slog.Logger, sinks ...ReportSink) *MultiSink {
	m := &MultiSink{logger: logger.With(slog.String("component", "report_sink"))}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Add appends a sink.
func (m *MultiSink) Add(s ReportSink) {
	if s != nil {
		m.sinks = append(m.sinks, s)
	}
}

// Publish delivers report to every sink and always returns nil.
func (m *MultiSink) Publish(ctx context.Context, report domain.CycleReport) error {
	for _, s := range m.sinks {
		if err := s.Publish(ctx, report); err != nil {
			m.logger.WarnContext(ctx, "report sink failed",
				slog.String("cycle_id", report.CycleID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// LogSink writes a one-line summary per cycle.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With(slog.String("component", "cycle"))}
}

// Publish logs the report at info, or at warn when anything failed.
func (s *LogSink) Publish(ctx context.Context, r domain.CycleReport) error {
	level := slog.LevelInfo
	if r.HasFailures() {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "cycle complete",
		slog.String("cycle_id", r.CycleID),
		slog.Duration("duration", r.Duration),
		slog.Bool("aborted", r.Aborted),
		slog.Int("alerts_examined", r.AlertsExamined),
		slog.Int("invalid_alerts", r.InvalidAlerts),
		slog.Int("symbols_fetched", r.SymbolsFetched),
		slog.Int("fetch_failures", r.FetchFailures),
		slog.Int("triggers_found", r.TriggersFound),
		slog.Int("notifications_sent", r.NotificationsSent),
		slog.Int("notification_failures", r.NotificationFailures),
		slog.Int("records_written", r.RecordsWritten),
		slog.Int("record_failures", r.RecordFailures),
	)
	for _, e := range r.Errors {
		s.logger.DebugContext(ctx, "cycle item error",
			slog.String("cycle_id", r.CycleID),
			slog.String("stage", string(e.Stage)),
			slog.String("key", e.Key),
			slog.String("error", e.Err.Error()),
		)
	}
	return nil
}

// LastReport keeps the most recent report in memory.
type LastReport struct {
	mu     sync.RWMutex
	report domain.CycleReport
	ok     bool
}

// Publish stores report.
func (l *LastReport) Publish(_ context.Context, report domain.CycleReport) error {
	l.mu.Lock()
	l.report = report
	l.ok = true
	l.mu.Unlock()
	return nil
}

// Get returns the last stored report. ok is false before the first cycle.
func (l *LastReport) Get() (domain.CycleReport, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.report, l.ok
}
