// Package metrics exposes cycle reports as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/signalist/internal/domain"
)

const namespace = "signalist"

// Collector accumulates counters from every finished cycle. It implements
// the engine's report sink contract.
type Collector struct {
	registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	duration      prometheus.Histogram
	alerts        prometheus.Counter
	invalidAlerts prometheus.Counter
	symbols       *prometheus.CounterVec
	triggers      prometheus.Counter
	notifications *prometheus.CounterVec
	records       *prometheus.CounterVec
	itemErrors    *prometheus.CounterVec
	lastSuccess   prometheus.Gauge
}

// NewCollector registers every metric on a private registry together with
// the Go runtime and process collectors. skippedTicks, when non-nil, is
// exported as a counter read at scrape time.
func NewCollector(skippedTicks func() int64) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Evaluation cycles run, by result (ok, failures, aborted).",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one evaluation cycle.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		alerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_examined_total",
			Help:      "Due alerts returned by the selector.",
		}),
		invalidAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_invalid_total",
			Help:      "Due alerts excluded because they failed validation.",
		}),
		symbols: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_fetches_total",
			Help:      "Quote fetches by result.",
		}, []string{"result"}),
		triggers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_total",
			Help:      "Alerts whose condition held.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by result.",
		}, []string{"result"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_records_total",
			Help:      "Last-triggered writes by result.",
		}, []string{"result"}),
		itemErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_errors_total",
			Help:      "Per-item failures by pipeline stage.",
		}, []string{"stage"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_successful_cycle_timestamp_seconds",
			Help:      "Unix time of the last cycle that finished without failures.",
		}),
	}

	c.registry.MustRegister(
		c.cycles, c.duration, c.alerts, c.invalidAlerts, c.symbols, c.triggers,
		c.notifications, c.records, c.itemErrors, c.lastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if skippedTicks != nil {
		c.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_ticks_total",
			Help:      "Scheduler ticks dropped because a cycle overran the interval.",
		}, func() float64 { return float64(skippedTicks()) }))
	}
	return c
}

// Publish folds one cycle report into the metrics.
func (c *Collector) Publish(_ context.Context, r domain.CycleReport) error {
	result := "ok"
	switch {
	case r.Aborted:
		result = "aborted"
	case r.HasFailures():
		result = "failures"
	}
	c.cycles.WithLabelValues(result).Inc()
	c.duration.Observe(r.Duration.Seconds())

	c.alerts.Add(float64(r.AlertsExamined))
	c.invalidAlerts.Add(float64(r.InvalidAlerts))
	c.symbols.WithLabelValues("ok").Add(float64(r.SymbolsFetched))
	c.symbols.WithLabelValues("error").Add(float64(r.FetchFailures))
	c.triggers.Add(float64(r.TriggersFound))
	c.notifications.WithLabelValues("sent").Add(float64(r.NotificationsSent))
	c.notifications.WithLabelValues("failed").Add(float64(r.NotificationFailures))
	c.records.WithLabelValues("ok").Add(float64(r.RecordsWritten))
	c.records.WithLabelValues("error").Add(float64(r.RecordFailures))
	for _, e := range r.Errors {
		c.itemErrors.WithLabelValues(string(e.Stage)).Inc()
	}
	if result == "ok" {
		c.lastSuccess.Set(float64(r.FinishedAt.Unix()))
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
