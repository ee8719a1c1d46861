package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/signalist/internal/domain"
)

// State is the scheduler's position in the cycle pipeline.
type State int32

const (
	StateIdle State = iota
	StateSelecting
	StateFetching
	StateEvaluating
	StateDispatching
	StateRecording
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSelecting:
		return "selecting"
	case StateFetching:
		return "fetching"
	case StateEvaluating:
		return "evaluating"
	case StateDispatching:
		return "dispatching"
	case StateRecording:
		return "recording"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// CycleLockKey is the distributed lock taken around each cycle when a
// LockManager is configured.
const CycleLockKey = "signalist:cycle"

// Defaults for SchedulerConfig.
const (
	DefaultInterval     = time.Minute
	DefaultCycleTimeout = 50 * time.Second
)

// SchedulerConfig controls cadence and per-cycle bounds.
type SchedulerConfig struct {
	Interval     time.Duration
	CycleTimeout time.Duration
	RunOnStart   bool
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = DefaultCycleTimeout
	}
	return c
}

// Scheduler runs evaluation cycles on a fixed cadence. At most one cycle runs
// per process; with a LockManager, at most one across processes.
type Scheduler struct {
	cfg        SchedulerConfig
	selector   *Selector
	fetcher    *Fetcher
	dispatcher *Dispatcher
	recorder   *Recorder
	sink       ReportSink
	locks      domain.LockManager
	logger     *slog.Logger
	now        func() time.Time

	running      atomic.Bool
	state        atomic.Int32
	cycles       atomic.Int64
	skippedTicks atomic.Int64
}

// NewScheduler creates a Scheduler. sink may be nil.
func NewScheduler(cfg SchedulerConfig, selector *Selector, fetcher *Fetcher, dispatcher *Dispatcher, recorder *Recorder, sink ReportSink, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cfg:        cfg.withDefaults(),
		selector:   selector,
		fetcher:    fetcher,
		dispatcher: dispatcher,
		recorder:   recorder,
		sink:       sink,
		logger:     logger.With(slog.String("component", "scheduler")),
		now:        time.Now,
	}
}

// WithLockManager makes every cycle also hold a distributed lock.
func (s *Scheduler) WithLockManager(lm domain.LockManager) *Scheduler {
	s.locks = lm
	return s
}

// State returns the current pipeline state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Interval returns the configured tick interval.
func (s *Scheduler) Interval() time.Duration { return s.cfg.Interval }

// Cycles returns how many cycles have completed.
func (s *Scheduler) Cycles() int64 { return s.cycles.Load() }

// SkippedTicks returns how many ticks were dropped because a cycle overran.
func (s *Scheduler) SkippedTicks() int64 { return s.skippedTicks.Load() }

func (s *Scheduler) setState(st State) { s.state.Store(int32(st)) }

// Run ticks at the configured interval until ctx is cancelled. Ticks that
// arrive while a cycle is running are dropped, never queued.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scheduler started",
		slog.Duration("interval", s.cfg.Interval),
		slog.Duration("cycle_timeout", s.cfg.CycleTimeout),
		slog.Bool("run_on_start", s.cfg.RunOnStart),
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	if s.cfg.RunOnStart {
		s.runScheduled(ctx)
		s.drain(ticker.C)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runScheduled(ctx)
			s.drain(ticker.C)
		}
	}
}

func (s *Scheduler) runScheduled(ctx context.Context) {
	if _, err := s.RunCycle(ctx); err != nil {
		switch {
		case errors.Is(err, domain.ErrCycleInProgress), errors.Is(err, domain.ErrLockHeld):
			s.skippedTicks.Add(1)
			s.logger.InfoContext(ctx, "cycle skipped", slog.String("reason", err.Error()))
		case ctx.Err() != nil:
			// shutting down
		default:
			s.logger.ErrorContext(ctx, "cycle not run", slog.String("error", err.Error()))
		}
	}
}

func (s *Scheduler) drain(c <-chan time.Time) {
	for {
		select {
		case <-c:
			s.skippedTicks.Add(1)
		default:
			return
		}
	}
}

// RunCycle runs one full cycle and returns its report. It returns
// domain.ErrCycleInProgress immediately when another cycle is running in this
// process and domain.ErrLockHeld when another process holds the cycle lock.
// A selection failure is not an error here: the report comes back with
// Aborted set.
func (s *Scheduler) RunCycle(ctx context.Context) (domain.CycleReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return domain.CycleReport{}, domain.ErrCycleInProgress
	}
	defer s.running.Store(false)

	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, CycleLockKey, s.cfg.CycleTimeout+s.recorder.timeout)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return domain.CycleReport{}, err
			}
			return domain.CycleReport{}, fmt.Errorf("engine: acquire cycle lock: %w", err)
		}
		defer unlock()
	}

	cycleCtx, cancel := context.WithTimeout(ctx, s.cfg.CycleTimeout)
	defer cancel()

	report := s.runPipeline(cycleCtx, uuid.NewString())
	s.cycles.Add(1)

	if s.sink != nil {
		sinkCtx, sinkCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer sinkCancel()
		if err := s.sink.Publish(sinkCtx, report); err != nil {
			s.logger.WarnContext(ctx, "publish cycle report failed",
				slog.String("cycle_id", report.CycleID),
				slog.String("error", err.Error()),
			)
		}
	}
	return report, nil
}

func (s *Scheduler) runPipeline(ctx context.Context, cycleID string) (report domain.CycleReport) {
	start := s.now().UTC()
	report = domain.CycleReport{CycleID: cycleID, StartedAt: start}
	logger := s.logger.With(slog.String("cycle_id", cycleID))
	defer func() {
		s.setState(StateIdle)
		report.FinishedAt = s.now().UTC()
		report.Duration = report.FinishedAt.Sub(start)
	}()

	s.setState(StateSelecting)
	sel, err := s.selector.Select(ctx, start)
	if err != nil {
		logger.ErrorContext(ctx, "selection failed, aborting cycle", slog.String("error", err.Error()))
		report.Aborted = true
		report.AddError(domain.StageSelect, "", err)
		return
	}
	report.AlertsExamined = sel.Examined
	report.InvalidAlerts = len(sel.Invalid)
	report.Errors = append(report.Errors, sel.Invalid...)
	if len(sel.Alerts) == 0 {
		logger.DebugContext(ctx, "no due alerts")
		return
	}

	s.setState(StateFetching)
	symbols := UniqueSymbols(sel.Alerts)
	quotes, fetchErrs := s.fetcher.FetchAll(ctx, symbols)
	report.SymbolsRequested = len(symbols)
	report.SymbolsFetched = len(quotes)
	report.FetchFailures = len(fetchErrs)
	report.Errors = append(report.Errors, fetchErrs...)

	s.setState(StateEvaluating)
	triggered := Triggered(EvaluateAll(sel.Alerts, quotes))
	report.TriggersFound = len(triggered)
	if len(triggered) == 0 {
		return
	}

	s.setState(StateDispatching)
	deliveries := s.dispatcher.Dispatch(ctx, triggered)
	for _, d := range deliveries {
		if d.Sent() {
			report.NotificationsSent++
			continue
		}
		report.NotificationFailures++
		report.AddError(domain.StageDispatch, d.Outcome.Alert.ID, d.Err)
	}

	s.setState(StateRecording)
	written, recErrs := s.recorder.Record(ctx, deliveries, start)
	report.RecordsWritten = written
	report.RecordFailures = len(recErrs)
	report.Errors = append(report.Errors, recErrs...)

	return
}
