package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/signalist/internal/server"
	"github.com/alanyoungcy/signalist/internal/server/handler"
)

// shutdownTimeout bounds graceful HTTP shutdown in full mode.
const shutdownTimeout = 10 * time.Second

// EngineMode runs the scheduler until ctx is cancelled.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine mode",
		slog.Duration("interval", deps.Scheduler.Interval()),
	)
	return ignoreCancel(ctx, deps.Scheduler.Run(ctx))
}

// OnceMode runs a single cycle and returns. An aborted cycle is an error so
// that cron and CI see a non-zero exit; per-item failures are not.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "running a single cycle")

	report, err := deps.Scheduler.RunCycle(ctx)
	if err != nil {
		return fmt.Errorf("once: %w", err)
	}
	if report.Aborted {
		return fmt.Errorf("once: cycle %s aborted with %d error(s)", report.CycleID, len(report.Errors))
	}
	if report.HasFailures() {
		a.logger.WarnContext(ctx, "cycle finished with failures",
			slog.String("cycle_id", report.CycleID),
			slog.Int("errors", len(report.Errors)),
		)
	}
	return nil
}

// FullMode runs the scheduler, the WebSocket hub and the ops HTTP server
// under one errgroup. Cancelling ctx stops all three.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode",
		slog.Duration("interval", deps.Scheduler.Interval()),
		slog.Int("port", a.cfg.Server.Port),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ignoreCancel(ctx, deps.Scheduler.Run(ctx))
	})

	if deps.Hub != nil {
		g.Go(func() error {
			return ignoreCancel(ctx, deps.Hub.Run(ctx))
		})
	}

	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// startHTTPServer adds the ops server and its shutdown watcher to g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.Checks, a.base),
		Status:  handler.NewStatusHandler(a.cfg.Mode, deps.Scheduler, deps.LastReport, a.startedAt),
		Cycles:  handler.NewCycleHandler(ctx, deps.Scheduler, a.base),
		Metrics: deps.Metrics.Handler(),
	}
	if deps.Archive != nil {
		handlers.Reports = handler.NewReportHandler(deps.Archive, a.base)
	}

	srv := server.NewServer(server.Config{
		Port:         a.cfg.Server.Port,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		APIKey:       a.cfg.Server.APIKey,
		ReadTimeout:  a.cfg.Server.ReadTimeout.Duration,
		WriteTimeout: a.cfg.Server.WriteTimeout.Duration,
	}, handlers, deps.Hub, deps.Limiter, a.base)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// ignoreCancel drops the error a long-running loop returns when its context
// was cancelled on purpose.
func ignoreCancel(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}
