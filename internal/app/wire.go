package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/alanyoungcy/signalist/internal/blob/s3"
	"github.com/alanyoungcy/signalist/internal/cache/local"
	"github.com/alanyoungcy/signalist/internal/cache/redis"
	"github.com/alanyoungcy/signalist/internal/config"
	"github.com/alanyoungcy/signalist/internal/crypto"
	"github.com/alanyoungcy/signalist/internal/domain"
	"github.com/alanyoungcy/signalist/internal/engine"
	"github.com/alanyoungcy/signalist/internal/metrics"
	"github.com/alanyoungcy/signalist/internal/notify"
	"github.com/alanyoungcy/signalist/internal/platform/finnhub"
	"github.com/alanyoungcy/signalist/internal/server/handler"
	"github.com/alanyoungcy/signalist/internal/server/ws"
	"github.com/alanyoungcy/signalist/internal/store/mongo"
	"github.com/alanyoungcy/signalist/internal/store/postgres"
)

// Dependencies bundles everything the modes need. It is constructed by Wire
// and torn down by the returned cleanup function.
type Dependencies struct {
	Scheduler  *engine.Scheduler
	LastReport *engine.LastReport
	Metrics    *metrics.Collector

	// Hub is set only in full mode.
	Hub *ws.Hub
	// Archive is nil unless S3 is enabled.
	Archive *s3blob.ReportArchiver
	// Limiter throttles quote requests and manual cycle triggers. It is
	// Redis-backed when Redis is enabled and in-process otherwise.
	Limiter domain.RateLimiter

	Notifier *notify.Notifier
	Checks   map[string]handler.Checker
}

// stores is the result of opening the configured alert store backend.
type stores struct {
	alerts domain.AlertStore
	users  domain.UserDirectory
	check  handler.Checker
	close  func()
}

// Wire constructs every concrete dependency from cfg and returns them with a
// cleanup function that releases resources in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{
		LastReport: &engine.LastReport{},
		Checks:     make(map[string]handler.Checker),
	}

	// --- Alert store and user directory ---
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, st.close)
	deps.Checks[strings.ToLower(cfg.Store.Backend)] = st.check

	// --- Redis (optional) ---
	var (
		reportBus *redis.ReportBus
		locks     domain.LockManager
	)
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MaxRetries:   cfg.Redis.MaxRetries,
			TLSEnabled:   cfg.Redis.TLSEnabled,
			DialTimeout:  cfg.Redis.DialTimeout.Duration,
			ReadTimeout:  cfg.Redis.ReadTimeout.Duration,
			WriteTimeout: cfg.Redis.WriteTimeout.Duration,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Checks["redis"] = redisClient.Ping

		deps.Limiter = redis.NewRateLimiter(redisClient)
		reportBus = redis.NewReportBus(redisClient)
		if cfg.Engine.DistributedLock {
			locks = redis.NewLockManager(redisClient)
		}
	} else {
		deps.Limiter = local.NewRateLimiter()
	}

	// --- S3 report archive (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Checks["s3"] = s3Client.Health
		deps.Archive = s3blob.NewReportArchiver(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client))
	}

	// --- Secrets ---
	apiKey, err := crypto.Resolve(crypto.SecretSource{
		Plain:      cfg.Finnhub.APIKey,
		SealedPath: cfg.Finnhub.SealedAPIKeyPath,
		Passphrase: cfg.SecretPassphrase,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: finnhub api key: %w", err))
	}
	smtpPassword, err := crypto.Resolve(crypto.SecretSource{
		Plain:      cfg.SMTP.Password,
		SealedPath: cfg.SMTP.SealedPasswordPath,
		Passphrase: cfg.SecretPassphrase,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: smtp password: %w", err))
	}

	// --- Quote source ---
	quotes := finnhub.NewClient(finnhub.Options{
		BaseURL:        cfg.Finnhub.BaseURL,
		APIKey:         apiKey,
		RequestTimeout: cfg.Finnhub.RequestTimeout.Duration,
		RatePerMinute:  cfg.Finnhub.RateLimitPerMinute,
		Limiter:        deps.Limiter,
	})

	// --- Alert e-mail ---
	renderer, err := notify.NewRenderer()
	if err != nil {
		return fail(fmt.Errorf("wire: renderer: %w", err))
	}
	var mailer domain.MessageSink
	if cfg.SMTP.DryRun {
		logger.Warn("smtp dry_run enabled: alert e-mails are logged, not sent")
		mailer = notify.NewLogMailer(logger)
	} else {
		m, err := notify.NewSMTPMailer(notify.SMTPConfig{
			Host:        cfg.SMTP.Host,
			Port:        cfg.SMTP.Port,
			Username:    cfg.SMTP.Username,
			Password:    smtpPassword,
			From:        cfg.SMTP.From,
			ImplicitTLS: cfg.SMTP.ImplicitTLS,
			Timeout:     cfg.SMTP.Timeout.Duration,
		}, logger)
		if err != nil {
			return fail(fmt.Errorf("wire: smtp: %w", err))
		}
		mailer = m
	}

	// --- Operator notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Report sinks ---
	sink := engine.NewMultiSink(logger, deps.LastReport, engine.NewLogSink(logger))
	if deps.Notifier.Enabled() {
		sink.Add(notify.NewOperatorAlerter(deps.Notifier))
	}
	if reportBus != nil {
		sink.Add(reportBus)
	}
	if deps.Archive != nil {
		sink.Add(deps.Archive)
	}
	if strings.ToLower(cfg.Mode) == "full" {
		// With Redis the hub follows the shared report channel, so clients
		// see cycles run by any replica. Without it the hub is fed directly.
		hubCfg := ws.Config{
			Mode:           cfg.Mode,
			StartedAt:      time.Now().UTC(),
			AllowedOrigins: cfg.Server.CORSOrigins,
		}
		if reportBus != nil {
			deps.Hub = ws.NewHub(reportBus, logger, hubCfg)
		} else {
			deps.Hub = ws.NewHub(nil, logger, hubCfg)
			sink.Add(deps.Hub)
		}
	}

	// --- Engine ---
	maxInFlight := cfg.Engine.MaxInFlight
	deps.Scheduler = engine.NewScheduler(
		engine.SchedulerConfig{
			Interval:     cfg.Engine.Interval.Duration,
			CycleTimeout: cfg.Engine.CycleTimeout.Duration,
			RunOnStart:   cfg.Engine.RunOnStart,
		},
		engine.NewSelector(st.alerts, logger),
		engine.NewFetcher(quotes, maxInFlight, logger),
		engine.NewDispatcher(st.users, renderer, mailer, maxInFlight, logger),
		engine.NewRecorder(st.alerts, maxInFlight, cfg.Engine.RecordTimeout.Duration, logger),
		sink,
		logger,
	)
	if locks != nil {
		deps.Scheduler.WithLockManager(locks)
	}

	deps.Metrics = metrics.NewCollector(deps.Scheduler.SkippedTicks)
	sink.Add(deps.Metrics)

	return deps, cleanup, nil
}

// openStores connects the configured backend and builds the alert store and
// user directory over it.
func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	switch strings.ToLower(cfg.Store.Backend) {
	case "mongo":
		client, err := mongo.New(ctx, mongo.ClientConfig{
			URI:            cfg.Mongo.URI,
			Database:       cfg.Mongo.Database,
			MaxPoolSize:    uint64(cfg.Mongo.MaxPoolSize),
			ConnectTimeout: cfg.Mongo.ConnectTimeout.Duration,
		})
		if err != nil {
			return nil, fmt.Errorf("wire: mongo: %w", err)
		}
		closeFn := func() { _ = client.Close() }
		if cfg.Mongo.EnsureIndexes {
			if err := client.EnsureIndexes(ctx); err != nil {
				closeFn()
				return nil, fmt.Errorf("wire: mongo indexes: %w", err)
			}
		}
		db := client.Database()
		return &stores{
			alerts: mongo.NewAlertStore(db, logger),
			users:  mongo.NewUserStore(db),
			check:  client.Ping,
			close:  closeFn,
		}, nil

	default:
		client, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:            cfg.Postgres.DSN,
			Host:           cfg.Postgres.Host,
			Port:           cfg.Postgres.Port,
			Database:       cfg.Postgres.Database,
			User:           cfg.Postgres.User,
			Password:       cfg.Postgres.Password,
			SSLMode:        cfg.Postgres.SSLMode,
			MaxConns:       cfg.Postgres.PoolMaxConns,
			MinConns:       cfg.Postgres.PoolMinConns,
			ConnectTimeout: cfg.Postgres.ConnectTimeout.Duration,
		})
		if err != nil {
			return nil, fmt.Errorf("wire: postgres: %w", err)
		}
		if cfg.Postgres.RunMigrations {
			if err := client.RunMigrations(ctx); err != nil {
				client.Close()
				return nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		pool := client.Pool()
		return &stores{
			alerts: postgres.NewAlertStore(pool, logger),
			users:  postgres.NewUserStore(pool),
			check:  client.Ping,
			close:  client.Close,
		}, nil
	}
}
