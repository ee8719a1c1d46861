// Package config defines the signalist configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SIGNALIST_* environment variables.
type Config struct {
	Store    StoreConfig    `toml:"store"`
	Postgres PostgresConfig `toml:"postgres"`
	Mongo    MongoConfig    `toml:"mongo"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Finnhub  FinnhubConfig  `toml:"finnhub"`
	Engine   EngineConfig   `toml:"engine"`
	SMTP     SMTPConfig     `toml:"smtp"`
	Notify   NotifyConfig   `toml:"notify"`
	Server   ServerConfig   `toml:"server"`
	// SecretPassphrase unlocks every sealed_*_path secret.
	SecretPassphrase string `toml:"secret_passphrase"`
	Mode             string `toml:"mode"`
	LogLevel         string `toml:"log_level"`
}

// StoreConfig selects the alert store backend.
type StoreConfig struct {
	Backend string `toml:"backend"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN            string   `toml:"dsn"`
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	Database       string   `toml:"database"`
	User           string   `toml:"user"`
	Password       string   `toml:"password"`
	SSLMode        string   `toml:"ssl_mode"`
	PoolMaxConns   int      `toml:"pool_max_conns"`
	PoolMinConns   int      `toml:"pool_min_conns"`
	ConnectTimeout duration `toml:"connect_timeout"`
	RunMigrations  bool     `toml:"run_migrations"`
}

// MongoConfig holds MongoDB connection parameters.
type MongoConfig struct {
	URI            string   `toml:"uri"`
	Database       string   `toml:"database"`
	MaxPoolSize    int      `toml:"max_pool_size"`
	ConnectTimeout duration `toml:"connect_timeout"`
	EnsureIndexes  bool     `toml:"ensure_indexes"`
}

// RedisConfig holds Redis connection parameters. Redis is optional; when
// enabled it provides the cycle lock, the quote rate limiter and the report bus.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	DialTimeout  duration `toml:"dial_timeout"`
	ReadTimeout  duration `toml:"read_timeout"`
	WriteTimeout duration `toml:"write_timeout"`
}

// S3Config holds S3-compatible object storage parameters for the report
// archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// FinnhubConfig configures the quote provider.
type FinnhubConfig struct {
	BaseURL            string   `toml:"base_url"`
	APIKey             string   `toml:"api_key"`
	SealedAPIKeyPath   string   `toml:"sealed_api_key_path"`
	RequestTimeout     duration `toml:"request_timeout"`
	RateLimitPerMinute int      `toml:"rate_limit_per_minute"`
}

// EngineConfig tunes the evaluation cycle.
type EngineConfig struct {
	Interval      duration `toml:"interval"`
	CycleTimeout  duration `toml:"cycle_timeout"`
	RecordTimeout duration `toml:"record_timeout"`
	MaxInFlight   int      `toml:"max_in_flight"`
	RunOnStart    bool     `toml:"run_on_start"`
	// DistributedLock takes a Redis lock around each cycle so several
	// replicas never run one concurrently. Requires redis.enabled.
	DistributedLock bool `toml:"distributed_lock"`
}

// SMTPConfig configures alert e-mail delivery.
type SMTPConfig struct {
	Host               string   `toml:"host"`
	Port               int      `toml:"port"`
	Username           string   `toml:"username"`
	Password           string   `toml:"password"`
	SealedPasswordPath string   `toml:"sealed_password_path"`
	From               string   `toml:"from"`
	ImplicitTLS        bool     `toml:"implicit_tls"`
	Timeout            duration `toml:"timeout"`
	// DryRun logs messages instead of sending them.
	DryRun bool `toml:"dry_run"`
}

// NotifyConfig holds operator notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ServerConfig holds ops HTTP server parameters.
type ServerConfig struct {
	Port         int      `toml:"port"`
	APIKey       string   `toml:"api_key"`
	ReadTimeout  duration `toml:"read_timeout"`
	WriteTimeout duration `toml:"write_timeout"`
	CORSOrigins  []string `toml:"cors_origins"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Store: StoreConfig{Backend: "postgres"},
		Postgres: PostgresConfig{
			Host:           "localhost",
			Port:           5432,
			Database:       "signalist",
			User:           "signalist",
			SSLMode:        "disable",
			PoolMaxConns:   10,
			PoolMinConns:   1,
			ConnectTimeout: duration{10 * time.Second},
			RunMigrations:  true,
		},
		Mongo: MongoConfig{
			URI:            "mongodb://localhost:27017",
			Database:       "signalist",
			MaxPoolSize:    20,
			ConnectTimeout: duration{10 * time.Second},
			EnsureIndexes:  true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     10,
			MaxRetries:   3,
			DialTimeout:  duration{5 * time.Second},
			ReadTimeout:  duration{3 * time.Second},
			WriteTimeout: duration{3 * time.Second},
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "signalist-reports",
			UseSSL:         true,
			ForcePathStyle: true,
		},
		Finnhub: FinnhubConfig{
			BaseURL:            "https://finnhub.io/api/v1",
			RequestTimeout:     duration{10 * time.Second},
			RateLimitPerMinute: 60,
		},
		Engine: EngineConfig{
			Interval:      duration{time.Minute},
			CycleTimeout:  duration{50 * time.Second},
			RecordTimeout: duration{15 * time.Second},
			MaxInFlight:   8,
			RunOnStart:    true,
		},
		SMTP: SMTPConfig{
			Port:    587,
			From:    `"Signalist Alerts" <alerts@signalist.local>`,
			Timeout: duration{30 * time.Second},
		},
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  duration{15 * time.Second},
			WriteTimeout: duration{60 * time.Second},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"engine": true,
	"once":   true,
	"full":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: engine, once, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	switch strings.ToLower(c.Store.Backend) {
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	case "mongo":
		if c.Mongo.URI == "" {
			errs = append(errs, "mongo: uri must not be empty")
		}
		if c.Mongo.Database == "" {
			errs = append(errs, "mongo: database must not be empty")
		}
		if c.Mongo.MaxPoolSize < 0 {
			errs = append(errs, "mongo: max_pool_size must be >= 0")
		}
	default:
		errs = append(errs, fmt.Sprintf("store: unknown backend %q (valid: postgres, mongo)", c.Store.Backend))
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}
	if c.Engine.DistributedLock && !c.Redis.Enabled {
		errs = append(errs, "engine: distributed_lock requires redis.enabled")
	}

	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	if c.Finnhub.BaseURL == "" {
		errs = append(errs, "finnhub: base_url must not be empty")
	}
	if c.Finnhub.APIKey == "" && c.Finnhub.SealedAPIKeyPath == "" {
		errs = append(errs, "finnhub: api_key or sealed_api_key_path must be set")
	}
	if c.Finnhub.RequestTimeout.Duration <= 0 {
		errs = append(errs, "finnhub: request_timeout must be > 0")
	}
	if c.Finnhub.RateLimitPerMinute < 0 {
		errs = append(errs, "finnhub: rate_limit_per_minute must be >= 0")
	}

	if c.Engine.Interval.Duration <= 0 {
		errs = append(errs, "engine: interval must be > 0")
	}
	if c.Engine.CycleTimeout.Duration <= 0 {
		errs = append(errs, "engine: cycle_timeout must be > 0")
	} else if c.Engine.CycleTimeout.Duration > c.Engine.Interval.Duration {
		errs = append(errs, "engine: cycle_timeout must not exceed interval")
	}
	if c.Engine.RecordTimeout.Duration <= 0 {
		errs = append(errs, "engine: record_timeout must be > 0")
	}
	if c.Engine.MaxInFlight < 1 {
		errs = append(errs, "engine: max_in_flight must be >= 1")
	}

	if !c.SMTP.DryRun {
		if c.SMTP.Host == "" {
			errs = append(errs, "smtp: host must be set unless dry_run is enabled")
		}
		if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
			errs = append(errs, fmt.Sprintf("smtp: port must be 1-65535, got %d", c.SMTP.Port))
		}
	}

	if (c.Finnhub.SealedAPIKeyPath != "" || c.SMTP.SealedPasswordPath != "") && c.SecretPassphrase == "" {
		errs = append(errs, "secret_passphrase is required when a sealed_*_path is set")
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if strings.ToLower(c.Mode) == "full" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
