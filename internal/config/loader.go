package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SIGNALIST_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SIGNALIST_* environment variables and
// overwrites the corresponding Config fields when a variable is set. The
// unprefixed names used by the web application are accepted as aliases.
func applyEnvOverrides(cfg *Config) {
	// ── Store ──
	setStr(&cfg.Store.Backend, "SIGNALIST_STORE_BACKEND")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SIGNALIST_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "SIGNALIST_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SIGNALIST_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SIGNALIST_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SIGNALIST_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SIGNALIST_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SIGNALIST_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SIGNALIST_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SIGNALIST_POSTGRES_POOL_MIN_CONNS")
	setDuration(&cfg.Postgres.ConnectTimeout, "SIGNALIST_POSTGRES_CONNECT_TIMEOUT")
	setBool(&cfg.Postgres.RunMigrations, "SIGNALIST_POSTGRES_RUN_MIGRATIONS")

	// ── Mongo ──
	setStr(&cfg.Mongo.URI, "MONGODB_URI") // compatibility alias
	setStr(&cfg.Mongo.URI, "SIGNALIST_MONGO_URI")
	setStr(&cfg.Mongo.Database, "SIGNALIST_MONGO_DATABASE")
	setInt(&cfg.Mongo.MaxPoolSize, "SIGNALIST_MONGO_MAX_POOL_SIZE")
	setDuration(&cfg.Mongo.ConnectTimeout, "SIGNALIST_MONGO_CONNECT_TIMEOUT")
	setBool(&cfg.Mongo.EnsureIndexes, "SIGNALIST_MONGO_ENSURE_INDEXES")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SIGNALIST_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SIGNALIST_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SIGNALIST_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SIGNALIST_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SIGNALIST_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SIGNALIST_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SIGNALIST_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SIGNALIST_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SIGNALIST_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SIGNALIST_S3_REGION")
	setStr(&cfg.S3.Bucket, "SIGNALIST_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SIGNALIST_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SIGNALIST_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SIGNALIST_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SIGNALIST_S3_FORCE_PATH_STYLE")

	// ── Finnhub ──
	setStr(&cfg.Finnhub.APIKey, "NEXT_PUBLIC_FINNHUB_API_KEY") // compatibility alias
	setStr(&cfg.Finnhub.APIKey, "FINNHUB_API_KEY")             // compatibility alias
	setStr(&cfg.Finnhub.APIKey, "SIGNALIST_FINNHUB_API_KEY")
	setStr(&cfg.Finnhub.BaseURL, "SIGNALIST_FINNHUB_BASE_URL")
	setStr(&cfg.Finnhub.SealedAPIKeyPath, "SIGNALIST_FINNHUB_SEALED_API_KEY_PATH")
	setDuration(&cfg.Finnhub.RequestTimeout, "SIGNALIST_FINNHUB_REQUEST_TIMEOUT")
	setInt(&cfg.Finnhub.RateLimitPerMinute, "SIGNALIST_FINNHUB_RATE_LIMIT_PER_MINUTE")

	// ── Engine ──
	setDuration(&cfg.Engine.Interval, "SIGNALIST_ENGINE_INTERVAL")
	setDuration(&cfg.Engine.CycleTimeout, "SIGNALIST_ENGINE_CYCLE_TIMEOUT")
	setDuration(&cfg.Engine.RecordTimeout, "SIGNALIST_ENGINE_RECORD_TIMEOUT")
	setInt(&cfg.Engine.MaxInFlight, "SIGNALIST_ENGINE_MAX_IN_FLIGHT")
	setBool(&cfg.Engine.RunOnStart, "SIGNALIST_ENGINE_RUN_ON_START")
	setBool(&cfg.Engine.DistributedLock, "SIGNALIST_ENGINE_DISTRIBUTED_LOCK")

	// ── SMTP ──
	setStr(&cfg.SMTP.Username, "NODEMAILER_EMAIL")    // compatibility alias
	setStr(&cfg.SMTP.Password, "NODEMAILER_PASSWORD") // compatibility alias
	setStr(&cfg.SMTP.Host, "SIGNALIST_SMTP_HOST")
	setInt(&cfg.SMTP.Port, "SIGNALIST_SMTP_PORT")
	setStr(&cfg.SMTP.Username, "SIGNALIST_SMTP_USERNAME")
	setStr(&cfg.SMTP.Password, "SIGNALIST_SMTP_PASSWORD")
	setStr(&cfg.SMTP.SealedPasswordPath, "SIGNALIST_SMTP_SEALED_PASSWORD_PATH")
	setStr(&cfg.SMTP.From, "SIGNALIST_SMTP_FROM")
	setBool(&cfg.SMTP.ImplicitTLS, "SIGNALIST_SMTP_IMPLICIT_TLS")
	setDuration(&cfg.SMTP.Timeout, "SIGNALIST_SMTP_TIMEOUT")
	setBool(&cfg.SMTP.DryRun, "SIGNALIST_SMTP_DRY_RUN")
	// The web app's mailer credentials are Gmail ones.
	if cfg.SMTP.Host == "" && os.Getenv("NODEMAILER_EMAIL") != "" {
		cfg.SMTP.Host = "smtp.gmail.com"
	}

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SIGNALIST_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SIGNALIST_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SIGNALIST_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SIGNALIST_NOTIFY_EVENTS")

	// ── Server ──
	setInt(&cfg.Server.Port, "SIGNALIST_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "SIGNALIST_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "SIGNALIST_SERVER_CORS_ORIGINS")

	// ── Top-level ──
	setStr(&cfg.SecretPassphrase, "SIGNALIST_SECRET_PASSPHRASE")
	setStr(&cfg.Mode, "SIGNALIST_MODE")
	setStr(&cfg.LogLevel, "SIGNALIST_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and parses.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
