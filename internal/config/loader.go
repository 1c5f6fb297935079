package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BOOKSIM_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	fillVenueDefaults(&cfg)

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// fillVenueDefaults restores the endpoints of a built-in venue when the file
// redefines the venue table without them.
func fillVenueDefaults(cfg *Config) {
	defaults := Defaults().Venues
	for name, v := range cfg.Venues {
		def, ok := defaults[name]
		if !ok {
			continue
		}
		if v.WSURL == "" {
			v.WSURL = def.WSURL
		}
		if v.RestURL == "" {
			v.RestURL = def.RestURL
		}
		if len(v.Symbols) == 0 {
			v.Symbols = def.Symbols
		}
		cfg.Venues[name] = v
	}
}

// applyEnvOverrides reads well-known BOOKSIM_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Feed ──
	setInt(&cfg.Feed.MaxDepth, "BOOKSIM_FEED_MAX_DEPTH")
	setDuration(&cfg.Feed.ReconnectBaseDelay, "BOOKSIM_FEED_RECONNECT_BASE_DELAY")
	setInt(&cfg.Feed.MaxReconnectAttempts, "BOOKSIM_FEED_MAX_RECONNECT_ATTEMPTS")
	setDuration(&cfg.Feed.HandshakeTimeout, "BOOKSIM_FEED_HANDSHAKE_TIMEOUT")
	setDuration(&cfg.Feed.PingPeriod, "BOOKSIM_FEED_PING_PERIOD")
	setDuration(&cfg.Feed.RestTimeout, "BOOKSIM_FEED_REST_TIMEOUT")

	// ── Venues ── (BOOKSIM_VENUES_<KEY>_WS_URL etc.)
	for name, v := range cfg.Venues {
		prefix := "BOOKSIM_VENUES_" + envKey(name) + "_"
		setStr(&v.WSURL, prefix+"WS_URL")
		setStr(&v.RestURL, prefix+"REST_URL")
		setStringSlice(&v.Symbols, prefix+"SYMBOLS")
		cfg.Venues[name] = v
	}

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "BOOKSIM_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "BOOKSIM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BOOKSIM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BOOKSIM_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BOOKSIM_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BOOKSIM_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BOOKSIM_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.BookTTL, "BOOKSIM_REDIS_BOOK_TTL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "BOOKSIM_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "BOOKSIM_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "BOOKSIM_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BOOKSIM_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BOOKSIM_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BOOKSIM_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BOOKSIM_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BOOKSIM_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BOOKSIM_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BOOKSIM_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BOOKSIM_POSTGRES_RUN_MIGRATIONS")

	// ── Server ──
	setInt(&cfg.Server.Port, "BOOKSIM_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BOOKSIM_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit.Requests, "BOOKSIM_SERVER_RATE_LIMIT_REQUESTS")
	setDuration(&cfg.Server.RateLimit.Window, "BOOKSIM_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "BOOKSIM_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BOOKSIM_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BOOKSIM_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BOOKSIM_NOTIFY_EVENTS")

	// ── Top-level ──
	setStringSlice(&cfg.Subscribe, "BOOKSIM_SUBSCRIBE")
	setStr(&cfg.Mode, "BOOKSIM_MODE")
	setStr(&cfg.LogLevel, "BOOKSIM_LOG_LEVEL")
}

// envKey upper-cases a venue key and maps characters that are not valid in
// environment variable names to underscores.
func envKey(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
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
