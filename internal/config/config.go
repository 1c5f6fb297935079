// Package config defines the top-level configuration for booksim and
// provides validation helpers.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BOOKSIM_* environment variables.
type Config struct {
	Feed      FeedConfig             `toml:"feed"`
	Venues    map[string]VenueConfig `toml:"venues"`
	Redis     RedisConfig            `toml:"redis"`
	Postgres  PostgresConfig         `toml:"postgres"`
	Server    ServerConfig           `toml:"server"`
	Notify    NotifyConfig           `toml:"notify"`
	Subscribe []string               `toml:"subscribe"`
	Mode      string                 `toml:"mode"`
	LogLevel  string                 `toml:"log_level"`
}

// FeedConfig controls book depth and the reconnect policy shared by every
// venue connection.
type FeedConfig struct {
	MaxDepth             int      `toml:"max_depth"`
	ReconnectBaseDelay   duration `toml:"reconnect_base_delay"`
	MaxReconnectAttempts int      `toml:"max_reconnect_attempts"`
	HandshakeTimeout     duration `toml:"handshake_timeout"`
	PingPeriod           duration `toml:"ping_period"`
	RestTimeout          duration `toml:"rest_timeout"`
}

// VenueConfig holds the endpoints of one venue. Adapter selects the wire
// protocol (okx, bybit, deribit, generic) and defaults to the venue key.
type VenueConfig struct {
	Adapter string   `toml:"adapter"`
	WSURL   string   `toml:"ws_url"`
	RestURL string   `toml:"rest_url"`
	Symbols []string `toml:"symbols"`
}

// AdapterName returns the adapter for the venue registered under key.
func (v VenueConfig) AdapterName(key string) string {
	if v.Adapter != "" {
		return strings.ToLower(v.Adapter)
	}
	return key
}

// RedisConfig holds Redis connection parameters. Redis is optional; without
// it the bus is in-process and books are not mirrored.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	BookTTL    duration `toml:"book_ttl"`
}

// PostgresConfig holds connection parameters for the simulation store.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int             `toml:"port"`
	CORSOrigins []string        `toml:"cors_origins"`
	RateLimit   RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig bounds POST /api/simulate per client address. It only
// applies when Redis is enabled.
type RateLimitConfig struct {
	Requests int      `toml:"requests"`
	Window   duration `toml:"window"`
}

// NotifyConfig holds the alert webhooks. Alerts are off when no sender is
// configured.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "1s", "500ms").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the public endpoints of the
// built-in venues and a reconnect policy of 1s base delay, 5 attempts.
func Defaults() Config {
	return Config{
		Feed: FeedConfig{
			MaxDepth:             15,
			ReconnectBaseDelay:   duration{time.Second},
			MaxReconnectAttempts: 5,
			HandshakeTimeout:     duration{15 * time.Second},
			PingPeriod:           duration{20 * time.Second},
			RestTimeout:          duration{10 * time.Second},
		},
		Venues: map[string]VenueConfig{
			"okx": {
				WSURL:   "wss://ws.okx.com:8443/ws/v5/public",
				RestURL: "https://www.okx.com",
				Symbols: []string{"BTC-USDT", "ETH-USDT"},
			},
			"bybit": {
				WSURL:   "wss://stream.bybit.com/v5/public/spot",
				RestURL: "https://api.bybit.com",
				Symbols: []string{"BTCUSDT", "ETHUSDT"},
			},
			"deribit": {
				WSURL:   "wss://www.deribit.com/ws/api/v2",
				RestURL: "https://www.deribit.com",
				Symbols: []string{"BTC-PERPETUAL", "ETH-PERPETUAL"},
			},
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			BookTTL:    duration{5 * time.Minute},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "booksim",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit: RateLimitConfig{
				Requests: 20,
				Window:   duration{time.Second},
			},
		},
		Notify: NotifyConfig{
			Events: []string{"reconnect_exhausted", "significant_slippage"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// knownAdapters lists the wire protocols a venue may use.
var knownAdapters = map[string]bool{
	"okx":     true,
	"bybit":   true,
	"deribit": true,
	"generic": true,
}

// knownEvents lists the alert types notify.events may select.
var knownEvents = map[string]bool{
	"reconnect_exhausted":  true,
	"significant_slippage": true,
}

// VenueNames returns the configured venue keys in sorted order.
func (c *Config) VenueNames() []string {
	names := make([]string, 0, len(c.Venues))
	for n := range c.Venues {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Subscriptions parses the subscribe list into (venue, symbol) pairs.
func (c *Config) Subscriptions() ([][2]string, error) {
	out := make([][2]string, 0, len(c.Subscribe))
	for _, s := range c.Subscribe {
		venue, symbol, ok := strings.Cut(strings.TrimSpace(s), ":")
		if !ok || venue == "" || symbol == "" {
			return nil, fmt.Errorf("subscribe entry %q: want venue:symbol", s)
		}
		out = append(out, [2]string{venue, symbol})
	}
	return out, nil
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Feed
	if c.Feed.MaxDepth < 1 {
		errs = append(errs, "feed: max_depth must be >= 1")
	}
	if c.Feed.ReconnectBaseDelay.Duration <= 0 {
		errs = append(errs, "feed: reconnect_base_delay must be > 0")
	}
	if c.Feed.MaxReconnectAttempts < 0 {
		errs = append(errs, "feed: max_reconnect_attempts must be >= 0")
	}
	if c.Feed.PingPeriod.Duration <= 0 {
		errs = append(errs, "feed: ping_period must be > 0")
	}
	if c.Feed.RestTimeout.Duration <= 0 {
		errs = append(errs, "feed: rest_timeout must be > 0")
	}

	// Venues
	if len(c.Venues) == 0 {
		errs = append(errs, "venues: at least one venue must be configured")
	}
	for _, name := range c.VenueNames() {
		v := c.Venues[name]
		if !knownAdapters[v.AdapterName(name)] {
			errs = append(errs, fmt.Sprintf("venues.%s: unknown adapter %q (valid: okx, bybit, deribit, generic)", name, v.AdapterName(name)))
		}
		if !strings.HasPrefix(v.WSURL, "ws://") && !strings.HasPrefix(v.WSURL, "wss://") {
			errs = append(errs, fmt.Sprintf("venues.%s: ws_url must be a ws:// or wss:// URL", name))
		}
		if v.RestURL != "" && !strings.HasPrefix(v.RestURL, "http://") && !strings.HasPrefix(v.RestURL, "https://") {
			errs = append(errs, fmt.Sprintf("venues.%s: rest_url must be an http:// or https:// URL", name))
		}
	}

	// Subscribe
	subs, err := c.Subscriptions()
	if err != nil {
		errs = append(errs, err.Error())
	}
	for _, s := range subs {
		if _, ok := c.Venues[s[0]]; !ok {
			errs = append(errs, fmt.Sprintf("subscribe: venue %q is not configured", s[0]))
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
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
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	for _, e := range c.Notify.Events {
		if !knownEvents[e] {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q (valid: reconnect_exhausted, significant_slippage)", e))
		}
	}

	// Server
	if c.Mode == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit.Requests < 0 {
			errs = append(errs, "server: rate_limit.requests must be >= 0")
		}
		if c.Server.RateLimit.Requests > 0 && c.Server.RateLimit.Window.Duration <= 0 {
			errs = append(errs, "server: rate_limit.window must be > 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
