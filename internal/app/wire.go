package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/booksim/internal/cache/memory"
	"github.com/alanyoungcy/booksim/internal/cache/redis"
	"github.com/alanyoungcy/booksim/internal/config"
	"github.com/alanyoungcy/booksim/internal/domain"
	"github.com/alanyoungcy/booksim/internal/feed"
	"github.com/alanyoungcy/booksim/internal/notify"
	"github.com/alanyoungcy/booksim/internal/platform/bybit"
	"github.com/alanyoungcy/booksim/internal/platform/deribit"
	"github.com/alanyoungcy/booksim/internal/platform/generic"
	"github.com/alanyoungcy/booksim/internal/platform/okx"
	"github.com/alanyoungcy/booksim/internal/service"
	"github.com/alanyoungcy/booksim/internal/store/postgres"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Registry  *feed.Registry
	Feeds     *feed.Manager
	Snapshots *feed.SnapshotClient

	// Optional backing services; nil when disabled.
	Redis           *redis.Client
	Postgres        *postgres.Client
	BookCache       domain.BookCache
	RateLimiter     domain.RateLimiter
	SimulationStore domain.SimulationStore

	SignalBus domain.SignalBus

	MarketData  *service.MarketDataService
	Simulations *service.SimulationService
	Alerts      *service.AlertService

	// Notifier is always non-nil; it drops alerts when no sender is set.
	Notifier *notify.Notifier
}

// NewAdapter builds the venue adapter for the venue registered under key.
func NewAdapter(key string, v config.VenueConfig, depth int, logger *slog.Logger) (domain.VenueAdapter, error) {
	switch v.AdapterName(key) {
	case okx.Venue:
		return okx.NewAdapter(depth, logger), nil
	case bybit.Venue:
		return bybit.NewAdapter(depth, logger), nil
	case deribit.Venue:
		return deribit.NewAdapter(depth, logger), nil
	case "generic":
		return generic.NewAdapter(key, depth, logger), nil
	default:
		return nil, fmt.Errorf("venue %s: adapter %q: %w", key, v.AdapterName(key), domain.ErrUnknownVenue)
	}
}

// NewRegistry registers an adapter for every configured venue.
func NewRegistry(cfg *config.Config, logger *slog.Logger) (*feed.Registry, error) {
	reg := feed.NewRegistry()
	for _, key := range cfg.VenueNames() {
		v := cfg.Venues[key]
		adapter, err := NewAdapter(key, v, cfg.Feed.MaxDepth, logger)
		if err != nil {
			return nil, err
		}
		reg.Register(adapter, domain.VenueConfig{
			Name:         key,
			WebsocketURL: v.WSURL,
			RestURL:      v.RestURL,
			Symbols:      append([]string(nil), v.Symbols...),
		})
	}
	return reg, nil
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (optional simulation history) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.Postgres = pgClient
		deps.SimulationStore = postgres.NewSimulationStore(pgClient.Pool())
	}

	// --- Redis (optional book mirror, bus, and rate limiter) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			BookTTL:    cfg.Redis.BookTTL.Duration,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Redis = redisClient
		deps.BookCache = redis.NewBookCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	} else {
		deps.SignalBus = memory.NewSignalBus()
	}

	// --- Feeds ---
	reg, err := NewRegistry(cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	deps.Registry = reg
	deps.Feeds = feed.NewManager(reg, feed.WebsocketDialer{
		HandshakeTimeout: cfg.Feed.HandshakeTimeout.Duration,
	}, feed.ManagerConfig{
		BaseDelay:   cfg.Feed.ReconnectBaseDelay.Duration,
		MaxAttempts: cfg.Feed.MaxReconnectAttempts,
		PingPeriod:  cfg.Feed.PingPeriod.Duration,
	}, logger)
	closers = append(closers, deps.Feeds.UnsubscribeAll)

	deps.Snapshots = feed.NewSnapshotClient(reg, cfg.Feed.RestTimeout.Duration, logger)
	deps.MarketData = service.NewMarketDataService(deps.Feeds, reg, deps.BookCache, deps.Snapshots, deps.SignalBus, logger)
	deps.Simulations = service.NewSimulationService(deps.MarketData, deps.SimulationStore, deps.SignalBus, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender("", cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Alerts = service.NewAlertService(deps.SignalBus, deps.Notifier, logger)

	return deps, cleanup, nil
}
