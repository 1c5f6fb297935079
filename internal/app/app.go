// Package app provides the top-level application lifecycle. It wires the feed
// manager, optional Redis and Postgres backends, and the services, then runs
// the configured mode until the context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/booksim/internal/config"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the initial subscriptions, runs the
// selected mode, and blocks until ctx is cancelled. On return it runs all
// registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
		slog.Any("config", config.RedactedConfig(a.cfg)),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	if err := a.subscribeInitial(ctx, deps); err != nil {
		return err
	}

	switch strings.ToLower(a.cfg.Mode) {
	case "server":
		return a.ServerMode(ctx, deps)
	case "monitor":
		return a.MonitorMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// subscribeInitial opens the feeds listed in the subscribe config.
func (a *App) subscribeInitial(ctx context.Context, deps *Dependencies) error {
	subs, err := a.cfg.Subscriptions()
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	for _, s := range subs {
		if err := deps.MarketData.Subscribe(s[0], s[1]); err != nil {
			return fmt.Errorf("app: initial subscribe %s:%s: %w", s[0], s[1], err)
		}
	}
	if len(subs) > 0 {
		a.logger.InfoContext(ctx, "initial subscriptions opened", slog.Int("count", len(subs)))
	}
	return nil
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
