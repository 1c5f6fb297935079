package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/booksim/internal/server"
	"github.com/alanyoungcy/booksim/internal/server/handler"
	"github.com/alanyoungcy/booksim/internal/server/ws"
	"github.com/alanyoungcy/booksim/internal/service"
)

const (
	shutdownTimeout = 10 * time.Second
	monitorInterval = 5 * time.Second
)

// ServerMode streams the subscribed feeds and serves the HTTP API and the
// WebSocket hub until ctx is cancelled.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode", slog.Int("port", a.cfg.Server.Port))

	g, ctx := errgroup.WithContext(ctx)

	a.startAlerts(ctx, g, deps)

	logger := slog.Default()
	hub := ws.NewHub(deps.SignalBus, deps.MarketData, logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	pingers := map[string]handler.Pinger{}
	if deps.Redis != nil {
		pingers["redis"] = deps.Redis
	}
	if deps.Postgres != nil {
		pingers["postgres"] = deps.Postgres
	}

	srvCfg := server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		RateLimitCount:  a.cfg.Server.RateLimit.Requests,
		RateLimitWindow: a.cfg.Server.RateLimit.Window.Duration,
	}
	if deps.RateLimiter != nil {
		srvCfg.RateLimiter = deps.RateLimiter
	}

	srv := server.NewServer(srvCfg, server.Handlers{
		Health:      handler.NewHealthHandler(deps.MarketData, pingers, logger),
		Feeds:       handler.NewFeedHandler(deps.MarketData, logger),
		Books:       handler.NewBookHandler(deps.MarketData, logger),
		Simulations: handler.NewSimulationHandler(deps.Simulations, logger),
	}, hub, logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// MonitorMode streams the subscribed feeds without an HTTP surface and logs
// a top-of-book line per key on a fixed interval.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startAlerts(ctx, g, deps)

	g.Go(func() error {
		ticker := time.NewTicker(monitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				a.logBooks(ctx, deps.MarketData.Books())
				if deps.Feeds.Len() == 0 {
					a.logger.WarnContext(ctx, "monitor mode: no feeds subscribed")
				}
			}
		}
	})

	return g.Wait()
}

// startAlerts runs the alert service when a notification sender is set.
func (a *App) startAlerts(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !deps.Notifier.Enabled() {
		return
	}
	g.Go(func() error {
		return deps.Alerts.Run(ctx)
	})
}

func (a *App) logBooks(ctx context.Context, books []service.BookSummary) {
	for _, b := range books {
		attrs := []slog.Attr{
			slog.String("venue", b.Venue),
			slog.String("symbol", b.Symbol),
			slog.Float64("spread", b.Spread),
			slog.Float64("imbalance", b.Imbalance),
			slog.Time("last_update", b.LastUpdate),
		}
		if b.BestBid != nil {
			attrs = append(attrs, slog.Float64("best_bid", b.BestBid.Price))
		}
		if b.BestAsk != nil {
			attrs = append(attrs, slog.Float64("best_ask", b.BestAsk.Price))
		}
		if b.Crossed {
			attrs = append(attrs, slog.Bool("crossed", true))
		}
		a.logger.LogAttrs(ctx, slog.LevelInfo, "book", attrs...)
	}
}
