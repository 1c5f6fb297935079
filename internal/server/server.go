package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/booksim/internal/domain"
	"github.com/alanyoungcy/booksim/internal/server/handler"
	"github.com/alanyoungcy/booksim/internal/server/middleware"
	"github.com/alanyoungcy/booksim/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string

	// RateLimiter guards POST /api/simulate when set.
	RateLimiter     domain.RateLimiter
	RateLimitCount  int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health      *handler.HealthHandler
	Feeds       *handler.FeedHandler
	Books       *handler.BookHandler
	Simulations *handler.SimulationHandler
}

// Server is the HTTP + WebSocket API for the book simulator.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. wsHub may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           Routes(cfg, handlers, wsHub, logger),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Routes builds the request multiplexer wrapped in the middleware chain.
func Routes(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/venues", handlers.Feeds.ListVenues)
	mux.HandleFunc("GET /api/feeds", handlers.Feeds.ListFeeds)
	mux.HandleFunc("POST /api/feeds", handlers.Feeds.Subscribe)
	mux.HandleFunc("DELETE /api/feeds", handlers.Feeds.UnsubscribeAll)
	mux.HandleFunc("DELETE /api/feeds/{venue}/{symbol}", handlers.Feeds.Unsubscribe)

	mux.HandleFunc("GET /api/books", handlers.Books.ListBooks)
	mux.HandleFunc("GET /api/books/{venue}/{symbol}", handlers.Books.GetBook)

	var simulate http.Handler = http.HandlerFunc(handlers.Simulations.Simulate)
	if cfg.RateLimiter != nil && cfg.RateLimitCount > 0 {
		simulate = middleware.RateLimit(cfg.RateLimiter, "simulate", cfg.RateLimitCount, cfg.RateLimitWindow)(simulate)
	}
	mux.Handle("POST /api/simulate", simulate)
	mux.HandleFunc("GET /api/simulations", handlers.Simulations.ListSimulations)
	mux.HandleFunc("GET /api/simulations/{id}", handlers.Simulations.GetSimulation)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
