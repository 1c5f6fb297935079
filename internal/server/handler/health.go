package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/booksim/internal/domain"
)

// Pinger is a backing service whose reachability is reported by the health
// check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// FeedCounter reports subscription state for the health check.
type FeedCounter interface {
	Statuses() []domain.FeedStatus
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	feeds     FeedCounter
	deps      map[string]Pinger
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler. deps maps a dependency name to its
// pinger; nil entries are skipped.
func NewHealthHandler(feeds FeedCounter, deps map[string]Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		feeds:     feeds,
		deps:      deps,
		startedAt: time.Now(),
		logger:    logger,
	}
}

// HealthCheck reports process liveness, feed states, and backing services.
// A failing dependency degrades the status but still answers 200.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	states := make(map[domain.FeedState]int)
	statuses := h.feeds.Statuses()
	for _, st := range statuses {
		states[st.State]++
	}

	status := "ok"
	deps := make(map[string]string, len(h.deps))
	for name, p := range h.deps {
		if p == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := p.Ping(ctx)
		cancel()
		if err != nil {
			h.logger.WarnContext(r.Context(), "health: dependency unreachable",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			deps[name] = "unreachable"
			status = "degraded"
			continue
		}
		deps[name] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"feeds":          len(statuses),
		"feed_states":    states,
		"dependencies":   deps,
	})
}
