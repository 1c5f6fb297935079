package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/booksim/internal/domain"
	"github.com/alanyoungcy/booksim/internal/service"
)

// MarketDataService defines what the feed and book handlers need from the
// service layer.
type MarketDataService interface {
	Subscribe(venue, symbol string) error
	Unsubscribe(ctx context.Context, venue, symbol string) error
	UnsubscribeAll(ctx context.Context)
	Book(ctx context.Context, venue, symbol string) (domain.MarketData, error)
	Books() []service.BookSummary
	Statuses() []domain.FeedStatus
	Venues() []domain.VenueConfig
}

// FeedHandler manages feed subscriptions over HTTP.
type FeedHandler struct {
	md     MarketDataService
	logger *slog.Logger
}

// NewFeedHandler creates a FeedHandler.
func NewFeedHandler(md MarketDataService, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{md: md, logger: logger}
}

type subscribeRequest struct {
	Venue  string `json:"venue"`
	Symbol string `json:"symbol"`
}

// ListVenues returns the configured venues and their default symbols.
// GET /api/venues
func (h *FeedHandler) ListVenues(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"venues": h.md.Venues()})
}

// ListFeeds returns the status of every subscription.
// GET /api/feeds
func (h *FeedHandler) ListFeeds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"feeds": h.md.Statuses()})
}

// Subscribe starts a feed. Subscribing to an active key is a no-op.
// POST /api/feeds {"venue":"okx","symbol":"BTC-USDT"}
func (h *FeedHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Venue = strings.TrimSpace(req.Venue)
	req.Symbol = strings.TrimSpace(req.Symbol)
	if req.Venue == "" || req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "venue and symbol are required")
		return
	}

	if err := h.md.Subscribe(req.Venue, req.Symbol); err != nil {
		if errors.Is(err, domain.ErrUnknownVenue) {
			writeError(w, http.StatusBadRequest, "unknown venue "+req.Venue)
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: subscribe failed",
			slog.String("venue", req.Venue),
			slog.String("symbol", req.Symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}
	writeJSON(w, http.StatusAccepted, domain.FeedKey{Venue: req.Venue, Symbol: req.Symbol})
}

// Unsubscribe stops one feed.
// DELETE /api/feeds/{venue}/{symbol}
func (h *FeedHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	venue, symbol := r.PathValue("venue"), r.PathValue("symbol")
	if err := h.md.Unsubscribe(r.Context(), venue, symbol); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "feed not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to unsubscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnsubscribeAll stops every feed.
// DELETE /api/feeds
func (h *FeedHandler) UnsubscribeAll(w http.ResponseWriter, r *http.Request) {
	h.md.UnsubscribeAll(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
