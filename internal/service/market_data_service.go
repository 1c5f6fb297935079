package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/booksim/internal/domain"
	"github.com/alanyoungcy/booksim/internal/feed"
	"github.com/alanyoungcy/booksim/internal/simulation"
)

// mirrorTimeout bounds cache writes and bus publishes made from a feed
// connection goroutine.
const mirrorTimeout = 2 * time.Second

// BookSummary is a book snapshot with its derived top-of-book metrics.
type BookSummary struct {
	domain.MarketData
	BestBid   *domain.BookEntry `json:"best_bid,omitempty"`
	BestAsk   *domain.BookEntry `json:"best_ask,omitempty"`
	Spread    float64           `json:"spread"`
	Imbalance float64           `json:"imbalance"`
	Crossed   bool              `json:"crossed"`
}

// Summarize computes the top-of-book metrics for md.
func Summarize(md domain.MarketData) BookSummary {
	s := BookSummary{
		MarketData: md,
		Spread:     simulation.Spread(md.OrderBook),
		Imbalance:  simulation.Imbalance(md.OrderBook),
		Crossed:    simulation.Crossed(md.OrderBook),
	}
	if bid, ok := md.OrderBook.BestBid(); ok {
		s.BestBid = &bid
	}
	if ask, ok := md.OrderBook.BestAsk(); ok {
		s.BestAsk = &ask
	}
	return s
}

// SnapshotSource fetches a book on demand, e.g. from a venue REST endpoint.
type SnapshotSource interface {
	Fetch(ctx context.Context, venue, symbol string) (domain.MarketData, error)
}

// MarketDataService sits between the feed manager and everything that wants
// books: it mirrors each update into the book cache, fans it out on the
// signal bus, and answers book lookups for the API and the simulator.
type MarketDataService struct {
	feeds    *feed.Manager
	registry *feed.Registry
	cache     domain.BookCache
	snapshots SnapshotSource
	bus       domain.SignalBus
	logger    *slog.Logger

	mu      sync.Mutex
	crossed map[domain.FeedKey]bool
}

// NewMarketDataService creates a MarketDataService and registers it for
// updates and status changes on feeds. cache and snapshots may be nil.
func NewMarketDataService(
	feeds *feed.Manager,
	registry *feed.Registry,
	cache domain.BookCache,
	snapshots SnapshotSource,
	bus domain.SignalBus,
	logger *slog.Logger,
) *MarketDataService {
	s := &MarketDataService{
		feeds:     feeds,
		registry:  registry,
		cache:     cache,
		snapshots: snapshots,
		bus:       bus,
		logger:    logger.With(slog.String("component", "market_data_service")),
		crossed:   make(map[domain.FeedKey]bool),
	}
	feeds.OnUpdate(func(md domain.MarketData) {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := s.HandleUpdate(ctx, md); err != nil {
			s.logger.Warn("market data update failed",
				slog.String("venue", md.Venue),
				slog.String("symbol", md.Symbol),
				slog.String("error", err.Error()),
			)
		}
	})
	feeds.OnStatus(func(st domain.FeedStatus) {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		s.HandleStatus(ctx, st)
	})
	return s
}

// HandleUpdate mirrors md into the book cache and publishes it on the book
// channel of its key. A crossed book is logged once per transition.
func (s *MarketDataService) HandleUpdate(ctx context.Context, md domain.MarketData) error {
	s.trackCrossed(md)

	if s.cache != nil {
		if err := s.cache.SetMarketData(ctx, md); err != nil {
			return fmt.Errorf("market_data_service: cache %s: %w", md.Key(), err)
		}
	}

	payload, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("market_data_service: marshal %s: %w", md.Key(), err)
	}
	if pubErr := s.bus.Publish(ctx, domain.BookChannel(md.Venue, md.Symbol), payload); pubErr != nil {
		s.logger.WarnContext(ctx, "publish book update failed",
			slog.String("venue", md.Venue),
			slog.String("symbol", md.Symbol),
			slog.String("error", pubErr.Error()),
		)
	}
	return nil
}

// HandleStatus publishes a connection status change.
func (s *MarketDataService) HandleStatus(ctx context.Context, st domain.FeedStatus) {
	s.logger.Debug("feed status",
		slog.String("venue", st.Venue),
		slog.String("symbol", st.Symbol),
		slog.String("state", string(st.State)),
		slog.Int("attempt", st.Attempt),
	)
	payload, err := json.Marshal(st)
	if err != nil {
		return
	}
	if pubErr := s.bus.Publish(ctx, domain.ChannelFeedStatus, payload); pubErr != nil {
		s.logger.WarnContext(ctx, "publish feed status failed", slog.String("error", pubErr.Error()))
	}
}

func (s *MarketDataService) trackCrossed(md domain.MarketData) {
	crossed := simulation.Crossed(md.OrderBook)
	key := md.Key()

	s.mu.Lock()
	was := s.crossed[key]
	s.crossed[key] = crossed
	s.mu.Unlock()

	if crossed && !was {
		bid, _ := md.OrderBook.BestBid()
		ask, _ := md.OrderBook.BestAsk()
		s.logger.Warn("crossed book received",
			slog.String("venue", md.Venue),
			slog.String("symbol", md.Symbol),
			slog.Float64("best_bid", bid.Price),
			slog.Float64("best_ask", ask.Price),
		)
	}
}

// Subscribe starts streaming (venue, symbol).
func (s *MarketDataService) Subscribe(venue, symbol string) error {
	if err := s.feeds.Subscribe(venue, symbol); err != nil {
		return fmt.Errorf("market_data_service: subscribe: %w", err)
	}
	return nil
}

// Unsubscribe stops streaming (venue, symbol) and drops its cached book. It
// returns domain.ErrNotFound when the key was not subscribed.
func (s *MarketDataService) Unsubscribe(ctx context.Context, venue, symbol string) error {
	if !s.feeds.Unsubscribe(venue, symbol) {
		return fmt.Errorf("market_data_service: %s:%s: %w", venue, symbol, domain.ErrNotFound)
	}
	s.forget(ctx, domain.FeedKey{Venue: venue, Symbol: symbol})
	return nil
}

// UnsubscribeAll stops every stream and drops the cached books.
func (s *MarketDataService) UnsubscribeAll(ctx context.Context) {
	keys := make([]domain.FeedKey, 0)
	for _, st := range s.feeds.Statuses() {
		keys = append(keys, domain.FeedKey{Venue: st.Venue, Symbol: st.Symbol})
	}
	s.feeds.UnsubscribeAll()
	for _, k := range keys {
		s.forget(ctx, k)
	}
}

func (s *MarketDataService) forget(ctx context.Context, key domain.FeedKey) {
	s.mu.Lock()
	delete(s.crossed, key)
	s.mu.Unlock()

	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, key.Venue, key.Symbol); err != nil {
		s.logger.WarnContext(ctx, "drop cached book failed",
			slog.String("venue", key.Venue),
			slog.String("symbol", key.Symbol),
			slog.String("error", err.Error()),
		)
	}
}

// Book returns the latest book for (venue, symbol). The in-process snapshot
// wins; the book cache and then the venue REST snapshot are consulted only
// when this process has no streamed book for the key. It fails with
// domain.ErrNoBook when none of them has one.
func (s *MarketDataService) Book(ctx context.Context, venue, symbol string) (domain.MarketData, error) {
	if md, ok := s.feeds.Snapshot(venue, symbol); ok {
		return md, nil
	}
	if s.cache != nil {
		md, err := s.cache.GetMarketData(ctx, venue, symbol)
		if err == nil {
			return md, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.MarketData{}, fmt.Errorf("market_data_service: cached book %s:%s: %w", venue, symbol, err)
		}
	}
	if s.snapshots != nil {
		md, err := s.snapshots.Fetch(ctx, venue, symbol)
		if err == nil {
			return md, nil
		}
		if !errors.Is(err, domain.ErrNoBook) {
			s.logger.WarnContext(ctx, "rest snapshot failed",
				slog.String("venue", venue),
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}
	return domain.MarketData{}, fmt.Errorf("market_data_service: %s:%s: %w", venue, symbol, domain.ErrNoBook)
}

// Books returns a summary of every streamed book.
func (s *MarketDataService) Books() []BookSummary {
	snaps := s.feeds.Snapshots()
	out := make([]BookSummary, 0, len(snaps))
	for _, md := range snaps {
		out = append(out, Summarize(md))
	}
	return out
}

// Statuses returns the status of every subscription.
func (s *MarketDataService) Statuses() []domain.FeedStatus {
	return s.feeds.Statuses()
}

// Venues returns the configured venues.
func (s *MarketDataService) Venues() []domain.VenueConfig {
	return s.registry.Configs()
}
