package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/booksim/internal/cache/memory"
	"github.com/alanyoungcy/booksim/internal/domain"
	"github.com/alanyoungcy/booksim/internal/feed"
	"github.com/alanyoungcy/booksim/internal/platform/okx"
)

type memCache struct {
	mu    sync.Mutex
	books map[domain.FeedKey]domain.MarketData
}

func newMemCache() *memCache { return &memCache{books: make(map[domain.FeedKey]domain.MarketData)} }

func (c *memCache) SetMarketData(_ context.Context, md domain.MarketData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.books[md.Key()] = md
	return nil
}

func (c *memCache) GetMarketData(_ context.Context, venue, symbol string) (domain.MarketData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	md, ok := c.books[domain.FeedKey{Venue: venue, Symbol: symbol}]
	if !ok {
		return domain.MarketData{}, domain.ErrNotFound
	}
	return md, nil
}

func (c *memCache) Delete(_ context.Context, venue, symbol string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.books, domain.FeedKey{Venue: venue, Symbol: symbol})
	return nil
}

func newMarketDataService(cache domain.BookCache, bus domain.SignalBus) *MarketDataService {
	reg := feed.NewRegistry()
	mgr := feed.NewManager(reg, feed.WebsocketDialer{}, feed.ManagerConfig{}, testLogger())
	return NewMarketDataService(mgr, reg, cache, nil, bus, testLogger())
}

func TestHandleUpdateMirrorsAndPublishes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := memory.NewSignalBus()
	ch, err := bus.Subscribe(ctx, domain.ChannelBookPrefix+"*")
	require.NoError(t, err)

	cache := newMemCache()
	svc := newMarketDataService(cache, bus)

	md := sampleBook()
	require.NoError(t, svc.HandleUpdate(ctx, md))

	got, err := svc.Book(ctx, "okx", "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, md.OrderBook.Bids, got.OrderBook.Bids)

	select {
	case payload := <-ch:
		var published domain.MarketData
		require.NoError(t, json.Unmarshal(payload, &published))
		assert.Equal(t, "BTC-USDT", published.Symbol)
	case <-time.After(time.Second):
		t.Fatal("book not published")
	}
}

func TestBookWithoutSource(t *testing.T) {
	svc := newMarketDataService(nil, memory.NewSignalBus())
	_, err := svc.Book(context.Background(), "okx", "BTC-USDT")
	assert.ErrorIs(t, err, domain.ErrNoBook)

	svc = newMarketDataService(newMemCache(), memory.NewSignalBus())
	_, err = svc.Book(context.Background(), "okx", "BTC-USDT")
	assert.ErrorIs(t, err, domain.ErrNoBook)
}

func TestBookFallsBackToRestSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v5/market/books" || r.URL.Query().Get("instId") != "BTC-USDT" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"code":"0","msg":"","data":[{"asks":[["101","1","0","1"]],"bids":[["100","2","0","1"]],"ts":"1700000000000"}]}`))
	}))
	defer srv.Close()

	reg := feed.NewRegistry()
	reg.Register(okx.NewAdapter(15, testLogger()), domain.VenueConfig{Name: "okx", RestURL: srv.URL})
	mgr := feed.NewManager(reg, feed.WebsocketDialer{}, feed.ManagerConfig{}, testLogger())
	snaps := feed.NewSnapshotClient(reg, time.Second, testLogger())
	svc := NewMarketDataService(mgr, reg, newMemCache(), snaps, memory.NewSignalBus(), testLogger())

	md, err := svc.Book(context.Background(), "okx", "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, 100.0, md.OrderBook.Bids[0].Price)
	assert.Equal(t, 101.0, md.OrderBook.Asks[0].Price)

	_, err = svc.Book(context.Background(), "okx", "ETH-USDT")
	assert.ErrorIs(t, err, domain.ErrNoBook)

	_, err = svc.Book(context.Background(), "nowhere", "BTC")
	assert.ErrorIs(t, err, domain.ErrNoBook)
}

func TestUnsubscribeUnknownKey(t *testing.T) {
	svc := newMarketDataService(nil, memory.NewSignalBus())
	err := svc.Unsubscribe(context.Background(), "okx", "BTC-USDT")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = svc.Subscribe("nowhere", "BTC")
	assert.ErrorIs(t, err, domain.ErrUnknownVenue)
}

func TestCrossedTrackedPerTransition(t *testing.T) {
	svc := newMarketDataService(nil, memory.NewSignalBus())
	md := sampleBook()
	md.OrderBook.Bids = []domain.BookEntry{{Price: 102, Quantity: 1}}

	require.NoError(t, svc.HandleUpdate(context.Background(), md))
	svc.mu.Lock()
	assert.True(t, svc.crossed[md.Key()])
	svc.mu.Unlock()

	require.NoError(t, svc.HandleUpdate(context.Background(), sampleBook()))
	svc.mu.Lock()
	assert.False(t, svc.crossed[md.Key()])
	svc.mu.Unlock()
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleBook())
	require.NotNil(t, s.BestBid)
	require.NotNil(t, s.BestAsk)
	assert.Equal(t, 100.0, s.BestBid.Price)
	assert.Equal(t, 101.0, s.BestAsk.Price)
	assert.InDelta(t, 1.0, s.Spread, 1e-9)

	empty := Summarize(domain.MarketData{Venue: "okx", Symbol: "X"})
	assert.Nil(t, empty.BestBid)
	assert.Zero(t, empty.Spread)
}
