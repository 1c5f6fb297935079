package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/booksim/internal/domain"
	"github.com/alanyoungcy/booksim/internal/service"
)

type fakeMarketData struct {
	books      map[domain.FeedKey]domain.MarketData
	subscribed []domain.FeedKey
	statuses   []domain.FeedStatus
	cleared    bool
}

func (f *fakeMarketData) Subscribe(venue, symbol string) error {
	if venue != "okx" {
		return fmt.Errorf("feed: venue %q: %w", venue, domain.ErrUnknownVenue)
	}
	f.subscribed = append(f.subscribed, domain.FeedKey{Venue: venue, Symbol: symbol})
	return nil
}

func (f *fakeMarketData) Unsubscribe(_ context.Context, venue, symbol string) error {
	for i, k := range f.subscribed {
		if k.Venue == venue && k.Symbol == symbol {
			f.subscribed = append(f.subscribed[:i], f.subscribed[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeMarketData) UnsubscribeAll(context.Context) { f.cleared = true }

func (f *fakeMarketData) Book(_ context.Context, venue, symbol string) (domain.MarketData, error) {
	md, ok := f.books[domain.FeedKey{Venue: venue, Symbol: symbol}]
	if !ok {
		return domain.MarketData{}, domain.ErrNoBook
	}
	return md, nil
}

func (f *fakeMarketData) Books() []service.BookSummary {
	out := make([]service.BookSummary, 0, len(f.books))
	for _, md := range f.books {
		out = append(out, service.Summarize(md))
	}
	return out
}

func (f *fakeMarketData) Statuses() []domain.FeedStatus { return f.statuses }

func (f *fakeMarketData) Venues() []domain.VenueConfig {
	return []domain.VenueConfig{{Name: "okx", WebsocketURL: "wss://ws.okx.com:8443/ws/v5/public", Symbols: []string{"BTC-USDT"}}}
}

type fakeSims struct {
	recs    map[string]domain.SimulationRecord
	lastOpt domain.ListOpts
	err     error
}

func (f *fakeSims) Simulate(_ context.Context, order domain.SimulatedOrder) (domain.SimulationRecord, error) {
	if f.err != nil {
		return domain.SimulationRecord{}, f.err
	}
	if order.Quantity <= 0 {
		return domain.SimulationRecord{}, fmt.Errorf("simulation: quantity must be positive: %w", domain.ErrInvalidOrder)
	}
	rec := domain.SimulationRecord{
		ID:        "sim-1",
		Order:     order,
		Placement: domain.OrderPlacement{Position: 1, FillPercentage: 100},
	}
	f.recs[rec.ID] = rec
	return rec, nil
}

func (f *fakeSims) List(_ context.Context, opts domain.ListOpts) ([]domain.SimulationRecord, error) {
	f.lastOpt = opts
	out := make([]domain.SimulationRecord, 0, len(f.recs))
	for _, r := range f.recs {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeSims) Get(_ context.Context, id string) (domain.SimulationRecord, error) {
	r, ok := f.recs[id]
	if !ok {
		return domain.SimulationRecord{}, domain.ErrNotFound
	}
	return r, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func newMux(md *fakeMarketData, sims *fakeSims) *http.ServeMux {
	fh := NewFeedHandler(md, testLogger())
	bh := NewBookHandler(md, testLogger())
	sh := NewSimulationHandler(sims, testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/venues", fh.ListVenues)
	mux.HandleFunc("GET /api/feeds", fh.ListFeeds)
	mux.HandleFunc("POST /api/feeds", fh.Subscribe)
	mux.HandleFunc("DELETE /api/feeds", fh.UnsubscribeAll)
	mux.HandleFunc("DELETE /api/feeds/{venue}/{symbol}", fh.Unsubscribe)
	mux.HandleFunc("GET /api/books", bh.ListBooks)
	mux.HandleFunc("GET /api/books/{venue}/{symbol}", bh.GetBook)
	mux.HandleFunc("POST /api/simulate", sh.Simulate)
	mux.HandleFunc("GET /api/simulations", sh.ListSimulations)
	mux.HandleFunc("GET /api/simulations/{id}", sh.GetSimulation)
	return mux
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func okxBook() domain.MarketData {
	return domain.MarketData{
		Venue:  "okx",
		Symbol: "BTC-USDT",
		OrderBook: domain.OrderBook{
			Bids:      []domain.BookEntry{{Price: 100, Quantity: 2}},
			Asks:      []domain.BookEntry{{Price: 101, Quantity: 1}},
			Timestamp: time.UnixMilli(1700000000000).UTC(),
		},
	}
}

func TestFeedLifecycle(t *testing.T) {
	md := &fakeMarketData{}
	mux := newMux(md, &fakeSims{recs: map[string]domain.SimulationRecord{}})

	rec := do(t, mux, http.MethodPost, "/api/feeds", `{"venue":"okx","symbol":"BTC-USDT"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, md.subscribed, 1)

	rec = do(t, mux, http.MethodPost, "/api/feeds", `{"venue":"nowhere","symbol":"BTC"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, mux, http.MethodPost, "/api/feeds", `{"venue":"okx"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, mux, http.MethodPost, "/api/feeds", `{"venue":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, mux, http.MethodDelete, "/api/feeds/okx/BTC-USDT", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, mux, http.MethodDelete, "/api/feeds/okx/BTC-USDT", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, mux, http.MethodDelete, "/api/feeds", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, md.cleared)
}

func TestListVenues(t *testing.T) {
	rec := do(t, newMux(&fakeMarketData{}, &fakeSims{}), http.MethodGet, "/api/venues", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ws_url":"wss://ws.okx.com:8443/ws/v5/public"`)
}

func TestGetBook(t *testing.T) {
	md := &fakeMarketData{books: map[domain.FeedKey]domain.MarketData{
		{Venue: "okx", Symbol: "BTC-USDT"}: okxBook(),
	}}
	mux := newMux(md, &fakeSims{})

	rec := do(t, mux, http.MethodGet, "/api/books/okx/BTC-USDT", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Venue   string  `json:"venue"`
		Spread  float64 `json:"spread"`
		Crossed bool    `json:"crossed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "okx", got.Venue)
	assert.InDelta(t, 1.0, got.Spread, 1e-9)
	assert.False(t, got.Crossed)

	rec = do(t, mux, http.MethodGet, "/api/books/okx/ETH-USDT", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, mux, http.MethodGet, "/api/books", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"books":[`)
}

func TestSimulate(t *testing.T) {
	sims := &fakeSims{recs: map[string]domain.SimulationRecord{}}
	mux := newMux(&fakeMarketData{}, sims)

	rec := do(t, mux, http.MethodPost, "/api/simulate",
		`{"venue":"okx","symbol":"BTC-USDT","order_type":"market","side":"buy","quantity":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.SimulationRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "sim-1", got.ID)
	assert.Equal(t, domain.TimingImmediate, got.Order.Timing)

	rec = do(t, mux, http.MethodPost, "/api/simulate",
		`{"venue":"okx","symbol":"BTC-USDT","order_type":"market","side":"buy","quantity":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "quantity")

	rec = do(t, mux, http.MethodPost, "/api/simulate", `{"bogus":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	sims.err = fmt.Errorf("simulation_service: %w", domain.ErrNoBook)
	rec = do(t, mux, http.MethodPost, "/api/simulate",
		`{"venue":"okx","symbol":"BTC-USDT","order_type":"market","side":"buy","quantity":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	sims.err = errors.New("boom")
	rec = do(t, mux, http.MethodPost, "/api/simulate",
		`{"venue":"okx","symbol":"BTC-USDT","order_type":"market","side":"buy","quantity":1}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSimulationHistory(t *testing.T) {
	sims := &fakeSims{recs: map[string]domain.SimulationRecord{"abc": {ID: "abc"}}}
	mux := newMux(&fakeMarketData{}, sims)

	rec := do(t, mux, http.MethodGet, "/api/simulations?limit=9999&offset=5&since=2024-01-02T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 500, sims.lastOpt.Limit)
	assert.Equal(t, 5, sims.lastOpt.Offset)
	require.NotNil(t, sims.lastOpt.Since)
	assert.Nil(t, sims.lastOpt.Until)

	rec = do(t, mux, http.MethodGet, "/api/simulations/abc", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, mux, http.MethodGet, "/api/simulations/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	md := &fakeMarketData{statuses: []domain.FeedStatus{
		{Venue: "okx", Symbol: "BTC-USDT", State: domain.FeedStateSubscribed},
		{Venue: "bybit", Symbol: "BTCUSDT", State: domain.FeedStateConnecting},
	}}

	h := NewHealthHandler(md, map[string]Pinger{"redis": fakePinger{}, "postgres": nil}, testLogger())
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status       string            `json:"status"`
		Feeds        int               `json:"feeds"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 2, body.Feeds)
	assert.Equal(t, map[string]string{"redis": "ok"}, body.Dependencies)

	h = NewHealthHandler(md, map[string]Pinger{"redis": fakePinger{err: errors.New("dial tcp")}}, testLogger())
	rec = httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(fmt.Errorf("x: %w", domain.ErrInvalidOrder)))
	assert.Equal(t, http.StatusNotFound, statusFor(domain.ErrNoBook))
	assert.Equal(t, http.StatusTooManyRequests, statusFor(domain.ErrRateLimited))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("x")))
}
