package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/booksim/internal/cache/memory"
	"github.com/alanyoungcy/booksim/internal/config"
	"github.com/alanyoungcy/booksim/internal/domain"
)

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestNewRegistryUsesVenueKeys(t *testing.T) {
	cfg := config.Defaults()
	cfg.Venues["okx-demo"] = config.VenueConfig{
		Adapter: "okx",
		WSURL:   "wss://wspap.okx.com:8443/ws/v5/public",
		Symbols: []string{"BTC-USDT"},
	}
	cfg.Venues["local"] = config.VenueConfig{
		Adapter: "generic",
		WSURL:   "ws://localhost:9000/ws",
	}

	reg, err := NewRegistry(&cfg, testLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"bybit", "deribit", "local", "okx", "okx-demo"}, reg.List())

	adapter, vcfg, err := reg.Get("okx-demo")
	require.NoError(t, err)
	assert.Equal(t, "okx", adapter.Venue())
	assert.Equal(t, "wss://wspap.okx.com:8443/ws/v5/public", vcfg.WebsocketURL)

	adapter, _, err = reg.Get("local")
	require.NoError(t, err)
	assert.Equal(t, "local", adapter.Venue())

	for _, name := range reg.List() {
		adapter, _, err := reg.Get(name)
		require.NoError(t, err)
		assert.Implements(t, (*domain.SnapshotAdapter)(nil), adapter, name)
	}
}

func TestNewAdapterRejectsUnknown(t *testing.T) {
	_, err := NewAdapter("kraken", config.VenueConfig{}, 10, testLogger())
	assert.ErrorIs(t, err, domain.ErrUnknownVenue)
}

func TestWireWithoutBackends(t *testing.T) {
	cfg := config.Defaults()
	deps, cleanup, err := Wire(context.Background(), &cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, deps.Redis)
	assert.Nil(t, deps.BookCache)
	assert.Nil(t, deps.RateLimiter)
	assert.Nil(t, deps.SimulationStore)
	assert.NotNil(t, deps.Snapshots)
	assert.IsType(t, &memory.SignalBus{}, deps.SignalBus)
	assert.Len(t, deps.MarketData.Venues(), 3)
}

func TestWireNotifierDisabledByDefault(t *testing.T) {
	cfg := config.Defaults()
	deps, cleanup, err := Wire(context.Background(), &cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	require.NotNil(t, deps.Notifier)
	assert.False(t, deps.Notifier.Enabled())
	assert.NotNil(t, deps.Alerts)
}
