package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/booksim/internal/cache/memory"
	"github.com/alanyoungcy/booksim/internal/domain"
)

type staticStatuses []domain.FeedStatus

func (s staticStatuses) Statuses() []domain.FeedStatus { return s }

func TestResolveChannel(t *testing.T) {
	book := []byte(`{"venue":"okx","symbol":"BTC-USDT","orderbook":{}}`)
	assert.Equal(t, "ch:book:okx:BTC-USDT", resolveChannel("ch:book:*", book))
	assert.Equal(t, "ch:book:*", resolveChannel("ch:book:*", []byte(`garbage`)))
	assert.Equal(t, domain.ChannelFeedStatus, resolveChannel(domain.ChannelFeedStatus, book))
}

func TestClientSubscriptionFiltering(t *testing.T) {
	c := &client{subs: map[string]bool{"ch:book:*": true}}
	assert.True(t, c.isSubscribed("ch:book:okx:BTC-USDT"))
	assert.False(t, c.isSubscribed(domain.ChannelSimulation))

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{"ch:book:*"}})
	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{"ch:book:bybit:BTCUSDT"}})
	assert.False(t, c.isSubscribed("ch:book:okx:BTC-USDT"))
	assert.True(t, c.isSubscribed("ch:book:bybit:BTCUSDT"))
}

func TestHubRelaysBusMessages(t *testing.T) {
	bus := memory.NewSignalBus()
	feeds := staticStatuses{{Venue: "okx", Symbol: "BTC-USDT", State: domain.FeedStateSubscribed}}
	hub := NewHub(bus, feeds, slog.New(slog.DiscardHandler), Config{Mode: "server"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(httpHandler(hub))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	frames := make(chan Envelope, 16)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				close(frames)
				return
			}
			var env Envelope
			if json.Unmarshal(data, &env) == nil {
				frames <- env
			}
		}
	}()

	first := <-frames
	assert.Equal(t, "status", first.Type)
	var status struct {
		Mode  string              `json:"mode"`
		Feeds []domain.FeedStatus `json:"feeds"`
	}
	require.NoError(t, json.Unmarshal(first.Payload, &status))
	assert.Equal(t, "server", status.Mode)
	require.Len(t, status.Feeds, 1)

	payload := []byte(`{"venue":"okx","symbol":"BTC-USDT"}`)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-tick.C:
			// the hub subscribes asynchronously; keep publishing until relayed
			require.NoError(t, bus.Publish(ctx, domain.BookChannel("okx", "BTC-USDT"), payload))
		case env, ok := <-frames:
			require.True(t, ok, "connection closed")
			if env.Type != "book" {
				continue
			}
			assert.Equal(t, "ch:book:okx:BTC-USDT", env.Channel)
			assert.JSONEq(t, string(payload), string(env.Payload))
			return
		case <-deadline:
			t.Fatal("no book frame relayed")
		}
	}
}

func TestHandleSubscriptionReturnsChannels(t *testing.T) {
	c := &client{subs: map[string]bool{domain.ChannelSimulation: true}}
	got := c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{"ch:book:okx:*", domain.ChannelFeedStatus}})
	assert.Equal(t, []string{"ch:book:okx:*", domain.ChannelFeedStatus, domain.ChannelSimulation}, got)

	got = c.handleSubscription(subscribeMsg{Action: "replace", Channels: []string{"x"}})
	assert.Len(t, got, 3)
}

func dialHub(t *testing.T, hub *Hub) (*websocket.Conn, <-chan Envelope) {
	t.Helper()
	srv := httptest.NewServer(httpHandler(hub))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	frames := make(chan Envelope, 16)
	go func() {
		defer close(frames)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env Envelope
			if json.Unmarshal(data, &env) == nil {
				frames <- env
			}
		}
	}()
	return conn, frames
}

func nextFrame(t *testing.T, frames <-chan Envelope) (Envelope, bool) {
	t.Helper()
	select {
	case env, ok := <-frames:
		return env, ok
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return Envelope{}, false
	}
}

func TestHubAcknowledgesSubscriptionChanges(t *testing.T) {
	hub := NewHub(memory.NewSignalBus(), nil, slog.New(slog.DiscardHandler), Config{Mode: "server"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn, frames := dialHub(t, hub)
	env, ok := nextFrame(t, frames)
	require.True(t, ok)
	require.Equal(t, TypeStatus, env.Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"action":"unsubscribe","channels":["ch:book:*","ch:simulation"]}`)))

	env, ok = nextFrame(t, frames)
	require.True(t, ok)
	assert.Equal(t, TypeSubscriptions, env.Type)
	assert.JSONEq(t, `{"channels":["ch:feed_status"]}`, string(env.Payload))
}

func TestHubDisconnectsClientsOnShutdown(t *testing.T) {
	hub := NewHub(memory.NewSignalBus(), nil, slog.New(slog.DiscardHandler), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- hub.Run(ctx) }()

	_, frames := dialHub(t, hub)
	env, ok := nextFrame(t, frames)
	require.True(t, ok)
	require.Equal(t, TypeStatus, env.Type)

	cancel()
	select {
	case err := <-stopped:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("hub did not stop")
	}
	_, ok = nextFrame(t, frames)
	assert.False(t, ok)

	_, late := dialHub(t, hub)
	_, ok = nextFrame(t, late)
	assert.False(t, ok)
}

func httpHandler(h *Hub) http.Handler { return http.HandlerFunc(h.HandleWS) }
