package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/booksim/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds client control messages.
	maxMessageSize = 4096

	// sendBufferSize is the number of frames queued per client before new
	// frames are dropped for it.
	sendBufferSize = 256
)

// Frame types.
const (
	TypeStatus        = "status"
	TypeSubscriptions = "subscriptions"
	TypeBook          = "book"
	TypeFeedStatus    = "feed_status"
	TypeSimulation    = "simulation"
	TypeMessage       = "message"
)

// defaultChannels are the bus channels the hub relays. New clients start
// subscribed to all of them.
var defaultChannels = []string{
	domain.ChannelBookPrefix + "*",
	domain.ChannelFeedStatus,
	domain.ChannelSimulation,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StatusSource reports the current feed subscriptions.
type StatusSource interface {
	Statuses() []domain.FeedStatus
}

// Envelope is the JSON text frame sent to clients.
type Envelope struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// subscribeMsg is the JSON message a client sends to change its channels.
type subscribeMsg struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

// Config captures runtime metadata sent to clients on connect.
type Config struct {
	Mode      string
	StartedAt time.Time
}

// Hub relays signal bus traffic to connected WebSocket display clients. Each
// client filters by channel; a client that cannot keep up loses frames.
type Hub struct {
	bus       domain.SignalBus
	feeds     StatusSource
	logger    *slog.Logger
	mode      string
	startedAt time.Time

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a hub relaying bus to WebSocket clients. feeds may be nil.
func NewHub(bus domain.SignalBus, feeds StatusSource, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	return &Hub{
		bus:       bus,
		feeds:     feeds,
		logger:    logger.With(slog.String("component", "ws_hub")),
		mode:      mode,
		startedAt: startedAt,
		clients:   make(map[*client]struct{}),
	}
}

// Run relays the default channels until ctx is cancelled, then disconnects
// every client. New connections are refused afterwards.
func (h *Hub) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, ch := range defaultChannels {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.relay(ctx, ch)
		}()
	}

	<-ctx.Done()
	wg.Wait()

	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	return ctx.Err()
}

// relay forwards one bus subscription to the matching clients.
func (h *Hub) relay(ctx context.Context, channel string) {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("ws relay subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}

	for data := range msgs {
		exact := resolveChannel(channel, data)
		frame, err := json.Marshal(Envelope{Type: messageType(exact), Channel: exact, Payload: data})
		if err != nil {
			continue
		}
		if dropped := h.fanOut(exact, frame); dropped > 0 {
			h.logger.Debug("ws frames dropped for slow clients",
				slog.String("channel", exact),
				slog.Int("clients", dropped),
			)
		}
	}
}

// fanOut queues frame for every client subscribed to channel and returns
// how many clients had a full queue.
func (h *Hub) fanOut(channel string, frame []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for c := range h.clients {
		if !c.isSubscribed(channel) {
			continue
		}
		select {
		case c.send <- frame:
		default:
			dropped++
		}
	}
	return dropped
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Info("ws client connected", slog.Int("clients", len(h.clients)))
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.logger.Info("ws client disconnected", slog.Int("clients", len(h.clients)))
}

// resolveChannel maps a message received on a pattern subscription back to
// the concrete channel it was published on. Book payloads carry their key.
func resolveChannel(channel string, data []byte) string {
	if !strings.HasSuffix(channel, "*") || !strings.HasPrefix(channel, domain.ChannelBookPrefix) {
		return channel
	}
	var key struct {
		Venue  string `json:"venue"`
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(data, &key); err != nil || key.Venue == "" {
		return channel
	}
	return domain.BookChannel(key.Venue, key.Symbol)
}

func messageType(channel string) string {
	switch {
	case strings.HasPrefix(channel, domain.ChannelBookPrefix):
		return TypeBook
	case channel == domain.ChannelFeedStatus:
		return TypeFeedStatus
	case channel == domain.ChannelSimulation:
		return TypeSimulation
	default:
		return TypeMessage
	}
}

// HandleWS upgrades the request and starts streaming to the client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(h, conn)
	c.queue(h.statusFrame())
	if !h.add(c) {
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// statusFrame describes the process and its feeds so clients can render
// state before the first book arrives.
func (h *Hub) statusFrame() []byte {
	feeds := []domain.FeedStatus{}
	if h.feeds != nil {
		feeds = h.feeds.Statuses()
	}
	payload, err := json.Marshal(map[string]any{
		"mode":           h.mode,
		"uptime_seconds": max(int64(time.Since(h.startedAt).Seconds()), 0),
		"feeds":          feeds,
	})
	if err != nil {
		return nil
	}
	frame, err := json.Marshal(Envelope{Type: TypeStatus, Payload: payload})
	if err != nil {
		return nil
	}
	return frame
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu   sync.RWMutex
	subs map[string]bool
}

func newClient(h *Hub, conn *websocket.Conn) *client {
	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool, len(defaultChannels)),
	}
	for _, ch := range defaultChannels {
		c.subs[ch] = true
	}
	return c
}

// queue adds frame to the send queue without blocking. Once the client is
// registered it must only be called under the hub lock.
func (c *client) queue(frame []byte) {
	if frame == nil {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

// handleSubscription applies a subscribe or unsubscribe request and returns
// the resulting channel list, sorted.
func (c *client) handleSubscription(msg subscribeMsg) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, ch := range msg.Channels {
			c.subs[ch] = true
		}
	case "unsubscribe":
		for _, ch := range msg.Channels {
			delete(c.subs, ch)
		}
	}
	out := make([]string, 0, len(c.subs))
	for ch := range c.subs {
		out = append(out, ch)
	}
	slices.Sort(out)
	return out
}

// isSubscribed reports whether the client wants channel. A subscription
// ending in "*" matches by prefix.
func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.subs[channel] {
		return true
	}
	for sub := range c.subs {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("ws client closed unexpectedly", slog.String("error", err.Error()))
			}
			return
		}

		var msg subscribeMsg
		if json.Unmarshal(data, &msg) != nil || msg.Action == "" {
			continue
		}
		channels := c.handleSubscription(msg)
		payload, err := json.Marshal(map[string][]string{"channels": channels})
		if err != nil {
			continue
		}
		frame, err := json.Marshal(Envelope{Type: TypeSubscriptions, Payload: payload})
		if err != nil {
			continue
		}
		c.hub.mu.RLock()
		if _, ok := c.hub.clients[c]; ok {
			c.queue(frame)
		}
		c.hub.mu.RUnlock()
	}
}

// writePump drains the send queue as text frames and pings the client. It
// sends a close frame once the hub closes the queue.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
