package feed

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/booksim/internal/domain"
)

// UpdateHandler receives every decoded book as MarketData.
type UpdateHandler func(domain.MarketData)

// StatusHandler receives every connection state transition.
type StatusHandler func(domain.FeedStatus)

// ManagerConfig carries the reconnection settings shared by all connections.
type ManagerConfig struct {
	BaseDelay   time.Duration
	MaxAttempts int
	PingPeriod  time.Duration
}

type entry struct {
	conn     *Connection
	snapshot atomic.Pointer[domain.MarketData]
	removed  atomic.Bool
}

// Manager owns one Connection per (venue, symbol) and keeps the latest book
// for each. Map mutations are serialized by mu; connections are always closed
// outside of it.
type Manager struct {
	registry *Registry
	dialer   Dialer
	cfg      ManagerConfig
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	conns map[domain.FeedKey]*entry

	handlerMu sync.RWMutex
	onUpdate  []UpdateHandler
	onStatus  []StatusHandler
}

// NewManager creates a Manager dialing venues from registry through dialer.
func NewManager(registry *Registry, dialer Dialer, cfg ManagerConfig, logger *slog.Logger) *Manager {
	return &Manager{
		registry: registry,
		dialer:   dialer,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "feed_manager")),
		now:      time.Now,
		conns:    make(map[domain.FeedKey]*entry),
	}
}

// OnUpdate registers a handler called for every decoded book. Handlers run on
// the connection goroutine of the key, in transport order.
func (m *Manager) OnUpdate(h UpdateHandler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.onUpdate = append(m.onUpdate, h)
}

// OnStatus registers a handler called for every connection state change.
func (m *Manager) OnStatus(h StatusHandler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.onStatus = append(m.onStatus, h)
}

// Subscribe opens a connection for (venue, symbol). It is a no-op when a live
// connection already exists for the key; a connection that has exhausted its
// reconnect attempts is replaced. Unknown venues fail with
// domain.ErrUnknownVenue.
func (m *Manager) Subscribe(venue, symbol string) error {
	adapter, vcfg, err := m.registry.Get(venue)
	if err != nil {
		return err
	}
	key := domain.FeedKey{Venue: venue, Symbol: symbol}

	m.mu.Lock()
	var stale *entry
	if e, ok := m.conns[key]; ok {
		if e.conn.Status().State != domain.FeedStateReconnectExhausted {
			m.mu.Unlock()
			return nil
		}
		e.removed.Store(true)
		stale = e
	}

	e := &entry{}
	e.conn = newConnection(key, adapter, m.dialer, ConnectionConfig{
		URL:         vcfg.WebsocketURL,
		BaseDelay:   m.cfg.BaseDelay,
		MaxAttempts: m.cfg.MaxAttempts,
		PingPeriod:  m.cfg.PingPeriod,
	}, func(book domain.OrderBook) {
		m.handleBook(e, key, book)
	}, func(st domain.FeedStatus) {
		if !e.removed.Load() {
			m.emitStatus(st)
		}
	}, m.logger)
	m.conns[key] = e
	e.conn.Open()
	m.mu.Unlock()

	if stale != nil {
		stale.conn.Close()
	}
	m.logger.Info("feed subscription added",
		slog.String("venue", venue),
		slog.String("symbol", symbol),
	)
	return nil
}

// Unsubscribe closes the connection for (venue, symbol), cancelling any
// pending reconnect, and drops its snapshot. It reports whether the key was
// subscribed.
func (m *Manager) Unsubscribe(venue, symbol string) bool {
	key := domain.FeedKey{Venue: venue, Symbol: symbol}

	m.mu.Lock()
	e, ok := m.conns[key]
	if ok {
		delete(m.conns, key)
		e.removed.Store(true)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	e.conn.Close()
	m.emitStatus(e.conn.Status())
	m.logger.Info("feed subscription removed",
		slog.String("venue", venue),
		slog.String("symbol", symbol),
	)
	return true
}

// UnsubscribeAll closes every connection and drops all snapshots.
func (m *Manager) UnsubscribeAll() {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.conns))
	for key, e := range m.conns {
		e.removed.Store(true)
		entries = append(entries, e)
		delete(m.conns, key)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			e.conn.Close()
			m.emitStatus(e.conn.Status())
		}(e)
	}
	wg.Wait()
	if len(entries) > 0 {
		m.logger.Info("all feed subscriptions removed", slog.Int("count", len(entries)))
	}
}

// Snapshot returns the latest book for (venue, symbol), or false when the key
// is not subscribed or has not produced a book yet.
func (m *Manager) Snapshot(venue, symbol string) (domain.MarketData, bool) {
	m.mu.Lock()
	e, ok := m.conns[domain.FeedKey{Venue: venue, Symbol: symbol}]
	m.mu.Unlock()
	if !ok {
		return domain.MarketData{}, false
	}
	md := e.snapshot.Load()
	if md == nil {
		return domain.MarketData{}, false
	}
	return *md, true
}

// Snapshots returns the latest book of every subscribed key that has one.
func (m *Manager) Snapshots() []domain.MarketData {
	out := make([]domain.MarketData, 0)
	for _, e := range m.entries() {
		if md := e.snapshot.Load(); md != nil {
			out = append(out, *md)
		}
	}
	return out
}

// Statuses returns the status of every subscribed key, sorted by venue then
// symbol.
func (m *Manager) Statuses() []domain.FeedStatus {
	entries := m.entries()
	out := make([]domain.FeedStatus, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.conn.Status())
	}
	return out
}

// Len returns the number of subscribed keys.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

func (m *Manager) entries() []*entry {
	m.mu.Lock()
	keys := make([]domain.FeedKey, 0, len(m.conns))
	for k := range m.conns {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Venue != keys[j].Venue {
			return keys[i].Venue < keys[j].Venue
		}
		return keys[i].Symbol < keys[j].Symbol
	})
	out := make([]*entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.conns[k])
	}
	m.mu.Unlock()
	return out
}

func (m *Manager) handleBook(e *entry, key domain.FeedKey, book domain.OrderBook) {
	if e.removed.Load() {
		return
	}
	md := &domain.MarketData{
		Venue:      key.Venue,
		Symbol:     key.Symbol,
		OrderBook:  book,
		LastUpdate: m.now().UTC(),
	}
	e.snapshot.Store(md)

	m.handlerMu.RLock()
	handlers := m.onUpdate
	m.handlerMu.RUnlock()
	for _, h := range handlers {
		h(*md)
	}
}

func (m *Manager) emitStatus(st domain.FeedStatus) {
	m.handlerMu.RLock()
	handlers := m.onStatus
	m.handlerMu.RUnlock()
	for _, h := range handlers {
		h(st)
	}
}
