package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/booksim/internal/domain"
)

const (
	// writeWait is the time allowed to write a frame to the venue.
	writeWait = 10 * time.Second

	// defaultPingPeriod is used when the connection config leaves PingPeriod
	// unset.
	defaultPingPeriod = 54 * time.Second
)

// Conn is the subset of *websocket.Conn a feed connection drives.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Dialer opens a transport to a venue endpoint.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials venues with gorilla/websocket.
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
}

// Dial implements Dialer.
func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// ConnectionConfig tunes reconnection and keep-alive for one connection.
type ConnectionConfig struct {
	URL       string
	BaseDelay time.Duration
	// MaxAttempts caps the reconnects after a failure. The initial dial is
	// not counted, so a cap of N allows up to N+1 dials before the
	// connection reports ReconnectExhausted. The count restarts once a
	// session subscribes.
	MaxAttempts int
	PingPeriod  time.Duration
}

// Connection owns one websocket subscription to a single (venue, symbol). A
// single goroutine dials, subscribes, reads, and reconnects with exponential
// backoff until Close is called or the attempt cap is reached.
type Connection struct {
	key      domain.FeedKey
	adapter  domain.VenueAdapter
	dialer   Dialer
	cfg      ConnectionConfig
	onBook   func(domain.OrderBook)
	onStatus func(domain.FeedStatus)
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	openOnce  sync.Once
	closeOnce sync.Once

	// inCallback is set while the connection goroutine runs onBook or
	// onStatus.
	inCallback atomic.Bool

	mu     sync.Mutex
	conn   Conn
	status domain.FeedStatus
	closed bool
}

func newConnection(
	key domain.FeedKey,
	adapter domain.VenueAdapter,
	dialer Dialer,
	cfg ConnectionConfig,
	onBook func(domain.OrderBook),
	onStatus func(domain.FeedStatus),
	logger *slog.Logger,
) *Connection {
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = defaultPingPeriod
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		key:      key,
		adapter:  adapter,
		dialer:   dialer,
		cfg:      cfg,
		onBook:   onBook,
		onStatus: onStatus,
		logger: logger.With(
			slog.String("venue", key.Venue),
			slog.String("symbol", key.Symbol),
		),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		status: domain.FeedStatus{
			Venue:  key.Venue,
			Symbol: key.Symbol,
			State:  domain.FeedStateDisconnected,
		},
	}
}

// Open starts the connection goroutine. Calling it more than once is a no-op.
func (c *Connection) Open() {
	c.openOnce.Do(func() {
		go c.run()
	})
}

// Close cancels any pending backoff wait, closes the transport, and waits for
// the connection goroutine to exit. The connection never reconnects afterwards.
//
// Close may be called from the connection's own onBook or onStatus callback.
// While a callback is running Close does not wait: the goroutine is
// cancelled and exits as soon as the callback returns.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.cancel()

		started := false
		c.openOnce.Do(func() { close(c.done) })
		select {
		case <-c.done:
		default:
			started = true
		}

		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			_ = c.conn.Close()
		}
		c.mu.Unlock()

		if started && !c.inCallback.Load() {
			<-c.done
		}

		c.mu.Lock()
		c.status = domain.FeedStatus{
			Venue:     c.key.Venue,
			Symbol:    c.key.Symbol,
			State:     domain.FeedStateDisconnected,
			Attempt:   c.status.Attempt,
			UpdatedAt: time.Now().UTC(),
		}
		c.closed = true
		st := c.status
		c.mu.Unlock()

		if c.onStatus != nil {
			c.onStatus(st)
		}
	})
}

// Status returns the most recent status of the connection.
func (c *Connection) Status() domain.FeedStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Done is closed once the connection goroutine has exited.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) run() {
	defer close(c.done)

	attempt := 0
	for {
		c.setStatus(domain.FeedStateConnecting, attempt, nil)

		subscribed, err := c.session()
		if c.ctx.Err() != nil {
			return
		}
		if subscribed {
			attempt = 0
		}
		c.setStatus(domain.FeedStateDisconnected, attempt, err)

		if attempt >= c.cfg.MaxAttempts {
			c.logger.Error("feed reconnect attempts exhausted",
				slog.Int("max_attempts", c.cfg.MaxAttempts),
				slog.String("error", errString(err)),
			)
			c.setStatus(domain.FeedStateReconnectExhausted, attempt,
				fmt.Errorf("feed: %s: %w", c.key, domain.ErrReconnectExhausted))
			return
		}

		delay := c.backoff(attempt)
		attempt++
		c.logger.Warn("feed disconnected, reconnecting",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", errString(err)),
		)

		timer := time.NewTimer(delay)
		select {
		case <-c.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// backoff returns BaseDelay * 2^attempt.
func (c *Connection) backoff(attempt int) time.Duration {
	d := c.cfg.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}

// session runs one dial-subscribe-read cycle. subscribed reports whether the
// subscribe frame was sent before the session ended.
func (c *Connection) session() (subscribed bool, err error) {
	conn, err := c.dialer.Dial(c.ctx, c.cfg.URL)
	if err != nil {
		return false, fmt.Errorf("feed: dial %s: %w", c.key, err)
	}
	if !c.attach(conn) {
		_ = conn.Close()
		return false, c.ctx.Err()
	}
	defer c.detach()

	msg, err := c.adapter.BuildSubscribeMessage(c.key.Symbol)
	if err != nil {
		return false, fmt.Errorf("feed: build subscribe %s: %w", c.key, err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return false, fmt.Errorf("feed: subscribe %s: %w", c.key, err)
	}
	c.setStatus(domain.FeedStateSubscribed, 0, nil)
	c.logger.Info("feed subscribed")

	pongWait := c.cfg.PingPeriod * 10 / 9
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stopPing := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.pingLoop(conn, stopPing)
	}()
	defer func() {
		close(stopPing)
		wg.Wait()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() != nil {
				return true, nil
			}
			return true, fmt.Errorf("feed: read %s: %w: %w", c.key, domain.ErrWSDisconnect, err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		book, ok := c.adapter.Decode(data, c.key.Symbol)
		if !ok {
			continue
		}
		if c.onBook != nil {
			c.inCallback.Store(true)
			c.onBook(book)
			c.inCallback.Store(false)
		}
	}
}

func (c *Connection) pingLoop(conn Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("feed ping failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

// attach records the live transport so Close can interrupt a blocked read.
// It refuses once the connection has been cancelled.
func (c *Connection) attach(conn Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx.Err() != nil {
		return false
	}
	c.conn = conn
	return true
}

func (c *Connection) detach() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// setStatus records and reports a transition made by the connection
// goroutine. Transitions after Close are dropped.
func (c *Connection) setStatus(state domain.FeedState, attempt int, err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.status = domain.FeedStatus{
		Venue:     c.key.Venue,
		Symbol:    c.key.Symbol,
		State:     state,
		Attempt:   attempt,
		LastError: errString(err),
		UpdatedAt: time.Now().UTC(),
	}
	st := c.status
	c.mu.Unlock()

	if c.onStatus != nil {
		c.inCallback.Store(true)
		c.onStatus(st)
		c.inCallback.Store(false)
	}
}

func errString(err error) string {
	if err == nil || errors.Is(err, context.Canceled) {
		return ""
	}
	return err.Error()
}
