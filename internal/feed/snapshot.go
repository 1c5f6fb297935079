package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/booksim/internal/domain"
)

// maxSnapshotBytes caps the REST body read for one book.
const maxSnapshotBytes = 4 << 20

// SnapshotClient fetches full books over REST for venues whose adapter
// implements domain.SnapshotAdapter and whose config carries a rest_url.
type SnapshotClient struct {
	registry   *Registry
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewSnapshotClient creates a SnapshotClient. A non-positive timeout falls
// back to 10s.
func NewSnapshotClient(registry *Registry, timeout time.Duration, logger *slog.Logger) *SnapshotClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SnapshotClient{
		registry: registry,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With(slog.String("component", "snapshot_client")),
		now:    time.Now,
	}
}

// Fetch returns the current REST book of (venue, symbol). It fails with
// domain.ErrUnknownVenue for unregistered venues and with domain.ErrNoBook
// when the venue has no REST snapshot or the response carries no usable book.
func (c *SnapshotClient) Fetch(ctx context.Context, venue, symbol string) (domain.MarketData, error) {
	adapter, cfg, err := c.registry.Get(venue)
	if err != nil {
		return domain.MarketData{}, err
	}
	sa, ok := adapter.(domain.SnapshotAdapter)
	if !ok {
		return domain.MarketData{}, fmt.Errorf("feed: snapshot %s:%s: no rest support: %w", venue, symbol, domain.ErrNoBook)
	}
	url, ok := sa.SnapshotURL(cfg, symbol)
	if !ok {
		return domain.MarketData{}, fmt.Errorf("feed: snapshot %s:%s: no rest_url: %w", venue, symbol, domain.ErrNoBook)
	}

	body, err := c.doGet(ctx, url)
	if err != nil {
		return domain.MarketData{}, fmt.Errorf("feed: snapshot %s:%s: %w", venue, symbol, err)
	}
	book, ok := sa.DecodeSnapshot(body, symbol)
	if !ok {
		return domain.MarketData{}, fmt.Errorf("feed: snapshot %s:%s: unusable response: %w", venue, symbol, domain.ErrNoBook)
	}

	c.logger.DebugContext(ctx, "rest snapshot fetched",
		slog.String("venue", venue),
		slog.String("symbol", symbol),
		slog.Int("bids", len(book.Bids)),
		slog.Int("asks", len(book.Asks)),
	)
	return domain.MarketData{
		Venue:      venue,
		Symbol:     symbol,
		OrderBook:  book,
		LastUpdate: c.now().UTC(),
	}, nil
}

func (c *SnapshotClient) doGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}
	return body, nil
}
