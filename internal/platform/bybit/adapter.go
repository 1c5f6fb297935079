// Package bybit implements the Bybit v5 public orderbook feed adapter.
package bybit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/booksim/internal/domain"
	"github.com/alanyoungcy/booksim/internal/platform/levels"
)

// Venue is the registry key of this adapter.
const Venue = "bybit"

// topicPrefix selects the 50-level orderbook stream, which both the spot
// and the linear public endpoints serve.
const topicPrefix = "orderbook.50."

// Adapter translates Bybit orderbook topic frames.
type Adapter struct {
	depth  int
	now    func() time.Time
	logger *slog.Logger
}

// NewAdapter creates a Bybit adapter keeping depth levels per side.
func NewAdapter(depth int, logger *slog.Logger) *Adapter {
	return &Adapter{
		depth:  depth,
		now:    time.Now,
		logger: logger.With(slog.String("venue", Venue)),
	}
}

// Venue returns "bybit".
func (a *Adapter) Venue() string { return Venue }

// BuildSubscribeMessage returns {"op":"subscribe","args":["orderbook.50.SYMBOL"]}.
func (a *Adapter) BuildSubscribeMessage(symbol string) ([]byte, error) {
	data, err := json.Marshal(subscribeMessage{
		Op:   "subscribe",
		Args: []string{topicPrefix + symbol},
	})
	if err != nil {
		return nil, fmt.Errorf("bybit: marshal subscribe: %w", err)
	}
	return data, nil
}

// Decode extracts the book carried by an orderbook topic push for symbol.
func (a *Adapter) Decode(raw []byte, symbol string) (domain.OrderBook, bool) {
	var msg bookMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		a.logger.Debug("bybit: skip unparseable frame",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return domain.OrderBook{}, false
	}
	if msg.Data == nil || msg.Op != "" {
		return domain.OrderBook{}, false
	}
	if msg.Topic != topicPrefix+symbol && msg.Data.Symbol != symbol {
		return domain.OrderBook{}, false
	}

	return levels.Book(msg.Data.Bids, msg.Data.Asks, a.depth, levels.Timestamp(msg.Ts, a.now())), true
}

// Compile-time interface check.
var _ domain.VenueAdapter = (*Adapter)(nil)
