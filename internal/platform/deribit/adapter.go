// Package deribit implements the Deribit v2 grouped-book feed adapter.
package deribit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/booksim/internal/domain"
	"github.com/alanyoungcy/booksim/internal/platform/levels"
)

// Venue is the registry key of this adapter.
const Venue = "deribit"

// Adapter translates Deribit book.{instrument}.none.10.100ms notifications.
type Adapter struct {
	depth  int
	now    func() time.Time
	logger *slog.Logger
}

// NewAdapter creates a Deribit adapter keeping depth levels per side.
func NewAdapter(depth int, logger *slog.Logger) *Adapter {
	return &Adapter{
		depth:  depth,
		now:    time.Now,
		logger: logger.With(slog.String("venue", Venue)),
	}
}

// Venue returns "deribit".
func (a *Adapter) Venue() string { return Venue }

func channel(symbol string) string {
	return "book." + symbol + ".none.10.100ms"
}

// BuildSubscribeMessage returns a public/subscribe JSON-RPC request for the
// grouped book channel of symbol.
func (a *Adapter) BuildSubscribeMessage(symbol string) ([]byte, error) {
	data, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "public/subscribe",
		ID:      1,
		Params:  subscribeParams{Channels: []string{channel(symbol)}},
	})
	if err != nil {
		return nil, fmt.Errorf("deribit: marshal subscribe: %w", err)
	}
	return data, nil
}

// Decode extracts the book from a subscription notification for symbol.
func (a *Adapter) Decode(raw []byte, symbol string) (domain.OrderBook, bool) {
	var msg notification
	if err := json.Unmarshal(raw, &msg); err != nil {
		a.logger.Debug("deribit: skip unparseable frame",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return domain.OrderBook{}, false
	}
	if msg.Method != "subscription" || msg.Params == nil || msg.Params.Data == nil {
		return domain.OrderBook{}, false
	}
	if msg.Params.Channel != channel(symbol) {
		return domain.OrderBook{}, false
	}

	book := msg.Params.Data
	return levels.Book(book.Bids, book.Asks, a.depth, levels.Timestamp(book.Timestamp, a.now())), true
}

// Compile-time interface check.
var _ domain.VenueAdapter = (*Adapter)(nil)
