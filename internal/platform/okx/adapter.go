// Package okx implements the OKX v5 public orderbook feed adapter.
package okx

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/booksim/internal/domain"
	"github.com/alanyoungcy/booksim/internal/platform/levels"
)

// Venue is the registry key of this adapter.
const Venue = "okx"

const bookChannel = "books"

// Adapter translates OKX "books" channel frames.
type Adapter struct {
	depth  int
	now    func() time.Time
	logger *slog.Logger
}

// NewAdapter creates an OKX adapter keeping depth levels per side.
func NewAdapter(depth int, logger *slog.Logger) *Adapter {
	return &Adapter{
		depth:  depth,
		now:    time.Now,
		logger: logger.With(slog.String("venue", Venue)),
	}
}

// Venue returns "okx".
func (a *Adapter) Venue() string { return Venue }

// BuildSubscribeMessage returns {"op":"subscribe","args":[{"channel":"books","instId":symbol}]}.
func (a *Adapter) BuildSubscribeMessage(symbol string) ([]byte, error) {
	msg := subscribeMessage{
		Op:   "subscribe",
		Args: []subscribeArg{{Channel: bookChannel, InstID: symbol}},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("okx: marshal subscribe: %w", err)
	}
	return data, nil
}

// Decode extracts the first book in a "books" push for symbol.
func (a *Adapter) Decode(raw []byte, symbol string) (domain.OrderBook, bool) {
	var msg bookMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		a.logger.Debug("okx: skip unparseable frame",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return domain.OrderBook{}, false
	}
	if msg.Event != "" || len(msg.Data) == 0 {
		return domain.OrderBook{}, false
	}
	if msg.Arg.InstID != symbol {
		return domain.OrderBook{}, false
	}

	book := msg.Data[0]
	return levels.Book(book.Bids, book.Asks, a.depth, levels.Timestamp(book.Ts, a.now())), true
}

// Compile-time interface check.
var _ domain.VenueAdapter = (*Adapter)(nil)
