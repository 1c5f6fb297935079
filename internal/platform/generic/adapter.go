// Package generic implements an adapter for self-hosted feeds that speak a
// simple JSON orderbook protocol:
//
//	-> {"action":"subscribe","channel":"orderbook","symbol":"BTC-USD","venue":"custom"}
//	<- {"channel":"orderbook","symbol":"BTC-USD","data":{"bids":[...],"asks":[...],"timestamp":1700000000000}}
//
// Levels may be [price, quantity] tuples or objects; bid/ask are accepted as
// aliases and the book may sit at the top level instead of under "data".
package generic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/booksim/internal/domain"
	"github.com/alanyoungcy/booksim/internal/platform/levels"
)

const orderbookChannel = "orderbook"

type subscribeMessage struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
	Venue   string `json:"venue"`
}

type envelope struct {
	Channel string          `json:"channel"`
	Symbol  string          `json:"symbol"`
	Data    json.RawMessage `json:"data"`
}

type bookBody struct {
	Bids      []levels.Level `json:"bids"`
	Bid       []levels.Level `json:"bid"`
	Asks      []levels.Level `json:"asks"`
	Ask       []levels.Level `json:"ask"`
	Timestamp levels.Number  `json:"timestamp"`
}

// Adapter translates the generic JSON orderbook protocol.
type Adapter struct {
	venue  string
	depth  int
	now    func() time.Time
	logger *slog.Logger
}

// NewAdapter creates a generic adapter registered under venue.
func NewAdapter(venue string, depth int, logger *slog.Logger) *Adapter {
	return &Adapter{
		venue:  venue,
		depth:  depth,
		now:    time.Now,
		logger: logger.With(slog.String("venue", venue)),
	}
}

// Venue returns the configured registry key.
func (a *Adapter) Venue() string { return a.venue }

// BuildSubscribeMessage returns the orderbook subscribe action for symbol.
func (a *Adapter) BuildSubscribeMessage(symbol string) ([]byte, error) {
	data, err := json.Marshal(subscribeMessage{
		Action:  "subscribe",
		Channel: orderbookChannel,
		Symbol:  symbol,
		Venue:   a.venue,
	})
	if err != nil {
		return nil, fmt.Errorf("generic: marshal subscribe: %w", err)
	}
	return data, nil
}

// Decode extracts an orderbook push for symbol.
func (a *Adapter) Decode(raw []byte, symbol string) (domain.OrderBook, bool) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		a.logger.Debug("generic: skip unparseable frame",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return domain.OrderBook{}, false
	}
	if env.Channel != orderbookChannel || env.Symbol != symbol {
		return domain.OrderBook{}, false
	}

	return a.decodeBody(raw, env.Data, symbol)
}

// decodeBody reads the book from data when it holds an object and from raw
// otherwise.
func (a *Adapter) decodeBody(raw, data json.RawMessage, symbol string) (domain.OrderBook, bool) {
	body := raw
	if d := bytes.TrimSpace(data); len(d) > 0 && d[0] == '{' {
		body = d
	}
	var book bookBody
	if err := json.Unmarshal(body, &book); err != nil {
		a.logger.Debug("generic: skip malformed book",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return domain.OrderBook{}, false
	}

	bids := book.Bids
	if bids == nil {
		bids = book.Bid
	}
	asks := book.Asks
	if asks == nil {
		asks = book.Ask
	}
	return levels.Book(bids, asks, a.depth, levels.Timestamp(book.Timestamp, a.now())), true
}

// Compile-time interface check.
var _ domain.VenueAdapter = (*Adapter)(nil)
