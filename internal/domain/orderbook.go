package domain

import "time"

// DefaultMaxDepth is the number of price levels kept per side of a book.
const DefaultMaxDepth = 15

// BookEntry is a single price+quantity level in an orderbook.
type BookEntry struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBook is a full snapshot of bids (best first, descending) and asks
// (best first, ascending). Crossed books are kept as received.
type OrderBook struct {
	Bids      []BookEntry `json:"bids"`
	Asks      []BookEntry `json:"asks"`
	Timestamp time.Time   `json:"timestamp"`
}

// BestBid returns the highest bid, or false when there are no bids.
func (b OrderBook) BestBid() (BookEntry, bool) {
	if len(b.Bids) == 0 {
		return BookEntry{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask, or false when there are no asks.
func (b OrderBook) BestAsk() (BookEntry, bool) {
	if len(b.Asks) == 0 {
		return BookEntry{}, false
	}
	return b.Asks[0], true
}

// MarketData is the latest known book for one (venue, symbol) key.
type MarketData struct {
	Venue      string    `json:"venue"`
	Symbol     string    `json:"symbol"`
	OrderBook  OrderBook `json:"orderbook"`
	LastUpdate time.Time `json:"last_update"`
}

// Key returns the registry key for the market data.
func (m MarketData) Key() FeedKey {
	return FeedKey{Venue: m.Venue, Symbol: m.Symbol}
}

// FeedKey identifies one logical subscription.
type FeedKey struct {
	Venue  string `json:"venue"`
	Symbol string `json:"symbol"`
}

// String renders the key as "venue:symbol".
func (k FeedKey) String() string {
	return k.Venue + ":" + k.Symbol
}
