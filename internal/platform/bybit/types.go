package bybit

import "github.com/alanyoungcy/booksim/internal/platform/levels"

// subscribeMessage is the Bybit v5 public subscribe request.
type subscribeMessage struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// bookMessage is a push on an "orderbook.{depth}.{symbol}" topic. Acks carry
// "success"/"op" and no topic.
type bookMessage struct {
	Topic string        `json:"topic"`
	Type  string        `json:"type"`
	Ts    levels.Number `json:"ts"`
	Data  *bookData     `json:"data"`
	Op    string        `json:"op"`
}

// bookData holds levels as [price, size] string tuples.
type bookData struct {
	Symbol   string         `json:"s"`
	Bids     []levels.Level `json:"b"`
	Asks     []levels.Level `json:"a"`
	UpdateID int64          `json:"u"`
}
