package domain

import "time"

// VenueConfig holds the static connection parameters for one venue.
type VenueConfig struct {
	Name         string   `json:"name"`
	WebsocketURL string   `json:"ws_url"`
	RestURL      string   `json:"rest_url,omitempty"`
	Symbols      []string `json:"symbols"`
}

// VenueAdapter translates between a venue's wire protocol and the canonical
// orderbook model. Implementations must be safe for concurrent use.
type VenueAdapter interface {
	// Venue returns the registry key, e.g. "okx".
	Venue() string

	// BuildSubscribeMessage returns the venue-native subscribe frame for symbol.
	BuildSubscribeMessage(symbol string) ([]byte, error)

	// Decode extracts a book snapshot for symbol from raw. It returns false for
	// anything that is not a book update for that symbol, including malformed
	// input. It never panics.
	Decode(raw []byte, symbol string) (OrderBook, bool)
}

// SnapshotAdapter is implemented by adapters whose venue serves a full book
// over REST. It is used to answer lookups for keys with no streamed book.
type SnapshotAdapter interface {
	// SnapshotURL returns the REST URL of the book of symbol, or false when
	// cfg carries no REST endpoint.
	SnapshotURL(cfg VenueConfig, symbol string) (string, bool)

	// DecodeSnapshot extracts the book for symbol from a REST response body.
	// Like Decode it returns false for anything it cannot use.
	DecodeSnapshot(raw []byte, symbol string) (OrderBook, bool)
}

// FeedState is the lifecycle state of a feed connection.
type FeedState string

const (
	FeedStateDisconnected       FeedState = "disconnected"
	FeedStateConnecting         FeedState = "connecting"
	FeedStateSubscribed         FeedState = "subscribed"
	FeedStateReconnectExhausted FeedState = "reconnect_exhausted"
)

// FeedStatus reports a state transition of one feed connection.
type FeedStatus struct {
	Venue     string    `json:"venue"`
	Symbol    string    `json:"symbol"`
	State     FeedState `json:"state"`
	Attempt   int       `json:"attempt"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
