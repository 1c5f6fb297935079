package deribit

import "github.com/alanyoungcy/booksim/internal/platform/levels"

// rpcRequest is a Deribit JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	ID      int             `json:"id"`
	Params  subscribeParams `json:"params"`
}

type subscribeParams struct {
	Channels []string `json:"channels"`
}

// notification is a "subscription" push. RPC responses carry "result" and no
// method.
type notification struct {
	Method string `json:"method"`
	Params *struct {
		Channel string    `json:"channel"`
		Data    *bookData `json:"data"`
	} `json:"params"`
}

// bookData holds grouped levels as [price, amount] numeric tuples.
type bookData struct {
	InstrumentName string         `json:"instrument_name"`
	Timestamp      levels.Number  `json:"timestamp"`
	ChangeID       int64          `json:"change_id"`
	Bids           []levels.Level `json:"bids"`
	Asks           []levels.Level `json:"asks"`
}
