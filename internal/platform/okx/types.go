package okx

import "github.com/alanyoungcy/booksim/internal/platform/levels"

// subscribeArg is one entry of the "args" array of a subscribe request.
type subscribeArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

// subscribeMessage is the OKX v5 public subscribe request.
type subscribeMessage struct {
	Op   string         `json:"op"`
	Args []subscribeArg `json:"args"`
}

// bookMessage is a push on the "books" channel. Event frames (subscribe acks,
// errors) carry no data and are skipped.
type bookMessage struct {
	Event  string       `json:"event"`
	Arg    subscribeArg `json:"arg"`
	Action string       `json:"action"`
	Data   []bookData   `json:"data"`
}

// bookData holds levels as [price, size, liquidated, orders] string tuples.
type bookData struct {
	Bids []levels.Level `json:"bids"`
	Asks []levels.Level `json:"asks"`
	Ts   levels.Number  `json:"ts"`
}
