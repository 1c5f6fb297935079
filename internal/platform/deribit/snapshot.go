package deribit

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/alanyoungcy/booksim/internal/domain"
	"github.com/alanyoungcy/booksim/internal/platform/levels"
)

// rpcResponse is the body of GET /api/v2/public/get_order_book.
type rpcResponse struct {
	Result *bookData `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SnapshotURL returns {rest_url}/api/v2/public/get_order_book for symbol.
func (a *Adapter) SnapshotURL(cfg domain.VenueConfig, symbol string) (string, bool) {
	if cfg.RestURL == "" {
		return "", false
	}
	depth := a.depth
	if depth <= 0 {
		depth = domain.DefaultMaxDepth
	}
	q := url.Values{}
	q.Set("instrument_name", symbol)
	q.Set("depth", strconv.Itoa(depth))
	return strings.TrimRight(cfg.RestURL, "/") + "/api/v2/public/get_order_book?" + q.Encode(), true
}

// DecodeSnapshot extracts the book from a get_order_book result for symbol.
func (a *Adapter) DecodeSnapshot(raw []byte, symbol string) (domain.OrderBook, bool) {
	var resp rpcResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		a.logger.Debug("deribit: skip unparseable snapshot",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return domain.OrderBook{}, false
	}
	if resp.Error != nil {
		a.logger.Debug("deribit: snapshot rejected",
			slog.String("symbol", symbol),
			slog.Int("code", resp.Error.Code),
			slog.String("message", resp.Error.Message),
		)
		return domain.OrderBook{}, false
	}
	if resp.Result == nil || resp.Result.InstrumentName != symbol {
		return domain.OrderBook{}, false
	}
	book := resp.Result
	return levels.Book(book.Bids, book.Asks, a.depth, levels.Timestamp(book.Timestamp, a.now())), true
}

var _ domain.SnapshotAdapter = (*Adapter)(nil)
