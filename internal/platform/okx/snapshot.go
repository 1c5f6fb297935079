package okx

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/alanyoungcy/booksim/internal/domain"
	"github.com/alanyoungcy/booksim/internal/platform/levels"
)

// snapshotResponse is the body of GET /api/v5/market/books.
type snapshotResponse struct {
	Code string     `json:"code"`
	Msg  string     `json:"msg"`
	Data []bookData `json:"data"`
}

// SnapshotURL returns {rest_url}/api/v5/market/books?instId=SYMBOL&sz=DEPTH.
func (a *Adapter) SnapshotURL(cfg domain.VenueConfig, symbol string) (string, bool) {
	if cfg.RestURL == "" {
		return "", false
	}
	depth := a.depth
	if depth <= 0 {
		depth = domain.DefaultMaxDepth
	}
	q := url.Values{}
	q.Set("instId", symbol)
	q.Set("sz", strconv.Itoa(depth))
	return strings.TrimRight(cfg.RestURL, "/") + "/api/v5/market/books?" + q.Encode(), true
}

// DecodeSnapshot extracts the book from a market/books response. Responses
// with a non-zero code are rejected.
func (a *Adapter) DecodeSnapshot(raw []byte, symbol string) (domain.OrderBook, bool) {
	var resp snapshotResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		a.logger.Debug("okx: skip unparseable snapshot",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return domain.OrderBook{}, false
	}
	if resp.Code != "0" || len(resp.Data) == 0 {
		a.logger.Debug("okx: snapshot rejected",
			slog.String("symbol", symbol),
			slog.String("code", resp.Code),
			slog.String("msg", resp.Msg),
		)
		return domain.OrderBook{}, false
	}
	book := resp.Data[0]
	return levels.Book(book.Bids, book.Asks, a.depth, levels.Timestamp(book.Ts, a.now())), true
}

var _ domain.SnapshotAdapter = (*Adapter)(nil)
