package bybit

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"

	"github.com/alanyoungcy/booksim/internal/domain"
	"github.com/alanyoungcy/booksim/internal/platform/levels"
)

// snapshotLimit matches the depth of the streamed topic.
const snapshotLimit = "50"

// snapshotResponse is the body of GET /v5/market/orderbook.
type snapshotResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  *struct {
		Symbol string         `json:"s"`
		Bids   []levels.Level `json:"b"`
		Asks   []levels.Level `json:"a"`
		Ts     levels.Number  `json:"ts"`
	} `json:"result"`
}

// category derives the v5 product category from the public stream path,
// e.g. wss://stream.bybit.com/v5/public/linear.
func category(wsURL string) string {
	for _, c := range []string{"linear", "inverse", "option"} {
		if strings.HasSuffix(strings.TrimRight(wsURL, "/"), "/"+c) {
			return c
		}
	}
	return "spot"
}

// SnapshotURL returns {rest_url}/v5/market/orderbook for the category of the
// configured stream.
func (a *Adapter) SnapshotURL(cfg domain.VenueConfig, symbol string) (string, bool) {
	if cfg.RestURL == "" {
		return "", false
	}
	q := url.Values{}
	q.Set("category", category(cfg.WebsocketURL))
	q.Set("symbol", symbol)
	q.Set("limit", snapshotLimit)
	return strings.TrimRight(cfg.RestURL, "/") + "/v5/market/orderbook?" + q.Encode(), true
}

// DecodeSnapshot extracts the book from a market/orderbook response for
// symbol.
func (a *Adapter) DecodeSnapshot(raw []byte, symbol string) (domain.OrderBook, bool) {
	var resp snapshotResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		a.logger.Debug("bybit: skip unparseable snapshot",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return domain.OrderBook{}, false
	}
	if resp.RetCode != 0 || resp.Result == nil || resp.Result.Symbol != symbol {
		a.logger.Debug("bybit: snapshot rejected",
			slog.String("symbol", symbol),
			slog.Int("ret_code", resp.RetCode),
			slog.String("ret_msg", resp.RetMsg),
		)
		return domain.OrderBook{}, false
	}
	r := resp.Result
	return levels.Book(r.Bids, r.Asks, a.depth, levels.Timestamp(r.Ts, a.now())), true
}

var _ domain.SnapshotAdapter = (*Adapter)(nil)
