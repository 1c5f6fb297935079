package generic

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"

	"github.com/alanyoungcy/booksim/internal/domain"
)

// SnapshotURL returns {rest_url}/orderbook/{symbol}.
func (a *Adapter) SnapshotURL(cfg domain.VenueConfig, symbol string) (string, bool) {
	if cfg.RestURL == "" {
		return "", false
	}
	return strings.TrimRight(cfg.RestURL, "/") + "/orderbook/" + url.PathEscape(symbol), true
}

// DecodeSnapshot reads a REST orderbook body. It accepts the same book
// layouts as the stream, with or without the channel envelope; a symbol
// field, when present, must match. A body with no levels on either side is
// rejected.
func (a *Adapter) DecodeSnapshot(raw []byte, symbol string) (domain.OrderBook, bool) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		a.logger.Debug("generic: skip unparseable snapshot",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return domain.OrderBook{}, false
	}
	if env.Symbol != "" && env.Symbol != symbol {
		return domain.OrderBook{}, false
	}
	book, ok := a.decodeBody(raw, env.Data, symbol)
	if !ok || (len(book.Bids) == 0 && len(book.Asks) == 0) {
		return domain.OrderBook{}, false
	}
	return book, true
}

var _ domain.SnapshotAdapter = (*Adapter)(nil)
