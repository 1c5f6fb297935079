// Package levels holds the wire helpers shared by the venue adapters: numbers
// that arrive either as JSON numbers or numeric strings, price levels encoded
// as tuples or objects, and conversion into canonical book sides.
package levels

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/booksim/internal/domain"
)

var (
	errBadLevel  = errors.New("levels: malformed price level")
	errNonFinite = errors.New("levels: number out of range")
)

// Number is a float64 that unmarshals from a JSON number or a numeric string.
// JSON null leaves it at zero. Values that do not fit a finite float64 are
// rejected on both paths.
type Number float64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("levels: parse number %q: %w", s, err)
		}
		f, _ := d.Float64()
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return fmt.Errorf("%w: %q", errNonFinite, s)
		}
		*n = Number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("levels: parse number: %w", err)
	}
	*n = Number(f)
	return nil
}

// Level is one price level as sent by a venue. It accepts
// [price, quantity, ...] tuples and objects keyed by price/p and
// quantity/size/amount/q.
type Level struct {
	Price    float64
	Quantity float64
}

type levelObject struct {
	Price    *Number `json:"price"`
	P        *Number `json:"p"`
	Quantity *Number `json:"quantity"`
	Size     *Number `json:"size"`
	Amount   *Number `json:"amount"`
	Q        *Number `json:"q"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Level) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return errBadLevel
	}
	switch b[0] {
	case '[':
		var tuple []json.RawMessage
		if err := json.Unmarshal(b, &tuple); err != nil {
			return err
		}
		if len(tuple) < 2 {
			return errBadLevel
		}
		var price, qty Number
		if err := json.Unmarshal(tuple[0], &price); err != nil {
			return err
		}
		if err := json.Unmarshal(tuple[1], &qty); err != nil {
			return err
		}
		l.Price, l.Quantity = float64(price), float64(qty)
		return nil
	case '{':
		var obj levelObject
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		price := first(obj.Price, obj.P)
		qty := first(obj.Quantity, obj.Size, obj.Amount, obj.Q)
		if price == nil || qty == nil {
			return errBadLevel
		}
		l.Price, l.Quantity = float64(*price), float64(*qty)
		return nil
	default:
		return errBadLevel
	}
}

func first(ns ...*Number) *Number {
	for _, n := range ns {
		if n != nil {
			return n
		}
	}
	return nil
}

// Bids converts raw levels into a bid side: invalid levels dropped, sorted
// by descending price, truncated to depth.
func Bids(raw []Level, depth int) []domain.BookEntry {
	out := entries(raw)
	slices.SortStableFunc(out, func(a, b domain.BookEntry) int { return cmp.Compare(b.Price, a.Price) })
	return truncate(out, depth)
}

// Asks converts raw levels into an ask side: invalid levels dropped, sorted
// by ascending price, truncated to depth.
func Asks(raw []Level, depth int) []domain.BookEntry {
	out := entries(raw)
	slices.SortStableFunc(out, func(a, b domain.BookEntry) int { return cmp.Compare(a.Price, b.Price) })
	return truncate(out, depth)
}

func entries(raw []Level) []domain.BookEntry {
	out := make([]domain.BookEntry, 0, len(raw))
	for _, l := range raw {
		if !valid(l.Price) || !valid(l.Quantity) {
			continue
		}
		out = append(out, domain.BookEntry{Price: l.Price, Quantity: l.Quantity})
	}
	return out
}

func valid(f float64) bool {
	return f > 0 && !math.IsInf(f, 1)
}

func truncate(side []domain.BookEntry, depth int) []domain.BookEntry {
	if depth <= 0 {
		depth = domain.DefaultMaxDepth
	}
	if len(side) > depth {
		side = side[:depth]
	}
	return side
}

// Timestamp converts a millisecond epoch into a time, falling back to recv
// when the venue did not send one.
func Timestamp(ms Number, recv time.Time) time.Time {
	f := float64(ms)
	if !(f > 0) || f >= math.MaxInt64 {
		return recv
	}
	return time.UnixMilli(int64(ms))
}

// Book assembles a canonical snapshot.
func Book(bids, asks []Level, depth int, ts time.Time) domain.OrderBook {
	return domain.OrderBook{
		Bids:      Bids(bids, depth),
		Asks:      Asks(asks, depth),
		Timestamp: ts,
	}
}
