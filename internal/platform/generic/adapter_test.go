package generic

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter() *Adapter {
	a := NewAdapter("custom", 15, slog.New(slog.DiscardHandler))
	a.now = func() time.Time { return time.UnixMilli(42) }
	return a
}

func TestBuildSubscribeMessage(t *testing.T) {
	msg, err := newTestAdapter().BuildSubscribeMessage("BTC-USD")
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"subscribe","channel":"orderbook","symbol":"BTC-USD","venue":"custom"}`, string(msg))
}

func TestDecodeNestedObjectLevels(t *testing.T) {
	raw := `{"channel":"orderbook","symbol":"BTC-USD","data":{
		"bids":[{"price":"100","quantity":"2"},{"p":99,"size":3}],
		"asks":[{"price":101,"amount":1}],"timestamp":1700000000000}}`

	book, ok := newTestAdapter().Decode([]byte(raw), "BTC-USD")
	require.True(t, ok)
	require.Len(t, book.Bids, 2)
	assert.Equal(t, 99.0, book.Bids[1].Price)
	assert.Equal(t, 3.0, book.Bids[1].Quantity)
	assert.Equal(t, 101.0, book.Asks[0].Price)
	assert.Equal(t, int64(1700000000000), book.Timestamp.UnixMilli())
}

func TestDecodeTopLevelAliases(t *testing.T) {
	raw := `{"channel":"orderbook","symbol":"BTC-USD","bid":[["100","1"]],"ask":[["101","1"]]}`

	book, ok := newTestAdapter().Decode([]byte(raw), "BTC-USD")
	require.True(t, ok)
	assert.Len(t, book.Bids, 1)
	assert.Len(t, book.Asks, 1)
	assert.Equal(t, int64(42), book.Timestamp.UnixMilli())
}

func TestDecodeSkips(t *testing.T) {
	a := newTestAdapter()
	for _, raw := range []string{
		`{"channel":"ticker","symbol":"BTC-USD"}`,
		`{"channel":"orderbook","symbol":"ETH-USD","bids":[]}`,
		`{"channel":"orderbook","symbol":"BTC-USD","data":{"bids":[{"price":"x","size":1}]}}`,
		`not json`,
	} {
		_, ok := a.Decode([]byte(raw), "BTC-USD")
		assert.False(t, ok, raw)
	}
}
