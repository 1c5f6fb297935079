package okx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/booksim/internal/domain"
)

func TestSnapshotURL(t *testing.T) {
	a := newTestAdapter()
	u, ok := a.SnapshotURL(domain.VenueConfig{RestURL: "https://www.okx.com/"}, "BTC-USDT")
	require.True(t, ok)
	assert.Equal(t, "https://www.okx.com/api/v5/market/books?instId=BTC-USDT&sz=15", u)

	_, ok = a.SnapshotURL(domain.VenueConfig{}, "BTC-USDT")
	assert.False(t, ok)
}

func TestDecodeSnapshot(t *testing.T) {
	raw := `{"code":"0","msg":"","data":[{
		"asks":[["41006.8","0.6","0","1"]],
		"bids":[["41006.3","0.3","0","1"],["41006","0","0","0"]],
		"ts":"1629966436396"}]}`

	book, ok := newTestAdapter().DecodeSnapshot([]byte(raw), "BTC-USDT")
	require.True(t, ok)
	require.Len(t, book.Bids, 1)
	assert.Equal(t, 41006.3, book.Bids[0].Price)
	assert.Equal(t, 41006.8, book.Asks[0].Price)
	assert.Equal(t, int64(1629966436396), book.Timestamp.UnixMilli())
}

func TestDecodeSnapshotRejects(t *testing.T) {
	a := newTestAdapter()
	for name, raw := range map[string]string{
		"error code": `{"code":"51001","msg":"Instrument ID does not exist","data":[]}`,
		"no data":    `{"code":"0","msg":"","data":[]}`,
		"overflow":   `{"code":"0","data":[{"bids":[["1e400","1"]],"asks":[],"ts":"1"}]}`,
		"not json":   `<html>`,
	} {
		t.Run(name, func(t *testing.T) {
			_, ok := a.DecodeSnapshot([]byte(raw), "BTC-USDT")
			assert.False(t, ok)
		})
	}
}
