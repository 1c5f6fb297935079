package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestPublishExactAndPattern(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := NewSignalBus()

	exact, err := bus.Subscribe(ctx, "ch:book:okx:BTC-USDT")
	require.NoError(t, err)
	all, err := bus.Subscribe(ctx, "ch:book:*")
	require.NoError(t, err)
	status, err := bus.Subscribe(ctx, "ch:feed_status")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "ch:book:okx:BTC-USDT", []byte("a")))
	require.NoError(t, bus.Publish(ctx, "ch:book:bybit:BTCUSDT", []byte("b")))

	assert.Equal(t, "a", string(receive(t, exact)))
	assert.Equal(t, "a", string(receive(t, all)))
	assert.Equal(t, "b", string(receive(t, all)))
	assert.Empty(t, status)
}

func TestSubscriptionClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewSignalBus()

	ch, err := bus.Subscribe(ctx, "ch:simulation")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	require.NoError(t, bus.Publish(context.Background(), "ch:simulation", []byte("x")))
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := NewSignalBus()

	_, err := bus.Subscribe(ctx, "ch:feed_status")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			_ = bus.Publish(ctx, "ch:feed_status", []byte("x"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked")
	}
}

func TestSubscribeRejectsBadPattern(t *testing.T) {
	_, err := NewSignalBus().Subscribe(context.Background(), "ch:[")
	assert.Error(t, err)
}
