package domain

import (
	"context"
	"time"
)

// BookCache mirrors the latest MarketData per (venue, symbol) outside the
// process so other instances can simulate against it.
type BookCache interface {
	SetMarketData(ctx context.Context, md MarketData) error
	GetMarketData(ctx context.Context, venue, symbol string) (MarketData, error)
	Delete(ctx context.Context, venue, symbol string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus provides pub/sub fan-out of feed events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Bus channel names.
const (
	ChannelBookPrefix = "ch:book:"
	ChannelFeedStatus = "ch:feed_status"
	ChannelSimulation = "ch:simulation"
)

// BookChannel returns the pub/sub channel for one feed key.
func BookChannel(venue, symbol string) string {
	return ChannelBookPrefix + venue + ":" + symbol
}
