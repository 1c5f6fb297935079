package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidOrder       = errors.New("invalid order parameters")
	ErrNoBook             = errors.New("no orderbook available")
	ErrUnknownVenue       = errors.New("unknown venue")
	ErrWSDisconnect       = errors.New("websocket disconnected")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrRateLimited        = errors.New("rate limited")
)
