package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the execution style of a simulated order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderTiming is the caller-requested delay before the order is considered.
type OrderTiming string

const (
	TimingImmediate OrderTiming = "immediate"
	Timing5s        OrderTiming = "5s"
	Timing10s       OrderTiming = "10s"
	Timing30s       OrderTiming = "30s"
)

// Seconds returns the delay in seconds, or false for an unknown timing.
func (t OrderTiming) Seconds() (float64, bool) {
	switch t {
	case TimingImmediate:
		return 0, true
	case Timing5s:
		return 5, true
	case Timing10s:
		return 10, true
	case Timing30s:
		return 30, true
	default:
		return 0, false
	}
}

// SimulatedOrder is a hypothetical order built by the caller. Price is only
// meaningful (and required) for limit orders.
type SimulatedOrder struct {
	Venue     string      `json:"venue"`
	Symbol    string      `json:"symbol"`
	OrderType OrderType   `json:"order_type"`
	Side      OrderSide   `json:"side"`
	Price     *float64    `json:"price,omitempty"`
	Quantity  float64     `json:"quantity"`
	Timing    OrderTiming `json:"timing"`
}

// OrderPlacement is the estimated outcome of a simulated order.
type OrderPlacement struct {
	Position       int     `json:"position"`
	FillPercentage float64 `json:"fill_percentage"`
	MarketImpact   float64 `json:"market_impact"`
	Slippage       float64 `json:"slippage"`
	TimeToFill     float64 `json:"time_to_fill"`
}

// SimulationRecord is an audit entry for one simulation request.
type SimulationRecord struct {
	ID                  string         `json:"id"`
	Order               SimulatedOrder `json:"order"`
	Placement           OrderPlacement `json:"placement"`
	BestBid             float64        `json:"best_bid"`
	BestAsk             float64        `json:"best_ask"`
	Spread              float64        `json:"spread"`
	Imbalance           float64        `json:"imbalance"`
	SignificantSlippage bool           `json:"significant_slippage"`
	BookTimestamp       time.Time      `json:"book_timestamp"`
	CreatedAt           time.Time      `json:"created_at"`
}
