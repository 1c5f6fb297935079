// Package simulation estimates how a hypothetical order would interact with an
// orderbook snapshot. Every function is pure: books are read, never mutated.
//
// The market-impact ratio (capped at 50%) and the queue delay of
// 2·ln(qty ahead + 1) seconds are heuristics kept for compatibility with the
// existing UI, not calibrated models.
package simulation

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/booksim/internal/domain"
)

const (
	// maxMarketImpact caps the depth-consumption ratio, in percent.
	maxMarketImpact = 50.0

	// queueDelayFactor scales ln(quantity ahead + 1) into seconds.
	queueDelayFactor = 2.0

	// significantSlippage is the slippage percentage above which a placement
	// is flagged.
	significantSlippage = 1.0
)

// Validate checks the caller contract of a simulated order.
func Validate(order domain.SimulatedOrder) error {
	switch order.Side {
	case domain.OrderSideBuy, domain.OrderSideSell:
	default:
		return fmt.Errorf("simulation: side %q: %w", order.Side, domain.ErrInvalidOrder)
	}
	if _, ok := order.Timing.Seconds(); !ok {
		return fmt.Errorf("simulation: timing %q: %w", order.Timing, domain.ErrInvalidOrder)
	}
	if !(order.Quantity > 0) || math.IsInf(order.Quantity, 0) {
		return fmt.Errorf("simulation: quantity %v must be > 0: %w", order.Quantity, domain.ErrInvalidOrder)
	}
	switch order.OrderType {
	case domain.OrderTypeMarket:
	case domain.OrderTypeLimit:
		if order.Price == nil {
			return fmt.Errorf("simulation: limit order without price: %w", domain.ErrInvalidOrder)
		}
		if !(*order.Price > 0) || math.IsInf(*order.Price, 0) {
			return fmt.Errorf("simulation: limit price %v must be > 0: %w", *order.Price, domain.ErrInvalidOrder)
		}
	default:
		return fmt.Errorf("simulation: order type %q: %w", order.OrderType, domain.ErrInvalidOrder)
	}
	return nil
}

// Simulate estimates the placement of order against book. Invalid orders fail
// with domain.ErrInvalidOrder before the book is walked.
func Simulate(order domain.SimulatedOrder, book domain.OrderBook) (domain.OrderPlacement, error) {
	if err := Validate(order); err != nil {
		return domain.OrderPlacement{}, err
	}
	if order.OrderType == domain.OrderTypeMarket {
		return simulateMarket(order, opposingSide(order.Side, book)), nil
	}
	return simulateLimit(order, book), nil
}

// simulateMarket walks levels from the best price outward.
func simulateMarket(order domain.SimulatedOrder, levels []domain.BookEntry) domain.OrderPlacement {
	remaining := order.Quantity
	var notional float64
	touched := 0

	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		fill := math.Min(remaining, lvl.Quantity)
		notional += fill * lvl.Price
		remaining -= fill
		touched++
	}

	filled := order.Quantity - remaining
	var slippage float64
	if filled > 0 && len(levels) > 0 {
		best := levels[0].Price
		avg := notional / filled
		slippage = math.Abs(avg-best) / best * 100
	}

	delay, _ := order.Timing.Seconds()
	return domain.OrderPlacement{
		Position:       max(touched, 1),
		FillPercentage: filled / order.Quantity * 100,
		MarketImpact:   marketImpact(order.Quantity, levels),
		Slippage:       slippage,
		TimeToFill:     delay,
	}
}

// simulateLimit either crosses the spread or rests behind better-priced levels
// on its own side.
func simulateLimit(order domain.SimulatedOrder, book domain.OrderBook) domain.OrderPlacement {
	price := *order.Price
	opposing := opposingSide(order.Side, book)

	if crossesSpread(order.Side, price, opposing) {
		return simulateMarket(order, opposing)
	}

	own := book.Bids
	if order.Side == domain.OrderSideSell {
		own = book.Asks
	}

	position := 1
	var ahead float64
	for _, lvl := range own {
		better := lvl.Price > price
		if order.Side == domain.OrderSideSell {
			better = lvl.Price < price
		}
		if !better {
			break
		}
		ahead += lvl.Quantity
		position++
	}

	delay, _ := order.Timing.Seconds()
	return domain.OrderPlacement{
		Position:       position,
		FillPercentage: 0,
		MarketImpact:   marketImpact(order.Quantity, opposing),
		Slippage:       0,
		TimeToFill:     delay + queueDelay(ahead),
	}
}

// crossesSpread reports whether a limit price would execute immediately
// against the best opposing level.
func crossesSpread(side domain.OrderSide, price float64, opposing []domain.BookEntry) bool {
	if len(opposing) == 0 {
		return false
	}
	best := opposing[0].Price
	if side == domain.OrderSideBuy {
		return price >= best
	}
	return price <= best
}

func opposingSide(side domain.OrderSide, book domain.OrderBook) []domain.BookEntry {
	if side == domain.OrderSideBuy {
		return book.Asks
	}
	return book.Bids
}

// marketImpact is the share of visible opposing depth the order would
// consume, capped at maxMarketImpact.
func marketImpact(qty float64, levels []domain.BookEntry) float64 {
	total := totalQuantity(levels)
	if total <= 0 || qty <= 0 {
		return 0
	}
	return math.Min(qty/total*100, maxMarketImpact)
}

func queueDelay(ahead float64) float64 {
	if ahead <= 0 {
		return 0
	}
	return queueDelayFactor * math.Log(ahead+1)
}

func totalQuantity(levels []domain.BookEntry) float64 {
	var sum float64
	for _, lvl := range levels {
		sum += lvl.Quantity
	}
	return sum
}
