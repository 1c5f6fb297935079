package simulation

import "github.com/alanyoungcy/booksim/internal/domain"

// Spread returns (bestAsk - bestBid) / bestBid in percent. It is 0 when either
// side is empty and never negative; use Crossed to detect an inverted book.
func Spread(book domain.OrderBook) float64 {
	bid, okBid := book.BestBid()
	ask, okAsk := book.BestAsk()
	if !okBid || !okAsk || bid.Price <= 0 {
		return 0
	}
	return max((ask.Price-bid.Price)/bid.Price*100, 0)
}

// Crossed reports whether the best bid is above the best ask.
func Crossed(book domain.OrderBook) bool {
	bid, okBid := book.BestBid()
	ask, okAsk := book.BestAsk()
	return okBid && okAsk && bid.Price > ask.Price
}

// Imbalance returns (bidQty - askQty) / (bidQty + askQty) in percent, 0 when
// the book is empty.
func Imbalance(book domain.OrderBook) float64 {
	bids := totalQuantity(book.Bids)
	asks := totalQuantity(book.Asks)
	total := bids + asks
	if total <= 0 {
		return 0
	}
	return (bids - asks) / total * 100
}

// SignificantSlippage reports whether a placement slipped by more than 1%.
func SignificantSlippage(p domain.OrderPlacement) bool {
	return p.Slippage > significantSlippage
}
