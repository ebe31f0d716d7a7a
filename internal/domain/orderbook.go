package domain

import "time"

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderbookSnapshot is a full snapshot of bids and asks for a trading pair.
// Bids are ordered descending by price, asks ascending.
type OrderbookSnapshot struct {
	TradingPair string
	Bids        []PriceLevel
	Asks        []PriceLevel
	Timestamp   time.Time
}

// BestBid returns the highest bid price, or 0 when the side is empty.
func (s OrderbookSnapshot) BestBid() float64 {
	if len(s.Bids) == 0 {
		return 0
	}
	return s.Bids[0].Price
}

// BestAsk returns the lowest ask price, or 0 when the side is empty.
func (s OrderbookSnapshot) BestAsk() float64 {
	if len(s.Asks) == 0 {
		return 0
	}
	return s.Asks[0].Price
}

// MidPrice returns the bid/ask midpoint, or 0 when either side is empty.
func (s OrderbookSnapshot) MidPrice() float64 {
	bid, ask := s.BestBid(), s.BestAsk()
	if bid <= 0 || ask <= 0 {
		return 0
	}
	return (bid + ask) / 2
}
