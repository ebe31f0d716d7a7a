package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the other side (used for hedge and close legs).
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderType distinguishes resting limit orders from marketable orders.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// IsLimit reports whether orders of this type rest on the book.
func (t OrderType) IsLimit() bool {
	return t == OrderTypeLimit
}

// PositionAction tells a derivatives venue whether an order opens or closes
// exposure. Spot venues ignore it.
type PositionAction string

const (
	PositionActionOpen  PositionAction = "open"
	PositionActionClose PositionAction = "close"
)

// OrderCandidate is a fully specified order proposal. It is what gets handed
// to a venue's budget checker and, if it survives, to PlaceOrder.
type OrderCandidate struct {
	TradingPair    string
	Side           OrderSide
	Type           OrderType
	Amount         float64 // base units
	Price          float64 // ignored for market orders
	PositionAction PositionAction
	Leverage       int
}

// OrderEventType enumerates the order lifecycle events a venue reports.
// For a given order the venue delivers them in lifecycle order: created,
// zero or more fills, then exactly one of completed/failed/cancelled.
type OrderEventType string

const (
	OrderEventCreated   OrderEventType = "created"
	OrderEventFilled    OrderEventType = "filled"
	OrderEventCompleted OrderEventType = "completed"
	OrderEventFailed    OrderEventType = "failed"
	OrderEventCancelled OrderEventType = "cancelled"
)

// OrderEvent is a single order lifecycle event. Amount/Price/Fee are only
// meaningful for filled events, where each event carries one partial fill.
type OrderEvent struct {
	Type        OrderEventType
	OrderID     string
	TradingPair string
	Amount      float64
	Price       float64
	Fee         float64 // quote units
	Timestamp   time.Time
}
