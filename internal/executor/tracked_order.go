package executor

// TrackedOrder is the mutable record of one order owned by a position
// executor. It is only mutated by the executor's event handlers and tick
// logic; nothing else holds a reference.
type TrackedOrder struct {
	OrderID       string
	Amount        float64 // size the order was placed with, base units
	Price         float64
	Executed      float64 // cumulative executed base amount
	QuoteExecuted float64 // cumulative price*amount over fills
	FeesQuote     float64
	Created       bool // venue acknowledged the order
}

// AvgFillPrice returns the volume-weighted price of the fills so far, or 0
// when nothing has executed.
func (o *TrackedOrder) AvgFillPrice() float64 {
	if o.Executed <= 0 {
		return 0
	}
	return o.QuoteExecuted / o.Executed
}

// IsOpen reports whether the order has an ID and has been acknowledged.
func (o *TrackedOrder) IsOpen() bool {
	return o.OrderID != ""
}

// Clear drops the order ID and placement metadata so the next tick may place
// a replacement. Executed amounts are preserved: partial fills that already
// happened stay accounted for.
func (o *TrackedOrder) Clear() {
	o.OrderID = ""
	o.Amount = 0
	o.Price = 0
	o.Created = false
}

// RecordFill accumulates one partial fill.
func (o *TrackedOrder) RecordFill(amount, price, fee float64) {
	o.Executed += amount
	o.QuoteExecuted += price * amount
	o.FeesQuote += fee
}
