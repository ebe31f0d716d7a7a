// Package paper implements exchange.Connector fully in memory. It backs the
// paper run mode and the executor test suites: books are set by the caller,
// market orders fill against the current book, and limit-order fills are
// driven explicitly through the Fill/Complete/Cancel methods.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avyukov/hedgebot/internal/book"
	"github.com/avyukov/hedgebot/internal/domain"
	"github.com/avyukov/hedgebot/internal/exchange"
)

type orderState struct {
	candidate domain.OrderCandidate
	executed  float64
	open      bool
}

// Connector is an in-memory venue. All methods are safe for concurrent use.
type Connector struct {
	name string

	mu      sync.Mutex
	books   map[string]domain.OrderbookSnapshot
	orders  map[string]*orderState
	budget  func(domain.OrderCandidate) float64
	failOps int // number of upcoming PlaceOrder calls to reject
	feeRate float64

	events chan domain.OrderEvent
}

// New creates a paper connector with unlimited budget and no fees.
func New(name string) *Connector {
	return &Connector{
		name:   name,
		books:  make(map[string]domain.OrderbookSnapshot),
		orders: make(map[string]*orderState),
		budget: func(c domain.OrderCandidate) float64 { return c.Amount },
		events: make(chan domain.OrderEvent, 1024),
	}
}

// Name returns the venue identifier.
func (c *Connector) Name() string { return c.name }

// SetOrderBook replaces the book snapshot for a pair.
func (c *Connector) SetOrderBook(tradingPair string, snap domain.OrderbookSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap.TradingPair = tradingPair
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}
	c.books[tradingPair] = snap
}

// SetBudgetFunc overrides the budget checker. The function receives the
// candidate and returns the maximum tradable base amount.
func (c *Connector) SetBudgetFunc(f func(domain.OrderCandidate) float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.budget = f
}

// SetFeeRate sets the proportional fee charged on fills, in quote units per
// quote notional.
func (c *Connector) SetFeeRate(rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feeRate = rate
}

// FailNextPlacements makes the next n PlaceOrder calls fail synchronously.
func (c *Connector) FailNextPlacements(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failOps = n
}

// GetOrderBook returns the current snapshot, or ErrNotFound when no book has
// been set for the pair.
func (c *Connector) GetOrderBook(_ context.Context, tradingPair string) (domain.OrderbookSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.books[tradingPair]
	if !ok {
		return domain.OrderbookSnapshot{}, fmt.Errorf("paper %s: book %s: %w", c.name, tradingPair, domain.ErrNotFound)
	}
	return snap, nil
}

// PlaceOrder records the order and emits a created event. Market orders are
// filled immediately at the book's volume-weighted price and completed.
func (c *Connector) PlaceOrder(_ context.Context, candidate domain.OrderCandidate) (string, error) {
	c.mu.Lock()
	if c.failOps > 0 {
		c.failOps--
		c.mu.Unlock()
		return "", fmt.Errorf("paper %s: place %s %s: %w", c.name, candidate.Side, candidate.TradingPair, domain.ErrOrderRejected)
	}
	id := uuid.New().String()
	st := &orderState{candidate: candidate, open: true}
	c.orders[id] = st
	snap := c.books[candidate.TradingPair]
	feeRate := c.feeRate
	c.mu.Unlock()

	c.emit(domain.OrderEvent{Type: domain.OrderEventCreated, OrderID: id, TradingPair: candidate.TradingPair})

	if candidate.Type == domain.OrderTypeMarket {
		price := book.PriceForVolume(snap, candidate.Side, candidate.Amount)
		if price == 0 {
			price = candidate.Price
		}
		c.fill(id, candidate.Amount, price, price*candidate.Amount*feeRate)
		c.complete(id)
	}
	return id, nil
}

// CancelOrder emits a cancelled event for open orders. Cancelling an unknown
// or already-closed order is a no-op, mirroring venue "order not found"
// absence confirmation.
func (c *Connector) CancelOrder(_ context.Context, tradingPair, orderID string) error {
	c.mu.Lock()
	st, ok := c.orders[orderID]
	if !ok || !st.open {
		c.mu.Unlock()
		return nil
	}
	st.open = false
	c.mu.Unlock()

	c.emit(domain.OrderEvent{Type: domain.OrderEventCancelled, OrderID: orderID, TradingPair: tradingPair})
	return nil
}

// MatchBook fills resting limit orders crossed by the current book: a buy
// whose limit is at or above the best ask, or a sell at or below the best
// bid. Crossed orders fill in full at their limit price and complete.
func (c *Connector) MatchBook(tradingPair string) {
	type crossed struct {
		id               string
		remaining, price float64
	}

	c.mu.Lock()
	snap, ok := c.books[tradingPair]
	feeRate := c.feeRate
	var fills []crossed
	if ok {
		for id, st := range c.orders {
			if !st.open || st.candidate.TradingPair != tradingPair || st.candidate.Type != domain.OrderTypeLimit {
				continue
			}
			price := st.candidate.Price
			hit := (st.candidate.Side == domain.OrderSideBuy && snap.BestAsk() > 0 && price >= snap.BestAsk()) ||
				(st.candidate.Side == domain.OrderSideSell && snap.BestBid() > 0 && price <= snap.BestBid())
			if !hit {
				continue
			}
			if rem := st.candidate.Amount - st.executed; rem > 0 {
				fills = append(fills, crossed{id: id, remaining: rem, price: price})
			}
		}
	}
	c.mu.Unlock()

	for _, f := range fills {
		c.fill(f.id, f.remaining, f.price, f.price*f.remaining*feeRate)
		c.complete(f.id)
	}
}

// BudgetAdjustedAmount applies the configured budget function.
func (c *Connector) BudgetAdjustedAmount(_ context.Context, candidate domain.OrderCandidate) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.budget(candidate), nil
}

// Events returns the lifecycle event stream.
func (c *Connector) Events() <-chan domain.OrderEvent {
	return c.events
}

// Fill emits one partial-fill event for an open order.
func (c *Connector) Fill(orderID string, amount, price, fee float64) {
	c.fill(orderID, amount, price, fee)
}

func (c *Connector) fill(orderID string, amount, price, fee float64) {
	c.mu.Lock()
	st, ok := c.orders[orderID]
	if !ok || !st.open {
		c.mu.Unlock()
		return
	}
	st.executed += amount
	pair := st.candidate.TradingPair
	c.mu.Unlock()

	c.emit(domain.OrderEvent{
		Type:        domain.OrderEventFilled,
		OrderID:     orderID,
		TradingPair: pair,
		Amount:      amount,
		Price:       price,
		Fee:         fee,
	})
}

// Complete emits a completed event and closes the order.
func (c *Connector) Complete(orderID string) {
	c.complete(orderID)
}

func (c *Connector) complete(orderID string) {
	c.mu.Lock()
	st, ok := c.orders[orderID]
	if !ok || !st.open {
		c.mu.Unlock()
		return
	}
	st.open = false
	pair := st.candidate.TradingPair
	c.mu.Unlock()

	c.emit(domain.OrderEvent{Type: domain.OrderEventCompleted, OrderID: orderID, TradingPair: pair})
}

// Fail emits a failed event and closes the order.
func (c *Connector) Fail(orderID string) {
	c.mu.Lock()
	st, ok := c.orders[orderID]
	if !ok || !st.open {
		c.mu.Unlock()
		return
	}
	st.open = false
	pair := st.candidate.TradingPair
	c.mu.Unlock()

	c.emit(domain.OrderEvent{Type: domain.OrderEventFailed, OrderID: orderID, TradingPair: pair})
}

// OpenOrderAmount returns the resting amount for an order, 0 if not open.
func (c *Connector) OpenOrderAmount(orderID string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.orders[orderID]
	if !ok || !st.open {
		return 0
	}
	return st.candidate.Amount
}

// OpenOrders returns the IDs of all currently open orders.
func (c *Connector) OpenOrders() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for id, st := range c.orders {
		if st.open {
			ids = append(ids, id)
		}
	}
	return ids
}

// Order returns the candidate an order was placed with.
func (c *Connector) Order(orderID string) (domain.OrderCandidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.orders[orderID]
	if !ok {
		return domain.OrderCandidate{}, false
	}
	return st.candidate, true
}

func (c *Connector) emit(ev domain.OrderEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	select {
	case c.events <- ev:
	default:
		// Event buffer full; drop rather than block the venue.
	}
}

var _ exchange.Connector = (*Connector)(nil)
