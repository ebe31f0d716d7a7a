// Package exchange defines the boundary to a trading venue. Everything the
// position executors know about a venue goes through the Connector interface;
// concrete implementations live in sub-packages.
package exchange

import (
	"context"

	"github.com/avyukov/hedgebot/internal/domain"
)

// Connector is a single venue connection. Order lifecycle events for every
// order placed through a connector are delivered, in lifecycle order per
// order, on the Events channel. Book queries are safe for shared read-only
// use across executors.
type Connector interface {
	// Name returns the venue identifier (e.g. "whitebit").
	Name() string

	// GetOrderBook returns the current book snapshot for the pair. Bids are
	// descending, asks ascending by price.
	GetOrderBook(ctx context.Context, tradingPair string) (domain.OrderbookSnapshot, error)

	// PlaceOrder submits an order and returns the venue order ID. A
	// synchronous rejection returns an error; the asynchronous terminal
	// outcome arrives via Events.
	PlaceOrder(ctx context.Context, candidate domain.OrderCandidate) (string, error)

	// CancelOrder requests cancellation. Completion is signaled by a
	// cancelled event; "already filled" surfaces as fill/completed events
	// instead and is not an error.
	CancelOrder(ctx context.Context, tradingPair, orderID string) error

	// BudgetAdjustedAmount returns the maximum tradable base amount for the
	// candidate under current balance/margin constraints. Zero means the
	// account cannot support any part of the candidate.
	BudgetAdjustedAmount(ctx context.Context, candidate domain.OrderCandidate) (float64, error)

	// Events is the stream of order lifecycle events for this connection.
	Events() <-chan domain.OrderEvent
}
