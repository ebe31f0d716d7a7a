package paper_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/avyukov/hedgebot/internal/domain"
	"github.com/avyukov/hedgebot/internal/exchange/paper"
)

func collectEvents(c *paper.Connector) []domain.OrderEvent {
	var out []domain.OrderEvent
	for {
		select {
		case ev := <-c.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestMarketOrderFillsAgainstBook(t *testing.T) {
	c := paper.New("paper-x")
	c.SetOrderBook("ETH-USDT", domain.OrderbookSnapshot{
		Bids: []domain.PriceLevel{{Price: 99, Size: 100}},
		Asks: []domain.PriceLevel{
			{Price: 100, Size: 5},
			{Price: 101, Size: 100},
		},
	})
	c.SetFeeRate(0.001)

	id, err := c.PlaceOrder(context.Background(), domain.OrderCandidate{
		TradingPair: "ETH-USDT",
		Side:        domain.OrderSideBuy,
		Type:        domain.OrderTypeMarket,
		Amount:      10,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	events := collectEvents(c)
	if len(events) != 3 {
		t.Fatalf("events = %d, want created+filled+completed", len(events))
	}
	if events[0].Type != domain.OrderEventCreated || events[1].Type != domain.OrderEventFilled || events[2].Type != domain.OrderEventCompleted {
		t.Fatalf("event sequence = %v %v %v", events[0].Type, events[1].Type, events[2].Type)
	}
	// 5 at 100 and 5 at 101.
	wantPrice := (5*100 + 5*101) / 10.0
	if math.Abs(events[1].Price-wantPrice) > 1e-9 {
		t.Fatalf("fill price = %v, want %v", events[1].Price, wantPrice)
	}
	if math.Abs(events[1].Fee-wantPrice*10*0.001) > 1e-9 {
		t.Fatalf("fee = %v", events[1].Fee)
	}
	if n := len(c.OpenOrders()); n != 0 {
		t.Fatalf("open orders after market fill = %d, want 0", n)
	}
	if events[1].OrderID != id {
		t.Fatalf("fill order id = %s, want %s", events[1].OrderID, id)
	}
}

func TestLimitOrderRestsUntilDriven(t *testing.T) {
	c := paper.New("paper-x")
	id, err := c.PlaceOrder(context.Background(), domain.OrderCandidate{
		TradingPair: "ETH-USDT",
		Side:        domain.OrderSideSell,
		Type:        domain.OrderTypeLimit,
		Amount:      2,
		Price:       105,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if got := c.OpenOrderAmount(id); got != 2 {
		t.Fatalf("resting amount = %v, want 2", got)
	}

	c.Fill(id, 1, 105, 0)
	c.Complete(id)
	events := collectEvents(c)
	if got := events[len(events)-1].Type; got != domain.OrderEventCompleted {
		t.Fatalf("last event = %v, want completed", got)
	}

	// Driving a closed order again is a no-op.
	c.Fill(id, 1, 105, 0)
	if extra := collectEvents(c); len(extra) != 0 {
		t.Fatalf("events after completion = %d, want 0", len(extra))
	}
}

func TestMatchBookFillsCrossedLimits(t *testing.T) {
	c := paper.New("paper-x")
	c.SetFeeRate(0.001)

	buyID, err := c.PlaceOrder(context.Background(), domain.OrderCandidate{
		TradingPair: "ETH-USDT",
		Side:        domain.OrderSideBuy,
		Type:        domain.OrderTypeLimit,
		Amount:      2,
		Price:       100,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	sellID, err := c.PlaceOrder(context.Background(), domain.OrderCandidate{
		TradingPair: "ETH-USDT",
		Side:        domain.OrderSideSell,
		Type:        domain.OrderTypeLimit,
		Amount:      1,
		Price:       110,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	collectEvents(c)

	// Ask above the buy limit: nothing crosses.
	c.SetOrderBook("ETH-USDT", domain.OrderbookSnapshot{
		Bids: []domain.PriceLevel{{Price: 100.4, Size: 10}},
		Asks: []domain.PriceLevel{{Price: 100.5, Size: 10}},
	})
	c.MatchBook("ETH-USDT")
	if events := collectEvents(c); len(events) != 0 {
		t.Fatalf("events = %d, want 0 while uncrossed", len(events))
	}

	// Ask drops through the buy limit: the buy fills at its limit price.
	c.SetOrderBook("ETH-USDT", domain.OrderbookSnapshot{
		Bids: []domain.PriceLevel{{Price: 99.8, Size: 10}},
		Asks: []domain.PriceLevel{{Price: 99.9, Size: 10}},
	})
	c.MatchBook("ETH-USDT")
	events := collectEvents(c)
	if len(events) != 2 || events[0].Type != domain.OrderEventFilled || events[1].Type != domain.OrderEventCompleted {
		t.Fatalf("events = %+v, want filled+completed", events)
	}
	if events[0].OrderID != buyID || events[0].Price != 100 || events[0].Amount != 2 {
		t.Fatalf("fill = %+v", events[0])
	}
	if math.Abs(events[0].Fee-100*2*0.001) > 1e-9 {
		t.Fatalf("fee = %v", events[0].Fee)
	}
	if got := c.OpenOrderAmount(sellID); got != 1 {
		t.Fatalf("sell order should still rest, amount = %v", got)
	}
}

func TestCancelUnknownOrderIsNoOp(t *testing.T) {
	c := paper.New("paper-x")
	if err := c.CancelOrder(context.Background(), "ETH-USDT", "missing"); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if events := collectEvents(c); len(events) != 0 {
		t.Fatalf("events = %d, want 0", len(events))
	}
}

func TestFailNextPlacements(t *testing.T) {
	c := paper.New("paper-x")
	c.FailNextPlacements(1)

	cand := domain.OrderCandidate{TradingPair: "ETH-USDT", Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit, Amount: 1, Price: 100}
	if _, err := c.PlaceOrder(context.Background(), cand); !errors.Is(err, domain.ErrOrderRejected) {
		t.Fatalf("err = %v, want %v", err, domain.ErrOrderRejected)
	}
	if _, err := c.PlaceOrder(context.Background(), cand); err != nil {
		t.Fatalf("second placement failed: %v", err)
	}
}

func TestGetOrderBookUnknownPair(t *testing.T) {
	c := paper.New("paper-x")
	if _, err := c.GetOrderBook(context.Background(), "ETH-USDT"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want %v", err, domain.ErrNotFound)
	}
}
