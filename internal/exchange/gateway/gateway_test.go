package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avyukov/hedgebot/internal/domain"
	"github.com/avyukov/hedgebot/internal/exchange/gateway"
	"github.com/avyukov/hedgebot/internal/feed"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeGateway fakes the execution gateway's REST API and events stream.
type fakeGateway struct {
	mu       sync.Mutex
	placed   []map[string]any
	canceled []string
	apiKeys  []string

	budgetAmount float64
	rejectPlace  bool
	events       [][]byte
}

func (g *fakeGateway) rest(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	g.apiKeys = append(g.apiKeys, r.Header.Get("X-API-Key"))
	g.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/orders":
		if g.rejectPlace {
			http.Error(w, `{"error":"insufficient margin"}`, http.StatusUnprocessableEntity)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		g.mu.Lock()
		g.placed = append(g.placed, body)
		g.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"order_id": "ord-1"})
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/orders/"):
		id := strings.TrimPrefix(r.URL.Path, "/orders/")
		if id == "missing" {
			http.NotFound(w, r)
			return
		}
		g.mu.Lock()
		g.canceled = append(g.canceled, id)
		g.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPost && r.URL.Path == "/budget":
		_ = json.NewEncoder(w).Encode(map[string]float64{"amount": g.budgetAmount})
	default:
		http.NotFound(w, r)
	}
}

func (g *fakeGateway) ws(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if _, _, err := conn.ReadMessage(); err != nil {
		return
	}
	for _, ev := range g.events {
		if err := conn.WriteMessage(websocket.TextMessage, ev); err != nil {
			return
		}
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func newTestConnector(t *testing.T, g *fakeGateway) (*gateway.Connector, *feed.BookFeed) {
	t.Helper()
	restSrv := httptest.NewServer(http.HandlerFunc(g.rest))
	t.Cleanup(restSrv.Close)
	wsSrv := httptest.NewServer(http.HandlerFunc(g.ws))
	t.Cleanup(wsSrv.Close)

	books := feed.NewBookFeed("test-venue", "ws://unused", []string{"ETH-USDT"}, nil, testLogger)
	c := gateway.New(gateway.Config{
		Name:     "test-venue",
		RestHost: restSrv.URL,
		WsHost:   "ws" + strings.TrimPrefix(wsSrv.URL, "http"),
		ApiKey:   "k-123",
	}, books, testLogger)
	return c, books
}

func TestPlaceOrderSendsCandidate(t *testing.T) {
	g := &fakeGateway{}
	c, _ := newTestConnector(t, g)

	id, err := c.PlaceOrder(context.Background(), domain.OrderCandidate{
		TradingPair:    "ETH-USDT",
		Side:           domain.OrderSideBuy,
		Type:           domain.OrderTypeLimit,
		Amount:         2.5,
		Price:          100.5,
		PositionAction: domain.PositionActionOpen,
		Leverage:       3,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if id != "ord-1" {
		t.Errorf("order id = %q", id)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.placed) != 1 {
		t.Fatalf("placed %d orders", len(g.placed))
	}
	body := g.placed[0]
	if body["trading_pair"] != "ETH-USDT" || body["side"] != "buy" || body["type"] != "limit" {
		t.Errorf("order body = %v", body)
	}
	if body["amount"].(float64) != 2.5 || body["price"].(float64) != 100.5 {
		t.Errorf("order body = %v", body)
	}
	if body["position_action"] != "open" || body["leverage"].(float64) != 3 {
		t.Errorf("order body = %v", body)
	}
	if g.apiKeys[0] != "k-123" {
		t.Errorf("api key header = %q", g.apiKeys[0])
	}
}

func TestPlaceOrderRejection(t *testing.T) {
	g := &fakeGateway{rejectPlace: true}
	c, _ := newTestConnector(t, g)

	_, err := c.PlaceOrder(context.Background(), domain.OrderCandidate{
		TradingPair: "ETH-USDT",
		Side:        domain.OrderSideBuy,
		Type:        domain.OrderTypeMarket,
		Amount:      1,
	})
	if err == nil {
		t.Fatal("expected error from rejected placement")
	}
	if !strings.Contains(err.Error(), "status 422") {
		t.Errorf("error = %v", err)
	}
}

func TestCancelOrder(t *testing.T) {
	g := &fakeGateway{}
	c, _ := newTestConnector(t, g)

	if err := c.CancelOrder(context.Background(), "ETH-USDT", "ord-7"); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	g.mu.Lock()
	canceled := append([]string(nil), g.canceled...)
	g.mu.Unlock()
	if len(canceled) != 1 || canceled[0] != "ord-7" {
		t.Errorf("canceled = %v", canceled)
	}

	// An order the gateway no longer knows is already gone: not an error.
	if err := c.CancelOrder(context.Background(), "ETH-USDT", "missing"); err != nil {
		t.Errorf("cancel of unknown order: %v", err)
	}
}

func TestBudgetAdjustedAmount(t *testing.T) {
	g := &fakeGateway{budgetAmount: 7.25}
	c, _ := newTestConnector(t, g)

	got, err := c.BudgetAdjustedAmount(context.Background(), domain.OrderCandidate{
		TradingPair: "ETH-USDT",
		Side:        domain.OrderSideBuy,
		Type:        domain.OrderTypeLimit,
		Amount:      10,
		Price:       100,
	})
	if err != nil {
		t.Fatalf("BudgetAdjustedAmount: %v", err)
	}
	if got != 7.25 {
		t.Errorf("amount = %v", got)
	}
}

func TestRunDeliversOrderEvents(t *testing.T) {
	g := &fakeGateway{events: [][]byte{
		[]byte(`{"type":"heartbeat"}`),
		[]byte(`{"type":"order_event","event":"created","order_id":"ord-1","trading_pair":"ETH-USDT","ts":1700000000000}`),
		[]byte(`{"type":"order_event","event":"filled","order_id":"ord-1","trading_pair":"ETH-USDT","amount":2,"price":100.5,"fee":0.2,"ts":1700000000500}`),
	}}
	c, _ := newTestConnector(t, g)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	var got []domain.OrderEvent
	timeout := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-c.Events():
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("received %d events, want 2", len(got))
		}
	}

	if got[0].Type != domain.OrderEventCreated || got[0].OrderID != "ord-1" {
		t.Errorf("first event = %+v", got[0])
	}
	fill := got[1]
	if fill.Type != domain.OrderEventFilled || fill.Amount != 2 || fill.Price != 100.5 || fill.Fee != 0.2 {
		t.Errorf("fill event = %+v", fill)
	}
	if fill.Timestamp.UnixMilli() != 1700000000500 {
		t.Errorf("fill timestamp = %v", fill.Timestamp)
	}
}

func TestGetOrderBookWithoutSnapshot(t *testing.T) {
	g := &fakeGateway{}
	c, _ := newTestConnector(t, g)

	_, err := c.GetOrderBook(context.Background(), "ETH-USDT")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound before any update", err)
	}
}
