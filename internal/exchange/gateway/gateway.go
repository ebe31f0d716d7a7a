// Package gateway implements exchange.Connector against an execution gateway:
// a REST API for order placement, cancellation, and budget checks, plus a
// WebSocket stream of order lifecycle events. Order books come from the
// venue's book feed rather than REST polling.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avyukov/hedgebot/internal/domain"
	"github.com/avyukov/hedgebot/internal/exchange"
	"github.com/avyukov/hedgebot/internal/feed"
)

// Config holds the gateway endpoints and credentials for one venue.
type Config struct {
	Name     string
	RestHost string
	WsHost   string
	ApiKey   string
}

// Connector talks to one venue through its execution gateway. GetOrderBook is
// served from the attached book feed; order state flows through the events
// stream consumed by Run.
type Connector struct {
	cfg        Config
	books      *feed.BookFeed
	httpClient *http.Client
	logger     *slog.Logger
	events     chan domain.OrderEvent
}

// New creates a gateway connector. The book feed must cover every pair the
// connector will be asked about.
func New(cfg Config, books *feed.BookFeed, logger *slog.Logger) *Connector {
	return &Connector{
		cfg:        cfg,
		books:      books,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With(slog.String("component", "gateway_connector"), slog.String("exchange", cfg.Name)),
		events:     make(chan domain.OrderEvent, 1024),
	}
}

// Name returns the venue identifier.
func (c *Connector) Name() string { return c.cfg.Name }

// GetOrderBook returns the latest streamed snapshot for the pair.
func (c *Connector) GetOrderBook(_ context.Context, tradingPair string) (domain.OrderbookSnapshot, error) {
	snap, ok := c.books.Snapshot(tradingPair)
	if !ok {
		return domain.OrderbookSnapshot{}, fmt.Errorf("gateway %s: book %s: %w", c.cfg.Name, tradingPair, domain.ErrNotFound)
	}
	return snap, nil
}

type orderRequest struct {
	TradingPair    string  `json:"trading_pair"`
	Side           string  `json:"side"`
	Type           string  `json:"type"`
	Amount         float64 `json:"amount"`
	Price          float64 `json:"price"`
	PositionAction string  `json:"position_action"`
	Leverage       int     `json:"leverage"`
}

func toOrderRequest(cand domain.OrderCandidate) orderRequest {
	return orderRequest{
		TradingPair:    cand.TradingPair,
		Side:           string(cand.Side),
		Type:           string(cand.Type),
		Amount:         cand.Amount,
		Price:          cand.Price,
		PositionAction: string(cand.PositionAction),
		Leverage:       cand.Leverage,
	}
}

// PlaceOrder submits the order and returns the venue order ID.
func (c *Connector) PlaceOrder(ctx context.Context, cand domain.OrderCandidate) (string, error) {
	var resp struct {
		OrderID string `json:"order_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/orders", toOrderRequest(cand), &resp); err != nil {
		return "", fmt.Errorf("gateway %s: place %s %s: %w", c.cfg.Name, cand.Side, cand.TradingPair, err)
	}
	if resp.OrderID == "" {
		return "", fmt.Errorf("gateway %s: place order: empty order id: %w", c.cfg.Name, domain.ErrOrderRejected)
	}
	return resp.OrderID, nil
}

// CancelOrder cancels a resting order. A 404 from the gateway confirms the
// order is already gone and is not an error.
func (c *Connector) CancelOrder(ctx context.Context, tradingPair, orderID string) error {
	path := "/orders/" + url.PathEscape(orderID) + "?trading_pair=" + url.QueryEscape(tradingPair)
	err := c.doJSON(ctx, http.MethodDelete, path, nil, nil)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("gateway %s: cancel order %s: %w", c.cfg.Name, orderID, err)
	}
	return nil
}

// BudgetAdjustedAmount asks the gateway for the maximum tradable base amount
// for the candidate under current balances.
func (c *Connector) BudgetAdjustedAmount(ctx context.Context, cand domain.OrderCandidate) (float64, error) {
	var resp struct {
		Amount float64 `json:"amount"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/budget", toOrderRequest(cand), &resp); err != nil {
		return 0, fmt.Errorf("gateway %s: budget check: %w", c.cfg.Name, err)
	}
	return resp.Amount, nil
}

// Events returns the lifecycle event stream. Run must be active for events to
// flow.
func (c *Connector) Events() <-chan domain.OrderEvent {
	return c.events
}

// statusError carries a non-2xx gateway response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.code == http.StatusNotFound
}

func (c *Connector) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.RestHost+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.ApiKey != "" {
		req.Header.Set("X-API-Key", c.cfg.ApiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &statusError{code: resp.StatusCode, body: string(respBody)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// orderEventMessage is the wire format of one lifecycle event.
type orderEventMessage struct {
	Type        string  `json:"type"`
	Event       string  `json:"event"`
	OrderID     string  `json:"order_id"`
	TradingPair string  `json:"trading_pair"`
	Amount      float64 `json:"amount"`
	Price       float64 `json:"price"`
	Fee         float64 `json:"fee"`
	TimestampMs int64   `json:"ts"`
}

// Run consumes the order-event stream until ctx is cancelled, reconnecting on
// disconnect. Events arriving while the buffer is full are dropped; the
// executor layer resynchronizes resting sizes on later fills.
func (c *Connector) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := c.runEventStream(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("event stream disconnected, reconnecting",
			slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (c *Connector) runEventStream(ctx context.Context) error {
	header := http.Header{}
	if c.cfg.ApiKey != "" {
		header.Set("X-API-Key", c.cfg.ApiKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.WsHost, header)
	if err != nil {
		return fmt.Errorf("gateway %s: dial events: %w", c.cfg.Name, err)
	}
	defer conn.Close()

	sub := map[string]string{"op": "subscribe", "channel": "orders"}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("gateway %s: subscribe events: %w", c.cfg.Name, err)
	}
	c.logger.Info("order event stream subscribed")

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
			return
		}
		_ = conn.Close()
	}()

	for {
		var msg orderEventMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("gateway %s: read events: %w", c.cfg.Name, domain.ErrWSDisconnect)
		}
		if msg.Type != "order_event" || msg.OrderID == "" {
			continue
		}
		ev := domain.OrderEvent{
			Type:        domain.OrderEventType(msg.Event),
			OrderID:     msg.OrderID,
			TradingPair: msg.TradingPair,
			Amount:      msg.Amount,
			Price:       msg.Price,
			Fee:         msg.Fee,
			Timestamp:   time.UnixMilli(msg.TimestampMs).UTC(),
		}
		select {
		case c.events <- ev:
		default:
			c.logger.Warn("event buffer full, dropping event",
				slog.String("order_id", ev.OrderID))
		}
	}
}

var _ exchange.Connector = (*Connector)(nil)
