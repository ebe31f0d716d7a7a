// Package feed streams venue order books over WebSocket. A BookFeed keeps the
// latest snapshot per trading pair and invokes an optional handler on every
// update; it reconnects with backoff on disconnect.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avyukov/hedgebot/internal/domain"
)

const (
	readTimeout    = 30 * time.Second
	pingInterval   = 15 * time.Second
	reconnectDelay = 2 * time.Second
)

// BookUpdateHandler is called for each decoded orderbook snapshot.
type BookUpdateHandler func(ctx context.Context, snap domain.OrderbookSnapshot)

// bookMessage is the wire format of one book update: price/size levels as
// decimal strings, best first.
type bookMessage struct {
	Type        string      `json:"type"`
	TradingPair string      `json:"trading_pair"`
	Bids        [][2]string `json:"bids"`
	Asks        [][2]string `json:"asks"`
	TimestampMs int64       `json:"ts"`
}

type subscribeMessage struct {
	Op           string   `json:"op"`
	Channel      string   `json:"channel"`
	TradingPairs []string `json:"trading_pairs"`
}

// BookFeed subscribes to the book channel of one venue for a set of trading
// pairs. Snapshot is safe for concurrent use; Run owns the connection.
type BookFeed struct {
	exchange string
	wsHost   string
	pairs    []string
	onBook   BookUpdateHandler
	logger   *slog.Logger

	mu     sync.RWMutex
	latest map[string]domain.OrderbookSnapshot

	closeOnce sync.Once
	done      chan struct{}
}

// NewBookFeed creates a feed for the given venue and pairs. The handler may
// be nil when only Snapshot polling is needed.
func NewBookFeed(exchange, wsHost string, pairs []string, onBook BookUpdateHandler, logger *slog.Logger) *BookFeed {
	return &BookFeed{
		exchange: exchange,
		wsHost:   wsHost,
		pairs:    pairs,
		onBook:   onBook,
		logger:   logger.With(slog.String("component", "book_feed"), slog.String("exchange", exchange)),
		latest:   make(map[string]domain.OrderbookSnapshot),
		done:     make(chan struct{}),
	}
}

// Snapshot returns the latest book seen for a pair.
func (f *BookFeed) Snapshot(tradingPair string) (domain.OrderbookSnapshot, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	snap, ok := f.latest[tradingPair]
	return snap, ok
}

// Run connects, subscribes, and consumes book updates until ctx is cancelled
// or Close is called. Reconnects with a fixed backoff on disconnect.
func (f *BookFeed) Run(ctx context.Context) error {
	if len(f.pairs) == 0 {
		f.logger.Info("no trading pairs to subscribe, exiting")
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-f.done:
			return nil
		default:
		}
		f.logger.Warn("book feed disconnected, reconnecting",
			slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (f *BookFeed) runConnection(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsHost, nil)
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", f.wsHost, err)
	}
	defer conn.Close()

	sub := subscribeMessage{Op: "subscribe", Channel: "book", TradingPairs: f.pairs}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	f.logger.Info("book feed subscribed", slog.Int("pairs", len(f.pairs)))

	// Close the connection when the context ends so ReadMessage unblocks.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
		case <-stop:
			return
		}
		_ = conn.Close()
	}()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	go f.pingLoop(conn, stop)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return fmt.Errorf("feed: set read deadline: %w", err)
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", domain.ErrWSDisconnect)
		}
		f.handleMessage(ctx, data)
	}
}

func (f *BookFeed) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (f *BookFeed) handleMessage(ctx context.Context, data []byte) {
	var msg bookMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		f.logger.Debug("undecodable feed message skipped",
			slog.String("error", err.Error()))
		return
	}
	if msg.Type != "book" || msg.TradingPair == "" {
		return
	}

	snap := domain.OrderbookSnapshot{
		TradingPair: msg.TradingPair,
		Bids:        parseLevels(msg.Bids),
		Asks:        parseLevels(msg.Asks),
		Timestamp:   time.UnixMilli(msg.TimestampMs).UTC(),
	}
	if msg.TimestampMs == 0 {
		snap.Timestamp = time.Now().UTC()
	}

	f.mu.Lock()
	f.latest[msg.TradingPair] = snap
	f.mu.Unlock()

	if f.onBook != nil {
		f.onBook(ctx, snap)
	}
}

func parseLevels(raw [][2]string) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, len(raw))
	for _, lvl := range raw {
		price, err := strconv.ParseFloat(lvl[0], 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(lvl[1], 64)
		if err != nil {
			continue
		}
		levels = append(levels, domain.PriceLevel{Price: price, Size: size})
	}
	return levels
}

// Close stops the feed.
func (f *BookFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
