package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avyukov/hedgebot/internal/domain"
)

// snapshotTTL bounds how long a cached book stays readable. Anything older is
// stale enough to be useless for pricing.
const snapshotTTL = 5 * time.Minute

// OrderbookCache implements domain.OrderbookCache. Each venue+pair book is
// stored as one JSON value under book:{exchange}:{pair} with a short TTL, so
// status tooling and restarts see recent market state without talking to the
// venues.
type OrderbookCache struct {
	rdb *redis.Client
}

// NewOrderbookCache creates an OrderbookCache backed by the given Client.
func NewOrderbookCache(c *Client) *OrderbookCache {
	return &OrderbookCache{rdb: c.rdb}
}

func bookKey(exchange, tradingPair string) string {
	return "book:" + exchange + ":" + tradingPair
}

type snapshotPayload struct {
	TradingPair string              `json:"trading_pair"`
	Bids        []domain.PriceLevel `json:"bids"`
	Asks        []domain.PriceLevel `json:"asks"`
	TimestampNs int64               `json:"ts"`
}

// SetSnapshot replaces the cached book for the snapshot's pair on the given
// exchange.
func (oc *OrderbookCache) SetSnapshot(ctx context.Context, exchange string, snap domain.OrderbookSnapshot) error {
	payload := snapshotPayload{
		TradingPair: snap.TradingPair,
		Bids:        snap.Bids,
		Asks:        snap.Asks,
		TimestampNs: snap.Timestamp.UnixNano(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("redis: encode orderbook snapshot %s %s: %w", exchange, snap.TradingPair, err)
	}

	key := bookKey(exchange, snap.TradingPair)
	if err := oc.rdb.Set(ctx, key, data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: set orderbook snapshot %s: %w", key, err)
	}
	return nil
}

// GetSnapshot returns the cached book for a venue+pair, or domain.ErrNotFound
// when nothing recent is cached.
func (oc *OrderbookCache) GetSnapshot(ctx context.Context, exchange, tradingPair string) (domain.OrderbookSnapshot, error) {
	key := bookKey(exchange, tradingPair)
	data, err := oc.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.OrderbookSnapshot{}, domain.ErrNotFound
		}
		return domain.OrderbookSnapshot{}, fmt.Errorf("redis: get orderbook snapshot %s: %w", key, err)
	}

	var payload snapshotPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("redis: decode orderbook snapshot %s: %w", key, err)
	}
	return domain.OrderbookSnapshot{
		TradingPair: payload.TradingPair,
		Bids:        payload.Bids,
		Asks:        payload.Asks,
		Timestamp:   time.Unix(0, payload.TimestampNs).UTC(),
	}, nil
}

// Compile-time interface check.
var _ domain.OrderbookCache = (*OrderbookCache)(nil)
