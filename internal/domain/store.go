package domain

import (
	"context"
	"time"
)

// ListOpts controls pagination and time filtering for history queries.
type ListOpts struct {
	Since  *time.Time
	Until  *time.Time
	Limit  int
	Offset int
}

// PositionRecordStore persists closed-position records.
type PositionRecordStore interface {
	Create(ctx context.Context, rec PositionRecord) error
	GetByID(ctx context.Context, id string) (PositionRecord, error)
	ListHistory(ctx context.Context, exchange string, opts ListOpts) ([]PositionRecord, error)
}

// OrderbookCache stores the last-known orderbook snapshot per venue+pair so
// status tooling and restarts can read recent market state.
type OrderbookCache interface {
	SetSnapshot(ctx context.Context, exchange string, snap OrderbookSnapshot) error
	GetSnapshot(ctx context.Context, exchange, tradingPair string) (OrderbookSnapshot, error)
}
