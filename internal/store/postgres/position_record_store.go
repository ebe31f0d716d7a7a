package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avyukov/hedgebot/internal/domain"
)

// PositionRecordStore implements domain.PositionRecordStore using PostgreSQL.
type PositionRecordStore struct {
	pool *pgxpool.Pool
}

// NewPositionRecordStore creates a store backed by the given connection pool.
func NewPositionRecordStore(pool *pgxpool.Pool) *PositionRecordStore {
	return &PositionRecordStore{pool: pool}
}

const recordSelectCols = `id, created_at, exchange, trading_pair, hedge_exchange, hedge_pair,
	side, filled_amount, trade_pnl, trade_pnl_quote, cum_fees_quote,
	net_pnl, net_pnl_quote, closed_at, status, close_type,
	entry_price, close_price, stop_loss, take_profit, time_limit_secs, leverage`

func scanRecordRow(row pgx.Row) (domain.PositionRecord, error) {
	var rec domain.PositionRecord
	var side, status, closeType string
	var timeLimitSecs int64

	err := row.Scan(
		&rec.ID, &rec.Timestamp, &rec.Exchange, &rec.TradingPair,
		&rec.HedgeExchange, &rec.HedgePair,
		&side, &rec.FilledAmount,
		&rec.TradePnL, &rec.TradePnLQuote, &rec.CumFeesQuote,
		&rec.NetPnL, &rec.NetPnLQuote,
		&rec.CloseTimestamp, &status, &closeType,
		&rec.EntryPrice, &rec.ClosePrice,
		&rec.StopLoss, &rec.TakeProfit, &timeLimitSecs, &rec.Leverage,
	)
	if err != nil {
		return domain.PositionRecord{}, err
	}
	rec.Side = domain.OrderSide(side)
	rec.Status = domain.ExecutorStatus(status)
	rec.CloseType = domain.CloseType(closeType)
	rec.TimeLimit = time.Duration(timeLimitSecs) * time.Second
	return rec, nil
}

// Create inserts a closed-position record.
func (s *PositionRecordStore) Create(ctx context.Context, rec domain.PositionRecord) error {
	const query = `
		INSERT INTO positions (
			id, created_at, exchange, trading_pair, hedge_exchange, hedge_pair,
			side, filled_amount, trade_pnl, trade_pnl_quote, cum_fees_quote,
			net_pnl, net_pnl_quote, closed_at, status, close_type,
			entry_price, close_price, stop_loss, take_profit, time_limit_secs, leverage
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22
		)`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.Timestamp, rec.Exchange, rec.TradingPair,
		rec.HedgeExchange, rec.HedgePair,
		string(rec.Side), rec.FilledAmount,
		rec.TradePnL, rec.TradePnLQuote, rec.CumFeesQuote,
		rec.NetPnL, rec.NetPnLQuote,
		rec.CloseTimestamp, string(rec.Status), string(rec.CloseType),
		rec.EntryPrice, rec.ClosePrice,
		rec.StopLoss, rec.TakeProfit, int64(rec.TimeLimit/time.Second), rec.Leverage,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position record %s: %w", rec.ID, err)
	}
	return nil
}

// GetByID retrieves a single record by its ID.
func (s *PositionRecordStore) GetByID(ctx context.Context, id string) (domain.PositionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordSelectCols+` FROM positions WHERE id = $1`, id)

	rec, err := scanRecordRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.PositionRecord{}, domain.ErrNotFound
		}
		return domain.PositionRecord{}, fmt.Errorf("postgres: get position record %s: %w", id, err)
	}
	return rec, nil
}

// ListHistory returns records for the given exchange with pagination and
// optional time filtering.
func (s *PositionRecordStore) ListHistory(ctx context.Context, exchange string, opts domain.ListOpts) ([]domain.PositionRecord, error) {
	query := `SELECT ` + recordSelectCols + ` FROM positions WHERE exchange = $1`
	args := []any{exchange}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND closed_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND closed_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY closed_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list position history: %w", err)
	}
	defer rows.Close()

	var records []domain.PositionRecord
	for rows.Next() {
		rec, err := scanRecordRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position history: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list position history: %w", err)
	}
	return records, nil
}

var _ domain.PositionRecordStore = (*PositionRecordStore)(nil)
