package domain

import (
	"fmt"
	"time"
)

// ExecutorStatus is the position executor state machine.
type ExecutorStatus string

const (
	ExecutorStatusNotStarted     ExecutorStatus = "not_started"
	ExecutorStatusActivePosition ExecutorStatus = "active_position"
	ExecutorStatusCompleted      ExecutorStatus = "completed"
)

// IsTerminal reports whether the status is a final state.
func (s ExecutorStatus) IsTerminal() bool {
	return s == ExecutorStatusCompleted
}

// CloseType records why a position terminated.
type CloseType string

const (
	CloseTypeTimeLimit                CloseType = "time_limit"
	CloseTypeStopLoss                 CloseType = "stop_loss"
	CloseTypeTakeProfit               CloseType = "take_profit"
	CloseTypeEarlyStop                CloseType = "early_stop"
	CloseTypeTrailingStop             CloseType = "trailing_stop"
	CloseTypeInsufficientBalance      CloseType = "insufficient_balance"
	CloseTypeHedge                    CloseType = "hedge"
	CloseTypeInsufficientBalanceHedge CloseType = "insufficient_balance_hedge"
)

// TrailingStop holds the trailing-stop barrier parameters. All values are
// price fractions relative to entry (0.006 = 0.6%).
type TrailingStop struct {
	ActivationPriceDelta float64
	TrailingDelta        float64
}

// TripleBarrierConf bundles the stop-loss, take-profit, and time-limit exit
// conditions plus the optional trailing stop. Zero values disable a barrier.
type TripleBarrierConf struct {
	StopLoss     float64 // fraction
	TakeProfit   float64 // fraction
	TimeLimit    time.Duration
	TrailingStop *TrailingStop

	TakeProfitOrderType OrderType
}

// OrderLevel is one immutable configured quoting level. A level owns at most
// one live position executor at a time.
type OrderLevel struct {
	Side           OrderSide
	Level          int
	TargetNotional float64 // quote units
	SpreadFactor   float64 // multiplicative markup applied to the hedge price
	TripleBarrier  TripleBarrierConf
	RefreshTime    time.Duration
	CooldownTime   time.Duration
}

// ID returns a stable identifier for the level, unique within a handler.
func (l OrderLevel) ID() string {
	return fmt.Sprintf("%s_%d", l.Side, l.Level)
}

// HedgeConfig holds the taker-leg parameters of a position. A nil HedgeConfig
// on a PositionConfig means the position is maker-only.
type HedgeConfig struct {
	Exchange      string
	TradingPair   string
	OrderType     OrderType
	Profitability float64 // fraction; 0 disables the hedge barrier
}

// PositionConfig is the fully resolved parameter set for one position
// attempt. It is created once by the controller and never mutated.
type PositionConfig struct {
	Timestamp     time.Time
	Exchange      string
	TradingPair   string
	Side          OrderSide
	Amount        float64 // base units
	EntryPrice    float64
	OpenOrderType OrderType
	Leverage      int

	TripleBarrier TripleBarrierConf
	Hedge         *HedgeConfig
}

// PositionRecord is the persisted/reported record of a closed position.
type PositionRecord struct {
	ID             string
	Timestamp      time.Time
	Exchange       string
	TradingPair    string
	HedgeExchange  string
	HedgePair      string
	Side           OrderSide
	FilledAmount   float64
	TradePnL       float64 // fraction
	TradePnLQuote  float64
	CumFeesQuote   float64
	NetPnL         float64
	NetPnLQuote    float64
	CloseTimestamp time.Time
	Status         ExecutorStatus
	CloseType      CloseType
	EntryPrice     float64
	ClosePrice     float64
	StopLoss       float64
	TakeProfit     float64
	TimeLimit      time.Duration
	Leverage       int
}
