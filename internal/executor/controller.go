package executor

import (
	"log/slog"
	"time"

	"github.com/avyukov/hedgebot/internal/domain"
)

// ControllerConfig is the fully resolved, immutable controller parameter set.
// It is produced once at startup by the config package; no fallback lookups
// happen after that.
type ControllerConfig struct {
	Exchange      string
	TradingPair   string
	OpenOrderType domain.OrderType
	Leverage      int

	HedgeExchange      string
	HedgePair          string
	HedgeOrderType     domain.OrderType
	TakerProfitability float64 // fraction; 0 disables the hedge leg barrier
}

// HasHedgeLeg reports whether positions created from this config carry a
// taker leg.
func (c ControllerConfig) HasHedgeLeg() bool {
	return c.HedgeExchange != "" && c.HedgePair != ""
}

// HedgePrices holds the volume-weighted reference prices per level index,
// taken from the hedge venue's book, or from the maker's own book when no
// hedge leg is configured. Buy is the cost of buying (walked asks), Sell the
// proceeds of selling (walked bids). A zero entry means no price available.
type HedgePrices struct {
	Buy  []float64
	Sell []float64
}

// EarlyStopFunc is a strategy-specific override hook evaluated per tick.
type EarlyStopFunc func(ex *PositionExecutor, level domain.OrderLevel) bool

// OrderLevelController decides, per configured level, whether to create a new
// position executor, keep the existing one, or force it out early.
type OrderLevelController struct {
	cfg       ControllerConfig
	earlyStop EarlyStopFunc
	logger    *slog.Logger
}

// NewOrderLevelController creates a controller with the default (always
// false) early-stop policy.
func NewOrderLevelController(cfg ControllerConfig, logger *slog.Logger) *OrderLevelController {
	return &OrderLevelController{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "order_level_controller")),
	}
}

// SetEarlyStopFunc installs a strategy-specific early-stop override.
func (c *OrderLevelController) SetEarlyStopFunc(f EarlyStopFunc) {
	c.earlyStop = f
}

// Config returns the controller configuration.
func (c *OrderLevelController) Config() ControllerConfig { return c.cfg }

// RefreshOrderCondition is true when the executor's resting entry order has
// sat unfilled past the level's refresh interval and should be re-priced.
func (c *OrderLevelController) RefreshOrderCondition(now time.Time, ex *PositionExecutor, level domain.OrderLevel) bool {
	if level.RefreshTime <= 0 {
		return false
	}
	if ex.Status() != domain.ExecutorStatusNotStarted || ex.IsTrading() {
		return false
	}
	return now.Sub(ex.CreatedAt()) >= level.RefreshTime
}

// CooldownCondition is true while the level must stay idle after its last
// close.
func (c *OrderLevelController) CooldownCondition(now time.Time, ex *PositionExecutor, level domain.OrderLevel) bool {
	if !ex.Status().IsTerminal() || level.CooldownTime <= 0 {
		return false
	}
	return now.Before(ex.CloseTimestamp().Add(level.CooldownTime))
}

// EarlyStopCondition applies the installed override hook; the default policy
// never forces a stop beyond the triple barrier.
func (c *OrderLevelController) EarlyStopCondition(ex *PositionExecutor, level domain.OrderLevel) bool {
	if c.earlyStop == nil {
		return false
	}
	return c.earlyStop(ex, level)
}

// PositionConfigFor derives the parameters of a new position attempt for the
// level: entry price comes from the reference volume-weighted price at the
// level's index with the level's spread applied, and amount from the target
// notional. It returns nil when no valid reference price exists for the
// level — the level is simply skipped this cycle.
func (c *OrderLevelController) PositionConfigFor(now time.Time, prices HedgePrices, level domain.OrderLevel) *domain.PositionConfig {
	var hedgePrice, entryPrice float64
	switch level.Side {
	case domain.OrderSideBuy:
		// A filled maker buy is hedged by selling on the hedge venue.
		if level.Level >= len(prices.Sell) {
			return nil
		}
		hedgePrice = prices.Sell[level.Level]
		entryPrice = hedgePrice * (1 - level.SpreadFactor)
	case domain.OrderSideSell:
		if level.Level >= len(prices.Buy) {
			return nil
		}
		hedgePrice = prices.Buy[level.Level]
		entryPrice = hedgePrice * (1 + level.SpreadFactor)
	default:
		return nil
	}
	if hedgePrice <= 0 || entryPrice <= 0 {
		return nil
	}

	cfg := &domain.PositionConfig{
		Timestamp:     now,
		Exchange:      c.cfg.Exchange,
		TradingPair:   c.cfg.TradingPair,
		Side:          level.Side,
		Amount:        level.TargetNotional / entryPrice,
		EntryPrice:    entryPrice,
		OpenOrderType: c.cfg.OpenOrderType,
		Leverage:      c.cfg.Leverage,
		TripleBarrier: level.TripleBarrier,
	}
	if c.cfg.HasHedgeLeg() {
		cfg.Hedge = &domain.HedgeConfig{
			Exchange:      c.cfg.HedgeExchange,
			TradingPair:   c.cfg.HedgePair,
			OrderType:     c.cfg.HedgeOrderType,
			Profitability: c.cfg.TakerProfitability,
		}
	}
	return cfg
}
