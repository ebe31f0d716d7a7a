// Package executor contains the position lifecycle core: the per-position
// state machine (PositionExecutor), the per-level policy
// (OrderLevelController), and the tick loop that drives them
// (ExecutorHandler). All executor state is owned by a single handler
// goroutine; no internal locking is needed.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/avyukov/hedgebot/internal/domain"
	"github.com/avyukov/hedgebot/internal/exchange"
)

// amountTolerance is the slack used when comparing base amounts, matching
// venue rounding noise.
const amountTolerance = 1e-9

// PositionExecutor owns the full lifecycle of one maker position: the resting
// entry order, its take-profit and close orders on the maker venue, and the
// offsetting hedge order on the hedge venue.
type PositionExecutor struct {
	id     string
	cfg    domain.PositionConfig
	maker  exchange.Connector
	hedge  exchange.Connector
	logger *slog.Logger

	status         domain.ExecutorStatus
	closeType      domain.CloseType
	closeTimestamp time.Time
	createdAt      time.Time
	activatedAt    time.Time // first maker fill

	openOrder       TrackedOrder
	takeProfitOrder TrackedOrder
	closeOrder      TrackedOrder
	hedgeOrder      TrackedOrder

	currentPrice      float64
	trailingActivated bool
	trailingBest      float64
	stopRequested     bool // entry cancel sent, waiting for the venue verdict
}

// NewPositionExecutor creates an executor in the not-started state. The hedge
// connector may equal the maker connector when both legs share a venue.
func NewPositionExecutor(cfg domain.PositionConfig, maker, hedge exchange.Connector, logger *slog.Logger, now time.Time) *PositionExecutor {
	return &PositionExecutor{
		id:        uuid.New().String(),
		cfg:       cfg,
		maker:     maker,
		hedge:     hedge,
		logger:    logger.With(slog.String("component", "position_executor"), slog.String("pair", cfg.TradingPair), slog.String("side", string(cfg.Side))),
		status:    domain.ExecutorStatusNotStarted,
		createdAt: now,
	}
}

// ID returns the executor's unique identifier.
func (p *PositionExecutor) ID() string { return p.id }

// Config returns the immutable position configuration.
func (p *PositionExecutor) Config() domain.PositionConfig { return p.cfg }

// Status returns the current state-machine state.
func (p *PositionExecutor) Status() domain.ExecutorStatus { return p.status }

// CloseType returns the terminal reason, empty while open.
func (p *PositionExecutor) CloseType() domain.CloseType { return p.closeType }

// CloseTimestamp returns when the executor reached a terminal state.
func (p *PositionExecutor) CloseTimestamp() time.Time { return p.closeTimestamp }

// CreatedAt returns the executor's creation (placement) timestamp.
func (p *PositionExecutor) CreatedAt() time.Time { return p.createdAt }

// FilledAmount is the executed base amount of the maker entry order. It only
// grows while the entry order is open.
func (p *PositionExecutor) FilledAmount() float64 { return p.openOrder.Executed }

// IsTrading reports whether the maker leg has any executed amount.
func (p *PositionExecutor) IsTrading() bool { return p.openOrder.Executed > 0 }

// UnhedgedAmount is the filled amount not yet covered by offsetting
// executions. It is the volume the hedge pricer should quote for.
func (p *PositionExecutor) UnhedgedAmount() float64 {
	rem := p.openOrder.Executed - p.takeProfitOrder.Executed - p.hedgeOrder.Executed - p.closeOrder.Executed
	if rem < 0 {
		return 0
	}
	return rem
}

// OwnsOrder reports whether the given venue order ID belongs to this
// executor. Handlers use it to route lifecycle events.
func (p *PositionExecutor) OwnsOrder(orderID string) bool {
	return p.trackedFor(orderID) != nil
}

func (p *PositionExecutor) trackedFor(orderID string) *TrackedOrder {
	if orderID == "" {
		return nil
	}
	switch orderID {
	case p.openOrder.OrderID:
		return &p.openOrder
	case p.takeProfitOrder.OrderID:
		return &p.takeProfitOrder
	case p.closeOrder.OrderID:
		return &p.closeOrder
	case p.hedgeOrder.OrderID:
		return &p.hedgeOrder
	}
	return nil
}

// EntryPrice returns the average fill price of the entry order, falling back
// to the configured entry price before any fill.
func (p *PositionExecutor) EntryPrice() float64 {
	if avg := p.openOrder.AvgFillPrice(); avg > 0 {
		return avg
	}
	return p.cfg.EntryPrice
}

// ClosePrice returns the average price at which executed amount was offset,
// falling back to the last observed price while the position is open.
func (p *PositionExecutor) ClosePrice() float64 {
	executed := p.takeProfitOrder.Executed + p.hedgeOrder.Executed + p.closeOrder.Executed
	if executed > 0 {
		quote := p.takeProfitOrder.QuoteExecuted + p.hedgeOrder.QuoteExecuted + p.closeOrder.QuoteExecuted
		return quote / executed
	}
	return p.currentPrice
}

// TradePnL returns the position PnL as a fraction of entry price, before
// fees. Unrealized while open, realized once closed.
func (p *PositionExecutor) TradePnL() float64 {
	entry := p.EntryPrice()
	exit := p.ClosePrice()
	if entry <= 0 || exit <= 0 || !p.IsTrading() {
		return 0
	}
	if p.cfg.Side == domain.OrderSideBuy {
		return (exit - entry) / entry
	}
	return (entry - exit) / entry
}

// TradePnLQuote returns TradePnL in quote units over the filled amount.
func (p *PositionExecutor) TradePnLQuote() float64 {
	return p.TradePnL() * p.openOrder.Executed * p.EntryPrice()
}

// CumFeesQuote is the total fees paid across all four orders.
func (p *PositionExecutor) CumFeesQuote() float64 {
	return p.openOrder.FeesQuote + p.takeProfitOrder.FeesQuote + p.closeOrder.FeesQuote + p.hedgeOrder.FeesQuote
}

// NetPnLQuote is TradePnLQuote minus fees.
func (p *PositionExecutor) NetPnLQuote() float64 {
	return p.TradePnLQuote() - p.CumFeesQuote()
}

// NotionalQuote is the filled exposure valued at entry.
func (p *PositionExecutor) NotionalQuote() float64 {
	return p.openOrder.Executed * p.EntryPrice()
}

// Start verifies budgets on both legs and places the maker entry order.
// Budget insufficiency terminates the executor with the corresponding close
// type instead of returning an error; only collaborator failures propagate.
func (p *PositionExecutor) Start(ctx context.Context, now time.Time) error {
	if p.status.IsTerminal() {
		return nil
	}

	if p.cfg.Hedge != nil {
		adjusted, err := p.hedge.BudgetAdjustedAmount(ctx, p.hedgeCandidate(p.cfg.Amount))
		if err != nil {
			return fmt.Errorf("executor: hedge budget check: %w", err)
		}
		if adjusted <= amountTolerance {
			p.logger.Error("not enough budget on hedge venue to cover the position")
			p.terminate(domain.CloseTypeInsufficientBalanceHedge, now)
			return nil
		}
	}

	openCand := p.openCandidate()
	adjusted, err := p.maker.BudgetAdjustedAmount(ctx, openCand)
	if err != nil {
		return fmt.Errorf("executor: maker budget check: %w", err)
	}
	if adjusted <= amountTolerance {
		p.logger.Error("not enough budget on maker venue to open the position")
		p.terminate(domain.CloseTypeInsufficientBalance, now)
		return nil
	}

	p.placeOpenOrder(ctx)
	return nil
}

func (p *PositionExecutor) openCandidate() domain.OrderCandidate {
	return domain.OrderCandidate{
		TradingPair:    p.cfg.TradingPair,
		Side:           p.cfg.Side,
		Type:           p.cfg.OpenOrderType,
		Amount:         p.cfg.Amount,
		Price:          p.cfg.EntryPrice,
		PositionAction: domain.PositionActionOpen,
		Leverage:       p.cfg.Leverage,
	}
}

func (p *PositionExecutor) hedgeCandidate(amount float64) domain.OrderCandidate {
	h := p.cfg.Hedge
	return domain.OrderCandidate{
		TradingPair:    h.TradingPair,
		Side:           p.cfg.Side.Opposite(),
		Type:           h.OrderType,
		Amount:         amount,
		Price:          p.cfg.EntryPrice,
		PositionAction: domain.PositionActionClose,
		Leverage:       p.cfg.Leverage,
	}
}

func (p *PositionExecutor) placeOpenOrder(ctx context.Context) {
	id, err := p.maker.PlaceOrder(ctx, p.openCandidate())
	if err != nil {
		p.logger.Warn("entry order placement failed, will retry",
			slog.String("error", err.Error()))
		p.openOrder.Clear()
		return
	}
	p.openOrder.OrderID = id
	p.openOrder.Amount = p.cfg.Amount
	p.openOrder.Price = p.cfg.EntryPrice
	p.logger.Info("entry order placed",
		slog.String("order_id", id),
		slog.Float64("amount", p.cfg.Amount),
		slog.Float64("price", p.cfg.EntryPrice))
}

// ProcessOrderEvent applies one order lifecycle event. Events referencing
// orders this executor no longer tracks are ignored, which makes late or
// duplicate deliveries harmless.
func (p *PositionExecutor) ProcessOrderEvent(ctx context.Context, ev domain.OrderEvent) {
	if p.status.IsTerminal() {
		return
	}
	tracked := p.trackedFor(ev.OrderID)
	if tracked == nil {
		return
	}

	switch ev.Type {
	case domain.OrderEventCreated:
		tracked.Created = true

	case domain.OrderEventFilled:
		tracked.RecordFill(ev.Amount, ev.Price, ev.Fee)
		if tracked == &p.openOrder && p.status == domain.ExecutorStatusNotStarted {
			p.status = domain.ExecutorStatusActivePosition
			p.activatedAt = ev.Timestamp
			p.logger.Info("entry order filled, position active",
				slog.Float64("amount", ev.Amount),
				slog.Float64("price", ev.Price))
		}

	case domain.OrderEventCompleted:
		switch tracked {
		case &p.takeProfitOrder:
			p.cancelSurvivingOrders(ctx, tracked)
			p.terminate(domain.CloseTypeTakeProfit, ev.Timestamp)
		case &p.hedgeOrder:
			p.cancelSurvivingOrders(ctx, tracked)
			p.terminate(domain.CloseTypeHedge, ev.Timestamp)
		case &p.closeOrder:
			closeType := p.closeType
			if closeType == "" {
				closeType = domain.CloseTypeEarlyStop
			}
			p.cancelSurvivingOrders(ctx, tracked)
			p.terminate(closeType, ev.Timestamp)
		}

	case domain.OrderEventFailed:
		p.logger.Warn("order failed, clearing for retry",
			slog.String("order_id", ev.OrderID))
		tracked.Clear()

	case domain.OrderEventCancelled:
		entry := tracked == &p.openOrder
		tracked.Clear()
		if entry && p.stopRequested {
			if p.status == domain.ExecutorStatusNotStarted {
				p.terminate(domain.CloseTypeEarlyStop, ev.Timestamp)
				return
			}
			// A fill won the race against the cancel: the position is live
			// and must be closed out, not dropped.
			p.closeType = domain.CloseTypeEarlyStop
		}
	}
}

// cancelSurvivingOrders pulls the resting orders other than winner off their
// venues. Once one offsetting order completes the position, a sibling left on
// the book would be unbacked exposure.
func (p *PositionExecutor) cancelSurvivingOrders(ctx context.Context, winner *TrackedOrder) {
	if winner != &p.takeProfitOrder && p.takeProfitOrder.IsOpen() {
		p.cancelTakeProfit(ctx)
	}
	if winner != &p.hedgeOrder && p.cfg.Hedge != nil && p.hedgeOrder.IsOpen() {
		p.cancelHedge(ctx)
	}
}

// ControlTick evaluates the exit barriers against the current maker-venue
// price and the achievable hedge exit price. Barriers are checked in fixed
// priority so at most one close action fires per tick: stop-loss,
// take-profit, time-limit, trailing-stop, hedge.
func (p *PositionExecutor) ControlTick(ctx context.Context, now time.Time, currentPrice, hedgeExitPrice float64) {
	if p.status.IsTerminal() {
		return
	}
	if currentPrice > 0 {
		p.currentPrice = currentPrice
	}

	if p.status == domain.ExecutorStatusNotStarted {
		// Recover from a transient entry placement failure.
		if !p.openOrder.IsOpen() && p.closeType == "" && !p.stopRequested {
			p.placeOpenOrder(ctx)
		}
		return
	}

	// A close decision already made but not yet resting: retry placement.
	if p.closeType != "" && !p.closeOrder.IsOpen() {
		p.placeCloseOrder(ctx, p.closeType, now)
		return
	}
	if p.closeOrder.IsOpen() {
		return
	}
	if p.currentPrice <= 0 {
		// Stale price data: skip barrier evaluation this tick.
		return
	}

	tb := p.cfg.TripleBarrier

	if tb.StopLoss > 0 && p.stopLossCondition() {
		p.placeCloseOrder(ctx, domain.CloseTypeStopLoss, now)
		return
	}

	if tb.TakeProfit > 0 {
		if tb.TakeProfitOrderType.IsLimit() {
			p.controlRestingTakeProfit(ctx)
			if p.status.IsTerminal() || p.closeOrder.IsOpen() {
				return
			}
		} else if p.takeProfitCondition() {
			p.placeCloseOrder(ctx, domain.CloseTypeTakeProfit, now)
			return
		}
	}

	if tb.TimeLimit > 0 && !p.activatedAt.IsZero() && now.Sub(p.activatedAt) >= tb.TimeLimit {
		p.placeCloseOrder(ctx, domain.CloseTypeTimeLimit, now)
		return
	}

	if tb.TrailingStop != nil && p.controlTrailingStop() {
		p.placeCloseOrder(ctx, domain.CloseTypeTrailingStop, now)
		return
	}

	if p.cfg.Hedge != nil && p.cfg.Hedge.Profitability > 0 {
		p.controlHedge(ctx, now, hedgeExitPrice)
	}
}

func (p *PositionExecutor) stopLossPrice() float64 {
	if p.cfg.Side == domain.OrderSideBuy {
		return p.EntryPrice() * (1 - p.cfg.TripleBarrier.StopLoss)
	}
	return p.EntryPrice() * (1 + p.cfg.TripleBarrier.StopLoss)
}

func (p *PositionExecutor) stopLossCondition() bool {
	if p.cfg.Side == domain.OrderSideBuy {
		return p.currentPrice <= p.stopLossPrice()
	}
	return p.currentPrice >= p.stopLossPrice()
}

func (p *PositionExecutor) takeProfitPrice() float64 {
	if p.cfg.Side == domain.OrderSideBuy {
		return p.EntryPrice() * (1 + p.cfg.TripleBarrier.TakeProfit)
	}
	return p.EntryPrice() * (1 - p.cfg.TripleBarrier.TakeProfit)
}

func (p *PositionExecutor) takeProfitCondition() bool {
	if p.cfg.Side == domain.OrderSideBuy {
		return p.currentPrice >= p.takeProfitPrice()
	}
	return p.currentPrice <= p.takeProfitPrice()
}

// controlRestingTakeProfit keeps a limit take-profit order resting, sized to
// the filled amount not already claimed by the hedge order. When the resting
// size drifts after a partial maker fill the order is cancelled and re-placed
// at the same price.
func (p *PositionExecutor) controlRestingTakeProfit(ctx context.Context) {
	remaining := p.openOrder.Executed - p.hedgeOrder.Executed - p.takeProfitOrder.Executed
	resting := 0.0
	if p.takeProfitOrder.IsOpen() {
		resting = p.takeProfitOrder.Amount - p.takeProfitOrder.Executed
	}

	if remaining <= amountTolerance {
		if p.takeProfitOrder.IsOpen() && resting > amountTolerance {
			p.cancelTakeProfit(ctx)
		}
		return
	}

	if !p.takeProfitOrder.IsOpen() {
		p.placeTakeProfitLimitOrder(ctx, remaining+p.takeProfitOrder.Executed, p.takeProfitPrice())
		return
	}
	if math.Abs(resting-remaining) > amountTolerance {
		price := p.takeProfitOrder.Price
		p.cancelTakeProfit(ctx)
		if p.takeProfitOrder.IsOpen() {
			// Cancel did not go through; try again next tick.
			return
		}
		p.placeTakeProfitLimitOrder(ctx, remaining+p.takeProfitOrder.Executed, price)
		p.logger.Info("take profit order renewed after partial fill")
	}
}

func (p *PositionExecutor) placeTakeProfitLimitOrder(ctx context.Context, amount, price float64) {
	id, err := p.maker.PlaceOrder(ctx, domain.OrderCandidate{
		TradingPair:    p.cfg.TradingPair,
		Side:           p.cfg.Side.Opposite(),
		Type:           domain.OrderTypeLimit,
		Amount:         amount,
		Price:          price,
		PositionAction: domain.PositionActionClose,
		Leverage:       p.cfg.Leverage,
	})
	if err != nil {
		p.logger.Warn("take profit placement failed, will retry",
			slog.String("error", err.Error()))
		return
	}
	p.takeProfitOrder.OrderID = id
	p.takeProfitOrder.Amount = amount
	p.takeProfitOrder.Price = price
	p.logger.Info("take profit order placed",
		slog.String("order_id", id),
		slog.Float64("amount", amount),
		slog.Float64("price", price))
}

func (p *PositionExecutor) cancelTakeProfit(ctx context.Context) {
	if err := p.maker.CancelOrder(ctx, p.cfg.TradingPair, p.takeProfitOrder.OrderID); err != nil {
		p.logger.Warn("take profit cancel failed",
			slog.String("error", err.Error()))
		return
	}
	p.takeProfitOrder.Clear()
}

func (p *PositionExecutor) controlTrailingStop() bool {
	ts := p.cfg.TripleBarrier.TrailingStop
	entry := p.EntryPrice()
	buy := p.cfg.Side == domain.OrderSideBuy

	if !p.trailingActivated {
		activation := entry * (1 + ts.ActivationPriceDelta)
		if !buy {
			activation = entry * (1 - ts.ActivationPriceDelta)
		}
		if (buy && p.currentPrice >= activation) || (!buy && p.currentPrice <= activation) {
			p.trailingActivated = true
			p.trailingBest = p.currentPrice
			p.logger.Info("trailing stop activated",
				slog.Float64("price", p.currentPrice))
		}
		return false
	}

	if buy {
		if p.currentPrice > p.trailingBest {
			p.trailingBest = p.currentPrice
		}
		return p.currentPrice <= p.trailingBest*(1-ts.TrailingDelta)
	}
	if p.currentPrice < p.trailingBest {
		p.trailingBest = p.currentPrice
	}
	return p.currentPrice >= p.trailingBest*(1+ts.TrailingDelta)
}

func (p *PositionExecutor) hedgeLimitPrice() float64 {
	if p.cfg.Side == domain.OrderSideBuy {
		return p.EntryPrice() * (1 + p.cfg.Hedge.Profitability)
	}
	return p.EntryPrice() * (1 - p.cfg.Hedge.Profitability)
}

func (p *PositionExecutor) hedgeCondition(hedgeExitPrice float64) bool {
	if p.cfg.Side == domain.OrderSideBuy {
		return hedgeExitPrice >= p.hedgeLimitPrice()
	}
	return hedgeExitPrice <= p.hedgeLimitPrice()
}

// controlHedge maintains the taker leg. With a limit hedge order type the
// hedge rests on the hedge venue and is kept sized to the filled amount not
// already claimed by the take-profit order; with a market type the hedge
// fires once the achievable exit price satisfies the profitability target.
func (p *PositionExecutor) controlHedge(ctx context.Context, now time.Time, hedgeExitPrice float64) {
	h := p.cfg.Hedge

	if h.OrderType.IsLimit() {
		remaining := p.openOrder.Executed - p.takeProfitOrder.Executed - p.hedgeOrder.Executed
		resting := 0.0
		if p.hedgeOrder.IsOpen() {
			resting = p.hedgeOrder.Amount - p.hedgeOrder.Executed
		}

		if remaining <= amountTolerance {
			if p.hedgeOrder.IsOpen() && resting > amountTolerance {
				p.cancelHedge(ctx)
			}
			return
		}

		if !p.hedgeOrder.IsOpen() {
			p.placeHedgeLimitOrder(ctx, now, remaining+p.hedgeOrder.Executed, p.hedgeLimitPrice())
			return
		}
		if math.Abs(resting-remaining) > amountTolerance {
			price := p.hedgeOrder.Price
			p.cancelHedge(ctx)
			if p.hedgeOrder.IsOpen() {
				return
			}
			p.placeHedgeLimitOrder(ctx, now, remaining+p.hedgeOrder.Executed, price)
			p.logger.Info("hedge order renewed after partial fill")
		}
		return
	}

	if hedgeExitPrice > 0 && p.hedgeCondition(hedgeExitPrice) {
		p.placeHedgeCloseOrder(ctx, now)
	}
}

func (p *PositionExecutor) placeHedgeLimitOrder(ctx context.Context, now time.Time, amount, price float64) {
	cand := p.hedgeCandidate(amount)
	cand.Price = price

	adjusted, err := p.hedge.BudgetAdjustedAmount(ctx, cand)
	if err != nil {
		p.logger.Warn("hedge budget check failed, skipping tick",
			slog.String("error", err.Error()))
		return
	}
	if adjusted <= amountTolerance {
		p.logger.Error("hedge venue cannot fund the hedge order, closing position")
		p.terminate(domain.CloseTypeInsufficientBalanceHedge, now)
		return
	}

	id, err := p.hedge.PlaceOrder(ctx, cand)
	if err != nil {
		p.logger.Warn("hedge placement failed, will retry",
			slog.String("error", err.Error()))
		return
	}
	p.hedgeOrder.OrderID = id
	p.hedgeOrder.Amount = amount
	p.hedgeOrder.Price = price
	p.logger.Info("hedge order placed",
		slog.String("order_id", id),
		slog.Float64("amount", amount),
		slog.Float64("price", price))
}

// placeHedgeCloseOrder sends a marketable hedge on the hedge venue for the
// remaining exposure. Its completion closes the position with the hedge
// close type.
func (p *PositionExecutor) placeHedgeCloseOrder(ctx context.Context, now time.Time) {
	amount := p.openOrder.Executed - p.takeProfitOrder.Executed - p.hedgeOrder.Executed
	if amount <= amountTolerance {
		return
	}
	cand := p.hedgeCandidate(amount)
	cand.Type = domain.OrderTypeMarket

	adjusted, err := p.hedge.BudgetAdjustedAmount(ctx, cand)
	if err != nil {
		p.logger.Warn("hedge budget check failed, skipping tick",
			slog.String("error", err.Error()))
		return
	}
	if adjusted <= amountTolerance {
		p.logger.Error("hedge venue cannot fund the hedge order, closing position")
		p.terminate(domain.CloseTypeInsufficientBalanceHedge, now)
		return
	}

	id, err := p.hedge.PlaceOrder(ctx, cand)
	if err != nil {
		p.logger.Warn("hedge placement failed, will retry",
			slog.String("error", err.Error()))
		return
	}
	p.hedgeOrder.OrderID = id
	p.hedgeOrder.Amount = amount
	p.logger.Info("marketable hedge placed",
		slog.String("order_id", id),
		slog.Float64("amount", amount))
}

func (p *PositionExecutor) cancelHedge(ctx context.Context) {
	if err := p.hedge.CancelOrder(ctx, p.cfg.Hedge.TradingPair, p.hedgeOrder.OrderID); err != nil {
		p.logger.Warn("hedge cancel failed",
			slog.String("error", err.Error()))
		return
	}
	p.hedgeOrder.Clear()
}

// placeCloseOrder sends a marketable close on the maker venue for the filled
// amount not already offset by the take-profit or hedge orders. Once a close
// order rests the position is on its way out; it is never replaced.
func (p *PositionExecutor) placeCloseOrder(ctx context.Context, closeType domain.CloseType, now time.Time) {
	p.closeType = closeType

	if p.takeProfitOrder.IsOpen() {
		p.cancelTakeProfit(ctx)
	}
	if p.cfg.Hedge != nil && p.hedgeOrder.IsOpen() {
		p.cancelHedge(ctx)
	}

	amount := p.openOrder.Executed - p.takeProfitOrder.Executed - p.hedgeOrder.Executed - p.closeOrder.Executed
	if amount <= amountTolerance {
		p.terminate(closeType, now)
		return
	}

	id, err := p.maker.PlaceOrder(ctx, domain.OrderCandidate{
		TradingPair:    p.cfg.TradingPair,
		Side:           p.cfg.Side.Opposite(),
		Type:           domain.OrderTypeMarket,
		Amount:         amount,
		Price:          p.currentPrice,
		PositionAction: domain.PositionActionClose,
		Leverage:       p.cfg.Leverage,
	})
	if err != nil {
		p.logger.Warn("close order placement failed, will retry",
			slog.String("close_type", string(closeType)),
			slog.String("error", err.Error()))
		return
	}
	p.closeOrder.OrderID = id
	p.closeOrder.Amount = amount
	p.logger.Info("close order placed",
		slog.String("order_id", id),
		slog.String("close_type", string(closeType)),
		slog.Float64("amount", amount))
}

// EarlyStop forces the position out: unfilled entries are cancelled, active
// positions are closed at market. With an entry still resting the executor
// stays open until the venue confirms the cancel, so a fill racing it is
// accounted and closed instead of dropped.
func (p *PositionExecutor) EarlyStop(ctx context.Context, now time.Time) {
	switch p.status {
	case domain.ExecutorStatusNotStarted:
		if p.openOrder.IsOpen() {
			if err := p.maker.CancelOrder(ctx, p.cfg.TradingPair, p.openOrder.OrderID); err != nil {
				p.logger.Warn("entry cancel failed",
					slog.String("error", err.Error()))
				return
			}
			p.stopRequested = true
			return
		}
		p.terminate(domain.CloseTypeEarlyStop, now)
	case domain.ExecutorStatusActivePosition:
		if !p.closeOrder.IsOpen() {
			p.placeCloseOrder(ctx, domain.CloseTypeEarlyStop, now)
		}
	}
}

// Stop cancels every resting order this executor still has open. Called on
// handler shutdown; fills reported during cancellation still route through
// ProcessOrderEvent.
func (p *PositionExecutor) Stop(ctx context.Context) {
	if p.openOrder.IsOpen() && p.status == domain.ExecutorStatusNotStarted {
		if err := p.maker.CancelOrder(ctx, p.cfg.TradingPair, p.openOrder.OrderID); err != nil {
			p.logger.Warn("entry cancel failed", slog.String("error", err.Error()))
		}
	}
	if p.takeProfitOrder.IsOpen() {
		if err := p.maker.CancelOrder(ctx, p.cfg.TradingPair, p.takeProfitOrder.OrderID); err != nil {
			p.logger.Warn("take profit cancel failed", slog.String("error", err.Error()))
		}
	}
	if p.cfg.Hedge != nil && p.hedgeOrder.IsOpen() {
		if err := p.hedge.CancelOrder(ctx, p.cfg.Hedge.TradingPair, p.hedgeOrder.OrderID); err != nil {
			p.logger.Warn("hedge cancel failed", slog.String("error", err.Error()))
		}
	}
}

func (p *PositionExecutor) terminate(closeType domain.CloseType, now time.Time) {
	if p.status.IsTerminal() {
		return
	}
	p.status = domain.ExecutorStatusCompleted
	p.closeType = closeType
	p.closeTimestamp = now
	p.logger.Info("position closed",
		slog.String("close_type", string(closeType)),
		slog.Float64("filled", p.openOrder.Executed),
		slog.Float64("net_pnl_quote", p.NetPnLQuote()))
}

// Record returns the structured closed-position record for persistence and
// reporting.
func (p *PositionExecutor) Record() domain.PositionRecord {
	rec := domain.PositionRecord{
		ID:             p.id,
		Timestamp:      p.cfg.Timestamp,
		Exchange:       p.cfg.Exchange,
		TradingPair:    p.cfg.TradingPair,
		Side:           p.cfg.Side,
		FilledAmount:   p.openOrder.Executed,
		TradePnL:       p.TradePnL(),
		TradePnLQuote:  p.TradePnLQuote(),
		CumFeesQuote:   p.CumFeesQuote(),
		NetPnLQuote:    p.NetPnLQuote(),
		CloseTimestamp: p.closeTimestamp,
		Status:         p.status,
		CloseType:      p.closeType,
		EntryPrice:     p.EntryPrice(),
		ClosePrice:     p.ClosePrice(),
		StopLoss:       p.cfg.TripleBarrier.StopLoss,
		TakeProfit:     p.cfg.TripleBarrier.TakeProfit,
		TimeLimit:      p.cfg.TripleBarrier.TimeLimit,
		Leverage:       p.cfg.Leverage,
	}
	if notional := p.NotionalQuote(); notional > 0 {
		rec.NetPnL = rec.NetPnLQuote / notional
	}
	if p.cfg.Hedge != nil {
		rec.HedgeExchange = p.cfg.Hedge.Exchange
		rec.HedgePair = p.cfg.Hedge.TradingPair
	}
	return rec
}

// StatusLine returns a one-line human-readable lifecycle snapshot.
func (p *PositionExecutor) StatusLine() string {
	return fmt.Sprintf("%s %s %s | status=%s entry=%.6f filled=%.6f pnl=%.6f close=%s",
		p.cfg.Exchange, p.cfg.TradingPair, p.cfg.Side,
		p.status, p.EntryPrice(), p.openOrder.Executed, p.NetPnLQuote(), p.closeType)
}
