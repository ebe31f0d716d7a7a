package executor_test

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/avyukov/hedgebot/internal/domain"
	"github.com/avyukov/hedgebot/internal/exchange/paper"
	"github.com/avyukov/hedgebot/internal/executor"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func bookAt(bid, ask float64) domain.OrderbookSnapshot {
	return domain.OrderbookSnapshot{
		Bids: []domain.PriceLevel{{Price: bid, Size: 1000}},
		Asks: []domain.PriceLevel{{Price: ask, Size: 1000}},
	}
}

// drainInto forwards pending connector events to the executor, the way the
// handler does once per tick.
func drainInto(ex *executor.PositionExecutor, conns ...*paper.Connector) {
	for _, c := range conns {
	drain:
		for {
			select {
			case ev := <-c.Events():
				if ex.OwnsOrder(ev.OrderID) {
					ex.ProcessOrderEvent(context.Background(), ev)
				}
			default:
				break drain
			}
		}
	}
}

func onlyOpenOrder(t *testing.T, c *paper.Connector) string {
	t.Helper()
	ids := c.OpenOrders()
	if len(ids) != 1 {
		t.Fatalf("open orders on %s = %d, want 1", c.Name(), len(ids))
	}
	return ids[0]
}

func buyConfig(tb domain.TripleBarrierConf) domain.PositionConfig {
	return domain.PositionConfig{
		Timestamp:     time.Now().UTC(),
		Exchange:      "maker-x",
		TradingPair:   "ETH-USDT",
		Side:          domain.OrderSideBuy,
		Amount:        10,
		EntryPrice:    100,
		OpenOrderType: domain.OrderTypeLimit,
		Leverage:      1,
		TripleBarrier: tb,
	}
}

func TestStartPlacesEntryOrder(t *testing.T) {
	maker := paper.New("maker-x")
	now := time.Now().UTC()
	ex := executor.NewPositionExecutor(buyConfig(domain.TripleBarrierConf{}), maker, maker, testLogger, now)

	if err := ex.Start(context.Background(), now); err != nil {
		t.Fatalf("Start: %v", err)
	}
	id := onlyOpenOrder(t, maker)
	cand, ok := maker.Order(id)
	if !ok {
		t.Fatal("entry order not recorded by venue")
	}
	if cand.Side != domain.OrderSideBuy || cand.Amount != 10 || cand.Price != 100 {
		t.Fatalf("entry candidate = %+v", cand)
	}
	if got := ex.Status(); got != domain.ExecutorStatusNotStarted {
		t.Fatalf("status = %s, want %s", got, domain.ExecutorStatusNotStarted)
	}
}

func TestStartHedgeBudgetExhausted(t *testing.T) {
	maker := paper.New("maker-x")
	hedge := paper.New("hedge-x")
	hedge.SetBudgetFunc(func(domain.OrderCandidate) float64 { return 0 })

	cfg := buyConfig(domain.TripleBarrierConf{})
	cfg.Hedge = &domain.HedgeConfig{
		Exchange:      "hedge-x",
		TradingPair:   "ETH-USDT",
		OrderType:     domain.OrderTypeMarket,
		Profitability: 0.006,
	}
	now := time.Now().UTC()
	ex := executor.NewPositionExecutor(cfg, maker, hedge, testLogger, now)

	if err := ex.Start(context.Background(), now); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := ex.Status(); got != domain.ExecutorStatusCompleted {
		t.Fatalf("status = %s, want terminal", got)
	}
	if got := ex.CloseType(); got != domain.CloseTypeInsufficientBalanceHedge {
		t.Fatalf("close type = %s, want %s", got, domain.CloseTypeInsufficientBalanceHedge)
	}
	if n := len(maker.OpenOrders()); n != 0 {
		t.Fatalf("maker open orders = %d, want none", n)
	}
}

func TestStartMakerBudgetExhausted(t *testing.T) {
	maker := paper.New("maker-x")
	maker.SetBudgetFunc(func(domain.OrderCandidate) float64 { return 0 })
	now := time.Now().UTC()
	ex := executor.NewPositionExecutor(buyConfig(domain.TripleBarrierConf{}), maker, maker, testLogger, now)

	if err := ex.Start(context.Background(), now); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := ex.CloseType(); got != domain.CloseTypeInsufficientBalance {
		t.Fatalf("close type = %s, want %s", got, domain.CloseTypeInsufficientBalance)
	}
}

func TestEntryPlacementFailureRetriedNextTick(t *testing.T) {
	maker := paper.New("maker-x")
	maker.FailNextPlacements(1)
	now := time.Now().UTC()
	ex := executor.NewPositionExecutor(buyConfig(domain.TripleBarrierConf{}), maker, maker, testLogger, now)

	if err := ex.Start(context.Background(), now); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if n := len(maker.OpenOrders()); n != 0 {
		t.Fatalf("open orders after rejected placement = %d, want 0", n)
	}

	ex.ControlTick(context.Background(), now.Add(time.Second), 100, 0)
	onlyOpenOrder(t, maker)
	if got := ex.Status(); got != domain.ExecutorStatusNotStarted {
		t.Fatalf("status = %s, want %s", got, domain.ExecutorStatusNotStarted)
	}
}

func TestPartialFillsAccumulate(t *testing.T) {
	maker := paper.New("maker-x")
	now := time.Now().UTC()
	ex := executor.NewPositionExecutor(buyConfig(domain.TripleBarrierConf{}), maker, maker, testLogger, now)

	if err := ex.Start(context.Background(), now); err != nil {
		t.Fatalf("Start: %v", err)
	}
	id := onlyOpenOrder(t, maker)
	maker.Fill(id, 6, 100, 0.06)
	maker.Fill(id, 4, 100.5, 0.04)
	drainInto(ex, maker)

	if got := ex.FilledAmount(); math.Abs(got-10) > 1e-9 {
		t.Fatalf("filled = %v, want 10", got)
	}
	wantEntry := (6*100 + 4*100.5) / 10
	if got := ex.EntryPrice(); math.Abs(got-wantEntry) > 1e-9 {
		t.Fatalf("entry price = %v, want %v", got, wantEntry)
	}
	if got := ex.CumFeesQuote(); math.Abs(got-0.1) > 1e-9 {
		t.Fatalf("fees = %v, want 0.1", got)
	}
	if got := ex.Status(); got != domain.ExecutorStatusActivePosition {
		t.Fatalf("status = %s, want %s", got, domain.ExecutorStatusActivePosition)
	}
}

func TestStopLossClosesPosition(t *testing.T) {
	maker := paper.New("maker-x")
	maker.SetOrderBook("ETH-USDT", bookAt(97.9, 98))
	now := time.Now().UTC()
	ex := executor.NewPositionExecutor(buyConfig(domain.TripleBarrierConf{
		StopLoss:   0.02,
		TakeProfit: 0.05,
	}), maker, maker, testLogger, now)

	if err := ex.Start(context.Background(), now); err != nil {
		t.Fatalf("Start: %v", err)
	}
	id := onlyOpenOrder(t, maker)
	maker.Fill(id, 10, 100, 0)
	drainInto(ex, maker)

	// 97.9 is below 100*(1-0.02): the stop loss fires and the market close
	// fills against the book immediately.
	ex.ControlTick(context.Background(), now.Add(time.Second), 97.9, 0)
	drainInto(ex, maker)

	if got := ex.Status(); got != domain.ExecutorStatusCompleted {
		t.Fatalf("status = %s, want terminal", got)
	}
	if got := ex.CloseType(); got != domain.CloseTypeStopLoss {
		t.Fatalf("close type = %s, want %s", got, domain.CloseTypeStopLoss)
	}
	if got := ex.ClosePrice(); math.Abs(got-97.9) > 1e-9 {
		t.Fatalf("close price = %v, want 97.9", got)
	}
	if got := ex.NetPnLQuote(); got >= 0 {
		t.Fatalf("net pnl = %v, want negative", got)
	}
}

func TestStopLossCancelsRestingTakeProfit(t *testing.T) {
	maker := paper.New("maker-x")
	maker.SetOrderBook("ETH-USDT", bookAt(97.9, 98))
	now := time.Now().UTC()
	ex := executor.NewPositionExecutor(buyConfig(domain.TripleBarrierConf{
		StopLoss:            0.02,
		TakeProfit:          0.05,
		TakeProfitOrderType: domain.OrderTypeLimit,
	}), maker, maker, testLogger, now)

	if err := ex.Start(context.Background(), now); err != nil {
		t.Fatalf("Start: %v", err)
	}
	entryID := onlyOpenOrder(t, maker)
	maker.Fill(entryID, 10, 100, 0)
	maker.Complete(entryID)
	drainInto(ex, maker)

	// First tick at a quiet price puts the limit take profit on the book.
	ex.ControlTick(context.Background(), now.Add(time.Second), 100.5, 0)
	tpID := onlyOpenOrder(t, maker)
	if cand, _ := maker.Order(tpID); math.Abs(cand.Price-105) > 1e-9 {
		t.Fatalf("take profit price = %v, want 105", cand.Price)
	}

	// The crash triggers the stop loss, which wins over the resting take
	// profit and pulls it from the book.
	ex.ControlTick(context.Background(), now.Add(2*time.Second), 97.5, 0)
	drainInto(ex, maker)

	if got := ex.CloseType(); got != domain.CloseTypeStopLoss {
		t.Fatalf("close type = %s, want %s", got, domain.CloseTypeStopLoss)
	}
	if n := len(maker.OpenOrders()); n != 0 {
		t.Fatalf("open orders after close = %d, want 0", n)
	}
}

func TestRestingTakeProfitRenewedAfterPartialFill(t *testing.T) {
	maker := paper.New("maker-x")
	now := time.Now().UTC()
	ex := executor.NewPositionExecutor(buyConfig(domain.TripleBarrierConf{
		TakeProfit:          0.05,
		TakeProfitOrderType: domain.OrderTypeLimit,
	}), maker, maker, testLogger, now)

	if err := ex.Start(context.Background(), now); err != nil {
		t.Fatalf("Start: %v", err)
	}
	entryID := onlyOpenOrder(t, maker)
	maker.Fill(entryID, 6, 100, 0)
	drainInto(ex, maker)

	ex.ControlTick(context.Background(), now.Add(time.Second), 100.5, 0)
	drainInto(ex, maker)
	var tpID string
	for _, id := range maker.OpenOrders() {
		if id != entryID {
			tpID = id
		}
	}
	cand, _ := maker.Order(tpID)
	if math.Abs(cand.Amount-6) > 1e-9 {
		t.Fatalf("take profit amount = %v, want 6", cand.Amount)
	}

	maker.Fill(entryID, 4, 100, 0)
	drainInto(ex, maker)
	ex.ControlTick(context.Background(), now.Add(2*time.Second), 100.5, 0)
	drainInto(ex, maker)

	var renewedID string
	for _, id := range maker.OpenOrders() {
		if id != entryID {
			renewedID = id
		}
	}
	if renewedID == "" || renewedID == tpID {
		t.Fatalf("take profit was not renewed, id = %q", renewedID)
	}
	renewed, _ := maker.Order(renewedID)
	if math.Abs(renewed.Amount-10) > 1e-9 {
		t.Fatalf("renewed amount = %v, want 10", renewed.Amount)
	}
	if math.Abs(renewed.Price-cand.Price) > 1e-9 {
		t.Fatalf("renewed price = %v, want unchanged %v", renewed.Price, cand.Price)
	}
}

func TestTimeLimitClosesPosition(t *testing.T) {
	maker := paper.New("maker-x")
	maker.SetOrderBook("ETH-USDT", bookAt(100, 100.1))
	now := time.Now().UTC()
	ex := executor.NewPositionExecutor(buyConfig(domain.TripleBarrierConf{
		StopLoss:   0.05,
		TakeProfit: 0.05,
		TimeLimit:  time.Minute,
	}), maker, maker, testLogger, now)

	if err := ex.Start(context.Background(), now); err != nil {
		t.Fatalf("Start: %v", err)
	}
	id := onlyOpenOrder(t, maker)
	maker.Fill(id, 10, 100, 0)
	drainInto(ex, maker)

	ex.ControlTick(context.Background(), now.Add(30*time.Second), 100, 0)
	if got := ex.Status(); got != domain.ExecutorStatusActivePosition {
		t.Fatalf("status before time limit = %s", got)
	}

	ex.ControlTick(context.Background(), now.Add(2*time.Minute), 100, 0)
	drainInto(ex, maker)
	if got := ex.CloseType(); got != domain.CloseTypeTimeLimit {
		t.Fatalf("close type = %s, want %s", got, domain.CloseTypeTimeLimit)
	}
}

func TestTrailingStopRatchetsAndCloses(t *testing.T) {
	maker := paper.New("maker-x")
	maker.SetOrderBook("ETH-USDT", bookAt(102.8, 102.9))
	now := time.Now().UTC()
	ex := executor.NewPositionExecutor(buyConfig(domain.TripleBarrierConf{
		StopLoss: 0.1,
		TrailingStop: &domain.TrailingStop{
			ActivationPriceDelta: 0.02,
			TrailingDelta:        0.01,
		},
	}), maker, maker, testLogger, now)

	ctx := context.Background()
	if err := ex.Start(ctx, now); err != nil {
		t.Fatalf("Start: %v", err)
	}
	id := onlyOpenOrder(t, maker)
	maker.Fill(id, 10, 100, 0)
	drainInto(ex, maker)

	ex.ControlTick(ctx, now.Add(time.Second), 103, 0) // activates, best=103
	ex.ControlTick(ctx, now.Add(2*time.Second), 104, 0)
	if got := ex.Status(); got != domain.ExecutorStatusActivePosition {
		t.Fatalf("status after ratchet = %s", got)
	}

	// 102.9 <= 104*(1-0.01)
	ex.ControlTick(ctx, now.Add(3*time.Second), 102.9, 0)
	drainInto(ex, maker)
	if got := ex.CloseType(); got != domain.CloseTypeTrailingStop {
		t.Fatalf("close type = %s, want %s", got, domain.CloseTypeTrailingStop)
	}
}

func TestHedgeFiresOnceForFullFilledAmount(t *testing.T) {
	maker := paper.New("maker-x")
	hedge := paper.New("hedge-x")
	hedge.SetOrderBook("ETH-USDC", bookAt(100.7, 100.8))

	cfg := buyConfig(domain.TripleBarrierConf{})
	cfg.Hedge = &domain.HedgeConfig{
		Exchange:      "hedge-x",
		TradingPair:   "ETH-USDC",
		OrderType:     domain.OrderTypeMarket,
		Profitability: 0.006,
	}
	now := time.Now().UTC()
	ex := executor.NewPositionExecutor(cfg, maker, hedge, testLogger, now)

	ctx := context.Background()
	if err := ex.Start(ctx, now); err != nil {
		t.Fatalf("Start: %v", err)
	}
	entryID := onlyOpenOrder(t, maker)
	maker.Fill(entryID, 6, 100, 0)
	maker.Fill(entryID, 4, 100, 0)
	drainInto(ex, maker)

	// Below the profitability threshold nothing happens.
	ex.ControlTick(ctx, now.Add(time.Second), 100, 100.2)
	if n := len(hedge.OpenOrders()); n != 0 {
		t.Fatalf("hedge orders before threshold = %d, want 0", n)
	}

	// 100.7 >= 100*(1+0.006): one sell for the whole filled amount.
	ex.ControlTick(ctx, now.Add(2*time.Second), 100, 100.7)
	drainInto(ex, maker, hedge)

	if got := ex.Status(); got != domain.ExecutorStatusCompleted {
		t.Fatalf("status = %s, want terminal", got)
	}
	if got := ex.CloseType(); got != domain.CloseTypeHedge {
		t.Fatalf("close type = %s, want %s", got, domain.CloseTypeHedge)
	}
	if got := ex.ClosePrice(); math.Abs(got-100.7) > 1e-9 {
		t.Fatalf("close price = %v, want 100.7", got)
	}
	if got := ex.UnhedgedAmount(); got > 1e-9 {
		t.Fatalf("unhedged after hedge = %v, want 0", got)
	}
}

func TestHedgeCompletionCancelsRestingTakeProfit(t *testing.T) {
	maker := paper.New("maker-x")
	hedge := paper.New("hedge-x")
	hedge.SetOrderBook("ETH-USDC", bookAt(100.7, 100.8))

	cfg := buyConfig(domain.TripleBarrierConf{
		TakeProfit:          0.05,
		TakeProfitOrderType: domain.OrderTypeLimit,
	})
	cfg.Hedge = &domain.HedgeConfig{
		Exchange:      "hedge-x",
		TradingPair:   "ETH-USDC",
		OrderType:     domain.OrderTypeMarket,
		Profitability: 0.006,
	}
	now := time.Now().UTC()
	ex := executor.NewPositionExecutor(cfg, maker, hedge, testLogger, now)

	ctx := context.Background()
	if err := ex.Start(ctx, now); err != nil {
		t.Fatalf("Start: %v", err)
	}
	entryID := onlyOpenOrder(t, maker)
	maker.Fill(entryID, 10, 100, 0)
	maker.Complete(entryID)
	drainInto(ex, maker)

	// A quiet tick puts the limit take profit on the maker book.
	ex.ControlTick(ctx, now.Add(time.Second), 100.5, 100.2)
	tpID := onlyOpenOrder(t, maker)
	if cand, _ := maker.Order(tpID); math.Abs(cand.Price-105) > 1e-9 {
		t.Fatalf("take profit price = %v, want 105", cand.Price)
	}

	// The hedge exit clears the profitability bar and fills at market. The
	// completed hedge must pull the take profit off the maker book with it.
	ex.ControlTick(ctx, now.Add(2*time.Second), 100.5, 100.7)
	drainInto(ex, maker, hedge)

	if got := ex.CloseType(); got != domain.CloseTypeHedge {
		t.Fatalf("close type = %s, want %s", got, domain.CloseTypeHedge)
	}
	if n := len(maker.OpenOrders()); n != 0 {
		t.Fatalf("maker open orders after hedge close = %d, want 0", n)
	}
	if got := ex.ClosePrice(); math.Abs(got-100.7) > 1e-9 {
		t.Fatalf("close price = %v, want 100.7", got)
	}
}

func TestHedgeBudgetExhaustedAfterFill(t *testing.T) {
	maker := paper.New("maker-x")
	hedge := paper.New("hedge-x")

	cfg := buyConfig(domain.TripleBarrierConf{})
	cfg.Hedge = &domain.HedgeConfig{
		Exchange:      "hedge-x",
		TradingPair:   "ETH-USDC",
		OrderType:     domain.OrderTypeMarket,
		Profitability: 0.006,
	}
	now := time.Now().UTC()
	ex := executor.NewPositionExecutor(cfg, maker, hedge, testLogger, now)

	ctx := context.Background()
	if err := ex.Start(ctx, now); err != nil {
		t.Fatalf("Start: %v", err)
	}
	entryID := onlyOpenOrder(t, maker)
	maker.Fill(entryID, 10, 100, 0)
	drainInto(ex, maker)

	// Hedge funds drained between the start check and the trigger.
	hedge.SetBudgetFunc(func(domain.OrderCandidate) float64 { return 0 })
	ex.ControlTick(ctx, now.Add(time.Second), 100, 100.7)

	if got := ex.CloseType(); got != domain.CloseTypeInsufficientBalanceHedge {
		t.Fatalf("close type = %s, want %s", got, domain.CloseTypeInsufficientBalanceHedge)
	}
	if n := len(hedge.OpenOrders()); n != 0 {
		t.Fatalf("hedge orders placed = %d, want 0", n)
	}
}

func TestEarlyStopBeforeFillCancelsEntry(t *testing.T) {
	maker := paper.New("maker-x")
	now := time.Now().UTC()
	ex := executor.NewPositionExecutor(buyConfig(domain.TripleBarrierConf{}), maker, maker, testLogger, now)

	if err := ex.Start(context.Background(), now); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ex.EarlyStop(context.Background(), now.Add(time.Second))
	drainInto(ex, maker)

	if got := ex.CloseType(); got != domain.CloseTypeEarlyStop {
		t.Fatalf("close type = %s, want %s", got, domain.CloseTypeEarlyStop)
	}
	if n := len(maker.OpenOrders()); n != 0 {
		t.Fatalf("open orders = %d, want 0", n)
	}
	if ex.IsTrading() {
		t.Fatal("executor reports trading with no fills")
	}
}

func TestEntryFillRacingEarlyStopIsClosedOut(t *testing.T) {
	maker := paper.New("maker-x")
	maker.SetOrderBook("ETH-USDT", bookAt(100, 100.1))
	now := time.Now().UTC()
	ex := executor.NewPositionExecutor(buyConfig(domain.TripleBarrierConf{}), maker, maker, testLogger, now)

	ctx := context.Background()
	if err := ex.Start(ctx, now); err != nil {
		t.Fatalf("Start: %v", err)
	}
	entryID := onlyOpenOrder(t, maker)

	// The venue reports a full fill just before the cancel goes out; neither
	// event has reached the executor when the stop is requested.
	maker.Fill(entryID, 10, 100, 0)
	ex.EarlyStop(ctx, now.Add(time.Second))
	drainInto(ex, maker)

	if got := ex.FilledAmount(); math.Abs(got-10) > 1e-9 {
		t.Fatalf("filled = %v, want 10", got)
	}
	if ex.Status().IsTerminal() {
		t.Fatal("executor went terminal with live exposure")
	}

	// The next tick closes the live exposure at market.
	ex.ControlTick(ctx, now.Add(2*time.Second), 100, 0)
	drainInto(ex, maker)

	if got := ex.Status(); got != domain.ExecutorStatusCompleted {
		t.Fatalf("status = %s, want terminal", got)
	}
	if got := ex.CloseType(); got != domain.CloseTypeEarlyStop {
		t.Fatalf("close type = %s, want %s", got, domain.CloseTypeEarlyStop)
	}
	rec := ex.Record()
	if math.Abs(rec.FilledAmount-10) > 1e-9 {
		t.Fatalf("recorded filled = %v, want 10", rec.FilledAmount)
	}
	if math.Abs(rec.ClosePrice-100) > 1e-9 {
		t.Fatalf("close price = %v, want 100", rec.ClosePrice)
	}
	if got := ex.UnhedgedAmount(); got > 1e-9 {
		t.Fatalf("unhedged after close = %v, want 0", got)
	}
}

func TestEarlyStopClosesOnlyUnoffsetAmount(t *testing.T) {
	maker := paper.New("maker-x")
	maker.SetOrderBook("ETH-USDT", bookAt(100, 100.1))
	now := time.Now().UTC()
	ex := executor.NewPositionExecutor(buyConfig(domain.TripleBarrierConf{
		TakeProfit:          0.05,
		TakeProfitOrderType: domain.OrderTypeLimit,
	}), maker, maker, testLogger, now)

	ctx := context.Background()
	if err := ex.Start(ctx, now); err != nil {
		t.Fatalf("Start: %v", err)
	}
	entryID := onlyOpenOrder(t, maker)
	maker.Fill(entryID, 10, 100, 0)
	maker.Complete(entryID)
	drainInto(ex, maker)

	ex.ControlTick(ctx, now.Add(time.Second), 100.5, 0)
	tpID := onlyOpenOrder(t, maker)
	maker.Fill(tpID, 3, 105, 0)
	drainInto(ex, maker)

	ex.EarlyStop(ctx, now.Add(2*time.Second))
	drainInto(ex, maker)

	if got := ex.CloseType(); got != domain.CloseTypeEarlyStop {
		t.Fatalf("close type = %s, want %s", got, domain.CloseTypeEarlyStop)
	}
	// 3 already offset by the partial take profit, so the close is for 7.
	rec := ex.Record()
	if math.Abs(rec.FilledAmount-10) > 1e-9 {
		t.Fatalf("filled = %v, want 10", rec.FilledAmount)
	}
	wantClose := (3*105 + 7*100) / 10.0
	if math.Abs(rec.ClosePrice-wantClose) > 1e-9 {
		t.Fatalf("close price = %v, want %v", rec.ClosePrice, wantClose)
	}
	if got := ex.UnhedgedAmount(); got > 1e-9 {
		t.Fatalf("unhedged = %v, want 0", got)
	}
}

func TestEventsForUnknownOrdersIgnored(t *testing.T) {
	maker := paper.New("maker-x")
	now := time.Now().UTC()
	ex := executor.NewPositionExecutor(buyConfig(domain.TripleBarrierConf{}), maker, maker, testLogger, now)

	if err := ex.Start(context.Background(), now); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ex.ProcessOrderEvent(context.Background(), domain.OrderEvent{
		Type:    domain.OrderEventFilled,
		OrderID: "someone-elses-order",
		Amount:  5,
		Price:   100,
	})
	if ex.IsTrading() {
		t.Fatal("foreign fill mutated the executor")
	}
}
