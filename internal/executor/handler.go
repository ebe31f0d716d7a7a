package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avyukov/hedgebot/internal/book"
	"github.com/avyukov/hedgebot/internal/domain"
	"github.com/avyukov/hedgebot/internal/exchange"
)

// Notifier receives the structured record of every archived position;
// implemented by the notify package, which owns rendering and delivery.
type Notifier interface {
	PositionClosed(ctx context.Context, rec domain.PositionRecord) error
}

// SpreadScaler widens configured spreads with market volatility; implemented
// by the volatility package. Observe is fed the maker mid price each tick.
type SpreadScaler interface {
	Observe(now time.Time, price float64)
	Factor() float64
}

// GlobalTrailingStopConfig is the optional portfolio-level trailing stop,
// applied per side across all active executors. Both values are PnL fractions
// of filled notional.
type GlobalTrailingStopConfig struct {
	ActivationPnL float64
	TrailingDelta float64
}

// HandlerConfig holds the scheduling parameters of an ExecutorHandler.
type HandlerConfig struct {
	TickInterval       time.Duration
	GlobalTrailingStop *GlobalTrailingStopConfig
}

// sideTrailing is the per-side ratchet state of the global trailing stop.
type sideTrailing struct {
	activated bool
	ratchet   float64
}

// SideAggregate is the per-side exposure summary over active executors.
type SideAggregate struct {
	Side               domain.OrderSide
	ActiveExecutors    int
	NotionalQuote      float64
	UnrealizedPnLQuote float64
	PnLPct             float64
}

// statusSnapshot is the read model published at the end of every tick. Status
// accessors serve from it, so they never wait on the venue calls and archive
// work a tick does under mu.
type statusSnapshot struct {
	lines      []string
	aggregates []SideAggregate
	realized   float64
}

// ExecutorHandler drives the control loop: it polls market data, applies the
// controller policy per level, creates and archives position executors, and
// enforces the portfolio trailing stop. Executor state is mutated only inside
// Tick under mu; other goroutines read the published status snapshot.
type ExecutorHandler struct {
	cfg        HandlerConfig
	controller *OrderLevelController
	levels     []domain.OrderLevel
	maker      exchange.Connector
	hedgeConn  exchange.Connector
	logger     *slog.Logger

	store        domain.PositionRecordStore
	bookCache    domain.OrderbookCache
	notifier     Notifier
	spreadScaler SpreadScaler

	mu               sync.Mutex
	executors        map[string]*PositionExecutor
	trailing         map[domain.OrderSide]*sideTrailing
	realizedPnLQuote float64
	closedRecords    []domain.PositionRecord // archived this tick, flushed after unlock

	statusMu   sync.RWMutex
	lastStatus statusSnapshot
}

// NewExecutorHandler creates a handler for the given levels. The hedge
// connector may equal the maker connector. Persistence, caching, and
// notifications are optional and attached with the Set methods before Run.
func NewExecutorHandler(cfg HandlerConfig, controller *OrderLevelController, levels []domain.OrderLevel, maker, hedge exchange.Connector, logger *slog.Logger) *ExecutorHandler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	return &ExecutorHandler{
		cfg:        cfg,
		controller: controller,
		levels:     levels,
		maker:      maker,
		hedgeConn:  hedge,
		logger:     logger.With(slog.String("component", "executor_handler"), slog.String("pair", controller.Config().TradingPair)),
		executors:  make(map[string]*PositionExecutor),
		trailing: map[domain.OrderSide]*sideTrailing{
			domain.OrderSideBuy:  {},
			domain.OrderSideSell: {},
		},
	}
}

// SetStore attaches a closed-position record store. Must be called before Run.
func (h *ExecutorHandler) SetStore(store domain.PositionRecordStore) { h.store = store }

// SetBookCache attaches an orderbook snapshot cache. Must be called before Run.
func (h *ExecutorHandler) SetBookCache(cache domain.OrderbookCache) { h.bookCache = cache }

// SetNotifier attaches a close-event notifier. Must be called before Run.
func (h *ExecutorHandler) SetNotifier(n Notifier) { h.notifier = n }

// SetSpreadScaler attaches a volatility-based spread scaler. Must be called
// before Run.
func (h *ExecutorHandler) SetSpreadScaler(s SpreadScaler) { h.spreadScaler = s }

// Executor returns the executor currently owning the level, if any.
func (h *ExecutorHandler) Executor(levelID string) (*PositionExecutor, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ex, ok := h.executors[levelID]
	return ex, ok
}

// RealizedPnLQuote is the cumulative net PnL of archived positions, as of the
// last completed tick.
func (h *ExecutorHandler) RealizedPnLQuote() float64 {
	h.statusMu.RLock()
	defer h.statusMu.RUnlock()
	return h.lastStatus.realized
}

// Run drives ticks until the context is cancelled, then cancels all resting
// orders of the remaining executors.
func (h *ExecutorHandler) Run(ctx context.Context) error {
	h.logger.Info("executor handler started",
		slog.Int("levels", len(h.levels)),
		slog.Duration("tick_interval", h.cfg.TickInterval))
	defer h.logger.Info("executor handler stopped")

	ticker := time.NewTicker(h.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case now := <-ticker.C:
			h.Tick(ctx, now.UTC())
		}
	}
}

// Tick runs one full control cycle. A failure affecting one level never
// halts processing of the others.
func (h *ExecutorHandler) Tick(ctx context.Context, now time.Time) {
	h.mu.Lock()

	h.drainEvents(ctx)

	ccfg := h.controller.Config()

	makerBook, err := h.maker.GetOrderBook(ctx, ccfg.TradingPair)
	if err != nil {
		h.logger.Debug("maker book unavailable",
			slog.String("error", err.Error()))
	}
	var hedgeBook domain.OrderbookSnapshot
	if ccfg.HasHedgeLeg() {
		hedgeBook, err = h.hedgeConn.GetOrderBook(ctx, ccfg.HedgePair)
		if err != nil {
			h.logger.Debug("hedge book unavailable",
				slog.String("error", err.Error()))
		}
	}
	h.cacheBooks(ctx, makerBook, hedgeBook)

	makerMid := makerBook.MidPrice()
	if h.spreadScaler != nil {
		h.spreadScaler.Observe(now, makerMid)
	}
	refBook := hedgeBook
	if !ccfg.HasHedgeLeg() {
		// Maker-only: entries are priced off the maker book itself.
		refBook = makerBook
	}
	prices := h.levelPrices(refBook)

	for _, level := range h.levels {
		h.controlLevel(ctx, now, level, makerMid, hedgeBook, prices)
	}

	h.applyGlobalTrailingStop(ctx, now)

	h.publishStatus()
	closed := h.closedRecords
	h.closedRecords = nil
	h.mu.Unlock()

	// Persistence and notification talk to Postgres and Telegram; they run
	// after unlock so nothing reading handler state waits on them.
	for _, rec := range closed {
		h.persistClosed(ctx, rec)
	}
}

func (h *ExecutorHandler) controlLevel(ctx context.Context, now time.Time, level domain.OrderLevel, makerMid float64, hedgeBook domain.OrderbookSnapshot, prices HedgePrices) {
	id := level.ID()

	if ex, ok := h.executors[id]; ok {
		if !ex.Status().IsTerminal() {
			if h.controller.EarlyStopCondition(ex, level) || h.controller.RefreshOrderCondition(now, ex, level) {
				ex.EarlyStop(ctx, now)
				return
			}
			ex.ControlTick(ctx, now, makerMid, h.hedgeExitPrice(hedgeBook, ex))
			return
		}
		if h.controller.CooldownCondition(now, ex, level) {
			return
		}
		// Cooldown elapsed: archive and let the level re-enter this tick.
		h.archive(ex)
		delete(h.executors, id)
	}

	if h.spreadScaler != nil {
		level.SpreadFactor *= h.spreadScaler.Factor()
	}
	pcfg := h.controller.PositionConfigFor(now, prices, level)
	if pcfg == nil {
		return
	}
	ex := NewPositionExecutor(*pcfg, h.maker, h.hedgeConn, h.logger, now)
	if err := ex.Start(ctx, now); err != nil {
		h.logger.Warn("executor start failed, level skipped this cycle",
			slog.String("level", id),
			slog.String("error", err.Error()))
		return
	}
	h.executors[id] = ex
}

// drainEvents dispatches all pending order lifecycle events to the executor
// owning the referenced order. Events for unknown orders are dropped.
func (h *ExecutorHandler) drainEvents(ctx context.Context) {
	for {
		select {
		case ev := <-h.maker.Events():
			h.dispatch(ctx, ev)
		case ev := <-h.hedgeConn.Events():
			h.dispatch(ctx, ev)
		default:
			return
		}
	}
}

func (h *ExecutorHandler) dispatch(ctx context.Context, ev domain.OrderEvent) {
	for _, ex := range h.executors {
		if ex.OwnsOrder(ev.OrderID) {
			ex.ProcessOrderEvent(ctx, ev)
			return
		}
	}
}

// levelPrices walks the reference book once per configured level and returns
// the volume-weighted offset prices the controller derives entries from. The
// reference book is the hedge venue's, or the maker's own when no hedge leg
// is configured.
func (h *ExecutorHandler) levelPrices(snap domain.OrderbookSnapshot) HedgePrices {
	n := 0
	for _, l := range h.levels {
		if l.Level+1 > n {
			n = l.Level + 1
		}
	}
	prices := HedgePrices{Buy: make([]float64, n), Sell: make([]float64, n)}
	ref := snap.MidPrice()
	if ref <= 0 {
		return prices
	}
	for _, l := range h.levels {
		volume := l.TargetNotional / ref
		switch l.Side {
		case domain.OrderSideBuy:
			prices.Sell[l.Level] = book.PriceForVolume(snap, domain.OrderSideSell, volume)
		case domain.OrderSideSell:
			prices.Buy[l.Level] = book.PriceForVolume(snap, domain.OrderSideBuy, volume)
		}
	}
	return prices
}

// hedgeExitPrice is the achievable volume-weighted price of offsetting the
// executor's remaining exposure on the hedge venue right now.
func (h *ExecutorHandler) hedgeExitPrice(snap domain.OrderbookSnapshot, ex *PositionExecutor) float64 {
	volume := ex.UnhedgedAmount()
	if volume <= 0 {
		volume = ex.Config().Amount
	}
	return book.PriceForVolume(snap, ex.Config().Side.Opposite(), volume)
}

func (h *ExecutorHandler) cacheBooks(ctx context.Context, makerBook, hedgeBook domain.OrderbookSnapshot) {
	if h.bookCache == nil {
		return
	}
	ccfg := h.controller.Config()
	if len(makerBook.Bids) > 0 || len(makerBook.Asks) > 0 {
		if err := h.bookCache.SetSnapshot(ctx, ccfg.Exchange, makerBook); err != nil {
			h.logger.Debug("maker book cache write failed",
				slog.String("error", err.Error()))
		}
	}
	if len(hedgeBook.Bids) > 0 || len(hedgeBook.Asks) > 0 {
		if err := h.bookCache.SetSnapshot(ctx, ccfg.HedgeExchange, hedgeBook); err != nil {
			h.logger.Debug("hedge book cache write failed",
				slog.String("error", err.Error()))
		}
	}
}

// archive folds the executor's final record into handler totals and queues it
// for the post-tick persistence flush. Called with mu held.
func (h *ExecutorHandler) archive(ex *PositionExecutor) {
	rec := ex.Record()
	h.realizedPnLQuote += rec.NetPnLQuote
	h.closedRecords = append(h.closedRecords, rec)
	h.logger.Info("position archived",
		slog.String("position_id", rec.ID),
		slog.String("close_type", string(rec.CloseType)),
		slog.Float64("net_pnl_quote", rec.NetPnLQuote))
}

func (h *ExecutorHandler) persistClosed(ctx context.Context, rec domain.PositionRecord) {
	if h.store != nil {
		if err := h.store.Create(ctx, rec); err != nil {
			h.logger.Warn("position record store failed",
				slog.String("position_id", rec.ID),
				slog.String("error", err.Error()))
		}
	}
	if h.notifier != nil {
		if err := h.notifier.PositionClosed(ctx, rec); err != nil {
			h.logger.Warn("close notification failed",
				slog.String("position_id", rec.ID),
				slog.String("error", err.Error()))
		}
	}
}

// Aggregates summarizes active exposure per side, as of the last completed
// tick.
func (h *ExecutorHandler) Aggregates() []SideAggregate {
	h.statusMu.RLock()
	defer h.statusMu.RUnlock()
	return h.lastStatus.aggregates
}

func (h *ExecutorHandler) aggregates() []SideAggregate {
	out := make([]SideAggregate, 0, 2)
	for _, side := range []domain.OrderSide{domain.OrderSideBuy, domain.OrderSideSell} {
		agg := SideAggregate{Side: side}
		for _, ex := range h.executors {
			if ex.Config().Side != side || ex.Status() != domain.ExecutorStatusActivePosition {
				continue
			}
			agg.ActiveExecutors++
			agg.NotionalQuote += ex.NotionalQuote()
			agg.UnrealizedPnLQuote += ex.NetPnLQuote()
		}
		if agg.NotionalQuote > 0 {
			agg.PnLPct = agg.UnrealizedPnLQuote / agg.NotionalQuote
		}
		out = append(out, agg)
	}
	return out
}

// applyGlobalTrailingStop ratchets the per-side trailing stop on aggregate
// PnL and forces all same-side executors out when PnL falls trailing-delta
// below the ratchet.
func (h *ExecutorHandler) applyGlobalTrailingStop(ctx context.Context, now time.Time) {
	gts := h.cfg.GlobalTrailingStop
	if gts == nil {
		return
	}
	for _, agg := range h.aggregates() {
		if agg.ActiveExecutors == 0 || agg.NotionalQuote <= 0 {
			continue
		}
		st := h.trailing[agg.Side]
		if !st.activated {
			if agg.PnLPct >= gts.ActivationPnL {
				st.activated = true
				st.ratchet = agg.PnLPct
				h.logger.Info("global trailing stop activated",
					slog.String("side", string(agg.Side)),
					slog.Float64("pnl_pct", agg.PnLPct))
			}
			continue
		}
		if agg.PnLPct > st.ratchet {
			st.ratchet = agg.PnLPct
		}
		if agg.PnLPct <= st.ratchet-gts.TrailingDelta {
			h.logger.Info("global trailing stop triggered",
				slog.String("side", string(agg.Side)),
				slog.Float64("pnl_pct", agg.PnLPct),
				slog.Float64("ratchet", st.ratchet))
			for _, ex := range h.executors {
				if ex.Config().Side == agg.Side && !ex.Status().IsTerminal() {
					ex.EarlyStop(ctx, now)
				}
			}
			st.activated = false
			st.ratchet = 0
		}
	}
}

// StatusLines returns a human-readable snapshot of the handler and its
// executors, as of the last completed tick.
func (h *ExecutorHandler) StatusLines() []string {
	h.statusMu.RLock()
	defer h.statusMu.RUnlock()
	return h.lastStatus.lines
}

// publishStatus rebuilds the read model served by the status accessors.
// Called with mu held at the end of every tick.
func (h *ExecutorHandler) publishStatus() {
	snap := statusSnapshot{
		lines:      h.statusLines(),
		aggregates: h.aggregates(),
		realized:   h.realizedPnLQuote,
	}
	h.statusMu.Lock()
	h.lastStatus = snap
	h.statusMu.Unlock()
}

func (h *ExecutorHandler) statusLines() []string {
	lines := []string{
		fmt.Sprintf("%s %s | active=%d realized_pnl=%.6f",
			h.controller.Config().Exchange, h.controller.Config().TradingPair,
			len(h.executors), h.realizedPnLQuote),
	}
	for _, level := range h.levels {
		if ex, ok := h.executors[level.ID()]; ok {
			lines = append(lines, fmt.Sprintf("  [%s] %s", level.ID(), ex.StatusLine()))
		}
	}
	for _, agg := range h.aggregates() {
		lines = append(lines, fmt.Sprintf("  %s aggregate: executors=%d notional=%.2f pnl=%.6f (%.4f%%)",
			agg.Side, agg.ActiveExecutors, agg.NotionalQuote, agg.UnrealizedPnLQuote, agg.PnLPct*100))
	}
	return lines
}

// shutdown cancels resting orders for every live executor using a short
// detached context, mirroring the drain-on-shutdown pattern of the rest of
// the app.
func (h *ExecutorHandler) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ex := range h.executors {
		if !ex.Status().IsTerminal() {
			ex.Stop(ctx)
		}
	}
}
