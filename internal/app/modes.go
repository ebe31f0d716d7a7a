package app

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avyukov/hedgebot/internal/domain"
	"github.com/avyukov/hedgebot/internal/exchange"
	"github.com/avyukov/hedgebot/internal/exchange/gateway"
	"github.com/avyukov/hedgebot/internal/exchange/paper"
	"github.com/avyukov/hedgebot/internal/executor"
	"github.com/avyukov/hedgebot/internal/feed"
	"github.com/avyukov/hedgebot/internal/volatility"
)

// PaperMode runs the strategy against in-process simulated venues. Books come
// from the venue WebSocket feed when maker.ws_host is set, otherwise from a
// random-walk simulator, so the mode works without any external connectivity.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting paper mode")

	maker := paper.New(a.cfg.Maker.Name)
	maker.SetFeeRate(a.cfg.Maker.FeeRate)

	hedge := maker
	if a.cfg.Hedge.Enabled {
		hedge = paper.New(a.cfg.Hedge.Name)
		hedge.SetFeeRate(a.cfg.Hedge.FeeRate)
	}

	g, ctx := errgroup.WithContext(ctx)

	// Real feeds only when every venue in play has one; otherwise the
	// simulator drives all books so the strategy never starves.
	useFeeds := a.cfg.Maker.WsHost != "" && (!a.cfg.Hedge.Enabled || a.cfg.Hedge.WsHost != "")
	if useFeeds {
		makerFeed := feed.NewBookFeed(a.cfg.Maker.Name, a.cfg.Maker.WsHost, []string{a.cfg.Maker.TradingPair},
			func(_ context.Context, snap domain.OrderbookSnapshot) {
				maker.SetOrderBook(snap.TradingPair, snap)
				maker.MatchBook(snap.TradingPair)
			},
			a.logger)
		g.Go(func() error {
			defer makerFeed.Close()
			return makerFeed.Run(ctx)
		})

		if a.cfg.Hedge.Enabled {
			hedgeVenue := hedge
			hedgeFeed := feed.NewBookFeed(a.cfg.Hedge.Name, a.cfg.Hedge.WsHost, []string{a.cfg.Hedge.TradingPair},
				func(_ context.Context, snap domain.OrderbookSnapshot) {
					hedgeVenue.SetOrderBook(snap.TradingPair, snap)
					hedgeVenue.MatchBook(snap.TradingPair)
				},
				a.logger)
			g.Go(func() error {
				defer hedgeFeed.Close()
				return hedgeFeed.Run(ctx)
			})
		}
	} else {
		g.Go(func() error {
			a.runBookSimulator(ctx, maker, hedge)
			return nil
		})
	}

	h := a.buildHandler(deps, maker, hedge)
	g.Go(func() error { return a.statusLoop(ctx, h) })
	g.Go(func() error { return h.Run(ctx) })

	return g.Wait()
}

// TradeMode runs the strategy against real venues through their execution
// gateways: streamed books, REST order placement, and a WebSocket order-event
// stream per venue.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	g, ctx := errgroup.WithContext(ctx)

	makerFeed := feed.NewBookFeed(a.cfg.Maker.Name, a.cfg.Maker.WsHost, []string{a.cfg.Maker.TradingPair}, nil, a.logger)
	makerConn := gateway.New(gateway.Config{
		Name:     a.cfg.Maker.Name,
		RestHost: a.cfg.Maker.RestHost,
		WsHost:   a.cfg.Maker.WsHost,
		ApiKey:   a.cfg.Maker.ApiKey,
	}, makerFeed, a.logger)
	g.Go(func() error {
		defer makerFeed.Close()
		return makerFeed.Run(ctx)
	})
	g.Go(func() error { return makerConn.Run(ctx) })

	var hedgeConn exchange.Connector = makerConn
	if a.cfg.Hedge.Enabled {
		hedgeFeed := feed.NewBookFeed(a.cfg.Hedge.Name, a.cfg.Hedge.WsHost, []string{a.cfg.Hedge.TradingPair}, nil, a.logger)
		conn := gateway.New(gateway.Config{
			Name:     a.cfg.Hedge.Name,
			RestHost: a.cfg.Hedge.RestHost,
			WsHost:   a.cfg.Hedge.WsHost,
			ApiKey:   a.cfg.Hedge.ApiKey,
		}, hedgeFeed, a.logger)
		g.Go(func() error {
			defer hedgeFeed.Close()
			return hedgeFeed.Run(ctx)
		})
		g.Go(func() error { return conn.Run(ctx) })
		hedgeConn = conn
	}

	h := a.buildHandler(deps, makerConn, hedgeConn)
	g.Go(func() error { return a.statusLoop(ctx, h) })
	g.Go(func() error { return h.Run(ctx) })

	return g.Wait()
}

// buildHandler assembles the executor handler from config and attaches the
// optional infrastructure dependencies.
func (a *App) buildHandler(deps *Dependencies, maker, hedge exchange.Connector) *executor.ExecutorHandler {
	controller := executor.NewOrderLevelController(a.cfg.ControllerConfig(), a.logger)
	h := executor.NewExecutorHandler(a.cfg.HandlerConfig(), controller, a.cfg.BuildOrderLevels(), maker, hedge, a.logger)

	if deps.RecordStore != nil {
		h.SetStore(deps.RecordStore)
	}
	if deps.BookCache != nil {
		h.SetBookCache(deps.BookCache)
	}
	if deps.Notifier != nil {
		h.SetNotifier(deps.Notifier)
	}
	if vol := a.cfg.Strategy.Volatility; vol.Enabled {
		h.SetSpreadScaler(volatility.NewTracker(vol.Period, vol.ScaleFactor, vol.CandlePeriod.Duration))
	}
	return h
}

// runBookSimulator random-walks a mid price and publishes synthetic books to
// both paper venues, crossing resting limit orders on every step.
func (a *App) runBookSimulator(ctx context.Context, maker, hedge *paper.Connector) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	mid := 2000.0

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	publish := func(venue *paper.Connector, pair string, mid float64) {
		half := mid * 0.0005
		snap := domain.OrderbookSnapshot{
			TradingPair: pair,
			Bids: []domain.PriceLevel{
				{Price: mid - half, Size: 50},
				{Price: mid - 2*half, Size: 100},
				{Price: mid - 3*half, Size: 200},
			},
			Asks: []domain.PriceLevel{
				{Price: mid + half, Size: 50},
				{Price: mid + 2*half, Size: 100},
				{Price: mid + 3*half, Size: 200},
			},
			Timestamp: time.Now().UTC(),
		}
		venue.SetOrderBook(pair, snap)
		venue.MatchBook(pair)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mid *= 1 + (rng.Float64()-0.5)*0.002
			publish(maker, a.cfg.Maker.TradingPair, mid)
			if hedge != maker {
				// The hedge venue trades around the same mid with its own noise.
				publish(hedge, a.cfg.Hedge.TradingPair, mid*(1+(rng.Float64()-0.5)*0.0004))
			}
		}
	}
}

// statusLoop periodically logs the live position summary and realized PnL.
func (a *App) statusLoop(ctx context.Context, h *executor.ExecutorHandler) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, line := range h.StatusLines() {
				a.logger.InfoContext(ctx, "position status", slog.String("status", line))
			}
			for _, agg := range h.Aggregates() {
				a.logger.InfoContext(ctx, "side aggregate",
					slog.String("side", string(agg.Side)),
					slog.Int("active", agg.ActiveExecutors),
					slog.Float64("notional_quote", agg.NotionalQuote),
					slog.Float64("unrealized_pnl_quote", agg.UnrealizedPnLQuote),
				)
			}
			a.logger.InfoContext(ctx, "realized pnl",
				slog.Float64("quote", h.RealizedPnLQuote()),
			)
		}
	}
}
