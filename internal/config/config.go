// Package config defines the top-level configuration for the hedge bot and
// turns the declarative TOML sections into the resolved parameter sets the
// executor layer consumes.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/avyukov/hedgebot/internal/domain"
	"github.com/avyukov/hedgebot/internal/executor"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by HEDGEBOT_* environment variables.
type Config struct {
	Maker    VenueConfig    `toml:"maker"`
	Hedge    HedgeConfig    `toml:"hedge"`
	Strategy StrategyConfig `toml:"strategy"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// VenueConfig holds the connection parameters of one exchange.
type VenueConfig struct {
	Name        string  `toml:"name"`
	TradingPair string  `toml:"trading_pair"`
	RestHost    string  `toml:"rest_host"`
	WsHost      string  `toml:"ws_host"`
	ApiKey      string  `toml:"api_key"`
	ApiSecret   string  `toml:"api_secret"`
	FeeRate     float64 `toml:"fee_rate"` // proportional, used by the paper venue
}

// HedgeConfig holds the hedge-venue connection plus the taker-leg parameters.
// Disabled means positions run maker-only with no offsetting leg.
type HedgeConfig struct {
	Enabled       bool    `toml:"enabled"`
	Name          string  `toml:"name"`
	TradingPair   string  `toml:"trading_pair"`
	RestHost      string  `toml:"rest_host"`
	WsHost        string  `toml:"ws_host"`
	ApiKey        string  `toml:"api_key"`
	ApiSecret     string  `toml:"api_secret"`
	FeeRate       float64 `toml:"fee_rate"`
	OrderType     string  `toml:"order_type"`    // "market" or "limit"
	Profitability float64 `toml:"profitability"` // fraction, 0.006 = 0.6%
}

// LevelParams is one tier of level parameters. The same structure serves as
// global defaults, per-side overrides, and per-level overrides; at the
// override tiers a zero value means "inherit from the tier above".
type LevelParams struct {
	OrderAmountQuote float64 `toml:"order_amount_quote"`
	SpreadFactor     float64 `toml:"spread_factor"` // fraction off the hedge price
	SpreadStep       float64 `toml:"spread_step"`   // added per level index

	StopLoss               float64  `toml:"stop_loss"`   // fraction
	TakeProfit             float64  `toml:"take_profit"` // fraction
	TimeLimit              duration `toml:"time_limit"`
	TakeProfitOrderType    string   `toml:"take_profit_order_type"`
	TrailingStopActivation float64  `toml:"trailing_stop_activation"`
	TrailingStopDelta      float64  `toml:"trailing_stop_delta"`

	RefreshTime  duration `toml:"refresh_time"`
	CooldownTime duration `toml:"cooldown_time"`
}

// SideConfig configures the quoting levels of one side.
type SideConfig struct {
	Levels int `toml:"levels"`
	LevelParams
	PerLevel []LevelParams `toml:"per_level"` // indexed by level, optional
}

// GlobalTrailingStopConfig is the portfolio-level trailing stop. Zero
// activation disables it.
type GlobalTrailingStopConfig struct {
	ActivationPnL float64 `toml:"activation_pnl"`
	TrailingDelta float64 `toml:"trailing_delta"`
}

// VolatilityConfig controls NATR-based spread scaling.
type VolatilityConfig struct {
	Enabled      bool     `toml:"enabled"`
	Period       int      `toml:"period"`
	ScaleFactor  float64  `toml:"scale_factor"`
	CandlePeriod duration `toml:"candle_period"`
}

// StrategyConfig holds the strategy parameters: the tick cadence, the level
// defaults, and the per-side level sections.
type StrategyConfig struct {
	TickInterval  duration `toml:"tick_interval"`
	OpenOrderType string   `toml:"open_order_type"`
	Leverage      int      `toml:"leverage"`

	Defaults LevelParams `toml:"defaults"`
	Buy      SideConfig  `toml:"buy"`
	Sell     SideConfig  `toml:"sell"`

	GlobalTrailingStop GlobalTrailingStopConfig `toml:"global_trailing_stop"`
	Volatility         VolatilityConfig         `toml:"volatility"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	Events         []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Maker: VenueConfig{
			Name:        "paper-maker",
			TradingPair: "ETH-USDT",
		},
		Hedge: HedgeConfig{
			Enabled:       true,
			Name:          "paper-hedge",
			TradingPair:   "ETH-USDT",
			OrderType:     "market",
			Profitability: 0.006,
		},
		Strategy: StrategyConfig{
			TickInterval:  duration{time.Second},
			OpenOrderType: "limit",
			Leverage:      1,
			Defaults: LevelParams{
				OrderAmountQuote:    100,
				SpreadFactor:        0.002,
				SpreadStep:          0.001,
				StopLoss:            0.03,
				TakeProfit:          0.01,
				TimeLimit:           duration{6 * time.Hour},
				TakeProfitOrderType: "limit",
				RefreshTime:         duration{5 * time.Minute},
				CooldownTime:        duration{time.Minute},
			},
			Buy:  SideConfig{Levels: 1},
			Sell: SideConfig{Levels: 1},
			Volatility: VolatilityConfig{
				Enabled:      false,
				Period:       14,
				ScaleFactor:  1.0,
				CandlePeriod: duration{time.Minute},
			},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "hedgebot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		Notify: NotifyConfig{
			Events: []string{"position_closed", "error"},
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade": true,
	"paper": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validOrderTypes = map[string]bool{
	"limit":  true,
	"market": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, paper)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Maker.Name == "" {
		errs = append(errs, "maker: name must not be empty")
	}
	if c.Maker.TradingPair == "" {
		errs = append(errs, "maker: trading_pair must not be empty")
	}
	if c.Mode == "trade" && c.Maker.WsHost == "" {
		errs = append(errs, "maker: ws_host is required for mode trade")
	}

	if c.Hedge.Enabled {
		if c.Hedge.Name == "" {
			errs = append(errs, "hedge: name must not be empty when enabled")
		}
		if c.Hedge.TradingPair == "" {
			errs = append(errs, "hedge: trading_pair must not be empty when enabled")
		}
		if !validOrderTypes[c.Hedge.OrderType] {
			errs = append(errs, fmt.Sprintf("hedge: order_type must be limit or market, got %q", c.Hedge.OrderType))
		}
		if c.Hedge.Profitability < 0 {
			errs = append(errs, "hedge: profitability must be >= 0")
		}
		if c.Mode == "trade" && c.Hedge.WsHost == "" {
			errs = append(errs, "hedge: ws_host is required for mode trade")
		}
	}

	if c.Strategy.TickInterval.Duration <= 0 {
		errs = append(errs, "strategy: tick_interval must be > 0")
	}
	if !validOrderTypes[c.Strategy.OpenOrderType] {
		errs = append(errs, fmt.Sprintf("strategy: open_order_type must be limit or market, got %q", c.Strategy.OpenOrderType))
	}
	if c.Strategy.Leverage < 1 {
		errs = append(errs, "strategy: leverage must be >= 1")
	}
	if c.Strategy.Buy.Levels+c.Strategy.Sell.Levels < 1 {
		errs = append(errs, "strategy: at least one buy or sell level is required")
	}
	for _, side := range []struct {
		name string
		cfg  SideConfig
	}{{"buy", c.Strategy.Buy}, {"sell", c.Strategy.Sell}} {
		if side.cfg.Levels < 0 {
			errs = append(errs, fmt.Sprintf("strategy.%s: levels must be >= 0", side.name))
		}
		if len(side.cfg.PerLevel) > side.cfg.Levels {
			errs = append(errs, fmt.Sprintf("strategy.%s: %d per_level entries for %d levels", side.name, len(side.cfg.PerLevel), side.cfg.Levels))
		}
	}
	for _, level := range c.BuildOrderLevels() {
		if level.TargetNotional <= 0 {
			errs = append(errs, fmt.Sprintf("strategy: level %s resolves to a non-positive order_amount_quote", level.ID()))
		}
		if level.SpreadFactor < 0 {
			errs = append(errs, fmt.Sprintf("strategy: level %s resolves to a negative spread", level.ID()))
		}
	}

	gts := c.Strategy.GlobalTrailingStop
	if gts.ActivationPnL > 0 && gts.TrailingDelta <= 0 {
		errs = append(errs, "strategy.global_trailing_stop: trailing_delta must be > 0 when activation_pnl is set")
	}

	if c.Strategy.Volatility.Enabled {
		if c.Strategy.Volatility.Period < 2 {
			errs = append(errs, "strategy.volatility: period must be >= 2")
		}
		if c.Strategy.Volatility.ScaleFactor <= 0 {
			errs = append(errs, "strategy.volatility: scale_factor must be > 0")
		}
		if c.Strategy.Volatility.CandlePeriod.Duration <= 0 {
			errs = append(errs, "strategy.volatility: candle_period must be > 0")
		}
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// resolveFloat picks the innermost non-zero tier.
func resolveFloat(level, side, global float64) float64 {
	if level != 0 {
		return level
	}
	if side != 0 {
		return side
	}
	return global
}

func resolveDuration(level, side, global duration) time.Duration {
	if level.Duration != 0 {
		return level.Duration
	}
	if side.Duration != 0 {
		return side.Duration
	}
	return global.Duration
}

func resolveString(level, side, global string) string {
	if level != "" {
		return level
	}
	if side != "" {
		return side
	}
	return global
}

// resolveLevel collapses the three parameter tiers into the final values for
// one level. Overrides inherit anything they leave at the zero value; a
// barrier is disabled by leaving its global default at zero.
func resolveLevel(level, side, global LevelParams) LevelParams {
	return LevelParams{
		OrderAmountQuote:       resolveFloat(level.OrderAmountQuote, side.OrderAmountQuote, global.OrderAmountQuote),
		SpreadFactor:           resolveFloat(level.SpreadFactor, side.SpreadFactor, global.SpreadFactor),
		SpreadStep:             resolveFloat(level.SpreadStep, side.SpreadStep, global.SpreadStep),
		StopLoss:               resolveFloat(level.StopLoss, side.StopLoss, global.StopLoss),
		TakeProfit:             resolveFloat(level.TakeProfit, side.TakeProfit, global.TakeProfit),
		TimeLimit:              duration{resolveDuration(level.TimeLimit, side.TimeLimit, global.TimeLimit)},
		TakeProfitOrderType:    resolveString(level.TakeProfitOrderType, side.TakeProfitOrderType, global.TakeProfitOrderType),
		TrailingStopActivation: resolveFloat(level.TrailingStopActivation, side.TrailingStopActivation, global.TrailingStopActivation),
		TrailingStopDelta:      resolveFloat(level.TrailingStopDelta, side.TrailingStopDelta, global.TrailingStopDelta),
		RefreshTime:            duration{resolveDuration(level.RefreshTime, side.RefreshTime, global.RefreshTime)},
		CooldownTime:           duration{resolveDuration(level.CooldownTime, side.CooldownTime, global.CooldownTime)},
	}
}

func orderType(s string) domain.OrderType {
	if s == "market" {
		return domain.OrderTypeMarket
	}
	return domain.OrderTypeLimit
}

// BuildOrderLevels expands the per-side sections into the flat resolved level
// list the handler runs on. Spreads grow arithmetically with the level index:
// spread_factor + level*spread_step.
func (c *Config) BuildOrderLevels() []domain.OrderLevel {
	var levels []domain.OrderLevel
	for _, side := range []struct {
		side domain.OrderSide
		cfg  SideConfig
	}{
		{domain.OrderSideBuy, c.Strategy.Buy},
		{domain.OrderSideSell, c.Strategy.Sell},
	} {
		for i := 0; i < side.cfg.Levels; i++ {
			override := LevelParams{}
			if i < len(side.cfg.PerLevel) {
				override = side.cfg.PerLevel[i]
			}
			params := resolveLevel(override, side.cfg.LevelParams, c.Strategy.Defaults)

			level := domain.OrderLevel{
				Side:           side.side,
				Level:          i,
				TargetNotional: params.OrderAmountQuote,
				SpreadFactor:   params.SpreadFactor + float64(i)*params.SpreadStep,
				RefreshTime:    params.RefreshTime.Duration,
				CooldownTime:   params.CooldownTime.Duration,
				TripleBarrier: domain.TripleBarrierConf{
					StopLoss:            params.StopLoss,
					TakeProfit:          params.TakeProfit,
					TimeLimit:           params.TimeLimit.Duration,
					TakeProfitOrderType: orderType(params.TakeProfitOrderType),
				},
			}
			if params.TrailingStopActivation > 0 {
				level.TripleBarrier.TrailingStop = &domain.TrailingStop{
					ActivationPriceDelta: params.TrailingStopActivation,
					TrailingDelta:        params.TrailingStopDelta,
				}
			}
			levels = append(levels, level)
		}
	}
	return levels
}

// ControllerConfig returns the resolved controller parameter set.
func (c *Config) ControllerConfig() executor.ControllerConfig {
	cc := executor.ControllerConfig{
		Exchange:      c.Maker.Name,
		TradingPair:   c.Maker.TradingPair,
		OpenOrderType: orderType(c.Strategy.OpenOrderType),
		Leverage:      c.Strategy.Leverage,
	}
	if c.Hedge.Enabled {
		cc.HedgeExchange = c.Hedge.Name
		cc.HedgePair = c.Hedge.TradingPair
		cc.HedgeOrderType = orderType(c.Hedge.OrderType)
		cc.TakerProfitability = c.Hedge.Profitability
	}
	return cc
}

// HandlerConfig returns the resolved handler parameter set.
func (c *Config) HandlerConfig() executor.HandlerConfig {
	hc := executor.HandlerConfig{TickInterval: c.Strategy.TickInterval.Duration}
	if gts := c.Strategy.GlobalTrailingStop; gts.ActivationPnL > 0 {
		hc.GlobalTrailingStop = &executor.GlobalTrailingStopConfig{
			ActivationPnL: gts.ActivationPnL,
			TrailingDelta: gts.TrailingDelta,
		}
	}
	return hc
}
