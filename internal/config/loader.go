package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies HEDGEBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known HEDGEBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Maker venue ──
	setStr(&cfg.Maker.Name, "HEDGEBOT_MAKER_NAME")
	setStr(&cfg.Maker.TradingPair, "HEDGEBOT_MAKER_TRADING_PAIR")
	setStr(&cfg.Maker.RestHost, "HEDGEBOT_MAKER_REST_HOST")
	setStr(&cfg.Maker.WsHost, "HEDGEBOT_MAKER_WS_HOST")
	setStr(&cfg.Maker.ApiKey, "HEDGEBOT_MAKER_API_KEY")
	setStr(&cfg.Maker.ApiSecret, "HEDGEBOT_MAKER_API_SECRET")
	setFloat64(&cfg.Maker.FeeRate, "HEDGEBOT_MAKER_FEE_RATE")

	// ── Hedge venue ──
	setBool(&cfg.Hedge.Enabled, "HEDGEBOT_HEDGE_ENABLED")
	setStr(&cfg.Hedge.Name, "HEDGEBOT_HEDGE_NAME")
	setStr(&cfg.Hedge.TradingPair, "HEDGEBOT_HEDGE_TRADING_PAIR")
	setStr(&cfg.Hedge.RestHost, "HEDGEBOT_HEDGE_REST_HOST")
	setStr(&cfg.Hedge.WsHost, "HEDGEBOT_HEDGE_WS_HOST")
	setStr(&cfg.Hedge.ApiKey, "HEDGEBOT_HEDGE_API_KEY")
	setStr(&cfg.Hedge.ApiSecret, "HEDGEBOT_HEDGE_API_SECRET")
	setFloat64(&cfg.Hedge.FeeRate, "HEDGEBOT_HEDGE_FEE_RATE")
	setStr(&cfg.Hedge.OrderType, "HEDGEBOT_HEDGE_ORDER_TYPE")
	setFloat64(&cfg.Hedge.Profitability, "HEDGEBOT_HEDGE_PROFITABILITY")

	// ── Strategy ──
	setDuration(&cfg.Strategy.TickInterval, "HEDGEBOT_STRATEGY_TICK_INTERVAL")
	setStr(&cfg.Strategy.OpenOrderType, "HEDGEBOT_STRATEGY_OPEN_ORDER_TYPE")
	setInt(&cfg.Strategy.Leverage, "HEDGEBOT_STRATEGY_LEVERAGE")
	setFloat64(&cfg.Strategy.Defaults.OrderAmountQuote, "HEDGEBOT_STRATEGY_ORDER_AMOUNT_QUOTE")
	setFloat64(&cfg.Strategy.Defaults.SpreadFactor, "HEDGEBOT_STRATEGY_SPREAD_FACTOR")
	setFloat64(&cfg.Strategy.Defaults.SpreadStep, "HEDGEBOT_STRATEGY_SPREAD_STEP")
	setFloat64(&cfg.Strategy.Defaults.StopLoss, "HEDGEBOT_STRATEGY_STOP_LOSS")
	setFloat64(&cfg.Strategy.Defaults.TakeProfit, "HEDGEBOT_STRATEGY_TAKE_PROFIT")
	setDuration(&cfg.Strategy.Defaults.TimeLimit, "HEDGEBOT_STRATEGY_TIME_LIMIT")
	setDuration(&cfg.Strategy.Defaults.RefreshTime, "HEDGEBOT_STRATEGY_REFRESH_TIME")
	setDuration(&cfg.Strategy.Defaults.CooldownTime, "HEDGEBOT_STRATEGY_COOLDOWN_TIME")
	setInt(&cfg.Strategy.Buy.Levels, "HEDGEBOT_STRATEGY_BUY_LEVELS")
	setInt(&cfg.Strategy.Sell.Levels, "HEDGEBOT_STRATEGY_SELL_LEVELS")
	setFloat64(&cfg.Strategy.GlobalTrailingStop.ActivationPnL, "HEDGEBOT_STRATEGY_GTS_ACTIVATION_PNL")
	setFloat64(&cfg.Strategy.GlobalTrailingStop.TrailingDelta, "HEDGEBOT_STRATEGY_GTS_TRAILING_DELTA")
	setBool(&cfg.Strategy.Volatility.Enabled, "HEDGEBOT_STRATEGY_VOLATILITY_ENABLED")
	setInt(&cfg.Strategy.Volatility.Period, "HEDGEBOT_STRATEGY_VOLATILITY_PERIOD")
	setFloat64(&cfg.Strategy.Volatility.ScaleFactor, "HEDGEBOT_STRATEGY_VOLATILITY_SCALE_FACTOR")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "HEDGEBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "HEDGEBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "HEDGEBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "HEDGEBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "HEDGEBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "HEDGEBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "HEDGEBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "HEDGEBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "HEDGEBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "HEDGEBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "HEDGEBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "HEDGEBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "HEDGEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "HEDGEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HEDGEBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "HEDGEBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "HEDGEBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "HEDGEBOT_REDIS_TLS_ENABLED")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "HEDGEBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "HEDGEBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStringSlice(&cfg.Notify.Events, "HEDGEBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "HEDGEBOT_MODE")
	setStr(&cfg.LogLevel, "HEDGEBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
