// Package volatility derives a spread multiplier from recent price action.
// Mid prices observed on every tick are bucketed into fixed-period candles and
// fed through NATR (normalized average true range); quiet markets keep the
// configured spreads, volatile markets widen them.
package volatility

import (
	"time"

	"github.com/markcheno/go-talib"
)

type candle struct {
	high  float64
	low   float64
	close float64
}

// Tracker accumulates mid-price observations into candles and exposes the
// current spread multiplier. It is driven from the handler goroutine and is
// not safe for concurrent use.
type Tracker struct {
	period       int
	scaleFactor  float64
	candlePeriod time.Duration

	candles     []candle
	current     candle
	bucketStart time.Time
	hasCurrent  bool
}

// NewTracker creates a tracker computing NATR over the given number of
// candles. scaleFactor converts the NATR fraction into extra spread: a
// multiplier of 1 + natr*scaleFactor is applied to configured spreads.
func NewTracker(period int, scaleFactor float64, candlePeriod time.Duration) *Tracker {
	return &Tracker{
		period:       period,
		scaleFactor:  scaleFactor,
		candlePeriod: candlePeriod,
	}
}

// Observe records one mid-price sample, rolling the current candle over when
// its period has elapsed. Non-positive prices are ignored.
func (t *Tracker) Observe(now time.Time, price float64) {
	if price <= 0 {
		return
	}
	if !t.hasCurrent {
		t.current = candle{high: price, low: price, close: price}
		t.bucketStart = now
		t.hasCurrent = true
		return
	}
	if now.Sub(t.bucketStart) >= t.candlePeriod {
		t.candles = append(t.candles, t.current)
		// Keep a bounded window; NATR only needs period+1 candles.
		if max := t.period * 4; len(t.candles) > max {
			t.candles = t.candles[len(t.candles)-max:]
		}
		t.current = candle{high: price, low: price, close: price}
		t.bucketStart = now
		return
	}
	if price > t.current.high {
		t.current.high = price
	}
	if price < t.current.low {
		t.current.low = price
	}
	t.current.close = price
}

// Natr returns the latest normalized average true range as a fraction of
// price, or 0 until enough candles have completed.
func (t *Tracker) Natr() float64 {
	if len(t.candles) <= t.period {
		return 0
	}
	highs := make([]float64, len(t.candles))
	lows := make([]float64, len(t.candles))
	closes := make([]float64, len(t.candles))
	for i, c := range t.candles {
		highs[i] = c.high
		lows[i] = c.low
		closes[i] = c.close
	}
	natr := talib.Natr(highs, lows, closes, t.period)
	// talib reports NATR in percent.
	return natr[len(natr)-1] / 100
}

// Factor returns the spread multiplier, never below 1.
func (t *Tracker) Factor() float64 {
	return 1 + t.Natr()*t.scaleFactor
}
