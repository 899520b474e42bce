package models

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// Candle — одна свеча (kline) по символу. CloseTime — исключающая граница: OpenTime+interval.
type Candle struct {
	Symbol    string
	OpenTime  time.Time
	CloseTime time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Validate проверяет инварианты OHLC.
func (c Candle) Validate() error {
	for name, v := range map[string]float64{
		"open": c.Open, "high": c.High, "low": c.Low, "close": c.Close, "volume": c.Volume,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Errorf("candle %s: bad %s=%v", c.Symbol, name, v)
		}
	}
	if c.High < math.Max(c.Open, c.Close) {
		return errors.Errorf("candle %s: high %v below body", c.Symbol, c.High)
	}
	if c.Low > math.Min(c.Open, c.Close) {
		return errors.Errorf("candle %s: low %v above body", c.Symbol, c.Low)
	}
	if !c.CloseTime.After(c.OpenTime) {
		return errors.Errorf("candle %s: closeTime %s not after openTime %s", c.Symbol, c.CloseTime, c.OpenTime)
	}
	return nil
}

// Body — |close-open|.
func (c Candle) Body() float64 { return math.Abs(c.Close - c.Open) }

// UpperWick — high-max(open,close).
func (c Candle) UpperWick() float64 { return c.High - math.Max(c.Open, c.Close) }

// LowerWick — min(open,close)-low.
func (c Candle) LowerWick() float64 { return math.Min(c.Open, c.Close) - c.Low }

// Bullish — строго close > open; равенство считается медвежьим.
func (c Candle) Bullish() bool { return c.Close > c.Open }

// Last возвращает последние n свечей (или все, если их меньше).
func Last(candles []Candle, n int) []Candle {
	if n <= 0 || len(candles) <= n {
		return candles
	}
	return candles[len(candles)-n:]
}
