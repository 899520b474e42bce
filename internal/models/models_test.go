package models

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInterval(t *testing.T) {
	cases := map[string]Interval{
		"15m": "15m",
		" 1H": "1h",
		"60m": "1h",
		"60":  "1h",
		"240": "4h",
		"D":   "1d",
		"1d":  "1d",
	}
	for raw, want := range cases {
		got, err := ParseInterval(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseInterval("7m")
	require.Error(t, err)
	assert.Contains(t, fmt.Sprintf("%+v", err), "ParseInterval")

	iv, _ := ParseInterval("4h")
	assert.Equal(t, 4*time.Hour, iv.Duration())
	assert.Zero(t, Interval("nope").Duration())
}

func TestCandle_Geometry(t *testing.T) {
	open := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	c := Candle{Symbol: "X", OpenTime: open, CloseTime: open.Add(time.Minute), Open: 100, High: 110, Low: 89, Close: 100.5}

	require.NoError(t, c.Validate())
	assert.InDelta(t, 0.5, c.Body(), 1e-9)
	assert.InDelta(t, 9.5, c.UpperWick(), 1e-9)
	assert.InDelta(t, 11, c.LowerWick(), 1e-9)
	assert.True(t, c.Bullish())

	c.Close = c.Open
	assert.False(t, c.Bullish(), "close == open is bearish")
}

func TestCandle_ValidateRejects(t *testing.T) {
	open := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ok := Candle{Symbol: "X", OpenTime: open, CloseTime: open.Add(time.Minute), Open: 100, High: 101, Low: 99, Close: 100}

	highBelow := ok
	highBelow.High = 99.5
	err := highBelow.Validate()
	assert.EqualError(t, err, "candle X: high 99.5 below body")
	assert.Contains(t, fmt.Sprintf("%+v", err), "Candle.Validate", "error carries a stack trace")

	lowAbove := ok
	lowAbove.Low = 100.5
	assert.Error(t, lowAbove.Validate())

	negVol := ok
	negVol.Volume = -1
	assert.Error(t, negVol.Validate())

	badTime := ok
	badTime.CloseTime = open
	assert.Error(t, badTime.Validate())
}

func TestLast(t *testing.T) {
	cs := make([]Candle, 5)
	for i := range cs {
		cs[i].Volume = float64(i)
	}
	assert.Len(t, Last(cs, 3), 3)
	assert.Equal(t, 2.0, Last(cs, 3)[0].Volume)
	assert.Len(t, Last(cs, 10), 5)
	assert.Len(t, Last(cs, 0), 5)
}

func TestActiveOnly(t *testing.T) {
	in := []SymbolDescriptor{
		{Symbol: "BTCUSDT", ContractType: ContractLinear, Active: true},
		{Symbol: "OLD", Active: false},
		{Symbol: "BTCUSDT", ContractType: ContractInverse, Active: true},
		{Symbol: "", Active: true},
		{Symbol: "ETHUSDT", Active: true},
	}
	out := ActiveOnly(in)
	require.Len(t, out, 2)
	assert.Equal(t, ContractLinear, out[0].ContractType, "first occurrence wins")
	assert.Equal(t, "ETHUSDT", out[1].Symbol)
}

func TestSignal_Enrich(t *testing.T) {
	s := Signal{Symbol: "BTCUSDT", Direction: DirectionBullish}
	got := s.Enrich(SymbolDescriptor{ContractType: ContractPerpetual, Underlying: "BTC", QuoteAsset: "USDT"})

	assert.Equal(t, ContractPerpetual, got.ContractType)
	assert.Equal(t, "BTC", got.Underlying)
	assert.Equal(t, "USDT", got.QuoteAsset)
	assert.Empty(t, s.Underlying, "receiver is not mutated")
}
