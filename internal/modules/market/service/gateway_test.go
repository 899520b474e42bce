package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"pinbar_scanner/internal/models"
	"pinbar_scanner/internal/modules/metrics"
	stream "pinbar_scanner/internal/modules/stream/service"
)

type fakeSource struct {
	cats    []string
	catalog map[string][]models.SymbolDescriptor
	catErr  map[string]error
	klines  func(symbol string, limit int) ([]models.Candle, error)
	klinesN atomic.Int32
}

func (f *fakeSource) Name() string         { return "fake" }
func (f *fakeSource) Categories() []string { return f.cats }

func (f *fakeSource) Instruments(_ context.Context, category string) ([]models.SymbolDescriptor, error) {
	if err := f.catErr[category]; err != nil {
		return nil, err
	}
	return f.catalog[category], nil
}

func (f *fakeSource) Klines(_ context.Context, symbol string, _ models.Interval, limit int) ([]models.Candle, error) {
	f.klinesN.Add(1)
	return f.klines(symbol, limit)
}

func series(symbol string, n int) []models.Candle {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := range out {
		open := start.Add(time.Duration(i) * 15 * time.Minute)
		out[i] = models.Candle{
			Symbol: symbol, OpenTime: open, CloseTime: open.Add(15 * time.Minute),
			Open: 100, High: 101, Low: 99, Close: 100.5, Volume: float64(i + 1),
		}
	}
	return out
}

func desc(symbol string, active bool) models.SymbolDescriptor {
	return models.SymbolDescriptor{Symbol: symbol, ContractType: models.ContractLinear, Active: active}
}

func TestGateway_ListActiveSymbolsPartialFailure(t *testing.T) {
	src := &fakeSource{
		cats: []string{"linear", "inverse", "broken"},
		catalog: map[string][]models.SymbolDescriptor{
			"linear":  {desc("BTCUSDT", true), desc("OLDUSDT", false), desc("ETHUSDT", true)},
			"inverse": {desc("BTCUSD", true), desc("BTCUSDT", true)},
		},
		catErr: map[string]error{"broken": errors.New("boom")},
	}
	core, logs := observer.New(zap.WarnLevel)
	g := NewGateway(src, stream.NewCache(10), 0, zap.New(core), nil)

	var hooked []models.SymbolDescriptor
	g.OnCatalog(func(ds []models.SymbolDescriptor) { hooked = ds })

	got, err := g.ListActiveSymbols(context.Background())
	require.NoError(t, err)

	var names []string
	for _, d := range got {
		names = append(names, d.Symbol)
	}
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "BTCUSD"}, names)
	assert.Equal(t, got, hooked)
	assert.Equal(t, 1, logs.FilterMessage("catalog category failed").Len())
}

func TestGateway_ListActiveSymbolsTotalFailure(t *testing.T) {
	src := &fakeSource{
		cats:   []string{"linear", "inverse"},
		catErr: map[string]error{"linear": errors.New("a"), "inverse": errors.New("b")},
	}
	g := NewGateway(src, stream.NewCache(10), 0, nil, nil)
	called := false
	g.OnCatalog(func([]models.SymbolDescriptor) { called = true })

	_, err := g.ListActiveSymbols(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCatalogUnavailable))
	assert.False(t, called)
}

func TestGateway_GetCandlesPrefersCache(t *testing.T) {
	src := &fakeSource{klines: func(string, int) ([]models.Candle, error) {
		t.Fatal("REST must not be called")
		return nil, nil
	}}
	cache := stream.NewCache(50)
	cache.Replace("BTCUSDT", series("BTCUSDT", 30))
	m := metrics.NewNop()
	g := NewGateway(src, cache, time.Hour, nil, m)

	got := g.GetCandles(context.Background(), "BTCUSDT", "15m", 20)
	require.Len(t, got, 20)
	assert.Equal(t, 11.0, got[0].Volume)
	assert.Equal(t, 30.0, got[19].Volume)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CandlesSource.WithLabelValues("cache")))
}

func TestGateway_GetCandlesFallsBackAndSeeds(t *testing.T) {
	src := &fakeSource{klines: func(symbol string, limit int) ([]models.Candle, error) {
		return series(symbol, limit+5), nil
	}}
	cache := stream.NewCache(50)
	m := metrics.NewNop()
	g := NewGateway(src, cache, time.Hour, nil, m)

	first := g.GetCandles(context.Background(), "ETHUSDT", "15m", 20)
	require.Len(t, first, 20)
	assert.True(t, first[0].OpenTime.Before(first[19].OpenTime))

	second := g.GetCandles(context.Background(), "ETHUSDT", "15m", 20)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), src.klinesN.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CandlesSource.WithLabelValues("rest")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CandlesSource.WithLabelValues("cache")))
}

func TestGateway_GetCandlesShortCacheGoesToREST(t *testing.T) {
	src := &fakeSource{klines: func(symbol string, limit int) ([]models.Candle, error) {
		return series(symbol, limit), nil
	}}
	cache := stream.NewCache(50)
	cache.Replace("BTCUSDT", series("BTCUSDT", 1)) // одна свеча из push
	g := NewGateway(src, cache, time.Hour, nil, nil)

	got := g.GetCandles(context.Background(), "BTCUSDT", "15m", 20)
	assert.Len(t, got, 20)
	assert.Equal(t, int32(1), src.klinesN.Load())
}

func TestGateway_GetCandlesStaleCacheIgnored(t *testing.T) {
	src := &fakeSource{klines: func(symbol string, limit int) ([]models.Candle, error) {
		return series(symbol, limit), nil
	}}
	cache := stream.NewCache(50)
	cache.Replace("BTCUSDT", series("BTCUSDT", 30))
	g := NewGateway(src, cache, 15*time.Minute, nil, nil)
	g.now = func() time.Time { return time.Now().Add(time.Hour) }

	g.GetCandles(context.Background(), "BTCUSDT", "15m", 20)
	assert.Equal(t, int32(1), src.klinesN.Load())
}

func TestGateway_GetCandlesSwallowsErrors(t *testing.T) {
	src := &fakeSource{klines: func(string, int) ([]models.Candle, error) {
		return nil, errors.New("connection reset")
	}}
	core, logs := observer.New(zap.WarnLevel)
	m := metrics.NewNop()
	g := NewGateway(src, stream.NewCache(10), time.Hour, zap.New(core), m)

	got := g.GetCandles(context.Background(), "BTCUSDT", "15m", 20)
	assert.Empty(t, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CandlesSource.WithLabelValues("empty")))

	entries := logs.FilterMessage("candles fetch failed, skipping symbol").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "BTCUSDT", entries[0].ContextMap()["symbol"])
}
