package service

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinbar_scanner/internal/models"
	"pinbar_scanner/internal/modules/metrics"
)

var errCatalog = errors.New("catalog down")

type fakeMarket struct {
	symbols []models.SymbolDescriptor
	listErr error
	hold    time.Duration

	empty  map[string]bool
	panics map[string]bool

	inflight    atomic.Int32
	maxInflight atomic.Int32
	fetched     atomic.Int32
	listing     atomic.Int32
	maxListing  atomic.Int32

	mu     sync.Mutex
	starts []time.Time
}

func bump(cur, peak *atomic.Int32) {
	n := cur.Add(1)
	for {
		m := peak.Load()
		if n <= m || peak.CompareAndSwap(m, n) {
			return
		}
	}
}

func (f *fakeMarket) ListActiveSymbols(context.Context) ([]models.SymbolDescriptor, error) {
	bump(&f.listing, &f.maxListing)
	defer f.listing.Add(-1)
	time.Sleep(f.hold)
	return f.symbols, f.listErr
}

func (f *fakeMarket) GetCandles(_ context.Context, symbol string, _ models.Interval, limit int) []models.Candle {
	bump(&f.inflight, &f.maxInflight)
	defer f.inflight.Add(-1)
	defer f.fetched.Add(1)

	f.mu.Lock()
	f.starts = append(f.starts, time.Now())
	f.mu.Unlock()

	time.Sleep(f.hold)
	if f.panics[symbol] {
		panic("bad row")
	}
	if f.empty[symbol] {
		return nil
	}
	return []models.Candle{{Symbol: symbol, Close: 100, CloseTime: time.Unix(1700000000, 0)}}
}

// signalOn сигналит только для символов из набора.
type signalOn map[string]models.Direction

func (s signalOn) Evaluate(c []models.Candle) (models.Signal, bool) {
	last := c[len(c)-1]
	d, ok := s[last.Symbol]
	if !ok {
		return models.Signal{}, false
	}
	return models.Signal{
		Direction:      d,
		EvaluatedAt:    last.CloseTime,
		Symbol:         last.Symbol,
		ReferencePrice: last.Close,
		VolumeRatio:    decimal.RequireFromString("2.00"),
	}, true
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls [][]models.Signal
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, s []models.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
	return r.err
}

func symbols(names ...string) []models.SymbolDescriptor {
	out := make([]models.SymbolDescriptor, len(names))
	for i, n := range names {
		out[i] = models.SymbolDescriptor{
			Symbol: n, ContractType: models.ContractLinear, Underlying: n[:3], QuoteAsset: "USDT", Active: true,
		}
	}
	return out
}

func newTestOrchestrator(cfg Config, mk *fakeMarket, det Detector, n Notifier, m *metrics.Metrics) (*Orchestrator, *[]time.Duration) {
	o := NewOrchestrator(cfg, mk, det, n, nil, m)
	var sleeps []time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return o, &sleeps
}

func TestScanMarket_BatchesAndSingleNotify(t *testing.T) {
	mk := &fakeMarket{
		symbols: symbols("AAAUSDT", "BBBUSDT", "CCCUSDT", "DDDUSDT", "EEEUSDT", "FFFUSDT", "GGGUSDT"),
		hold:    20 * time.Millisecond,
	}
	det := signalOn{"BBBUSDT": models.DirectionBullish, "GGGUSDT": models.DirectionBearish, "EEEUSDT": models.DirectionBullish}
	n := &recordingNotifier{}
	m := metrics.NewNop()
	o, sleeps := newTestOrchestrator(Config{Interval: "15m", Limit: 20, BatchSize: 3, BatchDelay: 500 * time.Millisecond}, mk, det, n, m)

	res, err := o.ScanMarket(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 7, res.TotalSymbols)
	assert.Equal(t, 3, res.Batches, "ceil(7/3)")
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, *sleeps)
	assert.Equal(t, int32(3), mk.maxInflight.Load())
	assert.Equal(t, int32(7), mk.fetched.Load())

	require.Len(t, n.calls, 1)
	got := n.calls[0]
	require.Len(t, got, 3)
	assert.Equal(t, []string{"BBBUSDT", "EEEUSDT", "GGGUSDT"}, []string{got[0].Symbol, got[1].Symbol, got[2].Symbol})
	assert.Equal(t, models.ContractLinear, got[0].ContractType)
	assert.Equal(t, "BBB", got[0].Underlying)
	assert.Equal(t, models.Interval("15m"), got[0].Interval)
	assert.Equal(t, res.Signals, got)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScansTotal.WithLabelValues("ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.BatchesTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SignalsTotal.WithLabelValues("bullish")))

	last, ok := o.LastRun()
	require.True(t, ok)
	assert.Equal(t, res.RunID, last.RunID)
}

func TestScanMarket_InterBatchDelayIsReal(t *testing.T) {
	mk := &fakeMarket{symbols: symbols("AAAUSDT", "BBBUSDT", "CCCUSDT", "DDDUSDT", "EEEUSDT")}
	delay := 40 * time.Millisecond
	o := NewOrchestrator(Config{Interval: "15m", BatchSize: 2, BatchDelay: delay}, mk, signalOn{}, nil, nil, nil)

	_, err := o.ScanMarket(context.Background())
	require.NoError(t, err)

	mk.mu.Lock()
	starts := append([]time.Time(nil), mk.starts...)
	mk.mu.Unlock()
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	require.Len(t, starts, 5)

	// батчи {0,1} {2,3} {4}
	assert.GreaterOrEqual(t, starts[2].Sub(starts[1]), delay)
	assert.GreaterOrEqual(t, starts[4].Sub(starts[3]), delay)
}

func TestScanMarket_PartialFailureKeepsGoing(t *testing.T) {
	mk := &fakeMarket{
		symbols: symbols("AAAUSDT", "BBBUSDT", "CCCUSDT", "DDDUSDT"),
		empty:   map[string]bool{"AAAUSDT": true},
		panics:  map[string]bool{"CCCUSDT": true},
	}
	det := signalOn{"AAAUSDT": models.DirectionBullish, "BBBUSDT": models.DirectionBullish, "CCCUSDT": models.DirectionBearish, "DDDUSDT": models.DirectionBearish}
	n := &recordingNotifier{}
	m := metrics.NewNop()
	o, _ := newTestOrchestrator(Config{Interval: "15m", BatchSize: 2}, mk, det, n, m)

	res, err := o.ScanMarket(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Failures)
	require.Len(t, res.Signals, 2)
	assert.Equal(t, "BBBUSDT", res.Signals[0].Symbol)
	assert.Equal(t, "DDDUSDT", res.Signals[1].Symbol)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SymbolFailures))
	assert.Len(t, n.calls, 1)
}

func TestScanMarket_CatalogFailureAborts(t *testing.T) {
	mk := &fakeMarket{listErr: errCatalog}
	n := &recordingNotifier{}
	m := metrics.NewNop()
	o, _ := newTestOrchestrator(Config{BatchSize: 2}, mk, signalOn{}, n, m)

	_, err := o.ScanMarket(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errCatalog))
	assert.Empty(t, n.calls)
	assert.Equal(t, int32(0), mk.fetched.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScansTotal.WithLabelValues("catalog_error")))

	_, ok := o.LastRun()
	assert.False(t, ok)
}

func TestScanMarket_CancelBetweenBatches(t *testing.T) {
	mk := &fakeMarket{symbols: symbols("AAAUSDT", "BBBUSDT", "CCCUSDT", "DDDUSDT")}
	n := &recordingNotifier{}
	o, _ := newTestOrchestrator(Config{BatchSize: 2}, mk, signalOn{"AAAUSDT": models.DirectionBullish}, n, nil)

	ctx, cancel := context.WithCancel(context.Background())
	o.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	res, err := o.ScanMarket(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, res.Batches)
	assert.Len(t, res.Signals, 1)
	assert.Equal(t, int32(2), mk.fetched.Load())
	assert.Empty(t, n.calls, "cancelled scan does not notify")
}

func TestScanMarket_NoSignalsNoNotify(t *testing.T) {
	mk := &fakeMarket{symbols: symbols("AAAUSDT")}
	n := &recordingNotifier{}
	o, _ := newTestOrchestrator(Config{BatchSize: 5}, mk, signalOn{}, n, nil)

	res, err := o.ScanMarket(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Signals)
	assert.Empty(t, n.calls)
}

func TestScanMarket_NotifyErrorDoesNotFailScan(t *testing.T) {
	mk := &fakeMarket{symbols: symbols("AAAUSDT")}
	n := &recordingNotifier{err: errors.New("webhook not configured")}
	o, _ := newTestOrchestrator(Config{BatchSize: 5}, mk, signalOn{"AAAUSDT": models.DirectionBullish}, n, nil)

	res, err := o.ScanMarket(context.Background())
	require.NoError(t, err)
	assert.Error(t, res.NotifyErr)
	assert.Len(t, res.Signals, 1)
}

func TestScanMarket_Serialized(t *testing.T) {
	mk := &fakeMarket{symbols: symbols("AAAUSDT"), hold: 20 * time.Millisecond}
	o, _ := newTestOrchestrator(Config{BatchSize: 5}, mk, signalOn{}, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.ScanMarket(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), mk.maxListing.Load())
}

func TestScanMarket_EmptyCatalog(t *testing.T) {
	mk := &fakeMarket{}
	n := &recordingNotifier{}
	o, sleeps := newTestOrchestrator(Config{BatchSize: 5}, mk, signalOn{}, n, nil)

	res, err := o.ScanMarket(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.TotalSymbols)
	assert.Zero(t, res.Batches)
	assert.Empty(t, *sleeps)
}
