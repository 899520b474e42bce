package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"pinbar_scanner/internal/models"
	"pinbar_scanner/internal/modules/metrics"
)

// Market — каталог и свечи.
type Market interface {
	ListActiveSymbols(ctx context.Context) ([]models.SymbolDescriptor, error)
	GetCandles(ctx context.Context, symbol string, interval models.Interval, limit int) []models.Candle
}

type Detector interface {
	Evaluate(candles []models.Candle) (models.Signal, bool)
}

type Notifier interface {
	Notify(ctx context.Context, signals []models.Signal) error
}

type Config struct {
	Interval   models.Interval
	Limit      int
	BatchSize  int
	BatchDelay time.Duration
}

// Result — итог одного прохода.
type Result struct {
	RunID        uuid.UUID       `json:"runId"`
	Signals      []models.Signal `json:"signals"`
	TotalSymbols int             `json:"totalSymbols"`
	Batches      int             `json:"batches"`
	Failures     int             `json:"failures"`
	StartedAt    time.Time       `json:"startedAt"`
	FinishedAt   time.Time       `json:"finishedAt"`
	// NotifyErr не прерывает скан, только сообщается вызывающему.
	NotifyErr error `json:"-"`
}

// Orchestrator прогоняет весь рынок батчами фиксированного размера с паузой между ними.
type Orchestrator struct {
	cfg      Config
	market   Market
	detector Detector
	notifier Notifier
	log      *zap.Logger
	m        *metrics.Metrics

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	// один скан за раз, включая отправку уведомления
	scanMu sync.Mutex

	lastMu sync.RWMutex
	last   *Result
}

func NewOrchestrator(cfg Config, market Market, detector Detector, notifier Notifier, log *zap.Logger, m *metrics.Metrics) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 20
	}
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Orchestrator{
		cfg:      cfg,
		market:   market,
		detector: detector,
		notifier: notifier,
		log:      log.Named("scanner"),
		m:        m,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// LastRun — результат последнего завершённого прохода.
func (o *Orchestrator) LastRun() (Result, bool) {
	o.lastMu.RLock()
	defer o.lastMu.RUnlock()
	if o.last == nil {
		return Result{}, false
	}
	return *o.last, true
}

// ScanMarket: каталог → батчи (внутри батча параллельно) → один вызов Notify со всеми сигналами.
// Ошибка только при недоступном каталоге или отмене ctx; сбои отдельных символов
// уменьшают набор сигналов, но скан не прерывают.
func (o *Orchestrator) ScanMarket(ctx context.Context) (Result, error) {
	o.scanMu.Lock()
	defer o.scanMu.Unlock()

	began := time.Now()
	res := Result{RunID: uuid.New(), StartedAt: o.now()}
	log := o.log.With(zap.String("run_id", res.RunID.String()))

	span, ctx := opentracing.StartSpanFromContext(ctx, "scan")
	defer span.Finish()
	span.SetTag("run_id", res.RunID.String())
	span.SetTag("interval", o.cfg.Interval.String())

	defer func() {
		o.m.ScanDuration.Observe(time.Since(began).Seconds())
	}()

	symbols, err := o.market.ListActiveSymbols(ctx)
	if err != nil {
		ext.Error.Set(span, true)
		o.m.ScansTotal.WithLabelValues("catalog_error").Inc()
		log.Error("scan aborted: catalog unavailable", zap.Error(err))
		return res, errors.Wrap(err, "scan")
	}
	res.TotalSymbols = len(symbols)
	log.Info("scan started",
		zap.Int("symbols", len(symbols)),
		zap.Int("batchSize", o.cfg.BatchSize),
		zap.Duration("batchDelay", o.cfg.BatchDelay),
	)

	for start := 0; start < len(symbols); start += o.cfg.BatchSize {
		if start > 0 {
			if err := o.sleep(ctx, o.cfg.BatchDelay); err != nil {
				return o.cancelled(log, res, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return o.cancelled(log, res, err)
		}

		end := start + o.cfg.BatchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		signals, failed := o.runBatch(ctx, res.Batches, symbols[start:end])
		res.Signals = append(res.Signals, signals...)
		res.Failures += failed
		res.Batches++
		o.m.BatchesTotal.Inc()
	}

	for _, s := range res.Signals {
		o.m.SignalsTotal.WithLabelValues(string(s.Direction)).Inc()
	}

	if len(res.Signals) > 0 && o.notifier != nil {
		if err := o.notifier.Notify(ctx, res.Signals); err != nil {
			res.NotifyErr = err
			log.Error("notification failed", zap.Int("signals", len(res.Signals)), zap.Error(err))
		}
	}

	res.FinishedAt = o.now()
	o.m.ScansTotal.WithLabelValues("ok").Inc()
	span.SetTag("signals", len(res.Signals))
	log.Info("scan finished",
		zap.Int("symbols", res.TotalSymbols),
		zap.Int("batches", res.Batches),
		zap.Int("signals", len(res.Signals)),
		zap.Int("failures", res.Failures),
		zap.Duration("took", res.FinishedAt.Sub(res.StartedAt)),
	)
	o.remember(res)
	return res, nil
}

func (o *Orchestrator) cancelled(log *zap.Logger, res Result, err error) (Result, error) {
	res.FinishedAt = o.now()
	o.m.ScansTotal.WithLabelValues("cancelled").Inc()
	log.Warn("scan cancelled",
		zap.Int("batches", res.Batches),
		zap.Int("signals", len(res.Signals)),
		zap.Error(err),
	)
	return res, errors.Wrap(err, "scan cancelled")
}

func (o *Orchestrator) remember(res Result) {
	o.lastMu.Lock()
	o.last = &res
	o.lastMu.Unlock()
}

// runBatch ждёт все символы батча; порядок сигналов — порядок символов.
func (o *Orchestrator) runBatch(ctx context.Context, n int, batch []models.SymbolDescriptor) ([]models.Signal, int) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "scan.batch")
	defer span.Finish()
	span.SetTag("batch", n)
	span.SetTag("size", len(batch))

	found := make([]*models.Signal, len(batch))
	failed := make([]bool, len(batch))

	var wg sync.WaitGroup
	for i, d := range batch {
		wg.Add(1)
		go func(i int, d models.SymbolDescriptor) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					failed[i] = true
					o.log.Error("symbol evaluation panicked", zap.String("symbol", d.Symbol), zap.Any("panic", r))
				}
			}()

			candles := o.market.GetCandles(ctx, d.Symbol, o.cfg.Interval, o.cfg.Limit)
			if len(candles) == 0 {
				failed[i] = true
				return
			}
			sig, ok := o.detector.Evaluate(candles)
			if !ok {
				return
			}
			sig.Symbol = d.Symbol
			sig.Interval = o.cfg.Interval
			sig = sig.Enrich(d)
			found[i] = &sig
		}(i, d)
	}
	wg.Wait()

	var (
		out      []models.Signal
		failures int
	)
	for i := range batch {
		if failed[i] {
			failures++
			o.m.SymbolFailures.Inc()
		}
		if found[i] != nil {
			out = append(out, *found[i])
		}
	}
	return out, failures
}
