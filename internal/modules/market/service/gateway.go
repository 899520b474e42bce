package service

import (
	"context"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"pinbar_scanner/internal/models"
	"pinbar_scanner/internal/modules/metrics"
	stream "pinbar_scanner/internal/modules/stream/service"
)

// ErrCatalogUnavailable — ни одна категория каталога не ответила; скан прерывается.
var ErrCatalogUnavailable = errors.New("market catalog unavailable")

// RestSource — pull-сторона биржи.
type RestSource interface {
	Name() string
	Categories() []string
	Instruments(ctx context.Context, category string) ([]models.SymbolDescriptor, error)
	Klines(ctx context.Context, symbol string, interval models.Interval, limit int) ([]models.Candle, error)
}

// Gateway объединяет push-кэш и REST в одну операцию "дай последние свечи".
type Gateway struct {
	src   RestSource
	cache *stream.Cache
	log   *zap.Logger
	m     *metrics.Metrics
	now   func() time.Time

	// запись кэша старше этого считается протухшей
	maxAge time.Duration

	hooksMu   sync.Mutex
	onCatalog []func([]models.SymbolDescriptor)
}

func NewGateway(src RestSource, cache *stream.Cache, maxAge time.Duration, log *zap.Logger, m *metrics.Metrics) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Gateway{
		src:    src,
		cache:  cache,
		log:    log.Named("market"),
		m:      m,
		now:    time.Now,
		maxAge: maxAge,
	}
}

// OnCatalog — хук после каждого успешного получения каталога.
func (g *Gateway) OnCatalog(fn func([]models.SymbolDescriptor)) {
	g.hooksMu.Lock()
	g.onCatalog = append(g.onCatalog, fn)
	g.hooksMu.Unlock()
}

// ListActiveSymbols — активные инструменты всех категорий без дублей.
// Упавшая категория пропускается; если упали все — ErrCatalogUnavailable.
func (g *Gateway) ListActiveSymbols(ctx context.Context) ([]models.SymbolDescriptor, error) {
	cats := g.src.Categories()
	if len(cats) == 0 {
		return nil, errors.Wrap(ErrCatalogUnavailable, "no categories configured")
	}

	var (
		all     []models.SymbolDescriptor
		failed  int
		lastErr error
	)
	for _, cat := range cats {
		ds, err := g.src.Instruments(ctx, cat)
		if err != nil {
			failed++
			lastErr = err
			g.log.Warn("catalog category failed",
				zap.String("venue", g.src.Name()),
				zap.String("category", cat),
				zap.Error(err),
			)
			continue
		}
		all = append(all, ds...)
	}
	if failed == len(cats) {
		return nil, errors.Wrapf(ErrCatalogUnavailable, "%s: all %d categories failed: %v", g.src.Name(), failed, lastErr)
	}

	active := models.ActiveOnly(all)
	g.log.Info("catalog fetched",
		zap.String("venue", g.src.Name()),
		zap.Int("instruments", len(all)),
		zap.Int("active", len(active)),
		zap.Int("failedCategories", failed),
	)

	g.hooksMu.Lock()
	hooks := append([]func([]models.SymbolDescriptor){}, g.onCatalog...)
	g.hooksMu.Unlock()
	for _, fn := range hooks {
		fn(active)
	}
	return active, nil
}

// GetCandles — по возрастанию времени. Сначала кэш (если там есть limit свежих свечей),
// иначе REST с подсевом кэша. Любая ошибка превращается в пустой результат.
func (g *Gateway) GetCandles(ctx context.Context, symbol string, interval models.Interval, limit int) []models.Candle {
	span, ctx := opentracing.StartSpanFromContext(ctx, "market.get_candles")
	defer span.Finish()
	span.SetTag("symbol", symbol)

	if cached, ok := g.fromCache(symbol, limit); ok {
		span.SetTag("source", "cache")
		g.m.CandlesSource.WithLabelValues("cache").Inc()
		return cached
	}

	candles, err := g.src.Klines(ctx, symbol, interval, limit)
	if err != nil {
		ext.Error.Set(span, true)
		span.SetTag("source", "empty")
		g.m.CandlesSource.WithLabelValues("empty").Inc()
		g.log.Warn("candles fetch failed, skipping symbol",
			zap.String("symbol", symbol),
			zap.String("interval", interval.String()),
			zap.Error(err),
		)
		return nil
	}
	if len(candles) == 0 {
		span.SetTag("source", "empty")
		g.m.CandlesSource.WithLabelValues("empty").Inc()
		return nil
	}

	candles = models.Last(candles, limit)
	if g.cache != nil {
		g.cache.Seed(symbol, candles)
	}
	span.SetTag("source", "rest")
	g.m.CandlesSource.WithLabelValues("rest").Inc()
	return candles
}

func (g *Gateway) fromCache(symbol string, limit int) ([]models.Candle, bool) {
	if g.cache == nil {
		return nil, false
	}
	if g.maxAge > 0 {
		at, ok := g.cache.UpdatedAt(symbol)
		if !ok || g.now().Sub(at) > g.maxAge {
			return nil, false
		}
	}
	return g.cache.Last(symbol, limit)
}
