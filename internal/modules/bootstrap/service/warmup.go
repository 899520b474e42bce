package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pinbar_scanner/internal/models"
)

type Catalog interface {
	ListActiveSymbols(ctx context.Context) ([]models.SymbolDescriptor, error)
}

// Warmuper тянет каталог при старте, не дожидаясь первого скана: после него
// срабатывают хуки каталога (готовность, подписки на kline).
type Warmuper struct {
	catalog Catalog
	retry   time.Duration
	log     *zap.Logger
}

func NewWarmuper(catalog Catalog, retry time.Duration, log *zap.Logger) *Warmuper {
	if retry <= 0 {
		retry = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Warmuper{catalog: catalog, retry: retry, log: log.Named("bootstrap")}
}

// Warmup повторяет запрос каталога до успеха или отмены ctx.
func (w *Warmuper) Warmup(ctx context.Context) (int, error) {
	for attempt := 1; ; attempt++ {
		syms, err := w.catalog.ListActiveSymbols(ctx)
		if err == nil {
			w.log.Info("warmup done", zap.Int("symbols", len(syms)), zap.Int("attempts", attempt))
			return len(syms), nil
		}
		w.log.Warn("warmup catalog failed", zap.Int("attempt", attempt), zap.Error(err))

		t := time.NewTimer(w.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return 0, ctx.Err()
		case <-t.C:
		}
	}
}
