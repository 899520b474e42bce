package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Scanner — то, что умеет планировщик.
type Scanner interface {
	ScanMarket(ctx context.Context) (Result, error)
}

// RunSchedule блокируется до отмены ctx. every<=0 — только стартовый проход.
func RunSchedule(ctx context.Context, s Scanner, every time.Duration, onStart bool, log *zap.Logger) {
	run := func() {
		if _, err := s.ScanMarket(ctx); err != nil && ctx.Err() == nil {
			log.Error("scheduled scan failed", zap.Error(err))
		}
	}

	if onStart {
		run()
	}
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			run()
		}
	}
}
