package scanner

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"pinbar_scanner/internal/models"
	"pinbar_scanner/internal/modules/config"
	detector "pinbar_scanner/internal/modules/detector/service"
	market "pinbar_scanner/internal/modules/market/service"
	"pinbar_scanner/internal/modules/metrics"
	notify "pinbar_scanner/internal/modules/notify/service"
	"pinbar_scanner/internal/modules/scanner/service"
)

func NewOrchestrator(
	cfg *config.Config,
	interval models.Interval,
	gw *market.Gateway,
	det *detector.PinBar,
	n notify.Notifier,
	log *zap.Logger,
	m *metrics.Metrics,
) *service.Orchestrator {
	return service.NewOrchestrator(service.Config{
		Interval:   interval,
		Limit:      cfg.Scanner.Limit,
		BatchSize:  cfg.Scanner.BatchSize,
		BatchDelay: cfg.Scanner.BatchDelay,
	}, gw, det, n, log, m)
}

// Schedule запускает проход при старте (run_on_start) и далее каждые scan_every.
func Schedule(lc fx.Lifecycle, cfg *config.Config, o *service.Orchestrator, log *zap.Logger) {
	every := cfg.Scanner.ScanEvery
	if every <= 0 && !cfg.Scanner.RunOnStart {
		log.Info("periodic scan disabled, manual trigger only")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				service.RunSchedule(ctx, o, every, cfg.Scanner.RunOnStart, log)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

func Module() fx.Option {
	return fx.Module("scanner",
		fx.Provide(
			NewOrchestrator,
		),
		fx.Invoke(Schedule),
	)
}

