package main

import (
	"context"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"pinbar_scanner/internal/modules/api"
	"pinbar_scanner/internal/modules/bootstrap"
	"pinbar_scanner/internal/modules/config"
	"pinbar_scanner/internal/modules/detector"
	"pinbar_scanner/internal/modules/exchange"
	"pinbar_scanner/internal/modules/market"
	"pinbar_scanner/internal/modules/metrics"
	"pinbar_scanner/internal/modules/notify"
	"pinbar_scanner/internal/modules/scanner"
	"pinbar_scanner/internal/modules/stream"
	"pinbar_scanner/pkg/logger"
	"pinbar_scanner/pkg/tracing"
)

func newRing(cfg *config.Config) *logger.Ring {
	return logger.NewRing(cfg.Service.LogCapacity)
}

func newLogger(cfg *config.Config, ring *logger.Ring) (*zap.Logger, error) {
	l, err := logger.New(cfg.Service.Name, ring)
	if err != nil {
		return nil, err
	}
	l.Info("effective config\n" + cfg.Redacted())
	return l, nil
}

func initTracing(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, reg *prometheus.Registry) error {
	_, closeFn, err := tracing.InitTracer(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Service.Name,
		Host:        cfg.Tracing.Host,
		Port:        cfg.Tracing.Port,
		SampleRate:  cfg.Tracing.SampleRate,
	}, log, reg)
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closeFn()
			return nil
		},
	})
	return nil
}

func main() {
	app := fx.New(
		fx.Provide(
			newRing,
			newLogger,
		),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		config.Module(),
		metrics.Module(),
		fx.Invoke(initTracing),
		exchange.Module(),
		detector.Module(),
		stream.Module(),
		market.Module(),
		notify.Module(),
		scanner.Module(),
		bootstrap.Module(),
		api.Module(),
	)
	if err := app.Start(context.Background()); err != nil {
		log.Fatal(err)
	}
	logger.Info("scanner started")

	<-app.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Stop(ctx); err != nil {
		logger.Fatal("stop: %v", err)
	}
}
