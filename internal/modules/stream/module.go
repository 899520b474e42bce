package stream

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"pinbar_scanner/internal/modules/config"
	exchange "pinbar_scanner/internal/modules/exchange/service"
	"pinbar_scanner/internal/modules/metrics"
	"pinbar_scanner/internal/modules/stream/service"
)

func NewCache(cfg *config.Config) *service.Cache {
	return service.NewCache(cfg.Stream.CacheDepth)
}

func NewClient(cfg *config.Config, venue exchange.Venue, cache *service.Cache, log *zap.Logger, m *metrics.Metrics) *service.Client {
	return service.NewClient(service.Config{
		PingInterval:     cfg.Stream.PingInterval,
		ReconnectDelay:   cfg.Stream.ReconnectDelay,
		HandshakeTimeout: cfg.Stream.HandshakeTimeout,
	}, venue, cache, log, m)
}

// Run держит websocket в фоне на всё время жизни приложения.
func Run(lc fx.Lifecycle, cfg *config.Config, c *service.Client, log *zap.Logger) {
	if !cfg.Stream.Enabled {
		log.Info("stream disabled, candles come from REST only")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				c.Run(ctx)
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
	return fx.Module("stream",
		fx.Provide(
			NewCache,
			NewClient,
		),
		fx.Invoke(Run),
	)
}
