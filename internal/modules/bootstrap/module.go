package bootstrap

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	bootstrap "pinbar_scanner/internal/modules/bootstrap/service"
	"pinbar_scanner/internal/modules/config"
	market "pinbar_scanner/internal/modules/market/service"
)

func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(
			func(gw *market.Gateway, cfg *config.Config, log *zap.Logger) *bootstrap.Warmuper {
				return bootstrap.NewWarmuper(gw, cfg.Stream.ReconnectDelay, log)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, wu *bootstrap.Warmuper) {
			// стартовый скан сам получит каталог
			if cfg.Scanner.RunOnStart {
				return
			}
			ctx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					go func() { _, _ = wu.Warmup(ctx) }()
					return nil
				},
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})
		}),
	)
}
