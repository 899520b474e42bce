package detector

import (
	"pinbar_scanner/internal/modules/config"
	"pinbar_scanner/internal/modules/detector/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("detector",
		fx.Provide(
			func(cfg *config.Config) *service.PinBar {
				return service.NewPinBar(service.Config{
					Lookback:        cfg.Detector.Lookback,
					WickRatio:       cfg.Detector.WickRatio,
					VolumeThreshold: cfg.Detector.VolumeThreshold,
					BodyEpsilon:     cfg.Detector.BodyEpsilon,
				})
			},
		),
	)
}
