package metrics

import (
	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(
			NewRegistry,
			New,
		),
	)
}
