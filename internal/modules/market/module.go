package market

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"pinbar_scanner/internal/models"
	"pinbar_scanner/internal/modules/config"
	exchange "pinbar_scanner/internal/modules/exchange/service"
	"pinbar_scanner/internal/modules/market/service"
	"pinbar_scanner/internal/modules/metrics"
	stream "pinbar_scanner/internal/modules/stream/service"
)

// NewInterval — таймфрейм скана из scanner.interval.
func NewInterval(cfg *config.Config) (models.Interval, error) {
	return models.ParseInterval(cfg.Scanner.Interval)
}

func NewGateway(venue exchange.Venue, cache *stream.Cache, interval models.Interval, log *zap.Logger, m *metrics.Metrics) *service.Gateway {
	// свечи из push старше одного таймфрейма уже не отражают рынок
	return service.NewGateway(venue, cache, interval.Duration(), log, m)
}

func NewSubscriber(client *stream.Client, venue exchange.Venue, cache *stream.Cache, interval models.Interval, log *zap.Logger) *service.Subscriber {
	return service.NewSubscriber(client, venue, cache, interval, log)
}

// WireSubscriptions подписывает символы на kline-поток после первого успешного каталога.
func WireSubscriptions(cfg *config.Config, g *service.Gateway, s *service.Subscriber) {
	if !cfg.Stream.Enabled {
		return
	}
	g.OnCatalog(func(ds []models.SymbolDescriptor) {
		s.SubscribeAll(ds)
	})
}

func Module() fx.Option {
	return fx.Module("market",
		fx.Provide(
			NewInterval,
			NewGateway,
			NewSubscriber,
		),
		fx.Invoke(WireSubscriptions),
	)
}
