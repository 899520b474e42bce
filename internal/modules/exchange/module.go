package exchange

import (
	"pinbar_scanner/internal/modules/config"
	"pinbar_scanner/internal/modules/exchange/service"

	"go.uber.org/fx"
)

// NewVenue выбирает реализацию площадки по exchange.venue.
func NewVenue(cfg *config.Config) service.Venue {
	if cfg.Exchange.Venue == config.VenueOKX {
		c := cfg.Exchange.OKX
		return service.NewOKX(service.OKXConfig{
			RestURL:    c.RestURL,
			StreamURL:  c.StreamURL,
			InstTypes:  c.InstTypes,
			APIKey:     c.APIKey,
			APISecret:  c.APISecret,
			Passphrase: c.Passphrase,
			Timeout:    cfg.Exchange.HTTPTimeout,
		})
	}
	c := cfg.Exchange.Bybit
	return service.NewBybit(service.BybitConfig{
		RestURL:    c.RestURL,
		StreamURL:  c.StreamURL,
		Categories: c.Categories,
		APIKey:     c.APIKey,
		APISecret:  c.APISecret,
		Timeout:    cfg.Exchange.HTTPTimeout,
	})
}

func Module() fx.Option {
	return fx.Module("exchange",
		fx.Provide(
			NewVenue,
		),
	)
}
