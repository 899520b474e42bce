package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"pinbar_scanner/internal/models"
	"pinbar_scanner/internal/modules/api/service"
	"pinbar_scanner/internal/modules/config"
	market "pinbar_scanner/internal/modules/market/service"
	scanner "pinbar_scanner/internal/modules/scanner/service"
	stream "pinbar_scanner/internal/modules/stream/service"
	"pinbar_scanner/pkg/logger"
)

func NewHandlers(state *service.State, o *scanner.Orchestrator, ring *logger.Ring, reg *prometheus.Registry, log *zap.Logger) *service.Handlers {
	return service.NewHandlers(state, o, ring, reg, log)
}

// WireState — готовность по первому каталогу, флаг ws по состоянию клиента.
func WireState(state *service.State, gw *market.Gateway, client *stream.Client) {
	gw.OnCatalog(func([]models.SymbolDescriptor) { state.SetReady(true) })
	client.OnStateChange(func(s stream.State) { state.SetWSConnected(s == stream.StateConnected) })
}

func RunHTTP(lc fx.Lifecycle, cfg *config.Config, h *service.Handlers, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.Service.HTTPAddr,
		Handler:           h.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Service.HTTPAddr)
			if err != nil {
				return err
			}
			log.Info("http listening", zap.String("addr", ln.Addr().String()))
			go func() { _ = srv.Serve(ln) }()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("api",
		fx.Provide(
			service.NewState,
			NewHandlers,
		),
		fx.Invoke(WireState, RunHTTP),
	)
}
