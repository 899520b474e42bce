package tracing

import (
	"net"
	"strconv"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	jCfg "github.com/uber/jaeger-client-go/config"
	jZap "github.com/uber/jaeger-client-go/log/zap"
	"github.com/uber/jaeger-lib/metrics"
	jProm "github.com/uber/jaeger-lib/metrics/prometheus"
	"go.uber.org/zap"
)

type Config struct {
	Enabled     bool
	ServiceName string
	Host        string
	Port        int
	// SampleRate: 1 — каждый скан, меньше — вероятностная выборка.
	SampleRate float64
}

// jaegerConfig собирает конфигурацию клиента jaeger без сетевых действий.
func jaegerConfig(conf Config) *jCfg.Configuration {
	name := conf.ServiceName
	if name == "" {
		name = "scanner"
	}
	sampler := &jCfg.SamplerConfig{Type: "const", Param: 1}
	if conf.SampleRate > 0 && conf.SampleRate < 1 {
		sampler = &jCfg.SamplerConfig{Type: "probabilistic", Param: conf.SampleRate}
	}
	return &jCfg.Configuration{
		ServiceName: name,
		Sampler:     sampler,
		Reporter: &jCfg.ReporterConfig{
			LogSpans:           true,
			LocalAgentHostPort: net.JoinHostPort(conf.Host, strconv.Itoa(conf.Port)),
		},
	}
}

// InitTracer ставит глобальный jaeger-трейсер. Выключенный трейсинг — no-op трейсер.
// reg != nil — внутренние метрики клиента jaeger уходят в тот же registry.
func InitTracer(conf Config, log *zap.Logger, reg prometheus.Registerer) (opentracing.Tracer, func(), error) {
	if log == nil {
		log = zap.NewNop()
	}
	if !conf.Enabled {
		tracer := opentracing.NoopTracer{}
		opentracing.SetGlobalTracer(tracer)
		return tracer, func() {}, nil
	}

	var factory metrics.Factory = metrics.NullFactory
	if reg != nil {
		factory = jProm.New(jProm.WithRegisterer(reg))
	}

	tracer, closer, err := jaegerConfig(conf).NewTracer(
		jCfg.Metrics(factory),
		jCfg.Logger(jZap.NewLogger(log.Named("jaeger"))),
	)
	if err != nil {
		return nil, nil, errors.Wrap(err, "init jaeger tracer")
	}

	opentracing.SetGlobalTracer(tracer)
	return tracer, func() {
		if err := closer.Close(); err != nil {
			log.Error("close jaeger tracer", zap.Error(err))
		}
	}, nil
}
