package tracing

import (
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestInitTracer_DisabledIsNoop(t *testing.T) {
	tracer, closeFn, err := InitTracer(Config{Enabled: false}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, opentracing.NoopTracer{}, tracer)
	assert.IsType(t, opentracing.NoopTracer{}, opentracing.GlobalTracer())
	closeFn()
}

func TestJaegerConfig(t *testing.T) {
	c := jaegerConfig(Config{ServiceName: "pinbar", Host: "jaeger", Port: 6831})
	assert.Equal(t, "pinbar", c.ServiceName)
	assert.Equal(t, "jaeger:6831", c.Reporter.LocalAgentHostPort)
	assert.Equal(t, "const", c.Sampler.Type)
	assert.Equal(t, 1.0, c.Sampler.Param)

	c = jaegerConfig(Config{Host: "127.0.0.1", Port: 6831, SampleRate: 0.25})
	assert.Equal(t, "scanner", c.ServiceName)
	assert.Equal(t, "probabilistic", c.Sampler.Type)
	assert.Equal(t, 0.25, c.Sampler.Param)
}

func TestInitTracer_EnabledInstallsGlobal(t *testing.T) {
	defer opentracing.SetGlobalTracer(opentracing.NoopTracer{})

	reg := prometheus.NewRegistry()
	tracer, closeFn, err := InitTracer(Config{
		Enabled:     true,
		ServiceName: "pinbar-test",
		Host:        "127.0.0.1",
		Port:        6831,
	}, zaptest.NewLogger(t), reg)
	require.NoError(t, err)
	defer closeFn()

	assert.NotEqual(t, opentracing.NoopTracer{}, tracer)
	assert.Equal(t, tracer, opentracing.GlobalTracer())

	span := tracer.StartSpan("scan")
	span.Finish()
}
