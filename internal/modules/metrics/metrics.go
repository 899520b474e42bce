package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics — все коллекторы сканера. Регистрируются на собственном реестре, не на глобальном.
type Metrics struct {
	Registry *prometheus.Registry

	ScansTotal     *prometheus.CounterVec // result=ok|catalog_error|cancelled
	BatchesTotal   prometheus.Counter
	SignalsTotal   *prometheus.CounterVec // direction
	SymbolFailures prometheus.Counter
	ScanDuration   prometheus.Histogram

	CandlesSource *prometheus.CounterVec // source=cache|rest|empty

	StreamReconnects prometheus.Counter
	StreamState      prometheus.Gauge // 0=disconnected, 1=connecting, 2=connected
	StreamMessages   *prometheus.CounterVec

	NotifyDeliveries *prometheus.CounterVec // sink, result
}

// NewRegistry — реестр с go- и process-коллекторами.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// New создаёт коллекторы и регистрирует их в reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Registry: reg,

		ScansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_scans_total",
			Help: "Completed scan passes by result",
		}, []string{"result"}),
		BatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_batches_total",
			Help: "Symbol batches processed",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_signals_total",
			Help: "Signals emitted by direction",
		}, []string{"direction"}),
		SymbolFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_symbol_failures_total",
			Help: "Symbols whose evaluation panicked or had no data",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scanner_scan_duration_seconds",
			Help:    "Wall time of one scan pass",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),

		CandlesSource: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "market_candles_source_total",
			Help: "Candle reads by source",
		}, []string{"source"}),

		StreamReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stream_reconnects_total",
			Help: "Streaming reconnection attempts",
		}),
		StreamState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stream_state",
			Help: "Streaming client state (0=disconnected, 1=connecting, 2=connected)",
		}),
		StreamMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stream_messages_total",
			Help: "Inbound stream frames, routed to a handler or not",
		}, []string{"routed"}),

		NotifyDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notify_deliveries_total",
			Help: "Notification deliveries by sink and result",
		}, []string{"sink", "result"}),
	}

	reg.MustRegister(
		m.ScansTotal,
		m.BatchesTotal,
		m.SignalsTotal,
		m.SymbolFailures,
		m.ScanDuration,
		m.CandlesSource,
		m.StreamReconnects,
		m.StreamState,
		m.StreamMessages,
		m.NotifyDeliveries,
	)
	return m
}

// NewNop — коллекторы на пустом реестре, для тестов и утилит.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
