package infra

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "market"

// Metrics exports engine and gateway counters to prometheus. Each instance
// owns its registry, so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	instructions *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	sales        prometheus.Counter
	volume       prometheus.Counter
	fees         prometheus.Counter
	royalties    prometheus.Counter
	connections  prometheus.Gauge
	lastSeq      prometheus.Gauge

	// Mirrors for Snapshot.
	processed   atomic.Uint64
	rejected    atomic.Uint64
	settled     atomic.Uint64
	latencySum  atomic.Int64
	activeConns atomic.Int32
}

// NewMetrics creates and registers the metric set.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		instructions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "instructions_total",
				Help:      "Sequenced instructions by kind and status",
			},
			[]string{"kind", "status"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "rejections_total",
				Help:      "Rejected instructions by error category",
			},
			[]string{"category"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "instruction_duration_seconds",
				Help:      "Time to apply one instruction, including persistence",
				Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14),
			},
			[]string{"kind"},
		),
		sales: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sales_total",
			Help:      "Executed sales",
		}),
		volume: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "settled_volume_base_units",
			Help:      "Sum of settlement amounts",
		}),
		fees: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fees_base_units",
			Help:      "Sum of marketplace fees",
		}),
		royalties: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "royalties_base_units",
			Help:      "Sum of creator royalties paid",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "gateway_connections",
			Help:      "Open websocket connections",
		}),
		lastSeq: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_sequence",
			Help:      "Sequence number of the last applied instruction",
		}),
	}
	m.registry.MustRegister(
		m.instructions,
		m.rejections,
		m.latency,
		m.sales,
		m.volume,
		m.fees,
		m.royalties,
		m.connections,
		m.lastSeq,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordInstruction records one sequenced instruction. category is empty
// for applied instructions.
func (m *Metrics) RecordInstruction(kind, status, category string, seq uint64, d time.Duration) {
	if m == nil {
		return
	}
	m.instructions.WithLabelValues(kind, status).Inc()
	m.latency.WithLabelValues(kind).Observe(d.Seconds())
	m.lastSeq.Set(float64(seq))
	m.processed.Add(1)
	m.latencySum.Add(d.Nanoseconds())
	if category != "" {
		m.rejections.WithLabelValues(category).Inc()
		m.rejected.Add(1)
	}
}

// RecordSale records an executed sale.
func (m *Metrics) RecordSale(total, fee, royalty uint64) {
	if m == nil {
		return
	}
	m.sales.Inc()
	m.volume.Add(float64(total))
	m.fees.Add(float64(fee))
	m.royalties.Add(float64(royalty))
	m.settled.Add(1)
}

// IncrementConnections increments open connections by 1.
func (m *Metrics) IncrementConnections() {
	if m == nil {
		return
	}
	m.connections.Inc()
	m.activeConns.Add(1)
}

// DecrementConnections decrements open connections by 1.
func (m *Metrics) DecrementConnections() {
	if m == nil {
		return
	}
	m.connections.Dec()
	m.activeConns.Add(-1)
}

// MetricsSnapshot is a point-in-time view of the main counters.
type MetricsSnapshot struct {
	Instructions      uint64
	Rejected          uint64
	Sales             uint64
	AvgLatencyNs      int64
	ActiveConnections int32
	Timestamp         time.Time
}

// Snapshot returns the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avg int64
	if n := m.processed.Load(); n > 0 {
		avg = m.latencySum.Load() / int64(n)
	}
	return MetricsSnapshot{
		Instructions:      m.processed.Load(),
		Rejected:          m.rejected.Load(),
		Sales:             m.settled.Load(),
		AvgLatencyNs:      avg,
		ActiveConnections: m.activeConns.Load(),
		Timestamp:         time.Now(),
	}
}
