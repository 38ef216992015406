package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the hub's Prometheus collectors. Each Server registers its
// own set on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	ConnectionsActive prometheus.Gauge
	RequestsTotal     *prometheus.CounterVec
	SnapshotsPushed   prometheus.Counter
	RateLimitedTotal  prometheus.Counter
	RequestDuration   *prometheus.HistogramVec
}

// NewMetrics creates and registers the hub collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shiftplan_hub_connections_active",
			Help: "Number of open client connections",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shiftplan_hub_requests_total",
			Help: "Client requests by operation and outcome",
		}, []string{"op", "result"}),
		SnapshotsPushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shiftplan_hub_snapshots_pushed_total",
			Help: "Document snapshots pushed to subscribers",
		}),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shiftplan_hub_rate_limited_total",
			Help: "Writes rejected by the per-connection rate limiter",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shiftplan_hub_request_duration_seconds",
			Help:    "Backend latency of client requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"op"}),
	}

	m.Registry.MustRegister(
		m.ConnectionsActive,
		m.RequestsTotal,
		m.SnapshotsPushed,
		m.RateLimitedTotal,
		m.RequestDuration,
		collectors.NewGoCollector(),
	)

	return m
}
