// Package prometheus implements the metric interfaces of pkg/metrics on
// the Prometheus client. Import it for its side effect of registering the
// constructors.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/smbconn/pkg/metrics"
)

func init() {
	metrics.RegisterConnMetricsConstructor(NewConnMetrics)
}

// connMetrics is the Prometheus implementation of metrics.ConnMetrics.
type connMetrics struct {
	lookups          *prometheus.CounterVec
	lookupDuration   *prometheus.HistogramVec
	live             *prometheus.GaugeVec
	created          *prometheus.CounterVec
	destroyed        *prometheus.CounterVec
	transportOps     *prometheus.CounterVec
	transportLatency *prometheus.HistogramVec
	forgets          *prometheus.CounterVec
}

// NewConnMetrics creates the connection manager metrics on the global
// registry. Returns nil if metrics are not enabled.
func NewConnMetrics() metrics.ConnMetrics {
	reg := metrics.GetRegistry()
	if reg == nil {
		return nil
	}
	return newConnMetrics(reg)
}

func newConnMetrics(reg prometheus.Registerer) *connMetrics {
	f := promauto.With(reg)
	return &connMetrics{
		lookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smbconn_lookups_total",
				Help: "LookupOrCreate calls by result",
			},
			[]string{"result"}, // hit, created, not_found, denied, error
		),
		lookupDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "smbconn_lookup_duration_milliseconds",
				Help: "LookupOrCreate latency in milliseconds, including any connect",
				Buckets: []float64{
					0.05, // in-memory hit
					0.5,
					5,
					50,  // LAN session setup
					250, // WAN session setup
					1000,
					5000, // dial retries
				},
			},
			[]string{"result"},
		),
		live: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "smbconn_objects_live",
				Help: "Objects currently allocated, by level",
			},
			[]string{"level"},
		),
		created: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smbconn_objects_created_total",
				Help: "Objects created, by level",
			},
			[]string{"level"},
		),
		destroyed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smbconn_objects_destroyed_total",
				Help: "Objects freed, by level",
			},
			[]string{"level"},
		),
		transportOps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smbconn_transport_operations_total",
				Help: "Transport calls by operation and result",
			},
			[]string{"operation", "result"},
		),
		transportLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "smbconn_transport_duration_milliseconds",
				Help:    "Transport call latency in milliseconds",
				Buckets: prometheus.ExponentialBuckets(0.5, 4, 8),
			},
			[]string{"operation"},
		),
		forgets: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smbconn_forgets_total",
				Help: "Administrative forgets, by level",
			},
			[]string{"level"},
		),
	}
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

func (m *connMetrics) ObserveLookup(result string, d time.Duration) {
	m.lookups.WithLabelValues(result).Inc()
	m.lookupDuration.WithLabelValues(result).Observe(ms(d))
}

func (m *connMetrics) ObjectCreated(level string) {
	m.created.WithLabelValues(level).Inc()
	m.live.WithLabelValues(level).Inc()
}

func (m *connMetrics) ObjectDestroyed(level string) {
	m.destroyed.WithLabelValues(level).Inc()
	m.live.WithLabelValues(level).Dec()
}

func (m *connMetrics) ObserveTransport(op, result string, d time.Duration) {
	m.transportOps.WithLabelValues(op, result).Inc()
	m.transportLatency.WithLabelValues(op).Observe(ms(d))
}

func (m *connMetrics) RecordForget(level string) {
	m.forgets.WithLabelValues(level).Inc()
}
