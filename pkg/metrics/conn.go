package metrics

import "time"

// Lookup outcomes recorded by ObserveLookup.
const (
	ResultHit      = "hit"
	ResultCreated  = "created"
	ResultNotFound = "not_found"
	ResultDenied   = "denied"
	ResultError    = "error"
)

// ConnMetrics observes the connection manager.
//
// The interface is optional: pass nil to disable collection with zero
// overhead. Use the package-level helpers so call sites need no nil
// checks.
//
//	m := metrics.NewConnMetrics() // nil unless InitRegistry was called
//	mgr := smbconn.NewManager(tr, smbconn.WithMetrics(m))
type ConnMetrics interface {
	// ObserveLookup records one LookupOrCreate call and its outcome.
	ObserveLookup(result string, duration time.Duration)

	// ObjectCreated and ObjectDestroyed track the live object gauges and
	// lifetime counters, by level ("session", "share").
	ObjectCreated(level string)
	ObjectDestroyed(level string)

	// ObserveTransport records one call into the transport, by operation
	// ("open_session", "tree_connect", ...) and result ("ok", "error").
	ObserveTransport(op, result string, duration time.Duration)

	// RecordForget counts administrative forgets by level.
	RecordForget(level string)
}

// NewConnMetrics returns the Prometheus ConnMetrics, or nil when metrics
// are disabled or no implementation has been registered.
func NewConnMetrics() ConnMetrics {
	if !IsEnabled() || newConnMetrics == nil {
		return nil
	}
	return newConnMetrics()
}

// newConnMetrics is set by pkg/metrics/prometheus at init time, which
// keeps this package free of implementation imports.
var newConnMetrics func() ConnMetrics

// RegisterConnMetricsConstructor registers the ConnMetrics constructor.
func RegisterConnMetricsConstructor(constructor func() ConnMetrics) {
	newConnMetrics = constructor
}

// ObserveLookup records a lookup if m is non-nil.
func ObserveLookup(m ConnMetrics, result string, duration time.Duration) {
	if m != nil {
		m.ObserveLookup(result, duration)
	}
}

// ObjectCreated records a created object if m is non-nil.
func ObjectCreated(m ConnMetrics, level string) {
	if m != nil {
		m.ObjectCreated(level)
	}
}

// ObjectDestroyed records a freed object if m is non-nil.
func ObjectDestroyed(m ConnMetrics, level string) {
	if m != nil {
		m.ObjectDestroyed(level)
	}
}

// ObserveTransport records a transport call if m is non-nil. err decides
// the result label.
func ObserveTransport(m ConnMetrics, op string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ObserveTransport(op, result, duration)
}

// RecordForget records an administrative forget if m is non-nil.
func RecordForget(m ConnMetrics, level string) {
	if m != nil {
		m.RecordForget(level)
	}
}
