package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/smbconn/pkg/metrics"
)

func TestConnMetrics_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newConnMetrics(reg)

	m.ObserveLookup(metrics.ResultHit, time.Millisecond)
	m.ObserveLookup(metrics.ResultHit, 2*time.Millisecond)
	m.ObserveLookup(metrics.ResultCreated, 40*time.Millisecond)

	m.ObjectCreated("session")
	m.ObjectCreated("share")
	m.ObjectCreated("share")
	m.ObjectDestroyed("share")

	metrics.ObserveTransport(m, "tree_connect", errors.New("refused"), time.Millisecond)
	metrics.ObserveTransport(m, "tree_connect", nil, time.Millisecond)
	m.RecordForget("session")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.lookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookups.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.live.WithLabelValues("session")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.live.WithLabelValues("share")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.destroyed.WithLabelValues("share")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transportOps.WithLabelValues("tree_connect", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transportOps.WithLabelValues("tree_connect", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.forgets.WithLabelValues("session")))
}

func TestNewConnMetrics_FollowsRegistry(t *testing.T) {
	metrics.Reset()
	assert.Nil(t, metrics.NewConnMetrics())

	reg := metrics.InitRegistry()
	defer metrics.Reset()

	m := metrics.NewConnMetrics()
	require.NotNil(t, m, "init registers the Prometheus constructor")
	m.ObjectCreated("session")

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "smbconn_objects_live")
	assert.Contains(t, names, "smbconn_objects_created_total")
}

func TestHelpersAreNilSafe(t *testing.T) {
	require.NotPanics(t, func() {
		metrics.ObserveLookup(nil, metrics.ResultHit, time.Millisecond)
		metrics.ObjectCreated(nil, "session")
		metrics.ObjectDestroyed(nil, "session")
		metrics.ObserveTransport(nil, "open_session", nil, time.Millisecond)
		metrics.RecordForget(nil, "share")
	})
}
