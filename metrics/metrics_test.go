package metrics_test

import (
	"testing"

	"github.com/delaneyj/statesync/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(metrics.WithRegistry(reg), metrics.WithNamespace("test"), metrics.WithSubsystem("core"))

	m.Notifications.WithLabelValues("value").Inc()
	m.Dangling.Add(2)
	m.Subscribers.Set(5)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("value")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Dangling))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["test_core_dangling_subscribers_total"])
	assert.True(t, names["test_core_registered_subscribers"])
}

func TestSetDefault(t *testing.T) {
	prev := metrics.Default()
	defer metrics.SetDefault(prev)

	m := metrics.New(metrics.WithConstLabels(prometheus.Labels{"app": "x"}))
	metrics.SetDefault(m)
	assert.Same(t, m, metrics.Default())

	metrics.SetDefault(nil)
	assert.Same(t, m, metrics.Default())
}
