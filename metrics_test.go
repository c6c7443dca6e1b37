package relaymq

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollectorCounter(t *testing.T) {
	m := NewMetricsCollector()
	require.NoError(t, m.IncCounter("requests_total", "total requests", map[string]string{"route": "/a"}))
	require.NoError(t, m.IncCounter("requests_total", "total requests", map[string]string{"route": "/a"}, 2))

	out, err := m.Expose()
	require.NoError(t, err)
	assert.Contains(t, out, "requests_total")
	assert.Contains(t, out, `route="/a"`)
}

func TestMetricsCollectorKindMismatch(t *testing.T) {
	m := NewMetricsCollector()
	require.NoError(t, m.IncCounter("x", "help", nil))
	err := m.SetGauge("x", "help", nil, 1)
	require.Error(t, err)
	assert.Equal(t, CodeConfigurationErr, CodeOf(err))
}

func TestMetricsCollectorHistogramDefaultBuckets(t *testing.T) {
	m := NewMetricsCollector()
	require.NoError(t, m.ObserveHistogram("latency_seconds", "latency", nil, 0.2))
	out, err := m.Expose()
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "latency_seconds_bucket"))
}

func TestMetricsCollectorReset(t *testing.T) {
	m := NewMetricsCollector()
	require.NoError(t, m.IncCounter("y", "help", nil))
	m.Reset()
	require.NoError(t, m.SetGauge("y", "help", nil, 1))
}

func TestGlobalMetricsSingleton(t *testing.T) {
	assert.Same(t, GlobalMetrics(), GlobalMetrics())
}
