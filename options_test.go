package relaymq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewClientConfigDefaults(t *testing.T) {
	cfg := NewClientConfig("amqp://localhost")
	assert.True(t, cfg.ConnectionConfig.Reconnect)
	assert.Equal(t, 1, cfg.PoolConfig.Min)
	assert.Equal(t, 10, cfg.PoolConfig.Max)
	assert.IsType(t, JSONSerializer{}, cfg.Serializer)
	assert.False(t, cfg.MetricsEnabled)
}

func TestNewClientConfigWithOptions(t *testing.T) {
	cfg := NewClientConfig("amqp://localhost",
		WithPoolSize(2, 20),
		WithAcquireTimeout(3*time.Second),
		WithReconnect(false, time.Second, 5),
		WithMetrics(nil),
		WithName("worker-1"),
	)
	assert.Equal(t, 2, cfg.PoolConfig.Min)
	assert.Equal(t, 20, cfg.PoolConfig.Max)
	assert.Equal(t, 3*time.Second, cfg.PoolConfig.AcquireTimeout)
	assert.False(t, cfg.ConnectionConfig.Reconnect)
	assert.Equal(t, 5, cfg.ConnectionConfig.MaxReconnectAttempts)
	assert.True(t, cfg.MetricsEnabled)
	assert.Same(t, GlobalMetrics(), cfg.Metrics)
	assert.Equal(t, "worker-1", cfg.Name)
}

func TestWithTopology(t *testing.T) {
	topo := Topology{Exchanges: []Exchange{{Name: "events", Kind: "topic", Durable: true}}}
	cfg := NewClientConfig("amqp://localhost", WithTopology(topo))
	if assert.NotNil(t, cfg.Topology) {
		assert.Equal(t, "events", cfg.Topology.Exchanges[0].Name)
	}
}
