package relaymq

import (
	"time"

	"github.com/relaymq/relaymq/internal/log"
)

// ClientConfig aggregates the configuration surface shared by the
// higher-level constructors in this package (NewClient and friends),
// assembled through functional options in the style of the teacher's
// amqp package (WithLogger, WithPrefetch, WithTopology, ...).
type ClientConfig struct {
	ConnectionConfig ConnectionConfig
	PoolConfig       PoolConfig
	Serializer       Serializer
	Retry            RetryPolicy
	Metrics          *MetricsCollector
	MetricsEnabled   bool
	Topology         *Topology
	Name             string
}

// Option mutates a ClientConfig during construction.
type Option func(*ClientConfig)

func defaultClientConfig(url string) ClientConfig {
	return ClientConfig{
		ConnectionConfig: ConnectionConfig{URL: url, Reconnect: true},
		PoolConfig:       PoolConfig{Min: 1, Max: 10},
		Serializer:       JSONSerializer{},
		Retry:            DefaultRetryPolicy(),
	}
}

// WithLogger sets the logger used by the connection, pool, and every
// component built from this config.
func WithLogger(l log.Logger) Option {
	return func(c *ClientConfig) {
		c.ConnectionConfig.Logger = l
		c.PoolConfig.Logger = l
	}
}

// WithName sets ClientConfig.Name, a human-readable name for the client.
// The components built from the config do not read it.
func WithName(name string) Option {
	return func(c *ClientConfig) { c.Name = name }
}

// WithPrefetch sets the pool's maximum channel count, standing in for
// per-consumer QoS sizing at the pool level.
func WithPrefetch(n int) Option {
	return func(c *ClientConfig) { c.PoolConfig.Max = n }
}

// WithPoolSize sets the channel pool's minimum and maximum size.
func WithPoolSize(min, max int) Option {
	return func(c *ClientConfig) {
		c.PoolConfig.Min = min
		c.PoolConfig.Max = max
	}
}

// WithAcquireTimeout bounds how long ChannelPool.Acquire blocks before
// returning an ACQUIRE_TIMEOUT error.
func WithAcquireTimeout(d time.Duration) Option {
	return func(c *ClientConfig) { c.PoolConfig.AcquireTimeout = d }
}

// WithReconnect toggles automatic reconnection and sets its backoff
// parameters.
func WithReconnect(enabled bool, interval time.Duration, maxAttempts int) Option {
	return func(c *ClientConfig) {
		c.ConnectionConfig.Reconnect = enabled
		c.ConnectionConfig.ReconnectInterval = interval
		c.ConnectionConfig.MaxReconnectAttempts = maxAttempts
	}
}

// WithHeartbeat sets the AMQP connection heartbeat interval.
func WithHeartbeat(d time.Duration) Option {
	return func(c *ClientConfig) { c.ConnectionConfig.Heartbeat = d }
}

// WithSerializer overrides the default JSON serializer.
func WithSerializer(s Serializer) Option {
	return func(c *ClientConfig) { c.Serializer = s }
}

// WithRetry overrides the default (disabled) retry policy.
func WithRetry(rp RetryPolicy) Option {
	return func(c *ClientConfig) { c.Retry = rp }
}

// WithTopology attaches a declarative topology, asserted against the
// broker when Client.EnsureTopology is called.
func WithTopology(t Topology) Option {
	return func(c *ClientConfig) { c.Topology = &t }
}

// WithMetrics sets MetricsEnabled and the collector handed to components
// built from this config. Passing nil selects the process-wide
// GlobalMetrics instance. The components do not record metrics into the
// collector.
func WithMetrics(collector *MetricsCollector) Option {
	return func(c *ClientConfig) {
		c.MetricsEnabled = true
		if collector != nil {
			c.Metrics = collector
		} else {
			c.Metrics = GlobalMetrics()
		}
	}
}

// NewClientConfig builds a ClientConfig for url with defaults applied,
// then layers opts on top in order.
func NewClientConfig(url string, opts ...Option) ClientConfig {
	cfg := defaultClientConfig(url)
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.ConnectionConfig.applyDefaults()
	cfg.PoolConfig.applyDefaults()
	return cfg
}
