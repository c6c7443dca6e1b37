package relaymq

import (
	"context"
)

// Client bundles a ConnectionManager and ChannelPool and is the usual
// entry point for building publishers, subscribers, and RPC clients/
// servers against a single broker URL.
type Client struct {
	cfg  ClientConfig
	conn *ConnectionManager
	pool *ChannelPool
}

// NewClient dials url (lazily, on first use) and prepares a channel pool
// shared by every component built from the returned Client.
func NewClient(url string, opts ...Option) *Client {
	cfg := NewClientConfig(url, opts...)
	conn := GetConnectionManager(cfg.ConnectionConfig)
	pool := NewChannelPool(conn, cfg.PoolConfig)
	return &Client{cfg: cfg, conn: conn, pool: pool}
}

// Connection returns the client's underlying ConnectionManager.
func (c *Client) Connection() *ConnectionManager { return c.conn }

// Pool returns the client's underlying ChannelPool.
func (c *Client) Pool() *ChannelPool { return c.pool }

// EnsureTopology asserts the client's configured declarative topology,
// if any, using a channel borrowed from the pool.
func (c *Client) EnsureTopology(ctx context.Context) error {
	if c.cfg.Topology == nil {
		return nil
	}
	ch, err := c.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer c.pool.Release(ch)
	return c.cfg.Topology.Declare(ch)
}

// NewPublisher builds a Publisher bound to exchange, inheriting the
// client's pool, serializer, retry policy, and metrics settings.
func (c *Client) NewPublisher(exchange, exchangeType string, persistent bool) *Publisher {
	var metrics *MetricsCollector
	if c.cfg.MetricsEnabled {
		metrics = c.cfg.Metrics
	}
	return NewPublisher(PublisherConfig{
		Connection:   c.conn,
		Pool:         c.pool,
		Exchange:     exchange,
		ExchangeType: exchangeType,
		Persistent:   persistent,
		Serializer:   c.cfg.Serializer,
		Logger:       c.cfg.ConnectionConfig.Logger,
		Retry:        c.cfg.Retry,
		Metrics:      metrics,
	})
}

// NewSubscriber builds a Subscriber bound to exchange/queue, inheriting
// the client's pool, serializer, and metrics settings.
func (c *Client) NewSubscriber(exchange, exchangeType, queue string) *Subscriber {
	var metrics *MetricsCollector
	if c.cfg.MetricsEnabled {
		metrics = c.cfg.Metrics
	}
	return NewSubscriber(SubscriberConfig{
		Connection:   c.conn,
		Pool:         c.pool,
		Exchange:     exchange,
		ExchangeType: exchangeType,
		Queue:        queue,
		Serializer:   c.cfg.Serializer,
		Logger:       c.cfg.ConnectionConfig.Logger,
		Metrics:      metrics,
	})
}

// NewRpcClient builds an RpcClient publishing requests to exchange
// (empty string for the default exchange).
func (c *Client) NewRpcClient(exchange string) (*RpcClient, error) {
	return NewRpcClient(RpcClientConfig{
		Connection: c.conn,
		Pool:       c.pool,
		Exchange:   exchange,
		Serializer: c.cfg.Serializer,
		Logger:     c.cfg.ConnectionConfig.Logger,
		Retry:      c.cfg.Retry,
	})
}

// NewRpcServer builds an RpcServer consuming requests from queue.
func (c *Client) NewRpcServer(queue string) *RpcServer {
	var metrics *MetricsCollector
	if c.cfg.MetricsEnabled {
		metrics = c.cfg.Metrics
	}
	return NewRpcServer(RpcServerConfig{
		Connection: c.conn,
		Pool:       c.pool,
		Queue:      queue,
		Serializer: c.cfg.Serializer,
		Logger:     c.cfg.ConnectionConfig.Logger,
		Metrics:    metrics,
	})
}

// Close drains the pool and closes the underlying connection.
func (c *Client) Close() error {
	c.pool.Drain()
	return c.conn.Close()
}
