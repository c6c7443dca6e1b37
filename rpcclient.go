package relaymq

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/relaymq/relaymq/internal/log"
)

// directReplyTo is the broker's built-in pseudo-queue for server-scoped
// RPC replies; publishing with this as a request's ReplyTo and consuming
// from it avoids declaring a dedicated queue per client, per spec.md
// §4.3. The teacher's amqp/rpc.go instead declares an exclusive
// auto-delete queue per session — we keep its correlation-id/response
// table shape but replace that mechanism with the broker-native one.
const directReplyTo = "amq.rabbitmq.reply-to"

// RpcClientConfig configures an RpcClient.
type RpcClientConfig struct {
	Connection   *ConnectionManager
	Pool         *ChannelPool
	Exchange     string // "" for the default exchange
	DefaultTimeout time.Duration
	Serializer   Serializer
	Logger       log.Logger
	Retry        RetryPolicy
}

func (c *RpcClientConfig) applyDefaults() {
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 10 * time.Second
	}
	if c.Serializer == nil {
		c.Serializer = JSONSerializer{}
	}
	if c.Logger == nil {
		c.Logger = log.Discard()
	}
}

// RpcClient issues request/response calls over AMQP using the broker's
// direct reply-to mechanism. Grounded on the request/response bookkeeping
// of the teacher's amqp/rpc.go (a pending-correlation map drained by a
// single response consumer goroutine).
type RpcClient struct {
	cfg RpcClientConfig
	log log.Logger

	mu      sync.Mutex
	ch      *amqp.Channel
	pending map[string]chan *ResponseEnvelope
	closed  bool
}

// NewRpcClient constructs a client and starts its reply consumer.
func NewRpcClient(cfg RpcClientConfig) (*RpcClient, error) {
	cfg.applyDefaults()
	c := &RpcClient{
		cfg:     cfg,
		log:     cfg.Logger,
		pending: make(map[string]chan *ResponseEnvelope),
	}
	if err := c.setup(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *RpcClient) setup() error {
	ch, err := c.cfg.Pool.Acquire(context.Background())
	if err != nil {
		return err
	}
	deliveries, err := ch.Consume(directReplyTo, "", true, true, false, false, nil)
	if err != nil {
		c.cfg.Pool.Destroy(ch)
		return WrapError(CodeChannelError, err)
	}
	c.ch = ch
	go c.handleResponses(deliveries)
	return nil
}

func (c *RpcClient) handleResponses(deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		var env ResponseEnvelope
		if err := c.cfg.Serializer.Decode(d.Body, &env); err != nil {
			c.log.Error("failed to decode rpc response", log.Fields{"error": err.Error()})
			continue
		}
		c.mu.Lock()
		waiter, ok := c.pending[d.CorrelationId]
		if ok {
			delete(c.pending, d.CorrelationId)
		}
		c.mu.Unlock()
		if ok {
			waiter <- &env
		}
	}
}

// SendOptions customizes a single Send call.
type SendOptions struct {
	Timeout  time.Duration
	Metadata map[string]interface{}
}

// Send issues a request for command carrying data, blocking until a
// response arrives, the context is cancelled, or the timeout elapses.
// command is uppercased before it is put on the wire, per envelope.go,
// and the request is published to cfg.Exchange with that uppercased
// command as its routing key; on the default exchange it therefore
// reaches the queue named after the command. There is no separate
// server queue setting.
// A reply with Success == false is returned as a nil envelope and an
// *Error carrying the reply's error code, message and details.
func (c *RpcClient) Send(ctx context.Context, command string, data interface{}, opts ...SendOptions) (*ResponseEnvelope, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, NewError(CodeClientClosing, "rpc client is closed")
	}
	c.mu.Unlock()

	if command == "" {
		return nil, NewError(CodeValidationError, "command must not be empty")
	}
	command = strings.ToUpper(command)

	var opt SendOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	timeout := opt.Timeout
	if timeout <= 0 {
		timeout = c.cfg.DefaultTimeout
	}

	req := RequestEnvelope{
		ID:        uuid.NewString(),
		Command:   command,
		Timestamp: nowMillis(),
		Data:      data,
		Metadata:  opt.Metadata,
	}
	body, err := c.cfg.Serializer.Encode(req)
	if err != nil {
		return nil, WrapError(CodeValidationError, err)
	}

	waiter := make(chan *ResponseEnvelope, 1)
	c.mu.Lock()
	c.pending[req.ID] = waiter
	c.mu.Unlock()

	cleanup := func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}

	err = c.ch.PublishWithContext(ctx, c.cfg.Exchange, command, false, false, amqp.Publishing{
		ContentType:   c.cfg.Serializer.ContentType(),
		CorrelationId: req.ID,
		ReplyTo:       directReplyTo,
		Body:          body,
		Timestamp:     time.Now(),
	})
	if err != nil {
		cleanup()
		return nil, WrapError(CodePublishError, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-waiter:
		if err := responseErr(resp); err != nil {
			return nil, err
		}
		return resp, nil
	case <-timer.C:
		cleanup()
		return nil, NewError(CodeTimeoutError, "rpc call timed out").WithDetails(command)
	case <-ctx.Done():
		cleanup()
		return nil, WrapError(CodeCancelled, ctx.Err())
	}
}

// responseErr translates a reply's Success/Error fields into an error,
// returning nil for a successful reply.
func responseErr(resp *ResponseEnvelope) error {
	if resp.Success {
		return nil
	}
	if resp.Error != nil {
		return NewError(resp.Error.Code, resp.Error.Message).WithDetails(resp.Error.Details)
	}
	return NewError(CodeHandlerError, "rpc call failed")
}

// Close stops the reply consumer and releases the client's channel.
// Idempotent.
func (c *RpcClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ch := c.ch
	for id, waiter := range c.pending {
		waiter <- &ResponseEnvelope{ID: id, Success: false, Error: &ResponseError{Code: CodeClientClosing, Message: "rpc client is closing"}}
	}
	c.pending = make(map[string]chan *ResponseEnvelope)
	c.mu.Unlock()

	if ch != nil {
		c.cfg.Pool.Destroy(ch)
	}
	return nil
}
