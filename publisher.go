package relaymq

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/relaymq/relaymq/internal/log"
)

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	Connection   *ConnectionManager
	Pool         *ChannelPool
	Exchange     string
	ExchangeType string // "topic", "direct", "fanout"
	Persistent   bool
	// Mandatory publishes with the AMQP mandatory flag set, so messages
	// the broker cannot route to any queue are returned to the publisher
	// instead of being silently dropped; see Publisher.NotifyReturn.
	Mandatory    bool
	Serializer   Serializer
	Logger       log.Logger
	Retry        RetryPolicy
	Metrics      *MetricsCollector
}

func (c *PublisherConfig) applyDefaults() {
	if c.ExchangeType == "" {
		c.ExchangeType = "topic"
	}
	if c.Serializer == nil {
		c.Serializer = JSONSerializer{}
	}
	if c.Logger == nil {
		c.Logger = log.Discard()
	}
}

// Publisher publishes events to a topic (or direct/fanout) exchange in
// confirm mode, per spec.md §4.5. Grounded on the teacher's
// amqp/publisher.go Push/UnsafePush confirm-wait loop, simplified since
// amqp091-go's PublishWithContext + NotifyPublish supersedes the
// teacher's manual resend-on-no-confirm retry.
type Publisher struct {
	cfg PublisherConfig
	log log.Logger

	mu               sync.Mutex
	mws              []Middleware
	declaredExchanges map[string]bool

	returns chan amqp.Return
}

// NewPublisher constructs a Publisher. The target exchange is declared
// lazily on first Publish call and redeclared once the channel it was
// declared on has closed (as it does when the connection drops).
func NewPublisher(cfg PublisherConfig) *Publisher {
	cfg.applyDefaults()
	return &Publisher{
		cfg:               cfg,
		log:               cfg.Logger,
		returns:           make(chan amqp.Return, 16),
		declaredExchanges: make(map[string]bool),
	}
}

// NotifyReturn reports messages the broker could not route to any
// queue, when the publisher was built with Mandatory: true. Grounded on
// the teacher's session.go messageReturns/notifyReturn handling.
func (p *Publisher) NotifyReturn() <-chan amqp.Return {
	return p.returns
}

// Use appends middleware run (in order) before every Publish call.
func (p *Publisher) Use(mw Middleware) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mws = append(p.mws, mw)
}

func (p *Publisher) ensureExchange(ch *amqp.Channel, exchange string) error {
	p.mu.Lock()
	declared := p.declaredExchanges[exchange]
	p.mu.Unlock()
	if declared {
		return nil
	}
	err := ch.ExchangeDeclare(exchange, p.cfg.ExchangeType, true, false, false, false, nil)
	if err != nil {
		return WrapError(CodeExchangeError, err)
	}
	p.mu.Lock()
	p.declaredExchanges[exchange] = true
	p.mu.Unlock()

	// Forget every declared exchange once this channel closes, so the
	// next Publish asserts them again.
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		<-closed
		p.mu.Lock()
		p.declaredExchanges = make(map[string]bool)
		p.mu.Unlock()
	}()
	return nil
}

// PublishOptions customizes a single Publish call. Exchange and
// RoutingKey override the publisher's configured exchange and the
// routingKey argument respectively, per spec.md §4.5; Middleware runs
// ahead of the publisher's globally registered middleware and may
// short-circuit the call for this publish only.
type PublishOptions struct {
	Exchange   string
	RoutingKey string
	Metadata   map[string]interface{}
	Headers    amqp.Table
	Middleware []Middleware
}

// Publish encodes event under routingKey and publishes it to the
// publisher's exchange, waiting for the broker's confirm before
// returning. opts.Exchange/opts.RoutingKey, when set, override the
// publisher's configured exchange and routingKey for this call only.
func (p *Publisher) Publish(ctx context.Context, routingKey string, event interface{}, opts ...PublishOptions) error {
	var opt PublishOptions
	if len(opts) > 0 {
		opt = opts[0]
	}

	p.mu.Lock()
	mws := append(append([]Middleware(nil), opt.Middleware...), p.mws...)
	p.mu.Unlock()

	handler := func(ctx context.Context, message interface{}) (interface{}, error) {
		return nil, p.doPublish(ctx, routingKey, message, opts...)
	}
	next := compose(mws, handler)
	_, err := next(ctx, event)
	return err
}

// resolveDestination applies opt's Exchange/RoutingKey overrides (when
// set) over the publisher's configured exchange and the routingKey
// argument, per spec.md §4.5.
func (p *Publisher) resolveDestination(routingKey string, opt PublishOptions) (exchange, key string) {
	exchange = p.cfg.Exchange
	if opt.Exchange != "" {
		exchange = opt.Exchange
	}
	key = routingKey
	if opt.RoutingKey != "" {
		key = opt.RoutingKey
	}
	return exchange, key
}

func (p *Publisher) doPublish(ctx context.Context, routingKey string, event interface{}, opts ...PublishOptions) error {
	var opt PublishOptions
	if len(opts) > 0 {
		opt = opts[0]
	}

	exchange, routingKey := p.resolveDestination(routingKey, opt)

	envelope := EventEnvelope{
		EventName: routingKey,
		Data:      event,
		Timestamp: nowMillis(),
		Metadata:  opt.Metadata,
	}
	body, err := p.cfg.Serializer.Encode(envelope)
	if err != nil {
		return WrapError(CodeValidationError, err)
	}

	publish := func() error {
		ch, err := p.cfg.Pool.Acquire(ctx)
		if err != nil {
			return err
		}
		if err := p.ensureExchange(ch, exchange); err != nil {
			p.cfg.Pool.Destroy(ch)
			return err
		}

		confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))
		if p.cfg.Mandatory {
			returns := ch.NotifyReturn(make(chan amqp.Return, 1))
			go p.forwardReturns(returns)
		}
		deliveryMode := amqp.Transient
		if p.cfg.Persistent {
			deliveryMode = amqp.Persistent
		}
		err = ch.PublishWithContext(ctx, exchange, routingKey, p.cfg.Mandatory, false, amqp.Publishing{
			ContentType:  p.cfg.Serializer.ContentType(),
			DeliveryMode: deliveryMode,
			Body:         body,
			Headers:      opt.Headers,
			Timestamp:    time.Now(),
		})
		if err != nil {
			p.cfg.Pool.Destroy(ch)
			return WrapError(CodePublishError, err)
		}

		select {
		case conf := <-confirms:
			p.cfg.Pool.Release(ch)
			if !conf.Ack {
				return NewError(CodePublishError, "broker did not confirm publish")
			}
			return nil
		case <-ctx.Done():
			p.cfg.Pool.Destroy(ch)
			return WrapError(CodeCancelled, ctx.Err())
		}
	}

	if p.cfg.Retry.Enabled {
		return p.cfg.Retry.Execute(ctx, publish)
	}
	return publish()
}

func (p *Publisher) forwardReturns(returns <-chan amqp.Return) {
	for r := range returns {
		select {
		case p.returns <- r:
		default:
			p.log.Warning("dropping undeliverable message notification, NotifyReturn channel full", log.Fields{"routingKey": r.RoutingKey})
		}
	}
}

// PublishToMany publishes event under eventName to each of exchanges in
// turn, stopping at the first error, per spec.md §4.5. opts[0] (if
// given) applies to every exchange, with its Exchange replaced by each
// one in turn; use opts[0].RoutingKey to override the routing key used
// on all of them.
func (p *Publisher) PublishToMany(ctx context.Context, exchanges []string, eventName string, event interface{}, opts ...PublishOptions) error {
	for _, exchange := range exchanges {
		callOpts := append([]PublishOptions(nil), opts...)
		if len(callOpts) == 0 {
			callOpts = []PublishOptions{{Exchange: exchange}}
		} else {
			callOpts[0].Exchange = exchange
		}
		if err := p.Publish(ctx, eventName, event, callOpts...); err != nil {
			return err
		}
	}
	return nil
}

// Dispatcher batches outbound events over a channel and reports
// publish errors asynchronously, for callers that want to fire events
// without blocking on broker confirms. Grounded on the teacher's
// amqp/dispatcher.go event loop.
type Dispatcher struct {
	pub    *Publisher
	events chan dispatchItem
	errs   chan error
	done   chan struct{}
}

type dispatchItem struct {
	routingKey string
	event      interface{}
	opts       []PublishOptions
}

// NewDispatcher starts a background goroutine draining a bounded queue
// of publish requests through pub.
func NewDispatcher(pub *Publisher, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	d := &Dispatcher{
		pub:    pub,
		events: make(chan dispatchItem, queueSize),
		errs:   make(chan error, queueSize),
		done:   make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	for item := range d.events {
		if err := d.pub.Publish(context.Background(), item.routingKey, item.event, item.opts...); err != nil {
			select {
			case d.errs <- err:
			default:
			}
		}
	}
	close(d.done)
}

// Publish enqueues an event for asynchronous publishing. It blocks only
// if the dispatcher's internal queue is full.
func (d *Dispatcher) Publish(routingKey string, event interface{}, opts ...PublishOptions) {
	d.events <- dispatchItem{routingKey: routingKey, event: event, opts: opts}
}

// Errors returns the channel on which asynchronous publish failures are
// reported.
func (d *Dispatcher) Errors() <-chan error {
	return d.errs
}

// Close stops accepting new events and waits for the queue to drain.
func (d *Dispatcher) Close() {
	close(d.events)
	<-d.done
}
