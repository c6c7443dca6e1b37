package relaymq

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/relaymq/relaymq/internal/log"
)

// EventHandler processes a decoded event delivered to a Subscriber
// binding. Returning an error nacks the delivery without requeue, per
// spec.md §4.6.
type EventHandler func(ctx context.Context, env *EventEnvelope, routingKey string) error

// SubscriberConfig configures a Subscriber.
type SubscriberConfig struct {
	Connection   *ConnectionManager
	Pool         *ChannelPool
	Exchange     string
	ExchangeType string
	Queue        string // "" declares an exclusive auto-delete queue
	Prefetch     int
	Serializer   Serializer
	Logger       log.Logger
	Metrics      *MetricsCollector
}

func (c *SubscriberConfig) applyDefaults() {
	if c.ExchangeType == "" {
		c.ExchangeType = "topic"
	}
	if c.Prefetch <= 0 {
		c.Prefetch = 10
	}
	if c.Serializer == nil {
		c.Serializer = JSONSerializer{}
	}
	if c.Logger == nil {
		c.Logger = log.Discard()
	}
}

type binding struct {
	pattern string
	mws     []Middleware
	handler EventHandler
}

// Subscriber binds topic patterns to handlers on a single queue and
// dispatches each delivery to every binding whose pattern matches its
// routing key (AMQP wildcard semantics, checked locally via topicMatch).
// Grounded on the teacher's amqp/consumer.go Subscribe flow.
type Subscriber struct {
	cfg SubscriberConfig
	log log.Logger

	mu       sync.RWMutex
	bindings []*binding

	ch      *amqp.Channel
	queue   string
	cancel  context.CancelFunc
	running bool
}

// NewSubscriber constructs a Subscriber. Call On to register handlers
// before Start.
func NewSubscriber(cfg SubscriberConfig) *Subscriber {
	cfg.applyDefaults()
	return &Subscriber{cfg: cfg, log: cfg.Logger}
}

// On binds pattern (an AMQP topic pattern using "*" and "#") to handler,
// run after the supplied per-binding middleware.
func (s *Subscriber) On(pattern string, handler EventHandler, mws ...Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings = append(s.bindings, &binding{pattern: pattern, mws: mws, handler: handler})
}

// Start declares the exchange and queue, binds every registered pattern,
// and begins consuming.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	bindings := append([]*binding(nil), s.bindings...)
	s.mu.Unlock()

	ch, err := s.cfg.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(s.cfg.Exchange, s.cfg.ExchangeType, true, false, false, false, nil); err != nil {
		s.cfg.Pool.Destroy(ch)
		return WrapError(CodeExchangeError, err)
	}

	queueName := s.cfg.Queue
	exclusive := queueName == ""
	if exclusive {
		queueName = "relaymq." + uuid.NewString()
	}
	q, err := ch.QueueDeclare(queueName, queueName != "" && !exclusive, exclusive, exclusive, false, nil)
	if err != nil {
		s.cfg.Pool.Destroy(ch)
		return WrapError(CodeExchangeError, err)
	}

	for _, b := range bindings {
		if err := ch.QueueBind(q.Name, b.pattern, s.cfg.Exchange, false, nil); err != nil {
			s.cfg.Pool.Destroy(ch)
			return WrapError(CodeExchangeError, err)
		}
	}

	if err := ch.Qos(s.cfg.Prefetch, 0, false); err != nil {
		s.cfg.Pool.Destroy(ch)
		return WrapError(CodeChannelError, err)
	}

	deliveries, err := ch.Consume(q.Name, "", false, exclusive, false, false, nil)
	if err != nil {
		s.cfg.Pool.Destroy(ch)
		return WrapError(CodeChannelError, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.ch = ch
	s.queue = q.Name
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	go s.consume(runCtx, deliveries)
	return nil
}

func (s *Subscriber) consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			go s.handleDelivery(ctx, d)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Subscriber) handleDelivery(ctx context.Context, d amqp.Delivery) {
	s.mu.RLock()
	bindings := s.bindings
	s.mu.RUnlock()

	var matches []*binding
	for _, b := range bindings {
		if topicMatch(b.pattern, d.RoutingKey) {
			matches = append(matches, b)
		}
	}
	if len(matches) == 0 {
		s.log.Warning("no binding matched delivery", log.Fields{"routingKey": d.RoutingKey})
		d.Nack(false, false)
		return
	}

	var env EventEnvelope
	if err := s.cfg.Serializer.Decode(d.Body, &env); err != nil {
		s.log.Error("failed to decode event", log.Fields{"error": err.Error()})
		d.Nack(false, false)
		return
	}

	// Every matching binding runs, per spec.md §4.6; the delivery is
	// acked only once all of them have settled.
	var wg sync.WaitGroup
	errs := make([]error, len(matches))
	for i, m := range matches {
		wg.Add(1)
		go func(i int, m *binding) {
			defer wg.Done()
			next := compose(m.mws, func(ctx context.Context, message interface{}) (interface{}, error) {
				ev := &env
				if e, ok := message.(*EventEnvelope); ok && e != nil {
					ev = e
				}
				return nil, m.handler(ctx, ev, d.RoutingKey)
			})
			_, err := next(ctx, &env)
			errs[i] = err
		}(i, m)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			s.log.Error("event handler failed", log.Fields{"error": err.Error(), "routingKey": d.RoutingKey})
			d.Nack(false, false)
			return
		}
	}
	d.Ack(false)
}

// Stop cancels the consumer and releases the subscriber's channel.
func (s *Subscriber) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	ch := s.ch
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	time.Sleep(10 * time.Millisecond)
	if ch != nil {
		s.cfg.Pool.Destroy(ch)
	}
	return nil
}
