package relaymq

import (
	"context"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/relaymq/relaymq/internal/log"
)

// RpcHandler processes a decoded request and returns the value to place
// in the response envelope's Data field.
type RpcHandler func(ctx context.Context, req *RequestEnvelope) (interface{}, error)

// RpcServerConfig configures an RpcServer.
type RpcServerConfig struct {
	Connection    *ConnectionManager
	Pool          *ChannelPool
	Queue         string
	Prefetch      int
	DrainTimeout  time.Duration
	Serializer    Serializer
	Logger        log.Logger
	Metrics       *MetricsCollector
}

func (c *RpcServerConfig) applyDefaults() {
	if c.Prefetch <= 0 {
		c.Prefetch = 10
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 5 * time.Second
	}
	if c.Serializer == nil {
		c.Serializer = JSONSerializer{}
	}
	if c.Logger == nil {
		c.Logger = log.Discard()
	}
}

// RpcServer consumes requests from a named queue, dispatches them by
// command to registered handlers through a shared middleware chain, and
// replies to each request's ReplyTo address, per spec.md §4.4. Grounded
// on the teacher's amqp/consumer.go RespondRPC flow.
type RpcServer struct {
	cfg RpcServerConfig
	log log.Logger

	mu       sync.RWMutex
	handlers map[string]RpcHandler
	mws      []Middleware

	ch       *amqp.Channel
	cancel   context.CancelFunc
	inFlight sync.WaitGroup
	running  bool
}

// NewRpcServer constructs a server bound to cfg.Queue. Call Use to
// install middleware and RegisterHandler before Start.
func NewRpcServer(cfg RpcServerConfig) *RpcServer {
	cfg.applyDefaults()
	return &RpcServer{
		cfg:      cfg,
		log:      cfg.Logger,
		handlers: make(map[string]RpcHandler),
	}
}

// Use appends middleware to the server's shared chain, applied in
// registration order ahead of the dispatched handler.
func (s *RpcServer) Use(mw Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mws = append(s.mws, mw)
}

// RegisterHandler binds command (case-insensitively, stored uppercased)
// to handler. Re-registering an existing command replaces it and logs a
// warning, per spec.md §4.4.
func (s *RpcServer) RegisterHandler(command string, handler RpcHandler) {
	key := strings.ToUpper(command)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.handlers[key]; exists {
		s.log.Warning("overwriting rpc handler", log.Fields{"command": key})
	}
	s.handlers[key] = handler
}

// UnregisterHandler removes a previously registered handler, if any.
func (s *RpcServer) UnregisterHandler(command string) {
	key := strings.ToUpper(command)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, key)
}

// Start begins consuming from the server's queue. It returns once the
// consumer is registered with the broker; delivery handling runs in the
// background.
func (s *RpcServer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	ch, err := s.cfg.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	if err := ch.Qos(s.cfg.Prefetch, 0, false); err != nil {
		s.cfg.Pool.Destroy(ch)
		return WrapError(CodeChannelError, err)
	}
	deliveries, err := ch.Consume(s.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		s.cfg.Pool.Destroy(ch)
		return WrapError(CodeChannelError, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.ch = ch
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	go s.consume(runCtx, deliveries)
	return nil
}

func (s *RpcServer) consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			s.inFlight.Add(1)
			go func(d amqp.Delivery) {
				defer s.inFlight.Done()
				s.handleDelivery(ctx, d)
			}(d)
		case <-ctx.Done():
			return
		}
	}
}

func (s *RpcServer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	var req RequestEnvelope
	if err := s.cfg.Serializer.Decode(d.Body, &req); err != nil {
		s.log.Error("failed to decode rpc request", log.Fields{"error": err.Error()})
		s.reply(d, &ResponseEnvelope{
			Timestamp: nowMillis(),
			Success:   false,
			Error:     &ResponseError{Code: CodeValidationError, Message: "malformed request: " + err.Error()},
		})
		d.Ack(false)
		return
	}

	resp := s.dispatch(ctx, &req)
	s.reply(d, resp)
	d.Ack(false)
}

func (s *RpcServer) dispatch(ctx context.Context, req *RequestEnvelope) *ResponseEnvelope {
	s.mu.RLock()
	handler, ok := s.handlers[strings.ToUpper(req.Command)]
	mws := s.mws
	s.mu.RUnlock()

	env := &ResponseEnvelope{ID: req.ID, Timestamp: nowMillis()}

	if req.Command == "" {
		env.Success = false
		env.Error = &ResponseError{Code: CodeValidationError, Message: "request is missing a command"}
		return env
	}

	if !ok {
		env.Success = false
		env.Error = &ResponseError{Code: CodeHandlerNotFound, Message: "no handler registered for command " + req.Command}
		return env
	}

	next := compose(mws, func(ctx context.Context, message interface{}) (interface{}, error) {
		if r, ok := message.(*RequestEnvelope); ok && r != nil {
			return handler(ctx, r)
		}
		return handler(ctx, req)
	})

	data, err := next(ctx, req)
	if err != nil {
		env.Success = false
		env.Error = &ResponseError{
			Code:    CodeOf(err),
			Message: err.Error(),
			Details: DetailsOf(err),
		}
		return env
	}
	env.Success = true
	env.Data = data
	return env
}

func (s *RpcServer) reply(d amqp.Delivery, resp *ResponseEnvelope) {
	if d.ReplyTo == "" {
		return
	}
	body, err := s.cfg.Serializer.Encode(resp)
	if err != nil {
		s.log.Error("failed to encode rpc response", log.Fields{"error": err.Error()})
		return
	}

	s.mu.RLock()
	ch := s.ch
	s.mu.RUnlock()

	err = ch.PublishWithContext(context.Background(), "", d.ReplyTo, false, false, amqp.Publishing{
		ContentType:   s.cfg.Serializer.ContentType(),
		CorrelationId: d.CorrelationId,
		Body:          body,
		Timestamp:     time.Now(),
	})
	if err != nil {
		s.log.Error("failed to publish rpc response", log.Fields{"error": err.Error()})
	}
}

// Stop cancels the consumer and waits up to cfg.DrainTimeout for
// in-flight handlers to finish before releasing the server's channel.
func (s *RpcServer) Stop() error {
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

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.cfg.DrainTimeout):
		s.log.Warning("rpc server stop: drain timeout exceeded", nil)
	}

	if ch != nil {
		s.cfg.Pool.Destroy(ch)
	}
	return nil
}
