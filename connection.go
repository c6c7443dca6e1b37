package relaymq

import (
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/relaymq/relaymq/internal/log"
)

// ConnectionConfig describes the broker coordinates and reconnection
// behavior a ConnectionManager should use, per spec.md §3/§6.
type ConnectionConfig struct {
	URL                  string
	Reconnect            bool
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int // 0 = infinite
	Heartbeat            time.Duration
	Logger               log.Logger
}

func (c *ConnectionConfig) applyDefaults() {
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = time.Second
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Discard()
	}
}

// ConnectionStatus is a snapshot of a ConnectionManager's current state.
type ConnectionStatus struct {
	Connected   bool
	ConnectedAt time.Time
	URL         string
}

// ConnectionEventKind identifies the kind of event delivered on a
// ConnectionManager's event sink.
type ConnectionEventKind string

const (
	EventConnected    ConnectionEventKind = "connected"
	EventDisconnected ConnectionEventKind = "disconnected"
	EventError        ConnectionEventKind = "error"
	EventReconnecting ConnectionEventKind = "reconnecting"
)

// ConnectionEvent is delivered to subscribers registered via
// ConnectionManager.Events.
type ConnectionEvent struct {
	Kind    ConnectionEventKind
	Attempt int
	Err     error
}

// ConnectionManager owns a single broker connection, survives network
// failures through capped exponential backoff, and tracks the number of
// channels opened against it, per spec.md §4.1. Instances are singletons
// keyed by URL; use GetConnectionManager to obtain one.
type ConnectionManager struct {
	cfg  ConnectionConfig
	log  log.Logger
	mu   sync.RWMutex
	conn *amqp.Connection
	status ConnectionStatus

	channelCount int64

	opening    bool
	openWaiter chan struct{}

	closed bool
	halt   chan struct{}

	subMu       sync.Mutex
	subscribers []chan ConnectionEvent
}

var (
	managersMu sync.Mutex
	managers   = map[string]*ConnectionManager{}
)

// GetConnectionManager returns the process-wide ConnectionManager for
// cfg.URL, creating it on first call. Subsequent calls with the same URL
// return the same instance regardless of the rest of cfg, matching
// spec.md's "singleton per URL" invariant.
func GetConnectionManager(cfg ConnectionConfig) *ConnectionManager {
	managersMu.Lock()
	defer managersMu.Unlock()
	if cm, ok := managers[cfg.URL]; ok {
		return cm
	}
	cfg.applyDefaults()
	cm := &ConnectionManager{
		cfg:  cfg,
		log:  cfg.Logger,
		halt: make(chan struct{}),
		status: ConnectionStatus{
			URL: cfg.URL,
		},
	}
	managers[cfg.URL] = cm
	return cm
}

// resetConnectionManagers clears the singleton registry; test-only.
func resetConnectionManagers() {
	managersMu.Lock()
	defer managersMu.Unlock()
	managers = map[string]*ConnectionManager{}
}

// Events registers a new subscriber for connection lifecycle
// notifications. The returned channel is buffered and is never closed by
// the manager, including by Close.
func (cm *ConnectionManager) Events() <-chan ConnectionEvent {
	ch := make(chan ConnectionEvent, 16)
	cm.subMu.Lock()
	cm.subscribers = append(cm.subscribers, ch)
	cm.subMu.Unlock()
	return ch
}

func (cm *ConnectionManager) emit(ev ConnectionEvent) {
	cm.subMu.Lock()
	defer cm.subMu.Unlock()
	for _, ch := range cm.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// IsConnected reports whether the manager currently holds a live
// connection.
func (cm *ConnectionManager) IsConnected() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.status.Connected
}

// GetConnectionStatus returns a snapshot of the manager's current state.
func (cm *ConnectionManager) GetConnectionStatus() ConnectionStatus {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.status
}

// GetChannelCount returns the number of channels currently tracked as
// open against this connection.
func (cm *ConnectionManager) GetChannelCount() int {
	return int(atomic.LoadInt64(&cm.channelCount))
}

// NotifyChannelOpened is called by a ChannelPool when it creates a new
// channel, so the manager can report accurate channel counts without
// owning pool lifecycle — the two communicate through this narrow
// interface rather than sharing ownership, per spec.md §9.
func (cm *ConnectionManager) NotifyChannelOpened() {
	atomic.AddInt64(&cm.channelCount, 1)
}

// NotifyChannelClosed is the counterpart to NotifyChannelOpened.
func (cm *ConnectionManager) NotifyChannelClosed() {
	atomic.AddInt64(&cm.channelCount, -1)
}

// GetConnection returns the current live connection, dialing one if
// necessary. Concurrent callers observe a single in-flight dial attempt.
func (cm *ConnectionManager) GetConnection() (*amqp.Connection, error) {
	cm.mu.Lock()
	if cm.closed {
		cm.mu.Unlock()
		return nil, NewError(CodeConnectionError, "connection manager is closed")
	}
	if cm.conn != nil && !cm.conn.IsClosed() {
		conn := cm.conn
		cm.mu.Unlock()
		return conn, nil
	}
	if cm.opening {
		waiter := cm.openWaiter
		cm.mu.Unlock()
		<-waiter
		return cm.GetConnection()
	}
	cm.opening = true
	cm.openWaiter = make(chan struct{})
	cm.mu.Unlock()

	conn, err := cm.dial()

	cm.mu.Lock()
	cm.opening = false
	close(cm.openWaiter)
	cm.mu.Unlock()

	if err != nil {
		if cm.cfg.Reconnect {
			go cm.reconnectLoop()
		}
		return nil, WrapError(CodeConnectionError, err)
	}
	return conn, nil
}

func (cm *ConnectionManager) dial() (*amqp.Connection, error) {
	cfg := amqp.Config{Heartbeat: cm.cfg.Heartbeat}
	conn, err := amqp.DialConfig(cm.cfg.URL, cfg)
	if err != nil {
		return nil, err
	}

	cm.mu.Lock()
	cm.conn = conn
	cm.status.Connected = true
	cm.status.ConnectedAt = time.Now()
	cm.mu.Unlock()
	cm.emit(ConnectionEvent{Kind: EventConnected})

	closeCh := make(chan *amqp.Error, 1)
	conn.NotifyClose(closeCh)
	go cm.watch(conn, closeCh)
	return conn, nil
}

func (cm *ConnectionManager) watch(conn *amqp.Connection, closeCh chan *amqp.Error) {
	select {
	case err, ok := <-closeCh:
		cm.mu.Lock()
		wasClosed := cm.closed
		if cm.conn == conn {
			cm.status.Connected = false
		}
		cm.mu.Unlock()

		if wasClosed {
			// Close() already handled teardown; nothing further to do.
			return
		}
		if ok && err != nil {
			cm.emit(ConnectionEvent{Kind: EventError, Err: err})
		}
		cm.emit(ConnectionEvent{Kind: EventDisconnected})
		if cm.cfg.Reconnect {
			go cm.reconnectLoop()
		}
	case <-cm.halt:
		return
	}
}

func (cm *ConnectionManager) reconnectLoop() {
	delay := cm.cfg.ReconnectInterval
	attempt := 0
	for {
		attempt++
		cm.mu.RLock()
		closed := cm.closed
		cm.mu.RUnlock()
		if closed {
			return
		}
		if cm.cfg.MaxReconnectAttempts > 0 && attempt > cm.cfg.MaxReconnectAttempts {
			cm.emit(ConnectionEvent{Kind: EventError, Err: NewError(CodeConnectionError, "max reconnect attempts exceeded")})
			cm.emit(ConnectionEvent{Kind: EventDisconnected})
			return
		}
		cm.emit(ConnectionEvent{Kind: EventReconnecting, Attempt: attempt})
		cm.log.Warning("attempting reconnect", log.Fields{"attempt": attempt, "delay": delay.String()})

		select {
		case <-time.After(delay):
		case <-cm.halt:
			return
		}

		if _, err := cm.dial(); err == nil {
			return
		}

		delay *= 2
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
	}
}

// Close tears down the connection and cancels any in-flight
// reconnection loop. Idempotent.
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	if cm.closed {
		cm.mu.Unlock()
		return nil
	}
	cm.closed = true
	conn := cm.conn
	cm.status.Connected = false
	cm.mu.Unlock()

	close(cm.halt)
	if conn != nil && !conn.IsClosed() {
		if err := conn.Close(); err != nil {
			return WrapError(CodeConnectionError, err)
		}
	}

	managersMu.Lock()
	if managers[cm.cfg.URL] == cm {
		delete(managers, cm.cfg.URL)
	}
	managersMu.Unlock()
	return nil
}
