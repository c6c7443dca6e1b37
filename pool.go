package relaymq

import (
	"container/list"
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/relaymq/relaymq/internal/log"
)

// PoolConfig controls a ChannelPool's sizing and acquisition behavior,
// per spec.md §4.2.
type PoolConfig struct {
	Min             int
	Max             int
	AcquireTimeout  time.Duration
	IdleEvictionAge time.Duration
	EvictionPeriod  time.Duration
	Logger          log.Logger
}

func (c *PoolConfig) applyDefaults() {
	if c.Min < 0 {
		c.Min = 0
	}
	if c.Max <= 0 {
		c.Max = 10
	}
	if c.Max < c.Min {
		c.Max = c.Min
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 5 * time.Second
	}
	if c.IdleEvictionAge <= 0 {
		c.IdleEvictionAge = time.Minute
	}
	if c.EvictionPeriod <= 0 {
		c.EvictionPeriod = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Discard()
	}
}

type pooledChannel struct {
	ch      *amqp.Channel
	idleAt  time.Time
}

// ChannelPool hands out confirm-mode AMQP channels backed by a single
// ConnectionManager, bounding concurrent channel usage and evicting
// long-idle channels, per spec.md §4.2. Grounded on the teacher's
// session lifecycle in amqp/session.go, split out of the connection
// so multiple independent pools can share one ConnectionManager.
type ChannelPool struct {
	cfg  PoolConfig
	conn *ConnectionManager
	log  log.Logger

	mu       sync.Mutex
	idle     *list.List // of *pooledChannel
	inUse    int
	total    int
	waiters  *list.List // of chan acquireResult
	draining bool
	stopEvict chan struct{}
}

type acquireResult struct {
	ch  *amqp.Channel
	err error
}

// NewChannelPool constructs a pool bound to conn and starts its
// background eviction sweep.
func NewChannelPool(conn *ConnectionManager, cfg PoolConfig) *ChannelPool {
	cfg.applyDefaults()
	p := &ChannelPool{
		cfg:       cfg,
		conn:      conn,
		log:       cfg.Logger,
		idle:      list.New(),
		waiters:   list.New(),
		stopEvict: make(chan struct{}),
	}
	go p.evictLoop()
	return p
}

// Size returns the total number of channels currently owned by the pool
// (idle + in use).
func (p *ChannelPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// Available returns the number of idle channels ready for immediate use.
func (p *ChannelPool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idle.Len()
}

// Pending returns the number of callers currently blocked in Acquire.
func (p *ChannelPool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waiters.Len()
}

// Acquire returns a healthy channel, opening a new one if the pool is
// below Max, or blocking (FIFO) until one is released or AcquireTimeout
// elapses. Returns a POOL_DRAINING error immediately if Drain has been
// called, or an ACQUIRE_TIMEOUT error if no channel becomes available in
// time.
func (p *ChannelPool) Acquire(ctx context.Context) (*amqp.Channel, error) {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return nil, NewError(CodePoolDraining, "channel pool is draining")
	}

	for {
		el := p.idle.Front()
		if el == nil {
			break
		}
		p.idle.Remove(el)
		pc := el.Value.(*pooledChannel)
		p.mu.Unlock()

		// A channel the broker has silently broken may still report
		// IsClosed() == false until its close frame arrives, so a cheap
		// round trip is needed to actually exercise it before handing it
		// to the caller.
		healthy := !pc.ch.IsClosed() && p.probe(pc.ch)

		p.mu.Lock()
		if !healthy {
			p.total--
			p.mu.Unlock()
			p.conn.NotifyChannelClosed()
			p.mu.Lock()
			continue
		}
		p.inUse++
		p.mu.Unlock()
		return pc.ch, nil
	}

	if p.total < p.cfg.Max {
		p.total++
		p.inUse++
		p.mu.Unlock()
		ch, err := p.open()
		if err != nil {
			p.mu.Lock()
			p.total--
			p.inUse--
			p.mu.Unlock()
			return nil, err
		}
		return ch, nil
	}

	waiter := make(chan acquireResult, 1)
	el := p.waiters.PushBack(waiter)
	p.mu.Unlock()

	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case res := <-waiter:
		return res.ch, res.err
	case <-timer.C:
		p.mu.Lock()
		p.waiters.Remove(el)
		p.mu.Unlock()
		return nil, NewError(CodeAcquireTimeout, "timed out waiting for a channel")
	case <-ctx.Done():
		p.mu.Lock()
		p.waiters.Remove(el)
		p.mu.Unlock()
		return nil, WrapError(CodeAcquireTimeout, ctx.Err())
	}
}

// probe issues a cheap synchronous broker round trip on ch (channel.flow
// is a no-op request the broker always answers, so it never fails or
// mutates channel state on its own) to catch a channel the broker has
// already torn down but hasn't yet reported closed locally, per
// spec.md §4.2.
func (p *ChannelPool) probe(ch *amqp.Channel) bool {
	return ch.Flow(true) == nil
}

func (p *ChannelPool) open() (*amqp.Channel, error) {
	conn, err := p.conn.GetConnection()
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, WrapError(CodeChannelError, err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, WrapError(CodeChannelError, err)
	}
	p.conn.NotifyChannelOpened()
	return ch, nil
}

// Release returns ch to the pool for reuse. If ch is closed or the pool
// is draining, it is destroyed instead.
func (p *ChannelPool) Release(ch *amqp.Channel) {
	if ch == nil {
		return
	}
	p.mu.Lock()
	if ch.IsClosed() || p.draining {
		p.inUse--
		p.total--
		p.mu.Unlock()
		_ = ch.Close()
		p.conn.NotifyChannelClosed()
		return
	}

	if el := p.waiters.Front(); el != nil {
		waiter := p.waiters.Remove(el).(chan acquireResult)
		p.mu.Unlock()
		waiter <- acquireResult{ch: ch}
		return
	}

	p.inUse--
	p.idle.PushBack(&pooledChannel{ch: ch, idleAt: time.Now()})
	p.mu.Unlock()
}

// Destroy closes ch and removes it from the pool's accounting without
// returning it to the idle set. Use this when a caller knows ch is bad
// (e.g. after a publish error) rather than calling Release.
func (p *ChannelPool) Destroy(ch *amqp.Channel) {
	if ch == nil {
		return
	}
	_ = ch.Close()
	p.mu.Lock()
	p.inUse--
	p.total--
	p.mu.Unlock()
	p.conn.NotifyChannelClosed()
}

// Drain marks the pool as draining: further Acquire calls fail
// immediately with POOL_DRAINING, all idle channels are closed, and any
// channel currently in use is closed as soon as it is released.
func (p *ChannelPool) Drain() {
	p.mu.Lock()
	p.draining = true
	for el := p.idle.Front(); el != nil; el = el.Next() {
		pc := el.Value.(*pooledChannel)
		pc.ch.Close()
		p.total--
		p.conn.NotifyChannelClosed()
	}
	p.idle.Init()

	for el := p.waiters.Front(); el != nil; el = el.Next() {
		waiter := el.Value.(chan acquireResult)
		waiter <- acquireResult{err: NewError(CodePoolDraining, "channel pool is draining")}
	}
	p.waiters.Init()
	p.mu.Unlock()

	close(p.stopEvict)
}

func (p *ChannelPool) evictLoop() {
	ticker := time.NewTicker(p.cfg.EvictionPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.evictIdle()
		case <-p.stopEvict:
			return
		}
	}
}

func (p *ChannelPool) evictIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := time.Now().Add(-p.cfg.IdleEvictionAge)
	var next *list.Element
	for el := p.idle.Front(); el != nil; el = next {
		next = el.Next()
		if p.total <= p.cfg.Min {
			break
		}
		pc := el.Value.(*pooledChannel)
		if pc.idleAt.Before(cutoff) {
			p.idle.Remove(el)
			pc.ch.Close()
			p.total--
			p.conn.NotifyChannelClosed()
		}
	}
}
