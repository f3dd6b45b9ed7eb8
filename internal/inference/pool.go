package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	DefaultPoolSize   = 1
	AcquireTimeout    = 30 * time.Second
	HealthCheckPeriod = 60 * time.Second
)

var ErrPoolClosed = errors.New("session pool is closed")

// Session is anything the pool can hand out and destroy
type Session interface {
	Destroy()
}

// SessionFactory creates one pooled session
type SessionFactory[S Session] func() (S, error)

// SessionPool hands out a fixed number of sessions so that concurrent tile
// workers never share one. Lost sessions are recreated by a periodic check.
type SessionPool[S Session] struct {
	sessions   chan S
	size       int
	factory    SessionFactory[S]
	mu         sync.Mutex
	closed     bool
	stop       chan struct{}
	metrics    *PoolMetrics
	lastErrors []error
}

type PoolMetrics struct {
	mu              sync.RWMutex
	InUse           int
	TotalAcquired   int64
	TotalReleased   int64
	AcquireFailures int64
	WaitTime        time.Duration
}

// PoolSnapshot is a copy of the pool metrics safe to serialise
type PoolSnapshot struct {
	Size            int           `json:"pool_size"`
	InUse           int           `json:"sessions_in_use"`
	TotalAcquired   int64         `json:"total_acquired"`
	TotalReleased   int64         `json:"total_released"`
	AcquireFailures int64         `json:"acquire_failures"`
	WaitTime        time.Duration `json:"wait_time_ns"`
}

func NewSessionPool[S Session](factory SessionFactory[S], size int) (*SessionPool[S], error) {
	if size <= 0 {
		size = DefaultPoolSize
	}

	pool := &SessionPool[S]{
		sessions: make(chan S, size),
		size:     size,
		factory:  factory,
		stop:     make(chan struct{}),
		metrics:  &PoolMetrics{},
	}

	for i := 0; i < size; i++ {
		session, err := factory()
		if err != nil {
			pool.Destroy()
			return nil, fmt.Errorf("failed to initialize session %d: %w", i, err)
		}
		pool.sessions <- session
	}

	go pool.healthCheck()

	return pool, nil
}

func (p *SessionPool[S]) Acquire(ctx context.Context) (S, error) {
	var zero S

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return zero, ErrPoolClosed
	}

	start := time.Now()
	defer func() {
		p.metrics.mu.Lock()
		p.metrics.WaitTime += time.Since(start)
		p.metrics.mu.Unlock()
	}()

	timer := time.NewTimer(AcquireTimeout)
	defer timer.Stop()

	select {
	case session, ok := <-p.sessions:
		if !ok {
			return zero, ErrPoolClosed
		}
		p.metrics.mu.Lock()
		p.metrics.InUse++
		p.metrics.TotalAcquired++
		p.metrics.mu.Unlock()
		return session, nil
	case <-timer.C:
		p.metrics.mu.Lock()
		p.metrics.AcquireFailures++
		p.metrics.mu.Unlock()
		return zero, fmt.Errorf("timeout waiting for available session")
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (p *SessionPool[S]) Release(session S) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.metrics.mu.Lock()
	p.metrics.InUse--
	p.metrics.TotalReleased++
	p.metrics.mu.Unlock()

	if p.closed {
		session.Destroy()
		return
	}
	p.sessions <- session
}

func (p *SessionPool[S]) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.stop)
	close(p.sessions)

	for session := range p.sessions {
		session.Destroy()
	}
}

func (p *SessionPool[S]) healthCheck() {
	ticker := time.NewTicker(HealthCheckPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
		}

		p.metrics.mu.RLock()
		inUse := p.metrics.InUse
		p.metrics.mu.RUnlock()

		p.mu.Lock()
		missing := p.size - len(p.sessions) - inUse
		p.mu.Unlock()

		if missing > 0 {
			p.replenishSessions(missing)
		}
	}
}

func (p *SessionPool[S]) replenishSessions(count int) {
	for i := 0; i < count; i++ {
		session, err := p.factory()
		if err != nil {
			p.recordError(err)
			continue
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			session.Destroy()
			return
		}
		p.sessions <- session
		p.mu.Unlock()
	}
}

func (p *SessionPool[S]) recordError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastErrors = append(p.lastErrors, err)
	if len(p.lastErrors) > 10 {
		p.lastErrors = p.lastErrors[1:]
	}
}

// LastErrors returns the most recent session creation failures
func (p *SessionPool[S]) LastErrors() []error {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]error, len(p.lastErrors))
	copy(out, p.lastErrors)
	return out
}

func (p *SessionPool[S]) Size() int {
	return p.size
}

func (p *SessionPool[S]) GetMetrics() PoolSnapshot {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()

	return PoolSnapshot{
		Size:            p.size,
		InUse:           p.metrics.InUse,
		TotalAcquired:   p.metrics.TotalAcquired,
		TotalReleased:   p.metrics.TotalReleased,
		AcquireFailures: p.metrics.AcquireFailures,
		WaitTime:        p.metrics.WaitTime,
	}
}
