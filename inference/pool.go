package inference

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorgonia.org/tensor"
)

const (
	// DefaultPoolSize is the number of sessions created when no size is configured.
	DefaultPoolSize = 2
	// DefaultAcquireTimeout bounds how long Run waits for a free session.
	DefaultAcquireTimeout = 30 * time.Second
)

// Runner is a single model instance that can run one input at a time. *Session implements it.
type Runner interface {
	Run(ctx context.Context, input *tensor.Dense) ([]float32, error)
	Close()
}

// PoolStats is a snapshot of pool usage.
type PoolStats struct {
	Size            int
	InUse           int
	TotalAcquired   int64
	AcquireFailures int64
	WaitTime        time.Duration
}

// SessionPool hands out one of N runners per call, so concurrent requests each get an
// isolated session. It implements Invoker.
type SessionPool struct {
	runners        chan Runner
	size           int
	acquireTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	stats  PoolStats
}

// NewSessionPool creates size ONNX sessions from cfg.
//
// Arguments:
//   - cfg: The model configuration shared by every session.
//   - size: The number of sessions; <= 0 selects DefaultPoolSize.
//
// Returns:
//   - *SessionPool: The pool.
//   - error: The first session creation error. Sessions created before it are closed.
func NewSessionPool(cfg Config, size int) (*SessionPool, error) {
	return NewRunnerPool(size, func() (Runner, error) {
		return NewSession(cfg)
	})
}

// NewRunnerPool creates a pool from a runner factory.
func NewRunnerPool(size int, factory func() (Runner, error)) (*SessionPool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}

	pool := &SessionPool{
		runners:        make(chan Runner, size),
		size:           size,
		acquireTimeout: DefaultAcquireTimeout,
	}
	pool.stats.Size = size

	for i := 0; i < size; i++ {
		r, err := factory()
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to initialize session %d: %w", i, err)
		}
		pool.runners <- r
	}
	return pool, nil
}

// SetAcquireTimeout changes how long Acquire waits for a free runner.
func (p *SessionPool) SetAcquireTimeout(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acquireTimeout = d
}

// Acquire takes a runner out of the pool, waiting until one is free, ctx is done, or the
// acquire timeout passes.
func (p *SessionPool) Acquire(ctx context.Context) (Runner, error) {
	p.mu.RLock()
	closed, timeout := p.closed, p.acquireTimeout
	p.mu.RUnlock()
	if closed {
		return nil, ErrPoolClosed
	}

	start := time.Now()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r, ok := <-p.runners:
		if !ok {
			return nil, ErrPoolClosed
		}
		p.mu.Lock()
		p.stats.InUse++
		p.stats.TotalAcquired++
		p.stats.WaitTime += time.Since(start)
		p.mu.Unlock()
		return r, nil
	case <-timer.C:
		p.recordFailure()
		return nil, ErrAcquireTimeout
	case <-ctx.Done():
		p.recordFailure()
		return nil, ctx.Err()
	}
}

func (p *SessionPool) recordFailure() {
	p.mu.Lock()
	p.stats.AcquireFailures++
	p.mu.Unlock()
}

// Release returns a runner to the pool. Runners released after Close are closed instead.
func (p *SessionPool) Release(r Runner) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		r.Close()
		return
	}
	p.stats.InUse--
	p.runners <- r
}

// Run acquires a runner, runs input on it, and releases it.
func (p *SessionPool) Run(ctx context.Context, input *tensor.Dense) ([]float32, error) {
	r, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(r)
	return r.Run(ctx, input)
}

// Stats returns a snapshot of pool usage.
func (p *SessionPool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// Close closes every idle runner. Runners currently in use are closed when released.
func (p *SessionPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	close(p.runners)
	for r := range p.runners {
		r.Close()
	}
}
