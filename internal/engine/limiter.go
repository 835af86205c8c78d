package engine

import (
	"context"
	"sync"
)

// Limiter is a bounded-parallelism gate: at most limit tasks run at once,
// excess callers queue in FIFO order. One task's failure never affects the
// gate or other tasks.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	running int
	queue   []chan struct{}
}

// NewLimiter creates a gate admitting at most limit concurrent tasks.
// A limit below 1 is treated as 1.
func NewLimiter(limit int) *Limiter {
	if limit < 1 {
		limit = 1
	}
	return &Limiter{limit: limit}
}

// acquire blocks until a slot is free or ctx is done. Waiters are admitted
// strictly in arrival order.
func (l *Limiter) acquire(ctx context.Context) error {
	l.mu.Lock()
	if l.running < l.limit && len(l.queue) == 0 {
		l.running++
		l.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	l.queue = append(l.queue, ready)
	l.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		for i, ch := range l.queue {
			if ch == ready {
				l.queue = append(l.queue[:i], l.queue[i+1:]...)
				l.mu.Unlock()
				return ctx.Err()
			}
		}
		l.mu.Unlock()
		// Already admitted between ctx firing and dequeue; give the slot back.
		<-ready
		l.release()
		return ctx.Err()
	}
}

// release frees a slot and admits the queue head, if any.
func (l *Limiter) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) > 0 {
		ready := l.queue[0]
		l.queue = l.queue[1:]
		close(ready)
		return
	}
	l.running--
}

// RunLimited runs task through the gate and returns its outcome. Callers
// blocked in the queue abort with ctx.Err() if their context fires first.
func RunLimited[T any](ctx context.Context, l *Limiter, task func() (T, error)) (T, error) {
	var zero T
	if err := l.acquire(ctx); err != nil {
		return zero, err
	}
	defer l.release()
	return task()
}
