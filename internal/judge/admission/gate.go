package admission

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ConcurrencyGate caps the number of simultaneous holders.
type ConcurrencyGate struct {
	sem      *semaphore.Weighted
	size     int
	inFlight atomic.Int64
}

// NewConcurrencyGate creates a gate admitting at most size holders.
func NewConcurrencyGate(size int) *ConcurrencyGate {
	if size <= 0 {
		size = 1
	}
	return &ConcurrencyGate{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Acquire blocks until a slot is free or ctx is done. Waiters are admitted in
// FIFO order. The returned release func is safe to call more than once and
// must be deferred by the caller.
func (g *ConcurrencyGate) Acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return func() {}, err
	}
	g.inFlight.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			g.inFlight.Add(-1)
			g.sem.Release(1)
		})
	}, nil
}

// InFlight returns the number of current holders.
func (g *ConcurrencyGate) InFlight() int {
	return int(g.inFlight.Load())
}

// Size returns the gate capacity.
func (g *ConcurrencyGate) Size() int {
	return g.size
}
