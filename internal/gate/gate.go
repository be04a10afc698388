// Package gate bounds the number of in-flight child processes. It is the
// sole admission point between a cache-miss execution request and the
// supervisor actually spawning a process.
package gate

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate wraps a weighted semaphore sized to the concurrency bound. Acquire
// is a suspension point: a caller whose context is canceled while waiting
// returns without having consumed a permit, which is exactly the
// cancellation contract the supervisor needs.
type Gate struct {
	sem *semaphore.Weighted
}

// New returns a Gate admitting at most n concurrent holders.
func New(n int64) *Gate {
	return &Gate{sem: semaphore.NewWeighted(n)}
}

// Acquire blocks until a permit is available or ctx is done. On success the
// caller must call Release exactly once, after the child it guards has been
// fully reaped.
func (g *Gate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// Release returns the permit to the pool.
func (g *Gate) Release() {
	g.sem.Release(1)
}

// TryAcquire attempts to take a permit without blocking, reporting whether
// it succeeded. Not used on the request hot path (the spec requires
// suspension, not fail-fast), but useful for tests asserting the bound.
func (g *Gate) TryAcquire() bool {
	return g.sem.TryAcquire(1)
}
