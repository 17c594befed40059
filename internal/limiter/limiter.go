// Package limiter bounds the number of simultaneous expensive operations
// across a batch run.
package limiter

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Limiter is a counting admission gate with fixed capacity. At no instant
// do more than capacity holders exist. Waiters are released in some order
// when slots free; strict FIFO is not guaranteed.
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int64
}

// New creates a Limiter with the given capacity.
func New(capacity int) (*Limiter, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be > 0")
	}
	return &Limiter{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}, nil
}

// Capacity returns the configured slot count.
func (l *Limiter) Capacity() int {
	return int(l.capacity)
}

// Acquire blocks until a slot is free or ctx is done. A successful
// Acquire must be paired with exactly one Release on every exit path; a
// leaked slot permanently reduces effective capacity.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire slot: %w", err)
	}
	return nil
}

// TryAcquire takes a slot without blocking.
func (l *Limiter) TryAcquire() bool {
	return l.sem.TryAcquire(1)
}

// Release returns a slot. Releasing more than was acquired panics; that
// is a programming defect, not a runtime condition.
func (l *Limiter) Release() {
	l.sem.Release(1)
}
