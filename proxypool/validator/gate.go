package validator

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate is an admission gate: at most Size probes hold a slot at once.
// Waiters are admitted in arrival order. Every successful Acquire must be paired
// with exactly one Release, normally via defer in the probe goroutine.
type Gate struct {
	sem  *semaphore.Weighted
	size int
}

func NewGate(size int) *Gate {
	if size <= 0 {
		size = 1
	}
	return &Gate{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
	}
}

// Acquire blocks until a slot frees or ctx is done. On error no slot is held.
func (g *Gate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

func (g *Gate) Release() {
	g.sem.Release(1)
}

func (g *Gate) Size() int {
	return g.size
}
