package auth

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// HashPool bounds how many password hash comparisons run at once.
type HashPool struct {
	sem  *semaphore.Weighted
	size int
}

// NewHashPool creates a pool with size slots.
// A non-positive size defaults to runtime.GOMAXPROCS(0).
func NewHashPool(size int) *HashPool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &HashPool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
	}
}

// Size returns the number of slots.
func (p *HashPool) Size() int {
	return p.size
}

// Do runs fn on a free slot.
//
// Waiting for a slot honours ctx. Once fn has started it always runs to
// completion and Do waits for it, even if ctx is cancelled meanwhile.
// A panic inside fn is recovered and reported as ErrUnexpected.
func (p *HashPool) Do(ctx context.Context, fn func()) (err error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: acquire hash slot: %w", ErrUnexpected, err)
	}
	defer p.sem.Release(1)

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%w: hash worker panic: %v", ErrUnexpected, r)
			}
		}()
		fn()
		done <- nil
	}()

	return <-done
}
