package orchestration

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Limiter caps concurrent outbound backend calls across all requests.
// A nil *Limiter imposes no limit.
type Limiter struct {
	sem      *semaphore.Weighted
	inFlight atomic.Int64
	size     int64
}

func NewLimiter(size int) *Limiter {
	if size <= 0 {
		return nil
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(size)), size: int64(size)}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	l.inFlight.Add(1)
	return nil
}

func (l *Limiter) Release() {
	if l == nil {
		return
	}
	l.inFlight.Add(-1)
	l.sem.Release(1)
}

func (l *Limiter) InFlight() int64 {
	if l == nil {
		return 0
	}
	return l.inFlight.Load()
}

func (l *Limiter) Size() int64 {
	if l == nil {
		return 0
	}
	return l.size
}
