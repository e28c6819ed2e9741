// Package executor runs blocking work, such as external processes, on a
// bounded number of slots with a per-call deadline.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTimeout is returned when a task exceeds the pool's deadline.
var ErrTimeout = errors.New("task timed out")

// Pool bounds concurrent blocking tasks.
type Pool struct {
	sem     *semaphore.Weighted
	timeout time.Duration
}

// NewPool creates a Pool allowing up to workers concurrent tasks, each
// limited to timeout. A zero timeout disables the deadline.
func NewPool(workers int, timeout time.Duration) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(workers)), timeout: timeout}
}

// Run waits for a free slot and runs fn with a context carrying the pool
// deadline. A deadline hit while waiting or running is reported as ErrTimeout.
func (p *Pool) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return mapDeadline(err)
	}
	defer p.sem.Release(1)

	err := fn(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %v", ErrTimeout, p.timeout, err)
	}
	return err
}

func mapDeadline(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}
