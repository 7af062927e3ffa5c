// Package loop runs a task repeatedly, sleeping between iterations.
//
// The sleep starts only after the previous iteration has returned, so slow
// tasks never pile up behind a wall-clock ticker.
package loop

import (
	"context"
	"fmt"
	"time"
)

// Next tells Start what to do after an iteration.
type Next struct {
	err      error
	stop     bool
	interval time.Duration
}

func (n Next) String() string {
	if n.err != nil {
		return fmt.Sprintf("break with error: %v", n.err)
	}
	if n.stop {
		return "break"
	}
	return fmt.Sprintf("continue after %s", n.interval)
}

// Continue schedules the next iteration interval after the current one returned.
func Continue(interval time.Duration) Next {
	return Next{interval: interval}
}

// Break stops the loop. A nil err stops it cleanly.
func Break(err error) Next {
	return Next{stop: true, err: err}
}

// Task receives the value returned by its previous iteration (or the initial
// value) and returns the value for the next one. The zero Next means
// Continue(0).
type Task[T any] func(ctx context.Context, value T) (T, Next)

// Option customises the context handed to each iteration.
type Option func(*iteration) *iteration

type iteration struct {
	ctx     context.Context
	release func()
}

// WithTimeout bounds each iteration's context by d.
func WithTimeout(d time.Duration) Option {
	return func(it *iteration) *iteration {
		ctx, cancel := context.WithTimeout(it.ctx, d)
		prev := it.release
		return &iteration{
			ctx: ctx,
			release: func() {
				cancel()
				if prev != nil {
					prev()
				}
			},
		}
	}
}

// Start runs task until it returns Break or ctx is done.
//
// It returns the last value produced by task together with the Break error, or
// ctx.Err() when the context ended the loop. When ctx is already done, task is
// never called and init is returned.
func Start[T any](ctx context.Context, init T, task Task[T], options ...Option) (T, error) {
	if err := ctx.Err(); err != nil {
		return init, err
	}

	value := init
	for {
		next, v := runOnce(ctx, value, task, options)
		value = v
		if next.err != nil {
			return value, next.err
		}
		if next.stop {
			return value, nil
		}

		timer := time.NewTimer(next.interval)
		select {
		case <-ctx.Done():
			// shutdown takes priority over a timer that fired at the same time
			timer.Stop()
			return value, ctx.Err()
		case <-timer.C:
		}
	}
}

func runOnce[T any](ctx context.Context, value T, task Task[T], options []Option) (Next, T) {
	it := &iteration{ctx: ctx}
	for _, opt := range options {
		it = opt(it)
	}
	if it.release != nil {
		defer it.release()
	}
	v, next := task(it.ctx, value)
	return next, v
}
