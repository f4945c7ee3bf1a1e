package interview

import (
	"context"
	"errors"
	"time"
)

var errAwaitTimeout = errors.New("interview: call timed out")

// abandonGrace multiplies the wait budget into a hard deadline for the
// abandoned call so a hung backend cannot leak its goroutine forever.
const abandonGrace = 4

// await runs fn on its own goroutine and waits up to d for its result. On
// timeout, or when done closes, the call is abandoned rather than cancelled:
// it keeps running on a context detached from ctx and its result is dropped.
func await[T any](ctx context.Context, d time.Duration, done <-chan struct{}, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d*abandonGrace)
	ch := make(chan result, 1)
	go func() {
		defer cancel()
		v, err := fn(callCtx)
		ch <- result{v, err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	var zero T
	select {
	case r := <-ch:
		return r.v, r.err
	case <-timer.C:
		return zero, errAwaitTimeout
	case <-done:
		return zero, ErrSessionDisposed
	}
}
