package async

import (
	"context"
	"errors"
	"time"
)

// Future is the outcome of a function running in its own goroutine.
type Future struct {
	err  error
	done chan struct{}
}

// Await blocks until the function returns or ctx ends.
func (f *Future) Await(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsComplete reports whether the function has returned, without blocking.
func (f *Future) IsComplete() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Exec runs fn(ctx, param) in a new goroutine. A context that is already
// done skips fn and resolves the future with ctx.Err().
func Exec[T any](ctx context.Context, param T, fn func(context.Context, T) error) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		if err := ctx.Err(); err != nil {
			f.err = err
			return
		}
		f.err = fn(ctx, param)
	}()
	return f
}

// Detach returns a context that keeps ctx's values but not its cancellation,
// bounded by timeout when timeout is positive. Work started on behalf of a
// request that must outlive the request uses it.
func Detach(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// WaitAll waits for every future and joins their errors in argument order.
// A ctx that ends first adds ctx.Err() for each future still running.
func WaitAll(ctx context.Context, futures ...*Future) error {
	var errs []error
	for _, f := range futures {
		if err := f.Await(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
