package async

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Tracker runs fire-and-forget work on detached contexts and lets a shutdown
// path wait for whatever is still running.
type Tracker struct {
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	inFlight  atomic.Int64
	started   atomic.Int64
	completed atomic.Int64
}

// NewTracker creates a tracker whose work runs with the given timeout.
// Zero means no timeout.
func NewTracker(timeout time.Duration) *Tracker {
	return &Tracker{timeout: timeout}
}

// Go runs fn in a new goroutine on a context detached from ctx. Cancelling
// ctx does not stop fn. After Close, Go returns a future resolved with
// ErrTrackerClosed and fn is not called.
func (t *Tracker) Go(ctx context.Context, fn func(context.Context) error) *Future {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		f := &Future{err: ErrTrackerClosed, done: make(chan struct{})}
		close(f.done)
		return f
	}
	t.wg.Add(1)
	t.mu.Unlock()

	t.started.Add(1)
	t.inFlight.Add(1)

	dctx, cancel := Detach(ctx, t.timeout)
	f := &Future{done: make(chan struct{})}
	go func() {
		defer t.wg.Done()
		err := fn(dctx)
		cancel()
		t.inFlight.Add(-1)
		t.completed.Add(1)
		f.err = err
		close(f.done)
	}()
	return f
}

// Wait blocks until all work started so far has returned, or ctx ends.
func (t *Tracker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close refuses new work and waits like Wait.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return t.Wait(ctx)
}

// InFlight returns the number of running functions.
func (t *Tracker) InFlight() int64 { return t.inFlight.Load() }

// Started returns the number of functions started since creation.
func (t *Tracker) Started() int64 { return t.started.Load() }

// Completed returns the number of functions that have returned.
func (t *Tracker) Completed() int64 { return t.completed.Load() }
