package async_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrymomot/mailbox/pkg/async"
)

func TestTrackerOutlivesCallerContext(t *testing.T) {
	t.Parallel()
	tr := async.NewTracker(time.Second)

	reqCtx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	f := tr.Go(reqCtx, func(ctx context.Context) error {
		<-release
		return ctx.Err()
	})
	cancel()

	if got := tr.InFlight(); got != 1 {
		t.Errorf("expected 1 in flight, got %d", got)
	}
	close(release)

	if err := f.Await(context.Background()); err != nil {
		t.Errorf("work saw caller cancellation: %v", err)
	}
	if tr.InFlight() != 0 || tr.Completed() != 1 || tr.Started() != 1 {
		t.Errorf("unexpected counters: in flight %d, started %d, completed %d",
			tr.InFlight(), tr.Started(), tr.Completed())
	}
}

func TestTrackerTimeout(t *testing.T) {
	t.Parallel()
	tr := async.NewTracker(20 * time.Millisecond)

	f := tr.Go(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err := f.Await(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got: %v", err)
	}
}

func TestTrackerWaitAndClose(t *testing.T) {
	t.Parallel()
	tr := async.NewTracker(0)

	var done atomic.Int32
	for range 10 {
		tr.Go(context.Background(), func(ctx context.Context) error {
			time.Sleep(5 * time.Millisecond)
			done.Add(1)
			return nil
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tr.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := done.Load(); got != 10 {
		t.Errorf("expected 10 completed before Close returned, got %d", got)
	}

	f := tr.Go(context.Background(), func(ctx context.Context) error {
		t.Error("work started after close")
		return nil
	})
	if err := f.Await(context.Background()); !errors.Is(err, async.ErrTrackerClosed) {
		t.Errorf("expected ErrTrackerClosed, got: %v", err)
	}
}

func TestTrackerWaitHonoursContext(t *testing.T) {
	t.Parallel()
	tr := async.NewTracker(0)
	block := make(chan struct{})
	defer close(block)
	tr.Go(context.Background(), func(ctx context.Context) error {
		<-block
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tr.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got: %v", err)
	}
}
