package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the number of values a channel retains for slow subscribers.
const DefaultCapacity = 256

// Channel is a bounded multi-subscriber channel. Every subscriber sees every
// value sent after it subscribed, in send order. Values live in a ring buffer
// shared by all subscribers; a subscriber that falls more than capacity values
// behind gets a *LagError instead of blocking the sender.
type Channel[T any] struct {
	mu        sync.Mutex
	buf       []T
	head      uint64 // sequence number of the next value to send
	receivers int
	closed    bool
	notify    chan struct{}

	lagged *atomic.Int64
}

// NewChannel creates a channel retaining up to capacity values.
// Non-positive capacity falls back to DefaultCapacity.
func NewChannel[T any](capacity int) *Channel[T] {
	return newChannel[T](capacity, nil)
}

func newChannel[T any](capacity int, lagged *atomic.Int64) *Channel[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Channel[T]{
		buf:    make([]T, capacity),
		notify: make(chan struct{}),
		lagged: lagged,
	}
}

// Send delivers v to all current subscribers and returns how many there are.
// It never blocks. With no subscribers, or after Close, v is discarded.
func (c *Channel[T]) Send(v T) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.receivers == 0 {
		return 0
	}
	c.buf[c.head%uint64(len(c.buf))] = v
	c.head++
	c.wakeLocked()
	return c.receivers
}

// Subscribe returns a subscription starting at the next value sent.
func (c *Channel[T]) Subscribe() *Subscription[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Subscription[T]{ch: c, next: c.head}
	if c.closed {
		s.closed = true
		return s
	}
	c.receivers++
	return s
}

// ReceiverCount returns the number of open subscriptions.
func (c *Channel[T]) ReceiverCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receivers
}

// Close stops the channel. Subscribers can still read buffered values and then get ErrClosed.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.wakeLocked()
}

func (c *Channel[T]) wakeLocked() {
	close(c.notify)
	c.notify = make(chan struct{})
}

func (c *Channel[T]) oldestLocked() uint64 {
	size := uint64(len(c.buf))
	if c.head > size {
		return c.head - size
	}
	return 0
}

// Subscription is a receive handle on a Channel. It is not safe for
// concurrent Recv calls; use one goroutine per subscription.
type Subscription[T any] struct {
	ch     *Channel[T]
	next   uint64
	closed bool
}

// Recv returns the next value. It blocks until a value is sent, ctx ends, or
// the channel is closed and drained. A *LagError means values were skipped;
// keep calling Recv to continue from the oldest retained value.
func (s *Subscription[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	c := s.ch
	for {
		c.mu.Lock()
		if s.closed {
			c.mu.Unlock()
			return zero, ErrClosed
		}
		if oldest := c.oldestLocked(); s.next < oldest {
			skipped := oldest - s.next
			s.next = oldest
			c.mu.Unlock()
			if c.lagged != nil {
				c.lagged.Add(1)
			}
			return zero, &LagError{Skipped: skipped}
		}
		if s.next < c.head {
			v := c.buf[s.next%uint64(len(c.buf))]
			s.next++
			c.mu.Unlock()
			return v, nil
		}
		if c.closed {
			c.mu.Unlock()
			return zero, ErrClosed
		}
		wait := c.notify
		c.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close drops the subscription. Calling it more than once is a no-op.
func (s *Subscription[T]) Close() {
	c := s.ch
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	c.receivers--
	c.wakeLocked()
}
