package broadcast

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Hub is a registry of per-topic channels. It holds at most one channel per
// topic; the channel is created on the first Subscribe and removed by
// PruneIdle once its last subscriber is gone.
type Hub[T any] struct {
	mu       sync.RWMutex
	topics   map[string]*Channel[T]
	closed   bool
	capacity int
	logger   *slog.Logger

	published atomic.Int64
	lagged    atomic.Int64
	created   atomic.Int64
	pruned    atomic.Int64
}

// HubStats is a snapshot of hub state and lifetime counters.
type HubStats struct {
	Topics      int
	Subscribers int
	Published   int64 // Publish calls that reached at least one subscriber
	Lagged      int64 // Lag signals returned to subscribers
	Created     int64 // Topic channels created
	Pruned      int64 // Idle topic channels removed
}

// HubOption configures a Hub.
type HubOption func(*hubOptions)

type hubOptions struct {
	capacity int
	logger   *slog.Logger
}

// WithCapacity sets how many values each topic retains for slow subscribers.
func WithCapacity(n int) HubOption {
	return func(o *hubOptions) {
		if n > 0 {
			o.capacity = n
		}
	}
}

func WithLogger(logger *slog.Logger) HubOption {
	return func(o *hubOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewHub creates an empty hub.
func NewHub[T any](opts ...HubOption) *Hub[T] {
	o := &hubOptions{
		capacity: DefaultCapacity,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Hub[T]{
		topics:   make(map[string]*Channel[T]),
		capacity: o.capacity,
		logger:   o.logger,
	}
}

// Subscribe returns a subscription to topic, creating the topic channel if needed.
func (h *Hub[T]) Subscribe(topic string) (*Subscription[T], error) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return nil, ErrClosed
	}
	if c, ok := h.topics[topic]; ok {
		// Subscribing under the read lock keeps PruneIdle from removing c meanwhile.
		s := c.Subscribe()
		h.mu.RUnlock()
		return s, nil
	}
	h.mu.RUnlock()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	c, ok := h.topics[topic]
	if !ok {
		c = newChannel[T](h.capacity, &h.lagged)
		h.topics[topic] = c
		h.created.Add(1)
		h.logger.Debug("topic channel created", slog.String("topic", topic))
	}
	return c.Subscribe(), nil
}

// Publish sends v to every subscriber of topic and returns how many received it.
// Topics nobody subscribed to are skipped.
func (h *Hub[T]) Publish(topic string, v T) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.topics[topic]
	if !ok {
		return 0
	}
	n := c.Send(v)
	if n > 0 {
		h.published.Add(1)
	}
	return n
}

// PruneIdle removes topics with no subscribers and returns how many were removed.
func (h *Hub[T]) PruneIdle() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for topic, c := range h.topics {
		if c.ReceiverCount() != 0 {
			continue
		}
		delete(h.topics, topic)
		c.Close()
		removed++
	}
	h.pruned.Add(int64(removed))
	return removed
}

// Topics returns the number of registered topics.
func (h *Hub[T]) Topics() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics)
}

// SubscriberCount returns the number of live subscriptions to topic.
func (h *Hub[T]) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if c, ok := h.topics[topic]; ok {
		return c.ReceiverCount()
	}
	return 0
}

// Stats returns a snapshot of the hub.
func (h *Hub[T]) Stats() HubStats {
	h.mu.RLock()
	s := HubStats{Topics: len(h.topics)}
	for _, c := range h.topics {
		s.Subscribers += c.ReceiverCount()
	}
	h.mu.RUnlock()

	s.Published = h.published.Load()
	s.Lagged = h.lagged.Load()
	s.Created = h.created.Load()
	s.Pruned = h.pruned.Load()
	return s
}

// Close closes every topic channel. Subscribers drain what is buffered and
// then get ErrClosed; new subscriptions are refused.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for topic, c := range h.topics {
		c.Close()
		delete(h.topics, topic)
	}
	h.logger.Info("broadcast hub closed")
}
