package eventlog

import (
	"context"
	"iter"
	"slices"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
)

// MemoryStore is an in-process Log for tests and single-node development.
// Entries never expire on their own; Prune is the only way they leave.
type MemoryStore struct {
	mu     sync.RWMutex
	topics map[string][]Entry
	clock  clock.Clock
}

var _ Log = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store. Only WithClock is honoured.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &MemoryStore{
		topics: make(map[string][]Entry),
		clock:  o.clock,
	}
}

func (s *MemoryStore) Append(ctx context.Context, topic string, data []byte) (Entry, error) {
	if topic == "" {
		return Entry{}, ErrEmptyTopic
	}
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := Entry{Topic: topic, Timestamp: s.clock.Now().UnixMilli(), Data: slices.Clone(data)}
	entries := s.topics[topic]
	// Keep ascending order even if the clock moved backwards.
	i := sort.Search(len(entries), func(i int) bool { return entries[i].Timestamp > e.Timestamp })
	s.topics[topic] = slices.Insert(entries, i, e)
	return e, nil
}

// Replay yields a snapshot taken when iteration starts.
func (s *MemoryStore) Replay(ctx context.Context, topic string, after int64) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		s.mu.RLock()
		entries := s.topics[topic]
		i := sort.Search(len(entries), func(i int) bool { return entries[i].Timestamp > after })
		snapshot := slices.Clone(entries[i:])
		s.mu.RUnlock()

		for _, e := range snapshot {
			if err := ctx.Err(); err != nil {
				yield(Entry{}, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (s *MemoryStore) Prune(ctx context.Context, topic string, before int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.topics[topic]
	i := sort.Search(len(entries), func(i int) bool { return entries[i].Timestamp >= before })
	if i == len(entries) {
		delete(s.topics, topic)
	} else {
		s.topics[topic] = slices.Clone(entries[i:])
	}
	return int64(i), nil
}

func (s *MemoryStore) Topics(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		s.mu.RLock()
		topics := make([]string, 0, len(s.topics))
		for t := range s.topics {
			topics = append(topics, t)
		}
		s.mu.RUnlock()
		slices.Sort(topics)

		for _, t := range topics {
			if !yield(t, nil) {
				return
			}
		}
	}
}

// Len returns the number of entries stored for topic.
func (s *MemoryStore) Len(topic string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.topics[topic])
}
