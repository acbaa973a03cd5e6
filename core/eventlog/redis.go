package eventlog

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/mailbox/core/logger"
)

// Connections lends out Redis clients. *respool.Pool[*redis.Client] satisfies it.
type Connections interface {
	With(ctx context.Context, fn func(context.Context, *redis.Client) error) error
}

// RedisStore keeps one sorted set per topic under "<namespace>:<topic>:events",
// scored by the append timestamp in milliseconds.
type RedisStore struct {
	conns     Connections
	namespace string
	batchSize int
	retention time.Duration
	clock     clock.Clock
	logger    *slog.Logger
}

var _ Log = (*RedisStore)(nil)

// NewRedisStore creates a store that borrows a client from conns for every call.
func NewRedisStore(conns Connections, opts ...Option) (*RedisStore, error) {
	if conns == nil {
		return nil, ErrNilConnections
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &RedisStore{
		conns:     conns,
		namespace: o.namespace,
		batchSize: o.batchSize,
		retention: o.retention,
		clock:     o.clock,
		logger:    o.logger,
	}, nil
}

// NewRedisStoreFromConfig creates a store from configuration. Options override config values.
func NewRedisStoreFromConfig(cfg Config, conns Connections, opts ...Option) (*RedisStore, error) {
	return NewRedisStore(conns, append(configOptions(cfg), opts...)...)
}

func (s *RedisStore) key(topic string) string {
	return s.namespace + ":" + topic + ":events"
}

// Append adds data to the topic set and refreshes the key expiry.
// Identical payloads share one set member, so callers store unique bodies.
func (s *RedisStore) Append(ctx context.Context, topic string, data []byte) (Entry, error) {
	if topic == "" {
		return Entry{}, ErrEmptyTopic
	}
	e := Entry{Topic: topic, Timestamp: s.clock.Now().UnixMilli(), Data: data}
	key := s.key(topic)

	err := s.conns.With(ctx, func(ctx context.Context, c *redis.Client) error {
		_, err := c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZAdd(ctx, key, redis.Z{Score: float64(e.Timestamp), Member: data})
			if s.retention > 0 {
				pipe.Expire(ctx, key, s.retention)
			}
			return nil
		})
		return err
	})
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %s: %w", ErrAppendFailed, topic, err)
	}
	return e, nil
}

// Replay pages through the set with ZRANGEBYSCORE. Entries sharing the score
// at a page boundary are skipped by offset, so none is returned twice.
func (s *RedisStore) Replay(ctx context.Context, topic string, after int64) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		key := s.key(topic)
		lower := "(" + strconv.FormatInt(after, 10)
		var offset int64

		for {
			var page []redis.Z
			err := s.conns.With(ctx, func(ctx context.Context, c *redis.Client) error {
				var err error
				page, err = c.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
					Min:    lower,
					Max:    "+inf",
					Offset: offset,
					Count:  int64(s.batchSize),
				}).Result()
				return err
			})
			if err != nil {
				yield(Entry{}, fmt.Errorf("%w: %s: %w", ErrReplayFailed, topic, err))
				return
			}

			for _, z := range page {
				e := Entry{Topic: topic, Timestamp: int64(z.Score), Data: memberBytes(z.Member)}
				if !yield(e, nil) {
					return
				}
			}
			if len(page) < s.batchSize {
				return
			}

			last := page[len(page)-1].Score
			lastMin := strconv.FormatInt(int64(last), 10)
			var same int64
			for i := len(page) - 1; i >= 0 && page[i].Score == last; i-- {
				same++
			}
			if lastMin == lower {
				offset += same
			} else {
				lower, offset = lastMin, same
			}
		}
	}
}

// Prune removes entries scored below before.
func (s *RedisStore) Prune(ctx context.Context, topic string, before int64) (int64, error) {
	var removed int64
	err := s.conns.With(ctx, func(ctx context.Context, c *redis.Client) error {
		var err error
		removed, err = c.ZRemRangeByScore(ctx, s.key(topic), "-inf", "("+strconv.FormatInt(before, 10)).Result()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrPruneFailed, topic, err)
	}
	if removed > 0 {
		s.logger.DebugContext(ctx, "pruned event log",
			logger.Topic(topic),
			slog.Int64("removed", removed))
	}
	return removed, nil
}

// Topics walks the keyspace with SCAN. A topic may be yielded twice if the
// keyspace is rehashed during the walk.
func (s *RedisStore) Topics(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		prefix := s.namespace + ":"
		const suffix = ":events"
		match := prefix + "*" + suffix
		var cursor uint64

		for {
			var keys []string
			err := s.conns.With(ctx, func(ctx context.Context, c *redis.Client) error {
				var err error
				keys, cursor, err = c.Scan(ctx, cursor, match, int64(s.batchSize)).Result()
				return err
			})
			if err != nil {
				yield("", fmt.Errorf("%w: %w", ErrScanFailed, err))
				return
			}
			for _, k := range keys {
				topic := strings.TrimSuffix(strings.TrimPrefix(k, prefix), suffix)
				if topic == "" {
					continue
				}
				if !yield(topic, nil) {
					return
				}
			}
			if cursor == 0 {
				return
			}
		}
	}
}

func memberBytes(m any) []byte {
	switch v := m.(type) {
	case string:
		return []byte(v)
	case []byte:
		return v
	default:
		return []byte(fmt.Sprint(v))
	}
}
