package eventlog

import (
	"context"
	"iter"
)

// Entry is one stored event body.
type Entry struct {
	Topic     string
	Timestamp int64 // unix milliseconds, assigned at append time
	Data      []byte
}

// Appender stores event bodies.
type Appender interface {
	// Append stores data under topic, timestamped with the store clock.
	Append(ctx context.Context, topic string, data []byte) (Entry, error)
}

// Replayer reads stored events back.
type Replayer interface {
	// Replay yields entries of topic with a timestamp strictly greater than
	// after, in ascending timestamp order. The sequence is finite and can be
	// ranged over once. A non-nil error ends it.
	Replay(ctx context.Context, topic string, after int64) iter.Seq2[Entry, error]
}

// Pruner removes old events.
type Pruner interface {
	// Prune deletes entries of topic with a timestamp lower than before and
	// returns how many were removed. Entries at exactly before are kept.
	Prune(ctx context.Context, topic string, before int64) (int64, error)

	// Topics yields every topic that currently has stored entries.
	Topics(ctx context.Context) iter.Seq2[string, error]
}

// Log is the full durable event log.
type Log interface {
	Appender
	Replayer
	Pruner
}
