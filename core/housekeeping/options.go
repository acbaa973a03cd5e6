package housekeeping

import (
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

type Option func(*options)

type options struct {
	sweepInterval time.Duration
	pruneInterval time.Duration
	retention     time.Duration
	pruneTimeout  time.Duration
	pruneOnStart  bool
	clock         clock.Clock
	logger        *slog.Logger
}

// WithTopicSweepInterval sets how often idle hub topics are removed.
func WithTopicSweepInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.sweepInterval = d
		}
	}
}

// WithLogPruneInterval sets how often the durable log is pruned.
func WithLogPruneInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pruneInterval = d
		}
	}
}

// WithRetention sets how long log entries are kept.
func WithRetention(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retention = d
		}
	}
}

// WithPruneTimeout bounds one full prune pass.
func WithPruneTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pruneTimeout = d
		}
	}
}

// WithPruneOnStart runs a prune pass as soon as the loops start.
func WithPruneOnStart(v bool) Option {
	return func(o *options) {
		o.pruneOnStart = v
	}
}

func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
