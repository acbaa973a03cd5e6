package eventlog

import (
	"io"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

// Option configures a store.
type Option func(*options)

type options struct {
	namespace string
	batchSize int
	retention time.Duration
	clock     clock.Clock
	logger    *slog.Logger
}

// WithNamespace sets the key prefix, as in "<namespace>:<topic>:events".
func WithNamespace(ns string) Option {
	return func(o *options) {
		if ns != "" {
			o.namespace = ns
		}
	}
}

// WithScanBatchSize sets how many entries or keys are fetched per round trip.
func WithScanBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithRetention sets the expiry refreshed on every append. Zero disables expiry.
func WithRetention(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.retention = d
		}
	}
}

// WithClock sets the clock used to timestamp appended entries.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func defaultOptions() *options {
	return &options{
		namespace: DefaultNamespace,
		batchSize: DefaultScanBatchSize,
		retention: DefaultRetention,
		clock:     clock.New(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func configOptions(cfg Config) []Option {
	return []Option{
		WithNamespace(cfg.Namespace),
		WithScanBatchSize(cfg.ScanBatchSize),
		WithRetention(cfg.Retention),
	}
}
