package respool

import (
	"log/slog"
	"time"
)

// Option configures a Pool.
type Option func(*options)

type options struct {
	name            string
	size            int
	validateTimeout time.Duration
	retryInterval   time.Duration
	logger          *slog.Logger
}

// WithName labels the pool in logs and metrics.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithSize sets the fixed number of resources. Non-positive values fail New.
func WithSize(n int) Option {
	return func(o *options) {
		o.size = n
	}
}

// WithValidateTimeout bounds each Validate and replacement Make call made by the recycler.
func WithValidateTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.validateTimeout = d
		}
	}
}

// WithRetryInterval sets the pause between failed replacement attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retryInterval = d
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
