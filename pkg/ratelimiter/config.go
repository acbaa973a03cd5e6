package ratelimiter

import (
	"fmt"
	"time"
)

// Config describes a token bucket. Each key starts with Capacity tokens and
// regains RefillRate tokens every RefillInterval, never above Capacity.
// Embed it with an env prefix:
//
//	ConnectLimit ratelimiter.Config `envPrefix:"STREAM_CONNECT_LIMIT_"`
type Config struct {
	Capacity        int           `env:"CAPACITY" envDefault:"10"`
	RefillRate      int           `env:"REFILL_RATE" envDefault:"1"`
	RefillInterval  time.Duration `env:"REFILL_INTERVAL" envDefault:"6s"`
	StaleAfter      time.Duration `env:"STALE_AFTER" envDefault:"1h"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"5m"`
}

const (
	DefaultStaleAfter      = time.Hour
	DefaultCleanupInterval = 5 * time.Minute
)

// Validate reports whether the bucket parameters are usable.
func (c Config) Validate() error {
	switch {
	case c.Capacity <= 0:
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidConfig, c.Capacity)
	case c.RefillRate <= 0:
		return fmt.Errorf("%w: refill rate must be positive, got %d", ErrInvalidConfig, c.RefillRate)
	case c.RefillInterval <= 0:
		return fmt.Errorf("%w: refill interval must be positive, got %v", ErrInvalidConfig, c.RefillInterval)
	}
	return nil
}
