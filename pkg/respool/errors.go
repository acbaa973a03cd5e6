package respool

import "errors"

var (
	// ErrWarmupFailed is returned by New when the factory cannot fill the pool.
	// It always wraps the factory error.
	ErrWarmupFailed = errors.New("respool: failed to populate pool")

	// ErrPoolClosed is returned by Acquire once Close has been called.
	ErrPoolClosed = errors.New("respool: pool is closed")

	// ErrInvalidSize is returned when the configured size is not positive.
	ErrInvalidSize = errors.New("respool: pool size must be positive")

	ErrNilFactory = errors.New("respool: factory is nil")
)
