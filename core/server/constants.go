package server

import "time"

const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 15 * time.Second
	DefaultWriteTimeout      = 15 * time.Second
	DefaultIdleTimeout       = 60 * time.Second

	// DefaultShutdownTimeout bounds draining of regular requests. Upgraded
	// stream connections are closed by shutdown hooks instead.
	DefaultShutdownTimeout = 30 * time.Second

	DefaultMaxHeaderBytes = 1 << 20
)
