package stream

import "time"

// Config holds stream session settings.
type Config struct {
	HeartbeatInterval time.Duration `env:"STREAM_HEARTBEAT_INTERVAL" envDefault:"30s"`
	IdleTimeout       time.Duration `env:"STREAM_IDLE_TIMEOUT" envDefault:"40s"`
	WriteTimeout      time.Duration `env:"STREAM_WRITE_TIMEOUT" envDefault:"10s"`
	ReadLimit         int64         `env:"STREAM_READ_LIMIT" envDefault:"65536"`
	OutboundBuffer    int           `env:"STREAM_OUTBOUND_BUFFER" envDefault:"16"`
	DedupWindow       time.Duration `env:"STREAM_DEDUP_WINDOW" envDefault:"5s"`
	AllowedOrigins    []string      `env:"STREAM_ALLOWED_ORIGINS" envSeparator:","`
}

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultIdleTimeout       = 40 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultReadLimit         = 64 << 10
	DefaultOutboundBuffer    = 16
	DefaultDedupWindow       = 5 * time.Second
)
