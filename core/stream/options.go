package stream

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
)

type Option func(*options)

type options struct {
	heartbeat      time.Duration
	idleTimeout    time.Duration
	writeTimeout   time.Duration
	readLimit      int64
	outboundBuffer int
	dedupWindow    time.Duration
	upgrader       websocket.Upgrader
	previews       PreviewPublisher
	limiter        ConnectLimiter
	clock          clock.Clock
	logger         *slog.Logger
}

// WithHeartbeatInterval sets how often a heartbeat frame is sent.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.heartbeat = d
		}
	}
}

// WithIdleTimeout closes sessions that send nothing for d.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.idleTimeout = d
		}
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// WithReadLimit caps the size of a client frame in bytes.
func WithReadLimit(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.readLimit = n
		}
	}
}

// WithOutboundBuffer sets the size of the reply queue.
func WithOutboundBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.outboundBuffer = n
		}
	}
}

// WithDedupWindow sets how far back, in event time, forwarded event IDs are
// remembered to drop duplicates at the replay and live boundary. Event times
// have millisecond resolution, so windows below a millisecond are ignored.
func WithDedupWindow(d time.Duration) Option {
	return func(o *options) {
		if d >= time.Millisecond {
			o.dedupWindow = d
		}
	}
}

// WithOriginCheck replaces the upgrader origin check.
func WithOriginCheck(fn func(r *http.Request) bool) Option {
	return func(o *options) {
		o.upgrader.CheckOrigin = fn
	}
}

// WithAllowedOrigins accepts cross-origin upgrades from the listed hosts only.
// An empty list keeps the same-origin default.
func WithAllowedOrigins(origins ...string) Option {
	return func(o *options) {
		if len(origins) == 0 {
			return
		}
		o.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return slices.Contains(origins, u.Host) || slices.Contains(origins, origin)
		}
	}
}

// WithPreviewPublisher enables preview client frames.
func WithPreviewPublisher(p PreviewPublisher) Option {
	return func(o *options) {
		o.previews = p
	}
}

// WithConnectLimiter rejects stream requests with 429 once the user's
// allowance is spent. The key is the user ID returned by the Authorizer.
func WithConnectLimiter(l ConnectLimiter) Option {
	return func(o *options) {
		o.limiter = l
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

func configOptions(cfg Config) []Option {
	return []Option{
		WithHeartbeatInterval(cfg.HeartbeatInterval),
		WithIdleTimeout(cfg.IdleTimeout),
		WithWriteTimeout(cfg.WriteTimeout),
		WithReadLimit(cfg.ReadLimit),
		WithOutboundBuffer(cfg.OutboundBuffer),
		WithDedupWindow(cfg.DedupWindow),
		WithAllowedOrigins(cfg.AllowedOrigins...),
	}
}
