package ratelimiter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

type bucket struct {
	tokens     int
	lastRefill time.Time
	lastAccess time.Time
}

// Result is the outcome of a token request.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time // when the next refill happens
}

// RetryAfter returns how long to wait before the next refill, relative to now.
func (r Result) RetryAfter(now time.Time) time.Duration {
	return max(r.ResetAt.Sub(now), 0)
}

// Limiter is an in-memory keyed token bucket. Buckets idle longer than
// StaleAfter are dropped by the cleanup loop started with Start or Run.
type Limiter struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	buckets map[string]*bucket
	cancel  context.CancelFunc

	running atomic.Bool
	created atomic.Int64
	removed atomic.Int64
	allowed atomic.Int64
	denied  atomic.Int64
}

// Stats is a snapshot of limiter state and counters.
type Stats struct {
	Buckets   int
	Created   int64
	Removed   int64 // stale buckets dropped by cleanup
	Allowed   int64
	Denied    int64
	IsRunning bool
}

type Option func(*Limiter)

func WithClock(c clock.Clock) Option {
	return func(l *Limiter) {
		if c != nil {
			l.clock = c
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a limiter. Zero StaleAfter and CleanupInterval fall back to defaults.
func New(cfg Config, opts ...Option) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	l := &Limiter{
		cfg:     cfg,
		clock:   clock.New(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		buckets: make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Allow takes one token for key.
func (l *Limiter) Allow(_ context.Context, key string) Result {
	res, _ := l.take(key, 1)
	return res
}

// AllowN takes n tokens for key. A denied request consumes nothing.
func (l *Limiter) AllowN(_ context.Context, key string, n int) (Result, error) {
	if n <= 0 || n > l.cfg.Capacity {
		return Result{}, ErrInvalidTokenCount
	}
	return l.take(key, n)
}

func (l *Limiter) take(key string, n int) (Result, error) {
	now := l.clock.Now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.cfg.Capacity, lastRefill: now}
		l.buckets[key] = b
		l.created.Add(1)
	}

	// Cap elapsed intervals so a long-idle bucket cannot overflow.
	maxIntervals := int64(l.cfg.Capacity/l.cfg.RefillRate + 1)
	intervals := min(int64(now.Sub(b.lastRefill)/l.cfg.RefillInterval), maxIntervals)
	if intervals > 0 {
		b.tokens = min(b.tokens+int(intervals)*l.cfg.RefillRate, l.cfg.Capacity)
		b.lastRefill = b.lastRefill.Add(time.Duration(intervals) * l.cfg.RefillInterval)
		if b.tokens == l.cfg.Capacity {
			b.lastRefill = now
		}
	}
	b.lastAccess = now

	res := Result{ResetAt: b.lastRefill.Add(l.cfg.RefillInterval)}
	if b.tokens >= n {
		b.tokens -= n
		res.Allowed = true
	}
	res.Remaining = b.tokens
	l.mu.Unlock()

	if res.Allowed {
		l.allowed.Add(1)
	} else {
		l.denied.Add(1)
	}
	return res, nil
}

// Reset forgets key, restoring its full capacity.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}

// RemoveStale drops buckets idle longer than StaleAfter and returns how many.
func (l *Limiter) RemoveStale() int {
	now := l.clock.Now()
	l.mu.Lock()
	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastAccess) > l.cfg.StaleAfter {
			delete(l.buckets, key)
			removed++
		}
	}
	l.mu.Unlock()
	l.removed.Add(int64(removed))
	return removed
}

// Start runs the cleanup loop until ctx is cancelled or Stop is called. It blocks.
func (l *Limiter) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.cancel != nil {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.mu.Unlock()

	l.running.Store(true)
	defer func() {
		l.running.Store(false)
		l.mu.Lock()
		l.cancel = nil
		l.mu.Unlock()
		cancel()
	}()

	l.logger.InfoContext(ctx, "rate limiter cleanup started",
		slog.Duration("cleanup_interval", l.cfg.CleanupInterval),
		slog.Duration("stale_after", l.cfg.StaleAfter))

	ticker := l.clock.Ticker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := l.RemoveStale(); n > 0 {
				l.logger.DebugContext(ctx, "removed stale rate limit buckets", slog.Int("removed", n))
			}
		}
	}
}

// Stop cancels a running Start.
func (l *Limiter) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel == nil {
		return ErrNotStarted
	}
	l.cancel()
	return nil
}

// Run returns a function for errgroup that runs cleanup until ctx ends.
func (l *Limiter) Run(ctx context.Context) func() error {
	return func() error {
		err := l.Start(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	}
}

func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	n := len(l.buckets)
	l.mu.Unlock()
	return Stats{
		Buckets:   n,
		Created:   l.created.Load(),
		Removed:   l.removed.Load(),
		Allowed:   l.allowed.Load(),
		Denied:    l.denied.Load(),
		IsRunning: l.running.Load(),
	}
}
