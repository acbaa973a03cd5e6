package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/mailbox/core/eventlog"
	"github.com/dmitrymomot/mailbox/core/logger"
)

// TopicPruner drops topics nobody listens to. *broadcast.Hub satisfies it.
type TopicPruner interface {
	PruneIdle() int
}

// Housekeeper runs two independent periodic loops: one removes idle topics
// from the hub, the other prunes durable log entries older than the retention
// window. A failed iteration is logged and the loop carries on.
type Housekeeper struct {
	hub TopicPruner
	log eventlog.Pruner

	sweepInterval time.Duration
	pruneInterval time.Duration
	retention     time.Duration
	pruneTimeout  time.Duration
	pruneOnStart  bool
	clock         clock.Clock
	logger        *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running atomic.Bool

	sweeps         atomic.Int64
	topicsRemoved  atomic.Int64
	prunes         atomic.Int64
	entriesRemoved atomic.Int64
	pruneErrors    atomic.Int64
}

// Stats is a snapshot of housekeeping counters.
type Stats struct {
	Sweeps         int64
	TopicsRemoved  int64
	Prunes         int64
	EntriesRemoved int64
	PruneErrors    int64 // per-topic prune or scan failures
	IsRunning      bool
}

// New creates a housekeeper. Loops do not run until Start or Run.
func New(hub TopicPruner, log eventlog.Pruner, opts ...Option) (*Housekeeper, error) {
	if hub == nil || log == nil {
		return nil, ErrNilDependency
	}
	o := &options{
		sweepInterval: DefaultTopicSweepInterval,
		pruneInterval: DefaultLogPruneInterval,
		retention:     DefaultRetention,
		pruneTimeout:  DefaultPruneTimeout,
		clock:         clock.New(),
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Housekeeper{
		hub:           hub,
		log:           log,
		sweepInterval: o.sweepInterval,
		pruneInterval: o.pruneInterval,
		retention:     o.retention,
		pruneTimeout:  o.pruneTimeout,
		pruneOnStart:  o.pruneOnStart,
		clock:         o.clock,
		logger:        o.logger.With(logger.Component("housekeeping")),
	}, nil
}

// NewFromConfig creates a housekeeper from configuration. Options override config values.
func NewFromConfig(cfg Config, hub TopicPruner, log eventlog.Pruner, opts ...Option) (*Housekeeper, error) {
	allOpts := append([]Option{
		WithTopicSweepInterval(cfg.TopicSweepInterval),
		WithLogPruneInterval(cfg.LogPruneInterval),
		WithRetention(cfg.Retention),
		WithPruneTimeout(cfg.PruneTimeout),
		WithPruneOnStart(cfg.PruneOnStart),
	}, opts...)
	return New(hub, log, allOpts...)
}

// SweepTopics removes idle hub topics once and returns how many were removed.
func (h *Housekeeper) SweepTopics(ctx context.Context) int {
	n := h.hub.PruneIdle()
	h.sweeps.Add(1)
	h.topicsRemoved.Add(int64(n))
	if n > 0 {
		h.logger.DebugContext(ctx, "idle topics removed", logger.Count("topics", n))
	}
	return n
}

// PruneLog removes log entries older than the retention window from every
// topic once. Failures on single topics do not stop the pass; they are
// combined into the returned error.
func (h *Housekeeper) PruneLog(ctx context.Context) (int64, error) {
	start := h.clock.Now()
	before := start.Add(-h.retention).UnixMilli()

	var topics []string
	var errs error
	for topic, err := range h.log.Topics(ctx) {
		if err != nil {
			errs = multierr.Append(errs, err)
			h.pruneErrors.Add(1)
			break
		}
		topics = append(topics, topic)
	}

	var total int64
	for _, topic := range topics {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		n, err := h.log.Prune(ctx, topic, before)
		if err != nil {
			h.pruneErrors.Add(1)
			errs = multierr.Append(errs, fmt.Errorf("topic %s: %w", topic, err))
			continue
		}
		total += n
	}

	h.prunes.Add(1)
	h.entriesRemoved.Add(total)
	h.logger.InfoContext(ctx, "event log pruned",
		logger.Count("topics", len(topics)),
		slog.Int64("removed", total),
		logger.Timestamp(before),
		logger.Elapsed(start))
	return total, errs
}

// Start runs both loops until ctx is cancelled or Stop is called. It blocks.
func (h *Housekeeper) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.cancel != nil {
		h.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.mu.Unlock()

	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		h.mu.Lock()
		h.cancel = nil
		h.mu.Unlock()
		cancel()
	}()

	h.logger.InfoContext(ctx, "housekeeping started",
		slog.Duration("topic_sweep_interval", h.sweepInterval),
		slog.Duration("log_prune_interval", h.pruneInterval),
		slog.Duration("retention", h.retention))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.loop(gctx, h.sweepInterval, false, func(ctx context.Context) {
			h.SweepTopics(ctx)
		})
	})
	g.Go(func() error {
		return h.loop(gctx, h.pruneInterval, h.pruneOnStart, h.pruneOnce)
	})

	err := g.Wait()
	h.logger.InfoContext(context.Background(), "housekeeping stopped")
	return err
}

// Stop cancels a running Start.
func (h *Housekeeper) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel == nil {
		return ErrNotStarted
	}
	h.cancel()
	return nil
}

// Run returns a function for errgroup that runs the loops until ctx ends.
func (h *Housekeeper) Run(ctx context.Context) func() error {
	return func() error {
		err := h.Start(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	}
}

func (h *Housekeeper) Stats() Stats {
	return Stats{
		Sweeps:         h.sweeps.Load(),
		TopicsRemoved:  h.topicsRemoved.Load(),
		Prunes:         h.prunes.Load(),
		EntriesRemoved: h.entriesRemoved.Load(),
		PruneErrors:    h.pruneErrors.Load(),
		IsRunning:      h.running.Load(),
	}
}

func (h *Housekeeper) loop(ctx context.Context, interval time.Duration, immediately bool, fn func(context.Context)) error {
	ticker := h.clock.Ticker(interval)
	defer ticker.Stop()

	if immediately {
		fn(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (h *Housekeeper) pruneOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, h.pruneTimeout)
	defer cancel()

	if _, err := h.PruneLog(ctx); err != nil {
		h.logger.ErrorContext(ctx, "event log prune incomplete",
			logger.Errors(multierr.Errors(err)...))
	}
}
