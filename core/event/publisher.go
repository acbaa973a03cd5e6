package event

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dmitrymomot/mailbox/core/eventlog"
	"github.com/dmitrymomot/mailbox/core/logger"
	"github.com/dmitrymomot/mailbox/pkg/async"
)

// Fanout delivers an event to the live subscribers of a topic and returns how
// many there were. *broadcast.Hub[Event] satisfies it.
type Fanout interface {
	Publish(topic string, e Event) int
}

// Publisher persists events to the durable log and then fans them out live.
//
// Persistence is best effort: when the append fails the event is still
// delivered to connected subscribers, stamped with the publisher clock.
type Publisher struct {
	log     eventlog.Appender
	hub     Fanout
	clock   clock.Clock
	logger  *slog.Logger
	tracker *async.Tracker

	published       atomic.Int64
	persisted       atomic.Int64
	persistFailures atomic.Int64
	ephemeral       atomic.Int64
	delivered       atomic.Int64
	encodeFailures  atomic.Int64
	dropped         atomic.Int64
}

// PublisherStats is a snapshot of publisher counters.
type PublisherStats struct {
	Published       int64 // events handed to Publish or PublishSync
	Persisted       int64
	PersistFailures int64
	Ephemeral       int64 // events that skipped the log by type
	Delivered       int64 // sum of live subscribers reached
	EncodeFailures  int64
	Dropped         int64 // fire-and-forget publishes refused after Close
	InFlight        int64 // fire-and-forget publishes still running
}

// Config holds publisher settings.
type Config struct {
	PersistTimeout time.Duration `env:"EVENT_PERSIST_TIMEOUT" envDefault:"5s"`
}

const DefaultPersistTimeout = 5 * time.Second

// PublisherOption configures a Publisher.
type PublisherOption func(*publisherOptions)

type publisherOptions struct {
	persistTimeout time.Duration
	clock          clock.Clock
	logger         *slog.Logger
}

// WithPersistTimeout bounds each fire-and-forget publish.
func WithPersistTimeout(d time.Duration) PublisherOption {
	return func(o *publisherOptions) {
		if d > 0 {
			o.persistTimeout = d
		}
	}
}

// WithClock sets the clock used to stamp events that could not be persisted
// and ephemeral events.
func WithClock(c clock.Clock) PublisherOption {
	return func(o *publisherOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

func WithLogger(l *slog.Logger) PublisherOption {
	return func(o *publisherOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewPublisher creates a publisher writing to log and fanning out through hub.
func NewPublisher(log eventlog.Appender, hub Fanout, opts ...PublisherOption) *Publisher {
	o := &publisherOptions{
		persistTimeout: DefaultPersistTimeout,
		clock:          clock.New(),
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Publisher{
		log:     log,
		hub:     hub,
		clock:   o.clock,
		logger:  o.logger.With(logger.Component("event.publisher")),
		tracker: async.NewTracker(o.persistTimeout),
	}
}

// NewPublisherFromConfig creates a publisher from configuration. Options override config values.
func NewPublisherFromConfig(cfg Config, log eventlog.Appender, hub Fanout, opts ...PublisherOption) *Publisher {
	return NewPublisher(log, hub, append([]PublisherOption{WithPersistTimeout(cfg.PersistTimeout)}, opts...)...)
}

// Publish sends body to topic without waiting. The event is appended to the
// log and then fanned out in a background goroutine. Failures are logged.
//
// Two unawaited Publish calls for one topic may be delivered in either
// order; use PublishSync when order matters.
func (p *Publisher) Publish(topic string, body Body) {
	env, data, err := p.encode(topic, body)
	if err != nil {
		p.logger.Error("dropping event", logger.Topic(topic), logger.Error(err))
		return
	}
	f := p.tracker.Go(context.Background(), func(ctx context.Context) error {
		return p.deliver(ctx, topic, env, data)
	})
	// A refused future is already resolved; running work never reports
	// ErrTrackerClosed.
	if f.IsComplete() && errors.Is(f.Await(context.Background()), async.ErrTrackerClosed) {
		p.dropped.Add(1)
		p.logger.Warn("publisher closed, dropping event",
			logger.Topic(topic),
			logger.ID("event_id", env.ID.String()),
			logger.Type(string(env.Type)))
	}
}

// PublishSync persists and fans out body before returning. A persist failure
// is returned wrapped in ErrPersistFailed, but the event was still fanned out.
func (p *Publisher) PublishSync(ctx context.Context, topic string, body Body) error {
	env, data, err := p.encode(topic, body)
	if err != nil {
		return err
	}
	return p.deliver(ctx, topic, env, data)
}

// Wait blocks until every fire-and-forget publish has finished or ctx ends.
func (p *Publisher) Wait(ctx context.Context) error {
	return p.tracker.Wait(ctx)
}

// Close stops accepting fire-and-forget publishes and waits for running ones.
func (p *Publisher) Close(ctx context.Context) error {
	return p.tracker.Close(ctx)
}

func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		Published:       p.published.Load(),
		Persisted:       p.persisted.Load(),
		PersistFailures: p.persistFailures.Load(),
		Ephemeral:       p.ephemeral.Load(),
		Delivered:       p.delivered.Load(),
		EncodeFailures:  p.encodeFailures.Load(),
		Dropped:         p.dropped.Load(),
		InFlight:        p.tracker.InFlight(),
	}
}

func (p *Publisher) encode(topic string, body Body) (Envelope, []byte, error) {
	if topic == "" {
		p.encodeFailures.Add(1)
		return Envelope{}, nil, ErrEmptyTopic
	}
	env, err := NewEnvelope(body)
	if err != nil {
		p.encodeFailures.Add(1)
		return Envelope{}, nil, err
	}
	data, err := env.Encode()
	if err != nil {
		p.encodeFailures.Add(1)
		return Envelope{}, nil, err
	}
	p.published.Add(1)
	return env, data, nil
}

func (p *Publisher) deliver(ctx context.Context, topic string, env Envelope, data []byte) error {
	ev := Event{Topic: topic, Data: data}

	var persistErr error
	if env.Type.Ephemeral() {
		p.ephemeral.Add(1)
		ev.Timestamp = p.clock.Now().UnixMilli()
	} else if entry, err := p.log.Append(ctx, topic, data); err != nil {
		p.persistFailures.Add(1)
		persistErr = fmt.Errorf("%w: %w", ErrPersistFailed, err)
		ev.Timestamp = p.clock.Now().UnixMilli()
		p.logger.WarnContext(ctx, "event not persisted, delivering live only",
			logger.Topic(topic),
			logger.ID("event_id", env.ID.String()),
			logger.Type(string(env.Type)),
			logger.Error(err))
	} else {
		p.persisted.Add(1)
		ev.Timestamp = entry.Timestamp
	}

	n := p.hub.Publish(topic, ev)
	p.delivered.Add(int64(n))
	p.logger.DebugContext(ctx, "event published",
		logger.Topic(topic),
		logger.Type(string(env.Type)),
		logger.Count("subscribers", n))
	return persistErr
}
