package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/mailbox/core/event"
	"github.com/dmitrymomot/mailbox/core/eventlog"
	"github.com/dmitrymomot/mailbox/core/logger"
	"github.com/dmitrymomot/mailbox/pkg/broadcast"
	"github.com/dmitrymomot/mailbox/pkg/ratelimiter"
)

// Subscriber hands out live subscriptions. *broadcast.Hub[event.Event] satisfies it.
type Subscriber interface {
	Subscribe(topic string) (*broadcast.Subscription[event.Event], error)
}

// PreviewPublisher fans out ephemeral preview events. *event.Publisher satisfies it.
type PreviewPublisher interface {
	Publish(topic string, body event.Body)
}

// ConnectLimiter bounds how often one user may open streams.
// *ratelimiter.Limiter satisfies it.
type ConnectLimiter interface {
	Allow(ctx context.Context, key string) ratelimiter.Result
}

// Handler serves GET /v1/topics/{topic}/stream?since=<ms>.
// Each accepted request becomes one session streaming replayed and then live
// events over a WebSocket.
type Handler struct {
	hub    Subscriber
	log    eventlog.Replayer
	auth   Authorizer
	opts   *options
	logger *slog.Logger

	closing   chan struct{}
	closeOnce sync.Once

	active     atomic.Int64
	total      atomic.Int64
	rejected   atomic.Int64
	lagResyncs atomic.Int64
	replayed   atomic.Int64
	forwarded  atomic.Int64
	duplicates atomic.Int64
}

// Stats is a snapshot of handler counters.
type Stats struct {
	Active     int64
	Total      int64
	Rejected   int64 // requests refused before upgrading
	LagResyncs int64
	Replayed   int64 // events sent from the durable log
	Forwarded  int64 // events sent from the live feed
	Duplicates int64 // live or resync events dropped as already sent
}

// NewHandler creates a stream handler.
func NewHandler(hub Subscriber, log eventlog.Replayer, auth Authorizer, opts ...Option) *Handler {
	o := &options{
		heartbeat:      DefaultHeartbeatInterval,
		idleTimeout:    DefaultIdleTimeout,
		writeTimeout:   DefaultWriteTimeout,
		readLimit:      DefaultReadLimit,
		outboundBuffer: DefaultOutboundBuffer,
		dedupWindow:    DefaultDedupWindow,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clock:  clock.New(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Handler{
		hub:     hub,
		log:     log,
		auth:    auth,
		opts:    o,
		logger:  o.logger.With(logger.Component("stream")),
		closing: make(chan struct{}),
	}
}

// NewHandlerFromConfig creates a handler from configuration. Options override config values.
func NewHandlerFromConfig(cfg Config, hub Subscriber, log eventlog.Replayer, auth Authorizer, opts ...Option) *Handler {
	return NewHandler(hub, log, auth, append(configOptions(cfg), opts...)...)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.closing:
		h.reject(w, r, http.StatusServiceUnavailable, ErrSessionClosed)
		return
	default:
	}

	topic, since, err := parseRequest(r)
	if err != nil {
		h.reject(w, r, http.StatusBadRequest, err)
		return
	}

	userID, err := h.auth.Authorize(r, topic)
	if err != nil {
		h.reject(w, r, authStatus(err), err)
		return
	}

	if h.opts.limiter != nil {
		if res := h.opts.limiter.Allow(r.Context(), userID); !res.Allowed {
			retry := res.RetryAfter(h.opts.clock.Now())
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			h.reject(w, r, http.StatusTooManyRequests, ErrRateLimited)
			return
		}
	}

	s := newSession(h, topic, userID, since)
	s.setState(StateUpgrading)

	conn, err := h.opts.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an error response.
		h.rejected.Add(1)
		h.logger.WarnContext(r.Context(), "websocket upgrade failed",
			logger.Topic(topic),
			logger.Error(err))
		return
	}

	h.total.Add(1)
	h.active.Add(1)
	defer h.active.Add(-1)

	s.run(r.Context(), conn)
}

// Close ends every running session with a going-away close frame and refuses
// new ones. Hijacked connections are not tracked by http.Server.Shutdown, so
// call Close before shutting the server down.
func (h *Handler) Close() {
	h.closeOnce.Do(func() {
		close(h.closing)
	})
}

func (h *Handler) Stats() Stats {
	return Stats{
		Active:     h.active.Load(),
		Total:      h.total.Load(),
		Rejected:   h.rejected.Load(),
		LagResyncs: h.lagResyncs.Load(),
		Replayed:   h.replayed.Load(),
		Forwarded:  h.forwarded.Load(),
		Duplicates: h.duplicates.Load(),
	}
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request, status int, err error) {
	h.rejected.Add(1)
	h.logger.DebugContext(r.Context(), "stream request rejected",
		logger.Path(r.URL.Path),
		slog.Int("status", status),
		logger.Error(err))
	http.Error(w, http.StatusText(status), status)
}

func parseRequest(r *http.Request) (string, int64, error) {
	topic := r.PathValue("topic")
	if topic == "" {
		topic = r.URL.Query().Get("topic")
	}
	if topic == "" {
		return "", 0, ErrMissingTopic
	}

	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			return "", 0, ErrInvalidSince
		}
		since = v
	}
	return topic, since, nil
}

func authStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrTopicNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
