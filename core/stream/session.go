package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/mailbox/core/event"
	"github.com/dmitrymomot/mailbox/core/logger"
	"github.com/dmitrymomot/mailbox/pkg/broadcast"
)

// State is the lifecycle stage of a session.
type State int32

const (
	StateConnecting State = iota
	StateUpgrading
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateUpgrading:
		return "upgrading"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type liveItem struct {
	ev  event.Event
	err error
}

type inbound struct {
	data []byte
	err  error
}

type session struct {
	h      *Handler
	id     string
	topic  string
	userID string
	since  int64
	state  atomic.Int32

	conn   *websocket.Conn
	sub    *broadcast.Subscription[event.Event]
	dedup  *dedup
	out    chan ServerFrame
	logger *slog.Logger
}

func newSession(h *Handler, topic, userID string, since int64) *session {
	id := uuid.NewString()
	return &session{
		h:      h,
		id:     id,
		topic:  topic,
		userID: userID,
		since:  since,
		dedup:  newDedup(h.opts.dedupWindow.Milliseconds()),
		out:    make(chan ServerFrame, h.opts.outboundBuffer),
		logger: h.logger.With(logger.SessionID(id), logger.Topic(topic)),
	}
}

func (s *session) setState(st State) {
	s.state.Store(int32(st))
}

func (s *session) State() State {
	return State(s.state.Load())
}

// run streams until the client goes away, a transport error occurs, or ctx ends.
func (s *session) run(parent context.Context, conn *websocket.Conn) {
	s.conn = conn
	ctx, cancel := context.WithCancel(parent)

	var wg sync.WaitGroup
	defer func() {
		s.close(cancel, &wg)
	}()

	sub, err := s.h.hub.Subscribe(s.topic)
	if err != nil {
		s.logger.WarnContext(ctx, "subscribe failed", logger.Error(err))
		s.writeClose(websocket.CloseTryAgainLater, "unavailable")
		return
	}
	s.sub = sub
	s.setState(StateStreaming)
	s.logger.DebugContext(ctx, "stream session started", slog.Int64("since", s.since))

	// Subscribed first, so anything published during replay is buffered live.
	// A client that cannot be caught up must reconnect with its watermark
	// instead of silently skipping to live events.
	if err := s.replay(ctx, s.since); err != nil {
		if errors.Is(err, ErrReplayFailed) {
			s.writeClose(websocket.CloseTryAgainLater, "replay unavailable")
		}
		s.logger.WarnContext(ctx, "initial replay failed", logger.Error(err))
		return
	}

	live := make(chan liveItem)
	in := make(chan inbound)
	wg.Add(2)
	go s.receiveLive(ctx, &wg, live)
	go s.readClient(ctx, &wg, in)

	heartbeat := s.h.opts.clock.Ticker(s.h.opts.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			s.writeClose(websocket.CloseGoingAway, "request cancelled")
			return

		case <-s.h.closing:
			s.writeClose(websocket.CloseGoingAway, "server shutting down")
			s.logger.InfoContext(ctx, "stream session closed by shutdown")
			return

		case item := <-live:
			if err := s.onLive(ctx, item); err != nil {
				s.logSessionEnd(ctx, err)
				return
			}

		case msg := <-in:
			if msg.err != nil {
				s.logSessionEnd(ctx, msg.err)
				return
			}
			s.onClientFrame(ctx, msg.data)

		case <-heartbeat.C:
			if err := s.write(heartbeatFrame(s.now())); err != nil {
				s.logSessionEnd(ctx, err)
				return
			}

		case f := <-s.out:
			if err := s.write(f); err != nil {
				s.logSessionEnd(ctx, err)
				return
			}
		}
	}
}

func (s *session) close(cancel context.CancelFunc, wg *sync.WaitGroup) {
	s.setState(StateClosed)
	cancel()
	if s.sub != nil {
		s.sub.Close()
	}
	_ = s.conn.Close()
	wg.Wait()
	s.logger.Debug("stream session closed")
}

func (s *session) logSessionEnd(ctx context.Context, err error) {
	switch {
	case errors.Is(err, broadcast.ErrClosed):
		s.writeClose(websocket.CloseGoingAway, "topic closed")
		s.logger.InfoContext(ctx, "topic closed, ending session")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		s.logger.DebugContext(ctx, "client closed stream")
	case errors.Is(err, ErrIdleTimeout):
		s.writeClose(websocket.ClosePolicyViolation, "idle timeout")
		s.logger.InfoContext(ctx, "stream idle timeout")
	default:
		s.logger.WarnContext(ctx, "stream transport error", logger.Error(err))
	}
}

// receiveLive pumps the subscription into live until ctx ends or the topic closes.
func (s *session) receiveLive(ctx context.Context, wg *sync.WaitGroup, live chan<- liveItem) {
	defer wg.Done()
	for {
		ev, err := s.sub.Recv(ctx)
		if err != nil && ctx.Err() != nil {
			return
		}
		select {
		case live <- liveItem{ev: ev, err: err}:
		case <-ctx.Done():
			return
		}
		if errors.Is(err, broadcast.ErrClosed) {
			return
		}
	}
}

// readClient pumps client frames into in. Every frame, ping and pong pushes
// the read deadline forward by the idle timeout.
func (s *session) readClient(ctx context.Context, wg *sync.WaitGroup, in chan<- inbound) {
	defer wg.Done()

	idle := s.h.opts.idleTimeout
	extend := func() { _ = s.conn.SetReadDeadline(time.Now().Add(idle)) }
	s.conn.SetReadLimit(s.h.opts.readLimit)
	extend()
	s.conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})
	s.conn.SetPingHandler(func(data string) error {
		extend()
		// Control frames may be written concurrently with the main loop.
		err := s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(s.h.opts.writeTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			var ne interface{ Timeout() bool }
			if errors.As(err, &ne) && ne.Timeout() {
				err = ErrIdleTimeout
			}
			select {
			case in <- inbound{err: err}:
			case <-ctx.Done():
			}
			return
		}
		extend()
		select {
		case in <- inbound{data: data}:
		case <-ctx.Done():
			return
		}
	}
}

func (s *session) onLive(ctx context.Context, item liveItem) error {
	var lag *broadcast.LagError
	switch {
	case item.err == nil:
		return s.forward(item.ev, false)
	case errors.As(item.err, &lag):
		return s.resync(ctx, lag.Skipped)
	default:
		return item.err
	}
}

// resync tells the client it lagged and refills the gap from the durable log.
func (s *session) resync(ctx context.Context, skipped uint64) error {
	s.h.lagResyncs.Add(1)
	s.logger.WarnContext(ctx, "subscriber lagged, resyncing from log",
		slog.Uint64("skipped", skipped))

	if err := s.write(laggedFrame(skipped)); err != nil {
		return err
	}
	after := max(s.since, s.dedup.floor())
	if err := s.replay(ctx, after); err != nil {
		// The live feed continues; the client can reconnect with its watermark.
		s.logger.WarnContext(ctx, "lag resync replay failed", logger.Error(err))
	}
	return nil
}

func (s *session) replay(ctx context.Context, after int64) error {
	for entry, err := range s.h.log.Replay(ctx, s.topic, after) {
		if err != nil {
			return fmt.Errorf("%w: %w", ErrReplayFailed, err)
		}
		if err := s.forward(event.Event{Topic: entry.Topic, Timestamp: entry.Timestamp, Data: entry.Data}, true); err != nil {
			return err
		}
	}
	return nil
}

// forward writes one event frame unless the same event was already sent.
func (s *session) forward(ev event.Event, replayed bool) error {
	env, err := event.Decode(ev.Data)
	if err == nil {
		if s.dedup.seen(env.ID) {
			s.h.duplicates.Add(1)
			return nil
		}
		s.dedup.add(env.ID, ev.Timestamp)
	} else {
		s.logger.Warn("forwarding undecodable event", logger.Error(err))
	}

	if err := s.write(eventFrame(s.topic, ev.Timestamp, ev.Data)); err != nil {
		return err
	}
	if replayed {
		s.h.replayed.Add(1)
	} else {
		s.h.forwarded.Add(1)
	}
	return nil
}

// onClientFrame handles one client message. Unknown or malformed messages are
// logged and ignored.
func (s *session) onClientFrame(ctx context.Context, data []byte) {
	f, err := decodeClientFrame(data)
	if err != nil {
		s.logger.DebugContext(ctx, "ignoring malformed client frame", logger.Error(err))
		return
	}

	switch f.Type {
	case FrameHeartbeat:
		s.enqueue(heartbeatFrame(s.now()))
	case FramePreview:
		s.onPreview(ctx, f.Data)
	default:
		s.logger.DebugContext(ctx, "ignoring client frame",
			logger.Type(f.Type),
			logger.Error(ErrUnknownMessage))
	}
}

func (s *session) onPreview(ctx context.Context, raw []byte) {
	if s.h.opts.previews == nil {
		s.logger.DebugContext(ctx, "previews disabled, ignoring frame")
		return
	}
	var p PreviewData
	if err := decodeJSON(raw, &p); err != nil {
		s.logger.DebugContext(ctx, "ignoring malformed preview", logger.Error(err))
		return
	}
	s.h.opts.previews.Publish(s.topic, event.Preview{
		ChannelID: s.topic,
		UserID:    s.userID,
		Content:   p.Content,
	})
}

// enqueue queues a reply for the main loop. A full queue drops the reply.
func (s *session) enqueue(f ServerFrame) {
	select {
	case s.out <- f:
	default:
		s.logger.Warn("outbound queue full, dropping frame", logger.Type(f.Type))
	}
}

func (s *session) write(f ServerFrame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return err
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.h.opts.writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *session) writeClose(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.h.opts.writeTimeout))
}

func (s *session) now() int64 {
	return s.h.opts.clock.Now().UnixMilli()
}
