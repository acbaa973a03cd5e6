package stream_test

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailbox/core/event"
	"github.com/dmitrymomot/mailbox/core/eventlog"
	"github.com/dmitrymomot/mailbox/core/stream"
	"github.com/dmitrymomot/mailbox/pkg/broadcast"
	"github.com/dmitrymomot/mailbox/pkg/ratelimiter"
)

type fixture struct {
	clock   *clock.Mock
	hub     *broadcast.Hub[event.Event]
	store   *eventlog.MemoryStore
	pub     *event.Publisher
	handler *stream.Handler
	server  *httptest.Server
}

func newFixture(t *testing.T, opts ...stream.Option) *fixture {
	t.Helper()

	f := &fixture{clock: clock.NewMock()}
	f.clock.Set(time.UnixMilli(1))
	f.hub = broadcast.NewHub[event.Event]()
	f.store = eventlog.NewMemoryStore(eventlog.WithClock(f.clock))
	f.pub = event.NewPublisher(f.store, f.hub, event.WithClock(f.clock))

	opts = append([]stream.Option{stream.WithClock(f.clock), stream.WithPreviewPublisher(f.pub)}, opts...)
	f.handler = stream.NewHandler(f.hub, f.store, stream.HeaderAuthorizer("X-User-ID"), opts...)

	mux := http.NewServeMux()
	mux.Handle("GET /v1/topics/{topic}/stream", f.handler)
	f.server = httptest.NewServer(mux)

	t.Cleanup(func() {
		f.handler.Close()
		f.server.Close()
		f.hub.Close()
	})
	return f
}

func (f *fixture) dial(t *testing.T, topic string, since int64) *websocket.Conn {
	t.Helper()
	u := fmt.Sprintf("ws%s/v1/topics/%s/stream?since=%d", strings.TrimPrefix(f.server.URL, "http"), topic, since)
	conn, resp, err := websocket.DefaultDialer.Dial(u, http.Header{"X-User-ID": []string{"user-1"}})
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (f *fixture) waitSubscribers(t *testing.T, topic string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return f.hub.SubscriberCount(topic) == n }, 2*time.Second, 5*time.Millisecond)
}

func (f *fixture) publishAt(t *testing.T, ms int64, topic string, body event.Body) {
	t.Helper()
	f.clock.Set(time.UnixMilli(ms))
	require.NoError(t, f.pub.PublishSync(context.Background(), topic, body))
}

func readFrame(t *testing.T, conn *websocket.Conn) stream.ServerFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f stream.ServerFrame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func readEvent(t *testing.T, conn *websocket.Conn) (stream.ServerFrame, event.Envelope) {
	t.Helper()
	f := readFrame(t, conn)
	require.Equal(t, stream.FrameEvent, f.Type)
	env, err := event.Decode(f.Event)
	require.NoError(t, err)
	return f, env
}

func messageID(t *testing.T, env event.Envelope) string {
	t.Helper()
	body, err := env.Body()
	require.NoError(t, err)
	return body.(*event.MessageCreated).MessageID
}

func TestStream_EndToEnd(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	a := f.dial(t, "X", 0)
	f.waitSubscribers(t, "X", 1)

	f.publishAt(t, 100, "X", event.MessageCreated{ChannelID: "X", MessageID: "e1"})
	f.publishAt(t, 200, "X", event.MessageCreated{ChannelID: "X", MessageID: "e2"})

	fr, env := readEvent(t, a)
	assert.Equal(t, "X", fr.Topic)
	assert.Equal(t, int64(100), fr.TS)
	assert.Equal(t, "e1", messageID(t, env))

	fr, env = readEvent(t, a)
	assert.Equal(t, int64(200), fr.TS)
	assert.Equal(t, "e2", messageID(t, env))

	c := f.dial(t, "X", 150)
	f.waitSubscribers(t, "X", 2)

	fr, env = readEvent(t, c)
	assert.Equal(t, int64(200), fr.TS)
	assert.Equal(t, "e2", messageID(t, env))

	// The next thing C sees is new live traffic, not e1.
	f.publishAt(t, 300, "X", event.MessageCreated{ChannelID: "X", MessageID: "e3"})
	_, env = readEvent(t, c)
	assert.Equal(t, "e3", messageID(t, env))
	_, env = readEvent(t, a)
	assert.Equal(t, "e3", messageID(t, env))
}

func TestStream_ReplayLiveBoundaryDedup(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	env, err := event.NewEnvelope(event.MessageCreated{ChannelID: "X", MessageID: "boundary"})
	require.NoError(t, err)
	data, err := env.Encode()
	require.NoError(t, err)
	entry, err := f.store.Append(context.Background(), "X", data)
	require.NoError(t, err)

	conn := f.dial(t, "X", 0)
	f.waitSubscribers(t, "X", 1)

	// The same event also arrives on the live path.
	f.hub.Publish("X", event.Event{Topic: "X", Timestamp: entry.Timestamp, Data: data})
	f.publishAt(t, 50, "X", event.MessageCreated{ChannelID: "X", MessageID: "after"})

	_, got := readEvent(t, conn)
	assert.Equal(t, env.ID, got.ID)
	_, got = readEvent(t, conn)
	assert.Equal(t, "after", messageID(t, got))

	require.Eventually(t, func() bool { return f.handler.Stats().Duplicates == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), f.handler.Stats().Replayed)
}

func TestStream_ClientHeartbeat(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.clock.Set(time.UnixMilli(4242))

	conn := f.dial(t, "X", 0)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`)))

	fr := readFrame(t, conn)
	assert.Equal(t, stream.FrameHeartbeat, fr.Type)
	assert.Equal(t, int64(4242), fr.TS)
}

func TestStream_ServerHeartbeat(t *testing.T) {
	t.Parallel()

	hub := broadcast.NewHub[event.Event]()
	defer hub.Close()
	h := stream.NewHandler(hub, eventlog.NewMemoryStore(), stream.HeaderAuthorizer("X-User-ID"),
		stream.WithHeartbeatInterval(20*time.Millisecond))
	defer h.Close()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.SetPathValue("topic", "X")
		h.ServeHTTP(w, r)
	}))
	defer srv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), http.Header{"X-User-ID": []string{"u"}})
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer conn.Close()

	for range 2 {
		fr := readFrame(t, conn)
		assert.Equal(t, stream.FrameHeartbeat, fr.Type)
		assert.NotZero(t, fr.TS)
	}
}

func TestStream_UnknownFramesKeepConnectionOpen(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	conn := f.dial(t, "X", 0)

	for _, msg := range []string{`not json`, `{"type":"bogus"}`, `{"type":"preview","data":"oops"}`} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
	}
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`)))

	assert.Equal(t, stream.FrameHeartbeat, readFrame(t, conn).Type)
}

func TestStream_PreviewIsFannedOutNotStored(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	sender := f.dial(t, "X", 0)
	watcher := f.dial(t, "X", 0)
	f.waitSubscribers(t, "X", 2)

	require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte(`{"type":"preview","data":{"content":"draft"}}`)))

	_, env := readEvent(t, watcher)
	assert.Equal(t, event.TypePreview, env.Type)
	body, err := env.Body()
	require.NoError(t, err)
	preview := body.(*event.Preview)
	assert.Equal(t, "draft", preview.Content)
	assert.Equal(t, "user-1", preview.UserID)
	assert.Equal(t, "X", preview.ChannelID)

	assert.Zero(t, f.store.Len("X"))
}

func TestStream_IdleTimeout(t *testing.T) {
	t.Parallel()
	f := newFixture(t, stream.WithIdleTimeout(50*time.Millisecond))
	conn := f.dial(t, "X", 0)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)

	f.waitSubscribers(t, "X", 0)
	require.Eventually(t, func() bool { return f.handler.Stats().Active == 0 }, time.Second, 5*time.Millisecond)
}

func TestStream_ClientCloseDropsSubscription(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	conn := f.dial(t, "X", 0)
	f.waitSubscribers(t, "X", 1)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))

	f.waitSubscribers(t, "X", 0)
	assert.Equal(t, 1, f.hub.PruneIdle())
}

func TestStream_Close(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	conn := f.dial(t, "X", 0)
	f.waitSubscribers(t, "X", 1)

	f.handler.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	resp, err := http.Get(f.server.URL + "/v1/topics/X/stream")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHandler_RejectsBeforeUpgrade(t *testing.T) {
	t.Parallel()

	auth := stream.AuthorizerFunc(func(r *http.Request, topic string) (string, error) {
		switch topic {
		case "anon":
			return "", stream.ErrUnauthorized
		case "private":
			return "", fmt.Errorf("member check: %w", stream.ErrForbidden)
		case "missing":
			return "", stream.ErrTopicNotFound
		case "broken":
			return "", errors.New("database down")
		}
		return "u", nil
	})
	h := stream.NewHandler(broadcast.NewHub[event.Event](), eventlog.NewMemoryStore(), auth)

	tests := []struct {
		name   string
		topic  string
		query  string
		status int
	}{
		{"unauthorized", "anon", "", http.StatusUnauthorized},
		{"forbidden", "private", "", http.StatusForbidden},
		{"topic not found", "missing", "", http.StatusNotFound},
		{"authorizer failure", "broken", "", http.StatusInternalServerError},
		{"missing topic", "", "", http.StatusBadRequest},
		{"non-numeric since", "ok", "since=abc", http.StatusBadRequest},
		{"negative since", "ok", "since=-5", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/v1/topics/x/stream?"+tt.query, nil)
			r.SetPathValue("topic", tt.topic)
			w := httptest.NewRecorder()

			h.ServeHTTP(w, r)
			assert.Equal(t, tt.status, w.Code)
		})
	}

	assert.Equal(t, int64(len(tests)), h.Stats().Rejected)
}

func TestHandler_TopicFromQuery(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var seen string
	auth := stream.AuthorizerFunc(func(r *http.Request, topic string) (string, error) {
		mu.Lock()
		seen = topic
		mu.Unlock()
		return "", stream.ErrForbidden
	})
	h := stream.NewHandler(broadcast.NewHub[event.Event](), eventlog.NewMemoryStore(), auth)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream?topic=fromquery", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	mu.Lock()
	assert.Equal(t, "fromquery", seen)
	mu.Unlock()
}

func TestHandler_NonWebSocketRequest(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/v1/topics/X/stream", nil)
	require.NoError(t, err)
	req.Header.Set("X-User-ID", "u")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, f.hub.SubscriberCount("X"))
}

func TestHeaderAuthorizer(t *testing.T) {
	t.Parallel()
	auth := stream.HeaderAuthorizer("X-User-ID")

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := auth.Authorize(r, "t")
	assert.ErrorIs(t, err, stream.ErrUnauthorized)

	r.Header.Set("X-User-ID", "u-9")
	id, err := auth.Authorize(r, "t")
	require.NoError(t, err)
	assert.Equal(t, "u-9", id)
}

func TestHandler_ConnectLimiter(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	limiter, err := ratelimiter.New(ratelimiter.Config{
		Capacity:       1,
		RefillRate:     1,
		RefillInterval: 6 * time.Second,
	}, ratelimiter.WithClock(mock))
	require.NoError(t, err)

	h := stream.NewHandler(broadcast.NewHub[event.Event](), eventlog.NewMemoryStore(),
		stream.HeaderAuthorizer("X-User-ID"),
		stream.WithClock(mock),
		stream.WithConnectLimiter(limiter))

	request := func(user string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/v1/topics/general/stream", nil)
		r.SetPathValue("topic", "general")
		r.Header.Set("X-User-ID", user)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	// The first request spends the token and then fails the upgrade, since it
	// is not a WebSocket handshake.
	assert.Equal(t, http.StatusBadRequest, request("alice").Code)

	w := request("alice")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "6", w.Header().Get("Retry-After"))

	// Other users keep their own allowance.
	assert.Equal(t, http.StatusBadRequest, request("bob").Code)

	mock.Add(6 * time.Second)
	assert.Equal(t, http.StatusBadRequest, request("alice").Code)
	assert.Equal(t, int64(1), limiter.Stats().Denied)
}

// unavailableLog fails every replay, like a store whose backend is down.
type unavailableLog struct{}

func (unavailableLog) Replay(context.Context, string, int64) iter.Seq2[eventlog.Entry, error] {
	return func(yield func(eventlog.Entry, error) bool) {
		yield(eventlog.Entry{}, errors.New("redis down"))
	}
}

func TestStream_ReplayUnavailableClosesWithReason(t *testing.T) {
	t.Parallel()

	hub := broadcast.NewHub[event.Event]()
	defer hub.Close()
	h := stream.NewHandler(hub, unavailableLog{}, stream.HeaderAuthorizer("X-User-ID"))
	defer h.Close()

	mux := http.NewServeMux()
	mux.Handle("GET /v1/topics/{topic}/stream", h)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/topics/room/stream?since=10"
	conn, resp, err := websocket.DefaultDialer.Dial(u, http.Header{"X-User-ID": []string{"user-1"}})
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseTryAgainLater, closeErr.Code)
	assert.Equal(t, "replay unavailable", closeErr.Text)

	require.Eventually(t, func() bool { return hub.SubscriberCount("room") == 0 }, 2*time.Second, 5*time.Millisecond)
}
