package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailbox/core/event"
	"github.com/dmitrymomot/mailbox/core/eventlog"
	"github.com/dmitrymomot/mailbox/pkg/broadcast"
)

// connPair returns the server and client ends of one WebSocket connection.
func connPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	serverConn := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{}
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConn <- c
	}))
	t.Cleanup(srv.Close)

	client, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	server := <-serverConn
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return server, client
}

func storeEvent(t *testing.T, store *eventlog.MemoryStore, id string) (event.Envelope, eventlog.Entry) {
	t.Helper()
	env, err := event.NewEnvelope(event.MessageCreated{ChannelID: "X", MessageID: id})
	require.NoError(t, err)
	data, err := env.Encode()
	require.NoError(t, err)
	entry, err := store.Append(context.Background(), "X", data)
	require.NoError(t, err)
	return env, entry
}

func TestSession_ResyncAfterLagSkipsForwarded(t *testing.T) {
	t.Parallel()

	store := eventlog.NewMemoryStore()
	e1, entry1 := storeEvent(t, store, "e1")
	e2, _ := storeEvent(t, store, "e2")
	e3, _ := storeEvent(t, store, "e3")

	h := NewHandler(broadcast.NewHub[event.Event](), store, HeaderAuthorizer("X-User-ID"))
	s := newSession(h, "X", "u", 0)
	server, client := connPair(t)
	s.conn = server

	// e1 already went out live before the subscriber fell behind.
	s.dedup.add(e1.ID, entry1.Timestamp)

	require.NoError(t, s.onLive(context.Background(), liveItem{err: &broadcast.LagError{Skipped: 2}}))

	var frames []ServerFrame
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	for range 3 {
		_, data, err := client.ReadMessage()
		require.NoError(t, err)
		var f ServerFrame
		require.NoError(t, json.Unmarshal(data, &f))
		frames = append(frames, f)
	}

	assert.Equal(t, FrameLagged, frames[0].Type)
	assert.Equal(t, uint64(2), frames[0].Skipped)

	var ids []uuid.UUID
	for _, f := range frames[1:] {
		require.Equal(t, FrameEvent, f.Type)
		env, err := event.Decode(f.Event)
		require.NoError(t, err)
		ids = append(ids, env.ID)
	}
	assert.Equal(t, []uuid.UUID{e2.ID, e3.ID}, ids)

	st := h.Stats()
	assert.Equal(t, int64(1), st.LagResyncs)
	assert.Equal(t, int64(1), st.Duplicates)
	assert.Equal(t, int64(2), st.Replayed)
}

func TestSession_StateTransitions(t *testing.T) {
	t.Parallel()

	h := NewHandler(broadcast.NewHub[event.Event](), eventlog.NewMemoryStore(), HeaderAuthorizer("X-User-ID"))
	s := newSession(h, "X", "u", 0)
	assert.Equal(t, StateConnecting, s.State())

	server, client := connPair(t)
	s.setState(StateUpgrading)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.run(context.Background(), server)
	}()
	require.Eventually(t, func() bool { return s.State() == StateStreaming }, time.Second, time.Millisecond)

	_ = client.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end after the client went away")
	}
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, "closed", s.State().String())
}

func TestDedup(t *testing.T) {
	t.Parallel()

	d := newDedup(100)
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	d.add(a, 1000)
	d.add(b, 1050)
	assert.True(t, d.seen(a))
	assert.True(t, d.seen(b))
	assert.Equal(t, int64(950), d.floor())

	// Moving past the window forgets old IDs.
	d.add(c, 1300)
	assert.False(t, d.seen(a))
	assert.False(t, d.seen(b))
	assert.True(t, d.seen(c))

	// Events older than the window are not remembered at all.
	old := uuid.New()
	d.add(old, 10)
	assert.False(t, d.seen(old))
}

func TestSession_ResyncCoversSameMillisecond(t *testing.T) {
	t.Parallel()

	clk := clock.NewMock()
	clk.Set(time.UnixMilli(500))
	store := eventlog.NewMemoryStore(eventlog.WithClock(clk))
	e1, entry1 := storeEvent(t, store, "e1")
	e2, _ := storeEvent(t, store, "e2")
	e3, _ := storeEvent(t, store, "e3")

	h := NewHandler(broadcast.NewHub[event.Event](), store, HeaderAuthorizer("X-User-ID"),
		WithDedupWindow(0))
	assert.Equal(t, DefaultDedupWindow, h.opts.dedupWindow, "zero window is ignored")

	s := newSession(h, "X", "u", 0)
	s.dedup = newDedup(0)
	server, client := connPair(t)
	s.conn = server

	s.dedup.add(e1.ID, entry1.Timestamp)
	assert.Less(t, s.dedup.floor(), entry1.Timestamp)

	require.NoError(t, s.onLive(context.Background(), liveItem{err: &broadcast.LagError{Skipped: 2}}))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ids []uuid.UUID
	for i := range 3 {
		_, data, err := client.ReadMessage()
		require.NoError(t, err)
		var f ServerFrame
		require.NoError(t, json.Unmarshal(data, &f))
		if i == 0 {
			require.Equal(t, FrameLagged, f.Type)
			continue
		}
		env, err := event.Decode(f.Event)
		require.NoError(t, err)
		ids = append(ids, env.ID)
	}
	assert.Equal(t, []uuid.UUID{e2.ID, e3.ID}, ids)
}
