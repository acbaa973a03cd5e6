package event_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailbox/core/event"
	"github.com/dmitrymomot/mailbox/core/eventlog"
	"github.com/dmitrymomot/mailbox/pkg/broadcast"
)

type mockAppender struct {
	mock.Mock
}

func (m *mockAppender) Append(ctx context.Context, topic string, data []byte) (eventlog.Entry, error) {
	args := m.Called(ctx, topic, data)
	return args.Get(0).(eventlog.Entry), args.Error(1)
}

// recordingHub remembers fan-out calls in order.
type recordingHub struct {
	mu     sync.Mutex
	events []event.Event
	onSend func()
}

func (h *recordingHub) Publish(topic string, e event.Event) int {
	if h.onSend != nil {
		h.onSend()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
	return 1
}

func (h *recordingHub) sent() []event.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]event.Event(nil), h.events...)
}

func TestPublisher_PersistsThenFansOut(t *testing.T) {
	t.Parallel()

	store := eventlog.NewMemoryStore(eventlog.WithClock(mockAt(100)))
	hub := &recordingHub{}
	hub.onSend = func() {
		assert.Equal(t, 1, store.Len("x"), "event must be stored before fan-out")
	}

	pub := event.NewPublisher(store, hub)
	require.NoError(t, pub.PublishSync(context.Background(), "x", event.MessageDeleted{ChannelID: "x", MessageID: "m"}))

	sent := hub.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "x", sent[0].Topic)
	assert.Equal(t, int64(100), sent[0].Timestamp)

	var replayed []eventlog.Entry
	for e, err := range store.Replay(context.Background(), "x", 0) {
		require.NoError(t, err)
		replayed = append(replayed, e)
	}
	require.Len(t, replayed, 1)
	assert.Equal(t, sent[0].Data, replayed[0].Data)

	s := pub.Stats()
	assert.Equal(t, int64(1), s.Published)
	assert.Equal(t, int64(1), s.Persisted)
	assert.Equal(t, int64(1), s.Delivered)
}

func TestPublisher_PersistFailureStillDelivers(t *testing.T) {
	t.Parallel()

	cause := errors.New("redis down")
	app := &mockAppender{}
	app.On("Append", mock.Anything, "x", mock.Anything).Return(eventlog.Entry{}, cause).Once()

	hub := &recordingHub{}
	pub := event.NewPublisher(app, hub, event.WithClock(mockAt(777)))

	err := pub.PublishSync(context.Background(), "x", event.ChannelDeleted{ChannelID: "x"})
	assert.ErrorIs(t, err, event.ErrPersistFailed)
	assert.ErrorIs(t, err, cause)

	sent := hub.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(777), sent[0].Timestamp)
	assert.Equal(t, int64(1), pub.Stats().PersistFailures)
	app.AssertExpectations(t)
}

func TestPublisher_EphemeralSkipsLog(t *testing.T) {
	t.Parallel()

	app := &mockAppender{}
	hub := &recordingHub{}
	pub := event.NewPublisher(app, hub, event.WithClock(mockAt(5)))

	require.NoError(t, pub.PublishSync(context.Background(), "x", event.Preview{ChannelID: "x", UserID: "u", Content: "draft"}))

	app.AssertNotCalled(t, "Append", mock.Anything, mock.Anything, mock.Anything)
	require.Len(t, hub.sent(), 1)
	assert.Equal(t, int64(5), hub.sent()[0].Timestamp)
	assert.Equal(t, int64(1), pub.Stats().Ephemeral)
}

func TestPublisher_FireAndForget(t *testing.T) {
	t.Parallel()

	store := eventlog.NewMemoryStore()
	hub := broadcast.NewHub[event.Event]()
	defer hub.Close()
	sub, err := hub.Subscribe("x")
	require.NoError(t, err)
	defer sub.Close()

	pub := event.NewPublisher(store, hub)
	for range 5 {
		pub.Publish("x", event.MessageCreated{ChannelID: "x", MessageID: "m"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pub.Wait(ctx))

	assert.Equal(t, 5, store.Len("x"))
	ids := map[string]bool{}
	for range 5 {
		ev, err := sub.Recv(ctx)
		require.NoError(t, err)
		env, err := ev.Envelope()
		require.NoError(t, err)
		ids[env.ID.String()] = true
	}
	assert.Len(t, ids, 5)
	assert.Equal(t, int64(0), pub.Stats().InFlight)
}

func TestPublisher_InvalidInputIsDropped(t *testing.T) {
	t.Parallel()

	app := &mockAppender{}
	hub := &recordingHub{}
	pub := event.NewPublisher(app, hub)

	pub.Publish("", event.ChannelDeleted{ChannelID: "x"})
	pub.Publish("x", nil)
	pub.Publish("x", (*event.MessageCreated)(nil))
	assert.ErrorIs(t, pub.PublishSync(context.Background(), "", event.ChannelDeleted{}), event.ErrEmptyTopic)

	require.NoError(t, pub.Wait(context.Background()))
	assert.Empty(t, hub.sent())
	assert.Equal(t, int64(4), pub.Stats().EncodeFailures)
	assert.Equal(t, int64(0), pub.Stats().Published)
}

func TestPublisher_Close(t *testing.T) {
	t.Parallel()

	hub := &recordingHub{}
	pub := event.NewPublisherFromConfig(event.Config{PersistTimeout: time.Second}, eventlog.NewMemoryStore(), hub)
	pub.Publish("x", event.ChannelDeleted{ChannelID: "x"})

	require.NoError(t, pub.Close(context.Background()))
	assert.Len(t, hub.sent(), 1)

	pub.Publish("x", event.ChannelDeleted{ChannelID: "x"})
	require.NoError(t, pub.Wait(context.Background()))
	assert.Len(t, hub.sent(), 1, "publishes after close are ignored")
	assert.Equal(t, int64(1), pub.Stats().Dropped)
}

func TestPublisher_PublishAfterCloseIsLogged(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	app := &mockAppender{}
	hub := &recordingHub{}
	pub := event.NewPublisher(app, hub,
		event.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	require.NoError(t, pub.Close(context.Background()))

	pub.Publish("room", event.MessageDeleted{ChannelID: "room", MessageID: "m1"})
	require.NoError(t, pub.Wait(context.Background()))

	st := pub.Stats()
	assert.Equal(t, int64(1), st.Dropped)
	assert.Zero(t, st.Persisted)
	assert.Zero(t, st.Delivered)
	assert.Empty(t, hub.sent())
	app.AssertNotCalled(t, "Append", mock.Anything, mock.Anything, mock.Anything)

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "publisher closed, dropping event")
	assert.Contains(t, out, "topic=room")
	assert.Contains(t, out, "type=message.deleted")
}

func mockAt(ms int64) *clock.Mock {
	c := clock.NewMock()
	c.Set(time.UnixMilli(ms))
	return c
}
