package broadcast_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailbox/pkg/broadcast"
)

func TestHub_OneChannelPerTopic(t *testing.T) {
	t.Parallel()

	hub := broadcast.NewHub[int]()
	defer hub.Close()

	var wg sync.WaitGroup
	subs := make([]*broadcast.Subscription[int], 64)
	for i := range subs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := hub.Subscribe("topic")
			assert.NoError(t, err)
			subs[i] = s
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, hub.Topics())
	assert.Equal(t, 64, hub.SubscriberCount("topic"))
	assert.Equal(t, int64(1), hub.Stats().Created)

	assert.Equal(t, 64, hub.Publish("topic", 42))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, s := range subs {
		v, err := s.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, 42, v)
		s.Close()
	}
}

func TestHub_PublishIsolatedPerTopic(t *testing.T) {
	t.Parallel()

	hub := broadcast.NewHub[string]()
	defer hub.Close()

	a, err := hub.Subscribe("a")
	require.NoError(t, err)
	b, err := hub.Subscribe("b")
	require.NoError(t, err)

	assert.Equal(t, 1, hub.Publish("a", "for-a"))
	assert.Equal(t, 0, hub.Publish("unknown", "nobody"))

	ctx := context.Background()
	v, err := a.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "for-a", v)
	empty, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = b.Recv(empty)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "b must not see values for topic a")

	stats := hub.Stats()
	assert.Equal(t, 2, stats.Topics)
	assert.Equal(t, 2, stats.Subscribers)
	assert.Equal(t, int64(1), stats.Published)
}

func TestHub_PruneIdle(t *testing.T) {
	t.Parallel()

	hub := broadcast.NewHub[int]()
	defer hub.Close()

	live, err := hub.Subscribe("live")
	require.NoError(t, err)
	defer live.Close()

	gone, err := hub.Subscribe("gone")
	require.NoError(t, err)
	gone.Close()

	assert.Equal(t, 1, hub.PruneIdle())
	assert.Equal(t, 1, hub.Topics())
	assert.Equal(t, 1, hub.SubscriberCount("live"))

	// The live subscriber still receives.
	assert.Equal(t, 1, hub.Publish("live", 5))
	v, err := live.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	// A pruned topic is recreated on demand.
	again, err := hub.Subscribe("gone")
	require.NoError(t, err)
	defer again.Close()
	assert.Equal(t, 2, hub.Topics())
	assert.Equal(t, int64(1), hub.Stats().Pruned)
}

func TestHub_PruneNeverRemovesTopicWithSubscriber(t *testing.T) {
	t.Parallel()

	hub := broadcast.NewHub[int]()
	defer hub.Close()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				hub.PruneIdle()
			}
		}
	}()

	for range 200 {
		s, err := hub.Subscribe("racy")
		require.NoError(t, err)
		assert.Equal(t, 1, hub.Publish("racy", 1), "topic with a live subscriber must stay registered")
		s.Close()
	}
	close(stop)
	wg.Wait()
}

func TestHub_LagCounted(t *testing.T) {
	t.Parallel()

	hub := broadcast.NewHub[int](broadcast.WithCapacity(2))
	defer hub.Close()

	sub, err := hub.Subscribe("t")
	require.NoError(t, err)
	defer sub.Close()

	for i := range 5 {
		hub.Publish("t", i)
	}
	_, err = sub.Recv(context.Background())
	assert.ErrorIs(t, err, broadcast.ErrLagged)
	assert.Equal(t, int64(1), hub.Stats().Lagged)

	v, err := sub.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestHub_Close(t *testing.T) {
	t.Parallel()

	hub := broadcast.NewHub[int]()
	sub, err := hub.Subscribe("t")
	require.NoError(t, err)

	hub.Publish("t", 1)
	hub.Close()
	hub.Close()

	v, err := sub.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = sub.Recv(context.Background())
	assert.ErrorIs(t, err, broadcast.ErrClosed)

	_, err = hub.Subscribe("t")
	assert.ErrorIs(t, err, broadcast.ErrClosed)
	assert.Equal(t, 0, hub.Topics())
}
