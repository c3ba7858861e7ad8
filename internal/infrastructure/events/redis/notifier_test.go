package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifiedui/session-service/internal/core/events"
	redisevents "github.com/unifiedui/session-service/internal/infrastructure/events/redis"
)

func newClient(t *testing.T) *goredis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNotifier_DeliversToPeers(t *testing.T) {
	client := newClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publisher := redisevents.NewNotifier(client, "test.invalidate", "instance-a")
	subscriber := redisevents.NewNotifier(client, "test.invalidate", "instance-b")
	defer publisher.Close()
	defer subscriber.Close()

	received := make(chan events.Invalidation, 1)
	require.NoError(t, subscriber.Subscribe(ctx, func(_ context.Context, inv events.Invalidation) {
		received <- inv
	}))

	require.NoError(t, publisher.Publish(ctx, events.Invalidation{SessionID: "s-1", UserID: "u-1"}))

	select {
	case inv := <-received:
		assert.Equal(t, "s-1", inv.SessionID)
		assert.Equal(t, "u-1", inv.UserID)
		assert.Equal(t, "instance-a", inv.Origin)
		assert.False(t, inv.At.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("invalidation not delivered")
	}
}

func TestNotifier_SkipsOwnMessages(t *testing.T) {
	client := newClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	self := redisevents.NewNotifier(client, "", "instance-a")
	defer self.Close()

	received := make(chan events.Invalidation, 2)
	require.NoError(t, self.Subscribe(ctx, func(_ context.Context, inv events.Invalidation) {
		received <- inv
	}))

	require.NoError(t, self.Publish(ctx, events.Invalidation{SessionID: "own"}))
	// A message from a peer proves the subscription is live.
	require.NoError(t, self.Publish(ctx, events.Invalidation{SessionID: "peer", Origin: "instance-b"}))

	select {
	case inv := <-received:
		assert.Equal(t, "peer", inv.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("peer invalidation not delivered")
	}
	assert.Empty(t, received)
}

func TestNotifier_StopsOnContextCancel(t *testing.T) {
	client := newClient(t)
	ctx, cancel := context.WithCancel(context.Background())

	n := redisevents.NewNotifier(client, "", "instance-b")
	defer n.Close()

	received := make(chan events.Invalidation, 1)
	require.NoError(t, n.Subscribe(ctx, func(_ context.Context, inv events.Invalidation) {
		received <- inv
	}))
	cancel()

	assert.Eventually(t, func() bool {
		subs, err := client.PubSubNumSub(context.Background(), events.DefaultChannel).Result()
		return err == nil && subs[events.DefaultChannel] == 0
	}, 2*time.Second, 20*time.Millisecond)
}
