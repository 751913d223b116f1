package invalidation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorder) handle(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, userID)
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func TestLocalChannel_ScopedByUser(t *testing.T) {
	ch := NewLocalChannel()
	rec := &recorder{}
	ctx := context.Background()

	sub, err := ch.Subscribe(ctx, "u1", rec.handle)
	require.NoError(t, err)

	require.NoError(t, ch.Publish(ctx, "u2"))
	require.NoError(t, ch.Publish(ctx, "u1"))
	require.Equal(t, []string{"u1"}, rec.seen())

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	require.NoError(t, ch.Publish(ctx, "u1"))
	require.Len(t, rec.seen(), 1)
	require.Zero(t, ch.Count("u1"))
}

func TestRedisChannel_PublishSubscribe(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	ch := NewRedisChannel(client, "test:changed:")
	rec := &recorder{}
	ctx := context.Background()

	sub, err := ch.Subscribe(ctx, "u1", rec.handle)
	require.NoError(t, err)

	require.NoError(t, ch.Publish(ctx, "u2"))
	require.NoError(t, ch.Publish(ctx, "u1"))
	require.Eventually(t, func() bool { return len(rec.seen()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"u1"}, rec.seen())

	require.NoError(t, sub.Close())
	require.NoError(t, ch.Publish(ctx, "u1"))
	time.Sleep(50 * time.Millisecond)
	require.Len(t, rec.seen(), 1)
}

type failingChannel struct {
	*LocalChannel
	fail bool
}

func (c *failingChannel) Subscribe(ctx context.Context, userID string, h Handler) (Subscription, error) {
	if c.fail {
		return nil, errors.New("subscribe refused")
	}
	return c.LocalChannel.Subscribe(ctx, userID, h)
}

func TestTracker_SharesOneSubscriptionPerUser(t *testing.T) {
	ch := NewLocalChannel()
	tr := NewTracker(ch, func(string) {}, time.Hour)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		require.NoError(t, tr.Track(ctx, fmt.Sprintf("tab-%d", i), "u1"))
	}
	require.Equal(t, 1, ch.Count("u1"))
	require.Equal(t, 1, tr.Subscriptions())
	require.Equal(t, 50, tr.Len())

	for i := 0; i < 49; i++ {
		tr.Forget(fmt.Sprintf("tab-%d", i))
	}
	require.Equal(t, 1, ch.Count("u1"))
	tr.Forget("tab-49")
	require.Zero(t, ch.Count("u1"))
	require.Zero(t, tr.Subscriptions())
}

func TestTracker_TrackAndForget(t *testing.T) {
	ch := NewLocalChannel()
	rec := &recorder{}
	tr := NewTracker(ch, rec.handle, time.Hour)
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, "tab-1", "u1"))
	require.NoError(t, tr.Track(ctx, "tab-1", "u1"))
	require.NoError(t, tr.Track(ctx, "tab-2", "u1"))
	require.Equal(t, 1, ch.Count("u1"))
	require.Equal(t, 2, tr.Len())

	// login as a different user on tab-1
	require.NoError(t, tr.Track(ctx, "tab-1", "u2"))
	require.Equal(t, 1, ch.Count("u1"))
	require.Equal(t, 1, ch.Count("u2"))

	tr.Forget("tab-1")
	require.Zero(t, ch.Count("u2"))
	require.Equal(t, 1, ch.Count("u1"))
	require.Equal(t, 1, tr.Len())

	tr.Forget("tab-2")
	require.Zero(t, ch.Count("u1"))

	require.NoError(t, tr.Track(ctx, "", "u3"))
	require.NoError(t, tr.Track(ctx, "tab-3", ""))
	require.Zero(t, ch.Count("u3"))
	require.Zero(t, tr.Len())
}

func TestTracker_RepeatedLoginLogoutDoesNotAccumulate(t *testing.T) {
	ch := NewLocalChannel()
	tr := NewTracker(ch, func(string) {}, time.Hour)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, tr.Track(ctx, "tab-1", "u1"))
		tr.Forget("tab-1")
	}
	require.NoError(t, tr.Track(ctx, "tab-1", "u1"))
	require.Equal(t, 1, ch.Count("u1"))
}

func TestTracker_FreshSubscriptionInvalidatesOnce(t *testing.T) {
	ch := NewLocalChannel()
	rec := &recorder{}
	tr := NewTracker(ch, rec.handle, time.Hour)
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, "tab-1", "u1"))
	require.Equal(t, []string{"u1"}, rec.seen())

	// joining an existing subscription does not invalidate again
	require.NoError(t, tr.Track(ctx, "tab-2", "u1"))
	require.Equal(t, []string{"u1"}, rec.seen())

	require.NoError(t, ch.Publish(ctx, "u1"))
	require.Equal(t, []string{"u1", "u1"}, rec.seen())
}

func TestTracker_FailedSubscribeInvalidates(t *testing.T) {
	ch := &failingChannel{LocalChannel: NewLocalChannel(), fail: true}
	rec := &recorder{}
	tr := NewTracker(ch, rec.handle, time.Hour)
	ctx := context.Background()

	require.Error(t, tr.Track(ctx, "tab-1", "u1"))
	require.Equal(t, []string{"u1"}, rec.seen())
	require.Zero(t, tr.Len())
	require.Zero(t, tr.Subscriptions())

	ch.fail = false
	require.NoError(t, tr.Track(ctx, "tab-1", "u1"))
	require.Equal(t, 1, ch.Count("u1"))
}

func TestTracker_IdleSessionsRelease(t *testing.T) {
	ch := NewLocalChannel()
	tr := NewTracker(ch, func(string) {}, 30*time.Millisecond)
	require.NoError(t, tr.Track(context.Background(), "tab-1", "u1"))
	require.Equal(t, 1, ch.Count("u1"))

	// expired entries are released once the janitor or a Delete runs
	require.Eventually(t, func() bool {
		tr.views.DeleteExpired()
		return ch.Count("u1") == 0
	}, 2*time.Second, 20*time.Millisecond)
	require.Zero(t, tr.Subscriptions())
}
