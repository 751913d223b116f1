package invalidation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rentwise/portal/pkg/logger"
)

// RedisChannel uses one pub/sub channel per user:
// "<prefix><userID>", payload = userID.
type RedisChannel struct {
	client *redis.Client
	prefix string
}

// NewRedisChannel creates a Redis-backed channel. Prefix may be empty.
func NewRedisChannel(client *redis.Client, prefix string) *RedisChannel {
	if prefix == "" {
		prefix = "subscriptions:changed:"
	}
	return &RedisChannel{client: client, prefix: prefix}
}

func (c *RedisChannel) name(userID string) string {
	return c.prefix + userID
}

func (c *RedisChannel) Publish(ctx context.Context, userID string) error {
	if err := c.client.Publish(ctx, c.name(userID), userID).Err(); err != nil {
		return fmt.Errorf("publish invalidation for %q: %w", userID, err)
	}
	return nil
}

// Subscribe returns once Redis confirmed the subscription.
func (c *RedisChannel) Subscribe(ctx context.Context, userID string, h Handler) (Subscription, error) {
	ps := c.client.Subscribe(ctx, c.name(userID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe invalidation for %q: %w", userID, err)
	}
	s := &redisSub{ps: ps, done: make(chan struct{})}
	msgs := ps.Channel()
	go func() {
		defer close(s.done)
		for msg := range msgs {
			id := strings.TrimPrefix(msg.Channel, c.prefix)
			if id == "" {
				id = msg.Payload
			}
			h(id)
		}
	}()
	logger.Debugf("invalidation: subscribed %s", c.name(userID))
	return s, nil
}

type redisSub struct {
	ps   *redis.PubSub
	done chan struct{}
	once sync.Once
	err  error
}

// Close unsubscribes and waits for the delivery goroutine to exit.
func (s *redisSub) Close() error {
	s.once.Do(func() {
		s.err = s.ps.Close()
		<-s.done
	})
	return s.err
}
