// Package invalidation carries "subscription for user X changed" signals.
package invalidation

import (
	"context"
	"sync"
)

// Handler receives the id of the user whose subscription changed.
type Handler func(userID string)

// Subscription is an active registration on a Channel.
type Subscription interface {
	Close() error
}

// Channel publishes and delivers change notifications scoped by user id.
type Channel interface {
	Publish(ctx context.Context, userID string) error
	Subscribe(ctx context.Context, userID string, h Handler) (Subscription, error)
}

// LocalChannel delivers notifications in-process.
type LocalChannel struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]Handler
	nextID uint64
}

func NewLocalChannel() *LocalChannel {
	return &LocalChannel{subs: map[string]map[uint64]Handler{}}
}

func (c *LocalChannel) Publish(ctx context.Context, userID string) error {
	c.mu.RLock()
	hs := make([]Handler, 0, len(c.subs[userID]))
	for _, h := range c.subs[userID] {
		hs = append(hs, h)
	}
	c.mu.RUnlock()
	for _, h := range hs {
		h(userID)
	}
	return nil
}

func (c *LocalChannel) Subscribe(ctx context.Context, userID string, h Handler) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	if c.subs[userID] == nil {
		c.subs[userID] = map[uint64]Handler{}
	}
	c.subs[userID][id] = h
	return &localSub{c: c, userID: userID, id: id}, nil
}

// Count returns the number of live subscriptions for userID.
func (c *LocalChannel) Count(userID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs[userID])
}

type localSub struct {
	c      *LocalChannel
	userID string
	id     uint64
	once   sync.Once
}

func (s *localSub) Close() error {
	s.once.Do(func() {
		s.c.mu.Lock()
		defer s.c.mu.Unlock()
		delete(s.c.subs[s.userID], s.id)
		if len(s.c.subs[s.userID]) == 0 {
			delete(s.c.subs, s.userID)
		}
	})
	return nil
}
