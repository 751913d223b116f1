package invalidation

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rentwise/portal/pkg/logger"
)

// userSub is the one channel subscription shared by every view session
// bound to the same user.
type userSub struct {
	refs  int
	ready chan struct{}
	sub   Subscription
	err   error
}

// Tracker binds view sessions to the user signed in on them and keeps one
// subscription per user for as long as at least one view session holds it.
// Idle view sessions expire and drop their reference.
type Tracker struct {
	ch Channel
	h  Handler

	viewMu sync.Mutex
	views  *gocache.Cache // view session -> user id

	mu   sync.Mutex
	subs map[string]*userSub
}

func NewTracker(ch Channel, h Handler, idle time.Duration) *Tracker {
	if idle <= 0 {
		idle = 12 * time.Hour
	}
	t := &Tracker{ch: ch, h: h, subs: map[string]*userSub{}}
	t.views = gocache.New(idle, time.Minute)
	t.views.OnEvicted(func(_ string, v interface{}) {
		t.release(v.(string))
	})
	return t
}

// Track binds the view session key to userID. Tracking the same pair again
// only refreshes the idle timer. A failed subscribe invalidates the user, so
// nothing stays cached without a way to hear about changes.
func (t *Tracker) Track(ctx context.Context, key, userID string) error {
	if key == "" || userID == "" {
		return nil
	}
	t.viewMu.Lock()
	if v, ok := t.views.Get(key); ok && v.(string) == userID {
		t.views.SetDefault(key, userID)
		t.viewMu.Unlock()
		return nil
	}
	t.viewMu.Unlock()

	if err := t.acquire(ctx, userID); err != nil {
		t.h(userID)
		return err
	}

	t.viewMu.Lock()
	// Delete fires OnEvicted for the previous user, expired or not.
	t.views.Delete(key)
	t.views.SetDefault(key, userID)
	t.viewMu.Unlock()
	return nil
}

// Forget drops the view session's reference (logout).
func (t *Tracker) Forget(key string) {
	t.viewMu.Lock()
	defer t.viewMu.Unlock()
	t.views.Delete(key)
}

// Len returns the number of tracked view sessions.
func (t *Tracker) Len() int {
	return t.views.ItemCount()
}

// Subscriptions returns the number of users with a live subscription.
func (t *Tracker) Subscriptions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

func (t *Tracker) acquire(ctx context.Context, userID string) error {
	t.mu.Lock()
	us, ok := t.subs[userID]
	if !ok {
		us = &userSub{ready: make(chan struct{})}
		t.subs[userID] = us
	}
	us.refs++
	t.mu.Unlock()

	if ok {
		select {
		case <-us.ready:
		case <-ctx.Done():
			t.drop(userID, us)
			return ctx.Err()
		}
		// a failed entry is already out of the map
		return us.err
	}

	sub, err := t.ch.Subscribe(ctx, userID, t.h)
	t.mu.Lock()
	us.sub, us.err = sub, err
	if err != nil && t.subs[userID] == us {
		delete(t.subs, userID)
	}
	t.mu.Unlock()
	close(us.ready)
	if err != nil {
		return err
	}
	// a change published before the subscribe was confirmed is lost
	t.h(userID)
	return nil
}

// release drops one view session's reference on userID.
func (t *Tracker) release(userID string) {
	t.mu.Lock()
	us, ok := t.subs[userID]
	var sub Subscription
	if ok {
		sub = t.dropLocked(userID, us)
	}
	t.mu.Unlock()
	t.close(userID, sub)
}

func (t *Tracker) drop(userID string, us *userSub) {
	t.mu.Lock()
	sub := t.dropLocked(userID, us)
	t.mu.Unlock()
	t.close(userID, sub)
}

// dropLocked returns the subscription to close once the last reference is gone.
func (t *Tracker) dropLocked(userID string, us *userSub) Subscription {
	us.refs--
	if us.refs > 0 {
		return nil
	}
	if t.subs[userID] == us {
		delete(t.subs, userID)
	}
	return us.sub
}

func (t *Tracker) close(userID string, sub Subscription) {
	if sub == nil {
		return
	}
	if err := sub.Close(); err != nil {
		logger.Warnf("invalidation: close subscription for %s: %v", userID, err)
	}
}
