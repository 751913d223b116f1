// Package entitlements derives membership access from the subscription record.
package entitlements

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rentwise/portal/internal/models"
	"github.com/rentwise/portal/pkg/logger"
	"github.com/rentwise/portal/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// Fetcher loads the authoritative subscription row of a user.
// It returns (nil, nil) when the user has no subscription.
type Fetcher interface {
	GetByUser(ctx context.Context, userID string) (*models.Subscription, error)
}

// HasAccess requires both an active/trialing status and the explicit
// permission flag.
func HasAccess(sub *models.Subscription) bool {
	if sub == nil || !sub.HasAccessPermission {
		return false
	}
	return sub.Status == models.StatusActive || sub.Status == models.StatusTrialing
}

type cached struct {
	sub *models.Subscription
}

// fetchTimeout bounds a shared fetch. Callers bound their own wait.
const fetchTimeout = 15 * time.Second

// flight tracks the fetches running for one user. gen changes on every
// invalidation, so a fetch that started earlier can tell its answer is stale.
type flight struct {
	gen     uint64
	pending int
}

// Resolver caches subscriptions per user id until invalidated or expired.
type Resolver struct {
	fetch Fetcher
	cache *gocache.Cache
	group singleflight.Group

	mu      sync.Mutex
	seq     uint64
	flights map[string]*flight
}

func NewResolver(f Fetcher, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Resolver{
		fetch:   f,
		cache:   gocache.New(ttl, 2*ttl),
		flights: map[string]*flight{},
	}
}

// FetchSubscription returns the user's subscription, or nil when there is none.
func (r *Resolver) FetchSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	if v, ok := r.cache.Get(userID); ok {
		metrics.EntitlementLookups.WithLabelValues("hit").Inc()
		return v.(cached).sub.Clone(), nil
	}

	// the fetch is shared, so it must not die with whichever caller started it
	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(userID, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(shared, fetchTimeout)
		defer cancel()
		fl, gen := r.begin(userID)
		sub, err := r.fetch.GetByUser(fctx, userID)
		r.end(userID, fl, gen, sub, err == nil)
		if err != nil {
			return nil, err
		}
		return sub, nil
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res.Err = ctx.Err()
	}
	if res.Err != nil {
		metrics.EntitlementLookups.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetch subscription for %q: %w", userID, res.Err)
	}
	metrics.EntitlementLookups.WithLabelValues("miss").Inc()
	sub, _ := res.Val.(*models.Subscription)
	return sub.Clone(), nil
}

// HasAccessPermission reports whether the user may see membership content.
func (r *Resolver) HasAccessPermission(ctx context.Context, userID string) (bool, error) {
	sub, err := r.FetchSubscription(ctx, userID)
	if err != nil {
		return false, err
	}
	return HasAccess(sub), nil
}

// Invalidate drops the cached subscription of userID. A fetch already in
// flight will not repopulate the cache, and later callers do not join it.
func (r *Resolver) Invalidate(userID string) {
	r.mu.Lock()
	if fl, ok := r.flights[userID]; ok {
		r.seq++
		fl.gen = r.seq
	}
	r.cache.Delete(userID)
	r.group.Forget(userID)
	r.mu.Unlock()
	metrics.EntitlementInvalidations.Inc()
	logger.Debugf("entitlements: invalidated %s", userID)
}

func (r *Resolver) begin(userID string) (*flight, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fl, ok := r.flights[userID]
	if !ok {
		r.seq++
		fl = &flight{gen: r.seq}
		r.flights[userID] = fl
	}
	fl.pending++
	return fl, fl.gen
}

// end stores sub unless userID was invalidated since begin, and forgets the
// flight once nothing is pending for the user.
func (r *Resolver) end(userID string, fl *flight, gen uint64, sub *models.Subscription, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ok && fl.gen == gen {
		r.cache.SetDefault(userID, cached{sub: sub.Clone()})
	}
	fl.pending--
	if fl.pending == 0 {
		delete(r.flights, userID)
	}
}
