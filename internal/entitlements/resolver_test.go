package entitlements

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rentwise/portal/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu    sync.Mutex
	rows  map[string]*models.Subscription
	err   error
	calls int
	// gate, when set, blocks GetByUser until closed
	gate chan struct{}
}

func (f *fakeFetcher) GetByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[userID].Clone(), nil
}

func (f *fakeFetcher) set(userID string, sub *models.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rows == nil {
		f.rows = map[string]*models.Subscription{}
	}
	f.rows[userID] = sub
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestHasAccess(t *testing.T) {
	cases := []struct {
		status models.SubscriptionStatus
		flag   bool
		want   bool
	}{
		{models.StatusActive, true, true},
		{models.StatusTrialing, true, true},
		{models.StatusActive, false, false},
		{models.StatusTrialing, false, false},
		{models.StatusCanceled, true, false},
		{models.StatusPastDue, true, false},
		{models.StatusNone, true, false},
		{"", true, false},
	}
	for _, plan := range []models.PlanType{models.PlanClient, models.PlanDiscount, models.PlanEnterprise, models.PlanNone} {
		for _, tc := range cases {
			sub := &models.Subscription{PlanType: plan, Status: tc.status, HasAccessPermission: tc.flag}
			require.Equal(t, tc.want, HasAccess(sub), "plan=%s status=%s flag=%v", plan, tc.status, tc.flag)
		}
	}
	require.False(t, HasAccess(nil))
}

func TestResolver_NoRow(t *testing.T) {
	r := NewResolver(&fakeFetcher{}, time.Minute)

	sub, err := r.FetchSubscription(context.Background(), "u1")
	require.NoError(t, err)
	require.Nil(t, sub)

	ok, err := r.HasAccessPermission(context.Background(), "u1")
	require.NoError(t, err)
	require.False(t, ok)

	p := PlanSummary(sub)
	require.Equal(t, "Free", p.Name)
	require.Empty(t, p.Features)
}

func TestResolver_CachesUntilInvalidated(t *testing.T) {
	f := &fakeFetcher{}
	f.set("u1", &models.Subscription{UserID: "u1", Status: models.StatusActive, HasAccessPermission: true})
	r := NewResolver(f, time.Minute)
	ctx := context.Background()

	ok, err := r.HasAccessPermission(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)

	// permission revoked upstream; cached value still served
	f.set("u1", &models.Subscription{UserID: "u1", Status: models.StatusActive, HasAccessPermission: false})
	ok, err = r.HasAccessPermission(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, f.callCount())

	r.Invalidate("u1")
	ok, err = r.HasAccessPermission(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 2, f.callCount())
}

func TestResolver_InvalidateOnlyAffectsUser(t *testing.T) {
	f := &fakeFetcher{}
	r := NewResolver(f, time.Minute)
	ctx := context.Background()
	_, _ = r.FetchSubscription(ctx, "u1")
	_, _ = r.FetchSubscription(ctx, "u2")
	require.Equal(t, 2, f.callCount())

	r.Invalidate("u1")
	_, _ = r.FetchSubscription(ctx, "u1")
	_, _ = r.FetchSubscription(ctx, "u2")
	require.Equal(t, 3, f.callCount())
}

func TestResolver_ErrorsAreNotCached(t *testing.T) {
	f := &fakeFetcher{err: errors.New("backend unavailable")}
	r := NewResolver(f, time.Minute)
	ctx := context.Background()

	ok, err := r.HasAccessPermission(ctx, "u1")
	require.Error(t, err)
	require.False(t, ok)

	f.mu.Lock()
	f.err = nil
	f.mu.Unlock()
	f.set("u1", &models.Subscription{Status: models.StatusTrialing, HasAccessPermission: true})

	ok, err = r.HasAccessPermission(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestResolver_InFlightFetchDoesNotRepopulateAfterInvalidate(t *testing.T) {
	f := &fakeFetcher{gate: make(chan struct{})}
	f.set("u1", &models.Subscription{Status: models.StatusActive, HasAccessPermission: true})
	r := NewResolver(f, time.Minute)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.FetchSubscription(ctx, "u1")
	}()
	require.Eventually(t, func() bool { return f.callCount() == 1 }, time.Second, 5*time.Millisecond)

	// the row changes and the signal arrives while the old fetch is pending
	f.set("u1", &models.Subscription{Status: models.StatusCanceled, HasAccessPermission: true})
	r.Invalidate("u1")
	f.mu.Lock()
	close(f.gate)
	f.gate = nil
	f.mu.Unlock()
	<-done

	ok, err := r.HasAccessPermission(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 2, f.callCount())
}

func TestResolver_ReturnsCopies(t *testing.T) {
	f := &fakeFetcher{}
	f.set("u1", &models.Subscription{Status: models.StatusActive, HasAccessPermission: true})
	r := NewResolver(f, time.Minute)

	sub, err := r.FetchSubscription(context.Background(), "u1")
	require.NoError(t, err)
	sub.HasAccessPermission = false

	ok, err := r.HasAccessPermission(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPlanSummary_Total(t *testing.T) {
	require.Equal(t, "Client", PlanSummary(&models.Subscription{PlanType: models.PlanClient}).Name)
	require.Equal(t, "Discount", PlanSummary(&models.Subscription{PlanType: models.PlanDiscount}).Name)
	require.Equal(t, "Enterprise", PlanSummary(&models.Subscription{PlanType: models.PlanEnterprise}).Name)
	require.Equal(t, "Free", PlanSummary(&models.Subscription{PlanType: models.PlanNone}).Name)
	require.Equal(t, "Free", PlanSummary(&models.Subscription{PlanType: "platinum"}).Name)
	require.Equal(t, "Free", PlanSummary(nil).Name)

	p := PlanSummary(&models.Subscription{PlanType: models.PlanClient})
	p.Features[0] = "mutated"
	require.NotEqual(t, "mutated", PlanSummary(&models.Subscription{PlanType: models.PlanClient}).Features[0])
}

func TestPlans(t *testing.T) {
	ps := Plans()
	require.Len(t, ps, 4)
	require.Equal(t, "Free", ps[0].Name)
	require.Equal(t, models.PlanEnterprise, ps[3].Type)
}

func TestResolver_CallerDeadlineBoundsWait(t *testing.T) {
	f := &fakeFetcher{gate: make(chan struct{})}
	defer close(f.gate)
	r := NewResolver(f, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ok, err := r.HasAccessPermission(ctx, "slow")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, ok)
}

func (r *Resolver) pendingUsers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flights)
}

func TestResolver_SharedFetchOutlivesFirstCaller(t *testing.T) {
	f := &fakeFetcher{gate: make(chan struct{})}
	f.set("u1", &models.Subscription{Status: models.StatusActive, HasAccessPermission: true})
	r := NewResolver(f, time.Minute)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := r.FetchSubscription(leaderCtx, "u1")
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return f.callCount() == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		ok  bool
		err error
	}
	follower := make(chan result, 1)
	go func() {
		ok, err := r.HasAccessPermission(context.Background(), "u1")
		follower <- result{ok, err}
	}()
	time.Sleep(30 * time.Millisecond)

	cancelLeader()
	require.ErrorIs(t, <-leaderErr, context.Canceled)

	f.mu.Lock()
	close(f.gate)
	f.gate = nil
	f.mu.Unlock()

	got := <-follower
	require.NoError(t, got.err)
	require.True(t, got.ok)
	require.Equal(t, 1, f.callCount())
}

func TestResolver_ForgetsFinishedFlights(t *testing.T) {
	f := &fakeFetcher{}
	f.set("u1", &models.Subscription{Status: models.StatusActive, HasAccessPermission: true})
	r := NewResolver(f, time.Minute)
	ctx := context.Background()

	_, err := r.FetchSubscription(ctx, "u1")
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		r.Invalidate(fmt.Sprintf("gone-%d", i))
	}
	r.Invalidate("u1")
	require.Zero(t, r.pendingUsers())

	ok, err := r.HasAccessPermission(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, f.callCount())
	require.Zero(t, r.pendingUsers())
}
