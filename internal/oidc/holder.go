package oidc

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rentwise/portal/pkg/logger"
)

type verifierBox struct{ v TokenVerifier }

// Holder publishes a verifier once provider discovery succeeds.
// Until then Ready reports false and identity resolution is still loading.
type Holder struct {
	cur   atomic.Pointer[verifierBox]
	ready chan struct{}
	set   atomic.Bool
}

func NewHolder() *Holder {
	return &Holder{ready: make(chan struct{})}
}

// Set installs v. Only the first call closes the ready channel.
func (h *Holder) Set(v TokenVerifier) {
	h.cur.Store(&verifierBox{v: v})
	if h.set.CompareAndSwap(false, true) {
		close(h.ready)
	}
}

func (h *Holder) Get() (TokenVerifier, bool) {
	b := h.cur.Load()
	if b == nil {
		return nil, false
	}
	return b.v, true
}

func (h *Holder) Ready() bool {
	_, ok := h.Get()
	return ok
}

// Done is closed once a verifier has been installed.
func (h *Holder) Done() <-chan struct{} { return h.ready }

// Discover retries discovery with exponential backoff until it succeeds or ctx ends.
func (h *Holder) Discover(ctx context.Context, discover func(context.Context) (TokenVerifier, error), backoff, maxBackoff time.Duration) {
	for attempt := 1; ; attempt++ {
		v, err := discover(ctx)
		if err == nil {
			h.Set(v)
			logger.Infof("oidc: provider discovered after %d attempt(s)", attempt)
			return
		}
		logger.Warnf("oidc: discovery attempt %d failed: %v", attempt, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
