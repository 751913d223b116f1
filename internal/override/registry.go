package override

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Registry scopes override stores to view sessions. Entries expire with
// the view session and are never persisted.
type Registry struct {
	production bool
	stores     *gocache.Cache

	mu       sync.RWMutex
	onChange ChangeFunc
}

// ChangeFunc is told when the override of view session key is switched on
// or off. An expiring store that was still on reports off.
type ChangeFunc func(key string, enabled bool)

func NewRegistry(production bool, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	r := &Registry{production: production, stores: gocache.New(ttl, time.Minute)}
	r.stores.OnEvicted(func(key string, v interface{}) {
		if v.(*Store).IsEnabled() {
			r.notify(key, false)
		}
	})
	return r
}

// OnChange installs fn as the listener of every store of the registry.
func (r *Registry) OnChange(fn ChangeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

func (r *Registry) notify(key string, enabled bool) {
	r.mu.RLock()
	fn := r.onChange
	r.mu.RUnlock()
	if fn != nil {
		fn(key, enabled)
	}
}

// Lookup returns the store of a view session, if one was created.
func (r *Registry) Lookup(key string) (*Store, bool) {
	if key == "" {
		return nil, false
	}
	v, ok := r.stores.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*Store), true
}

// Ensure returns the store of a view session, creating it on first use.
func (r *Registry) Ensure(key string) *Store {
	if s, ok := r.Lookup(key); ok {
		r.stores.SetDefault(key, s)
		return s
	}
	s := NewStore(r.production)
	s.Subscribe(func(enabled bool) { r.notify(key, enabled) })
	if err := r.stores.Add(key, s, gocache.DefaultExpiration); err != nil {
		// lost a race with a concurrent Ensure
		if existing, ok := r.Lookup(key); ok {
			return existing
		}
		r.stores.SetDefault(key, s)
	}
	return s
}

// Clear disables and drops the store of a view session (logout).
func (r *Registry) Clear(key string) {
	if s, ok := r.Lookup(key); ok {
		if s.IsEnabled() {
			s.Disable()
		}
		r.stores.Delete(key)
	}
}

func (r *Registry) Production() bool { return r.production }
