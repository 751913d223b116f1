// Package override lets operators simulate an authenticated session in
// non-production environments where the identity provider is unavailable.
package override

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rentwise/portal/internal/roles"
	"github.com/rentwise/portal/pkg/logger"
	"github.com/rentwise/portal/pkg/metrics"
)

// ErrOverrideDenied is returned when enabling the override in production.
var ErrOverrideDenied = errors.New("access override is not available in production")

// State is the current override value.
type State struct {
	Enabled bool       `json:"enabled"`
	Role    roles.Role `json:"role"`
}

// Listener receives the enabled flag after every Enable/Disable.
type Listener func(enabled bool)

// Store holds the override state of one view session. The guard consults it
// only when no real identity exists.
type Store struct {
	production bool

	mu        sync.Mutex
	state     State
	listeners map[uint64]Listener
	nextID    uint64
	notice    string
}

func NewStore(production bool) *Store {
	return &Store{production: production, listeners: map[uint64]Listener{}}
}

// Enable turns the override on with the given synthetic role.
func (s *Store) Enable(role roles.Role) error {
	if s.production {
		metrics.OverrideToggles.WithLabelValues("denied").Inc()
		logger.Warnf("override: enable rejected in production (role=%s)", role)
		return ErrOverrideDenied
	}
	s.mu.Lock()
	s.state = State{Enabled: true, Role: role}
	s.notice = fmt.Sprintf("Access override active: browsing as %s without signing in.", role)
	s.mu.Unlock()

	metrics.OverrideToggles.WithLabelValues("enable").Inc()
	logger.Warnf("override: enabled (role=%s)", role)
	s.emit(true)
	return nil
}

// Disable clears the override.
func (s *Store) Disable() {
	s.mu.Lock()
	s.state = State{}
	s.notice = ""
	s.mu.Unlock()

	metrics.OverrideToggles.WithLabelValues("disable").Inc()
	logger.Infof("override: disabled")
	s.emit(false)
}

// Toggle disables an active override or enables it with role.
func (s *Store) Toggle(role roles.Role) (bool, error) {
	if s.IsEnabled() {
		s.Disable()
		return false, nil
	}
	if err := s.Enable(role); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) IsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Enabled
}

// CurrentRole returns the synthetic role, Regular when unset.
func (s *Store) CurrentRole() roles.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Enabled || s.state.Role == "" {
		return roles.Regular
	}
	return s.state.Role
}

// Snapshot returns the state and the user-visible notice.
func (s *Store) Snapshot() (State, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	if !st.Enabled || st.Role == "" {
		st.Role = roles.Regular
	}
	return st, s.notice
}

// Subscribe registers l and returns a function that removes it.
// Late subscribers get no replay of earlier changes.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// emit notifies every listener synchronously, outside the lock so listeners
// may read the store.
func (s *Store) emit(enabled bool) {
	s.mu.Lock()
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.mu.Unlock()
	for _, l := range ls {
		l(enabled)
	}
}
