package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrNoSubject is returned when a session is requested without a user.
var ErrNoSubject = errors.New("sessions: subject required")

// Grant describes what a refresh session carries from login to refresh.
type Grant struct {
	Sub string
	// ViewSession is the browser tab the login happened in. Logout uses it to
	// drop that tab's override and invalidation tracking.
	ViewSession string
	// Roles are the identity provider roles seen at login. Refresh replays
	// them because a refresh has no fresh id token to read them from.
	Roles []string
}

// Service issues and checks the opaque refresh tokens of portal logins.
// Sessions live in a Repository, Redis in production and memory in dev.
type Service struct {
	repo Repository
}

func NewService(r Repository) *Service { return &Service{repo: r} }

// Issue stores a session for g that expires after ttl and returns its
// refresh token.
func (s *Service) Issue(ctx context.Context, g Grant, ttl time.Duration) (string, error) {
	if g.Sub == "" {
		return "", ErrNoSubject
	}
	token, err := newRefreshToken()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	err = s.repo.Create(ctx, &Session{
		RefreshToken: token,
		Sub:          g.Sub,
		ViewSession:  g.ViewSession,
		Roles:        append([]string(nil), g.Roles...),
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("store session for %s: %w", g.Sub, err)
	}
	return token, nil
}

// Validate returns the live session behind refresh, or nil when the token is
// unknown or expired. Expired sessions are removed on sight.
func (s *Service) Validate(ctx context.Context, refresh string) (*Session, error) {
	if refresh == "" {
		return nil, nil
	}
	sess, err := s.repo.GetByRefresh(ctx, refresh)
	if err != nil || sess == nil {
		return nil, err
	}
	if !time.Now().UTC().Before(sess.ExpiresAt) {
		_ = s.repo.DeleteByRefresh(ctx, refresh)
		return nil, nil
	}
	return sess, nil
}

// Revoke ends the session at logout. Unknown tokens are not an error.
func (s *Service) Revoke(ctx context.Context, refresh string) error {
	return s.repo.DeleteByRefresh(ctx, refresh)
}

func newRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
