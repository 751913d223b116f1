// Package identity resolves the signed-in user of a request.
package identity

import (
	"context"
	"fmt"

	"github.com/rentwise/portal/internal/models"
	"github.com/rentwise/portal/internal/oidc"
	"github.com/rentwise/portal/internal/tokens"
	"github.com/rentwise/portal/internal/users"
	"github.com/rentwise/portal/pkg/logger"
)

// Session is the current identity as seen by the guard. User is nil when
// nobody is signed in. Loading is set while the identity provider is not
// yet usable.
type Session struct {
	User    *models.User
	Loading bool
}

type tokenKey struct{}

// WithToken stores the raw bearer token on ctx.
func WithToken(ctx context.Context, raw string) context.Context {
	return context.WithValue(ctx, tokenKey{}, raw)
}

// TokenFrom returns the raw bearer token stored by WithToken.
func TokenFrom(ctx context.Context) string {
	s, _ := ctx.Value(tokenKey{}).(string)
	return s
}

// Blacklist reports revoked access tokens.
type Blacklist interface {
	Contains(ctx context.Context, token string) (bool, error)
}

// UserStore returns the stored user record, or nil when unknown.
type UserStore interface {
	GetBySub(ctx context.Context, sub string) (*models.User, error)
}

type Options struct {
	// Secret verifies portal-issued access tokens.
	Secret string
	// OIDC is nil when no identity provider is configured.
	OIDC      *oidc.Holder
	Blacklist Blacklist
	Users     UserStore
	AdminRole string
}

// Provider is the session source backing the guard.
type Provider struct {
	opts Options
}

func NewProvider(opts Options) *Provider {
	return &Provider{opts: opts}
}

// CurrentSession resolves the token on ctx. Invalid or revoked tokens
// yield an empty session; only backend failures are returned as errors.
func (p *Provider) CurrentSession(ctx context.Context) (Session, error) {
	raw := TokenFrom(ctx)
	if raw == "" {
		return Session{}, nil
	}
	if p.opts.Blacklist != nil {
		revoked, err := p.opts.Blacklist.Contains(ctx, raw)
		if err != nil {
			return Session{}, fmt.Errorf("blacklist lookup: %w", err)
		}
		if revoked {
			return Session{}, nil
		}
	}

	u, loading := p.verify(ctx, raw)
	if loading {
		return Session{Loading: true}, nil
	}
	if u == nil {
		return Session{}, nil
	}

	if p.opts.Users != nil {
		stored, err := p.opts.Users.GetBySub(ctx, u.Sub)
		if err != nil {
			return Session{}, fmt.Errorf("user lookup: %w", err)
		}
		if stored != nil {
			u.ID = stored.ID
			u.Metadata = stored.Metadata
			u.CreatedAt, u.UpdatedAt = stored.CreatedAt, stored.UpdatedAt
			if u.Email == "" {
				u.Email = stored.Email
			}
			if u.Name == "" {
				u.Name = stored.Name
			}
		}
	}
	return Session{User: u}, nil
}

// verify tries the portal token first, then the identity provider.
func (p *Provider) verify(ctx context.Context, raw string) (u *models.User, loading bool) {
	if claims, err := tokens.ParseAccessToken(p.opts.Secret, raw); err == nil {
		return claims.User(), false
	}
	if p.opts.OIDC == nil {
		return nil, false
	}
	v, ok := p.opts.OIDC.Get()
	if !ok {
		return nil, true
	}
	tok, err := v.Verify(ctx, raw)
	if err != nil {
		logger.Debugf("identity: token rejected: %v", err)
		return nil, false
	}
	var claims map[string]interface{}
	if err := tok.Claims(&claims); err != nil {
		logger.Debugf("identity: unreadable claims: %v", err)
		return nil, false
	}
	return users.FromClaims(claims), false
}

// IsAdministrator is the identity provider's role check.
func (p *Provider) IsAdministrator(_ context.Context, u *models.User) (bool, error) {
	return u.HasRole(p.opts.AdminRole), nil
}
