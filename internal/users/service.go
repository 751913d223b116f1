package users

import (
	"context"
	"errors"

	"github.com/rentwise/portal/internal/models"
)

var ErrNotFound = errors.New("user not found")

// Service encapsulates user-related business logic
type Service struct {
	repo UserRepository
}

func NewService(r UserRepository) *Service {
	return &Service{repo: r}
}

// FromClaims maps token claims to a transient identity. Returns nil when
// the subject is missing.
func FromClaims(claims map[string]interface{}) *models.User {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	return &models.User{Sub: sub, Email: email, Name: name, Roles: claimRoles(claims)}
}

// UpsertFromClaims creates or updates a user using OIDC claims map
func (s *Service) UpsertFromClaims(ctx context.Context, claims map[string]interface{}) (*models.User, error) {
	u := FromClaims(claims)
	if u == nil {
		return nil, nil
	}
	return s.repo.UpsertBySub(ctx, u)
}

func (s *Service) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	return s.repo.GetBySub(ctx, sub)
}

// SetAdminFlag writes the metadata administrator flag.
func (s *Service) SetAdminFlag(ctx context.Context, sub string, admin bool) error {
	return s.repo.SetMetadata(ctx, sub, "is_admin", admin)
}

// claimRoles reads "roles" and Keycloak's "realm_access.roles".
func claimRoles(claims map[string]interface{}) []string {
	var out []string
	add := func(v interface{}) {
		switch rs := v.(type) {
		case []interface{}:
			for _, r := range rs {
				if s, ok := r.(string); ok && s != "" {
					out = append(out, s)
				}
			}
		case []string:
			out = append(out, rs...)
		}
	}
	add(claims["roles"])
	if ra, ok := claims["realm_access"].(map[string]interface{}); ok {
		add(ra["roles"])
	}
	return out
}
