// Package roles derives the portal role of an identity.
package roles

import (
	"context"
	"strings"

	"github.com/rentwise/portal/internal/models"
	"github.com/rentwise/portal/pkg/logger"
)

// Role is derived from identity attributes and never stored.
type Role string

const (
	Regular       Role = "regular"
	Administrator Role = "administrator"
)

// Parse maps user input to a Role; anything unknown is Regular.
func Parse(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin", "administrator":
		return Administrator
	}
	return Regular
}

// AdminChecker is the identity provider's own administrator check.
type AdminChecker interface {
	IsAdministrator(ctx context.Context, u *models.User) (bool, error)
}

// Resolver combines the email allow-list, the metadata flag and the
// identity provider check.
type Resolver struct {
	allow   map[string]struct{}
	checker AdminChecker
}

func NewResolver(adminEmails []string, checker AdminChecker) *Resolver {
	allow := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		if e = normalizeEmail(e); e != "" {
			allow[e] = struct{}{}
		}
	}
	return &Resolver{allow: allow, checker: checker}
}

// Allowed reports whether email is on the administrator allow-list.
func (r *Resolver) Allowed(email string) bool {
	_, ok := r.allow[normalizeEmail(email)]
	return ok
}

// Resolve returns the role of u. The allow-list wins over stale metadata;
// disagreement is logged and left as is.
func (r *Resolver) Resolve(ctx context.Context, u *models.User) (Role, error) {
	if u == nil {
		return Regular, nil
	}
	listed := r.Allowed(u.Email)
	flagged := u.MetadataAdmin()
	if listed != flagged {
		logger.L().Debug().Str("sub", u.Sub).Bool("allow_list", listed).Bool("metadata", flagged).
			Msg("administrator signals disagree")
	}
	if listed || flagged {
		return Administrator, nil
	}
	if r.checker != nil {
		ok, err := r.checker.IsAdministrator(ctx, u)
		if err != nil {
			return Regular, err
		}
		if ok {
			return Administrator, nil
		}
	}
	return Regular, nil
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
