package models

import (
	"strings"
	"time"
)

// User represents an application user (mapped from identity provider claims)
type User struct {
	ID    string `bson:"_id,omitempty" json:"id"`
	Sub   string `bson:"sub" json:"sub"` // OIDC subject, used as the user id
	Email string `bson:"email" json:"email"`
	Name  string `bson:"name" json:"name"`
	// Metadata is managed by operators; it may carry an "is_admin" flag.
	Metadata map[string]interface{} `bson:"metadata,omitempty" json:"metadata,omitempty"`
	// Roles come from token claims and are never persisted.
	Roles     []string  `bson:"-" json:"roles,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// MetadataAdmin reports the administrator flag stored in the user metadata.
func (u *User) MetadataAdmin() bool {
	if u == nil || u.Metadata == nil {
		return false
	}
	switch v := u.Metadata["is_admin"].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	}
	return false
}

// HasRole reports whether the identity provider granted the named role.
func (u *User) HasRole(role string) bool {
	if u == nil || role == "" {
		return false
	}
	for _, r := range u.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}
