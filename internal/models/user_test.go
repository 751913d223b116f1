package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetadataAdmin(t *testing.T) {
	assert.False(t, (*User)(nil).MetadataAdmin())
	assert.False(t, (&User{}).MetadataAdmin())
	assert.True(t, (&User{Metadata: map[string]interface{}{"is_admin": true}}).MetadataAdmin())
	assert.True(t, (&User{Metadata: map[string]interface{}{"is_admin": " TRUE"}}).MetadataAdmin())
	assert.False(t, (&User{Metadata: map[string]interface{}{"is_admin": 1}}).MetadataAdmin())
}

func TestHasRole(t *testing.T) {
	u := &User{Roles: []string{"member", "Admin"}}
	assert.True(t, u.HasRole("admin"))
	assert.False(t, u.HasRole("owner"))
	assert.False(t, u.HasRole(""))
}
