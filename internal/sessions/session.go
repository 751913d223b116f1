package sessions

import "time"

// Session is a refresh session issued at login.
type Session struct {
	ID           string `bson:"_id,omitempty" json:"id"`
	RefreshToken string `bson:"refreshToken" json:"refreshToken"`
	Sub          string `bson:"sub" json:"sub"`
	ViewSession  string `bson:"viewSession,omitempty" json:"viewSession,omitempty"`
	// Roles granted by the identity provider at login, replayed on refresh.
	Roles     []string  `bson:"roles,omitempty" json:"roles,omitempty"`
	ExpiresAt time.Time `bson:"expiresAt" json:"expiresAt"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}
