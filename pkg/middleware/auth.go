package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rentwise/portal/internal/guard"
	"github.com/rentwise/portal/internal/identity"
)

const (
	// AccessTokenCookie carries the access token for browser clients.
	AccessTokenCookie = "access_token"
	// ViewSessionCookie scopes per-tab state such as the developer override.
	ViewSessionCookie = "portal_view"

	// SubjectKey holds the *guard.Subject of an admitted request.
	SubjectKey     = "subject"
	viewSessionKey = "viewSession"
	viewIssuedKey  = "viewSessionIssued"
	tokenKey       = "accessToken"
)

// ViewSession makes sure every request carries a view-session id,
// issuing a fresh one when the cookie is missing or malformed.
func ViewSession(ttl time.Duration, secure bool) gin.HandlerFunc {
	maxAge := int(ttl.Seconds())
	return func(c *gin.Context) {
		id, err := c.Cookie(ViewSessionCookie)
		if err != nil || uuid.Validate(id) != nil {
			id = uuid.NewString()
			c.Set(viewIssuedKey, true)
		}
		// refresh on every request so active tabs keep their session
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(ViewSessionCookie, id, maxAge, "/", "", secure, true)
		c.Set(viewSessionKey, id)
		c.Next()
	}
}

// Identify extracts the bearer token from the Authorization header or the
// access token cookie and stores it on the request context. It never rejects
// a request; the guard decides.
func Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := BearerToken(c); raw != "" {
			c.Set(tokenKey, raw)
			c.Request = c.Request.WithContext(identity.WithToken(c.Request.Context(), raw))
		}
		c.Next()
	}
}

// BearerToken returns the raw token of the request, header first.
func BearerToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		var token string
		if n, _ := fmt.Sscanf(auth, "Bearer %s", &token); n == 1 {
			return token
		}
		return ""
	}
	if v, err := c.Cookie(AccessTokenCookie); err == nil {
		return v
	}
	return ""
}

// ViewSessionID returns the id set by ViewSession.
func ViewSessionID(c *gin.Context) string {
	return c.GetString(viewSessionKey)
}

// ViewSessionIssued reports whether the view session was created by this
// request, which is always the case for clients that drop cookies.
func ViewSessionIssued(c *gin.Context) bool {
	return c.GetBool(viewIssuedKey)
}

// SubjectFrom returns the subject of the guard decision that let the request through.
func SubjectFrom(c *gin.Context) (*guard.Subject, bool) {
	v, ok := c.Get(SubjectKey)
	if !ok {
		return nil, false
	}
	s, ok := v.(*guard.Subject)
	return s, ok && s != nil
}

// AccessToken returns the raw token found by Identify.
func AccessToken(c *gin.Context) string {
	return c.GetString(tokenKey)
}
