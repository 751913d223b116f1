package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rentwise/portal/internal/config"
	"github.com/rentwise/portal/internal/invalidation"
	"github.com/rentwise/portal/internal/models"
	"github.com/rentwise/portal/internal/oidc"
	"github.com/rentwise/portal/internal/override"
	"github.com/rentwise/portal/internal/sessions"
	"github.com/rentwise/portal/internal/tokens"
	"github.com/rentwise/portal/internal/users"
	"github.com/rentwise/portal/pkg/logger"
	"github.com/rentwise/portal/pkg/middleware"
)

const stateCookie = "oauth_state"

// LoginRequest selects the grant. Password mode is refused in production.
type LoginRequest struct {
	Mode     string `json:"mode" binding:"required"` // "password" | "auth_code"
	Username string `json:"username"`
	Password string `json:"password"`
	Code     string `json:"code"`
	State    string `json:"state"`
}

// AuthHandler holds dependencies
type AuthHandler struct {
	cfg         *config.Config
	usersSvc    *users.Service
	sessionsSvc *sessions.Service
	blacklist   *sessions.Blacklist
	oidc        *oidc.Holder
	tracker     *invalidation.Tracker
	overrides   *override.Registry
}

type AuthDeps struct {
	Users     *users.Service
	Sessions  *sessions.Service
	Blacklist *sessions.Blacklist
	OIDC      *oidc.Holder
	Tracker   *invalidation.Tracker
	Overrides *override.Registry
}

func NewAuthHandler(cfg *config.Config, d AuthDeps) *AuthHandler {
	return &AuthHandler{
		cfg:         cfg,
		usersSvc:    d.Users,
		sessionsSvc: d.Sessions,
		blacklist:   d.Blacklist,
		oidc:        d.OIDC,
		tracker:     d.Tracker,
		overrides:   d.Overrides,
	}
}

// Register routes under /auth
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	a.GET("/login/url", h.LoginURL)
	a.POST("/login", h.Login)
	a.POST("/refresh", h.Refresh)
	a.POST("/logout", h.Logout)
}

func (h *AuthHandler) authenticator() (oidc.Authenticator, bool) {
	if h.oidc == nil {
		return nil, false
	}
	v, ok := h.oidc.Get()
	if !ok {
		return nil, false
	}
	a, ok := v.(oidc.Authenticator)
	return a, ok
}

// LoginURL returns the identity provider URL that starts the authorization-code flow.
func (h *AuthHandler) LoginURL(c *gin.Context) {
	a, ok := h.authenticator()
	if !ok {
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "identity provider not ready"})
		return
	}
	state := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookie, state, 600, "/", "", h.cfg.IsProduction(), true)
	c.JSON(http.StatusOK, gin.H{"url": a.AuthCodeURL(state), "state": state})
}

// Login exchanges credentials with the identity provider and issues portal tokens.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, ok := h.authenticator()
	if !ok {
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "identity provider not ready"})
		return
	}

	ctx := c.Request.Context()
	var tok oidc.Token
	var err error
	switch req.Mode {
	case "password":
		if h.cfg.IsProduction() {
			c.JSON(http.StatusForbidden, gin.H{"error": "password login disabled"})
			return
		}
		tok, err = a.PasswordLogin(ctx, req.Username, req.Password)
	case "auth_code":
		if req.Code == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "code required for auth_code mode"})
			return
		}
		if want, cerr := c.Cookie(stateCookie); cerr == nil && want != req.State {
			c.JSON(http.StatusBadRequest, gin.H{"error": "state mismatch"})
			return
		}
		logger.Debugf("Login(auth_code): received code length=%d", len(req.Code))
		tok, err = a.Exchange(ctx, req.Code)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported mode"})
		return
	}
	if err != nil {
		logger.Warnf("login (%s) failed: %v", req.Mode, err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}

	var claims map[string]interface{}
	if err := tok.Claims(&claims); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid id token"})
		return
	}
	u, err := h.usersSvc.UpsertFromClaims(ctx, claims)
	if err != nil {
		logger.Errorf("user upsert error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user upsert failed"})
		return
	}
	if u == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "id token has no subject"})
		return
	}

	vs := middleware.ViewSessionID(c)
	rft, err := h.sessionsSvc.Issue(ctx, sessions.Grant{Sub: u.Sub, ViewSession: vs, Roles: u.Roles}, h.cfg.JWT.RefreshTokenTTL)
	if err != nil {
		logger.Errorf("failed to create session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	access, ok := h.issueAccess(c, u)
	if !ok {
		return
	}
	if h.tracker != nil {
		if err := h.tracker.Track(ctx, vs, u.Sub); err != nil {
			logger.Warnf("login: invalidation subscribe for %s: %v", u.Sub, err)
		}
	}
	c.SetCookie(stateCookie, "", -1, "/", "", h.cfg.IsProduction(), true)
	c.JSON(http.StatusOK, gin.H{"accessToken": access, "refreshToken": rft, "user": u, "expiresIn": int(h.cfg.JWT.AccessTokenTTL.Seconds())})
}

func (h *AuthHandler) issueAccess(c *gin.Context, u *models.User) (string, bool) {
	access, err := tokens.GenerateAccessToken(h.cfg.JWT.Secret, u, h.cfg.JWT.AccessTokenTTL)
	if err != nil {
		logger.Errorf("access token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
		return "", false
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, access, int(h.cfg.JWT.AccessTokenTTL.Seconds()), "/", "", h.cfg.IsProduction(), true)
	return access, true
}

// Refresh accepts a refresh token and returns a new access token
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := h.sessionsSvc.Validate(c.Request.Context(), req.RefreshToken)
	if err != nil {
		logger.Errorf("refresh validation: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "validation failed"})
		return
	}
	if sess == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	u, err := h.usersSvc.GetBySub(c.Request.Context(), sess.Sub)
	if err != nil {
		logger.Errorf("refresh user lookup: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user lookup failed"})
		return
	}
	if u == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}
	u.Roles = sess.Roles
	access, ok := h.issueAccess(c, u)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": access, "expires_in": int(h.cfg.JWT.AccessTokenTTL.Seconds())})
}

// Logout revokes the refresh session, blacklists the current access token and
// drops the view session's override and invalidation subscription.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	if at := middleware.AccessToken(c); at != "" {
		if ttl := remaining(at); ttl > 0 {
			if err := h.blacklist.Add(ctx, at, ttl); err != nil {
				logger.Errorf("blacklist access token: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to blacklist access token"})
				return
			}
		}
	}
	if req.RefreshToken != "" {
		if err := h.sessionsSvc.Revoke(ctx, req.RefreshToken); err != nil {
			logger.Errorf("revoke refresh: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove session"})
			return
		}
	}
	if vs := middleware.ViewSessionID(c); vs != "" {
		if h.tracker != nil {
			h.tracker.Forget(vs)
		}
		if h.overrides != nil {
			h.overrides.Clear(vs)
		}
	}
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", "", h.cfg.IsProduction(), true)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// remaining returns the time left until exp. The signature is not checked.
func remaining(raw string) time.Duration {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil || claims.ExpiresAt == nil {
		return 0
	}
	return time.Until(claims.ExpiresAt.Time)
}
