package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rentwise/portal/internal/config"
	"github.com/rentwise/portal/internal/invalidation"
	"github.com/rentwise/portal/internal/oidc"
	"github.com/rentwise/portal/internal/override"
	"github.com/rentwise/portal/internal/roles"
	"github.com/rentwise/portal/internal/sessions"
	"github.com/rentwise/portal/internal/tokens"
	"github.com/rentwise/portal/internal/users"
	"github.com/rentwise/portal/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const authSecret = "handlers-test-secret-32-bytes-xxxx"

type claimsTok map[string]interface{}

func (t claimsTok) Claims(v interface{}) error {
	b, err := json.Marshal(map[string]interface{}(t))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// fakeAuth stands in for the identity provider.
type fakeAuth struct {
	claims claimsTok
	err    error
	code   string
}

func (f *fakeAuth) Verify(ctx context.Context, raw string) (oidc.Token, error) {
	return nil, errors.New("not used")
}
func (f *fakeAuth) AuthCodeURL(state string) string { return "https://idp.test/auth?state=" + state }
func (f *fakeAuth) Exchange(ctx context.Context, code string) (oidc.Token, error) {
	f.code = code
	return f.claims, f.err
}
func (f *fakeAuth) PasswordLogin(ctx context.Context, u, p string) (oidc.Token, error) {
	return f.claims, f.err
}

type authFixture struct {
	router    *gin.Engine
	holder    *oidc.Holder
	auth      *fakeAuth
	tracker   *invalidation.Tracker
	registry  *override.Registry
	blacklist *sessions.Blacklist
	cfg       *config.Config
}

func newAuthFixture(t *testing.T, production bool) *authFixture {
	t.Helper()
	s := mr.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	cfg := &config.Config{}
	cfg.JWT = config.JWTConfig{Secret: authSecret, AccessTokenTTL: 15 * time.Minute, RefreshTokenTTL: time.Hour}
	if production {
		cfg.Server.Environment = "production"
	}

	f := &authFixture{
		holder:    oidc.NewHolder(),
		auth:      &fakeAuth{claims: claimsTok{"sub": "u-1", "email": "ann@rentwise.io", "name": "Ann", "roles": []string{"admin"}}},
		tracker:   invalidation.NewTracker(invalidation.NewLocalChannel(), func(string) {}, time.Hour),
		registry:  override.NewRegistry(production, time.Hour),
		blacklist: sessions.NewBlacklist(rc),
		cfg:       cfg,
	}
	h := NewAuthHandler(cfg, AuthDeps{
		Users:     users.NewService(users.NewMemoryUserRepository()),
		Sessions:  sessions.NewService(sessions.NewRedisRepository(rc, "")),
		Blacklist: f.blacklist,
		OIDC:      f.holder,
		Tracker:   f.tracker,
		Overrides: f.registry,
	})

	r := gin.New()
	r.Use(middleware.ViewSession(time.Hour, false), middleware.Identify())
	h.Register(r.Group("/"))
	f.router = r
	return f
}

func (f *authFixture) do(method, path, body string, mod func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if mod != nil {
		mod(req)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

type loginResp struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
}

func withView(id string) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: middleware.ViewSessionCookie, Value: id}) }
}

const viewID = "5b0f8a4e-3c1d-4a8e-9f2b-6d7c8e9f0a1b"

func TestLogin_WaitsForIdentityProvider(t *testing.T) {
	f := newAuthFixture(t, false)
	w := f.do("POST", "/auth/login", `{"mode":"auth_code","code":"abc"}`, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestLogin_AuthCodeIssuesTokens(t *testing.T) {
	f := newAuthFixture(t, false)
	f.holder.Set(f.auth)

	w := f.do("POST", "/auth/login", `{"mode":"auth_code","code":"abc"}`, withView(viewID))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "abc", f.auth.code)

	var resp loginResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, 900, resp.ExpiresIn)

	claims, err := tokens.ParseAccessToken(authSecret, resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "u-1", claims.Subject)
	require.Contains(t, claims.Roles, "admin")

	var cookie bool
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.AccessTokenCookie && c.Value == resp.AccessToken {
			cookie = true
		}
	}
	require.True(t, cookie, "access token cookie not set")
	require.Equal(t, 1, f.tracker.Len())
}

func TestLogin_StateMismatchRejected(t *testing.T) {
	f := newAuthFixture(t, false)
	f.holder.Set(f.auth)
	w := f.do("POST", "/auth/login", `{"mode":"auth_code","code":"abc","state":"other"}`, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: stateCookie, Value: "expected"})
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, f.auth.code)
}

func TestLogin_ExchangeFailureIsUnauthorized(t *testing.T) {
	f := newAuthFixture(t, false)
	f.auth.err = errors.New("invalid_grant")
	f.holder.Set(f.auth)
	w := f.do("POST", "/auth/login", `{"mode":"auth_code","code":"abc"}`, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.NotContains(t, w.Body.String(), "invalid_grant")
}

func TestLogin_PasswordModeDisabledInProduction(t *testing.T) {
	f := newAuthFixture(t, true)
	f.holder.Set(f.auth)
	w := f.do("POST", "/auth/login", `{"mode":"password","username":"ann","password":"pw"}`, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	dev := newAuthFixture(t, false)
	dev.holder.Set(dev.auth)
	w = dev.do("POST", "/auth/login", `{"mode":"password","username":"ann","password":"pw"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestLoginURL(t *testing.T) {
	f := newAuthFixture(t, false)
	f.holder.Set(f.auth)
	w := f.do("GET", "/auth/login/url", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct{ URL, State string }
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.State)
	assert.Equal(t, "https://idp.test/auth?state="+body.State, body.URL)
}

func TestRefresh_KeepsProviderRoles(t *testing.T) {
	f := newAuthFixture(t, false)
	f.holder.Set(f.auth)
	w := f.do("POST", "/auth/login", `{"mode":"auth_code","code":"abc"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp loginResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	w = f.do("POST", "/auth/refresh", `{"refresh_token":"`+resp.RefreshToken+`"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var ref struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ref))
	claims, err := tokens.ParseAccessToken(authSecret, ref.AccessToken)
	require.NoError(t, err)
	require.Contains(t, claims.Roles, "admin")

	w = f.do("POST", "/auth/refresh", `{"refresh_token":"nope"}`, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogout_RevokesEverything(t *testing.T) {
	f := newAuthFixture(t, false)
	f.holder.Set(f.auth)
	w := f.do("POST", "/auth/login", `{"mode":"auth_code","code":"abc"}`, withView(viewID))
	require.Equal(t, http.StatusOK, w.Code)
	var resp loginResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NoError(t, f.registry.Ensure(viewID).Enable(roles.Administrator))

	w = f.do("POST", "/auth/logout", `{"refresh_token":"`+resp.RefreshToken+`"}`, func(r *http.Request) {
		withView(viewID)(r)
		r.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	listed, err := f.blacklist.Contains(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	require.True(t, listed)
	require.Equal(t, 0, f.tracker.Len())
	_, ok := f.registry.Lookup(viewID)
	require.False(t, ok)

	w = f.do("POST", "/auth/refresh", `{"refresh_token":"`+resp.RefreshToken+`"}`, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogout_WithoutBody(t *testing.T) {
	f := newAuthFixture(t, false)
	w := f.do("POST", "/auth/logout", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}
