package identity

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rentwise/portal/internal/models"
	"github.com/rentwise/portal/internal/oidc"
	"github.com/rentwise/portal/internal/sessions"
	"github.com/rentwise/portal/internal/tokens"
	"github.com/rentwise/portal/internal/users"
	"github.com/stretchr/testify/require"
)

const secret = "identity-test-secret-32-bytes-xxxxx"

func portalToken(t *testing.T, u *models.User) string {
	t.Helper()
	raw, err := tokens.GenerateAccessToken(secret, u, time.Minute)
	require.NoError(t, err)
	return raw
}

func idToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	b, err := json.Marshal(claims)
	require.NoError(t, err)
	return "hdr." + base64.RawURLEncoding.EncodeToString(b) + ".sig"
}

func TestCurrentSession_NoToken(t *testing.T) {
	p := NewProvider(Options{Secret: secret})
	s, err := p.CurrentSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, s.User)
	require.False(t, s.Loading)
}

func TestCurrentSession_PortalToken(t *testing.T) {
	p := NewProvider(Options{Secret: secret})
	ctx := WithToken(context.Background(), portalToken(t, &models.User{Sub: "u1", Email: "u1@example.com"}))
	s, err := p.CurrentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, s.User)
	require.Equal(t, "u1", s.User.Sub)
}

func TestCurrentSession_InvalidTokenIsAnonymous(t *testing.T) {
	p := NewProvider(Options{Secret: secret})
	s, err := p.CurrentSession(WithToken(context.Background(), "not-a-token"))
	require.NoError(t, err)
	require.Nil(t, s.User)
}

func TestCurrentSession_LoadingUntilDiscovery(t *testing.T) {
	h := oidc.NewHolder()
	p := NewProvider(Options{Secret: secret, OIDC: h})
	ctx := WithToken(context.Background(), idToken(t, map[string]interface{}{"sub": "kc-1"}))

	s, err := p.CurrentSession(ctx)
	require.NoError(t, err)
	require.True(t, s.Loading)

	h.Set(oidc.NewInsecureVerifier())
	s, err = p.CurrentSession(ctx)
	require.NoError(t, err)
	require.False(t, s.Loading)
	require.Equal(t, "kc-1", s.User.Sub)
}

func TestCurrentSession_PortalTokenDoesNotWaitForDiscovery(t *testing.T) {
	p := NewProvider(Options{Secret: secret, OIDC: oidc.NewHolder()})
	s, err := p.CurrentSession(WithToken(context.Background(), portalToken(t, &models.User{Sub: "u1"})))
	require.NoError(t, err)
	require.False(t, s.Loading)
	require.NotNil(t, s.User)
}

func TestCurrentSession_BlacklistedTokenIsAnonymous(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()
	bl := sessions.NewBlacklist(redis.NewClient(&redis.Options{Addr: m.Addr()}))

	raw := portalToken(t, &models.User{Sub: "u1"})
	require.NoError(t, bl.Add(context.Background(), raw, time.Minute))

	p := NewProvider(Options{Secret: secret, Blacklist: bl})
	s, err := p.CurrentSession(WithToken(context.Background(), raw))
	require.NoError(t, err)
	require.Nil(t, s.User)
}

type failingBlacklist struct{}

func (failingBlacklist) Contains(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestCurrentSession_BlacklistErrorSurfaces(t *testing.T) {
	p := NewProvider(Options{Secret: secret, Blacklist: failingBlacklist{}})
	_, err := p.CurrentSession(WithToken(context.Background(), portalToken(t, &models.User{Sub: "u1"})))
	require.Error(t, err)
}

func TestCurrentSession_EnrichedWithStoredMetadata(t *testing.T) {
	repo := users.NewMemoryUserRepository()
	svc := users.NewService(repo)
	ctx := context.Background()
	_, err := svc.UpsertFromClaims(ctx, map[string]interface{}{"sub": "u1", "email": "u1@example.com"})
	require.NoError(t, err)
	require.NoError(t, svc.SetAdminFlag(ctx, "u1", true))

	p := NewProvider(Options{Secret: secret, Users: svc})
	s, err := p.CurrentSession(WithToken(ctx, portalToken(t, &models.User{Sub: "u1"})))
	require.NoError(t, err)
	require.True(t, s.User.MetadataAdmin())
	require.Equal(t, "u1@example.com", s.User.Email)
}

func TestIsAdministrator(t *testing.T) {
	p := NewProvider(Options{AdminRole: "admin"})
	ok, err := p.IsAdministrator(context.Background(), &models.User{Roles: []string{"Admin"}})
	require.NoError(t, err)
	require.True(t, ok)
	ok, _ = p.IsAdministrator(context.Background(), &models.User{Roles: []string{"tenant"}})
	require.False(t, ok)
}
