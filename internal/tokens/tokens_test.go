package tokens

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rentwise/portal/internal/models"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret-32-bytes-should-be-long-enough"

func TestGenerateAndParse(t *testing.T) {
	u := &models.User{Sub: "user-123", Name: "Test User", Email: "test@example.com", Roles: []string{"admin"}}
	raw, err := GenerateAccessToken(secret, u, 2*time.Minute)
	require.NoError(t, err)

	claims, err := ParseAccessToken(secret, raw)
	require.NoError(t, err)
	require.Equal(t, "user-123", claims.Subject)
	require.Equal(t, Issuer, claims.Issuer)

	back := claims.User()
	require.Equal(t, "test@example.com", back.Email)
	require.True(t, back.HasRole("admin"))
}

func TestGenerate_EmptySecret(t *testing.T) {
	_, err := GenerateAccessToken("", &models.User{Sub: "x"}, time.Minute)
	require.Error(t, err)
}

func TestParse_Expired(t *testing.T) {
	raw, err := GenerateAccessToken(secret, &models.User{Sub: "u2"}, -time.Second)
	require.NoError(t, err)
	_, err = ParseAccessToken(secret, raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_WrongSecret(t *testing.T) {
	raw, err := GenerateAccessToken(secret, &models.User{Sub: "u3"}, time.Minute)
	require.NoError(t, err)
	_, err = ParseAccessToken("different-secret-xxxxxxxxxxxxxxxx", raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_Malformed(t *testing.T) {
	_, err := ParseAccessToken(secret, "not.a.jwt")
	require.ErrorIs(t, err, ErrInvalidToken)
	_, err = ParseAccessToken(secret, "")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_AlgNoneRejected(t *testing.T) {
	header := new(jwt.Token).EncodeSegment([]byte(`{"alg":"none"}`))
	payload := new(jwt.Token).EncodeSegment([]byte(`{"sub":"u-none","iss":"rentwise-portal","exp":9999999999}`))
	_, err := ParseAccessToken(secret, header+"."+payload+".")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_ForeignIssuerRejected(t *testing.T) {
	claims := jwt.MapClaims{"sub": "u4", "iss": "someone-else", "exp": time.Now().Add(time.Minute).Unix()}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = ParseAccessToken(secret, raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_TamperedPayload(t *testing.T) {
	raw, err := GenerateAccessToken(secret, &models.User{Sub: "user-t"}, 5*time.Minute)
	require.NoError(t, err)
	parts := strings.Split(raw, ".")
	require.Len(t, parts, 3)
	payload, err := jwt.NewParser().DecodeSegment(parts[1])
	require.NoError(t, err)
	parts[1] = new(jwt.Token).EncodeSegment([]byte(strings.Replace(string(payload), "user-t", "attacker", 1)))
	_, err = ParseAccessToken(secret, strings.Join(parts, "."))
	require.ErrorIs(t, err, ErrInvalidToken)
}
