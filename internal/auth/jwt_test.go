package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)
	token, err := m.GenerateAccessToken("alice", "alice@example.com")
	require.NoError(t, err)

	claims, err := m.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)

	_, err = m.GenerateAccessToken("", "")
	assert.Error(t, err)
}

func TestJWTRejects(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)

	other, err := NewJWTManager("other", time.Minute).GenerateAccessToken("alice", "")
	require.NoError(t, err)
	_, err = m.VerifyAccessToken(other)
	assert.Error(t, err, "wrong key")

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTClaims{
		UserID: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, err := expired.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = m.VerifyAccessToken(signed)
	assert.Error(t, err, "expired")

	_, err = m.VerifyAccessToken("garbage")
	assert.Error(t, err)
}

func TestExtractTokenFromHeader(t *testing.T) {
	token, err := ExtractTokenFromHeader("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", token)

	for _, h := range []string{"", "Bearer ", "Basic abc", "bearer abc"} {
		_, err := ExtractTokenFromHeader(h)
		assert.Error(t, err, h)
	}
}
