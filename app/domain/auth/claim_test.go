package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"menlo.ai/jan-feed-gateway/config/environment_variables"
)

func TestJwtRoundTrip(t *testing.T) {
	environment_variables.EnvironmentVariables.JWT_SECRET = []byte("test-secret")

	signed, err := CreateJwtSignedString(ViewerClaim{
		Name: "Ada",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)

	claim, err := ParseJwt(signed)
	require.NoError(t, err)
	assert.Equal(t, "u1", claim.ViewerID())
	assert.Equal(t, "Ada", claim.Name)
	assert.False(t, claim.Admin)
}

func TestParseJwt_Rejects(t *testing.T) {
	environment_variables.EnvironmentVariables.JWT_SECRET = []byte("test-secret")

	expired, err := CreateJwtSignedString(ViewerClaim{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	require.NoError(t, err)

	otherKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, ViewerClaim{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":   expired,
		"wrong key": otherKey,
		"garbage":   "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseJwt(token)
			assert.Error(t, err)
		})
	}
}
