package jwt

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTokenRoundTrip(t *testing.T) {
	a := NewAuthenticator("test-secret")

	token, err := a.IssueToken("user-42", time.Minute)
	require.NoError(t, err)

	userID, err := a.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	token, err := NewAuthenticator("secret-a").IssueToken("user-42", time.Minute)
	require.NoError(t, err)

	_, err = NewAuthenticator("secret-b").ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	a := NewAuthenticator("test-secret")

	token, err := a.IssueToken("user-42", -time.Minute)
	require.NoError(t, err)

	_, err = a.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsMissingSubject(t *testing.T) {
	a := NewAuthenticator("test-secret")

	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	token, err := raw.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = a.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	a := NewAuthenticator("test-secret")

	_, err := a.ValidateToken(context.Background(), "not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
