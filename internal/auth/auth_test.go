package auth_test

import (
	"testing"

	"github.com/kasuwa/escrow-api/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoCredentialsIssueToken(t *testing.T) {
	svc := auth.NewService("test-secret")
	svc.RegisterAPICredentials(auth.DemoAPIKey, auth.DemoAPISecret, auth.DemoUserID)

	token, err := svc.GenerateToken(auth.Credentials{
		APIKey:    auth.DemoAPIKey,
		APISecret: auth.DemoAPISecret,
	})
	require.NoError(t, err)
	require.NotEmpty(t, token.Token)

	claims, err := svc.ValidateToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, auth.DemoUserID, claims.UserID)
}

func TestGenerateTokenRejectsBadCredentials(t *testing.T) {
	svc := auth.NewService("test-secret")
	svc.RegisterAPICredentials(auth.DemoAPIKey, auth.DemoAPISecret, auth.DemoUserID)

	_, err := svc.GenerateToken(auth.Credentials{
		APIKey:    auth.DemoAPIKey,
		APISecret: "wrong-secret",
	})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = svc.GenerateToken(auth.Credentials{
		APIKey:    "unknown-key",
		APISecret: auth.DemoAPISecret,
	})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}
