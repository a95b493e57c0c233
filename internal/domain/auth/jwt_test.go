package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))

	token, expiresAt, err := svc.GenerateAccessToken(
		"user-1", "staff@gym.sa",
		[]string{RoleBilling}, []string{"org-1", "org-2"}, false,
	)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	user, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.UserID)
	assert.Equal(t, "staff@gym.sa", user.Email)
	assert.Equal(t, []string{RoleBilling}, user.Roles)
	assert.Equal(t, []string{"org-1", "org-2"}, user.OrgIDs)
	assert.False(t, user.IsAdmin)
}

func TestJWTService_AdminFlag(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))

	token, _, err := svc.GenerateAccessToken("user-1", "admin@gym.sa", nil, nil, true)
	require.NoError(t, err)

	user, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.True(t, user.IsAdmin)
}

func TestJWTService_WrongSecret(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))
	other := NewJWTService(DefaultJWTConfig("other-secret"))

	token, _, err := svc.GenerateAccessToken("user-1", "staff@gym.sa", nil, nil, false)
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTService_Expired(t *testing.T) {
	cfg := DefaultJWTConfig("test-secret")
	cfg.AccessTokenTTL = -time.Minute
	svc := NewJWTService(cfg)

	token, _, err := svc.GenerateAccessToken("user-1", "staff@gym.sa", nil, nil, false)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}
