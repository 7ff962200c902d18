package service

import (
	"context"
	"testing"
	"time"

	"reaction_timer_backend/internal/config"
	"reaction_timer_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthService(t *testing.T, e *testEnv) *AuthService {
	t.Helper()
	cfg := &config.Config{
		JWT: config.JWTConfig{Secret: "test-secret-that-is-long-enough-1234", ExpireTime: time.Hour},
	}
	return NewAuthService(e.users, cfg, e.audit, e.clock)
}

func TestRegisterAndLogin(t *testing.T) {
	e := newTestEnv(t, testCooldown)
	auth := newTestAuthService(t, e)
	ctx := context.Background()

	user, err := auth.Register(ctx, "speedy_1", "hunter22", testClientKey)
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.NotEqual(t, "hunter22", user.Password)

	_, err = auth.Register(ctx, "speedy_1", "another1", testClientKey)
	assert.ErrorIs(t, err, util.ErrUsernameTaken)

	token, logged, err := auth.Login(ctx, "speedy_1", "hunter22", testClientKey)
	require.NoError(t, err)
	assert.Equal(t, user.ID, logged.ID)
	require.NotNil(t, logged.LastLogin)

	claims, err := util.ParseJWT(token, auth.Cfg.JWT.Secret)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "speedy_1", claims.Username)

	_, _, err = auth.Login(ctx, "speedy_1", "wrong-password", testClientKey)
	assert.ErrorIs(t, err, util.ErrInvalidCredentials)
	_, _, err = auth.Login(ctx, "nobody", "hunter22", testClientKey)
	assert.ErrorIs(t, err, util.ErrInvalidCredentials)

	me, err := auth.CurrentUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "speedy_1", me.Username)

	_, err = auth.CurrentUser(ctx, 9999)
	assert.ErrorIs(t, err, util.ErrUserNotFound)
}

func TestRegisterValidatesInput(t *testing.T) {
	e := newTestEnv(t, testCooldown)
	auth := newTestAuthService(t, e)
	ctx := context.Background()

	_, err := auth.Register(ctx, "a!", "hunter22", testClientKey)
	assert.ErrorIs(t, err, ErrInvalidUsername)
	_, err = auth.Register(ctx, "valid_name", "123", testClientKey)
	assert.ErrorIs(t, err, ErrInvalidPassword)
}
