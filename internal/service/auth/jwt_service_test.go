package auth

import (
	"context"
	"testing"
	"time"

	"github.com/dokusho-app/dokusho-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:        "0123456789abcdef0123456789abcdef",
		AdminKeyHash:     "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy",
		TokenLifetimeMin: 15,
	}
}

func TestNewJWTService(t *testing.T) {
	t.Parallel()

	t.Run("rejects short secret", func(t *testing.T) {
		t.Parallel()

		cfg := testAuthConfig()
		cfg.JWTSecret = "too-short"
		_, err := NewJWTService(cfg)
		assert.Error(t, err)
	})

	t.Run("accepts valid config", func(t *testing.T) {
		t.Parallel()

		svc, err := NewJWTService(testAuthConfig())
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})
}

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, err := NewJWTService(testAuthConfig())
	require.NoError(t, err)

	token, err := svc.GenerateToken(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
	assert.NotEmpty(t, claims.ID)
	assert.True(t, claims.ExpiresAt.After(claims.IssuedAt))
}

func TestValidateToken_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, err := NewJWTService(testAuthConfig())
	require.NoError(t, err)

	t.Run("malformed token", func(t *testing.T) {
		t.Parallel()

		_, err := svc.ValidateToken(ctx, "not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong signing key", func(t *testing.T) {
		t.Parallel()

		otherCfg := testAuthConfig()
		otherCfg.JWTSecret = "ffffffffffffffffffffffffffffffff"
		other, err := NewJWTService(otherCfg)
		require.NoError(t, err)

		token, err := other.GenerateToken(ctx)
		require.NoError(t, err)

		_, err = svc.ValidateToken(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired token", func(t *testing.T) {
		t.Parallel()

		impl, err := NewJWTService(testAuthConfig())
		require.NoError(t, err)

		// Issue a token in the past, beyond lifetime plus clock skew.
		hmacSvc, ok := impl.(*hmacJWTService)
		require.True(t, ok)
		hmacSvc.timeFunc = func() time.Time {
			return time.Now().Add(-time.Hour)
		}
		token, err := hmacSvc.GenerateToken(ctx)
		require.NoError(t, err)

		hmacSvc.timeFunc = time.Now
		_, err = hmacSvc.ValidateToken(ctx, token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})
}

func TestAdminKeyVerifier(t *testing.T) {
	t.Parallel()

	hash, err := HashKey("correct horse battery staple")
	require.NoError(t, err)

	t.Run("rejects malformed hash", func(t *testing.T) {
		t.Parallel()

		_, err := NewAdminKeyVerifier("definitely-not-bcrypt")
		assert.Error(t, err)
	})

	t.Run("accepts matching key", func(t *testing.T) {
		t.Parallel()

		v, err := NewAdminKeyVerifier(hash)
		require.NoError(t, err)
		assert.NoError(t, v.Verify("correct horse battery staple"))
	})

	t.Run("rejects wrong key", func(t *testing.T) {
		t.Parallel()

		v, err := NewAdminKeyVerifier(hash)
		require.NoError(t, err)
		assert.ErrorIs(t, v.Verify("wrong key"), ErrInvalidAdminKey)
	})
}
