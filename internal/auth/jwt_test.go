package auth_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/visuluxe/visuluxe/internal/auth"
)

func TestJWTService_GenerateToken(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret", 24*time.Hour)

	userID := uuid.New()
	email := "test@example.com"
	role := "admin"

	t.Run("generates valid token", func(t *testing.T) {
		token, err := jwtService.GenerateToken(userID, email, role)
		require.NoError(t, err)
		assert.NotEmpty(t, token)

		// Should be parseable
		claims, err := jwtService.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, userID, claims.UserID)
		assert.Equal(t, email, claims.Email)
		assert.Equal(t, role, claims.Role)
	})

	t.Run("token contains correct issuer", func(t *testing.T) {
		token, err := jwtService.GenerateToken(userID, email, role)
		require.NoError(t, err)

		claims, err := jwtService.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, "visuluxe", claims.Issuer)
	})

	t.Run("token contains correct subject", func(t *testing.T) {
		token, err := jwtService.GenerateToken(userID, email, role)
		require.NoError(t, err)

		claims, err := jwtService.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, userID.String(), claims.Subject)
	})
}

func TestJWTService_ValidateToken(t *testing.T) {
	userID := uuid.New()
	email := "test@example.com"
	role := "owner"

	t.Run("validates correct token", func(t *testing.T) {
		jwtService := auth.NewJWTService("test-secret", 24*time.Hour)

		token, err := jwtService.GenerateToken(userID, email, role)
		require.NoError(t, err)

		claims, err := jwtService.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, userID, claims.UserID)
	})

	t.Run("rejects expired token", func(t *testing.T) {
		// Create service with very short expiry
		jwtService := auth.NewJWTService("test-secret", 1*time.Millisecond)

		token, err := jwtService.GenerateToken(userID, email, role)
		require.NoError(t, err)

		// Wait for token to expire
		time.Sleep(10 * time.Millisecond)

		_, err = jwtService.ValidateToken(token)
		assert.ErrorIs(t, err, auth.ErrExpiredToken)
	})

	t.Run("rejects token signed with different secret", func(t *testing.T) {
		jwtService := auth.NewJWTService("test-secret", 24*time.Hour)
		otherService := auth.NewJWTService("other-secret", 24*time.Hour)

		token, err := jwtService.GenerateToken(userID, email, role)
		require.NoError(t, err)

		_, err = otherService.ValidateToken(token)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("rejects garbage token", func(t *testing.T) {
		jwtService := auth.NewJWTService("test-secret", 24*time.Hour)

		_, err := jwtService.ValidateToken("not.a.token")
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("rejects empty token", func(t *testing.T) {
		jwtService := auth.NewJWTService("test-secret", 24*time.Hour)

		_, err := jwtService.ValidateToken("")
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})
}
