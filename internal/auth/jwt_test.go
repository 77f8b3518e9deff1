package auth_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/voxpopulous/internal/auth"
	"github.com/hugh/voxpopulous/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService_GenerateToken(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret", 24*time.Hour)

	userID := uuid.New()
	tenantID := uuid.New()
	email := "maire@example.fr"
	kind := session.KindTenantAdmin

	t.Run("generates valid token", func(t *testing.T) {
		token, err := jwtService.GenerateToken(userID, &tenantID, kind, email)
		require.NoError(t, err)
		assert.NotEmpty(t, token)

		// Should be parseable
		claims, err := jwtService.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, userID, claims.SubjectID)
		require.NotNil(t, claims.TenantID)
		assert.Equal(t, tenantID, *claims.TenantID)
		assert.Equal(t, email, claims.Email)
		assert.Equal(t, kind, claims.Kind)
	})

	t.Run("token contains correct issuer", func(t *testing.T) {
		token, err := jwtService.GenerateToken(userID, &tenantID, kind, email)
		require.NoError(t, err)

		claims, err := jwtService.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, "voxpopulous", claims.Issuer)
	})

	t.Run("token contains correct subject", func(t *testing.T) {
		token, err := jwtService.GenerateToken(userID, &tenantID, kind, email)
		require.NoError(t, err)

		claims, err := jwtService.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, userID.String(), claims.Subject)
	})
}

func TestJWTService_ValidateToken(t *testing.T) {
	userID := uuid.New()
	tenantID := uuid.New()
	email := "maire@example.fr"
	kind := session.KindElectedOfficial

	t.Run("validates correct token", func(t *testing.T) {
		jwtService := auth.NewJWTService("test-secret", 24*time.Hour)

		token, err := jwtService.GenerateToken(userID, &tenantID, kind, email)
		require.NoError(t, err)

		claims, err := jwtService.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, userID, claims.SubjectID)
	})

	t.Run("rejects expired token", func(t *testing.T) {
		// Create service with very short expiry
		jwtService := auth.NewJWTService("test-secret", 1*time.Millisecond)

		token, err := jwtService.GenerateToken(userID, &tenantID, kind, email)
		require.NoError(t, err)

		// Wait for token to expire
		time.Sleep(10 * time.Millisecond)

		_, err = jwtService.ValidateToken(token)
		assert.Equal(t, auth.ErrExpiredToken, err)
	})

	t.Run("rejects tampered token", func(t *testing.T) {
		jwtService := auth.NewJWTService("test-secret", 24*time.Hour)

		token, err := jwtService.GenerateToken(userID, &tenantID, kind, email)
		require.NoError(t, err)

		// Tamper with the token
		tamperedToken := token + "tampered"

		_, err = jwtService.ValidateToken(tamperedToken)
		assert.Equal(t, auth.ErrInvalidToken, err)
	})

	t.Run("rejects token signed with different secret", func(t *testing.T) {
		jwtService1 := auth.NewJWTService("secret-1", 24*time.Hour)
		jwtService2 := auth.NewJWTService("secret-2", 24*time.Hour)

		token, err := jwtService1.GenerateToken(userID, &tenantID, kind, email)
		require.NoError(t, err)

		_, err = jwtService2.ValidateToken(token)
		assert.Equal(t, auth.ErrInvalidToken, err)
	})

	t.Run("rejects malformed token", func(t *testing.T) {
		jwtService := auth.NewJWTService("test-secret", 24*time.Hour)

		_, err := jwtService.ValidateToken("not-a-valid-jwt")
		assert.Equal(t, auth.ErrInvalidToken, err)
	})

	t.Run("rejects empty token", func(t *testing.T) {
		jwtService := auth.NewJWTService("test-secret", 24*time.Hour)

		_, err := jwtService.ValidateToken("")
		assert.Equal(t, auth.ErrInvalidToken, err)
	})
}

func TestJWTService_PrincipalKinds(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret", 24*time.Hour)

	subjectID := uuid.New()
	tenantID := uuid.New()

	kinds := []session.Kind{
		session.KindTenantAdmin,
		session.KindElectedOfficial,
		session.KindAssociationAdmin,
	}

	for _, kind := range kinds {
		t.Run("handles "+string(kind), func(t *testing.T) {
			token, err := jwtService.GenerateToken(subjectID, &tenantID, kind, "x@example.fr")
			require.NoError(t, err)

			claims, err := jwtService.ValidateToken(token)
			require.NoError(t, err)
			assert.Equal(t, kind, claims.Kind)
		})
	}

	t.Run("super admin token has no tenant", func(t *testing.T) {
		token, err := jwtService.GenerateToken(subjectID, nil, session.KindSuperAdmin, "root@example.fr")
		require.NoError(t, err)

		claims, err := jwtService.ValidateToken(token)
		require.NoError(t, err)
		assert.Nil(t, claims.TenantID)
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		token, err := jwtService.GenerateToken(subjectID, &tenantID, session.KindAnonymous, "x@example.fr")
		require.NoError(t, err)

		_, err = jwtService.ValidateToken(token)
		assert.Equal(t, auth.ErrInvalidToken, err)
	})
}
