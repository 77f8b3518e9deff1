package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/hugh/voxpopulous/internal/database/models"
	"github.com/hugh/voxpopulous/internal/session"
)

// Authenticator defines the login and signup flows.
type Authenticator interface {
	Signup(ctx context.Context, input SignupInput) (*AuthResponse, *models.Tenant, error)
	LoginSuperAdmin(ctx context.Context, input LoginInput) (*AuthResponse, error)
	LoginTenantAdmin(ctx context.Context, slug string, input LoginInput) (*AuthResponse, error)
	LoginAssociationAdmin(ctx context.Context, slug string, input LoginInput) (*AuthResponse, error)
	LoginElectedOfficial(ctx context.Context, slug string, input LoginInput) (*AuthResponse, error)
}

// TokenService defines the interface for JWT token operations.
type TokenService interface {
	GenerateToken(subjectID uuid.UUID, tenantID *uuid.UUID, kind session.Kind, email string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

// Compile-time interface satisfaction checks
var (
	_ Authenticator = (*Service)(nil)
	_ TokenService  = (*JWTService)(nil)
)
