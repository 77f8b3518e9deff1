package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hugh/voxpopulous/internal/database/models"
	"gorm.io/gorm"
)

var (
	ErrUnknownPrincipal = errors.New("principal not found")
	ErrInactive         = errors.New("principal is inactive")
	ErrKindMismatch     = errors.New("principal kind does not match account")
)

// Resolver rebuilds the principal from the database on every request so
// deactivations and permission changes apply immediately.
type Resolver struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewResolver(db *gorm.DB, logger *slog.Logger) *Resolver {
	return &Resolver{db: db, logger: logger}
}

func (r *Resolver) Resolve(ctx context.Context, kind Kind, subjectID uuid.UUID, tenantID *uuid.UUID) (Principal, error) {
	switch kind {
	case KindSuperAdmin:
		u, err := r.adminUser(ctx, subjectID, models.RoleSuperAdmin)
		if err != nil {
			return nil, err
		}
		return SuperAdmin{User: u}, nil

	case KindTenantAdmin, KindAssociationAdmin:
		u, err := r.adminUser(ctx, subjectID, models.RoleAdmin)
		if err != nil {
			return nil, err
		}
		if u.TenantID == nil || tenantID == nil || *u.TenantID != *tenantID || u.Tenant == nil {
			return nil, ErrKindMismatch
		}
		isAssociation := u.Tenant.TenantType == models.TenantTypeAssociation
		if isAssociation != (kind == KindAssociationAdmin) {
			return nil, ErrKindMismatch
		}
		if isAssociation {
			return AssociationAdmin{User: u}, nil
		}
		return TenantAdmin{User: u}, nil

	case KindElectedOfficial:
		if tenantID == nil {
			return nil, ErrKindMismatch
		}
		var official models.ElectedOfficial
		err := r.db.WithContext(ctx).
			Where("id = ? AND tenant_id = ?", subjectID, *tenantID).
			First(&official).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrUnknownPrincipal
			}
			return nil, fmt.Errorf("loading elected official: %w", err)
		}
		if !official.IsActive {
			return nil, ErrInactive
		}
		perms, invalid := ParseMenuCodes(official.MenuPermissions)
		if len(invalid) > 0 {
			r.logger.Warn("ignoring unknown menu permissions",
				"elected_official_id", official.ID,
				"codes", invalid,
			)
		}
		return ElectedOfficial{Official: &official, Permissions: perms}, nil
	}

	return nil, ErrKindMismatch
}

func (r *Resolver) adminUser(ctx context.Context, id uuid.UUID, role models.AdminRole) (*models.AdminUser, error) {
	var u models.AdminUser
	err := r.db.WithContext(ctx).Preload("Tenant").Where("id = ?", id).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownPrincipal
		}
		return nil, fmt.Errorf("loading admin user: %w", err)
	}
	if u.Role != role {
		return nil, ErrKindMismatch
	}
	if !u.IsActive {
		return nil, ErrInactive
	}
	return &u, nil
}
