package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/voxpopulous/internal/database/models"
	"github.com/hugh/voxpopulous/internal/session"
	"gorm.io/gorm"
)

type AccountInput struct {
	Email    string
	Password string
	Name     string
}

// NewAdmin builds an unsaved tenant admin with a hashed password. Hashing
// happens outside the quota transaction.
func NewAdmin(tenantID uuid.UUID, input AccountInput) (*models.AdminUser, error) {
	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, err
	}
	return &models.AdminUser{
		TenantID:     &tenantID,
		Email:        normalizeEmail(input.Email),
		PasswordHash: hash,
		Name:         strings.TrimSpace(input.Name),
		Role:         models.RoleAdmin,
		IsActive:     true,
	}, nil
}

// CreateAdminTx inserts the admin inside a caller-owned transaction.
func (s *Service) CreateAdminTx(tx *gorm.DB, user *models.AdminUser) error {
	taken, err := s.emailTaken(tx, user.Email)
	if err != nil {
		return err
	}
	if taken {
		return ErrUserExists
	}
	if err := tx.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUserExists
		}
		return fmt.Errorf("creating admin: %w", err)
	}
	return nil
}

// EnsureSuperAdmin creates the platform operator account unless an account
// with that email already exists. It reports whether a row was inserted.
func (s *Service) EnsureSuperAdmin(ctx context.Context, input AccountInput) (bool, error) {
	email := normalizeEmail(input.Email)
	db := s.db.WithContext(ctx)

	var existing models.AdminUser
	err := db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		if existing.Role != models.RoleSuperAdmin {
			return false, ErrUserExists
		}
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("looking up super admin: %w", err)
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return false, err
	}
	user := &models.AdminUser{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(input.Name),
		Role:         models.RoleSuperAdmin,
		IsActive:     true,
	}
	if err := db.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, ErrUserExists
		}
		return false, fmt.Errorf("creating super admin: %w", err)
	}
	s.logger.Info("super admin created", "user_id", user.ID, "email", email)
	return true, nil
}

func (s *Service) ListAdmins(ctx context.Context, tenantID uuid.UUID) ([]models.AdminUser, error) {
	var users []models.AdminUser
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND role = ?", tenantID, models.RoleAdmin).
		Order("created_at ASC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("listing admins: %w", err)
	}
	return users, nil
}

// DeleteAdmin soft-deletes an admin of the tenant, freeing a quota unit.
func (s *Service) DeleteAdmin(ctx context.Context, tenantID, id uuid.UUID) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ? AND role = ?", id, tenantID, models.RoleAdmin).
		Delete(&models.AdminUser{})
	if res.Error != nil {
		return fmt.Errorf("deleting admin: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	s.logger.Info("admin deleted", "tenant_id", tenantID, "admin_id", id)
	return nil
}

type ElectedOfficialInput struct {
	AccountInput
	Position      string
	HasFullAccess bool
	Permissions   []session.MenuCode
}

func (s *Service) ListElectedOfficials(ctx context.Context, tenantID uuid.UUID) ([]models.ElectedOfficial, error) {
	var officials []models.ElectedOfficial
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("name ASC").
		Find(&officials).Error
	if err != nil {
		return nil, fmt.Errorf("listing elected officials: %w", err)
	}
	return officials, nil
}

func (s *Service) CreateElectedOfficial(ctx context.Context, tenantID uuid.UUID, input ElectedOfficialInput) (*models.ElectedOfficial, error) {
	email := normalizeEmail(input.Email)

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.ElectedOfficial{}).
		Where("tenant_id = ? AND email = ?", tenantID, email).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("checking email: %w", err)
	}
	if count > 0 {
		return nil, ErrUserExists
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	official := &models.ElectedOfficial{
		TenantID:        tenantID,
		Email:           email,
		PasswordHash:    hash,
		Name:            strings.TrimSpace(input.Name),
		Position:        strings.TrimSpace(input.Position),
		HasFullAccess:   input.HasFullAccess,
		MenuPermissions: menuStrings(input.Permissions),
		IsActive:        true,
	}
	if err := s.db.WithContext(ctx).Create(official).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("creating elected official: %w", err)
	}
	return official, nil
}

// UpdatePermissions replaces the menu scope of an elected official.
func (s *Service) UpdatePermissions(ctx context.Context, tenantID, id uuid.UUID, fullAccess bool, codes []session.MenuCode) (*models.ElectedOfficial, error) {
	var official models.ElectedOfficial
	err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&official).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("loading elected official: %w", err)
	}

	official.HasFullAccess = fullAccess
	official.MenuPermissions = menuStrings(codes)
	if err := s.db.WithContext(ctx).Model(&official).Select("has_full_access", "menu_permissions").Updates(&official).Error; err != nil {
		return nil, fmt.Errorf("updating permissions: %w", err)
	}

	s.logger.Info("elected official permissions updated",
		"tenant_id", tenantID,
		"elected_official_id", id,
		"full_access", fullAccess,
		"menus", official.MenuPermissions,
	)
	return &official, nil
}

func (s *Service) DeleteElectedOfficial(ctx context.Context, tenantID, id uuid.UUID) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Delete(&models.ElectedOfficial{})
	if res.Error != nil {
		return fmt.Errorf("deleting elected official: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func menuStrings(codes []session.MenuCode) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		out = append(out, string(c))
	}
	return out
}
