package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/voxpopulous/internal/catalog"
	"github.com/hugh/voxpopulous/internal/database/models"
	"github.com/hugh/voxpopulous/internal/session"
	"github.com/hugh/voxpopulous/internal/tenant"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveUser       = errors.New("user is inactive")
)

type Service struct {
	db          *gorm.DB
	jwt         *JWTService
	tenants     *tenant.Store
	catalog     *catalog.Service
	trialPeriod time.Duration
	logger      *slog.Logger
}

func NewService(db *gorm.DB, jwt *JWTService, tenants *tenant.Store, cat *catalog.Service, trialPeriod time.Duration, logger *slog.Logger) *Service {
	return &Service{
		db:          db,
		jwt:         jwt,
		tenants:     tenants,
		catalog:     cat,
		trialPeriod: trialPeriod,
		logger:      logger,
	}
}

type SignupInput struct {
	TenantName string
	Slug       string
	TenantType models.TenantType
	PlanCode   string
	AdminName  string
	Email      string
	Password   string
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthResponse struct {
	Token     string       `json:"token"`
	Kind      session.Kind `json:"kind"`
	SubjectID uuid.UUID    `json:"subject_id"`
	TenantID  *uuid.UUID   `json:"tenant_id,omitempty"`
	Email     string       `json:"email"`
	Name      string       `json:"name"`
}

// Signup creates a standalone tenant in trial together with its first admin.
func (s *Service) Signup(ctx context.Context, input SignupInput) (*AuthResponse, *models.Tenant, error) {
	email := normalizeEmail(input.Email)
	if exists, err := s.emailTaken(s.db.WithContext(ctx), email); err != nil {
		return nil, nil, err
	} else if exists {
		return nil, nil, ErrUserExists
	}

	plan, err := s.catalog.GetPlanByCode(ctx, input.PlanCode)
	if err != nil {
		return nil, nil, err
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, nil, err
	}

	trialEnds := time.Now().Add(s.trialPeriod)
	var t *models.Tenant
	var user models.AdminUser
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		t, err = s.tenants.CreateTx(tx, tenant.CreateInput{
			Slug:          input.Slug,
			Name:          input.TenantName,
			TenantType:    input.TenantType,
			PlanID:        &plan.ID,
			BillingStatus: models.BillingStatusTrial,
			TrialEndsAt:   &trialEnds,
		})
		if err != nil {
			return err
		}

		user = models.AdminUser{
			TenantID:     &t.ID,
			Email:        email,
			PasswordHash: hash,
			Name:         strings.TrimSpace(input.AdminName),
			Role:         models.RoleAdmin,
			IsActive:     true,
		}
		if err := tx.Create(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrUserExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("tenant signed up", "tenant_id", t.ID, "slug", t.Slug, "plan", plan.Code)

	resp, err := s.respond(user.ID, &t.ID, adminKind(t), user.Email, user.Name)
	if err != nil {
		return nil, nil, err
	}
	return resp, t, nil
}

func (s *Service) LoginSuperAdmin(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	var user models.AdminUser
	err := s.db.WithContext(ctx).
		Where("email = ? AND role = ?", normalizeEmail(input.Email), models.RoleSuperAdmin).
		First(&user).Error
	if err != nil {
		return nil, credentialsError(err)
	}
	if err := checkAccount(user.IsActive, input.Password, user.PasswordHash); err != nil {
		return nil, err
	}
	return s.respond(user.ID, nil, session.KindSuperAdmin, user.Email, user.Name)
}

// LoginTenantAdmin authenticates the admin of a MAIRIE or EPCI.
func (s *Service) LoginTenantAdmin(ctx context.Context, slug string, input LoginInput) (*AuthResponse, error) {
	return s.loginAdmin(ctx, slug, session.KindTenantAdmin, input)
}

// LoginAssociationAdmin authenticates the admin of an ASSOCIATION.
func (s *Service) LoginAssociationAdmin(ctx context.Context, slug string, input LoginInput) (*AuthResponse, error) {
	return s.loginAdmin(ctx, slug, session.KindAssociationAdmin, input)
}

func (s *Service) loginAdmin(ctx context.Context, slug string, kind session.Kind, input LoginInput) (*AuthResponse, error) {
	t, err := s.scopedTenant(ctx, slug)
	if err != nil {
		return nil, err
	}
	if adminKind(t) != kind {
		return nil, ErrInvalidCredentials
	}

	var user models.AdminUser
	err = s.db.WithContext(ctx).
		Where("email = ? AND tenant_id = ? AND role = ?", normalizeEmail(input.Email), t.ID, models.RoleAdmin).
		First(&user).Error
	if err != nil {
		return nil, credentialsError(err)
	}
	if err := checkAccount(user.IsActive, input.Password, user.PasswordHash); err != nil {
		return nil, err
	}
	return s.respond(user.ID, &t.ID, kind, user.Email, user.Name)
}

func (s *Service) LoginElectedOfficial(ctx context.Context, slug string, input LoginInput) (*AuthResponse, error) {
	t, err := s.scopedTenant(ctx, slug)
	if err != nil {
		return nil, err
	}

	var official models.ElectedOfficial
	err = s.db.WithContext(ctx).
		Where("email = ? AND tenant_id = ?", normalizeEmail(input.Email), t.ID).
		First(&official).Error
	if err != nil {
		return nil, credentialsError(err)
	}
	if err := checkAccount(official.IsActive, input.Password, official.PasswordHash); err != nil {
		return nil, err
	}
	return s.respond(official.ID, &t.ID, session.KindElectedOfficial, official.Email, official.Name)
}

// scopedTenant hides whether the slug exists.
func (s *Service) scopedTenant(ctx context.Context, slug string) (*models.Tenant, error) {
	t, err := s.tenants.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return t, nil
}

func (s *Service) respond(subjectID uuid.UUID, tenantID *uuid.UUID, kind session.Kind, email, name string) (*AuthResponse, error) {
	token, err := s.jwt.GenerateToken(subjectID, tenantID, kind, email)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}
	return &AuthResponse{
		Token:     token,
		Kind:      kind,
		SubjectID: subjectID,
		TenantID:  tenantID,
		Email:     email,
		Name:      name,
	}, nil
}

func (s *Service) emailTaken(db *gorm.DB, email string) (bool, error) {
	var count int64
	if err := db.Model(&models.AdminUser{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, fmt.Errorf("checking email: %w", err)
	}
	return count > 0, nil
}

func adminKind(t *models.Tenant) session.Kind {
	if t.TenantType == models.TenantTypeAssociation {
		return session.KindAssociationAdmin
	}
	return session.KindTenantAdmin
}

func checkAccount(active bool, password, hash string) error {
	if !CheckPassword(password, hash) {
		return ErrInvalidCredentials
	}
	if !active {
		return ErrInactiveUser
	}
	return nil
}

func credentialsError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrInvalidCredentials
	}
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
