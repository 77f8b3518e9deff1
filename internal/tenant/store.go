// Package tenant holds the tenant hierarchy: EPCI -> MAIRIE -> ASSOCIATION.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/voxpopulous/internal/database/models"
	"gorm.io/gorm"
)

var (
	ErrNotFound        = errors.New("tenant not found")
	ErrSlugTaken       = errors.New("tenant slug already taken")
	ErrInvalidSlug     = errors.New("invalid tenant slug")
	ErrInvalidType     = errors.New("invalid tenant type")
	ErrInvalidParent   = errors.New("invalid parent tenant")
	ErrCycle           = errors.New("parent link would create a cycle")
	ErrInvalidStatus   = errors.New("invalid billing status")
	ErrPlanNotEligible = errors.New("plan not available for this tenant type")
)

// maxDepth bounds the ancestor walk; the hierarchy is two levels deep by construction.
const maxDepth = 8

var slugRegex = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidSlug reports whether s can be used as a tenant slug in URLs.
func ValidSlug(s string) bool {
	return len(s) <= 63 && slugRegex.MatchString(s)
}

type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewStore(db *gorm.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

type CreateInput struct {
	Slug           string
	Name           string
	TenantType     models.TenantType
	ParentEpciID   *uuid.UUID
	ParentTenantID *uuid.UUID
	PlanID         *uuid.UUID
	BillingStatus  models.BillingStatus
	TrialEndsAt    *time.Time
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return s.getByID(s.db.WithContext(ctx), id)
}

func (s *Store) getByID(tx *gorm.DB, id uuid.UUID) (*models.Tenant, error) {
	var t models.Tenant
	if err := tx.Where("id = ?", id).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading tenant %s: %w", id, err)
	}
	return &t, nil
}

func (s *Store) GetBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	var t models.Tenant
	if err := s.db.WithContext(ctx).Where("slug = ?", strings.ToLower(slug)).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading tenant %q: %w", slug, err)
	}
	return &t, nil
}

// Parent resolves one level up. It returns nil for top-level tenants.
func (s *Store) Parent(ctx context.Context, t *models.Tenant) (*models.Tenant, error) {
	parentID := t.ParentID()
	if parentID == nil {
		return nil, nil
	}
	return s.GetByID(ctx, *parentID)
}

// Children lists the structures attached directly to t.
func (s *Store) Children(ctx context.Context, t *models.Tenant) ([]models.Tenant, error) {
	var children []models.Tenant
	err := s.db.WithContext(ctx).
		Where("parent_epci_id = ? OR parent_tenant_id = ?", t.ID, t.ID).
		Order("name ASC").
		Find(&children).Error
	if err != nil {
		return nil, fmt.Errorf("listing children of %s: %w", t.ID, err)
	}
	return children, nil
}

// ChildrenOfType lists direct children of the given type.
func (s *Store) ChildrenOfType(ctx context.Context, t *models.Tenant, tenantType models.TenantType) ([]models.Tenant, error) {
	var children []models.Tenant
	column := "parent_tenant_id"
	if tenantType == models.TenantTypeMairie {
		column = "parent_epci_id"
	}
	err := s.db.WithContext(ctx).
		Where(column+" = ? AND tenant_type = ?", t.ID, tenantType).
		Order("name ASC").
		Find(&children).Error
	if err != nil {
		return nil, fmt.Errorf("listing %s children of %s: %w", tenantType, t.ID, err)
	}
	return children, nil
}

func (s *Store) List(ctx context.Context, tenantType models.TenantType, offset, limit int) ([]models.Tenant, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Tenant{})
	if tenantType != "" {
		query = query.Where("tenant_type = ?", tenantType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting tenants: %w", err)
	}

	var tenants []models.Tenant
	if err := query.Order("name ASC").Offset(offset).Limit(limit).Find(&tenants).Error; err != nil {
		return nil, 0, fmt.Errorf("listing tenants: %w", err)
	}
	return tenants, total, nil
}

// Create validates the hierarchy rules and inserts the tenant.
func (s *Store) Create(ctx context.Context, input CreateInput) (*models.Tenant, error) {
	var created *models.Tenant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.CreateTx(tx, input)
		created = t
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateTx is Create inside a caller-owned transaction, used by quota-checked
// creation of communes and associations.
func (s *Store) CreateTx(tx *gorm.DB, input CreateInput) (*models.Tenant, error) {
	input.Slug = strings.ToLower(strings.TrimSpace(input.Slug))
	if !ValidSlug(input.Slug) {
		return nil, ErrInvalidSlug
	}
	if !input.TenantType.Valid() {
		return nil, ErrInvalidType
	}
	if input.BillingStatus == "" {
		input.BillingStatus = models.BillingStatusTrial
	}
	if !input.BillingStatus.Valid() {
		return nil, ErrInvalidStatus
	}

	t := &models.Tenant{
		Slug:            input.Slug,
		Name:            strings.TrimSpace(input.Name),
		TenantType:      input.TenantType,
		ParentEpciID:    input.ParentEpciID,
		ParentTenantID:  input.ParentTenantID,
		PlanID:          input.PlanID,
		BillingStatus:   input.BillingStatus,
		LifecycleStatus: models.LifecycleActive,
		TrialEndsAt:     input.TrialEndsAt,
	}
	t.ID = uuid.New()

	if err := s.validateParent(tx, t); err != nil {
		return nil, err
	}
	if t.PlanID != nil {
		if err := s.validatePlan(tx, t); err != nil {
			return nil, err
		}
	}

	var count int64
	if err := tx.Model(&models.Tenant{}).Unscoped().Where("slug = ?", t.Slug).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("checking slug: %w", err)
	}
	if count > 0 {
		return nil, ErrSlugTaken
	}

	if err := tx.Create(t).Error; err != nil {
		return nil, fmt.Errorf("creating tenant: %w", err)
	}

	s.logger.Info("tenant created",
		"tenant_id", t.ID,
		"slug", t.Slug,
		"type", t.TenantType,
		"parent_id", t.ParentID(),
	)
	return t, nil
}

// SetParent re-parents a tenant. Passing nil for both links detaches it.
func (s *Store) SetParent(ctx context.Context, id uuid.UUID, parentEpciID, parentTenantID *uuid.UUID) (*models.Tenant, error) {
	var updated *models.Tenant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.getByID(tx, id)
		if err != nil {
			return err
		}
		t.ParentEpciID = parentEpciID
		t.ParentTenantID = parentTenantID
		if err := s.validateParent(tx, t); err != nil {
			return err
		}
		if err := tx.Model(t).Select("parent_epci_id", "parent_tenant_id").Updates(t).Error; err != nil {
			return fmt.Errorf("updating parent: %w", err)
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("tenant re-parented", "tenant_id", id, "parent_id", updated.ParentID())
	return updated, nil
}

func (s *Store) validateParent(tx *gorm.DB, t *models.Tenant) error {
	if t.ParentEpciID != nil && t.ParentTenantID != nil {
		return fmt.Errorf("%w: only one parent link may be set", ErrInvalidParent)
	}

	switch t.TenantType {
	case models.TenantTypeEPCI:
		if t.IsChild() {
			return fmt.Errorf("%w: an EPCI cannot have a parent", ErrInvalidParent)
		}
		return nil
	case models.TenantTypeMairie:
		if t.ParentTenantID != nil {
			return fmt.Errorf("%w: a MAIRIE can only be attached to an EPCI", ErrInvalidParent)
		}
	case models.TenantTypeAssociation:
		if t.ParentEpciID != nil {
			return fmt.Errorf("%w: an association is attached through parentTenantId", ErrInvalidParent)
		}
	}

	parentID := t.ParentID()
	if parentID == nil {
		return nil
	}
	if *parentID == t.ID {
		return ErrCycle
	}

	parent, err := s.getByID(tx, *parentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: parent does not exist", ErrInvalidParent)
		}
		return err
	}

	switch t.TenantType {
	case models.TenantTypeMairie:
		if parent.TenantType != models.TenantTypeEPCI {
			return fmt.Errorf("%w: a MAIRIE parent must be an EPCI", ErrInvalidParent)
		}
	case models.TenantTypeAssociation:
		if parent.TenantType == models.TenantTypeAssociation {
			return fmt.Errorf("%w: an association parent must be a MAIRIE or an EPCI", ErrInvalidParent)
		}
	}

	return s.checkAncestors(tx, t.ID, parent)
}

// checkAncestors walks up from parent and fails if id is already an ancestor.
func (s *Store) checkAncestors(tx *gorm.DB, id uuid.UUID, parent *models.Tenant) error {
	current := parent
	for depth := 0; current != nil; depth++ {
		if current.ID == id {
			return ErrCycle
		}
		if depth >= maxDepth {
			return ErrCycle
		}
		next := current.ParentID()
		if next == nil {
			return nil
		}
		p, err := s.getByID(tx, *next)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
		current = p
	}
	return nil
}

func (s *Store) validatePlan(tx *gorm.DB, t *models.Tenant) error {
	var plan models.SubscriptionPlan
	if err := tx.Where("id = ?", *t.PlanID).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPlanNotEligible
		}
		return fmt.Errorf("loading plan: %w", err)
	}
	if !plan.IsActive || !plan.Targets(t.TenantType) {
		return ErrPlanNotEligible
	}
	return nil
}
