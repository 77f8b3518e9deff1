// Package catalog manages subscription plans, features and addons.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hugh/voxpopulous/internal/database/models"
	"github.com/hugh/voxpopulous/internal/entitlement"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrPlanNotFound    = errors.New("plan not found")
	ErrAddonNotFound   = errors.New("addon not found")
	ErrUnknownFeature  = errors.New("unknown feature code")
	ErrInvalidQuantity = errors.New("quantity must not be negative")
)

type Service struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewService(db *gorm.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger}
}

func (s *Service) ListPlans(ctx context.Context, activeOnly bool) ([]models.SubscriptionPlan, error) {
	query := s.db.WithContext(ctx).Preload("FeatureAssignments").Preload("AddonAccess.Addon")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var plans []models.SubscriptionPlan
	if err := query.Order("monthly_price ASC").Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("listing plans: %w", err)
	}
	return plans, nil
}

func (s *Service) GetPlan(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	err := s.db.WithContext(ctx).
		Preload("FeatureAssignments").
		Preload("AddonAccess.Addon").
		Where("id = ?", id).
		First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("loading plan: %w", err)
	}
	return &plan, nil
}

func (s *Service) GetPlanByCode(ctx context.Context, code string) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	if err := s.db.WithContext(ctx).Where("code = ?", code).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("loading plan %q: %w", code, err)
	}
	return &plan, nil
}

func (s *Service) GetAddonByCode(ctx context.Context, code models.AddonCode) (*models.Addon, error) {
	var addon models.Addon
	err := s.db.WithContext(ctx).
		Preload("Tiers", func(tx *gorm.DB) *gorm.DB { return tx.Order("min_quantity ASC") }).
		Where("code = ?", code).
		First(&addon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAddonNotFound
		}
		return nil, fmt.Errorf("loading addon %q: %w", code, err)
	}
	return &addon, nil
}

// PlanAddonAccess returns the access row or nil when the pair is not configured.
func (s *Service) PlanAddonAccess(ctx context.Context, planID, addonID uuid.UUID) (*models.PlanAddonAccess, error) {
	var access models.PlanAddonAccess
	err := s.db.WithContext(ctx).Where("plan_id = ? AND addon_id = ?", planID, addonID).First(&access).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading plan addon access: %w", err)
	}
	return &access, nil
}

// SetPlanFeatures replaces the catalog assignments of a plan.
func (s *Service) SetPlanFeatures(ctx context.Context, planID uuid.UUID, codes []entitlement.FeatureCode) error {
	for _, c := range codes {
		if _, ok := entitlement.ParseFeatureCode(string(c)); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownFeature, c)
		}
	}
	if _, err := s.GetPlan(ctx, planID); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("plan_id = ?", planID).Delete(&models.PlanFeatureAssignment{}).Error; err != nil {
			return fmt.Errorf("clearing assignments: %w", err)
		}
		for _, c := range codes {
			row := models.PlanFeatureAssignment{PlanID: planID, FeatureCode: string(c)}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
				return fmt.Errorf("assigning %s: %w", c, err)
			}
		}
		s.logger.Info("plan features updated", "plan_id", planID, "features", codes)
		return nil
	})
}

type AddonAccessInput struct {
	IsEnabled       bool
	DefaultQuantity int
	MonthlyPrice    *decimal.Decimal
	YearlyPrice     *decimal.Decimal
}

// SetPlanAddonAccess upserts the (plan, addon) access row.
func (s *Service) SetPlanAddonAccess(ctx context.Context, planID uuid.UUID, code models.AddonCode, input AddonAccessInput) (*models.PlanAddonAccess, error) {
	if input.DefaultQuantity < 0 {
		return nil, ErrInvalidQuantity
	}
	if _, err := s.GetPlan(ctx, planID); err != nil {
		return nil, err
	}
	addon, err := s.GetAddonByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	access, err := s.PlanAddonAccess(ctx, planID, addon.ID)
	if err != nil {
		return nil, err
	}
	if access == nil {
		access = &models.PlanAddonAccess{PlanID: planID, AddonID: addon.ID}
	}
	access.IsEnabled = input.IsEnabled
	access.DefaultQuantity = input.DefaultQuantity
	access.MonthlyPrice = input.MonthlyPrice
	access.YearlyPrice = input.YearlyPrice

	if err := s.db.WithContext(ctx).Save(access).Error; err != nil {
		return nil, fmt.Errorf("saving plan addon access: %w", err)
	}
	access.Addon = addon
	s.logger.Info("plan addon access updated",
		"plan_id", planID,
		"addon", code,
		"enabled", input.IsEnabled,
	)
	return access, nil
}

// TenantsOnPlan lists tenants subscribed to the plan, for cache invalidation.
func (s *Service) TenantsOnPlan(ctx context.Context, planID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&models.Tenant{}).
		Where("plan_id = ? OR parent_epci_id IN (?) OR parent_tenant_id IN (?)",
			planID,
			s.db.Model(&models.Tenant{}).Select("id").Where("plan_id = ?", planID),
			s.db.Model(&models.Tenant{}).Select("id").Where("plan_id = ?", planID),
		).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("listing tenants on plan: %w", err)
	}
	return ids, nil
}

// MigrateLegacyFlags writes catalog assignments for plans that still rely on
// the boolean flags, so the catalog becomes the only source of truth.
// It returns the number of plans migrated.
func (s *Service) MigrateLegacyFlags(ctx context.Context) (int, error) {
	var plans []models.SubscriptionPlan
	if err := s.db.WithContext(ctx).Find(&plans).Error; err != nil {
		return 0, fmt.Errorf("listing plans: %w", err)
	}

	migrated := 0
	for i := range plans {
		plan := &plans[i]
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.PlanFeatureAssignment{}).
			Where("plan_id = ?", plan.ID).Count(&count).Error; err != nil {
			return migrated, fmt.Errorf("counting assignments: %w", err)
		}
		if count > 0 {
			continue
		}

		codes := entitlement.LegacyFeatures(plan).Codes()
		if len(codes) == 0 {
			continue
		}
		if err := s.SetPlanFeatures(ctx, plan.ID, codes); err != nil {
			return migrated, err
		}
		s.logger.Info("migrated legacy plan flags", "plan", plan.Code, "features", codes)
		migrated++
	}
	return migrated, nil
}
