package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/voxpopulous/internal/database/models"
	"gorm.io/gorm"
)

// Suspend puts the tenant in read-only lifecycle suspension. Data is kept.
func (s *Store) Suspend(ctx context.Context, id uuid.UUID, reason string) (*models.Tenant, error) {
	t, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	updates := map[string]interface{}{
		"lifecycle_status": models.LifecycleSuspended,
		"suspended_reason": reasonPtr,
		"updated_at":       time.Now(),
	}
	if err := s.db.WithContext(ctx).Model(t).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("suspending tenant: %w", err)
	}

	t.LifecycleStatus = models.LifecycleSuspended
	t.SuspendedReason = reasonPtr
	s.logger.Info("tenant suspended", "tenant_id", id, "slug", t.Slug, "reason", reason)
	return t, nil
}

func (s *Store) Reactivate(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	t, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"lifecycle_status": models.LifecycleActive,
		"suspended_reason": gorm.Expr("NULL"),
		"updated_at":       time.Now(),
	}
	if err := s.db.WithContext(ctx).Model(t).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("reactivating tenant: %w", err)
	}

	t.LifecycleStatus = models.LifecycleActive
	t.SuspendedReason = nil
	s.logger.Info("tenant reactivated", "tenant_id", id, "slug", t.Slug)
	return t, nil
}

// SetBillingStatus records a status produced by the billing pipeline and
// returns the previous value.
func (s *Store) SetBillingStatus(ctx context.Context, id uuid.UUID, status models.BillingStatus) (*models.Tenant, models.BillingStatus, error) {
	if !status.Valid() {
		return nil, "", ErrInvalidStatus
	}
	t, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}

	previous := t.BillingStatus
	if previous == status {
		return t, previous, nil
	}

	updates := map[string]interface{}{
		"billing_status": status,
		"updated_at":     time.Now(),
	}
	if err := s.db.WithContext(ctx).Model(t).Updates(updates).Error; err != nil {
		return nil, "", fmt.Errorf("updating billing status: %w", err)
	}

	t.BillingStatus = status
	s.logger.Info("tenant billing status changed",
		"tenant_id", id,
		"slug", t.Slug,
		"from", previous,
		"to", status,
	)
	return t, previous, nil
}

// SetPlan moves the tenant to another plan.
func (s *Store) SetPlan(ctx context.Context, id, planID uuid.UUID) (*models.Tenant, error) {
	t, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t.PlanID = &planID
	if err := s.validatePlan(s.db.WithContext(ctx), t); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(t).Update("plan_id", planID).Error; err != nil {
		return nil, fmt.Errorf("updating plan: %w", err)
	}
	s.logger.Info("tenant plan changed", "tenant_id", id, "plan_id", planID)
	return t, nil
}

// ExpiredTrials lists top-level tenants whose trial ended before now.
func (s *Store) ExpiredTrials(ctx context.Context, now time.Time) ([]models.Tenant, error) {
	var tenants []models.Tenant
	err := s.db.WithContext(ctx).
		Where("billing_status = ?", models.BillingStatusTrial).
		Where("trial_ends_at IS NOT NULL AND trial_ends_at < ?", now).
		Where("parent_epci_id IS NULL AND parent_tenant_id IS NULL").
		Find(&tenants).Error
	if err != nil {
		return nil, fmt.Errorf("listing expired trials: %w", err)
	}
	return tenants, nil
}
