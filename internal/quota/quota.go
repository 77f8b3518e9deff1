// Package quota enforces the capacity a tenant's subscription grants for
// admins, associations and communes.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hugh/voxpopulous/internal/database/models"
	"github.com/hugh/voxpopulous/internal/entitlement"
	"github.com/hugh/voxpopulous/internal/metrics"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Resource string

const (
	ResourceAdmins       Resource = "admins"
	ResourceAssociations Resource = "associations"
	ResourceCommunes     Resource = "communes"
)

func (r Resource) Valid() bool {
	switch r {
	case ResourceAdmins, ResourceAssociations, ResourceCommunes:
		return true
	}
	return false
}

// Addon is the purchasable addon extending the resource.
func (r Resource) Addon() models.AddonCode {
	switch r {
	case ResourceAdmins:
		return models.AddonAdmin
	case ResourceAssociations:
		return models.AddonAssociations
	default:
		return models.AddonMairies
	}
}

var (
	ErrQuotaExceeded   = errors.New("quota exceeded")
	ErrQuotaRace       = errors.New("quota exhausted by a concurrent request")
	ErrUnknownResource = errors.New("unknown quota resource")
)

// ExceededError carries the counts shown to the user ("3/3 admins used").
// Race is set when an earlier read had headroom that the locked recount no
// longer finds.
type ExceededError struct {
	Resource Resource
	Used     int
	Allowed  int
	Race     bool
}

func (e *ExceededError) Error() string {
	if e.Race {
		return fmt.Sprintf("%s quota reached by a concurrent request: %d/%d used", e.Resource, e.Used, e.Allowed)
	}
	return fmt.Sprintf("%s quota reached: %d/%d used", e.Resource, e.Used, e.Allowed)
}

func (e *ExceededError) Is(target error) bool {
	switch target {
	case ErrQuotaExceeded:
		return true
	case ErrQuotaRace:
		return e.Race
	}
	return false
}

// Quota is derived, never persisted. Remaining is max(0, Allowed-Used).
type Quota struct {
	Resource     Resource `json:"resource"`
	Allowed      int      `json:"allowed"`
	Used         int      `json:"used"`
	Remaining    int      `json:"remaining"`
	PlanIncluded int      `json:"plan_included"`
	Purchased    int      `json:"purchased"`
}

func newQuota(r Resource, planIncluded, purchased, used int) *Quota {
	allowed := planIncluded + purchased
	remaining := allowed - used
	if remaining < 0 {
		remaining = 0
	}
	return &Quota{
		Resource:     r,
		Allowed:      allowed,
		Used:         used,
		Remaining:    remaining,
		PlanIncluded: planIncluded,
		Purchased:    purchased,
	}
}

type Service struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewService(db *gorm.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// Check is an advisory read for badges and pre-emptive UI states.
func (s *Service) Check(ctx context.Context, t *models.Tenant, r Resource) (*Quota, error) {
	if !r.Valid() {
		return nil, ErrUnknownResource
	}
	return s.compute(s.db.WithContext(ctx), t, r)
}

// CheckAll returns the quota of every resource.
func (s *Service) CheckAll(ctx context.Context, t *models.Tenant) (map[Resource]*Quota, error) {
	out := make(map[Resource]*Quota, 3)
	for _, r := range []Resource{ResourceAdmins, ResourceAssociations, ResourceCommunes} {
		q, err := s.Check(ctx, t, r)
		if err != nil {
			return nil, err
		}
		out[r] = q
	}
	return out, nil
}

// Enforce rejects with ErrQuotaExceeded when the advisory read shows no
// headroom, then runs create through Reserve. A rejection from Reserve after
// a passing read is reported as ErrQuotaRace.
func (s *Service) Enforce(ctx context.Context, t *models.Tenant, r Resource, create func(tx *gorm.DB) error) (*Quota, error) {
	q, err := s.Check(ctx, t, r)
	if err != nil {
		return nil, err
	}
	if q.Remaining <= 0 {
		metrics.QuotaDecisions.WithLabelValues(string(r), "exceeded").Inc()
		s.logger.Info("quota exceeded", "tenant_id", t.ID, "resource", r, "used", q.Used, "allowed", q.Allowed)
		return q, &ExceededError{Resource: r, Used: q.Used, Allowed: q.Allowed}
	}

	after, err := s.Reserve(ctx, t, r, create)
	var exceeded *ExceededError
	if errors.As(err, &exceeded) {
		exceeded.Race = true
		metrics.QuotaDecisions.WithLabelValues(string(r), "race_lost").Inc()
		s.logger.Info("quota race lost", "tenant_id", t.ID, "resource", r, "used", exceeded.Used, "allowed", exceeded.Allowed)
		return after, exceeded
	}
	return after, err
}

// Reserve is the authoritative write path: it locks the tenant row, recounts
// usage and runs create in the same transaction, so concurrent creations for
// one tenant serialize and never overshoot the quota.
func (s *Service) Reserve(ctx context.Context, t *models.Tenant, r Resource, create func(tx *gorm.DB) error) (*Quota, error) {
	if !r.Valid() {
		return nil, ErrUnknownResource
	}

	var result *Quota
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked models.Tenant
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", t.ID).
			First(&locked).Error; err != nil {
			return fmt.Errorf("locking tenant: %w", err)
		}

		q, err := s.compute(tx, &locked, r)
		if err != nil {
			return err
		}
		if q.Remaining <= 0 {
			result = q
			return &ExceededError{Resource: r, Used: q.Used, Allowed: q.Allowed}
		}

		if err := create(tx); err != nil {
			return err
		}

		q.Used++
		q.Remaining--
		result = q
		return nil
	})
	if err != nil {
		return result, err
	}

	metrics.QuotaDecisions.WithLabelValues(string(r), "allowed").Inc()
	return result, nil
}

func (s *Service) compute(db *gorm.DB, t *models.Tenant, r Resource) (*Quota, error) {
	planIncluded, purchased, err := s.capacity(db, t, r)
	if err != nil {
		return nil, err
	}
	used, err := s.usage(db, t, r)
	if err != nil {
		return nil, err
	}
	return newQuota(r, planIncluded, purchased, used), nil
}

// capacity reads the plan-included and purchased units straight from the
// database, bypassing the entitlement cache.
func (s *Service) capacity(db *gorm.DB, t *models.Tenant, r Resource) (int, int, error) {
	if r == ResourceCommunes && t.TenantType != models.TenantTypeEPCI {
		return 0, 0, nil
	}

	owner, err := entitlement.OwnerOf(db, t)
	if err != nil {
		return 0, 0, err
	}
	if owner.PlanID == nil {
		return 0, 0, nil
	}

	var plan models.SubscriptionPlan
	if err := db.Where("id = ? AND is_active = ?", *owner.PlanID, true).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("loading plan: %w", err)
	}

	var planIncluded int
	switch r {
	case ResourceAdmins:
		planIncluded = plan.MaxAdmins
	case ResourceAssociations:
		planIncluded = plan.AssociationsIncluded
	case ResourceCommunes:
		planIncluded = plan.CommunesIncluded
	}

	var purchased int
	err = db.Model(&models.TenantAddon{}).
		Select("COALESCE(SUM(tenant_addons.quantity), 0)").
		Joins("JOIN addons ON addons.id = tenant_addons.addon_id").
		Joins("JOIN plan_addon_access ON plan_addon_access.addon_id = tenant_addons.addon_id AND plan_addon_access.plan_id = ?", plan.ID).
		Where("tenant_addons.tenant_id = ? AND addons.code = ? AND plan_addon_access.is_enabled = ?", owner.ID, r.Addon(), true).
		Where("plan_addon_access.deleted_at IS NULL AND addons.deleted_at IS NULL").
		Scan(&purchased).Error
	if err != nil {
		return 0, 0, fmt.Errorf("loading purchased %s: %w", r, err)
	}

	return planIncluded, purchased, nil
}

func (s *Service) usage(db *gorm.DB, t *models.Tenant, r Resource) (int, error) {
	var count int64
	var err error
	switch r {
	case ResourceAdmins:
		err = db.Model(&models.AdminUser{}).
			Where("tenant_id = ? AND role = ? AND is_active = ?", t.ID, models.RoleAdmin, true).
			Count(&count).Error
	case ResourceAssociations:
		err = db.Model(&models.Tenant{}).
			Where("parent_tenant_id = ? AND tenant_type = ?", t.ID, models.TenantTypeAssociation).
			Count(&count).Error
	case ResourceCommunes:
		err = db.Model(&models.Tenant{}).
			Where("parent_epci_id = ? AND tenant_type = ?", t.ID, models.TenantTypeMairie).
			Count(&count).Error
	}
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", r, err)
	}
	return int(count), nil
}
