package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/voxpopulous/internal/catalog"
	"github.com/hugh/voxpopulous/internal/database/models"
	"github.com/hugh/voxpopulous/internal/entitlement"
	"github.com/hugh/voxpopulous/internal/metrics"
	"github.com/hugh/voxpopulous/internal/quota"
	"github.com/hugh/voxpopulous/internal/tenant"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAddonNotEnabled    = errors.New("addon not enabled for this plan")
	ErrAddonNotApplicable = errors.New("addon not applicable to this tenant type")
	ErrChildTenantBilling = errors.New("billing is managed by the parent structure")
	ErrNoPlan             = errors.New("tenant has no subscription plan")
	ErrInvalidQuantity    = errors.New("quantity must be at least 1")
	ErrTenantSuspended    = errors.New("tenant is suspended")
)

// Publisher is notified after a billing status transition.
type Publisher interface {
	BillingStatusChanged(ctx context.Context, tenantID uuid.UUID, from, to models.BillingStatus) error
}

type nopPublisher struct{}

func (nopPublisher) BillingStatusChanged(context.Context, uuid.UUID, models.BillingStatus, models.BillingStatus) error {
	return nil
}

type Service struct {
	db        *gorm.DB
	tenants   *tenant.Store
	catalog   *catalog.Service
	resolver  *entitlement.Resolver
	quotas    *quota.Service
	gate      *Gate
	publisher Publisher
	logger    *slog.Logger
}

type Deps struct {
	DB        *gorm.DB
	Tenants   *tenant.Store
	Catalog   *catalog.Service
	Resolver  *entitlement.Resolver
	Quotas    *quota.Service
	Gate      *Gate
	Publisher Publisher
	Logger    *slog.Logger
}

func NewService(d Deps) *Service {
	pub := d.Publisher
	if pub == nil {
		pub = nopPublisher{}
	}
	return &Service{
		db:        d.DB,
		tenants:   d.Tenants,
		catalog:   d.Catalog,
		resolver:  d.Resolver,
		quotas:    d.Quotas,
		gate:      d.Gate,
		publisher: pub,
		logger:    d.Logger,
	}
}

type AddonLine struct {
	Code            models.AddonCode      `json:"code"`
	IsEnabled       bool                  `json:"is_enabled"`
	Quantity        int                   `json:"quantity"`
	DefaultQuantity int                   `json:"default_quantity"`
	UnitPrice       entitlement.UnitPrice `json:"unit_price"`
}

type Summary struct {
	TenantID      uuid.UUID                       `json:"tenant_id"`
	PlanCode      string                          `json:"plan_code,omitempty"`
	PlanName      string                          `json:"plan_name,omitempty"`
	MonthlyPrice  decimal.Decimal                 `json:"monthly_price"`
	YearlyPrice   decimal.Decimal                 `json:"yearly_price"`
	BillingStatus models.BillingStatus            `json:"billing_status"`
	TrialEndsAt   *time.Time                      `json:"trial_ends_at,omitempty"`
	State         *State                          `json:"state"`
	Addons        []AddonLine                     `json:"addons"`
	Quotas        map[quota.Resource]*quota.Quota `json:"quotas"`
}

// Summary gathers what the billing screen shows for an owning tenant.
func (s *Service) Summary(ctx context.Context, t *models.Tenant) (*Summary, error) {
	if t.IsChild() {
		return nil, ErrChildTenantBilling
	}

	ent, err := s.resolver.Resolve(ctx, t)
	if err != nil {
		return nil, err
	}
	state, err := s.gate.Resolve(ctx, t)
	if err != nil {
		return nil, err
	}
	quotas, err := s.quotas.CheckAll(ctx, t)
	if err != nil {
		return nil, err
	}

	out := &Summary{
		TenantID:      t.ID,
		PlanCode:      ent.PlanCode,
		BillingStatus: t.BillingStatus,
		TrialEndsAt:   t.TrialEndsAt,
		State:         state,
		Quotas:        quotas,
	}
	if ent.PlanID != nil {
		plan, err := s.catalog.GetPlan(ctx, *ent.PlanID)
		if err != nil && !errors.Is(err, catalog.ErrPlanNotFound) {
			return nil, err
		}
		if plan != nil {
			out.PlanName = plan.Name
			out.MonthlyPrice = plan.MonthlyPrice
			out.YearlyPrice = plan.YearlyPrice
		}
	}

	for _, code := range []models.AddonCode{models.AddonAdmin, models.AddonAssociations, models.AddonMairies} {
		if code == models.AddonMairies && t.TenantType != models.TenantTypeEPCI {
			continue
		}
		a := ent.Addon(code)
		line := AddonLine{
			Code:            code,
			IsEnabled:       a.IsEnabled,
			Quantity:        a.Quantity,
			DefaultQuantity: a.DefaultQuantity,
			UnitPrice:       a.UnitPrice,
		}
		if code == models.AddonMairies && ent.PlanID != nil {
			price, err := s.communePrice(ctx, *ent.PlanID, quotas[quota.ResourceCommunes].Used)
			if err != nil {
				return nil, err
			}
			if price != nil {
				line.UnitPrice = *price
			}
		}
		out.Addons = append(out.Addons, line)
	}
	return out, nil
}

// communePrice prices the MAIRIES addon from the hosted commune count, the
// same bracket QuoteAddon uses.
func (s *Service) communePrice(ctx context.Context, planID uuid.UUID, communes int) (*entitlement.UnitPrice, error) {
	addon, err := s.catalog.GetAddonByCode(ctx, models.AddonMairies)
	if errors.Is(err, catalog.ErrAddonNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	access, err := s.catalog.PlanAddonAccess(ctx, planID, addon.ID)
	if err != nil {
		return nil, err
	}
	price := entitlement.PriceFor(addon, access, communes)
	return &price, nil
}

type Quote struct {
	Addon              models.AddonCode      `json:"addon"`
	CurrentQuantity    int                   `json:"current_quantity"`
	AdditionalQuantity int                   `json:"additional_quantity"`
	TotalQuantity      int                   `json:"total_quantity"`
	BracketQuantity    int                   `json:"bracket_quantity"`
	UnitPrice          entitlement.UnitPrice `json:"unit_price"`
	MonthlyTotal       decimal.Decimal       `json:"monthly_total"`
	YearlyTotal        decimal.Decimal       `json:"yearly_total"`
}

// QuoteAddon prices buying additional units. The bracket is chosen from the
// total the tenant would reach: the commune count after the addition for
// MAIRIES, the purchased quantity after the addition otherwise.
func (s *Service) QuoteAddon(ctx context.Context, t *models.Tenant, code models.AddonCode, additional int) (*Quote, error) {
	addon, access, err := s.purchasable(ctx, t, code, additional)
	if err != nil {
		return nil, err
	}

	current, err := s.purchasedQuantity(s.db.WithContext(ctx), t.ID, addon.ID)
	if err != nil {
		return nil, err
	}
	return s.quote(ctx, t, addon, access, current, additional)
}

func (s *Service) quote(ctx context.Context, t *models.Tenant, addon *models.Addon, access *models.PlanAddonAccess, current, additional int) (*Quote, error) {
	total := current + additional
	bracket := total
	if addon.Code == models.AddonMairies {
		q, err := s.quotas.Check(ctx, t, quota.ResourceCommunes)
		if err != nil {
			return nil, err
		}
		bracket = q.Used + additional
	}

	price := entitlement.PriceFor(addon, access, bracket)
	q := &Quote{
		Addon:              addon.Code,
		CurrentQuantity:    current,
		AdditionalQuantity: additional,
		TotalQuantity:      total,
		BracketQuantity:    bracket,
		UnitPrice:          price,
	}
	// Tier prices are flat per bracket; other prices are per unit.
	if price.Source == entitlement.PriceFromTier {
		q.MonthlyTotal = price.Monthly
		q.YearlyTotal = price.Yearly
	} else {
		qty := decimal.NewFromInt(int64(total))
		q.MonthlyTotal = price.Monthly.Mul(qty)
		q.YearlyTotal = price.Yearly.Mul(qty)
	}
	return q, nil
}

// PurchaseAddon adds units of an addon to an owning tenant. Child tenants,
// addons disabled for the plan and MAIRIES outside an EPCI are rejected.
func (s *Service) PurchaseAddon(ctx context.Context, t *models.Tenant, code models.AddonCode, additional int) (*Quote, error) {
	if t.LifecycleStatus == models.LifecycleSuspended {
		return nil, ErrTenantSuspended
	}
	addon, access, err := s.purchasable(ctx, t, code, additional)
	if err != nil {
		return nil, err
	}

	var current int
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.TenantAddon
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ? AND addon_id = ?", t.ID, addon.ID).
			First(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row = models.TenantAddon{TenantID: t.ID, AddonID: addon.ID, Quantity: additional}
			return tx.Create(&row).Error
		case err != nil:
			return fmt.Errorf("loading tenant addon: %w", err)
		}
		current = row.Quantity
		return tx.Model(&row).Update("quantity", gorm.Expr("quantity + ?", additional)).Error
	})
	if err != nil {
		return nil, fmt.Errorf("purchasing addon: %w", err)
	}

	s.invalidateTree(ctx, t)
	s.logger.Info("addon purchased",
		"tenant_id", t.ID,
		"slug", t.Slug,
		"addon", code,
		"previous_quantity", current,
		"added", additional,
	)
	return s.quote(ctx, t, addon, access, current, additional)
}

func (s *Service) purchasable(ctx context.Context, t *models.Tenant, code models.AddonCode, additional int) (*models.Addon, *models.PlanAddonAccess, error) {
	if t.IsChild() {
		return nil, nil, ErrChildTenantBilling
	}
	if !code.Valid() {
		return nil, nil, catalog.ErrAddonNotFound
	}
	if additional < 1 {
		return nil, nil, ErrInvalidQuantity
	}
	if code == models.AddonMairies && t.TenantType != models.TenantTypeEPCI {
		return nil, nil, ErrAddonNotApplicable
	}
	if t.PlanID == nil {
		return nil, nil, ErrNoPlan
	}

	addon, err := s.catalog.GetAddonByCode(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	access, err := s.catalog.PlanAddonAccess(ctx, *t.PlanID, addon.ID)
	if err != nil {
		return nil, nil, err
	}
	if access == nil || !access.IsEnabled {
		return nil, nil, ErrAddonNotEnabled
	}
	return addon, access, nil
}

func (s *Service) purchasedQuantity(db *gorm.DB, tenantID, addonID uuid.UUID) (int, error) {
	var row models.TenantAddon
	err := db.Where("tenant_id = ? AND addon_id = ?", tenantID, addonID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("loading tenant addon: %w", err)
	}
	return row.Quantity, nil
}

// State is the gate decision for t.
func (s *Service) State(ctx context.Context, t *models.Tenant) (*State, error) {
	return s.gate.Resolve(ctx, t)
}

// ChangeStatus applies a status coming from the payment pipeline.
func (s *Service) ChangeStatus(ctx context.Context, tenantID uuid.UUID, status models.BillingStatus) (*models.Tenant, error) {
	t, previous, err := s.tenants.SetBillingStatus(ctx, tenantID, status)
	if err != nil {
		return nil, err
	}
	if previous == status {
		return t, nil
	}

	metrics.BillingTransitions.WithLabelValues(string(previous), string(status)).Inc()
	s.invalidateTree(ctx, t)
	if err := s.publisher.BillingStatusChanged(ctx, t.ID, previous, status); err != nil {
		s.logger.Warn("failed to publish billing status change", "tenant_id", t.ID, "error", err)
	}
	return t, nil
}

// ExpireTrials suspends top-level tenants whose trial ended before now.
func (s *Service) ExpireTrials(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.tenants.ExpiredTrials(ctx, now)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range expired {
		if _, err := s.ChangeStatus(ctx, expired[i].ID, models.BillingStatusSuspended); err != nil {
			s.logger.Error("failed to expire trial", "tenant_id", expired[i].ID, "error", err)
			continue
		}
		count++
	}
	if count > 0 {
		s.logger.Info("expired trials suspended", "count", count)
	}
	return count, nil
}

// InvalidateTree drops cached entitlements for t and every descendant.
func (s *Service) InvalidateTree(ctx context.Context, tenantID uuid.UUID) error {
	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return err
	}
	s.invalidateTree(ctx, t)
	return nil
}

func (s *Service) invalidateTree(ctx context.Context, t *models.Tenant) {
	ids := []uuid.UUID{t.ID}
	level := []models.Tenant{*t}
	for depth := 0; depth < entitlement.MaxOwnerDepth && len(level) > 0; depth++ {
		var next []models.Tenant
		for i := range level {
			children, err := s.tenants.Children(ctx, &level[i])
			if err != nil {
				s.logger.Warn("failed to list children for cache invalidation", "tenant_id", level[i].ID, "error", err)
				continue
			}
			for _, c := range children {
				ids = append(ids, c.ID)
			}
			next = append(next, children...)
		}
		level = next
	}
	s.resolver.Invalidate(ctx, ids...)
}
