package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/voxpopulous/internal/database/models"
	"github.com/hugh/voxpopulous/internal/metrics"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// Source records which path produced the feature set.
type Source string

const (
	SourceCatalog Source = "catalog"
	SourceLegacy  Source = "legacy"
	SourceNone    Source = "none"
)

type AddonAccess struct {
	Code            models.AddonCode `json:"code"`
	IsEnabled       bool             `json:"is_enabled"`
	DefaultQuantity int              `json:"default_quantity"`
	Quantity        int              `json:"quantity"`
	UnitPrice       UnitPrice        `json:"unit_price"`
}

// Entitlements is the resolved grant for one tenant. BillingOwnerID is the
// tenant whose plan and addon purchases apply; it differs from TenantID for
// child structures without a subscription of their own.
type Entitlements struct {
	TenantID       uuid.UUID                        `json:"tenant_id"`
	BillingOwnerID uuid.UUID                        `json:"billing_owner_id"`
	PlanID         *uuid.UUID                       `json:"plan_id,omitempty"`
	PlanCode       string                           `json:"plan_code,omitempty"`
	Source         Source                           `json:"source"`
	Features       FeatureSet                       `json:"features"`
	Addons         map[models.AddonCode]AddonAccess `json:"addons"`
	Limits         PlanLimits                       `json:"limits"`
}

// PlanLimits are the capacities bundled with the plan itself.
type PlanLimits struct {
	MaxAdmins            int `json:"max_admins"`
	AssociationsIncluded int `json:"associations_included"`
	CommunesIncluded     int `json:"communes_included"`
}

func (e *Entitlements) HasFeature(code FeatureCode) bool {
	return e != nil && e.Features.Has(code)
}

// Addon returns the access row for code; a missing row is disabled.
func (e *Entitlements) Addon(code models.AddonCode) AddonAccess {
	if e == nil {
		return AddonAccess{Code: code}
	}
	if a, ok := e.Addons[code]; ok {
		return a
	}
	return AddonAccess{Code: code}
}

func disabled(t *models.Tenant, ownerID uuid.UUID) *Entitlements {
	return &Entitlements{
		TenantID:       t.ID,
		BillingOwnerID: ownerID,
		Source:         SourceNone,
		Features:       NewFeatureSet(),
		Addons:         map[models.AddonCode]AddonAccess{},
	}
}

type Resolver struct {
	db     *gorm.DB
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewResolver caches through Redis when client is non-nil.
func NewResolver(db *gorm.DB, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Resolver {
	var cache Cache = nopCache{}
	if client != nil {
		cache = NewRedisCache(client)
	}
	return NewResolverWithCache(db, cache, ttl, logger)
}

func NewResolverWithCache(db *gorm.DB, cache Cache, ttl time.Duration, logger *slog.Logger) *Resolver {
	if cache == nil {
		cache = nopCache{}
	}
	return &Resolver{db: db, cache: cache, ttl: ttl, logger: logger}
}

func cacheKey(tenantID uuid.UUID) string {
	return "entitlements:" + tenantID.String()
}

// Resolve never fails closed into an error for catalog gaps: a missing or
// inactive plan yields an all-disabled set. Errors are storage failures only.
func (r *Resolver) Resolve(ctx context.Context, t *models.Tenant) (*Entitlements, error) {
	key := cacheKey(t.ID)
	if data, ok := r.cache.Get(ctx, key); ok {
		var e Entitlements
		if err := json.Unmarshal(data, &e); err == nil {
			metrics.EntitlementCacheLookups.WithLabelValues("hit").Inc()
			return &e, nil
		}
	}
	metrics.EntitlementCacheLookups.WithLabelValues("miss").Inc()

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		e, err := r.load(ctx, t)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(e); err == nil && r.ttl > 0 {
			r.cache.Set(ctx, key, data, r.ttl)
		}
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entitlements), nil
}

// Invalidate drops cached entitlements for the given tenants.
func (r *Resolver) Invalidate(ctx context.Context, tenantIDs ...uuid.UUID) {
	keys := make([]string, 0, len(tenantIDs))
	for _, id := range tenantIDs {
		keys = append(keys, cacheKey(id))
	}
	r.cache.Delete(ctx, keys...)
}

// BillingOwner returns the tenant whose subscription applies to t.
func (r *Resolver) BillingOwner(ctx context.Context, t *models.Tenant) (*models.Tenant, error) {
	return OwnerOf(r.db.WithContext(ctx), t)
}

// MaxOwnerDepth bounds the ancestor walk in OwnerOf.
const MaxOwnerDepth = 4

// OwnerOf returns the first tenant on the path from t upwards that has a
// plan, or the topmost ancestor reached when none has one. It runs on
// whatever handle it is given so callers can use it inside a transaction.
func OwnerOf(db *gorm.DB, t *models.Tenant) (*models.Tenant, error) {
	current := t
	for depth := 0; depth < MaxOwnerDepth; depth++ {
		if current.PlanID != nil || !current.IsChild() {
			return current, nil
		}
		var parent models.Tenant
		if err := db.Where("id = ?", *current.ParentID()).First(&parent).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return current, nil
			}
			return nil, fmt.Errorf("loading parent tenant: %w", err)
		}
		current = &parent
	}
	return current, nil
}

func (r *Resolver) load(ctx context.Context, t *models.Tenant) (*Entitlements, error) {
	db := r.db.WithContext(ctx)

	owner, err := r.BillingOwner(ctx, t)
	if err != nil {
		return nil, err
	}
	if owner.PlanID == nil {
		metrics.EntitlementResolutions.WithLabelValues(string(SourceNone)).Inc()
		return disabled(t, owner.ID), nil
	}

	var plan models.SubscriptionPlan
	if err := db.Where("id = ? AND is_active = ?", *owner.PlanID, true).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			r.logger.Warn("tenant plan missing or inactive",
				"tenant_id", t.ID,
				"plan_id", *owner.PlanID,
			)
			metrics.EntitlementResolutions.WithLabelValues(string(SourceNone)).Inc()
			return disabled(t, owner.ID), nil
		}
		return nil, fmt.Errorf("loading plan: %w", err)
	}

	e := &Entitlements{
		TenantID:       t.ID,
		BillingOwnerID: owner.ID,
		PlanID:         &plan.ID,
		PlanCode:       plan.Code,
		Addons:         map[models.AddonCode]AddonAccess{},
		Limits: PlanLimits{
			MaxAdmins:            plan.MaxAdmins,
			AssociationsIncluded: plan.AssociationsIncluded,
			CommunesIncluded:     plan.CommunesIncluded,
		},
	}

	features, source, err := r.features(ctx, &plan)
	if err != nil {
		return nil, err
	}
	e.Features = features
	e.Source = source

	if err := r.addons(ctx, owner.ID, &plan, e); err != nil {
		return nil, err
	}

	metrics.EntitlementResolutions.WithLabelValues(string(source)).Inc()
	return e, nil
}

func (r *Resolver) features(ctx context.Context, plan *models.SubscriptionPlan) (FeatureSet, Source, error) {
	var assignments []models.PlanFeatureAssignment
	if err := r.db.WithContext(ctx).Where("plan_id = ?", plan.ID).Find(&assignments).Error; err != nil {
		return nil, "", fmt.Errorf("loading feature assignments: %w", err)
	}

	if len(assignments) > 0 {
		set := NewFeatureSet()
		for _, a := range assignments {
			code, ok := ParseFeatureCode(a.FeatureCode)
			if !ok {
				r.logger.Warn("ignoring unknown feature code", "plan", plan.Code, "code", a.FeatureCode)
				continue
			}
			set[code] = struct{}{}
		}
		return set, SourceCatalog, nil
	}

	r.logger.Debug("plan has no catalog features, using legacy flags", "plan", plan.Code)
	return LegacyFeatures(plan), SourceLegacy, nil
}

// LegacyFeatures maps the boolean plan flags to feature codes.
func LegacyFeatures(plan *models.SubscriptionPlan) FeatureSet {
	set := NewFeatureSet()
	if plan.HasIdeas {
		set[FeatureIdeaBox] = struct{}{}
	}
	if plan.HasIncidents {
		set[FeatureIncidents] = struct{}{}
	}
	if plan.HasMeetings {
		set[FeatureEvents] = struct{}{}
	}
	return set
}

func (r *Resolver) addons(ctx context.Context, ownerID uuid.UUID, plan *models.SubscriptionPlan, e *Entitlements) error {
	db := r.db.WithContext(ctx)

	var addons []models.Addon
	if err := db.Preload("Tiers", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("min_quantity ASC")
	}).Find(&addons).Error; err != nil {
		return fmt.Errorf("loading addons: %w", err)
	}

	var access []models.PlanAddonAccess
	if err := db.Where("plan_id = ?", plan.ID).Find(&access).Error; err != nil {
		return fmt.Errorf("loading plan addon access: %w", err)
	}
	accessByAddon := make(map[uuid.UUID]*models.PlanAddonAccess, len(access))
	for i := range access {
		accessByAddon[access[i].AddonID] = &access[i]
	}

	var purchased []models.TenantAddon
	if err := db.Where("tenant_id = ?", ownerID).Find(&purchased).Error; err != nil {
		return fmt.Errorf("loading tenant addons: %w", err)
	}
	quantityByAddon := make(map[uuid.UUID]int, len(purchased))
	for _, p := range purchased {
		quantityByAddon[p.AddonID] = p.Quantity
	}

	for i := range addons {
		addon := &addons[i]
		acc := accessByAddon[addon.ID]
		quantity := quantityByAddon[addon.ID]

		entry := AddonAccess{
			Code:      addon.Code,
			Quantity:  quantity,
			UnitPrice: PriceFor(addon, acc, quantity),
		}
		if acc != nil {
			entry.IsEnabled = acc.IsEnabled
			entry.DefaultQuantity = acc.DefaultQuantity
		}
		e.Addons[addon.Code] = entry
	}
	return nil
}
