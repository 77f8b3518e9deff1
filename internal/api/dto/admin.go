package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/hugh/voxpopulous/internal/billing"
	"github.com/hugh/voxpopulous/internal/database/models"
	"github.com/hugh/voxpopulous/internal/entitlement"
	"github.com/hugh/voxpopulous/internal/navigation"
	"github.com/hugh/voxpopulous/internal/quota"
	"github.com/hugh/voxpopulous/internal/session"
)

type CreateAdminRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// CreateChildRequest creates a commune under an EPCI or an association
// under a MAIRIE/EPCI.
type CreateChildRequest struct {
	Name string `json:"name" validate:"required,max=120"`
	Slug string `json:"slug" validate:"required,slug"`
}

type CreateElectedOfficialRequest struct {
	Name            string   `json:"name" validate:"required,max=120"`
	Email           string   `json:"email" validate:"required,email,max=254"`
	Password        string   `json:"password" validate:"required,min=8,max=128"`
	Position        string   `json:"position" validate:"max=120"`
	HasFullAccess   bool     `json:"has_full_access"`
	MenuPermissions []string `json:"menu_permissions" validate:"dive,menucode"`
}

type UpdatePermissionsRequest struct {
	HasFullAccess   bool     `json:"has_full_access"`
	MenuPermissions []string `json:"menu_permissions" validate:"dive,menucode"`
}

type PurchaseAddonRequest struct {
	Addon    string `json:"addon" validate:"required,addoncode"`
	Quantity int    `json:"quantity" validate:"required,min=1,max=10000"`
}

type PrincipalDTO struct {
	Kind      session.Kind `json:"kind"`
	SubjectID uuid.UUID    `json:"subject_id"`
	TenantID  *uuid.UUID   `json:"tenant_id,omitempty"`
	Email     string       `json:"email"`
}

type TenantDTO struct {
	ID              uuid.UUID              `json:"id"`
	Slug            string                 `json:"slug"`
	Name            string                 `json:"name"`
	TenantType      models.TenantType      `json:"tenant_type"`
	ParentEpciID    *uuid.UUID             `json:"parent_epci_id,omitempty"`
	ParentTenantID  *uuid.UUID             `json:"parent_tenant_id,omitempty"`
	PlanID          *uuid.UUID             `json:"plan_id,omitempty"`
	BillingStatus   models.BillingStatus   `json:"billing_status"`
	LifecycleStatus models.LifecycleStatus `json:"lifecycle_status"`
	SuspendedReason *string                `json:"suspended_reason,omitempty"`
	TrialEndsAt     *time.Time             `json:"trial_ends_at,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

func NewTenantDTO(t *models.Tenant) TenantDTO {
	return TenantDTO{
		ID:              t.ID,
		Slug:            t.Slug,
		Name:            t.Name,
		TenantType:      t.TenantType,
		ParentEpciID:    t.ParentEpciID,
		ParentTenantID:  t.ParentTenantID,
		PlanID:          t.PlanID,
		BillingStatus:   t.BillingStatus,
		LifecycleStatus: t.LifecycleStatus,
		SuspendedReason: t.SuspendedReason,
		TrialEndsAt:     t.TrialEndsAt,
		CreatedAt:       t.CreatedAt,
	}
}

func NewTenantDTOs(tenants []models.Tenant) []TenantDTO {
	out := make([]TenantDTO, 0, len(tenants))
	for i := range tenants {
		out = append(out, NewTenantDTO(&tenants[i]))
	}
	return out
}

// MeResponse is everything the admin shell needs on load.
type MeResponse struct {
	Principal      PrincipalDTO              `json:"principal"`
	Tenant         TenantDTO                 `json:"tenant"`
	Billing        *billing.State            `json:"billing"`
	AccountBlocked bool                      `json:"account_blocked"`
	BlockReason    string                    `json:"block_reason,omitempty"`
	Features       []entitlement.FeatureCode `json:"features"`
	PlanCode       string                    `json:"plan_code,omitempty"`
}

type NavigationResponse struct {
	Items []navigation.Item `json:"items"`
}

// FeaturesResponse feeds the public tenant site.
type FeaturesResponse struct {
	HasIdeas     bool                      `json:"hasIdeas"`
	HasIncidents bool                      `json:"hasIncidents"`
	HasEvents    bool                      `json:"hasEvents"`
	Features     []entitlement.FeatureCode `json:"features"`
}

type ListWithQuota struct {
	Data  interface{}  `json:"data"`
	Quota *quota.Quota `json:"quota"`
}

type CreatedWithQuota struct {
	Data  interface{}  `json:"data"`
	Quota *quota.Quota `json:"quota"`
}
