package dto

import "github.com/google/uuid"

type CreateTenantRequest struct {
	Name           string     `json:"name" validate:"required,max=120"`
	Slug           string     `json:"slug" validate:"required,slug"`
	TenantType     string     `json:"tenant_type" validate:"required,oneof=MAIRIE EPCI ASSOCIATION"`
	ParentEpciID   *uuid.UUID `json:"parent_epci_id"`
	ParentTenantID *uuid.UUID `json:"parent_tenant_id"`
	PlanCode       string     `json:"plan_code"`
	BillingStatus  string     `json:"billing_status" validate:"omitempty,billingstatus"`
}

type SetParentRequest struct {
	ParentEpciID   *uuid.UUID `json:"parent_epci_id"`
	ParentTenantID *uuid.UUID `json:"parent_tenant_id"`
}

type SetPlanRequest struct {
	PlanCode string `json:"plan_code" validate:"required"`
}

type SuspendRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type BillingStatusRequest struct {
	Status string `json:"status" validate:"required,billingstatus"`
}

type PlanFeaturesRequest struct {
	Features []string `json:"features" validate:"dive,featurecode"`
}

type AddonAccessRequest struct {
	IsEnabled       bool    `json:"is_enabled"`
	DefaultQuantity int     `json:"default_quantity" validate:"min=0"`
	MonthlyPrice    *string `json:"monthly_price" validate:"omitempty,decimal"`
	YearlyPrice     *string `json:"yearly_price" validate:"omitempty,decimal"`
}
