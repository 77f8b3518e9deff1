package models

import (
	"time"

	"github.com/google/uuid"
)

type TenantType string

const (
	TenantTypeMairie      TenantType = "MAIRIE"
	TenantTypeEPCI        TenantType = "EPCI"
	TenantTypeAssociation TenantType = "ASSOCIATION"
)

func (t TenantType) Valid() bool {
	switch t {
	case TenantTypeMairie, TenantTypeEPCI, TenantTypeAssociation:
		return true
	}
	return false
}

type BillingStatus string

const (
	BillingStatusTrial     BillingStatus = "TRIAL"
	BillingStatusActive    BillingStatus = "ACTIVE"
	BillingStatusPastDue   BillingStatus = "PAST_DUE"
	BillingStatusSuspended BillingStatus = "SUSPENDED"
	BillingStatusCancelled BillingStatus = "CANCELLED"
)

func (s BillingStatus) Valid() bool {
	switch s {
	case BillingStatusTrial, BillingStatusActive, BillingStatusPastDue,
		BillingStatusSuspended, BillingStatusCancelled:
		return true
	}
	return false
}

// NonPayment reports whether the status blocks the account for unpaid invoices.
func (s BillingStatus) NonPayment() bool {
	return s == BillingStatusSuspended
}

type LifecycleStatus string

const (
	LifecycleActive    LifecycleStatus = "ACTIVE"
	LifecycleSuspended LifecycleStatus = "SUSPENDED"
	LifecycleArchived  LifecycleStatus = "ARCHIVED"
)

type Tenant struct {
	Base
	Slug            string          `gorm:"uniqueIndex;not null" json:"slug"`
	Name            string          `gorm:"not null" json:"name"`
	TenantType      TenantType      `gorm:"not null;index" json:"tenant_type"`
	ParentEpciID    *uuid.UUID      `gorm:"type:uuid;index" json:"parent_epci_id,omitempty"`
	ParentTenantID  *uuid.UUID      `gorm:"type:uuid;index" json:"parent_tenant_id,omitempty"`
	PlanID          *uuid.UUID      `gorm:"type:uuid;index" json:"plan_id,omitempty"`
	BillingStatus   BillingStatus   `gorm:"not null;default:'TRIAL'" json:"billing_status"`
	LifecycleStatus LifecycleStatus `gorm:"not null;default:'ACTIVE'" json:"lifecycle_status"`
	SuspendedReason *string         `json:"suspended_reason,omitempty"`
	TrialEndsAt     *time.Time      `json:"trial_ends_at,omitempty"`

	Plan *SubscriptionPlan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
}

func (Tenant) TableName() string {
	return "tenants"
}

// ParentID returns whichever parent link is populated.
func (t *Tenant) ParentID() *uuid.UUID {
	if t.ParentEpciID != nil {
		return t.ParentEpciID
	}
	return t.ParentTenantID
}

// IsChild reports whether the tenant hangs under another structure and
// therefore does not own its subscription.
func (t *Tenant) IsChild() bool {
	return t.ParentID() != nil
}
