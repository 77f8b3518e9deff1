package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SubscriptionPlan struct {
	Base
	Code                 string          `gorm:"uniqueIndex;not null" json:"code"`
	Name                 string          `gorm:"not null" json:"name"`
	MonthlyPrice         decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"monthly_price"`
	YearlyPrice          decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"yearly_price"`
	HasIdeas             bool            `gorm:"default:false" json:"has_ideas"`
	HasIncidents         bool            `gorm:"default:false" json:"has_incidents"`
	HasMeetings          bool            `gorm:"default:false" json:"has_meetings"`
	MaxAdmins            int             `gorm:"not null;default:1" json:"max_admins"`
	AssociationsIncluded int             `gorm:"not null;default:0" json:"associations_included"`
	CommunesIncluded     int             `gorm:"not null;default:0" json:"communes_included"`
	TargetTenantTypes    []TenantType    `gorm:"type:text;serializer:json" json:"target_tenant_types"`
	IsActive             bool            `gorm:"default:true" json:"is_active"`

	FeatureAssignments []PlanFeatureAssignment `gorm:"foreignKey:PlanID" json:"-"`
	AddonAccess        []PlanAddonAccess       `gorm:"foreignKey:PlanID" json:"-"`
}

func (SubscriptionPlan) TableName() string {
	return "subscription_plans"
}

// Targets reports whether tenants of type t may subscribe to the plan.
// An empty target list means every type.
func (p *SubscriptionPlan) Targets(t TenantType) bool {
	if len(p.TargetTenantTypes) == 0 {
		return true
	}
	for _, tt := range p.TargetTenantTypes {
		if tt == t {
			return true
		}
	}
	return false
}

type Feature struct {
	Base
	Code        string `gorm:"uniqueIndex;not null" json:"code"`
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
}

func (Feature) TableName() string {
	return "features"
}

type PlanFeatureAssignment struct {
	Base
	PlanID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_plan_feature" json:"plan_id"`
	FeatureCode string    `gorm:"not null;uniqueIndex:idx_plan_feature" json:"feature_code"`
}

func (PlanFeatureAssignment) TableName() string {
	return "plan_feature_assignments"
}
