package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AddonCode string

const (
	AddonAdmin        AddonCode = "ADMIN"
	AddonAssociations AddonCode = "ASSOCIATIONS"
	AddonMairies      AddonCode = "MAIRIES"
)

func (c AddonCode) Valid() bool {
	switch c {
	case AddonAdmin, AddonAssociations, AddonMairies:
		return true
	}
	return false
}

type Addon struct {
	Base
	Code                AddonCode       `gorm:"uniqueIndex;not null" json:"code"`
	Name                string          `gorm:"not null" json:"name"`
	DefaultMonthlyPrice decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"default_monthly_price"`
	DefaultYearlyPrice  decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"default_yearly_price"`

	Tiers []AddonTier `gorm:"foreignKey:AddonID" json:"tiers,omitempty"`
}

func (Addon) TableName() string {
	return "addons"
}

// AddonTier is a priced quantity bracket. A nil MaxQuantity leaves the bracket open.
type AddonTier struct {
	Base
	AddonID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"addon_id"`
	MinQuantity  int             `gorm:"not null" json:"min_quantity"`
	MaxQuantity  *int            `json:"max_quantity,omitempty"`
	MonthlyPrice decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"monthly_price"`
	YearlyPrice  decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"yearly_price"`
}

func (AddonTier) TableName() string {
	return "addon_tiers"
}

// Contains reports whether quantity falls inside [MinQuantity, MaxQuantity].
func (t *AddonTier) Contains(quantity int) bool {
	if quantity < t.MinQuantity {
		return false
	}
	return t.MaxQuantity == nil || quantity <= *t.MaxQuantity
}

type PlanAddonAccess struct {
	Base
	PlanID          uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_plan_addon" json:"plan_id"`
	AddonID         uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_plan_addon" json:"addon_id"`
	IsEnabled       bool             `gorm:"default:false" json:"is_enabled"`
	DefaultQuantity int              `gorm:"not null;default:0" json:"default_quantity"`
	MonthlyPrice    *decimal.Decimal `gorm:"type:numeric(10,2)" json:"monthly_price,omitempty"`
	YearlyPrice     *decimal.Decimal `gorm:"type:numeric(10,2)" json:"yearly_price,omitempty"`

	Addon *Addon `gorm:"foreignKey:AddonID" json:"addon,omitempty"`
}

func (PlanAddonAccess) TableName() string {
	return "plan_addon_access"
}

// TenantAddon records units bought on top of the plan's included capacity.
type TenantAddon struct {
	Base
	TenantID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_tenant_addon" json:"tenant_id"`
	AddonID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_tenant_addon" json:"addon_id"`
	Quantity int       `gorm:"not null;default:0" json:"quantity"`
}

func (TenantAddon) TableName() string {
	return "tenant_addons"
}
