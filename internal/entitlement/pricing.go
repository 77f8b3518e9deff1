package entitlement

import (
	"github.com/hugh/voxpopulous/internal/database/models"
	"github.com/shopspring/decimal"
)

// PriceSource tells which catalog row produced a unit price.
type PriceSource string

const (
	PriceFromTier         PriceSource = "tier"
	PriceFromPlanOverride PriceSource = "plan_override"
	PriceFromAddonDefault PriceSource = "addon_default"
)

type UnitPrice struct {
	Monthly decimal.Decimal   `json:"monthly"`
	Yearly  decimal.Decimal   `json:"yearly"`
	Source  PriceSource       `json:"source"`
	Tier    *models.AddonTier `json:"tier,omitempty"`
}

// PriceFor picks the unit price for a quantity: the tier whose
// [min, max] range contains quantity, then the plan override, then the
// addon default. Callers pricing a bracketed addon pass the total desired
// quantity, never the increment.
func PriceFor(addon *models.Addon, access *models.PlanAddonAccess, quantity int) UnitPrice {
	if tier := TierFor(addon.Tiers, quantity); tier != nil {
		return UnitPrice{
			Monthly: tier.MonthlyPrice,
			Yearly:  tier.YearlyPrice,
			Source:  PriceFromTier,
			Tier:    tier,
		}
	}

	if access != nil && access.MonthlyPrice != nil {
		yearly := addon.DefaultYearlyPrice
		if access.YearlyPrice != nil {
			yearly = *access.YearlyPrice
		}
		return UnitPrice{
			Monthly: *access.MonthlyPrice,
			Yearly:  yearly,
			Source:  PriceFromPlanOverride,
		}
	}

	return UnitPrice{
		Monthly: addon.DefaultMonthlyPrice,
		Yearly:  addon.DefaultYearlyPrice,
		Source:  PriceFromAddonDefault,
	}
}

// TierFor returns the first tier containing quantity, or nil.
func TierFor(tiers []models.AddonTier, quantity int) *models.AddonTier {
	for i := range tiers {
		if tiers[i].Contains(quantity) {
			t := tiers[i]
			return &t
		}
	}
	return nil
}
