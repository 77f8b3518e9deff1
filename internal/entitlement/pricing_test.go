package entitlement

import (
	"testing"

	"github.com/hugh/voxpopulous/internal/database/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func mairiesAddon() *models.Addon {
	tier := func(min int, max *int, monthly int64) models.AddonTier {
		return models.AddonTier{
			MinQuantity:  min,
			MaxQuantity:  max,
			MonthlyPrice: decimal.NewFromInt(monthly),
			YearlyPrice:  decimal.NewFromInt(monthly * 10),
		}
	}
	return &models.Addon{
		Code:                models.AddonMairies,
		DefaultMonthlyPrice: decimal.NewFromInt(20),
		DefaultYearlyPrice:  decimal.NewFromInt(200),
		Tiers: []models.AddonTier{
			tier(1, intPtr(10), 149),
			tier(11, intPtr(40), 399),
			tier(41, intPtr(100), 799),
			tier(101, nil, 1299),
		},
	}
}

func TestPriceFor_Tiers(t *testing.T) {
	addon := mairiesAddon()

	tests := []struct {
		name     string
		quantity int
		monthly  int64
	}{
		{"first bracket lower bound", 1, 149},
		{"first bracket upper bound", 10, 149},
		{"second bracket", 11, 399},
		{"bracket start", 41, 799},
		{"total after adding one", 42, 799},
		{"bracket end", 100, 799},
		{"open bracket", 250, 1299},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price := PriceFor(addon, nil, tt.quantity)
			assert.Equal(t, PriceFromTier, price.Source)
			assert.True(t, decimal.NewFromInt(tt.monthly).Equal(price.Monthly), "got %s", price.Monthly)
		})
	}
}

func TestPriceFor_Fallbacks(t *testing.T) {
	addon := &models.Addon{
		Code:                models.AddonAdmin,
		DefaultMonthlyPrice: decimal.NewFromInt(15),
		DefaultYearlyPrice:  decimal.NewFromInt(150),
	}

	t.Run("addon default without override", func(t *testing.T) {
		price := PriceFor(addon, &models.PlanAddonAccess{IsEnabled: true}, 3)
		assert.Equal(t, PriceFromAddonDefault, price.Source)
		assert.True(t, decimal.NewFromInt(15).Equal(price.Monthly))
	})

	t.Run("plan override", func(t *testing.T) {
		override := decimal.NewFromInt(12)
		price := PriceFor(addon, &models.PlanAddonAccess{IsEnabled: true, MonthlyPrice: &override}, 3)
		assert.Equal(t, PriceFromPlanOverride, price.Source)
		assert.True(t, override.Equal(price.Monthly))
		assert.True(t, decimal.NewFromInt(150).Equal(price.Yearly))
	})

	t.Run("quantity outside every tier falls back", func(t *testing.T) {
		tiered := mairiesAddon()
		price := PriceFor(tiered, nil, 0)
		assert.Equal(t, PriceFromAddonDefault, price.Source)
	})
}

func TestTierFor(t *testing.T) {
	addon := mairiesAddon()

	tier := TierFor(addon.Tiers, 42)
	require.NotNil(t, tier)
	assert.Equal(t, 41, tier.MinQuantity)
	assert.Equal(t, 100, *tier.MaxQuantity)

	assert.Nil(t, TierFor(nil, 5))
}

func TestFeatureSet_JSON(t *testing.T) {
	set := NewFeatureSet(FeatureEvents, FeatureIdeaBox)
	data, err := set.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `["EVENTS_CORE","IDEA_BOX_CORE"]`, string(data))

	var decoded FeatureSet
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.True(t, decoded.Has(FeatureIdeaBox))
	assert.False(t, decoded.Has(FeatureIncidents))

	_, ok := ParseFeatureCode("SOMETHING_ELSE")
	assert.False(t, ok)
}
