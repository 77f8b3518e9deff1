package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/hugh/voxpopulous/internal/database/models"
	"github.com/hugh/voxpopulous/internal/entitlement"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type featureSeed struct {
	Code        entitlement.FeatureCode
	Name        string
	Description string
}

var defaultFeatures = []featureSeed{
	{entitlement.FeatureIdeaBox, "Boîte à idées", "Collecte et vote des idées citoyennes"},
	{entitlement.FeatureIncidents, "Signalements", "Signalement d'incidents sur la voie publique"},
	{entitlement.FeatureEvents, "Événements", "Événements et inscriptions"},
	{entitlement.FeatureCustomDomain, "Domaine personnalisé", "Publication sur un nom de domaine propre"},
}

type planSeed struct {
	Code                 string
	Name                 string
	Monthly, Yearly      string
	MaxAdmins            int
	AssociationsIncluded int
	CommunesIncluded     int
	Targets              []models.TenantType
	Features             []entitlement.FeatureCode
	Addons               map[models.AddonCode]int
}

var defaultPlans = []planSeed{
	{
		Code:                 "ESSENTIEL",
		Name:                 "Essentiel",
		Monthly:              "49",
		Yearly:               "490",
		MaxAdmins:            2,
		AssociationsIncluded: 5,
		Targets:              []models.TenantType{models.TenantTypeMairie},
		Features:             []entitlement.FeatureCode{entitlement.FeatureIdeaBox, entitlement.FeatureEvents},
		Addons:               map[models.AddonCode]int{models.AddonAdmin: 1},
	},
	{
		Code:                 "SERENITE",
		Name:                 "Sérénité",
		Monthly:              "99",
		Yearly:               "990",
		MaxAdmins:            5,
		AssociationsIncluded: 20,
		Targets:              []models.TenantType{models.TenantTypeMairie},
		Features: []entitlement.FeatureCode{
			entitlement.FeatureIdeaBox, entitlement.FeatureIncidents,
			entitlement.FeatureEvents, entitlement.FeatureCustomDomain,
		},
		Addons: map[models.AddonCode]int{models.AddonAdmin: 1, models.AddonAssociations: 10},
	},
	{
		Code:                 "TERRITOIRE",
		Name:                 "Territoire",
		Monthly:              "299",
		Yearly:               "2990",
		MaxAdmins:            10,
		AssociationsIncluded: 20,
		CommunesIncluded:     10,
		Targets:              []models.TenantType{models.TenantTypeEPCI},
		Features: []entitlement.FeatureCode{
			entitlement.FeatureIdeaBox, entitlement.FeatureIncidents,
			entitlement.FeatureEvents, entitlement.FeatureCustomDomain,
		},
		Addons: map[models.AddonCode]int{
			models.AddonAdmin: 1, models.AddonAssociations: 10, models.AddonMairies: 10,
		},
	},
	{
		Code:      "ASSOCIATION",
		Name:      "Association",
		Monthly:   "9",
		Yearly:    "90",
		MaxAdmins: 2,
		Targets:   []models.TenantType{models.TenantTypeAssociation},
		Features:  []entitlement.FeatureCode{entitlement.FeatureEvents},
		Addons:    map[models.AddonCode]int{models.AddonAdmin: 1},
	},
}

type tierSeed struct {
	Min             int
	Max             *int
	Monthly, Yearly string
}

type addonSeed struct {
	Code            models.AddonCode
	Name            string
	Monthly, Yearly string
	Tiers           []tierSeed
}

func intPtr(v int) *int { return &v }

var defaultAddons = []addonSeed{
	{Code: models.AddonAdmin, Name: "Administrateur supplémentaire", Monthly: "9", Yearly: "90"},
	{Code: models.AddonAssociations, Name: "Associations supplémentaires", Monthly: "2", Yearly: "20"},
	{
		Code:    models.AddonMairies,
		Name:    "Communes membres",
		Monthly: "0",
		Yearly:  "0",
		Tiers: []tierSeed{
			{Min: 1, Max: intPtr(10), Monthly: "149", Yearly: "1490"},
			{Min: 11, Max: intPtr(40), Monthly: "399", Yearly: "3990"},
			{Min: 41, Max: intPtr(100), Monthly: "799", Yearly: "7990"},
			{Min: 101, Monthly: "1299", Yearly: "12990"},
		},
	},
}

// Seed inserts the default catalog. Existing codes are left untouched.
func (s *Service) Seed(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, f := range defaultFeatures {
			row := models.Feature{Code: string(f.Code), Name: f.Name, Description: f.Description}
			if _, err := createIfMissing(tx, &row, string(f.Code)); err != nil {
				return fmt.Errorf("seeding feature %s: %w", f.Code, err)
			}
		}

		addonIDs := make(map[models.AddonCode]models.Addon)
		for _, a := range defaultAddons {
			row := models.Addon{
				Code:                a.Code,
				Name:                a.Name,
				DefaultMonthlyPrice: decimal.RequireFromString(a.Monthly),
				DefaultYearlyPrice:  decimal.RequireFromString(a.Yearly),
			}
			created, err := createIfMissing(tx, &row, string(a.Code))
			if err != nil {
				return fmt.Errorf("seeding addon %s: %w", a.Code, err)
			}
			if created {
				for _, t := range a.Tiers {
					tier := models.AddonTier{
						AddonID:      row.ID,
						MinQuantity:  t.Min,
						MaxQuantity:  t.Max,
						MonthlyPrice: decimal.RequireFromString(t.Monthly),
						YearlyPrice:  decimal.RequireFromString(t.Yearly),
					}
					if err := tx.Create(&tier).Error; err != nil {
						return fmt.Errorf("seeding tier for %s: %w", a.Code, err)
					}
				}
			}
			addonIDs[a.Code] = row
		}

		for _, p := range defaultPlans {
			row := models.SubscriptionPlan{
				Code:                 p.Code,
				Name:                 p.Name,
				MonthlyPrice:         decimal.RequireFromString(p.Monthly),
				YearlyPrice:          decimal.RequireFromString(p.Yearly),
				MaxAdmins:            p.MaxAdmins,
				AssociationsIncluded: p.AssociationsIncluded,
				CommunesIncluded:     p.CommunesIncluded,
				TargetTenantTypes:    p.Targets,
				IsActive:             true,
			}
			created, err := createIfMissing(tx, &row, p.Code)
			if err != nil {
				return fmt.Errorf("seeding plan %s: %w", p.Code, err)
			}
			if !created {
				continue
			}
			for _, f := range p.Features {
				a := models.PlanFeatureAssignment{PlanID: row.ID, FeatureCode: string(f)}
				if err := tx.Create(&a).Error; err != nil {
					return fmt.Errorf("seeding %s feature %s: %w", p.Code, f, err)
				}
			}
			for code, addon := range addonIDs {
				qty, enabled := p.Addons[code]
				access := models.PlanAddonAccess{
					PlanID:          row.ID,
					AddonID:         addon.ID,
					IsEnabled:       enabled,
					DefaultQuantity: qty,
				}
				if err := tx.Create(&access).Error; err != nil {
					return fmt.Errorf("seeding %s addon access %s: %w", p.Code, code, err)
				}
			}
		}

		s.logger.Info("catalog seeded",
			"features", len(defaultFeatures),
			"addons", len(defaultAddons),
			"plans", len(defaultPlans),
		)
		return nil
	})
}

// createIfMissing inserts row unless a row with the same code exists, in
// which case row is loaded from the database.
func createIfMissing(tx *gorm.DB, row interface{}, code string) (bool, error) {
	err := tx.Where("code = ?", code).First(row).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	if err := tx.Create(row).Error; err != nil {
		return false, err
	}
	return true, nil
}
