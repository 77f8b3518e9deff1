package catalog_test

import (
	"testing"

	"github.com/hugh/voxpopulous/internal/catalog"
	"github.com/hugh/voxpopulous/internal/database/models"
	"github.com/hugh/voxpopulous/internal/entitlement"
	"github.com/hugh/voxpopulous/internal/testutil"
	"github.com/hugh/voxpopulous/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeed_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := catalog.NewService(db, util.NewNopLogger())
	ctx := testutil.TestContext(t)

	require.NoError(t, svc.Seed(ctx))
	require.NoError(t, svc.Seed(ctx))

	plans, err := svc.ListPlans(ctx, true)
	require.NoError(t, err)
	assert.Len(t, plans, 4)

	essentiel, err := svc.GetPlanByCode(ctx, "ESSENTIEL")
	require.NoError(t, err)
	assert.True(t, essentiel.Targets(models.TenantTypeMairie))
	assert.False(t, essentiel.Targets(models.TenantTypeEPCI))

	mairies, err := svc.GetAddonByCode(ctx, models.AddonMairies)
	require.NoError(t, err)
	require.Len(t, mairies.Tiers, 4)
	assert.Equal(t, 1, mairies.Tiers[0].MinQuantity)
	assert.Nil(t, mairies.Tiers[3].MaxQuantity)

	access, err := svc.PlanAddonAccess(ctx, essentiel.ID, mairies.ID)
	require.NoError(t, err)
	require.NotNil(t, access)
	assert.False(t, access.IsEnabled)

	var assignments int64
	require.NoError(t, db.Model(&models.PlanFeatureAssignment{}).Where("plan_id = ?", essentiel.ID).Count(&assignments).Error)
	assert.Equal(t, int64(2), assignments)
}

func TestSetPlanFeatures(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := catalog.NewService(db, util.NewNopLogger())
	ctx := testutil.TestContext(t)

	plan := testutil.CreateTestPlan(t, db, testutil.PlanOptions{Features: []string{"IDEA_BOX_CORE"}})

	t.Run("replaces assignments", func(t *testing.T) {
		err := svc.SetPlanFeatures(ctx, plan.ID, []entitlement.FeatureCode{entitlement.FeatureIncidents, entitlement.FeatureEvents})
		require.NoError(t, err)

		var codes []string
		require.NoError(t, db.Model(&models.PlanFeatureAssignment{}).Where("plan_id = ?", plan.ID).Order("feature_code").Pluck("feature_code", &codes).Error)
		assert.Equal(t, []string{"EVENTS_CORE", "INCIDENTS_CORE"}, codes)
	})

	t.Run("rejects unknown feature", func(t *testing.T) {
		err := svc.SetPlanFeatures(ctx, plan.ID, []entitlement.FeatureCode{"TELEPORT"})
		assert.ErrorIs(t, err, catalog.ErrUnknownFeature)
	})
}

func TestSetPlanAddonAccess(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := catalog.NewService(db, util.NewNopLogger())
	ctx := testutil.TestContext(t)

	plan := testutil.CreateTestPlan(t, db, testutil.PlanOptions{})
	testutil.CreateTestAddon(t, db, models.AddonAdmin)

	access, err := svc.SetPlanAddonAccess(ctx, plan.ID, models.AddonAdmin, catalog.AddonAccessInput{IsEnabled: true, DefaultQuantity: 2})
	require.NoError(t, err)
	assert.True(t, access.IsEnabled)

	access, err = svc.SetPlanAddonAccess(ctx, plan.ID, models.AddonAdmin, catalog.AddonAccessInput{IsEnabled: false})
	require.NoError(t, err)
	assert.False(t, access.IsEnabled)

	var count int64
	require.NoError(t, db.Model(&models.PlanAddonAccess{}).Where("plan_id = ?", plan.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	_, err = svc.SetPlanAddonAccess(ctx, plan.ID, models.AddonMairies, catalog.AddonAccessInput{IsEnabled: true})
	assert.ErrorIs(t, err, catalog.ErrAddonNotFound)

	_, err = svc.SetPlanAddonAccess(ctx, plan.ID, models.AddonAdmin, catalog.AddonAccessInput{DefaultQuantity: -1})
	assert.ErrorIs(t, err, catalog.ErrInvalidQuantity)
}

func TestMigrateLegacyFlags(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := catalog.NewService(db, util.NewNopLogger())
	resolver := entitlement.NewResolver(db, nil, 0, util.NewNopLogger())
	ctx := testutil.TestContext(t)

	legacy := testutil.CreateTestPlan(t, db, testutil.PlanOptions{HasIdeas: true, HasMeetings: true})
	testutil.CreateTestPlan(t, db, testutil.PlanOptions{Features: []string{"INCIDENTS_CORE"}})
	testutil.CreateTestPlan(t, db, testutil.PlanOptions{})
	tenant := testutil.CreateTestTenant(t, db, testutil.TenantOptions{Plan: legacy})

	before, err := resolver.Resolve(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, entitlement.SourceLegacy, before.Source)

	migrated, err := svc.MigrateLegacyFlags(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, migrated)

	after, err := resolver.Resolve(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, entitlement.SourceCatalog, after.Source)
	assert.Equal(t, before.Features.Codes(), after.Features.Codes())

	again, err := svc.MigrateLegacyFlags(ctx)
	require.NoError(t, err)
	assert.Zero(t, again)
}
