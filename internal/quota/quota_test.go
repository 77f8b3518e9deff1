package quota_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/hugh/voxpopulous/internal/database/models"
	"github.com/hugh/voxpopulous/internal/quota"
	"github.com/hugh/voxpopulous/internal/testutil"
	"github.com/hugh/voxpopulous/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func createAdmin(tenantID uuid.UUID) func(tx *gorm.DB) error {
	return func(tx *gorm.DB) error {
		return tx.Create(&models.AdminUser{
			TenantID:     &tenantID,
			Email:        "a-" + uuid.New().String()[:8] + "@example.fr",
			PasswordHash: "x",
			Role:         models.RoleAdmin,
			IsActive:     true,
		}).Error
	}
}

func TestCheck_Admins(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := quota.NewService(db, util.NewNopLogger())
	ctx := testutil.TestContext(t)

	plan := testutil.CreateTestPlan(t, db, testutil.PlanOptions{MaxAdmins: 2})
	addon := testutil.CreateTestAddon(t, db, models.AddonAdmin)
	testutil.SetAddonAccess(t, db, plan, addon, true)
	tenant := testutil.CreateTestTenant(t, db, testutil.TenantOptions{Plan: plan})
	testutil.PurchaseTestAddon(t, db, tenant.ID, addon, 1)

	testutil.CreateTestAdmin(t, db, tenant)
	testutil.CreateTestAdmin(t, db, tenant)
	deleted := testutil.CreateTestAdmin(t, db, tenant)
	require.NoError(t, db.Delete(deleted).Error)

	q, err := svc.Check(ctx, tenant, quota.ResourceAdmins)
	require.NoError(t, err)
	assert.Equal(t, 2, q.PlanIncluded)
	assert.Equal(t, 1, q.Purchased)
	assert.Equal(t, 3, q.Allowed)
	assert.Equal(t, 2, q.Used)
	assert.Equal(t, 1, q.Remaining)
}

func TestCheck_PurchasedIgnoredWhenAddonDisabled(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := quota.NewService(db, util.NewNopLogger())
	ctx := testutil.TestContext(t)

	plan := testutil.CreateTestPlan(t, db, testutil.PlanOptions{MaxAdmins: 1})
	addon := testutil.CreateTestAddon(t, db, models.AddonAdmin)
	testutil.SetAddonAccess(t, db, plan, addon, false)
	tenant := testutil.CreateTestTenant(t, db, testutil.TenantOptions{Plan: plan})
	testutil.PurchaseTestAddon(t, db, tenant.ID, addon, 4)

	q, err := svc.Check(ctx, tenant, quota.ResourceAdmins)
	require.NoError(t, err)
	assert.Equal(t, 1, q.Allowed)
}

func TestCheck_RemainingNeverNegative(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := quota.NewService(db, util.NewNopLogger())
	ctx := testutil.TestContext(t)

	plan := testutil.CreateTestPlan(t, db, testutil.PlanOptions{MaxAdmins: 1})
	tenant := testutil.CreateTestTenant(t, db, testutil.TenantOptions{Plan: plan})
	testutil.CreateTestAdmin(t, db, tenant)
	testutil.CreateTestAdmin(t, db, tenant)

	q, err := svc.Check(ctx, tenant, quota.ResourceAdmins)
	require.NoError(t, err)
	assert.Equal(t, 2, q.Used)
	assert.Equal(t, 0, q.Remaining)
}

func TestCheck_Communes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := quota.NewService(db, util.NewNopLogger())
	ctx := testutil.TestContext(t)

	plan := testutil.CreateTestPlan(t, db, testutil.PlanOptions{CommunesIncluded: 10})
	mairies := testutil.CreateTestAddon(t, db, models.AddonMairies)
	testutil.SetAddonAccess(t, db, plan, mairies, true)

	epci := testutil.CreateTestTenant(t, db, testutil.TenantOptions{Type: models.TenantTypeEPCI, Plan: plan})
	testutil.PurchaseTestAddon(t, db, epci.ID, mairies, 5)
	testutil.CreateTestTenant(t, db, testutil.TenantOptions{ParentEpciID: &epci.ID})

	q, err := svc.Check(ctx, epci, quota.ResourceCommunes)
	require.NoError(t, err)
	assert.Equal(t, 15, q.Allowed)
	assert.Equal(t, 1, q.Used)

	t.Run("zero for non-epci", func(t *testing.T) {
		m := testutil.CreateTestTenant(t, db, testutil.TenantOptions{Plan: plan})
		q, err := svc.Check(ctx, m, quota.ResourceCommunes)
		require.NoError(t, err)
		assert.Equal(t, 0, q.Allowed)
	})
}

func TestCheck_Associations(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := quota.NewService(db, util.NewNopLogger())
	ctx := testutil.TestContext(t)

	plan := testutil.CreateTestPlan(t, db, testutil.PlanOptions{AssociationsIncluded: 2})
	m := testutil.CreateTestTenant(t, db, testutil.TenantOptions{Plan: plan})
	testutil.CreateTestTenant(t, db, testutil.TenantOptions{Type: models.TenantTypeAssociation, ParentTenantID: &m.ID})

	q, err := svc.Check(ctx, m, quota.ResourceAssociations)
	require.NoError(t, err)
	assert.Equal(t, 2, q.Allowed)
	assert.Equal(t, 1, q.Used)
	assert.Equal(t, 1, q.Remaining)

	_, err = svc.Check(ctx, m, quota.Resource("photos"))
	assert.ErrorIs(t, err, quota.ErrUnknownResource)
}

func TestCheck_AssociationUnderCommuneUsesEPCIPlan(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := quota.NewService(db, util.NewNopLogger())
	ctx := testutil.TestContext(t)

	plan := testutil.CreateTestPlan(t, db, testutil.PlanOptions{MaxAdmins: 3})
	epci := testutil.CreateTestTenant(t, db, testutil.TenantOptions{Type: models.TenantTypeEPCI, Plan: plan})
	commune := testutil.CreateTestTenant(t, db, testutil.TenantOptions{ParentEpciID: &epci.ID})
	asso := testutil.CreateTestTenant(t, db, testutil.TenantOptions{
		Type:           models.TenantTypeAssociation,
		ParentTenantID: &commune.ID,
	})

	q, err := svc.Check(ctx, asso, quota.ResourceAdmins)
	require.NoError(t, err)
	assert.Equal(t, 3, q.Allowed)
	assert.Equal(t, 3, q.Remaining)
}

func TestEnforce_RejectsAtLimit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := quota.NewService(db, util.NewNopLogger())
	ctx := testutil.TestContext(t)

	plan := testutil.CreateTestPlan(t, db, testutil.PlanOptions{MaxAdmins: 1})
	tenant := testutil.CreateTestTenant(t, db, testutil.TenantOptions{Plan: plan})

	q, err := svc.Enforce(ctx, tenant, quota.ResourceAdmins, createAdmin(tenant.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, q.Used)
	assert.Equal(t, 0, q.Remaining)

	_, err = svc.Enforce(ctx, tenant, quota.ResourceAdmins, createAdmin(tenant.ID))
	require.Error(t, err)
	assert.ErrorIs(t, err, quota.ErrQuotaExceeded)
	assert.NotErrorIs(t, err, quota.ErrQuotaRace)

	var exceeded *quota.ExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, 1, exceeded.Used)
	assert.Equal(t, 1, exceeded.Allowed)
	assert.Equal(t, "admins quota reached: 1/1 used", exceeded.Error())
}

func TestReserve_RollsBackOnCreateError(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := quota.NewService(db, util.NewNopLogger())
	ctx := testutil.TestContext(t)

	plan := testutil.CreateTestPlan(t, db, testutil.PlanOptions{MaxAdmins: 3})
	tenant := testutil.CreateTestTenant(t, db, testutil.TenantOptions{Plan: plan})

	boom := errors.New("boom")
	_, err := svc.Reserve(ctx, tenant, quota.ResourceAdmins, func(tx *gorm.DB) error {
		if err := createAdmin(tenant.ID)(tx); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	q, err := svc.Check(ctx, tenant, quota.ResourceAdmins)
	require.NoError(t, err)
	assert.Equal(t, 0, q.Used)
}

func TestEnforce_ConcurrentCreationsNeverOvershoot(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := quota.NewService(db, util.NewNopLogger())
	ctx := testutil.TestContext(t)

	const limit = 3
	const attempts = 10

	plan := testutil.CreateTestPlan(t, db, testutil.PlanOptions{MaxAdmins: limit})
	tenant := testutil.CreateTestTenant(t, db, testutil.TenantOptions{Plan: plan})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
		other     []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Enforce(ctx, tenant, quota.ResourceAdmins, createAdmin(tenant.ID))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, quota.ErrQuotaExceeded):
				rejected++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, limit, succeeded)
	assert.Equal(t, attempts-limit, rejected)

	var count int64
	require.NoError(t, db.Model(&models.AdminUser{}).Where("tenant_id = ?", tenant.ID).Count(&count).Error)
	assert.Equal(t, int64(limit), count)
}

func TestExceededError_Is(t *testing.T) {
	race := &quota.ExceededError{Resource: quota.ResourceCommunes, Used: 4, Allowed: 4, Race: true}
	assert.ErrorIs(t, race, quota.ErrQuotaExceeded)
	assert.ErrorIs(t, race, quota.ErrQuotaRace)

	plain := &quota.ExceededError{Resource: quota.ResourceCommunes}
	assert.NotErrorIs(t, plain, quota.ErrQuotaRace)
}
