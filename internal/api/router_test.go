package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hugh/voxpopulous/internal/api/dto"
	"github.com/hugh/voxpopulous/internal/api/middleware"
	"github.com/hugh/voxpopulous/internal/auth"
	"github.com/hugh/voxpopulous/internal/billing"
	"github.com/hugh/voxpopulous/internal/catalog"
	"github.com/hugh/voxpopulous/internal/database/models"
	"github.com/hugh/voxpopulous/internal/entitlement"
	"github.com/hugh/voxpopulous/internal/quota"
	"github.com/hugh/voxpopulous/internal/session"
	"github.com/hugh/voxpopulous/internal/tenant"
	"github.com/hugh/voxpopulous/internal/testutil"
	"github.com/hugh/voxpopulous/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testServer struct {
	db     *gorm.DB
	jwt    *auth.JWTService
	router *Router
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db := testutil.SetupTestDB(t)
	logger := util.NewNopLogger()
	jwtService := testutil.CreateTestJWTService()
	tenants := tenant.NewStore(db, logger)
	cat := catalog.NewService(db, logger)
	resolver := entitlement.NewResolver(db, nil, 0, logger)
	quotas := quota.NewService(db, logger)
	gate := billing.NewGate(tenants, "Compte suspendu", "/admin/billing")
	billingService := billing.NewService(billing.Deps{
		DB:       db,
		Tenants:  tenants,
		Catalog:  cat,
		Resolver: resolver,
		Quotas:   quotas,
		Gate:     gate,
		Logger:   logger,
	})

	router := NewRouter(RouterConfig{
		DB:           db,
		Logger:       logger,
		JWTService:   jwtService,
		AuthService:  auth.NewService(db, jwtService, tenants, cat, 0, logger),
		Sessions:     session.NewResolver(db, logger),
		Tenants:      tenants,
		Catalog:      cat,
		Entitlements: resolver,
		Quotas:       quotas,
		Billing:      billingService,
		Gate:         gate,
		LoginLimiter: middleware.NewMemoryLimiter(100, 60),
		CSRFSecret:   "test-csrf-secret",
	})

	return &testServer{db: db, jwt: jwtService, router: router}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.AuthenticatedRequest(t, method, path, body, token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) adminToken(t *testing.T, tn *models.Tenant) string {
	t.Helper()
	admin := testutil.CreateTestAdmin(t, s.db, tn)
	kind := session.KindTenantAdmin
	if tn.TenantType == models.TenantTypeAssociation {
		kind = session.KindAssociationAdmin
	}
	return testutil.TokenFor(t, s.jwt, admin.ID, &tn.ID, kind)
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var resp dto.ErrorResponse
	testutil.ParseJSONResponse(t, rec, &resp)
	return resp
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", nil, "")
	testutil.AssertStatus(t, rec, http.StatusOK)
}

func TestRouter_PublicFeatures(t *testing.T) {
	s := newTestServer(t)
	plan := testutil.CreateTestPlan(t, s.db, testutil.PlanOptions{
		Features: []string{string(entitlement.FeatureIdeaBox), string(entitlement.FeatureEvents)},
	})
	m := testutil.CreateTestTenant(t, s.db, testutil.TenantOptions{Plan: plan})

	rec := s.do(t, http.MethodGet, "/api/tenants/"+m.Slug+"/features", nil, "")
	testutil.AssertStatus(t, rec, http.StatusOK)

	var resp dto.FeaturesResponse
	testutil.ParseJSONResponse(t, rec, &resp)
	assert.True(t, resp.HasIdeas)
	assert.False(t, resp.HasIncidents)
	assert.True(t, resp.HasEvents)
	assert.ElementsMatch(t, []entitlement.FeatureCode{entitlement.FeatureIdeaBox, entitlement.FeatureEvents}, resp.Features)
}

func TestRouter_UnknownSlug(t *testing.T) {
	s := newTestServer(t)
	m := testutil.CreateTestTenant(t, s.db, testutil.TenantOptions{})
	token := s.adminToken(t, m)

	rec := s.do(t, http.MethodGet, "/api/tenants/nowhere/features", nil, "")
	testutil.AssertStatus(t, rec, http.StatusNotFound)

	rec = s.do(t, http.MethodGet, "/api/tenants/nowhere/admin/me", nil, token)
	testutil.AssertStatus(t, rec, http.StatusNotFound)
}

func TestRouter_OtherTenantForbidden(t *testing.T) {
	s := newTestServer(t)
	home := testutil.CreateTestTenant(t, s.db, testutil.TenantOptions{})
	other := testutil.CreateTestTenant(t, s.db, testutil.TenantOptions{})
	token := s.adminToken(t, home)

	rec := s.do(t, http.MethodGet, "/api/tenants/"+other.Slug+"/admin/me", nil, token)
	testutil.AssertStatus(t, rec, http.StatusForbidden)
}

func TestRouter_Me(t *testing.T) {
	s := newTestServer(t)
	plan := testutil.CreateTestPlan(t, s.db, testutil.PlanOptions{Code: "ESSENTIEL", HasIdeas: true})
	m := testutil.CreateTestTenant(t, s.db, testutil.TenantOptions{Plan: plan})
	token := s.adminToken(t, m)

	rec := s.do(t, http.MethodGet, "/api/tenants/"+m.Slug+"/admin/me", nil, token)
	testutil.AssertStatus(t, rec, http.StatusOK)

	var resp dto.MeResponse
	testutil.ParseJSONResponse(t, rec, &resp)
	assert.Equal(t, session.KindTenantAdmin, resp.Principal.Kind)
	assert.Equal(t, m.ID, resp.Tenant.ID)
	assert.False(t, resp.AccountBlocked)
	assert.Equal(t, "ESSENTIEL", resp.PlanCode)
	assert.Contains(t, resp.Features, entitlement.FeatureIdeaBox)
}

func TestRouter_RestrictedEluCannotSeeBilling(t *testing.T) {
	s := newTestServer(t)
	m := testutil.CreateTestTenant(t, s.db, testutil.TenantOptions{})
	elu := testutil.CreateTestElectedOfficial(t, s.db, m, false, session.MenuIdeas)
	token := testutil.TokenFor(t, s.jwt, elu.ID, &m.ID, session.KindElectedOfficial)

	rec := s.do(t, http.MethodGet, "/api/tenants/"+m.Slug+"/admin/billing", nil, token)
	testutil.AssertStatus(t, rec, http.StatusForbidden)

	resp := errorCode(t, rec)
	assert.Equal(t, dto.CodePermissionDenied, resp.Code)
}

func TestRouter_ChildBillingManagedByParent(t *testing.T) {
	s := newTestServer(t)
	plan := testutil.CreateTestPlan(t, s.db, testutil.PlanOptions{})
	m := testutil.CreateTestTenant(t, s.db, testutil.TenantOptions{Plan: plan})
	asso := testutil.CreateTestTenant(t, s.db, testutil.TenantOptions{
		Type:           models.TenantTypeAssociation,
		ParentTenantID: &m.ID,
	})
	token := s.adminToken(t, asso)

	rec := s.do(t, http.MethodGet, "/api/tenants/"+asso.Slug+"/admin/billing", nil, token)
	testutil.AssertStatus(t, rec, http.StatusForbidden)
	assert.Equal(t, dto.CodeBillingManagedByParent, errorCode(t, rec).Code)
}

func TestRouter_AssociationQuota(t *testing.T) {
	s := newTestServer(t)
	plan := testutil.CreateTestPlan(t, s.db, testutil.PlanOptions{AssociationsIncluded: 1})
	m := testutil.CreateTestTenant(t, s.db, testutil.TenantOptions{Plan: plan})
	token := s.adminToken(t, m)
	path := "/api/tenants/" + m.Slug + "/admin/associations"

	rec := s.do(t, http.MethodPost, path, dto.CreateChildRequest{Name: "Club de foot", Slug: "club-foot"}, token)
	testutil.AssertStatus(t, rec, http.StatusCreated)

	rec = s.do(t, http.MethodPost, path, dto.CreateChildRequest{Name: "Chorale", Slug: "chorale"}, token)
	testutil.AssertStatus(t, rec, http.StatusForbidden)
	resp := errorCode(t, rec)
	assert.Equal(t, dto.CodeQuotaExceeded, resp.Code)
	assert.Equal(t, "1", resp.Details["allowed"])

	var count int64
	require.NoError(t, s.db.Model(&models.Tenant{}).Where("parent_tenant_id = ?", m.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	rec = s.do(t, http.MethodGet, path, nil, token)
	testutil.AssertStatus(t, rec, http.StatusOK)
	var list struct {
		Data  []dto.TenantDTO `json:"data"`
		Quota quota.Quota     `json:"quota"`
	}
	testutil.ParseJSONResponse(t, rec, &list)
	assert.Len(t, list.Data, 1)
	assert.Equal(t, 0, list.Quota.Remaining)
}

func TestRouter_BillingBlockedIsReadOnly(t *testing.T) {
	s := newTestServer(t)
	plan := testutil.CreateTestPlan(t, s.db, testutil.PlanOptions{AssociationsIncluded: 5})
	m := testutil.CreateTestTenant(t, s.db, testutil.TenantOptions{
		Plan:          plan,
		BillingStatus: models.BillingStatusSuspended,
	})
	token := s.adminToken(t, m)
	base := "/api/tenants/" + m.Slug + "/admin"

	rec := s.do(t, http.MethodPost, base+"/associations", dto.CreateChildRequest{Name: "Club", Slug: "club"}, token)
	testutil.AssertStatus(t, rec, http.StatusForbidden)
	resp := errorCode(t, rec)
	assert.Equal(t, dto.CodeBillingBlocked, resp.Code)
	assert.Equal(t, "/"+m.Slug+"/admin/billing", resp.Details["resolve_url"])

	rec = s.do(t, http.MethodGet, base+"/associations", nil, token)
	testutil.AssertStatus(t, rec, http.StatusOK)

	rec = s.do(t, http.MethodGet, base+"/billing", nil, token)
	testutil.AssertStatus(t, rec, http.StatusOK)
}

func TestRouter_NavigationCheck(t *testing.T) {
	s := newTestServer(t)
	m := testutil.CreateTestTenant(t, s.db, testutil.TenantOptions{})
	token := s.adminToken(t, m)

	rec := s.do(t, http.MethodGet, "/api/tenants/"+m.Slug+"/admin/navigation/check?path=/admin/ideas", nil, token)
	testutil.AssertStatus(t, rec, http.StatusOK)
	assert.Contains(t, rec.Body.String(), "upgrade_required")
}

func TestRouter_SuperAdminOnly(t *testing.T) {
	s := newTestServer(t)
	m := testutil.CreateTestTenant(t, s.db, testutil.TenantOptions{})
	token := s.adminToken(t, m)

	rec := s.do(t, http.MethodGet, "/api/superadmin/tenants", nil, token)
	testutil.AssertStatus(t, rec, http.StatusForbidden)

	root := testutil.CreateTestSuperAdmin(t, s.db)
	rootToken := testutil.TokenFor(t, s.jwt, root.ID, nil, session.KindSuperAdmin)

	rec = s.do(t, http.MethodPost, "/api/superadmin/tenants", dto.CreateTenantRequest{
		Name:       "Pays de Lunel",
		Slug:       "pays-de-lunel",
		TenantType: string(models.TenantTypeEPCI),
	}, rootToken)
	testutil.AssertStatus(t, rec, http.StatusCreated)

	var created dto.TenantDTO
	testutil.ParseJSONResponse(t, rec, &created)
	assert.Equal(t, models.TenantTypeEPCI, created.TenantType)
	assert.Equal(t, models.BillingStatusTrial, created.BillingStatus)

	rec = s.do(t, http.MethodGet, "/api/superadmin/tenants?type=EPCI", nil, rootToken)
	testutil.AssertStatus(t, rec, http.StatusOK)
	assert.Contains(t, rec.Body.String(), "pays-de-lunel")
}

func TestRouter_NoToken(t *testing.T) {
	s := newTestServer(t)
	m := testutil.CreateTestTenant(t, s.db, testutil.TenantOptions{})

	rec := s.do(t, http.MethodGet, "/api/tenants/"+m.Slug+"/admin/me", nil, "")
	testutil.AssertStatus(t, rec, http.StatusUnauthorized)
}

func TestRouter_EluCannotManageAccounts(t *testing.T) {
	s := newTestServer(t)
	m := testutil.CreateTestTenant(t, s.db, testutil.TenantOptions{})
	elu := testutil.CreateTestElectedOfficial(t, s.db, m, false, session.MenuElus, session.MenuAdmins)
	token := testutil.TokenFor(t, s.jwt, elu.ID, &m.ID, session.KindElectedOfficial)
	base := "/api/tenants/" + m.Slug + "/admin"

	rec := s.do(t, http.MethodGet, base+"/elus", nil, token)
	testutil.AssertStatus(t, rec, http.StatusOK)

	rec = s.do(t, http.MethodPut, base+"/elus/"+elu.ID.String()+"/permissions",
		dto.UpdatePermissionsRequest{HasFullAccess: true}, token)
	testutil.AssertStatus(t, rec, http.StatusForbidden)
	assert.Equal(t, dto.CodePermissionDenied, errorCode(t, rec).Code)

	rec = s.do(t, http.MethodPost, base+"/elus", dto.CreateElectedOfficialRequest{
		Name:          "Complice",
		Email:         "complice@example.fr",
		Password:      testutil.TestPassword,
		HasFullAccess: true,
	}, token)
	testutil.AssertStatus(t, rec, http.StatusForbidden)

	rec = s.do(t, http.MethodPost, base+"/admins", dto.CreateAdminRequest{
		Name:     "Complice",
		Email:    "complice@example.fr",
		Password: testutil.TestPassword,
	}, token)
	testutil.AssertStatus(t, rec, http.StatusForbidden)

	var stored models.ElectedOfficial
	require.NoError(t, s.db.First(&stored, "id = ?", elu.ID).Error)
	assert.False(t, stored.HasFullAccess)

	rec = s.do(t, http.MethodGet, base+"/billing", nil, token)
	testutil.AssertStatus(t, rec, http.StatusForbidden)

	adminToken := s.adminToken(t, m)
	rec = s.do(t, http.MethodPut, base+"/elus/"+elu.ID.String()+"/permissions",
		dto.UpdatePermissionsRequest{MenuPermissions: []string{"IDEAS"}}, adminToken)
	testutil.AssertStatus(t, rec, http.StatusOK)
}

func TestRouter_BillingWritesFollowBlockKind(t *testing.T) {
	s := newTestServer(t)
	plan := testutil.CreateTestPlan(t, s.db, testutil.PlanOptions{})
	addon := testutil.CreateTestAddon(t, s.db, models.AddonAdmin)
	testutil.SetAddonAccess(t, s.db, plan, addon, true)
	purchase := dto.PurchaseAddonRequest{Addon: "ADMIN", Quantity: 5}

	t.Run("lifecycle suspension rejects purchases", func(t *testing.T) {
		m := testutil.CreateTestTenant(t, s.db, testutil.TenantOptions{
			Plan:      plan,
			Lifecycle: models.LifecycleSuspended,
		})
		token := s.adminToken(t, m)

		rec := s.do(t, http.MethodPost, "/api/tenants/"+m.Slug+"/admin/billing/addons", purchase, token)
		testutil.AssertStatus(t, rec, http.StatusForbidden)
		assert.Equal(t, dto.CodeTenantSuspended, errorCode(t, rec).Code)

		var count int64
		require.NoError(t, s.db.Model(&models.TenantAddon{}).Where("tenant_id = ?", m.ID).Count(&count).Error)
		assert.Zero(t, count)

		rec = s.do(t, http.MethodGet, "/api/tenants/"+m.Slug+"/admin/billing", nil, token)
		testutil.AssertStatus(t, rec, http.StatusOK)
	})

	t.Run("billing block allows purchases", func(t *testing.T) {
		m := testutil.CreateTestTenant(t, s.db, testutil.TenantOptions{
			Plan:          plan,
			BillingStatus: models.BillingStatusSuspended,
		})
		token := s.adminToken(t, m)

		rec := s.do(t, http.MethodPost, "/api/tenants/"+m.Slug+"/admin/billing/addons", purchase, token)
		testutil.AssertStatus(t, rec, http.StatusCreated)
	})
}

func TestRouter_AdminQuotaRaceAndExceeded(t *testing.T) {
	s := newTestServer(t)
	plan := testutil.CreateTestPlan(t, s.db, testutil.PlanOptions{MaxAdmins: 2})
	m := testutil.CreateTestTenant(t, s.db, testutil.TenantOptions{Plan: plan})
	token := s.adminToken(t, m)
	path := "/api/tenants/" + m.Slug + "/admin/admins"

	// A concurrent creation lands between the advisory read and the locked
	// recount. It is inserted inside the reserving transaction, so the
	// rollback discards it along with the rejected create.
	competed := false
	err := s.db.Callback().Query().Before("gorm:query").Register("test:competing_admin", func(db *gorm.DB) {
		if competed || db.Statement.Table != "tenants" {
			return
		}
		if _, locking := db.Statement.Clauses["FOR"]; !locking {
			return
		}
		competed = true
		testutil.CreateTestAdmin(t, db.Session(&gorm.Session{NewDB: true}), m)
	})
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, path, dto.CreateAdminRequest{Name: "Paul", Email: "paul@lunel.fr", Password: testutil.TestPassword}, token)
	testutil.AssertStatus(t, rec, http.StatusConflict)
	resp := errorCode(t, rec)
	assert.Equal(t, dto.CodeQuotaRaceLost, resp.Code)
	assert.Equal(t, "2", resp.Details["allowed"])
	assert.True(t, competed)

	var count int64
	require.NoError(t, s.db.Model(&models.AdminUser{}).Where("email = ?", "paul@lunel.fr").Count(&count).Error)
	assert.Zero(t, count)

	require.NoError(t, s.db.Model(&models.AdminUser{}).Where("tenant_id = ?", m.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	testutil.CreateTestAdmin(t, s.db, m)
	rec = s.do(t, http.MethodPost, path, dto.CreateAdminRequest{Name: "Paul", Email: "paul@lunel.fr", Password: testutil.TestPassword}, token)
	testutil.AssertStatus(t, rec, http.StatusForbidden)
	resp = errorCode(t, rec)
	assert.Equal(t, dto.CodeQuotaExceeded, resp.Code)
	assert.Equal(t, "2", resp.Details["used"])
}
