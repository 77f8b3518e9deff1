package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/voxpopulous/internal/auth"
	"github.com/hugh/voxpopulous/internal/database"
	"github.com/hugh/voxpopulous/internal/database/models"
	"github.com/hugh/voxpopulous/internal/session"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestPassword is the password of every account built here.
const TestPassword = "testpassword123"

// SetupTestDB creates an in-memory SQLite database. A single connection
// keeps the database alive and serializes transactions.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

type PlanOptions struct {
	Code                 string
	HasIdeas             bool
	HasIncidents         bool
	HasMeetings          bool
	MaxAdmins            int
	AssociationsIncluded int
	CommunesIncluded     int
	Targets              []models.TenantType
	Features             []string
	Inactive             bool
}

// CreateTestPlan inserts a plan. MaxAdmins defaults to 1.
func CreateTestPlan(t *testing.T, db *gorm.DB, opts PlanOptions) *models.SubscriptionPlan {
	t.Helper()

	if opts.Code == "" {
		opts.Code = "PLAN_" + uuid.New().String()[:8]
	}
	if opts.MaxAdmins == 0 {
		opts.MaxAdmins = 1
	}

	plan := &models.SubscriptionPlan{
		Code:                 opts.Code,
		Name:                 opts.Code,
		MonthlyPrice:         decimal.NewFromInt(49),
		YearlyPrice:          decimal.NewFromInt(490),
		HasIdeas:             opts.HasIdeas,
		HasIncidents:         opts.HasIncidents,
		HasMeetings:          opts.HasMeetings,
		MaxAdmins:            opts.MaxAdmins,
		AssociationsIncluded: opts.AssociationsIncluded,
		CommunesIncluded:     opts.CommunesIncluded,
		TargetTenantTypes:    opts.Targets,
		IsActive:             true,
	}
	if err := db.Create(plan).Error; err != nil {
		t.Fatalf("failed to create test plan: %v", err)
	}
	// is_active has a database default, so false must be written explicitly.
	if opts.Inactive {
		if err := db.Model(plan).Update("is_active", false).Error; err != nil {
			t.Fatalf("failed to deactivate test plan: %v", err)
		}
		plan.IsActive = false
	}

	for _, code := range opts.Features {
		a := &models.PlanFeatureAssignment{PlanID: plan.ID, FeatureCode: code}
		if err := db.Create(a).Error; err != nil {
			t.Fatalf("failed to assign feature %s: %v", code, err)
		}
	}
	return plan
}

type TierSpec struct {
	Min     int
	Max     *int
	Monthly int64
}

func IntPtr(v int) *int { return &v }

// CreateTestAddon inserts an addon priced 10/month by default, with tiers.
func CreateTestAddon(t *testing.T, db *gorm.DB, code models.AddonCode, tiers ...TierSpec) *models.Addon {
	t.Helper()

	addon := &models.Addon{
		Code:                code,
		Name:                string(code),
		DefaultMonthlyPrice: decimal.NewFromInt(10),
		DefaultYearlyPrice:  decimal.NewFromInt(100),
	}
	if err := db.Create(addon).Error; err != nil {
		t.Fatalf("failed to create test addon: %v", err)
	}

	for _, spec := range tiers {
		tier := models.AddonTier{
			AddonID:      addon.ID,
			MinQuantity:  spec.Min,
			MaxQuantity:  spec.Max,
			MonthlyPrice: decimal.NewFromInt(spec.Monthly),
			YearlyPrice:  decimal.NewFromInt(spec.Monthly * 10),
		}
		if err := db.Create(&tier).Error; err != nil {
			t.Fatalf("failed to create addon tier: %v", err)
		}
		addon.Tiers = append(addon.Tiers, tier)
	}
	return addon
}

// SetAddonAccess configures the (plan, addon) pair.
func SetAddonAccess(t *testing.T, db *gorm.DB, plan *models.SubscriptionPlan, addon *models.Addon, enabled bool) *models.PlanAddonAccess {
	t.Helper()

	access := &models.PlanAddonAccess{
		PlanID:    plan.ID,
		AddonID:   addon.ID,
		IsEnabled: enabled,
	}
	if err := db.Create(access).Error; err != nil {
		t.Fatalf("failed to create plan addon access: %v", err)
	}
	return access
}

// PurchaseTestAddon records units bought by a tenant.
func PurchaseTestAddon(t *testing.T, db *gorm.DB, tenantID uuid.UUID, addon *models.Addon, quantity int) {
	t.Helper()

	row := &models.TenantAddon{TenantID: tenantID, AddonID: addon.ID, Quantity: quantity}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("failed to purchase test addon: %v", err)
	}
}

type TenantOptions struct {
	Type           models.TenantType
	Plan           *models.SubscriptionPlan
	ParentEpciID   *uuid.UUID
	ParentTenantID *uuid.UUID
	BillingStatus  models.BillingStatus
	Lifecycle      models.LifecycleStatus
	Reason         string
}

// CreateTestTenant inserts a tenant directly, without hierarchy validation.
func CreateTestTenant(t *testing.T, db *gorm.DB, opts TenantOptions) *models.Tenant {
	t.Helper()

	if opts.Type == "" {
		opts.Type = models.TenantTypeMairie
	}
	if opts.BillingStatus == "" {
		opts.BillingStatus = models.BillingStatusActive
	}
	if opts.Lifecycle == "" {
		opts.Lifecycle = models.LifecycleActive
	}

	suffix := uuid.New().String()[:8]
	tenant := &models.Tenant{
		Slug:            "tenant-" + suffix,
		Name:            "Tenant " + suffix,
		TenantType:      opts.Type,
		ParentEpciID:    opts.ParentEpciID,
		ParentTenantID:  opts.ParentTenantID,
		BillingStatus:   opts.BillingStatus,
		LifecycleStatus: opts.Lifecycle,
	}
	if opts.Plan != nil {
		tenant.PlanID = &opts.Plan.ID
	}
	if opts.Reason != "" {
		tenant.SuspendedReason = &opts.Reason
	}

	if err := db.Create(tenant).Error; err != nil {
		t.Fatalf("failed to create test tenant: %v", err)
	}
	return tenant
}

func hash(t *testing.T) string {
	t.Helper()
	h, err := auth.HashPassword(TestPassword)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	return h
}

// CreateTestAdmin creates an active admin of the tenant.
func CreateTestAdmin(t *testing.T, db *gorm.DB, tenant *models.Tenant) *models.AdminUser {
	t.Helper()

	user := &models.AdminUser{
		TenantID:     &tenant.ID,
		Email:        "admin-" + uuid.New().String()[:8] + "@example.fr",
		PasswordHash: hash(t),
		Name:         "Test Admin",
		Role:         models.RoleAdmin,
		IsActive:     true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test admin: %v", err)
	}
	user.Tenant = tenant
	return user
}

func CreateTestSuperAdmin(t *testing.T, db *gorm.DB) *models.AdminUser {
	t.Helper()

	user := &models.AdminUser{
		Email:        "root-" + uuid.New().String()[:8] + "@example.fr",
		PasswordHash: hash(t),
		Name:         "Super Admin",
		Role:         models.RoleSuperAdmin,
		IsActive:     true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create super admin: %v", err)
	}
	return user
}

// CreateTestElectedOfficial creates an elected official with the given menu scope.
func CreateTestElectedOfficial(t *testing.T, db *gorm.DB, tenant *models.Tenant, fullAccess bool, menus ...session.MenuCode) *models.ElectedOfficial {
	t.Helper()

	perms := make([]string, 0, len(menus))
	for _, m := range menus {
		perms = append(perms, string(m))
	}
	official := &models.ElectedOfficial{
		TenantID:        tenant.ID,
		Email:           "elu-" + uuid.New().String()[:8] + "@example.fr",
		PasswordHash:    hash(t),
		Name:            "Test Elu",
		Position:        "Adjoint",
		HasFullAccess:   fullAccess,
		MenuPermissions: perms,
		IsActive:        true,
	}
	if err := db.Create(official).Error; err != nil {
		t.Fatalf("failed to create elected official: %v", err)
	}
	return official
}

// CreateTestJWTService creates a JWT service for testing
func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing", 24*time.Hour)
}

// TokenFor signs a token for the principal.
func TokenFor(t *testing.T, jwtService *auth.JWTService, subjectID uuid.UUID, tenantID *uuid.UUID, kind session.Kind) string {
	t.Helper()

	token, err := jwtService.GenerateToken(subjectID, tenantID, kind, "test@example.fr")
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// AssertStatus checks if the response has the expected status code
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}
