package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/voxpopulous/internal/api/dto"
	"github.com/hugh/voxpopulous/internal/api/handlers"
	"github.com/hugh/voxpopulous/internal/api/middleware"
	"github.com/hugh/voxpopulous/internal/auth"
	"github.com/hugh/voxpopulous/internal/catalog"
	"github.com/hugh/voxpopulous/internal/database/models"
	"github.com/hugh/voxpopulous/internal/session"
	"github.com/hugh/voxpopulous/internal/tenant"
	"github.com/hugh/voxpopulous/internal/testutil"
	"github.com/hugh/voxpopulous/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupAuthTestRouter(t *testing.T) (*chi.Mux, *gorm.DB) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	logger := util.NewNopLogger()
	tenants := tenant.NewStore(db, logger)
	authService := auth.NewService(db, testutil.CreateTestJWTService(), tenants, catalog.NewService(db, logger), 30*24*time.Hour, logger)
	handler := handlers.NewAuthHandler(authService, 12*time.Hour, false, logger)

	r := chi.NewRouter()
	r.Post("/api/signup", handler.Signup)
	r.Post("/api/auth/superadmin/login", handler.SuperAdminLogin)
	r.Post("/api/auth/logout", handler.Logout)
	r.Post("/api/tenants/{slug}/auth/login", handler.TenantAdminLogin)
	r.Post("/api/tenants/{slug}/auth/association/login", handler.AssociationLogin)
	r.Post("/api/tenants/{slug}/auth/elus/login", handler.ElectedOfficialLogin)

	return r, db
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func sessionCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == middleware.TokenCookie {
			return c
		}
	}
	return nil
}

func TestAuthHandler_Signup(t *testing.T) {
	router, db := setupAuthTestRouter(t)
	testutil.CreateTestPlan(t, db, testutil.PlanOptions{Code: "ESSENTIEL"})

	signup := func(slug, email string) dto.SignupRequest {
		return dto.SignupRequest{
			TenantName: "Mairie de Lunel",
			Slug:       slug,
			TenantType: string(models.TenantTypeMairie),
			PlanCode:   "ESSENTIEL",
			AdminName:  "Claire Martin",
			Email:      email,
			Password:   "securepassword123",
		}
	}

	t.Run("successful signup", func(t *testing.T) {
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/signup", signup("lunel", "claire@lunel.fr")))
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		var resp struct {
			Token  string        `json:"token"`
			Kind   session.Kind  `json:"kind"`
			Email  string        `json:"email"`
			Tenant dto.TenantDTO `json:"tenant"`
		}
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, session.KindTenantAdmin, resp.Kind)
		assert.Equal(t, "claire@lunel.fr", resp.Email)
		assert.Equal(t, "lunel", resp.Tenant.Slug)
		assert.Equal(t, models.BillingStatusTrial, resp.Tenant.BillingStatus)
		require.NotNil(t, resp.Tenant.TrialEndsAt)

		cookie := sessionCookie(rr)
		require.NotNil(t, cookie)
		assert.Equal(t, resp.Token, cookie.Value)
		assert.True(t, cookie.HttpOnly)
	})

	t.Run("duplicate email", func(t *testing.T) {
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/signup", signup("lunel-viel", "claire@lunel.fr")))
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("duplicate slug", func(t *testing.T) {
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/signup", signup("lunel", "autre@lunel.fr")))
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("unknown plan", func(t *testing.T) {
		req := signup("marsillargues", "m@marsillargues.fr")
		req.PlanCode = "NOPE"
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/signup", req))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("invalid slug", func(t *testing.T) {
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/signup", signup("Not A Slug", "x@example.fr")))
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, dto.CodeValidationFailed, resp.Code)
		assert.Contains(t, resp.Details, "slug")
	})

	t.Run("password too short", func(t *testing.T) {
		req := signup("saturargues", "s@saturargues.fr")
		req.Password = "short"
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/signup", req))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/signup", http.NoBody)
		req.Header.Set("Content-Type", "application/json")
		rr := serve(router, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestAuthHandler_TenantAdminLogin(t *testing.T) {
	router, db := setupAuthTestRouter(t)
	m := testutil.CreateTestTenant(t, db, testutil.TenantOptions{})
	admin := testutil.CreateTestAdmin(t, db, m)
	path := "/api/tenants/" + m.Slug + "/auth/login"

	t.Run("successful login", func(t *testing.T) {
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", path, dto.LoginRequest{
			Email:    admin.Email,
			Password: testutil.TestPassword,
		}))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var resp auth.AuthResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, session.KindTenantAdmin, resp.Kind)
		require.NotNil(t, resp.TenantID)
		assert.Equal(t, m.ID, *resp.TenantID)
		assert.NotNil(t, sessionCookie(rr))
	})

	t.Run("wrong password", func(t *testing.T) {
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", path, dto.LoginRequest{
			Email:    admin.Email,
			Password: "wrongpassword",
		}))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("other tenant slug", func(t *testing.T) {
		other := testutil.CreateTestTenant(t, db, testutil.TenantOptions{})
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/tenants/"+other.Slug+"/auth/login", dto.LoginRequest{
			Email:    admin.Email,
			Password: testutil.TestPassword,
		}))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("unknown slug looks like bad credentials", func(t *testing.T) {
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/tenants/nowhere/auth/login", dto.LoginRequest{
			Email:    admin.Email,
			Password: testutil.TestPassword,
		}))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("association endpoint rejects territory admin", func(t *testing.T) {
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/tenants/"+m.Slug+"/auth/association/login", dto.LoginRequest{
			Email:    admin.Email,
			Password: testutil.TestPassword,
		}))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestAuthHandler_AssociationLogin(t *testing.T) {
	router, db := setupAuthTestRouter(t)
	m := testutil.CreateTestTenant(t, db, testutil.TenantOptions{})
	asso := testutil.CreateTestTenant(t, db, testutil.TenantOptions{Type: models.TenantTypeAssociation, ParentTenantID: &m.ID})
	admin := testutil.CreateTestAdmin(t, db, asso)

	rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/tenants/"+asso.Slug+"/auth/association/login", dto.LoginRequest{
		Email:    admin.Email,
		Password: testutil.TestPassword,
	}))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp auth.AuthResponse
	testutil.ParseJSONResponse(t, rr, &resp)
	assert.Equal(t, session.KindAssociationAdmin, resp.Kind)
}

func TestAuthHandler_ElectedOfficialLogin(t *testing.T) {
	router, db := setupAuthTestRouter(t)
	m := testutil.CreateTestTenant(t, db, testutil.TenantOptions{})
	elu := testutil.CreateTestElectedOfficial(t, db, m, false, session.MenuIdeas)

	t.Run("active", func(t *testing.T) {
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/tenants/"+m.Slug+"/auth/elus/login", dto.LoginRequest{
			Email:    elu.Email,
			Password: testutil.TestPassword,
		}))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var resp auth.AuthResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, session.KindElectedOfficial, resp.Kind)
		assert.Equal(t, elu.ID, resp.SubjectID)
	})

	t.Run("deactivated", func(t *testing.T) {
		require.NoError(t, db.Model(elu).Update("is_active", false).Error)
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/tenants/"+m.Slug+"/auth/elus/login", dto.LoginRequest{
			Email:    elu.Email,
			Password: testutil.TestPassword,
		}))
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestAuthHandler_SuperAdminLogin(t *testing.T) {
	router, db := setupAuthTestRouter(t)
	root := testutil.CreateTestSuperAdmin(t, db)
	m := testutil.CreateTestTenant(t, db, testutil.TenantOptions{})
	admin := testutil.CreateTestAdmin(t, db, m)

	rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/auth/superadmin/login", dto.LoginRequest{
		Email:    root.Email,
		Password: testutil.TestPassword,
	}))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp auth.AuthResponse
	testutil.ParseJSONResponse(t, rr, &resp)
	assert.Equal(t, session.KindSuperAdmin, resp.Kind)
	assert.Nil(t, resp.TenantID)

	rr = serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/auth/superadmin/login", dto.LoginRequest{
		Email:    admin.Email,
		Password: testutil.TestPassword,
	}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthHandler_Logout(t *testing.T) {
	router, _ := setupAuthTestRouter(t)

	rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/auth/logout", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	cookie := sessionCookie(rr)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Less(t, cookie.MaxAge, 0)
}
