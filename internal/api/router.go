package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hugh/voxpopulous/internal/api/dto"
	"github.com/hugh/voxpopulous/internal/api/handlers"
	"github.com/hugh/voxpopulous/internal/api/middleware"
	"github.com/hugh/voxpopulous/internal/auth"
	"github.com/hugh/voxpopulous/internal/billing"
	"github.com/hugh/voxpopulous/internal/catalog"
	"github.com/hugh/voxpopulous/internal/entitlement"
	"github.com/hugh/voxpopulous/internal/metrics"
	"github.com/hugh/voxpopulous/internal/quota"
	"github.com/hugh/voxpopulous/internal/session"
	"github.com/hugh/voxpopulous/internal/tenant"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB           *gorm.DB
	Redis        *redis.Client
	Logger       *slog.Logger
	JWTService   *auth.JWTService
	AuthService  *auth.Service
	Sessions     *session.Resolver
	Tenants      *tenant.Store
	Catalog      *catalog.Service
	Entitlements *entitlement.Resolver
	Quotas       *quota.Service
	Billing      *billing.Service
	Gate         *billing.Gate

	AllowedOrigins []string // CORS allowed origins
	LoginLimiter   middleware.Limiter
	SecureCookies  bool
	CSRFSecret     string
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(metrics.Middleware)

	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Auth-Token"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	loginLimiter := cfg.LoginLimiter
	if loginLimiter == nil {
		loginLimiter = middleware.NewMemoryLimiter(10, 60)
	}
	limitLogin := middleware.RateLimit(loginLimiter, "login")
	csrf := middleware.NewCSRF(cfg.CSRFSecret, cfg.SecureCookies)

	// Handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.AuthService, tokenTTL(cfg.JWTService), cfg.SecureCookies, cfg.Logger)
	featuresHandler := handlers.NewFeaturesHandler(cfg.Tenants, cfg.Entitlements, cfg.Logger)
	sessionHandler := handlers.NewSessionHandler()
	adminHandler := handlers.NewAdminHandler(cfg.AuthService, cfg.Quotas, cfg.Logger)
	structureHandler := handlers.NewStructureHandler(cfg.Tenants, cfg.Quotas, cfg.Logger)
	eluHandler := handlers.NewElectedOfficialHandler(cfg.AuthService, cfg.Logger)
	billingHandler := handlers.NewBillingHandler(cfg.Billing, cfg.Logger)
	superAdminHandler := handlers.NewSuperAdminHandler(cfg.Tenants, cfg.Catalog, cfg.Billing, cfg.Entitlements, cfg.Logger)

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.With(limitLogin).Post("/signup", authHandler.Signup)
		r.With(limitLogin).Post("/auth/superadmin/login", authHandler.SuperAdminLogin)
		r.Post("/auth/logout", authHandler.Logout)

		r.Route("/tenants/{slug}", func(r chi.Router) {
			r.Get("/features", featuresHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(limitLogin)
				r.Post("/auth/login", authHandler.TenantAdminLogin)
				r.Post("/auth/elus/login", authHandler.ElectedOfficialLogin)
				r.Post("/auth/association/login", authHandler.AssociationLogin)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.Authenticate(cfg.JWTService, cfg.Sessions, middleware.TenantLogin, cfg.Logger))
				r.Use(csrf.Protect)
				r.Use(middleware.TenantScope(cfg.Tenants, cfg.Logger))
				r.Use(middleware.LoadAccess(cfg.Entitlements, cfg.Gate, cfg.Logger))

				r.Get("/me", sessionHandler.Me)
				r.Get("/navigation", sessionHandler.Navigation)
				r.Get("/navigation/check", sessionHandler.CheckPath)

				// Billing stays writable while the account is blocked for
				// non-payment, not while the tenant is suspended.
				r.Route("/billing", func(r chi.Router) {
					r.Use(middleware.RequireRoute("/admin/billing"))
					r.Use(middleware.RequireNotSuspended)
					r.Get("/", billingHandler.Summary)
					r.Get("/quote", billingHandler.Quote)
					r.Post("/addons", billingHandler.Purchase)
				})

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireWritable)

					r.Route("/admins", func(r chi.Router) {
						r.Use(middleware.RequireRoute("/admin/admins"))
						r.Get("/", adminHandler.List)
						r.With(middleware.RequireAccountManager).Post("/", adminHandler.Create)
						r.With(middleware.RequireAccountManager).Delete("/{id}", adminHandler.Delete)
					})

					r.Route("/communes", func(r chi.Router) {
						r.Use(middleware.RequireRoute("/admin/communes"))
						r.Get("/", structureHandler.ListCommunes)
						r.Post("/", structureHandler.CreateCommune)
					})

					r.Route("/associations", func(r chi.Router) {
						r.Use(middleware.RequireRoute("/admin/associations"))
						r.Get("/", structureHandler.ListAssociations)
						r.Post("/", structureHandler.CreateAssociation)
					})

					r.Route("/elus", func(r chi.Router) {
						r.Use(middleware.RequireRoute("/admin/elus"))
						r.Get("/", eluHandler.List)
						r.Group(func(r chi.Router) {
							r.Use(middleware.RequireAccountManager)
							r.Post("/", eluHandler.Create)
							r.Put("/{id}/permissions", eluHandler.UpdatePermissions)
							r.Delete("/{id}", eluHandler.Delete)
						})
					})
				})
			})
		})

		r.Route("/superadmin", func(r chi.Router) {
			r.Use(middleware.Authenticate(cfg.JWTService, cfg.Sessions, middleware.SuperAdminLogin, cfg.Logger))
			r.Use(csrf.Protect)
			r.Use(middleware.RequireSuperAdmin)

			r.Route("/tenants", func(r chi.Router) {
				r.Get("/", superAdminHandler.ListTenants)
				r.Post("/", superAdminHandler.CreateTenant)
				r.Get("/{id}", superAdminHandler.GetTenant)
				r.Put("/{id}/parent", superAdminHandler.SetParent)
				r.Put("/{id}/plan", superAdminHandler.SetPlan)
				r.Post("/{id}/suspend", superAdminHandler.Suspend)
				r.Post("/{id}/reactivate", superAdminHandler.Reactivate)
				r.Put("/{id}/billing-status", superAdminHandler.SetBillingStatus)
			})

			r.Route("/plans", func(r chi.Router) {
				r.Get("/", superAdminHandler.ListPlans)
				r.Put("/{id}/features", superAdminHandler.SetPlanFeatures)
				r.Put("/{id}/addons/{addon}", superAdminHandler.SetPlanAddon)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Not found", Code: dto.CodeNotFound})
	})

	return &Router{r}
}

func tokenTTL(j *auth.JWTService) time.Duration {
	if j == nil {
		return 0
	}
	return j.Expiry()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
