package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/voxpopulous/internal/api/dto"
	"github.com/hugh/voxpopulous/internal/database/models"
	"github.com/hugh/voxpopulous/internal/session"
	"github.com/hugh/voxpopulous/internal/tenant"
)

type contextKey string

const (
	tenantKey contextKey = "tenant"
	accessKey contextKey = "access"
)

// TenantScope loads the tenant named by the {slug} URL parameter and checks
// that the authenticated principal belongs to it.
func TenantScope(tenants *tenant.Store, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t, err := tenants.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
			if err != nil {
				if errors.Is(err, tenant.ErrNotFound) {
					writeError(w, http.StatusNotFound, dto.CodeNotFound, "Tenant not found", nil)
					return
				}
				logger.Error("loading tenant", "slug", chi.URLParam(r, "slug"), "error", err)
				writeError(w, http.StatusServiceUnavailable, dto.CodeServiceUnavailable, "Service unavailable", nil)
				return
			}

			p := session.FromContext(r.Context())
			if !session.CanAccessTenant(p, t.ID) {
				logger.Warn("cross-tenant access refused",
					"subject_id", p.SubjectID(),
					"kind", p.Kind(),
					"tenant_id", t.ID,
				)
				deny(w, "tenant_scope", http.StatusForbidden, dto.CodePermissionDenied, "Forbidden", nil)
				return
			}

			ctx := context.WithValue(r.Context(), tenantKey, t)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetTenant returns the tenant loaded by TenantScope.
func GetTenant(ctx context.Context) *models.Tenant {
	if t, ok := ctx.Value(tenantKey).(*models.Tenant); ok {
		return t
	}
	return nil
}

// WithTenant is used by tests that bypass TenantScope.
func WithTenant(ctx context.Context, t *models.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}
