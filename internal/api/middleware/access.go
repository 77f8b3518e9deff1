package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hugh/voxpopulous/internal/api/dto"
	"github.com/hugh/voxpopulous/internal/billing"
	"github.com/hugh/voxpopulous/internal/entitlement"
	"github.com/hugh/voxpopulous/internal/metrics"
	"github.com/hugh/voxpopulous/internal/navigation"
	"github.com/hugh/voxpopulous/internal/session"
)

// Access is the per-request view of what the scoped tenant may do.
type Access struct {
	Entitlements *entitlement.Entitlements
	Billing      *billing.State
}

// LoadAccess resolves entitlements and billing state for the scoped tenant
// once per request. It must run after TenantScope.
func LoadAccess(resolver *entitlement.Resolver, gate *billing.Gate, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := GetTenant(r.Context())
			if t == nil {
				writeError(w, http.StatusNotFound, dto.CodeNotFound, "Tenant not found", nil)
				return
			}

			ent, err := resolver.Resolve(r.Context(), t)
			if err != nil {
				logger.Error("resolving entitlements", "tenant_id", t.ID, "error", err)
				writeError(w, http.StatusServiceUnavailable, dto.CodeServiceUnavailable, "Service unavailable", nil)
				return
			}
			state, err := gate.Resolve(r.Context(), t)
			if err != nil {
				logger.Error("resolving billing state", "tenant_id", t.ID, "error", err)
				writeError(w, http.StatusServiceUnavailable, dto.CodeServiceUnavailable, "Service unavailable", nil)
				return
			}

			ctx := WithAccess(r.Context(), &Access{Entitlements: ent, Billing: state})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetAccess(ctx context.Context) *Access {
	if a, ok := ctx.Value(accessKey).(*Access); ok {
		return a
	}
	return &Access{}
}

func WithAccess(ctx context.Context, a *Access) context.Context {
	return context.WithValue(ctx, accessKey, a)
}

// RequireMenu rejects principals without access to the menu.
func RequireMenu(code session.MenuCode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !session.HasMenuAccess(session.FromContext(r.Context()), code) {
				deny(w, string(navigation.LockPermissionDenied), http.StatusForbidden, dto.CodePermissionDenied,
					"Access to this menu is not allowed", map[string]string{"menu": string(code)})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireFeature rejects tenants whose plan does not grant the feature.
func RequireFeature(code entitlement.FeatureCode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !GetAccess(r.Context()).Entitlements.HasFeature(code) {
				deny(w, string(navigation.LockUpgradeRequired), http.StatusForbidden, dto.CodeFeatureNotEnabled,
					navigation.LockUpgradeRequired.Tooltip(), map[string]string{"feature": string(code)})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRoute guards a data endpoint with the same rules the admin menu
// applies to its route, so reaching the endpoint directly reveals nothing the
// menu would hide.
func RequireRoute(path string) func(http.Handler) http.Handler {
	route := navigation.MustRoute(path)
	menu := RequireMenu(route.Menu)
	feature := func(next http.Handler) http.Handler { return next }
	if route.Feature != "" {
		feature = RequireFeature(route.Feature)
	}

	return func(next http.Handler) http.Handler {
		guarded := menu(feature(next))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := GetTenant(r.Context())
			if t == nil || !route.AppliesTo(t.TenantType) {
				deny(w, string(navigation.LockPermissionDenied), http.StatusForbidden, dto.CodePermissionDenied,
					"Not available for this structure", nil)
				return
			}
			if route.OwnerOnly && t.IsChild() {
				deny(w, string(navigation.LockManagedByParent), http.StatusForbidden, dto.CodeBillingManagedByParent,
					navigation.LockManagedByParent.Tooltip(), nil)
				return
			}
			guarded.ServeHTTP(w, r)
		})
	}
}

// RequireWritable rejects mutations while the tenant is suspended or blocked
// for non-payment. Safe methods pass through.
func RequireWritable(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		state := GetAccess(r.Context()).Billing
		switch {
		case state == nil:
		case state.Kind == billing.BlockLifecycleSuspended:
			deny(w, "tenant_suspended", http.StatusForbidden, dto.CodeTenantSuspended, state.BlockReason, nil)
			return
		case state.AccountBlocked || state.ReadOnly:
			details := map[string]string{"kind": string(state.Kind)}
			if state.ResolveURL != "" {
				details["resolve_url"] = state.ResolveURL
			}
			deny(w, "billing_blocked", http.StatusForbidden, dto.CodeBillingBlocked, state.BlockReason, details)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireNotSuspended rejects mutations of a lifecycle-suspended tenant but
// lets a billing block through, so the owner can still regularize.
func RequireNotSuspended(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		if state := GetAccess(r.Context()).Billing; state != nil && state.Kind == billing.BlockLifecycleSuspended {
			deny(w, "tenant_suspended", http.StatusForbidden, dto.CodeTenantSuspended, state.BlockReason, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAccountManager keeps account and permission changes to admin
// principals. Elected officials may list accounts through their menus but
// never create, edit or delete them.
func RequireAccountManager(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch session.FromContext(r.Context()).Kind() {
		case session.KindTenantAdmin, session.KindAssociationAdmin, session.KindSuperAdmin:
			next.ServeHTTP(w, r)
		default:
			deny(w, "account_management", http.StatusForbidden, dto.CodePermissionDenied,
				"Only administrators can manage accounts", nil)
		}
	})
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func deny(w http.ResponseWriter, reason string, status int, code, message string, details map[string]string) {
	metrics.AccessDenials.WithLabelValues(reason).Inc()
	writeError(w, status, code, message, details)
}
