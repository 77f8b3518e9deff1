package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/voxpopulous/internal/api/dto"
	"github.com/hugh/voxpopulous/internal/auth"
	"github.com/hugh/voxpopulous/internal/session"
)

// TokenCookie holds the session token for the admin web app.
const TokenCookie = "token"

// LoginPath returns the login page unauthenticated HTML requests are sent to.
type LoginPath func(r *http.Request) string

func SuperAdminLogin(*http.Request) string {
	return "/superadmin/login"
}

func TenantLogin(r *http.Request) string {
	slug := chi.URLParam(r, "slug")
	if slug == "" {
		return "/"
	}
	return "/" + slug + "/admin/login"
}

// Authenticate rebuilds the caller's principal on every request. Tokens for
// deleted, deactivated or re-scoped accounts are rejected.
func Authenticate(tokens auth.TokenService, sessions *session.Resolver, login LoginPath, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				handleUnauthorized(w, r, login)
				return
			}

			claims, err := tokens.ValidateToken(token)
			if err != nil {
				handleUnauthorized(w, r, login)
				return
			}

			p, err := sessions.Resolve(r.Context(), claims.Kind, claims.SubjectID, claims.TenantID)
			if err != nil {
				if errors.Is(err, session.ErrUnknownPrincipal) ||
					errors.Is(err, session.ErrInactive) ||
					errors.Is(err, session.ErrKindMismatch) {
					logger.Debug("session rejected", "subject_id", claims.SubjectID, "kind", claims.Kind, "error", err)
					handleUnauthorized(w, r, login)
					return
				}
				logger.Error("resolving session", "error", err)
				writeError(w, http.StatusServiceUnavailable, dto.CodeServiceUnavailable, "Service unavailable", nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(session.WithPrincipal(r.Context(), p)))
		})
	}
}

// tokenFromRequest checks, in order, the bearer header, the session cookie
// and the X-Auth-Token header.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if cookie, err := r.Cookie(TokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return r.Header.Get("X-Auth-Token")
}

func handleUnauthorized(w http.ResponseWriter, r *http.Request, login LoginPath) {
	if strings.Contains(r.Header.Get("Accept"), "text/html") && login != nil {
		http.Redirect(w, r, login(r), http.StatusFound)
		return
	}
	writeError(w, http.StatusUnauthorized, dto.CodeUnauthorized, "Unauthorized", nil)
}

// RequireSuperAdmin must run after Authenticate.
func RequireSuperAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if session.FromContext(r.Context()).Kind() != session.KindSuperAdmin {
			deny(w, "super_admin_only", http.StatusForbidden, dto.CodePermissionDenied, "Forbidden", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
