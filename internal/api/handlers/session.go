package handlers

import (
	"net/http"

	"github.com/hugh/voxpopulous/internal/api/dto"
	"github.com/hugh/voxpopulous/internal/api/middleware"
	"github.com/hugh/voxpopulous/internal/navigation"
	"github.com/hugh/voxpopulous/internal/session"
)

// SessionHandler describes the current principal inside a tenant admin area.
// It only reads what the middleware chain already resolved.
type SessionHandler struct{}

func NewSessionHandler() *SessionHandler {
	return &SessionHandler{}
}

func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := session.FromContext(r.Context())
	t := middleware.GetTenant(r.Context())
	access := middleware.GetAccess(r.Context())

	resp := dto.MeResponse{
		Principal: dto.PrincipalDTO{
			Kind:      p.Kind(),
			SubjectID: p.SubjectID(),
			TenantID:  p.TenantID(),
			Email:     p.Email(),
		},
		Tenant:  dto.NewTenantDTO(t),
		Billing: access.Billing,
	}
	if access.Billing != nil {
		resp.AccountBlocked = access.Billing.AccountBlocked
		resp.BlockReason = access.Billing.BlockReason
	}
	if access.Entitlements != nil {
		resp.Features = access.Entitlements.Features.Codes()
		resp.PlanCode = access.Entitlements.PlanCode
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *SessionHandler) Navigation(w http.ResponseWriter, r *http.Request) {
	items := navigation.Build(
		session.FromContext(r.Context()),
		middleware.GetTenant(r.Context()),
		middleware.GetAccess(r.Context()).Entitlements,
	)
	writeJSON(w, http.StatusOK, dto.NavigationResponse{Items: items})
}

// CheckPath evaluates one admin path, for client-side route guards.
func (h *SessionHandler) CheckPath(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, dto.CodeValidationFailed, "Validation failed",
			map[string]string{"path": "This field is required"})
		return
	}

	item := navigation.Check(
		session.FromContext(r.Context()),
		middleware.GetTenant(r.Context()),
		middleware.GetAccess(r.Context()).Entitlements,
		path,
	)
	writeJSON(w, http.StatusOK, item)
}
