package handlers

import (
	"log/slog"
	"net/http"

	"github.com/hugh/voxpopulous/internal/api/dto"
	"github.com/hugh/voxpopulous/internal/api/middleware"
	"github.com/hugh/voxpopulous/internal/api/validation"
	"github.com/hugh/voxpopulous/internal/auth"
	"github.com/hugh/voxpopulous/internal/quota"
	"github.com/hugh/voxpopulous/internal/session"
	"gorm.io/gorm"
)

type AdminHandler struct {
	accounts *auth.Service
	quotas   *quota.Service
	logger   *slog.Logger
}

func NewAdminHandler(accounts *auth.Service, quotas *quota.Service, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{accounts: accounts, quotas: quotas, logger: logger}
}

func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	t := middleware.GetTenant(r.Context())

	admins, err := h.accounts.ListAdmins(r.Context(), t.ID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	q, err := h.quotas.Check(r.Context(), t, quota.ResourceAdmins)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ListWithQuota{Data: admins, Quota: q})
}

func (h *AdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	t := middleware.GetTenant(r.Context())

	var req dto.CreateAdminRequest
	if !decode(w, r, &req) {
		return
	}

	user, err := auth.NewAdmin(t.ID, auth.AccountInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     validation.SanitizeString(req.Name),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	q, err := h.quotas.Enforce(r.Context(), t, quota.ResourceAdmins, func(tx *gorm.DB) error {
		return h.accounts.CreateAdminTx(tx, user)
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("admin created", "tenant_id", t.ID, "admin_id", user.ID)
	writeJSON(w, http.StatusCreated, dto.CreatedWithQuota{Data: user, Quota: q})
}

func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	t := middleware.GetTenant(r.Context())
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	if session.FromContext(r.Context()).SubjectID() == id {
		writeError(w, http.StatusConflict, dto.CodeConflict, "You cannot delete your own account", nil)
		return
	}

	if err := h.accounts.DeleteAdmin(r.Context(), t.ID, id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
