package handlers

import (
	"log/slog"
	"net/http"

	"github.com/hugh/voxpopulous/internal/api/dto"
	"github.com/hugh/voxpopulous/internal/api/middleware"
	"github.com/hugh/voxpopulous/internal/api/validation"
	"github.com/hugh/voxpopulous/internal/auth"
	"github.com/hugh/voxpopulous/internal/session"
)

type ElectedOfficialHandler struct {
	accounts *auth.Service
	logger   *slog.Logger
}

func NewElectedOfficialHandler(accounts *auth.Service, logger *slog.Logger) *ElectedOfficialHandler {
	return &ElectedOfficialHandler{accounts: accounts, logger: logger}
}

func (h *ElectedOfficialHandler) List(w http.ResponseWriter, r *http.Request) {
	t := middleware.GetTenant(r.Context())

	officials, err := h.accounts.ListElectedOfficials(r.Context(), t.ID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, officials)
}

func (h *ElectedOfficialHandler) Create(w http.ResponseWriter, r *http.Request) {
	t := middleware.GetTenant(r.Context())

	var req dto.CreateElectedOfficialRequest
	if !decode(w, r, &req) {
		return
	}
	codes, _ := session.ParseMenuCodes(req.MenuPermissions)

	official, err := h.accounts.CreateElectedOfficial(r.Context(), t.ID, auth.ElectedOfficialInput{
		AccountInput: auth.AccountInput{
			Email:    req.Email,
			Password: req.Password,
			Name:     validation.SanitizeString(req.Name),
		},
		Position:      validation.SanitizeString(req.Position),
		HasFullAccess: req.HasFullAccess,
		Permissions:   codes,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, official)
}

func (h *ElectedOfficialHandler) UpdatePermissions(w http.ResponseWriter, r *http.Request) {
	t := middleware.GetTenant(r.Context())
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req dto.UpdatePermissionsRequest
	if !decode(w, r, &req) {
		return
	}
	codes, _ := session.ParseMenuCodes(req.MenuPermissions)

	official, err := h.accounts.UpdatePermissions(r.Context(), t.ID, id, req.HasFullAccess, codes)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, official)
}

func (h *ElectedOfficialHandler) Delete(w http.ResponseWriter, r *http.Request) {
	t := middleware.GetTenant(r.Context())
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.accounts.DeleteElectedOfficial(r.Context(), t.ID, id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
