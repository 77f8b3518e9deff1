package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/voxpopulous/internal/api/dto"
	"github.com/hugh/voxpopulous/internal/entitlement"
	"github.com/hugh/voxpopulous/internal/tenant"
)

// FeaturesHandler serves the public feature flags a tenant site uses to
// decide which modules to show.
type FeaturesHandler struct {
	tenants  *tenant.Store
	resolver *entitlement.Resolver
	logger   *slog.Logger
}

func NewFeaturesHandler(tenants *tenant.Store, resolver *entitlement.Resolver, logger *slog.Logger) *FeaturesHandler {
	return &FeaturesHandler{tenants: tenants, resolver: resolver, logger: logger}
}

func (h *FeaturesHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenants.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	ent, err := h.resolver.Resolve(r.Context(), t)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.FeaturesResponse{
		HasIdeas:     ent.HasFeature(entitlement.FeatureIdeaBox),
		HasIncidents: ent.HasFeature(entitlement.FeatureIncidents),
		HasEvents:    ent.HasFeature(entitlement.FeatureEvents),
		Features:     ent.Features.Codes(),
	})
}
