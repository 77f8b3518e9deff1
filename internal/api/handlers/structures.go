package handlers

import (
	"log/slog"
	"net/http"

	"github.com/hugh/voxpopulous/internal/api/dto"
	"github.com/hugh/voxpopulous/internal/api/middleware"
	"github.com/hugh/voxpopulous/internal/api/validation"
	"github.com/hugh/voxpopulous/internal/database/models"
	"github.com/hugh/voxpopulous/internal/quota"
	"github.com/hugh/voxpopulous/internal/tenant"
	"gorm.io/gorm"
)

// StructureHandler manages the child structures of a territory: communes of
// an EPCI and associations of a MAIRIE or EPCI. Children inherit the
// parent's subscription, so they are created without a plan.
type StructureHandler struct {
	tenants *tenant.Store
	quotas  *quota.Service
	logger  *slog.Logger
}

func NewStructureHandler(tenants *tenant.Store, quotas *quota.Service, logger *slog.Logger) *StructureHandler {
	return &StructureHandler{tenants: tenants, quotas: quotas, logger: logger}
}

func (h *StructureHandler) ListCommunes(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, models.TenantTypeMairie, quota.ResourceCommunes)
}

func (h *StructureHandler) CreateCommune(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, quota.ResourceCommunes, func(parent *models.Tenant, req dto.CreateChildRequest) tenant.CreateInput {
		return tenant.CreateInput{
			Slug:          req.Slug,
			Name:          validation.SanitizeString(req.Name),
			TenantType:    models.TenantTypeMairie,
			ParentEpciID:  &parent.ID,
			BillingStatus: models.BillingStatusActive,
		}
	})
}

func (h *StructureHandler) ListAssociations(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, models.TenantTypeAssociation, quota.ResourceAssociations)
}

func (h *StructureHandler) CreateAssociation(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, quota.ResourceAssociations, func(parent *models.Tenant, req dto.CreateChildRequest) tenant.CreateInput {
		return tenant.CreateInput{
			Slug:           req.Slug,
			Name:           validation.SanitizeString(req.Name),
			TenantType:     models.TenantTypeAssociation,
			ParentTenantID: &parent.ID,
			BillingStatus:  models.BillingStatusActive,
		}
	})
}

func (h *StructureHandler) list(w http.ResponseWriter, r *http.Request, childType models.TenantType, resource quota.Resource) {
	t := middleware.GetTenant(r.Context())

	children, err := h.tenants.ChildrenOfType(r.Context(), t, childType)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	q, err := h.quotas.Check(r.Context(), t, resource)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ListWithQuota{Data: dto.NewTenantDTOs(children), Quota: q})
}

func (h *StructureHandler) create(w http.ResponseWriter, r *http.Request, resource quota.Resource, input func(*models.Tenant, dto.CreateChildRequest) tenant.CreateInput) {
	parent := middleware.GetTenant(r.Context())

	var req dto.CreateChildRequest
	if !decode(w, r, &req) {
		return
	}

	var child *models.Tenant
	q, err := h.quotas.Enforce(r.Context(), parent, resource, func(tx *gorm.DB) error {
		var err error
		child, err = h.tenants.CreateTx(tx, input(parent, req))
		return err
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("child structure created",
		"parent_id", parent.ID,
		"tenant_id", child.ID,
		"slug", child.Slug,
		"tenant_type", child.TenantType,
	)
	writeJSON(w, http.StatusCreated, dto.CreatedWithQuota{Data: dto.NewTenantDTO(child), Quota: q})
}
