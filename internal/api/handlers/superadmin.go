package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/voxpopulous/internal/api/dto"
	"github.com/hugh/voxpopulous/internal/api/validation"
	"github.com/hugh/voxpopulous/internal/billing"
	"github.com/hugh/voxpopulous/internal/catalog"
	"github.com/hugh/voxpopulous/internal/database/models"
	"github.com/hugh/voxpopulous/internal/entitlement"
	"github.com/hugh/voxpopulous/internal/tenant"
	"github.com/shopspring/decimal"
)

// SuperAdminHandler is the platform back office: tenant hierarchy,
// lifecycle, billing status and the plan catalog.
type SuperAdminHandler struct {
	tenants  *tenant.Store
	catalog  *catalog.Service
	billing  *billing.Service
	resolver *entitlement.Resolver
	logger   *slog.Logger
}

func NewSuperAdminHandler(tenants *tenant.Store, cat *catalog.Service, billingSvc *billing.Service, resolver *entitlement.Resolver, logger *slog.Logger) *SuperAdminHandler {
	return &SuperAdminHandler{
		tenants:  tenants,
		catalog:  cat,
		billing:  billingSvc,
		resolver: resolver,
		logger:   logger,
	}
}

func (h *SuperAdminHandler) ListTenants(w http.ResponseWriter, r *http.Request) {
	params := dto.PaginationParams{Page: intQuery(r, "page", 1), PerPage: intQuery(r, "per_page", 20)}
	params.Normalize()

	tenantType := models.TenantType(strings.ToUpper(r.URL.Query().Get("type")))
	if tenantType != "" && !tenantType.Valid() {
		writeError(w, http.StatusBadRequest, dto.CodeValidationFailed, "Validation failed",
			map[string]string{"type": "Must be one of: MAIRIE EPCI ASSOCIATION"})
		return
	}

	tenants, total, err := h.tenants.List(r.Context(), tenantType, params.Offset(), params.PerPage)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PaginatedResponse{
		Data:       dto.NewTenantDTOs(tenants),
		Total:      total,
		Page:       params.Page,
		PerPage:    params.PerPage,
		TotalPages: params.TotalPages(total),
	})
}

func (h *SuperAdminHandler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateTenantRequest
	if !decode(w, r, &req) {
		return
	}

	input := tenant.CreateInput{
		Slug:           req.Slug,
		Name:           validation.SanitizeString(req.Name),
		TenantType:     models.TenantType(req.TenantType),
		ParentEpciID:   req.ParentEpciID,
		ParentTenantID: req.ParentTenantID,
		BillingStatus:  models.BillingStatus(req.BillingStatus),
	}
	if req.PlanCode != "" {
		plan, err := h.catalog.GetPlanByCode(r.Context(), req.PlanCode)
		if err != nil {
			writeServiceError(w, h.logger, err)
			return
		}
		input.PlanID = &plan.ID
	}

	t, err := h.tenants.Create(r.Context(), input)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.NewTenantDTO(t))
}

type tenantDetail struct {
	dto.TenantDTO
	Billing      *billing.State            `json:"billing"`
	Entitlements *entitlement.Entitlements `json:"entitlements"`
	Children     []dto.TenantDTO           `json:"children"`
}

func (h *SuperAdminHandler) GetTenant(w http.ResponseWriter, r *http.Request) {
	t, ok := h.tenantParam(w, r)
	if !ok {
		return
	}

	ent, err := h.resolver.Resolve(r.Context(), t)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	state, err := h.billing.State(r.Context(), t)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	children, err := h.tenants.Children(r.Context(), t)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, tenantDetail{
		TenantDTO:    dto.NewTenantDTO(t),
		Billing:      state,
		Entitlements: ent,
		Children:     dto.NewTenantDTOs(children),
	})
}

func (h *SuperAdminHandler) SetParent(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req dto.SetParentRequest
	if !decode(w, r, &req) {
		return
	}

	t, err := h.tenants.SetParent(r.Context(), id, req.ParentEpciID, req.ParentTenantID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.invalidate(r, t.ID)
	writeJSON(w, http.StatusOK, dto.NewTenantDTO(t))
}

func (h *SuperAdminHandler) SetPlan(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req dto.SetPlanRequest
	if !decode(w, r, &req) {
		return
	}

	plan, err := h.catalog.GetPlanByCode(r.Context(), req.PlanCode)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	t, err := h.tenants.SetPlan(r.Context(), id, plan.ID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.invalidate(r, t.ID)
	writeJSON(w, http.StatusOK, dto.NewTenantDTO(t))
}

func (h *SuperAdminHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req dto.SuspendRequest
	if !decode(w, r, &req) {
		return
	}

	t, err := h.tenants.Suspend(r.Context(), id, validation.SanitizeString(req.Reason))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewTenantDTO(t))
}

func (h *SuperAdminHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	t, err := h.tenants.Reactivate(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewTenantDTO(t))
}

func (h *SuperAdminHandler) SetBillingStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req dto.BillingStatusRequest
	if !decode(w, r, &req) {
		return
	}

	t, err := h.billing.ChangeStatus(r.Context(), id, models.BillingStatus(req.Status))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewTenantDTO(t))
}

func (h *SuperAdminHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.catalog.ListPlans(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

func (h *SuperAdminHandler) SetPlanFeatures(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req dto.PlanFeaturesRequest
	if !decode(w, r, &req) {
		return
	}

	codes := make([]entitlement.FeatureCode, 0, len(req.Features))
	for _, raw := range req.Features {
		code, _ := entitlement.ParseFeatureCode(raw)
		codes = append(codes, code)
	}

	if err := h.catalog.SetPlanFeatures(r.Context(), id, codes); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.invalidatePlan(r, id)

	plan, err := h.catalog.GetPlan(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *SuperAdminHandler) SetPlanAddon(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	code := models.AddonCode(strings.ToUpper(chi.URLParam(r, "addon")))
	if !code.Valid() {
		writeError(w, http.StatusBadRequest, dto.CodeValidationFailed, "Validation failed",
			map[string]string{"addon": "Unknown addon"})
		return
	}
	var req dto.AddonAccessRequest
	if !decode(w, r, &req) {
		return
	}

	input := catalog.AddonAccessInput{
		IsEnabled:       req.IsEnabled,
		DefaultQuantity: req.DefaultQuantity,
	}
	if req.MonthlyPrice != nil {
		d := decimal.RequireFromString(*req.MonthlyPrice)
		input.MonthlyPrice = &d
	}
	if req.YearlyPrice != nil {
		d := decimal.RequireFromString(*req.YearlyPrice)
		input.YearlyPrice = &d
	}

	access, err := h.catalog.SetPlanAddonAccess(r.Context(), id, code, input)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.invalidatePlan(r, id)
	writeJSON(w, http.StatusOK, access)
}

func (h *SuperAdminHandler) tenantParam(w http.ResponseWriter, r *http.Request) (*models.Tenant, bool) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return nil, false
	}
	t, err := h.tenants.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return nil, false
	}
	return t, true
}

func (h *SuperAdminHandler) invalidate(r *http.Request, id uuid.UUID) {
	if err := h.billing.InvalidateTree(r.Context(), id); err != nil {
		h.logger.Warn("failed to invalidate entitlements", "tenant_id", id, "error", err)
	}
}

func (h *SuperAdminHandler) invalidatePlan(r *http.Request, planID uuid.UUID) {
	ids, err := h.catalog.TenantsOnPlan(r.Context(), planID)
	if err != nil {
		h.logger.Warn("failed to list tenants on plan", "plan_id", planID, "error", err)
		return
	}
	h.resolver.Invalidate(r.Context(), ids...)
}
