package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/hugh/voxpopulous/internal/api/dto"
	"github.com/hugh/voxpopulous/internal/api/middleware"
	"github.com/hugh/voxpopulous/internal/billing"
	"github.com/hugh/voxpopulous/internal/database/models"
)

type BillingHandler struct {
	billing *billing.Service
	logger  *slog.Logger
}

func NewBillingHandler(svc *billing.Service, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{billing: svc, logger: logger}
}

func (h *BillingHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.billing.Summary(r.Context(), middleware.GetTenant(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Quote prices ?addon=CODE&quantity=N additional units without buying them.
func (h *BillingHandler) Quote(w http.ResponseWriter, r *http.Request) {
	code := models.AddonCode(strings.ToUpper(r.URL.Query().Get("addon")))
	if !code.Valid() {
		writeError(w, http.StatusBadRequest, dto.CodeValidationFailed, "Validation failed",
			map[string]string{"addon": "Unknown addon"})
		return
	}

	quote, err := h.billing.QuoteAddon(r.Context(), middleware.GetTenant(r.Context()), code, intQuery(r, "quantity", 1))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (h *BillingHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req dto.PurchaseAddonRequest
	if !decode(w, r, &req) {
		return
	}

	t := middleware.GetTenant(r.Context())
	quote, err := h.billing.PurchaseAddon(r.Context(), t, models.AddonCode(strings.ToUpper(req.Addon)), req.Quantity)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, quote)
}
