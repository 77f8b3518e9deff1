package handlers

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/voxpopulous/internal/api/dto"
	"github.com/hugh/voxpopulous/internal/api/validation"
	"github.com/hugh/voxpopulous/internal/auth"
	"github.com/hugh/voxpopulous/internal/billing"
	"github.com/hugh/voxpopulous/internal/catalog"
	"github.com/hugh/voxpopulous/internal/database"
	"github.com/hugh/voxpopulous/internal/quota"
	"github.com/hugh/voxpopulous/internal/tenant"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]string) {
	writeJSON(w, status, dto.ErrorResponse{Error: message, Code: code, Details: details})
}

// decode reads a JSON body into v and runs struct validation. It writes the
// 400 response itself and reports false on failure.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, dto.CodeValidationFailed, "Invalid request body", nil)
		return false
	}
	if errs := validation.Struct(v); len(errs) > 0 {
		writeError(w, http.StatusBadRequest, dto.CodeValidationFailed, "Validation failed", errs)
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, dto.CodeValidationFailed, "Invalid ID",
			map[string]string{name: "Must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}

func intQuery(r *http.Request, name string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(name)); err == nil {
		return v
	}
	return def
}

// writeServiceError maps domain errors to HTTP responses. Unknown errors are
// logged and answered with a generic 500.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var exceeded *quota.ExceededError
	switch {
	case errors.As(err, &exceeded):
		details := map[string]string{
			"resource": string(exceeded.Resource),
			"used":     strconv.Itoa(exceeded.Used),
			"allowed":  strconv.Itoa(exceeded.Allowed),
		}
		if exceeded.Race {
			writeError(w, http.StatusConflict, dto.CodeQuotaRaceLost, exceeded.Error(), details)
			return
		}
		writeError(w, http.StatusForbidden, dto.CodeQuotaExceeded, exceeded.Error(), details)

	case errors.Is(err, tenant.ErrNotFound),
		errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, catalog.ErrPlanNotFound),
		errors.Is(err, catalog.ErrAddonNotFound):
		writeError(w, http.StatusNotFound, dto.CodeNotFound, err.Error(), nil)

	case errors.Is(err, tenant.ErrSlugTaken),
		errors.Is(err, auth.ErrUserExists):
		writeError(w, http.StatusConflict, dto.CodeConflict, err.Error(), nil)

	case errors.Is(err, tenant.ErrInvalidSlug),
		errors.Is(err, tenant.ErrInvalidType),
		errors.Is(err, tenant.ErrInvalidParent),
		errors.Is(err, tenant.ErrCycle),
		errors.Is(err, tenant.ErrInvalidStatus),
		errors.Is(err, tenant.ErrPlanNotEligible),
		errors.Is(err, catalog.ErrUnknownFeature),
		errors.Is(err, catalog.ErrInvalidQuantity),
		errors.Is(err, billing.ErrInvalidQuantity),
		errors.Is(err, billing.ErrAddonNotApplicable),
		errors.Is(err, quota.ErrUnknownResource):
		writeError(w, http.StatusBadRequest, dto.CodeValidationFailed, err.Error(), nil)

	case errors.Is(err, billing.ErrAddonNotEnabled),
		errors.Is(err, billing.ErrNoPlan):
		writeError(w, http.StatusForbidden, dto.CodeAddonNotEnabled, err.Error(), nil)

	case errors.Is(err, billing.ErrChildTenantBilling):
		writeError(w, http.StatusForbidden, dto.CodeBillingManagedByParent, err.Error(), nil)

	case errors.Is(err, billing.ErrTenantSuspended):
		writeError(w, http.StatusForbidden, dto.CodeTenantSuspended, err.Error(), nil)

	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, dto.CodeUnauthorized, "Invalid credentials", nil)

	case errors.Is(err, auth.ErrInactiveUser):
		writeError(w, http.StatusForbidden, dto.CodePermissionDenied, "Account is inactive", nil)

	case errors.Is(err, database.ErrUnavailable),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, context.DeadlineExceeded):
		logger.Error("database unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, dto.CodeServiceUnavailable, "Service unavailable", nil)

	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, dto.CodeInternal, "Internal server error", nil)
	}
}
