package dto

type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

// Error codes returned in ErrorResponse.Code.
const (
	CodeUnauthorized           = "unauthorized"
	CodePermissionDenied       = "permission_denied"
	CodeFeatureNotEnabled      = "feature_not_enabled"
	CodeQuotaExceeded          = "quota_exceeded"
	CodeQuotaRaceLost          = "quota_race_lost"
	CodeBillingBlocked         = "billing_blocked"
	CodeTenantSuspended        = "tenant_suspended"
	CodeBillingManagedByParent = "billing_managed_by_parent"
	CodeAddonNotEnabled        = "addon_not_enabled"
	CodeValidationFailed       = "validation_failed"
	CodeNotFound               = "not_found"
	CodeConflict               = "conflict"
	CodeRateLimited            = "rate_limited"
	CodeServiceUnavailable     = "service_unavailable"
	CodeInternal               = "internal_error"
)

type SuccessResponse struct {
	Message string `json:"message"`
}

type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PerPage    int         `json:"per_page"`
	TotalPages int         `json:"total_pages"`
}

type PaginationParams struct {
	Page    int
	PerPage int
}

func (p *PaginationParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = 20
	}
	if p.PerPage > 100 {
		p.PerPage = 100
	}
}

func (p *PaginationParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

func (p *PaginationParams) TotalPages(total int64) int {
	if total == 0 {
		return 0
	}
	return int((total + int64(p.PerPage) - 1) / int64(p.PerPage))
}
