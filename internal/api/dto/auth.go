package dto

type SignupRequest struct {
	TenantName string `json:"tenant_name" validate:"required,max=120"`
	Slug       string `json:"slug" validate:"required,slug"`
	TenantType string `json:"tenant_type" validate:"required,oneof=MAIRIE EPCI ASSOCIATION"`
	PlanCode   string `json:"plan_code" validate:"required"`
	AdminName  string `json:"admin_name" validate:"required,max=120"`
	Email      string `json:"email" validate:"required,email,max=254"`
	Password   string `json:"password" validate:"required,min=8,max=128"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
