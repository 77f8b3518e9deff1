package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/voxpopulous/internal/api/dto"
	"github.com/hugh/voxpopulous/internal/api/middleware"
	"github.com/hugh/voxpopulous/internal/api/validation"
	"github.com/hugh/voxpopulous/internal/auth"
	"github.com/hugh/voxpopulous/internal/database/models"
)

type AuthHandler struct {
	authService   auth.Authenticator
	tokenTTL      time.Duration
	secureCookies bool
	logger        *slog.Logger
}

func NewAuthHandler(authService auth.Authenticator, tokenTTL time.Duration, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		authService:   authService,
		tokenTTL:      tokenTTL,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

type signupResponse struct {
	*auth.AuthResponse
	Tenant dto.TenantDTO `json:"tenant"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req dto.SignupRequest
	if !decode(w, r, &req) {
		return
	}

	resp, t, err := h.authService.Signup(r.Context(), auth.SignupInput{
		TenantName: validation.SanitizeString(req.TenantName),
		Slug:       req.Slug,
		TenantType: models.TenantType(req.TenantType),
		PlanCode:   req.PlanCode,
		AdminName:  validation.SanitizeString(req.AdminName),
		Email:      req.Email,
		Password:   req.Password,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.setSessionCookie(w, resp.Token)
	writeJSON(w, http.StatusCreated, signupResponse{AuthResponse: resp, Tenant: dto.NewTenantDTO(t)})
}

func (h *AuthHandler) SuperAdminLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, func(input auth.LoginInput) (*auth.AuthResponse, error) {
		return h.authService.LoginSuperAdmin(r.Context(), input)
	})
}

func (h *AuthHandler) TenantAdminLogin(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	h.login(w, r, func(input auth.LoginInput) (*auth.AuthResponse, error) {
		return h.authService.LoginTenantAdmin(r.Context(), slug, input)
	})
}

func (h *AuthHandler) AssociationLogin(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	h.login(w, r, func(input auth.LoginInput) (*auth.AuthResponse, error) {
		return h.authService.LoginAssociationAdmin(r.Context(), slug, input)
	})
}

func (h *AuthHandler) ElectedOfficialLogin(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	h.login(w, r, func(input auth.LoginInput) (*auth.AuthResponse, error) {
		return h.authService.LoginElectedOfficial(r.Context(), slug, input)
	})
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, fn func(auth.LoginInput) (*auth.AuthResponse, error)) {
	var req dto.LoginRequest
	if !decode(w, r, &req) {
		return
	}

	resp, err := fn(auth.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.setSessionCookie(w, resp.Token)
	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		MaxAge:   -1,
	})

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Logged out"})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.tokenTTL.Seconds()),
	})
}
