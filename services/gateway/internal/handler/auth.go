package handler

import (
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/tan-res-space/draft-genie-sub004/pkg/errors"
	"github.com/tan-res-space/draft-genie-sub004/pkg/httputil"
	pkgmw "github.com/tan-res-space/draft-genie-sub004/pkg/middleware"
	"github.com/tan-res-space/draft-genie-sub004/pkg/validator"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/domain"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/service"
)

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service *service.AuthService
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// RegisterRequest is the JSON request body for user registration.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
}

// LoginRequest is the JSON request body for user login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshTokenRequest is the JSON request body for token refresh and logout.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// ValidateSessionRequest is the JSON request body for backend session checks.
type ValidateSessionRequest struct {
	AccessToken string `json:"access_token" validate:"required"`
}

// --- Handlers ---

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := validator.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	session, err := h.service.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, session)
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := validator.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	session, err := h.service.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, session)
}

// Refresh handles POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if err := validator.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	session, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, session)
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if err := validator.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	if err := h.service.Logout(r.Context(), req.RefreshToken); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := pkgmw.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}
	if p.IsService() {
		httputil.WriteError(w, r, apperrors.Forbidden("endpoint requires a user session"), h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, domain.Identity{
		UserID: p.UserID,
		Email:  p.Email,
		Role:   p.Role,
	})
}

// ValidateSession handles POST /internal/v1/sessions/validate. Backend
// services call it with an API key to resolve a user's access token.
func (h *AuthHandler) ValidateSession(w http.ResponseWriter, r *http.Request) {
	var req ValidateSessionRequest
	if err := validator.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	identity, err := h.service.ValidateSession(r.Context(), req.AccessToken)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			err = apperrors.InvalidToken()
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, identity)
}

// requireService rejects callers that did not authenticate with an API key.
func requireService(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := pkgmw.PrincipalFromContext(r.Context()); !ok || !p.IsService() {
			httputil.WriteErrorCode(w, r, http.StatusForbidden, "FORBIDDEN", "service API key required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
