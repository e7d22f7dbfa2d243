package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/BradenHooton/lockbox/internal/services"
	pkghttp "github.com/BradenHooton/lockbox/pkg/http"
)

// AuthServiceInterface defines the interface for the login flow
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password string, info services.LoginRequestInfo) (*services.AuthResponse, error)
}

// LockStatusReader reports the lock state shown on the login form
type LockStatusReader interface {
	IsAccountLocked(ctx context.Context, email string) models.LockStatus
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	status   LockStatusReader
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, status LockStatusReader, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		status:   status,
		ipConfig: ipConfig,
	}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=128"`
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	info := services.LoginRequestInfo{
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.Header.Get("User-Agent"),
	}

	authResp, err := h.service.Login(r.Context(), req.Email, req.Password, info)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authResp)
}

// LockStatus handles GET /auth/lock-status?email=
func (h *AuthHandler) LockStatus(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		writeValidationError(w, models.NewValidationError("email", "this field is required"))
		return
	}

	writeJSON(w, http.StatusOK, h.status.IsAccountLocked(r.Context(), email))
}
