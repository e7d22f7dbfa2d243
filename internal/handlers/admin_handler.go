package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/BradenHooton/lockbox/internal/auth"
	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/BradenHooton/lockbox/internal/services"
	pkghttp "github.com/BradenHooton/lockbox/pkg/http"
)

// AdminServiceInterface defines the admin override contract.
type AdminServiceInterface interface {
	AdminUnlockAccount(ctx context.Context, email, adminEmail string) bool
	GetRecentActivity(ctx context.Context, limit int) (*services.DashboardActivityResponse, error)
}

// SecurityStatusReader reports the administrative view of an email
type SecurityStatusReader interface {
	GetAccountSecurityStatus(ctx context.Context, email string) *models.AccountSecurityStatus
}

// AdminHandler handles admin security HTTP requests.
type AdminHandler struct {
	service AdminServiceInterface
	status  SecurityStatusReader
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(service AdminServiceInterface, status SecurityStatusReader) *AdminHandler {
	return &AdminHandler{service: service, status: status}
}

// UnlockRequest represents the request body for an admin unlock
type UnlockRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type unlockResponse struct {
	Unlocked bool `json:"unlocked"`
}

// GetSecurityStatus handles GET /admin/security/status?email=
func (h *AdminHandler) GetSecurityStatus(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		writeValidationError(w, models.NewValidationError("email", "this field is required"))
		return
	}

	writeJSON(w, http.StatusOK, h.status.GetAccountSecurityStatus(r.Context(), email))
}

// Unlock handles POST /admin/security/unlock
func (h *AdminHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req UnlockRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if !h.service.AdminUnlockAccount(r.Context(), req.Email, claims.Email) {
		pkghttp.WriteInternalError(w, "Failed to unlock account")
		return
	}

	writeJSON(w, http.StatusOK, unlockResponse{Unlocked: true})
}

// GetRecentActivity handles GET /admin/security/activity
// Accepts optional query param ?limit=N (1–20, default 20).
func (h *AdminHandler) GetRecentActivity(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 20 {
			limit = n
		}
	}

	activity, err := h.service.GetRecentActivity(r.Context(), limit)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to retrieve recent activity")
		return
	}

	writeJSON(w, http.StatusOK, activity)
}
