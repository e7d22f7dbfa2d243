package handlers

import (
	"errors"
	"net/http"

	"github.com/BradenHooton/lockbox/internal/models"
	pkghttp "github.com/BradenHooton/lockbox/pkg/http"
)

// validationErrorResponse lists every failed rule
type validationErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Fields  []models.FieldError `json:"fields"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	pkghttp.WriteJSON(w, status, body)
}

func writeValidationError(w http.ResponseWriter, verr *models.ValidationError) {
	writeJSON(w, http.StatusBadRequest, validationErrorResponse{
		Error:   "validation_failed",
		Message: "request failed validation",
		Fields:  verr.Fields,
	})
}

// writeServiceError maps domain errors onto HTTP responses
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		verr    *models.ValidationError
		lockErr *models.LockoutError
	)

	switch {
	case errors.As(err, &verr):
		writeValidationError(w, verr)
	case errors.As(err, &lockErr):
		pkghttp.WriteLocked(w, lockErr.Error(), lockErr.UnlockAt, lockErr.RemainingMinutes)
	case errors.Is(err, models.ErrAccountLocked):
		pkghttp.WriteLocked(w, "account is temporarily locked", nil, 0)
	case errors.Is(err, models.ErrPasswordReused):
		pkghttp.WriteError(w, http.StatusConflict, "password_reused", err.Error())
	case errors.Is(err, models.ErrPasswordChangeTooSoon):
		pkghttp.WriteError(w, http.StatusTooManyRequests, "password_change_too_soon", err.Error())
	case errors.Is(err, models.ErrRateLimitExceeded):
		pkghttp.WriteTooManyRequests(w, "too many requests, try again later")
	case errors.Is(err, models.ErrResetTokenInvalid):
		pkghttp.WriteBadRequest(w, "reset token is invalid or expired")
	case errors.Is(err, models.ErrRecoveryNotEnabled):
		pkghttp.WriteNotFound(w, "account recovery is not available")
	case errors.Is(err, models.ErrAccountDisabled),
		errors.Is(err, models.ErrAccountSuspended):
		// same answer as bad credentials to prevent user enumeration
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "resource not found")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "resource already exists")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
