package handlers

import (
	"context"
	"net/http"

	"github.com/BradenHooton/lockbox/internal/auth"
	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/BradenHooton/lockbox/internal/services"
	pkghttp "github.com/BradenHooton/lockbox/pkg/http"
)

// UserService defines account lookup
type UserService interface {
	GetUserByID(ctx context.Context, id string) (*services.UserResponse, error)
}

// PasswordService defines the password lifecycle operations exposed to the account owner
type PasswordService interface {
	ChangePassword(ctx context.Context, identity models.Identity, currentPassword, newPassword string) error
	CanChangePassword(ctx context.Context, userID string) models.PasswordChangeEligibility
}

// SecurityQuestionService configures recovery questions
type SecurityQuestionService interface {
	SetupSecurityQuestions(ctx context.Context, userID string, answers []models.SecurityAnswer) error
}

// LastLoginReader reports recent login history
type LastLoginReader interface {
	GetLastLoginInfo(ctx context.Context, userID string) (*models.LastLoginInfo, error)
}

// UserHandler serves the /me endpoints for the authenticated account
type UserHandler struct {
	users     UserService
	passwords PasswordService
	questions SecurityQuestionService
	logins    LastLoginReader
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users UserService, passwords PasswordService, questions SecurityQuestionService, logins LastLoginReader) *UserHandler {
	return &UserHandler{
		users:     users,
		passwords: passwords,
		questions: questions,
		logins:    logins,
	}
}

// ChangePasswordRequest represents the request body for a password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=128"`
	NewPassword     string `json:"new_password" validate:"required,max=128"`
}

// SetupQuestionsRequest represents the request body for configuring recovery questions
type SetupQuestionsRequest struct {
	Answers []SecurityAnswerRequest `json:"answers" validate:"required,min=1,catalog_size,dive"`
}

// Me handles GET /me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	user, err := h.users.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// ChangePassword handles POST /me/password
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req ChangePasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.passwords.ChangePassword(r.Context(), claims.Identity(), req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Password changed."})
}

// PasswordEligibility handles GET /me/password/eligibility
func (h *UserHandler) PasswordEligibility(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	writeJSON(w, http.StatusOK, h.passwords.CanChangePassword(r.Context(), claims.UserID))
}

// SetupSecurityQuestions handles PUT /me/security-questions
func (h *UserHandler) SetupSecurityQuestions(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req SetupQuestionsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.questions.SetupSecurityQuestions(r.Context(), claims.UserID, toAnswers(req.Answers)); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LastLogin handles GET /me/last-login
func (h *UserHandler) LastLogin(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	info, err := h.logins.GetLastLoginInfo(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, info)
}
