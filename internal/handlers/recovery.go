package handlers

import (
	"context"
	"net/http"

	"github.com/BradenHooton/lockbox/internal/models"
)

// RecoveryService defines knowledge-based recovery
type RecoveryService interface {
	GetRecoveryQuestions(ctx context.Context, email string) ([]models.SecurityQuestionPrompt, error)
	VerifySecurityQuestions(ctx context.Context, email string, answers []models.SecurityAnswer) (bool, error)
	ResetPasswordWithSecurityQuestions(ctx context.Context, email string, answers []models.SecurityAnswer, newPassword string) error
}

// CredentialResetter completes an emailed reset
type CredentialResetter interface {
	CompleteCredentialReset(ctx context.Context, token, newPassword string) error
}

// RecoveryHandler serves the public account recovery endpoints
type RecoveryHandler struct {
	recovery RecoveryService
	resets   CredentialResetter
}

// NewRecoveryHandler creates a new RecoveryHandler
func NewRecoveryHandler(recovery RecoveryService, resets CredentialResetter) *RecoveryHandler {
	return &RecoveryHandler{recovery: recovery, resets: resets}
}

// SecurityAnswerRequest is one submitted answer
type SecurityAnswerRequest struct {
	QuestionID string `json:"question_id" validate:"required"`
	Answer     string `json:"answer" validate:"required,max=256"`
}

// RecoveryQuestionsRequest represents the request body for listing questions
type RecoveryQuestionsRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// VerifyAnswersRequest represents the request body for answer verification
type VerifyAnswersRequest struct {
	Email   string                  `json:"email" validate:"required,email"`
	Answers []SecurityAnswerRequest `json:"answers" validate:"required,min=1,catalog_size,dive"`
}

// RecoveryResetRequest represents the request body for a knowledge-based reset
type RecoveryResetRequest struct {
	Email       string                  `json:"email" validate:"required,email"`
	Answers     []SecurityAnswerRequest `json:"answers" validate:"required,min=1,catalog_size,dive"`
	NewPassword string                  `json:"new_password" validate:"required,max=128"`
}

// CompleteResetRequest represents the request body for consuming a reset token
type CompleteResetRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,max=128"`
}

type questionsResponse struct {
	Questions []models.SecurityQuestionPrompt `json:"questions"`
}

type verifyResponse struct {
	Verified bool `json:"verified"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func toAnswers(in []SecurityAnswerRequest) []models.SecurityAnswer {
	out := make([]models.SecurityAnswer, 0, len(in))
	for _, a := range in {
		out = append(out, models.SecurityAnswer{QuestionID: a.QuestionID, Answer: a.Answer})
	}
	return out
}

// Catalog handles GET /auth/security-questions/catalog
func (h *RecoveryHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, questionsResponse{Questions: models.SecurityQuestionPrompts()})
}

// Questions handles POST /auth/recovery/questions
func (h *RecoveryHandler) Questions(w http.ResponseWriter, r *http.Request) {
	var req RecoveryQuestionsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	prompts, err := h.recovery.GetRecoveryQuestions(r.Context(), req.Email)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, questionsResponse{Questions: prompts})
}

// Verify handles POST /auth/recovery/verify
func (h *RecoveryHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyAnswersRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ok, err := h.recovery.VerifySecurityQuestions(r.Context(), req.Email, toAnswers(req.Answers))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{Verified: ok})
}

// Reset handles POST /auth/recovery/reset
func (h *RecoveryHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req RecoveryResetRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	err := h.recovery.ResetPasswordWithSecurityQuestions(r.Context(), req.Email, toAnswers(req.Answers), req.NewPassword)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, messageResponse{
		Message: "Answers verified. Check your email to finish resetting your password.",
	})
}

// CompletePasswordReset handles POST /auth/password-reset/complete
func (h *RecoveryHandler) CompletePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req CompleteResetRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.resets.CompleteCredentialReset(r.Context(), req.Token, req.NewPassword); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Password has been reset."})
}
