package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
	pkgauth "github.com/BradenHooton/lockbox/pkg/auth"
	pkglogger "github.com/BradenHooton/lockbox/pkg/logger"
)

// UserLookup resolves the account behind an email
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// PasswordHistory is the part of the password lifecycle recovery depends on
type PasswordHistory interface {
	ValidatePasswordStrength(password string) error
	IsPasswordReused(ctx context.Context, userID, password string) (bool, error)
	RecordPasswordChange(ctx context.Context, userID, password, method string) error
}

// KnowledgeRecoveryService manages security questions and the reset flow they unlock
type KnowledgeRecoveryService struct {
	users       UserLookup
	profiles    SecurityProfileRepository
	history     PasswordHistory
	provider    AuthProvider
	hasher      *pkgauth.SecretHasher
	policy      models.SecurityPolicy
	auditor     SecurityAuditor
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger
	now         Clock
}

// NewKnowledgeRecoveryService creates a KnowledgeRecoveryService
func NewKnowledgeRecoveryService(
	users UserLookup,
	profiles SecurityProfileRepository,
	history PasswordHistory,
	provider AuthProvider,
	hasher *pkgauth.SecretHasher,
	policy models.SecurityPolicy,
	auditor SecurityAuditor,
	logger *slog.Logger,
) *KnowledgeRecoveryService {
	return &KnowledgeRecoveryService{
		users:       users,
		profiles:    profiles,
		history:     history,
		provider:    provider,
		hasher:      hasher,
		policy:      policy,
		auditor:     auditor,
		auditLogger: pkglogger.NewAuditLogger(logger),
		logger:      logger,
		now:         time.Now,
	}
}

func (s *KnowledgeRecoveryService) SetClock(now Clock) {
	s.now = now
}

// SetupSecurityQuestions replaces the user's questions, clears the password
// hash history and enables recovery
func (s *KnowledgeRecoveryService) SetupSecurityQuestions(ctx context.Context, userID string, answers []models.SecurityAnswer) error {
	if userID == "" {
		return models.NewValidationError("user_id", "is required")
	}
	if verr := s.validateAnswers(answers); verr.HasErrors() {
		return verr
	}

	profile, err := s.profiles.GetByUserID(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		profile = models.NewUserSecurityProfile(userID)
	} else if err != nil {
		return &models.PersistenceError{Op: "load security profile", Err: err}
	}

	now := s.now()
	questions := make([]models.SecurityQuestion, 0, len(answers))
	for _, a := range answers {
		hashed, err := s.hasher.Hash(pkgauth.NormalizeSecret(a.Answer))
		if err != nil {
			return fmt.Errorf("failed to hash security answer: %w", err)
		}
		questions = append(questions, models.SecurityQuestion{
			QuestionID:   a.QuestionID,
			Question:     models.SecurityQuestionCatalog[a.QuestionID],
			HashedAnswer: hashed,
			CreatedAt:    now,
		})
	}

	profile.SecurityQuestions = questions
	profile.PasswordHashes = []string{}
	profile.AccountRecoveryEnabled = true

	if err := s.profiles.Upsert(ctx, profile); err != nil {
		return &models.PersistenceError{Op: "save security questions", Err: err}
	}

	if s.auditor != nil {
		s.auditor.Record(ctx, withActor(
			newAuditEntry(models.AuditEventTypeQuestionsSetup, models.AuditActionUpdate, true, "",
				models.AuditMetadata{"question_count": len(questions)}),
			userID, "",
		))
	}

	s.logger.Info("security questions configured",
		slog.String("user_id", userID),
		slog.Int("question_count", len(questions)),
	)
	return nil
}

func (s *KnowledgeRecoveryService) validateAnswers(answers []models.SecurityAnswer) *models.ValidationError {
	verr := &models.ValidationError{}

	distinct := make(map[string]bool, len(answers))
	for i, a := range answers {
		field := fmt.Sprintf("answers[%d]", i)
		if _, ok := models.SecurityQuestionCatalog[a.QuestionID]; !ok {
			verr.Add(field, fmt.Sprintf("unknown question %q", a.QuestionID))
		}
		if distinct[a.QuestionID] {
			verr.Add(field, fmt.Sprintf("question %q is used more than once", a.QuestionID))
		}
		distinct[a.QuestionID] = true

		if len(strings.TrimSpace(a.Answer)) < s.policy.MinSecurityAnswerLength {
			verr.Add(field, fmt.Sprintf("answer must be at least %d characters", s.policy.MinSecurityAnswerLength))
		}
	}

	if len(distinct) < s.policy.MinSecurityQuestions {
		verr.Add("answers", fmt.Sprintf("at least %d distinct questions are required", s.policy.MinSecurityQuestions))
	}
	if len(answers) > s.policy.MaxSecurityQuestions {
		verr.Add("answers", fmt.Sprintf("at most %d questions are allowed", s.policy.MaxSecurityQuestions))
	}

	return verr
}

// recoveryProfile resolves an email to a profile with recovery enabled.
// Unknown emails and disabled profiles both yield ErrRecoveryNotEnabled.
func (s *KnowledgeRecoveryService) recoveryProfile(ctx context.Context, email string) (*models.User, *models.UserSecurityProfile, error) {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil, models.ErrRecoveryNotEnabled
	}
	if err != nil {
		return nil, nil, &models.PersistenceError{Op: "lookup user", Err: err}
	}

	profile, err := s.profiles.GetByUserID(ctx, user.ID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil, models.ErrRecoveryNotEnabled
	}
	if err != nil {
		return nil, nil, &models.PersistenceError{Op: "load security profile", Err: err}
	}

	if !profile.AccountRecoveryEnabled || len(profile.SecurityQuestions) == 0 {
		return nil, nil, models.ErrRecoveryNotEnabled
	}
	return user, profile, nil
}

// GetRecoveryQuestions lists the question prompts for an email, never the answers
func (s *KnowledgeRecoveryService) GetRecoveryQuestions(ctx context.Context, email string) ([]models.SecurityQuestionPrompt, error) {
	_, profile, err := s.recoveryProfile(ctx, email)
	if err != nil {
		return nil, err
	}

	prompts := make([]models.SecurityQuestionPrompt, 0, len(profile.SecurityQuestions))
	for _, q := range profile.SecurityQuestions {
		prompts = append(prompts, models.SecurityQuestionPrompt{QuestionID: q.QuestionID, Question: q.Question})
	}
	return prompts, nil
}

// VerifySecurityQuestions reports whether enough submitted answers match the
// stored ones. Store failures return false with the error.
func (s *KnowledgeRecoveryService) VerifySecurityQuestions(ctx context.Context, email string, answers []models.SecurityAnswer) (bool, error) {
	_, profile, err := s.recoveryProfile(ctx, email)
	if err != nil {
		return false, err
	}
	return s.countCorrect(profile, answers) >= s.policy.RequiredCorrectAnswers(len(profile.SecurityQuestions)), nil
}

func (s *KnowledgeRecoveryService) countCorrect(profile *models.UserSecurityProfile, answers []models.SecurityAnswer) int {
	seen := make(map[string]bool, len(answers))
	correct := 0
	for _, a := range answers {
		if seen[a.QuestionID] {
			continue
		}
		seen[a.QuestionID] = true

		stored, ok := profile.QuestionByID(a.QuestionID)
		if !ok {
			continue
		}
		if s.hasher.Matches(stored.HashedAnswer, pkgauth.NormalizeSecret(a.Answer)) {
			correct++
		}
	}
	return correct
}

// ResetPasswordWithSecurityQuestions verifies the answers, checks the new
// password, dispatches an out-of-band reset and records the new password in
// the history ahead of the swap
func (s *KnowledgeRecoveryService) ResetPasswordWithSecurityQuestions(ctx context.Context, email string, answers []models.SecurityAnswer, newPassword string) error {
	email = NormalizeEmail(email)

	user, profile, err := s.recoveryProfile(ctx, email)
	if err != nil {
		return err
	}

	if s.countCorrect(profile, answers) < s.policy.RequiredCorrectAnswers(len(profile.SecurityQuestions)) {
		s.recordRecovery(ctx, user, false, "answers_incorrect")
		return &models.AuthError{Reason: "security answers did not match"}
	}

	if err := s.history.ValidatePasswordStrength(newPassword); err != nil {
		return err
	}

	reused, err := s.history.IsPasswordReused(ctx, user.ID, newPassword)
	if err != nil {
		return err
	}
	if reused {
		return &models.ReuseError{HistorySize: s.policy.PasswordHistorySize}
	}

	s.recordRecovery(ctx, user, true, "")

	if err := s.provider.DispatchCredentialResetMessage(ctx, email); err != nil {
		if errors.Is(err, models.ErrRateLimitExceeded) {
			return err
		}
		return fmt.Errorf("failed to dispatch password reset: %w", err)
	}

	return s.history.RecordPasswordChange(ctx, user.ID, newPassword, models.PasswordChangeMethodRecovery)
}

func (s *KnowledgeRecoveryService) recordRecovery(ctx context.Context, user *models.User, success bool, reason string) {
	s.auditLogger.LogAccountAction(ctx, models.AuditEventTypeKnowledgeRecovery, user.ID, success, map[string]string{
		"email": pkglogger.SanitizedEmail(user.Email),
	})

	if s.auditor == nil {
		return
	}
	entry := withActor(
		newAuditEntry(models.AuditEventTypeKnowledgeRecovery, models.AuditActionVerify, true, user.Email,
			models.AuditMetadata{"knowledge_verified": success}),
		user.ID, user.Email,
	)
	if !success {
		entry = withFailure(entry, reason)
	}
	s.auditor.Record(ctx, entry)
}
