package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
	pkgauth "github.com/BradenHooton/lockbox/pkg/auth"
	pkglogger "github.com/BradenHooton/lockbox/pkg/logger"
)

// SecurityProfileRepository stores one security profile per user
type SecurityProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.UserSecurityProfile, error)
	Upsert(ctx context.Context, profile *models.UserSecurityProfile) error
}

// AuthProvider owns the credential itself
type AuthProvider interface {
	Reauthenticate(ctx context.Context, identity models.Identity, currentSecret string) error
	UpdateCredential(ctx context.Context, identity models.Identity, newSecret string) error
	DispatchCredentialResetMessage(ctx context.Context, email string) error
}

// PasswordLifecycleService enforces strength, minimum age and reuse policy on
// password changes and keeps the per-user password history
type PasswordLifecycleService struct {
	profiles    SecurityProfileRepository
	provider    AuthProvider
	hasher      *pkgauth.SecretHasher
	policy      models.SecurityPolicy
	auditor     SecurityAuditor
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger
	now         Clock
}

// NewPasswordLifecycleService creates a PasswordLifecycleService
func NewPasswordLifecycleService(
	profiles SecurityProfileRepository,
	provider AuthProvider,
	hasher *pkgauth.SecretHasher,
	policy models.SecurityPolicy,
	auditor SecurityAuditor,
	logger *slog.Logger,
) *PasswordLifecycleService {
	return &PasswordLifecycleService{
		profiles:    profiles,
		provider:    provider,
		hasher:      hasher,
		policy:      policy,
		auditor:     auditor,
		auditLogger: pkglogger.NewAuditLogger(logger),
		logger:      logger,
		now:         time.Now,
	}
}

func (s *PasswordLifecycleService) SetClock(now Clock) {
	s.now = now
}

// ValidatePasswordStrength returns a ValidationError listing every failed rule
func (s *PasswordLifecycleService) ValidatePasswordStrength(password string) error {
	return strengthError("new_password", password)
}

func strengthError(field, password string) error {
	err := pkgauth.ValidatePassword(password)
	if err == nil {
		return nil
	}

	var pve *pkgauth.PasswordValidationError
	if errors.As(err, &pve) {
		return models.NewValidationError(field, pve.Errors...)
	}
	return models.NewValidationError(field, err.Error())
}

// CanChangePassword is purely time based on the last recorded change.
// An unreadable profile allows the change.
func (s *PasswordLifecycleService) CanChangePassword(ctx context.Context, userID string) models.PasswordChangeEligibility {
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("password eligibility: failed to read profile, allowing",
				slog.String("user_id", userID), slog.Any("error", err))
		}
		return models.PasswordChangeEligibility{Allowed: true}
	}

	if profile.LastPasswordChange == nil {
		return models.PasswordChangeEligibility{Allowed: true}
	}

	elapsed := s.now().Sub(*profile.LastPasswordChange)
	if elapsed >= s.policy.MinPasswordChangeInterval {
		return models.PasswordChangeEligibility{Allowed: true}
	}

	hours := int(math.Ceil((s.policy.MinPasswordChangeInterval - elapsed).Hours()))
	tooSoon := &models.TooSoonError{HoursRemaining: hours}
	return models.PasswordChangeEligibility{
		Allowed:        false,
		Reason:         tooSoon.Error(),
		HoursRemaining: hours,
	}
}

// IsPasswordReused compares the normalized password against the stored history
func (s *PasswordLifecycleService) IsPasswordReused(ctx context.Context, userID, password string) (bool, error) {
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &models.PersistenceError{Op: "read password history", Err: err}
	}

	return s.hasher.MatchesAny(profile.PasswordHashes, pkgauth.NormalizeSecret(password)), nil
}

// CheckPendingReset accepts password only if it is the one a knowledge
// recovery vetted and pushed onto the history, and no other change has
// happened since. A password from the history is refused as reuse; any other
// password is refused as a mismatch.
func (s *PasswordLifecycleService) CheckPendingReset(ctx context.Context, userID, password string) error {
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return models.NewValidationError("new_password", "no recovery request is pending")
	}
	if err != nil {
		return &models.PersistenceError{Op: "read password history", Err: err}
	}

	normalized := pkgauth.NormalizeSecret(password)
	changes := profile.PasswordChangeHistory
	pending := len(changes) > 0 && changes[len(changes)-1].Method == models.PasswordChangeMethodRecovery &&
		len(profile.PasswordHashes) > 0
	if pending && s.hasher.Matches(profile.PasswordHashes[0], normalized) {
		return nil
	}

	if s.hasher.MatchesAny(profile.PasswordHashes, normalized) {
		return &models.ReuseError{HistorySize: s.policy.PasswordHistorySize}
	}
	return models.NewValidationError("new_password", "must match the password submitted with the recovery request")
}

// ChangePassword validates strength, age and reuse, re-authenticates the
// caller, applies the credential and records it in the history
func (s *PasswordLifecycleService) ChangePassword(ctx context.Context, identity models.Identity, currentPassword, newPassword string) error {
	if err := s.ValidatePasswordStrength(newPassword); err != nil {
		return err
	}

	if eligibility := s.CanChangePassword(ctx, identity.UserID); !eligibility.Allowed {
		s.recordChange(ctx, identity, false, "too_soon")
		return &models.TooSoonError{HoursRemaining: eligibility.HoursRemaining}
	}

	reused, err := s.IsPasswordReused(ctx, identity.UserID, newPassword)
	if err != nil {
		s.logger.Warn("password reuse check unavailable, continuing",
			slog.String("user_id", identity.UserID), slog.Any("error", err))
	}
	if reused {
		s.recordChange(ctx, identity, false, "reused")
		return &models.ReuseError{HistorySize: s.policy.PasswordHistorySize}
	}

	if err := s.provider.Reauthenticate(ctx, identity, currentPassword); err != nil {
		s.recordChange(ctx, identity, false, "reauthentication_failed")
		return asAuthError(err, "current password is incorrect")
	}

	if err := s.provider.UpdateCredential(ctx, identity, newPassword); err != nil {
		s.recordChange(ctx, identity, false, "update_failed")
		return fmt.Errorf("failed to update credential: %w", err)
	}

	if err := s.RecordPasswordChange(ctx, identity.UserID, newPassword, models.PasswordChangeMethodChange); err != nil {
		return err
	}

	s.recordChange(ctx, identity, true, "")
	return nil
}

// RecordPasswordChange pushes the password onto the history and stamps the
// change. This is the primary write of a change flow and surfaces PersistenceError.
func (s *PasswordLifecycleService) RecordPasswordChange(ctx context.Context, userID, password, method string) error {
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		profile = models.NewUserSecurityProfile(userID)
	} else if err != nil {
		return &models.PersistenceError{Op: "load security profile", Err: err}
	}

	hash, err := s.hasher.Hash(pkgauth.NormalizeSecret(password))
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	profile.PushPasswordHash(hash, s.policy.PasswordHistorySize)
	profile.LastPasswordChange = &now
	profile.AppendPasswordChange(models.PasswordChange{ChangedAt: now, Method: method}, s.policy.PasswordChangeHistorySize)

	if err := s.profiles.Upsert(ctx, profile); err != nil {
		return &models.PersistenceError{Op: "save password history", Err: err}
	}
	return nil
}

func (s *PasswordLifecycleService) recordChange(ctx context.Context, identity models.Identity, success bool, reason string) {
	s.auditLogger.LogPasswordChange(ctx, identity.UserID, models.PasswordChangeMethodChange, success, reason)

	if s.auditor == nil {
		return
	}
	entry := withActor(
		newAuditEntry(models.AuditEventTypePasswordChange, models.AuditActionUpdate, true, identity.Email, nil),
		identity.UserID, identity.Email,
	)
	if !success {
		entry = withFailure(entry, reason)
	}
	s.auditor.Record(ctx, entry)
}

// asAuthError keeps rate errors and existing AuthErrors intact and wraps the rest
func asAuthError(err error, reason string) error {
	if errors.Is(err, models.ErrRateLimitExceeded) {
		return err
	}
	var authErr *models.AuthError
	if errors.As(err, &authErr) {
		return err
	}
	return &models.AuthError{Reason: reason, Err: err}
}
