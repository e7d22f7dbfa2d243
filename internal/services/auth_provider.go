package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
	pkgauth "github.com/BradenHooton/lockbox/pkg/auth"
	pkglogger "github.com/BradenHooton/lockbox/pkg/logger"
)

// MaxResetDispatchesPerHour caps reset messages per account
const MaxResetDispatchesPerHour = 3

// UserRepository is the credential store behind the local provider
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error
}

// PasswordResetRepository stores hashed out-of-band reset tokens
type PasswordResetRepository interface {
	Create(ctx context.Context, userID, email, tokenHash string, expiresAt time.Time) (*models.PasswordResetToken, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error)
	MarkAsUsed(ctx context.Context, id string) error
	DeleteByUserID(ctx context.Context, userID string) error
	CountCreatedSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// PendingResetChecker confirms the password presented with a reset token is
// the one vetted when the reset was requested
type PendingResetChecker interface {
	CheckPendingReset(ctx context.Context, userID, password string) error
}

// LocalAuthProvider authenticates against the users table and performs
// credential resets through emailed one-time tokens
type LocalAuthProvider struct {
	users       UserRepository
	resets      PasswordResetRepository
	email       EmailService
	hasher      *pkgauth.SecretHasher
	pending     PendingResetChecker
	tokenExpiry time.Duration
	auditor     SecurityAuditor
	logger      *slog.Logger
	now         Clock
	dummyHash   string
}

// NewLocalAuthProvider creates a LocalAuthProvider
func NewLocalAuthProvider(
	users UserRepository,
	resets PasswordResetRepository,
	email EmailService,
	hasher *pkgauth.SecretHasher,
	tokenExpiry time.Duration,
	auditor SecurityAuditor,
	logger *slog.Logger,
) *LocalAuthProvider {
	// compared against when the email is unknown so both paths cost one bcrypt run
	dummy, _ := hasher.Hash("lockbox-unknown-account")

	return &LocalAuthProvider{
		users:       users,
		resets:      resets,
		email:       email,
		hasher:      hasher,
		tokenExpiry: tokenExpiry,
		auditor:     auditor,
		logger:      logger,
		now:         time.Now,
		dummyHash:   dummy,
	}
}

func (p *LocalAuthProvider) SetClock(now Clock) {
	p.now = now
}

// SetPendingResetChecker attaches the check run before a reset token is spent
func (p *LocalAuthProvider) SetPendingResetChecker(pending PendingResetChecker) {
	p.pending = pending
}

// Authenticate checks an email/password pair and the account state. A known
// account is returned alongside a credential or state error so the failure
// can be attributed to it.
func (p *LocalAuthProvider) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := p.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			p.hasher.Matches(p.dummyHash, password)
			return nil, &models.AuthError{Reason: "invalid credentials"}
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	if !p.hasher.Matches(user.PasswordHash, password) {
		return user, &models.AuthError{Reason: "invalid credentials"}
	}

	if err := validateAccountState(user); err != nil {
		return user, err
	}

	return user, nil
}

// Reauthenticate confirms the caller still knows their current password
func (p *LocalAuthProvider) Reauthenticate(ctx context.Context, identity models.Identity, currentSecret string) error {
	user, err := p.users.GetByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &models.AuthError{Reason: "account not found"}
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	if !p.hasher.Matches(user.PasswordHash, currentSecret) {
		return &models.AuthError{Reason: "current password is incorrect"}
	}
	return nil
}

// UpdateCredential replaces the stored credential hash
func (p *LocalAuthProvider) UpdateCredential(ctx context.Context, identity models.Identity, newSecret string) error {
	hash, err := p.hasher.Hash(newSecret)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := p.users.UpdatePassword(ctx, identity.UserID, hash, p.now()); err != nil {
		return &models.PersistenceError{Op: "update credential", Err: err}
	}
	return nil
}

// DispatchCredentialResetMessage emails a one-time reset link. Unknown emails
// succeed silently.
func (p *LocalAuthProvider) DispatchCredentialResetMessage(ctx context.Context, email string) error {
	email = NormalizeEmail(email)

	user, err := p.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			p.logger.Info("password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("failed to get user by email: %w", err)
	}

	now := p.now()
	recent, err := p.resets.CountCreatedSince(ctx, user.ID, now.Add(-time.Hour))
	if err != nil {
		return fmt.Errorf("failed to check reset rate: %w", err)
	}
	if recent >= MaxResetDispatchesPerHour {
		p.logger.Warn("password reset rate limit reached", slog.String("user_id", user.ID))
		return models.ErrRateLimitExceeded
	}

	token, err := pkgauth.GenerateToken()
	if err != nil {
		return err
	}

	expiresAt := now.Add(p.tokenExpiry)
	if _, err := p.resets.Create(ctx, user.ID, user.Email, pkgauth.HashToken(token), expiresAt); err != nil {
		return &models.PersistenceError{Op: "store reset token", Err: err}
	}

	if err := p.email.SendPasswordResetEmail(ctx, user.Email, token, expiresAt); err != nil {
		return err
	}

	p.logger.Info("password reset dispatched",
		slog.String("user_id", user.ID),
		slog.String("email", pkglogger.SanitizedEmail(user.Email)),
	)
	return nil
}

// CompleteCredentialReset consumes a reset token and applies the new password.
// History was already updated when the reset was requested, so the password
// must be the one vetted then; anything else is checked against the history
// and refused.
func (p *LocalAuthProvider) CompleteCredentialReset(ctx context.Context, token, newPassword string) error {
	if err := strengthError("new_password", newPassword); err != nil {
		return err
	}

	reset, err := p.resets.GetByTokenHash(ctx, pkgauth.HashToken(token))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrResetTokenInvalid
		}
		return fmt.Errorf("failed to get reset token: %w", err)
	}

	if !reset.IsUsable(p.now()) {
		p.recordReset(ctx, reset, "token_unusable")
		return models.ErrResetTokenInvalid
	}

	if err := p.checkPendingReset(ctx, reset, newPassword); err != nil {
		return err
	}

	if err := p.resets.MarkAsUsed(ctx, reset.ID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrResetTokenInvalid
		}
		return fmt.Errorf("failed to consume reset token: %w", err)
	}

	if err := p.UpdateCredential(ctx, models.Identity{UserID: reset.UserID, Email: reset.Email}, newPassword); err != nil {
		return err
	}

	if err := p.resets.DeleteByUserID(ctx, reset.UserID); err != nil {
		p.logger.Warn("failed to invalidate remaining reset tokens",
			slog.String("user_id", reset.UserID), slog.Any("error", err))
	}

	p.recordReset(ctx, reset, "")
	return nil
}

func (p *LocalAuthProvider) checkPendingReset(ctx context.Context, reset *models.PasswordResetToken, newPassword string) error {
	if p.pending == nil {
		return nil
	}

	if err := p.pending.CheckPendingReset(ctx, reset.UserID, newPassword); err != nil {
		var reuse *models.ReuseError
		if errors.As(err, &reuse) {
			p.recordReset(ctx, reset, "reused")
		} else {
			p.recordReset(ctx, reset, "password_mismatch")
		}
		return err
	}
	return nil
}

func (p *LocalAuthProvider) recordReset(ctx context.Context, reset *models.PasswordResetToken, failure string) {
	if p.auditor == nil {
		return
	}
	entry := withActor(
		newAuditEntry(models.AuditEventTypePasswordReset, models.AuditActionUpdate, true, reset.Email, nil),
		reset.UserID, reset.Email,
	)
	if failure != "" {
		entry = withFailure(entry, failure)
	}
	p.auditor.Record(ctx, entry)
}

// validateAccountState checks if user account is in valid state for authentication
func validateAccountState(user *models.User) error {
	switch user.Status {
	case models.UserStatusDisabled:
		return models.ErrAccountDisabled
	case models.UserStatusSuspended:
		return models.ErrAccountSuspended
	case models.UserStatusActive:
		return nil
	default:
		return fmt.Errorf("unknown account status: %s", user.Status)
	}
}
