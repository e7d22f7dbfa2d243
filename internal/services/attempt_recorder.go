package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
	pkglogger "github.com/BradenHooton/lockbox/pkg/logger"
)

// AttemptStore persists failed login attempts keyed by normalized email
type AttemptStore interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error
	CountAttemptsSince(ctx context.Context, email string, since time.Time) (int, error)
	GetAttemptsSince(ctx context.Context, email string, since time.Time) ([]*models.LoginAttempt, error)
	DeleteAttempts(ctx context.Context, email string) error
}

// LockoutEvaluator decides whether the recorded attempts lock the account
// and lifts the lockout when the attempts are cleared
type LockoutEvaluator interface {
	CheckAndLock(ctx context.Context, email string) (*models.AccountLockout, error)
	Unlock(ctx context.Context, email string) (*models.AccountLockout, error)
}

// AttemptRecorder records and counts failed logins within the attempt window
type AttemptRecorder struct {
	store     AttemptStore
	evaluator LockoutEvaluator
	policy    models.SecurityPolicy
	logger    *slog.Logger
	now       Clock
}

// NewAttemptRecorder creates a recorder. Attach the lockout engine with SetEvaluator.
func NewAttemptRecorder(store AttemptStore, policy models.SecurityPolicy, logger *slog.Logger) *AttemptRecorder {
	return &AttemptRecorder{
		store:  store,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// SetEvaluator attaches the lockout evaluation run after every recorded attempt
func (r *AttemptRecorder) SetEvaluator(evaluator LockoutEvaluator) {
	r.evaluator = evaluator
}

func (r *AttemptRecorder) SetClock(now Clock) {
	r.now = now
}

// RecordFailedAttempt stores a failed login and evaluates the lockout.
// It never fails the caller: store errors are logged and nil is returned.
// The returned lockout is non-nil only when this attempt locked the account.
func (r *AttemptRecorder) RecordFailedAttempt(ctx context.Context, email string) *models.AccountLockout {
	email = NormalizeEmail(email)
	if email == "" {
		return nil
	}

	now := r.now()
	count, err := r.store.CountAttemptsSince(ctx, email, now.Add(-r.policy.AttemptWindow))
	if err != nil {
		r.logger.Warn("failed to count recent attempts",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		count = 0
	}

	attempt := &models.LoginAttempt{
		Email:         email,
		AttemptedAt:   now,
		AttemptNumber: count + 1,
		ExpiresAt:     now.Add(2 * r.policy.AttemptWindow),
	}

	if err := r.store.RecordAttempt(ctx, attempt); err != nil {
		r.logger.Error("failed to record login attempt",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return nil
	}

	if r.evaluator == nil {
		return nil
	}

	lockout, err := r.evaluator.CheckAndLock(ctx, email)
	if err != nil {
		r.logger.Error("failed to evaluate lockout",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return nil
	}

	return lockout
}

// GetRecentFailedAttempts returns attempts newer than now-window, newest first
func (r *AttemptRecorder) GetRecentFailedAttempts(ctx context.Context, email string, window time.Duration) ([]*models.LoginAttempt, error) {
	attempts, err := r.store.GetAttemptsSince(ctx, NormalizeEmail(email), r.now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("failed to get recent attempts: %w", err)
	}
	return attempts, nil
}

// ClearFailedAttempts deletes every attempt for the email and any lockout
// they caused. The escalation ledger is kept, so a later lock still doubles.
func (r *AttemptRecorder) ClearFailedAttempts(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if err := r.store.DeleteAttempts(ctx, email); err != nil {
		return &models.PersistenceError{Op: "clear failed attempts", Err: err}
	}

	if r.evaluator == nil {
		return nil
	}
	if _, err := r.evaluator.Unlock(ctx, email); err != nil {
		return err
	}
	return nil
}
