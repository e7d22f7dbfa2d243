package services

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
	pkglogger "github.com/BradenHooton/lockbox/pkg/logger"
)

// LockoutStore holds the active lockout per email plus the escalation ledger.
// LockIfThresholdReached must count, lock and clear attempts atomically per email,
// and must not escalate while a lockout is still running.
type LockoutStore interface {
	GetLockout(ctx context.Context, email string) (*models.AccountLockout, error)
	LockIfThresholdReached(ctx context.Context, email string, since time.Time, threshold int, next models.LockoutFunc) (*models.AccountLockout, error)
	DeleteLockout(ctx context.Context, email string) error
	DeleteLockoutIfExpired(ctx context.Context, email string, now time.Time) (bool, error)
}

// LockoutEngine decides when an email is locked and for how long.
// Each lock for an email lasts min(base * multiplier^previous, max).
type LockoutEngine struct {
	store       LockoutStore
	policy      models.SecurityPolicy
	auditor     SecurityAuditor
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger
	now         Clock
}

// NewLockoutEngine creates a lockout engine
func NewLockoutEngine(store LockoutStore, policy models.SecurityPolicy, auditor SecurityAuditor, logger *slog.Logger) *LockoutEngine {
	return &LockoutEngine{
		store:       store,
		policy:      policy,
		auditor:     auditor,
		auditLogger: pkglogger.NewAuditLogger(logger),
		logger:      logger,
		now:         time.Now,
	}
}

func (e *LockoutEngine) SetClock(now Clock) {
	e.now = now
}

// LockoutDuration is the penalty for a lock preceded by previousLockoutCount locks
func (e *LockoutEngine) LockoutDuration(previousLockoutCount int) time.Duration {
	return e.policy.LockoutDuration(previousLockoutCount)
}

// CheckAndLock locks the email when its attempts in the window reach the threshold.
// It returns the new lockout, or nil when the threshold was not reached.
func (e *LockoutEngine) CheckAndLock(ctx context.Context, email string) (*models.AccountLockout, error) {
	email = NormalizeEmail(email)
	now := e.now()

	lockout, err := e.store.LockIfThresholdReached(ctx, email, now.Add(-e.policy.AttemptWindow),
		e.policy.MaxFailedAttempts, e.nextLockout(now, 0))
	if err != nil {
		return nil, &models.PersistenceError{Op: "check and lock", Err: err}
	}

	if lockout != nil {
		e.onLocked(ctx, lockout)
	}
	return lockout, nil
}

// Lock locks the email with the usual escalation. A lockout already in force
// is returned unchanged.
func (e *LockoutEngine) Lock(ctx context.Context, email string, failedAttempts int) (*models.AccountLockout, error) {
	email = NormalizeEmail(email)
	now := e.now()

	lockout, err := e.store.LockIfThresholdReached(ctx, email, now.Add(-e.policy.AttemptWindow), 0,
		e.nextLockout(now, failedAttempts))
	if err != nil {
		return nil, &models.PersistenceError{Op: "lock account", Err: err}
	}
	if lockout == nil {
		current, err := e.store.GetLockout(ctx, email)
		if err != nil {
			return nil, &models.PersistenceError{Op: "lock account", Err: err}
		}
		return current, nil
	}

	e.onLocked(ctx, lockout)
	return lockout, nil
}

func (e *LockoutEngine) nextLockout(now time.Time, failedOverride int) models.LockoutFunc {
	return func(previous, counted int) *models.AccountLockout {
		failed := counted
		if failedOverride > 0 {
			failed = failedOverride
		}
		return &models.AccountLockout{
			LockedAt:       now,
			UnlockAt:       now.Add(e.policy.LockoutDuration(previous)),
			FailedAttempts: failed,
			LockoutCount:   previous + 1,
		}
	}
}

func (e *LockoutEngine) onLocked(ctx context.Context, lockout *models.AccountLockout) {
	e.logger.Warn("account locked",
		slog.String("email", pkglogger.SanitizedEmail(lockout.Email)),
		slog.Int("lockout_count", lockout.LockoutCount),
		slog.Duration("duration", lockout.Duration()))
	e.auditLogger.LogLockout(ctx, models.AuditEventTypeAccountLocked, lockout.Email, lockout.LockoutCount, lockout.UnlockAt)

	if e.auditor != nil {
		e.auditor.Record(ctx, newAuditEntry(models.AuditEventTypeAccountLocked, models.AuditActionCreate,
			true, lockout.Email, models.NewLockoutMetadata(lockout)))
	}
}

// IsLocked reports the lock state. An expired lockout is removed and reported
// unlocked. If the state cannot be read the policy decides: open by default,
// closed when LockoutFailClosed is set.
func (e *LockoutEngine) IsLocked(ctx context.Context, email string) models.LockStatus {
	email = NormalizeEmail(email)

	lockout, err := e.store.GetLockout(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		return models.LockStatus{}
	}
	if err != nil {
		return e.unreadable(email, err)
	}

	now := e.now()
	if lockout.IsExpired(now) {
		deleted, err := e.store.DeleteLockoutIfExpired(ctx, email, now)
		if err != nil {
			e.logger.Warn("failed to remove expired lockout",
				slog.String("email", pkglogger.SanitizedEmail(email)),
				slog.Any("error", err))
		}
		if deleted {
			e.auditLogger.LogLockout(ctx, models.AuditEventTypeAccountUnlocked, email, lockout.LockoutCount, time.Time{})
		}
		return models.LockStatus{}
	}

	unlockAt := lockout.UnlockAt
	return models.LockStatus{
		IsLocked:         true,
		UnlockAt:         &unlockAt,
		RemainingMinutes: int(math.Ceil(unlockAt.Sub(now).Minutes())),
		LockoutCount:     lockout.LockoutCount,
	}
}

func (e *LockoutEngine) unreadable(email string, err error) models.LockStatus {
	if e.policy.LockoutFailClosed {
		e.logger.Error("lock state unavailable, failing closed",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return models.LockStatus{IsLocked: true}
	}

	e.logger.Warn("lock state unavailable, failing open",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.Any("error", err))
	return models.LockStatus{}
}

// GetLockout returns the stored lockout record for display, or models.ErrNotFound
func (e *LockoutEngine) GetLockout(ctx context.Context, email string) (*models.AccountLockout, error) {
	return e.store.GetLockout(ctx, NormalizeEmail(email))
}

// Unlock deletes the active lockout and returns it, or nil when none existed.
// The escalation ledger is kept.
func (e *LockoutEngine) Unlock(ctx context.Context, email string) (*models.AccountLockout, error) {
	email = NormalizeEmail(email)

	prior, err := e.store.GetLockout(ctx, email)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		// deletion below still clears the lock
		e.logger.Warn("failed to read lockout before unlock",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
	}
	if err != nil {
		prior = nil
	}

	if err := e.store.DeleteLockout(ctx, email); err != nil {
		return nil, &models.PersistenceError{Op: "delete lockout", Err: err}
	}

	if prior != nil {
		e.auditLogger.LogLockout(ctx, models.AuditEventTypeAccountUnlocked, email, prior.LockoutCount, time.Time{})
	}
	return prior, nil
}
