package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
	pkglogger "github.com/BradenHooton/lockbox/pkg/logger"
)

const failedLoginReportWindow = 24 * time.Hour

// LoginHistoryRepository is the append-only login history
type LoginHistoryRepository interface {
	Append(ctx context.Context, rec *models.LoginRecord) error
	GetLastSuccessfulLogin(ctx context.Context, userID string) (*time.Time, error)
	CountFailedSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// LoginToucher stamps login times on the security profile
type LoginToucher interface {
	TouchLogin(ctx context.Context, userID string, at time.Time, success bool) error
}

// SecurityStatusService composes attempt counts, lock state and login history
// for the login UI and the admin dashboard
type SecurityStatusService struct {
	recorder *AttemptRecorder
	engine   *LockoutEngine
	history  LoginHistoryRepository
	profiles LoginToucher
	policy   models.SecurityPolicy
	logger   *slog.Logger
	now      Clock
}

// NewSecurityStatusService creates a SecurityStatusService
func NewSecurityStatusService(
	recorder *AttemptRecorder,
	engine *LockoutEngine,
	history LoginHistoryRepository,
	profiles LoginToucher,
	policy models.SecurityPolicy,
	logger *slog.Logger,
) *SecurityStatusService {
	return &SecurityStatusService{
		recorder: recorder,
		engine:   engine,
		history:  history,
		profiles: profiles,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *SecurityStatusService) SetClock(now Clock) {
	s.now = now
}

// IsAccountLocked is the login UI view of the lock state
func (s *SecurityStatusService) IsAccountLocked(ctx context.Context, email string) models.LockStatus {
	return s.engine.IsLocked(ctx, email)
}

// GetAccountSecurityStatus never fails: unreadable parts are reported empty
func (s *SecurityStatusService) GetAccountSecurityStatus(ctx context.Context, email string) *models.AccountSecurityStatus {
	email = NormalizeEmail(email)
	status := &models.AccountSecurityStatus{Email: email}

	attempts, err := s.recorder.GetRecentFailedAttempts(ctx, email, s.policy.AttemptWindow)
	if err != nil {
		s.logger.Warn("security status: failed to read attempts",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
	}
	status.RecentFailedAttempts = len(attempts)

	lock := s.engine.IsLocked(ctx, email)
	status.IsLocked = lock.IsLocked

	if lock.IsLocked {
		lockout, err := s.engine.GetLockout(ctx, email)
		if err == nil {
			status.Lockout = lockout
		}
	}

	return status
}

// GetLastLoginInfo reports the last successful login and the failures in the past 24 hours
func (s *SecurityStatusService) GetLastLoginInfo(ctx context.Context, userID string) (*models.LastLoginInfo, error) {
	if userID == "" {
		return nil, models.NewValidationError("user_id", "is required")
	}

	info := &models.LastLoginInfo{}

	last, err := s.history.GetLastSuccessfulLogin(ctx, userID)
	if err != nil {
		s.logger.Warn("last login: failed to read history", slog.String("user_id", userID), slog.Any("error", err))
	} else {
		info.LastSuccessfulLogin = last
	}

	failed, err := s.history.CountFailedSince(ctx, userID, s.now().Add(-failedLoginReportWindow))
	if err != nil {
		s.logger.Warn("last login: failed to count failures", slog.String("user_id", userID), slog.Any("error", err))
	} else {
		info.RecentFailedAttempts = failed
	}

	return info, nil
}

// RecordLoginResult appends to the login history and stamps the profile; best effort
func (s *SecurityStatusService) RecordLoginResult(ctx context.Context, rec *models.LoginRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	rec.Email = NormalizeEmail(rec.Email)

	if err := s.history.Append(ctx, rec); err != nil {
		s.logger.Error("failed to append login record",
			slog.String("email", pkglogger.SanitizedEmail(rec.Email)),
			slog.Any("error", err))
	}

	if rec.UserID == "" || s.profiles == nil {
		return
	}
	if err := s.profiles.TouchLogin(ctx, rec.UserID, rec.Timestamp, rec.Success); err != nil {
		s.logger.Warn("failed to stamp login on security profile",
			slog.String("user_id", rec.UserID),
			slog.Any("error", err))
	}
}
