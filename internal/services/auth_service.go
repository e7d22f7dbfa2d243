package services

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/BradenHooton/lockbox/internal/auth"
	"github.com/BradenHooton/lockbox/internal/models"
	pkglogger "github.com/BradenHooton/lockbox/pkg/logger"
)

// Authenticator checks a primary credential
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
}

// LockChecker reports the lock state before credentials are checked
type LockChecker interface {
	IsLocked(ctx context.Context, email string) models.LockStatus
}

// FailedAttemptRecorder records failed logins and clears them on success
type FailedAttemptRecorder interface {
	RecordFailedAttempt(ctx context.Context, email string) *models.AccountLockout
	ClearFailedAttempts(ctx context.Context, email string) error
}

// LoginResultRecorder appends to the login history
type LoginResultRecorder interface {
	RecordLoginResult(ctx context.Context, rec *models.LoginRecord)
}

// AuthService drives the login flow through the lockout subsystem
type AuthService struct {
	provider    Authenticator
	locks       LockChecker
	attempts    FailedAttemptRecorder
	history     LoginResultRecorder
	tm          *auth.TokenManager
	delay       *auth.FailureDelay
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	provider Authenticator,
	locks LockChecker,
	attempts FailedAttemptRecorder,
	history LoginResultRecorder,
	tm *auth.TokenManager,
	delay *auth.FailureDelay,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		provider:    provider,
		locks:       locks,
		attempts:    attempts,
		history:     history,
		tm:          tm,
		delay:       delay,
		logger:      logger,
		auditLogger: pkglogger.NewAuditLogger(logger),
	}
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// AuthResponse represents the response from a successful login
type AuthResponse struct {
	AccessToken string        `json:"access_token"`
	User        *UserResponse `json:"user"`
}

// LoginRequestInfo carries the client details recorded with each attempt
type LoginRequestInfo struct {
	IPAddress string
	UserAgent string
}

// Login authenticates a user, recording failures toward the lockout threshold
func (s *AuthService) Login(ctx context.Context, email, password string, info LoginRequestInfo) (resp *AuthResponse, err error) {
	start := time.Now()
	defer func() {
		s.delay.WaitFrom(ctx, start, err == nil)
	}()

	if email = strings.ToLower(strings.TrimSpace(email)); email == "" {
		s.logger.Warn("login attempt with empty email")
		return nil, &models.AuthError{Reason: "invalid credentials"}
	}

	if status := s.locks.IsLocked(ctx, email); status.IsLocked {
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     "login_failed",
			Email:         email,
			IPAddress:     info.IPAddress,
			UserAgent:     info.UserAgent,
			FailureReason: "account_locked",
			Success:       false,
		})
		return nil, models.NewLockoutError(status)
	}

	user, err := s.provider.Authenticate(ctx, email, password)
	if err != nil {
		return nil, s.loginFailed(ctx, email, user, err, info)
	}

	if err := s.attempts.ClearFailedAttempts(ctx, email); err != nil {
		s.logger.Warn("failed to clear attempts after login",
			slog.String("user_id", user.ID), slog.Any("error", err))
	}

	accessToken, err := s.tm.GenerateAccessToken(user.ID, user.Email, user.Role)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.history.RecordLoginResult(ctx, loginRecord(user.ID, email, true, info))
	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    user.ID,
		IPAddress: info.IPAddress,
		UserAgent: info.UserAgent,
		Success:   true,
	})

	return &AuthResponse{
		AccessToken: accessToken,
		User:        userModelToResponse(user),
	}, nil
}

func (s *AuthService) loginFailed(ctx context.Context, email string, user *models.User, err error, info LoginRequestInfo) error {
	var authErr *models.AuthError
	if !errors.As(err, &authErr) &&
		!errors.Is(err, models.ErrAccountDisabled) &&
		!errors.Is(err, models.ErrAccountSuspended) {
		s.logger.Error("login: provider failure", slog.Any("error", err))
		return models.ErrInternalServer
	}

	reason := "invalid_credentials"
	if authErr == nil {
		reason = "account_blocked"
	}
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType:     "login_failed",
		Email:         email,
		IPAddress:     info.IPAddress,
		UserAgent:     info.UserAgent,
		FailureReason: reason,
		Success:       false,
	})

	userID := ""
	if user != nil {
		userID = user.ID
	}
	s.history.RecordLoginResult(ctx, loginRecord(userID, email, false, info))

	if authErr == nil {
		return err
	}

	if lockout := s.attempts.RecordFailedAttempt(ctx, email); lockout != nil {
		return models.NewLockoutError(models.LockStatus{
			IsLocked:         true,
			UnlockAt:         &lockout.UnlockAt,
			RemainingMinutes: int(math.Ceil(lockout.Duration().Minutes())),
			LockoutCount:     lockout.LockoutCount,
		})
	}
	return err
}

func loginRecord(userID, email string, success bool, info LoginRequestInfo) *models.LoginRecord {
	return &models.LoginRecord{
		UserID:    userID,
		Email:     email,
		Success:   success,
		IPAddress: strPtr(info.IPAddress),
		UserAgent: strPtr(info.UserAgent),
	}
}

// userModelToResponse converts a user model to response DTO
func userModelToResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      user.Role,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
	}
}
