package models

import (
	"fmt"
	"math"
	"time"
)

// SecurityPolicy is the single source of truth for lockout, password and
// recovery thresholds. It is built once from configuration and passed by value.
type SecurityPolicy struct {
	MaxFailedAttempts     int
	BaseLockout           time.Duration
	MaxLockout            time.Duration
	AttemptWindow         time.Duration
	ProgressiveMultiplier float64

	PasswordHistorySize       int
	PasswordChangeHistorySize int
	MinPasswordChangeInterval time.Duration

	MinSecurityQuestions      int
	MaxSecurityQuestions      int
	MinSecurityAnswerLength   int
	RecoveryMinCorrectAnswers int

	// LockoutFailClosed reports accounts as locked when the lock state cannot be read
	LockoutFailClosed bool

	SecretHashCost int
}

// DefaultSecurityPolicy mirrors the documented defaults
func DefaultSecurityPolicy() SecurityPolicy {
	return SecurityPolicy{
		MaxFailedAttempts:         5,
		BaseLockout:               15 * time.Minute,
		MaxLockout:                120 * time.Minute,
		AttemptWindow:             60 * time.Minute,
		ProgressiveMultiplier:     2,
		PasswordHistorySize:       5,
		PasswordChangeHistorySize: 10,
		MinPasswordChangeInterval: 24 * time.Hour,
		MinSecurityQuestions:      3,
		MaxSecurityQuestions:      5,
		MinSecurityAnswerLength:   5,
		RecoveryMinCorrectAnswers: 2,
		LockoutFailClosed:         false,
		SecretHashCost:            12,
	}
}

// LockoutDuration is min(base * multiplier^previous, max)
func (p SecurityPolicy) LockoutDuration(previousLockoutCount int) time.Duration {
	if previousLockoutCount < 0 {
		previousLockoutCount = 0
	}
	factor := math.Pow(p.ProgressiveMultiplier, float64(previousLockoutCount))
	minutes := p.BaseLockout.Minutes() * factor
	if math.IsInf(minutes, 0) || minutes >= p.MaxLockout.Minutes() {
		return p.MaxLockout
	}
	return time.Duration(minutes * float64(time.Minute))
}

// RequiredCorrectAnswers caps the recovery threshold at the number of stored questions
func (p SecurityPolicy) RequiredCorrectAnswers(stored int) int {
	if p.RecoveryMinCorrectAnswers > stored {
		return stored
	}
	return p.RecoveryMinCorrectAnswers
}

// Validate rejects incoherent policies
func (p SecurityPolicy) Validate() error {
	switch {
	case p.MaxFailedAttempts < 1:
		return fmt.Errorf("MAX_FAILED_ATTEMPTS must be at least 1 (got %d)", p.MaxFailedAttempts)
	case p.BaseLockout <= 0:
		return fmt.Errorf("BASE_LOCKOUT_MINUTES must be positive")
	case p.MaxLockout < p.BaseLockout:
		return fmt.Errorf("MAX_LOCKOUT_MINUTES must be >= BASE_LOCKOUT_MINUTES")
	case p.AttemptWindow <= 0:
		return fmt.Errorf("ATTEMPT_WINDOW_MINUTES must be positive")
	case p.ProgressiveMultiplier < 1:
		return fmt.Errorf("PROGRESSIVE_MULTIPLIER must be >= 1 (got %g)", p.ProgressiveMultiplier)
	case p.PasswordHistorySize < 1:
		return fmt.Errorf("PASSWORD_HISTORY_SIZE must be at least 1")
	case p.PasswordChangeHistorySize < 1:
		return fmt.Errorf("PASSWORD_CHANGE_HISTORY_SIZE must be at least 1")
	case p.MinPasswordChangeInterval < 0:
		return fmt.Errorf("MIN_PASSWORD_CHANGE_INTERVAL_HOURS must not be negative")
	case p.MinSecurityQuestions < 1 || p.MinSecurityQuestions > p.MaxSecurityQuestions:
		return fmt.Errorf("security question bounds are invalid (min %d, max %d)", p.MinSecurityQuestions, p.MaxSecurityQuestions)
	case p.MaxSecurityQuestions > len(SecurityQuestionCatalog):
		return fmt.Errorf("MAX_SECURITY_QUESTIONS exceeds the question catalog size %d", len(SecurityQuestionCatalog))
	case p.MinSecurityAnswerLength < 1:
		return fmt.Errorf("MIN_SECURITY_ANSWER_LENGTH must be at least 1")
	case p.RecoveryMinCorrectAnswers < 1 || p.RecoveryMinCorrectAnswers > p.MinSecurityQuestions:
		return fmt.Errorf("RECOVERY_MIN_CORRECT_ANSWERS must be between 1 and MIN_SECURITY_QUESTIONS")
	case p.SecretHashCost < 4 || p.SecretHashCost > 31:
		return fmt.Errorf("SECRET_HASH_COST must be between 4 and 31")
	}
	return nil
}
