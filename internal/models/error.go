package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Account state errors
	ErrAccountDisabled   = errors.New("account is disabled")
	ErrAccountSuspended  = errors.New("account is suspended")
	ErrAccountLocked     = errors.New("account is temporarily locked")
	ErrRateLimitExceeded = errors.New("too many requests")

	// Credential policy errors
	ErrPasswordReused        = errors.New("password was used recently")
	ErrPasswordChangeTooSoon = errors.New("password was changed too recently")
	ErrRecoveryNotEnabled    = errors.New("account recovery is not enabled")
	ErrResetTokenInvalid     = errors.New("password reset token is invalid or expired")

	ErrPersistence = errors.New("persistence failure")
)

// FieldError is a single failed validation rule
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every rule an input failed
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError builds a ValidationError with one entry per message for the same field
func NewValidationError(field string, messages ...string) *ValidationError {
	ve := &ValidationError{}
	for _, msg := range messages {
		ve.Add(field, msg)
	}
	return ve
}

func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// HasErrors reports whether any rule failed
func (e *ValidationError) HasErrors() bool {
	return e != nil && len(e.Fields) > 0
}

func (e *ValidationError) Messages() []string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return msgs
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	return "validation failed: " + strings.Join(e.Messages(), "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrBadRequest
}

// AuthError wraps a failed credential check
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Reason == "" {
		return "authentication failed"
	}
	return "authentication failed: " + e.Reason
}

func (e *AuthError) Is(target error) bool {
	return target == ErrUnauthorized
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// LockoutError reports an account that is currently locked
type LockoutError struct {
	UnlockAt         *time.Time
	RemainingMinutes int
	LockoutCount     int
}

// NewLockoutError converts a locked status into an error
func NewLockoutError(status LockStatus) *LockoutError {
	return &LockoutError{
		UnlockAt:         status.UnlockAt,
		RemainingMinutes: status.RemainingMinutes,
		LockoutCount:     status.LockoutCount,
	}
}

func (e *LockoutError) Error() string {
	if e.UnlockAt == nil {
		return "account is temporarily locked"
	}
	return fmt.Sprintf("account is temporarily locked, try again in %d minute(s)", e.RemainingMinutes)
}

func (e *LockoutError) Is(target error) bool {
	return target == ErrAccountLocked
}

// TooSoonError rejects a password change inside the minimum interval
type TooSoonError struct {
	HoursRemaining int
}

func (e *TooSoonError) Error() string {
	return fmt.Sprintf("password was changed recently, try again in %d hour(s)", e.HoursRemaining)
}

func (e *TooSoonError) Is(target error) bool {
	return target == ErrPasswordChangeTooSoon
}

// ReuseError never reveals which previous password matched
type ReuseError struct {
	HistorySize int
}

func (e *ReuseError) Error() string {
	return fmt.Sprintf("cannot reuse any of your last %d passwords", e.HistorySize)
}

func (e *ReuseError) Is(target error) bool {
	return target == ErrPasswordReused
}

// PersistenceError marks a store failure on a primary write
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
