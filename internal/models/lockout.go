package models

import "time"

// AccountLockout is the active lock for an email. At most one exists per email.
type AccountLockout struct {
	Email          string    `db:"email" json:"email"`
	LockedAt       time.Time `db:"locked_at" json:"locked_at"`
	UnlockAt       time.Time `db:"unlock_at" json:"unlock_at"`
	FailedAttempts int       `db:"failed_attempts" json:"failed_attempts"`
	LockoutCount   int       `db:"lockout_count" json:"lockout_count"`
}

// Duration is the length of the lock window
func (l *AccountLockout) Duration() time.Duration {
	return l.UnlockAt.Sub(l.LockedAt)
}

// IsExpired reports whether the lock has run out at the given instant
func (l *AccountLockout) IsExpired(now time.Time) bool {
	return !now.Before(l.UnlockAt)
}

// LockoutFunc builds the next lockout for an email given how many times it was
// locked before and how many failed attempts were counted. LockedAt must be the
// evaluation instant: stores compare it against any active lockout.
type LockoutFunc func(previousLockoutCount, failedAttempts int) *AccountLockout

// LockStatus is what the login UI sees
type LockStatus struct {
	IsLocked         bool       `json:"is_locked"`
	UnlockAt         *time.Time `json:"unlock_at,omitempty"`
	RemainingMinutes int        `json:"remaining_minutes,omitempty"`
	LockoutCount     int        `json:"lockout_count,omitempty"`
}

// AccountSecurityStatus is the administrative view of an email
type AccountSecurityStatus struct {
	Email                string          `json:"email"`
	RecentFailedAttempts int             `json:"recent_failed_attempts"`
	IsLocked             bool            `json:"is_locked"`
	Lockout              *AccountLockout `json:"lockout,omitempty"`
}
