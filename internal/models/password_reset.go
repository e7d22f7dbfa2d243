package models

import "time"

// PasswordResetToken is an out-of-band credential reset grant. Only the
// SHA-256 hash of the token sent by email is stored.
type PasswordResetToken struct {
	ID        string
	UserID    string
	Email     string
	TokenHash string
	Used      bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsUsable reports whether the token can still complete a reset
func (t *PasswordResetToken) IsUsable(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}
