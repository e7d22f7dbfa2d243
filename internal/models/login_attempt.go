package models

import "time"

// LoginAttempt is a single failed login, counted toward the lockout threshold
type LoginAttempt struct {
	ID            string    `db:"id" json:"id"`
	Email         string    `db:"email" json:"email"`
	AttemptedAt   time.Time `db:"attempted_at" json:"attempted_at"`
	AttemptNumber int       `db:"attempt_number" json:"attempt_number"`
	ExpiresAt     time.Time `db:"expires_at" json:"expires_at"`
}
