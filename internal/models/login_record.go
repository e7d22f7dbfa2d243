package models

import "time"

// LoginRecord is an append-only login history entry
type LoginRecord struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Email     string    `db:"email" json:"email"`
	Timestamp time.Time `db:"created_at" json:"timestamp"`
	Success   bool      `db:"success" json:"success"`
	IPAddress *string   `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent *string   `db:"user_agent" json:"user_agent,omitempty"`
}

// LastLoginInfo summarizes a user's recent login history
type LastLoginInfo struct {
	LastSuccessfulLogin  *time.Time `json:"last_successful_login,omitempty"`
	RecentFailedAttempts int        `json:"recent_failed_attempts"`
}
