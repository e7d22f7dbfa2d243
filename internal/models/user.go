package models

import (
	"time"
)

// Account roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Account statuses
const (
	UserStatusActive    = "active"
	UserStatusSuspended = "suspended"
	UserStatusDisabled  = "disabled"
)

// User is the local credential record behind the authentication provider
type User struct {
	ID                string
	Email             string
	PasswordHash      string
	Name              string
	Role              string
	Status            string
	PasswordChangedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Identity is the authenticated caller of a credential operation
type Identity struct {
	UserID string
	Email  string
}
