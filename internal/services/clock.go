package services

import (
	"strings"
	"time"
)

// Clock returns the current instant. Services default to time.Now and accept
// a replacement through SetClock.
type Clock func() time.Time

// NormalizeEmail lower-cases and trims an email used as a lockout key
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
