package models

import (
	"github.com/golang-jwt/jwt/v5"
)

type TokenClaims struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the caller identity carried by the token
func (c *TokenClaims) Identity() Identity {
	return Identity{UserID: c.UserID, Email: c.Email}
}
