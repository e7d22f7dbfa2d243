package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultHashCost = 12
	TokenLength     = 32 // 256 bits
	MinPasswordLen  = 10
	MaxPasswordLen  = 128
)

// SpecialCharacters is the fixed punctuation set a password must draw from
const SpecialCharacters = `!@#$%^&*(),.?":{}|<>`

// PasswordValidationError lists every strength rule a password failed
type PasswordValidationError struct {
	Errors []string
}

func (e *PasswordValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "password validation failed"
	}
	return "invalid password: " + strings.Join(e.Errors, ", ")
}

// Common weak passwords to reject
var commonPasswords = map[string]bool{
	"password1234!":     true,
	"password123!":      true,
	"qwerty123456!":     true,
	"welcome12345!":     true,
	"letmein12345!":     true,
	"administrator1!":   true,
	"p@ssword12345":     true,
	"passw0rd1234!":     true,
	"iloveyou1234!":     true,
	"trustno1trustno1!": true,
}

// ValidatePassword enforces the strength policy and reports every failed rule
func ValidatePassword(password string) error {
	errors := make([]string, 0)

	// Length is in characters, not bytes
	length := utf8.RuneCountInString(password)
	if length < MinPasswordLen {
		errors = append(errors, fmt.Sprintf("must be at least %d characters", MinPasswordLen))
	}
	if length > MaxPasswordLen {
		errors = append(errors, fmt.Sprintf("must be at most %d characters", MaxPasswordLen))
	}

	// Check character requirements
	hasUpper := false
	hasLower := false
	hasDigit := false
	hasSpecial := false

	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(SpecialCharacters, r):
			hasSpecial = true
		}
	}

	if !hasUpper {
		errors = append(errors, "must contain at least one uppercase letter")
	}
	if !hasLower {
		errors = append(errors, "must contain at least one lowercase letter")
	}
	if !hasDigit {
		errors = append(errors, "must contain at least one digit")
	}
	if !hasSpecial {
		errors = append(errors, fmt.Sprintf("must contain at least one of %s", SpecialCharacters))
	}

	// Check against common passwords (case-insensitive)
	if commonPasswords[strings.ToLower(password)] {
		errors = append(errors, "is too common, please choose a more unique password")
	}

	if len(errors) > 0 {
		return &PasswordValidationError{Errors: errors}
	}

	return nil
}

// NormalizeSecret lower-cases and trims a secret before it is hashed for
// history or answer comparison
func NormalizeSecret(secret string) string {
	return strings.ToLower(strings.TrimSpace(secret))
}

// SecretHasher hashes passwords and security answers with bcrypt. Input is
// pre-hashed with SHA-256 so secrets longer than bcrypt's 72-byte limit are
// still fully significant.
type SecretHasher struct {
	cost int
}

// NewSecretHasher creates a hasher with the given bcrypt work factor
func NewSecretHasher(cost int) *SecretHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultHashCost
	}
	return &SecretHasher{cost: cost}
}

func (h *SecretHasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}
	hashedBytes, err := bcrypt.GenerateFromPassword(prehash(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hashedBytes), nil
}

// Matches reports whether secret hashes to hashed. Malformed hashes never match.
func (h *SecretHasher) Matches(hashed, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), prehash(secret)) == nil
}

// MatchesAny reports whether secret matches any of the hashes
func (h *SecretHasher) MatchesAny(hashes []string, secret string) bool {
	for _, hashed := range hashes {
		if h.Matches(hashed, secret) {
			return true
		}
	}
	return false
}

func prehash(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return []byte(hex.EncodeToString(sum[:]))
}

// HashPassword hashes a login credential at the default cost
func HashPassword(password string) (string, error) {
	return NewSecretHasher(DefaultHashCost).Hash(password)
}

// ComparePassword returns nil when password matches the stored credential hash
func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), prehash(password))
}

// GenerateToken returns a URL-safe random token
func GenerateToken() (string, error) {
	bytes := make([]byte, TokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// HashToken returns the SHA-256 hex digest used to store reset tokens
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
