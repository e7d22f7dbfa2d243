package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types for audit logging
const (
	AuditEventTypeLogin             = "login"
	AuditEventTypeAccountLocked     = "account_locked"
	AuditEventTypeAccountUnlocked   = "account_unlocked"
	AuditEventTypeAdminUnlock       = "admin_unlock"
	AuditEventTypePasswordChange    = "password_change"
	AuditEventTypeQuestionsSetup    = "security_questions_setup"
	AuditEventTypeKnowledgeRecovery = "knowledge_recovery"
	AuditEventTypePasswordReset     = "password_reset"
)

// Actions
const (
	AuditActionCreate = "create"
	AuditActionUpdate = "update"
	AuditActionDelete = "delete"
	AuditActionVerify = "verify"
)

type AuditLog struct {
	ID            uuid.UUID     `db:"id"`
	EventType     string        `db:"event_type"`
	ActorID       *string       `db:"actor_id"`
	ActorEmail    *string       `db:"actor_email"`
	TargetEmail   *string       `db:"target_email"`
	Action        string        `db:"action"`
	Success       bool          `db:"success"`
	FailureReason *string       `db:"failure_reason"`
	IPAddress     *string       `db:"ip_address"`
	UserAgent     *string       `db:"user_agent"`
	Metadata      AuditMetadata `db:"metadata"`
	CreatedAt     time.Time     `db:"created_at"`
}

// AuditMetadata holds additional context for audit events
type AuditMetadata map[string]interface{}

// NewLockoutMetadata describes a lock decision
func NewLockoutMetadata(lockout *AccountLockout) AuditMetadata {
	return AuditMetadata{
		"locked_at":        lockout.LockedAt.UTC().Format(time.RFC3339),
		"unlock_at":        lockout.UnlockAt.UTC().Format(time.RFC3339),
		"duration_minutes": int(lockout.Duration().Minutes()),
		"failed_attempts":  lockout.FailedAttempts,
		"lockout_count":    lockout.LockoutCount,
	}
}

// NewAdminUnlockMetadata attributes a forced unlock; the prior lockout is optional
func NewAdminUnlockMetadata(adminEmail string, prior *AccountLockout) AuditMetadata {
	md := AuditMetadata{"admin_email": adminEmail}
	if prior != nil {
		md["previous_unlock_at"] = prior.UnlockAt.UTC().Format(time.RFC3339)
		md["lockout_count"] = prior.LockoutCount
	}
	return md
}

// Scan implements sql.Scanner for JSONB
func (am *AuditMetadata) Scan(value interface{}) error {
	if value == nil {
		*am = make(AuditMetadata)
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*am = AuditMetadata(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (am AuditMetadata) Value() (driver.Value, error) {
	if am == nil {
		return nil, nil
	}
	return json.Marshal(map[string]interface{}(am))
}
