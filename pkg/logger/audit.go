package logger

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// Event categories written under the "audit_type" key
const (
	CategoryAuth     = "auth"
	CategoryLockout  = "lockout"
	CategoryPassword = "password"
	CategoryAccount  = "account"
)

// AuditEvent is one security event written to the log stream. Emails are
// masked before they are written.
type AuditEvent struct {
	EventType     string
	UserID        string
	Email         string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes security events as structured log records. It mirrors
// the durable audit trail for operators tailing logs.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// LogAuthAttempt logs a login outcome
func (al *AuditLogger) LogAuthAttempt(ctx context.Context, event AuditEvent) {
	al.emit(ctx, CategoryAuth, event)
}

// LogLockout logs a lock or unlock transition for an email
func (al *AuditLogger) LogLockout(ctx context.Context, eventType, email string, lockoutCount int, unlockAt time.Time) {
	event := AuditEvent{
		EventType: eventType,
		Email:     email,
		Success:   true,
		Metadata:  map[string]string{},
	}
	if !unlockAt.IsZero() {
		event.Metadata["unlock_at"] = unlockAt.UTC().Format(time.RFC3339)
	}

	al.emit(ctx, CategoryLockout, event, slog.Int("lockout_count", lockoutCount))
}

// LogPasswordChange logs a password change by method (change, recovery, reset)
func (al *AuditLogger) LogPasswordChange(ctx context.Context, userID, method string, success bool, reason string) {
	al.emit(ctx, CategoryPassword, AuditEvent{
		EventType:     "password_" + method,
		UserID:        userID,
		Success:       success,
		FailureReason: reason,
	})
}

// LogAccountAction logs other account events such as recovery checks
func (al *AuditLogger) LogAccountAction(ctx context.Context, eventType, userID string, success bool, metadata map[string]string) {
	al.emit(ctx, CategoryAccount, AuditEvent{
		EventType: eventType,
		UserID:    userID,
		Success:   success,
		Metadata:  metadata,
	})
}

func (al *AuditLogger) emit(ctx context.Context, category string, event AuditEvent, extra ...slog.Attr) {
	if al == nil || al.logger == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("audit_type", category),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	attrs = append(attrs, extra...)

	// stable attribute order keeps log lines diffable
	keys := make([]string, 0, len(event.Metadata))
	for k := range event.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, event.Metadata[k]))
	}

	level := slog.LevelInfo
	if !event.Success || category == CategoryLockout {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}
