package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/lockbox/internal/models"
	pkglogger "github.com/BradenHooton/lockbox/pkg/logger"
)

// AuditLogRepository is the subset of audit log storage the service needs
type AuditLogRepository interface {
	Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
	ListByEventTypes(ctx context.Context, eventTypes []string, limit int) ([]*models.AuditLog, error)
}

// SecurityAuditor records security events. Recording never fails the caller.
type SecurityAuditor interface {
	Record(ctx context.Context, entry *models.AuditLog)
}

// AuditService handles audit logging with dual-write pattern (slog + database)
type AuditService struct {
	repo   AuditLogRepository
	logger *slog.Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(repo AuditLogRepository, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		logger: logger,
	}
}

// Record writes the event to the log immediately and then persists it.
// Persistence failures are logged and swallowed.
func (s *AuditService) Record(ctx context.Context, entry *models.AuditLog) {
	attrs := []any{
		slog.String("event_type", entry.EventType),
		slog.String("action", entry.Action),
		slog.Bool("success", entry.Success),
	}
	if entry.ActorEmail != nil {
		attrs = append(attrs, slog.String("actor_email", pkglogger.SanitizedEmail(*entry.ActorEmail)))
	}
	if entry.TargetEmail != nil {
		attrs = append(attrs, slog.String("target_email", pkglogger.SanitizedEmail(*entry.TargetEmail)))
	}
	if len(entry.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", entry.Metadata))
	}

	// Dual-write: immediate slog output
	if entry.Success {
		s.logger.InfoContext(ctx, "audit event", attrs...)
	} else {
		if entry.FailureReason != nil {
			attrs = append(attrs, slog.String("failure_reason", *entry.FailureReason))
		}
		s.logger.WarnContext(ctx, "audit event failed", attrs...)
	}

	if s.repo == nil {
		return
	}

	if _, err := s.repo.Create(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist audit log",
			slog.String("event_type", entry.EventType),
			slog.Any("error", err),
		)
	}
}

// RecentEvents returns the newest entries of the given types. limit is clamped to 1..100.
func (s *AuditService) RecentEvents(ctx context.Context, eventTypes []string, limit int) ([]*models.AuditLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	logs, err := s.repo.ListByEventTypes(ctx, eventTypes, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent security events: %w", err)
	}

	return logs, nil
}

// newAuditEntry fills the fields every security event shares
func newAuditEntry(eventType, action string, success bool, targetEmail string, metadata models.AuditMetadata) *models.AuditLog {
	return &models.AuditLog{
		EventType:   eventType,
		Action:      action,
		Success:     success,
		TargetEmail: strPtr(targetEmail),
		Metadata:    metadata,
	}
}

func withFailure(entry *models.AuditLog, reason string) *models.AuditLog {
	entry.Success = false
	entry.FailureReason = strPtr(reason)
	return entry
}

func withActor(entry *models.AuditLog, actorID, actorEmail string) *models.AuditLog {
	entry.ActorID = strPtr(actorID)
	entry.ActorEmail = strPtr(actorEmail)
	return entry
}
