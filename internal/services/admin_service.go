package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
	pkglogger "github.com/BradenHooton/lockbox/pkg/logger"
)

// AccountUnlocker removes an active lockout and returns the lockout it removed
type AccountUnlocker interface {
	Unlock(ctx context.Context, email string) (*models.AccountLockout, error)
}

// AttemptClearer drops the pending failed attempts for an email
type AttemptClearer interface {
	ClearFailedAttempts(ctx context.Context, email string) error
}

// ActivityFeed reads recent security audit entries
type ActivityFeed interface {
	RecentEvents(ctx context.Context, eventTypes []string, limit int) ([]*models.AuditLog, error)
}

// ActivityEntry is a single item in a recent-activity feed.
type ActivityEntry struct {
	Timestamp   string               `json:"timestamp"`
	ActorEmail  *string              `json:"actor_email,omitempty"`
	TargetEmail *string              `json:"target_email,omitempty"`
	EventType   string               `json:"event_type"`
	Success     bool                 `json:"success"`
	Metadata    models.AuditMetadata `json:"metadata,omitempty"`
}

// DashboardActivityResponse contains recent security event feeds.
type DashboardActivityResponse struct {
	Lockouts     []ActivityEntry `json:"lockouts"`
	AdminUnlocks []ActivityEntry `json:"admin_unlocks"`
	Recoveries   []ActivityEntry `json:"recoveries"`
}

// AdminService backs the security admin dashboard.
type AdminService struct {
	unlocker    AccountUnlocker
	attempts    AttemptClearer
	feed        ActivityFeed
	auditor     SecurityAuditor
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger
}

// NewAdminService creates a new AdminService.
func NewAdminService(
	unlocker AccountUnlocker,
	attempts AttemptClearer,
	feed ActivityFeed,
	auditor SecurityAuditor,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		unlocker:    unlocker,
		attempts:    attempts,
		feed:        feed,
		auditor:     auditor,
		auditLogger: pkglogger.NewAuditLogger(logger),
		logger:      logger,
	}
}

// AdminUnlockAccount deletes the lockout and pending attempts for email and
// attributes the action to adminEmail. Failures are logged and reported as false.
func (s *AdminService) AdminUnlockAccount(ctx context.Context, email, adminEmail string) bool {
	email = NormalizeEmail(email)
	if email == "" {
		s.logger.Warn("admin unlock: empty email", slog.String("admin_email", pkglogger.SanitizedEmail(adminEmail)))
		return false
	}

	prior, err := s.unlocker.Unlock(ctx, email)
	if err != nil {
		s.logger.Error("admin unlock: failed to remove lockout",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err),
		)
		s.recordUnlock(ctx, email, adminEmail, prior, "lockout_delete_failed")
		return false
	}

	if err := s.attempts.ClearFailedAttempts(ctx, email); err != nil {
		s.logger.Error("admin unlock: failed to clear attempts",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err),
		)
		s.recordUnlock(ctx, email, adminEmail, prior, "attempt_clear_failed")
		return false
	}

	lockoutCount := 0
	if prior != nil {
		lockoutCount = prior.LockoutCount
	}
	s.auditLogger.LogLockout(ctx, models.AuditEventTypeAdminUnlock, email, lockoutCount, time.Time{})
	s.recordUnlock(ctx, email, adminEmail, prior, "")
	return true
}

func (s *AdminService) recordUnlock(ctx context.Context, email, adminEmail string, prior *models.AccountLockout, failure string) {
	if s.auditor == nil {
		return
	}
	entry := withActor(
		newAuditEntry(models.AuditEventTypeAdminUnlock, models.AuditActionDelete, true, email,
			models.NewAdminUnlockMetadata(adminEmail, prior)),
		"", adminEmail,
	)
	if failure != "" {
		entry = withFailure(entry, failure)
	}
	s.auditor.Record(ctx, entry)
}

// GetRecentActivity returns recent lockout, unlock and recovery feeds.
// limit is clamped to a maximum of 20.
func (s *AdminService) GetRecentActivity(ctx context.Context, limit int) (*DashboardActivityResponse, error) {
	if limit <= 0 || limit > 20 {
		limit = 20
	}

	lockouts, err := s.feed.RecentEvents(ctx, []string{models.AuditEventTypeAccountLocked}, limit)
	if err != nil {
		s.logger.Error("dashboard: failed to fetch recent lockouts", slog.Any("error", err))
		return nil, err
	}

	unlocks, err := s.feed.RecentEvents(ctx, []string{models.AuditEventTypeAdminUnlock}, limit)
	if err != nil {
		s.logger.Error("dashboard: failed to fetch recent unlocks", slog.Any("error", err))
		return nil, err
	}

	recoveries, err := s.feed.RecentEvents(ctx, []string{models.AuditEventTypeKnowledgeRecovery}, limit)
	if err != nil {
		s.logger.Error("dashboard: failed to fetch recent recoveries", slog.Any("error", err))
		return nil, err
	}

	return &DashboardActivityResponse{
		Lockouts:     toEntries(lockouts),
		AdminUnlocks: toEntries(unlocks),
		Recoveries:   toEntries(recoveries),
	}, nil
}

func toEntries(logs []*models.AuditLog) []ActivityEntry {
	entries := make([]ActivityEntry, 0, len(logs))
	for _, log := range logs {
		entries = append(entries, ActivityEntry{
			Timestamp:   log.CreatedAt.UTC().Format(time.RFC3339),
			ActorEmail:  log.ActorEmail,
			TargetEmail: log.TargetEmail,
			EventType:   log.EventType,
			Success:     log.Success,
			Metadata:    log.Metadata,
		})
	}
	return entries
}
