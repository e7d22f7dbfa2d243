package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/BradenHooton/lockbox/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockUnlocker struct {
	unlockFunc func(ctx context.Context, email string) (*models.AccountLockout, error)
}

func (m *mockUnlocker) Unlock(ctx context.Context, email string) (*models.AccountLockout, error) {
	return m.unlockFunc(ctx, email)
}

type mockAttemptClearer struct {
	cleared []string
	err     error
}

func (m *mockAttemptClearer) ClearFailedAttempts(ctx context.Context, email string) error {
	if m.err != nil {
		return m.err
	}
	m.cleared = append(m.cleared, email)
	return nil
}

type mockActivityFeed struct {
	calls  [][]string
	limits []int
	fn     func(eventTypes []string, limit int) ([]*models.AuditLog, error)
}

func (m *mockActivityFeed) RecentEvents(ctx context.Context, eventTypes []string, limit int) ([]*models.AuditLog, error) {
	m.calls = append(m.calls, eventTypes)
	m.limits = append(m.limits, limit)
	if m.fn != nil {
		return m.fn(eventTypes, limit)
	}
	return []*models.AuditLog{}, nil
}

func TestAdminService_UnlockLockedAccount(t *testing.T) {
	f := newLockoutFixture(policyWithThreshold(3))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.recorder.RecordFailedAttempt(ctx, "a@x.com")
	}
	require.True(t, f.engine.IsLocked(ctx, "a@x.com").IsLocked)

	svc := services.NewAdminService(f.engine, f.recorder, &mockActivityFeed{}, f.auditor, services.NewTestLogger())

	assert.True(t, svc.AdminUnlockAccount(ctx, " A@X.com ", "admin@x.com"))
	assert.False(t, f.engine.IsLocked(ctx, "a@x.com").IsLocked)

	attempts, err := f.recorder.GetRecentFailedAttempts(ctx, "a@x.com", time.Hour)
	require.NoError(t, err)
	assert.Empty(t, attempts)

	unlocks := f.auditor.ByType(models.AuditEventTypeAdminUnlock)
	require.Len(t, unlocks, 1)
	assert.True(t, unlocks[0].Success)
	require.NotNil(t, unlocks[0].ActorEmail)
	assert.Equal(t, "admin@x.com", *unlocks[0].ActorEmail)
	require.NotNil(t, unlocks[0].TargetEmail)
	assert.Equal(t, "a@x.com", *unlocks[0].TargetEmail)
	assert.Equal(t, "admin@x.com", unlocks[0].Metadata["admin_email"])
	assert.Equal(t, 1, unlocks[0].Metadata["lockout_count"])
}

func TestAdminService_UnlockKeepsEscalation(t *testing.T) {
	f := newLockoutFixture(policyWithThreshold(3))
	ctx := context.Background()
	svc := services.NewAdminService(f.engine, f.recorder, &mockActivityFeed{}, f.auditor, services.NewTestLogger())

	for i := 0; i < 3; i++ {
		f.recorder.RecordFailedAttempt(ctx, "a@x.com")
	}
	require.True(t, svc.AdminUnlockAccount(ctx, "a@x.com", "admin@x.com"))

	var lockout *models.AccountLockout
	for i := 0; i < 3; i++ {
		lockout = f.recorder.RecordFailedAttempt(ctx, "a@x.com")
	}
	require.NotNil(t, lockout)
	assert.Equal(t, 2, lockout.LockoutCount)
	assert.Equal(t, 30*time.Minute, lockout.Duration())
}

func TestAdminService_UnlockWithoutLockout(t *testing.T) {
	f := newLockoutFixture(models.DefaultSecurityPolicy())
	svc := services.NewAdminService(f.engine, f.recorder, &mockActivityFeed{}, f.auditor, services.NewTestLogger())

	assert.True(t, svc.AdminUnlockAccount(context.Background(), "nobody@x.com", "admin@x.com"))

	unlocks := f.auditor.ByType(models.AuditEventTypeAdminUnlock)
	require.Len(t, unlocks, 1)
	_, hasCount := unlocks[0].Metadata["lockout_count"]
	assert.False(t, hasCount)
}

func TestAdminService_UnlockFailures(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		unlocker *mockUnlocker
		clearer  *mockAttemptClearer
		reason   string
	}{
		{
			name:  "lockout delete fails",
			email: "a@x.com",
			unlocker: &mockUnlocker{unlockFunc: func(ctx context.Context, email string) (*models.AccountLockout, error) {
				return nil, &models.PersistenceError{Op: "delete lockout", Err: errors.New("connection refused")}
			}},
			clearer: &mockAttemptClearer{},
			reason:  "lockout_delete_failed",
		},
		{
			name:  "attempt clear fails",
			email: "a@x.com",
			unlocker: &mockUnlocker{unlockFunc: func(ctx context.Context, email string) (*models.AccountLockout, error) {
				return nil, nil
			}},
			clearer: &mockAttemptClearer{err: errors.New("connection refused")},
			reason:  "attempt_clear_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor := &services.MockAuditor{}
			svc := services.NewAdminService(tt.unlocker, tt.clearer, &mockActivityFeed{}, auditor, services.NewTestLogger())

			assert.False(t, svc.AdminUnlockAccount(context.Background(), tt.email, "admin@x.com"))

			unlocks := auditor.ByType(models.AuditEventTypeAdminUnlock)
			require.Len(t, unlocks, 1)
			assert.False(t, unlocks[0].Success)
			require.NotNil(t, unlocks[0].FailureReason)
			assert.Equal(t, tt.reason, *unlocks[0].FailureReason)
		})
	}
}

func TestAdminService_UnlockEmptyEmail(t *testing.T) {
	called := false
	unlocker := &mockUnlocker{unlockFunc: func(ctx context.Context, email string) (*models.AccountLockout, error) {
		called = true
		return nil, nil
	}}
	auditor := &services.MockAuditor{}
	svc := services.NewAdminService(unlocker, &mockAttemptClearer{}, &mockActivityFeed{}, auditor, services.NewTestLogger())

	assert.False(t, svc.AdminUnlockAccount(context.Background(), "   ", "admin@x.com"))
	assert.False(t, called)
	assert.Empty(t, auditor.Entries)
}

func TestAdminService_GetRecentActivity(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	target := "a@x.com"
	feed := &mockActivityFeed{fn: func(eventTypes []string, limit int) ([]*models.AuditLog, error) {
		return []*models.AuditLog{{
			EventType:   eventTypes[0],
			Success:     true,
			TargetEmail: &target,
			CreatedAt:   created,
		}}, nil
	}}
	svc := services.NewAdminService(&mockUnlocker{}, &mockAttemptClearer{}, feed, nil, services.NewTestLogger())

	activity, err := svc.GetRecentActivity(context.Background(), 5)
	require.NoError(t, err)

	require.Len(t, activity.Lockouts, 1)
	assert.Equal(t, models.AuditEventTypeAccountLocked, activity.Lockouts[0].EventType)
	assert.Equal(t, "2026-03-01T09:30:00Z", activity.Lockouts[0].Timestamp)
	require.Len(t, activity.AdminUnlocks, 1)
	assert.Equal(t, models.AuditEventTypeAdminUnlock, activity.AdminUnlocks[0].EventType)
	require.Len(t, activity.Recoveries, 1)
	assert.Equal(t, models.AuditEventTypeKnowledgeRecovery, activity.Recoveries[0].EventType)

	assert.Equal(t, []int{5, 5, 5}, feed.limits)
}

func TestAdminService_GetRecentActivity_LimitClamped(t *testing.T) {
	for _, limit := range []int{0, -1, 100} {
		feed := &mockActivityFeed{}
		svc := services.NewAdminService(&mockUnlocker{}, &mockAttemptClearer{}, feed, nil, services.NewTestLogger())

		_, err := svc.GetRecentActivity(context.Background(), limit)
		require.NoError(t, err)
		assert.Equal(t, []int{20, 20, 20}, feed.limits, "limit %d", limit)
	}
}

func TestAdminService_GetRecentActivity_FeedError(t *testing.T) {
	feed := &mockActivityFeed{fn: func(eventTypes []string, limit int) ([]*models.AuditLog, error) {
		return nil, errors.New("connection refused")
	}}
	svc := services.NewAdminService(&mockUnlocker{}, &mockAttemptClearer{}, feed, nil, services.NewTestLogger())

	_, err := svc.GetRecentActivity(context.Background(), 10)
	assert.Error(t, err)
	assert.Len(t, feed.calls, 1)
}
