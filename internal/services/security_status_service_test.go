package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/BradenHooton/lockbox/internal/repositories"
	"github.com/BradenHooton/lockbox/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStatusService(f *lockoutFixture, history services.LoginHistoryRepository, profiles services.LoginToucher, policy models.SecurityPolicy) *services.SecurityStatusService {
	svc := services.NewSecurityStatusService(f.recorder, f.engine, history, profiles, policy, services.NewTestLogger())
	svc.SetClock(f.clock.Now)
	return svc
}

func TestSecurityStatus_AccountStatus(t *testing.T) {
	policy := policyWithThreshold(3)
	f := newLockoutFixture(policy)
	svc := newStatusService(f, &services.MockLoginHistoryRepository{}, nil, policy)
	ctx := context.Background()

	status := svc.GetAccountSecurityStatus(ctx, "a@x.com")
	assert.Equal(t, "a@x.com", status.Email)
	assert.Zero(t, status.RecentFailedAttempts)
	assert.False(t, status.IsLocked)
	assert.Nil(t, status.Lockout)

	f.recorder.RecordFailedAttempt(ctx, "a@x.com")
	f.recorder.RecordFailedAttempt(ctx, "a@x.com")

	status = svc.GetAccountSecurityStatus(ctx, "A@x.com ")
	assert.Equal(t, 2, status.RecentFailedAttempts)
	assert.False(t, status.IsLocked)

	f.recorder.RecordFailedAttempt(ctx, "a@x.com")
	status = svc.GetAccountSecurityStatus(ctx, "a@x.com")
	assert.True(t, status.IsLocked)
	require.NotNil(t, status.Lockout)
	assert.Equal(t, 1, status.Lockout.LockoutCount)
	assert.True(t, svc.IsAccountLocked(ctx, "a@x.com").IsLocked)
}

// unreadableStore fails every read
type unreadableStore struct {
	brokenStore
}

func (u unreadableStore) GetAttemptsSince(ctx context.Context, email string, since time.Time) ([]*models.LoginAttempt, error) {
	return nil, errors.New("connection refused")
}

func TestSecurityStatus_AccountStatusNeverFails(t *testing.T) {
	policy := models.DefaultSecurityPolicy()
	store := unreadableStore{brokenStore{repositories.NewMemoryStore()}}
	logger := services.NewTestLogger()
	engine := services.NewLockoutEngine(store, policy, nil, logger)
	recorder := services.NewAttemptRecorder(store, policy, logger)
	svc := services.NewSecurityStatusService(recorder, engine, &services.MockLoginHistoryRepository{}, nil, policy, logger)

	status := svc.GetAccountSecurityStatus(context.Background(), "a@x.com")
	require.NotNil(t, status)
	assert.Zero(t, status.RecentFailedAttempts)
	assert.False(t, status.IsLocked)
}

type mockToucher struct {
	touched []bool
	err     error
}

func (m *mockToucher) TouchLogin(ctx context.Context, userID string, at time.Time, success bool) error {
	m.touched = append(m.touched, success)
	return m.err
}

func TestSecurityStatus_LastLoginInfo(t *testing.T) {
	policy := models.DefaultSecurityPolicy()
	f := newLockoutFixture(policy)
	history := &services.MockLoginHistoryRepository{}
	toucher := &mockToucher{}
	svc := newStatusService(f, history, toucher, policy)
	ctx := context.Background()

	info, err := svc.GetLastLoginInfo(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, info.LastSuccessfulLogin)
	assert.Zero(t, info.RecentFailedAttempts)

	svc.RecordLoginResult(ctx, &models.LoginRecord{UserID: "u1", Email: "a@x.com", Success: true})
	f.clock.Advance(time.Hour)
	svc.RecordLoginResult(ctx, &models.LoginRecord{UserID: "u1", Email: "A@x.com", Success: false})
	svc.RecordLoginResult(ctx, &models.LoginRecord{UserID: "u1", Email: "a@x.com", Success: false})
	svc.RecordLoginResult(ctx, &models.LoginRecord{Email: "ghost@x.com", Success: false})

	info, err = svc.GetLastLoginInfo(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, info.LastSuccessfulLogin)
	assert.Equal(t, t0, *info.LastSuccessfulLogin)
	assert.Equal(t, 2, info.RecentFailedAttempts)

	assert.Equal(t, "a@x.com", history.Records[1].Email)
	assert.Equal(t, []bool{true, false, false}, toucher.touched)

	// failures older than 24 hours drop out of the report
	f.clock.Advance(24 * time.Hour)
	info, err = svc.GetLastLoginInfo(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, info.RecentFailedAttempts)
}

func TestSecurityStatus_LastLoginInfoRequiresUser(t *testing.T) {
	policy := models.DefaultSecurityPolicy()
	f := newLockoutFixture(policy)
	svc := newStatusService(f, &services.MockLoginHistoryRepository{}, nil, policy)

	_, err := svc.GetLastLoginInfo(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestSecurityStatus_RecordLoginResultIsBestEffort(t *testing.T) {
	policy := models.DefaultSecurityPolicy()
	f := newLockoutFixture(policy)
	history := &services.MockLoginHistoryRepository{
		AppendFunc: func(ctx context.Context, rec *models.LoginRecord) error {
			return errors.New("connection refused")
		},
	}
	toucher := &mockToucher{err: errors.New("connection refused")}
	svc := newStatusService(f, history, toucher, policy)

	assert.NotPanics(t, func() {
		svc.RecordLoginResult(context.Background(), &models.LoginRecord{UserID: "u1", Email: "a@x.com", Success: true})
	})
	assert.Len(t, toucher.touched, 1)
}
