package services

import (
	"context"
	"errors"
	"testing"

	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditService_RecordPersists(t *testing.T) {
	var saved []*models.AuditLog
	repo := &MockAuditLogRepository{
		CreateFunc: func(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
			saved = append(saved, log)
			return log, nil
		},
	}
	svc := NewAuditService(repo, NewTestLogger())

	entry := withActor(
		newAuditEntry(models.AuditEventTypeAdminUnlock, models.AuditActionDelete, true, "a@x.com",
			models.AuditMetadata{"admin_email": "admin@x.com"}),
		"", "admin@x.com",
	)
	svc.Record(context.Background(), entry)

	require.Len(t, saved, 1)
	assert.Equal(t, models.AuditEventTypeAdminUnlock, saved[0].EventType)
	require.NotNil(t, saved[0].TargetEmail)
	assert.Equal(t, "a@x.com", *saved[0].TargetEmail)
	assert.Nil(t, saved[0].ActorID)
}

func TestAuditService_RecordSwallowsStoreErrors(t *testing.T) {
	repo := &MockAuditLogRepository{
		CreateFunc: func(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := NewAuditService(repo, NewTestLogger())

	assert.NotPanics(t, func() {
		svc.Record(context.Background(), withFailure(
			newAuditEntry(models.AuditEventTypeLogin, models.AuditActionVerify, true, "a@x.com", nil),
			"invalid_credentials"))
	})
}

func TestAuditService_RecordWithoutRepo(t *testing.T) {
	svc := NewAuditService(nil, NewTestLogger())

	assert.NotPanics(t, func() {
		svc.Record(context.Background(), newAuditEntry(models.AuditEventTypeLogin, models.AuditActionVerify, true, "", nil))
	})
}

func TestAuditService_RecentEvents(t *testing.T) {
	var gotLimit int
	var gotTypes []string
	repo := &MockAuditLogRepository{
		ListByEventTypesFunc: func(ctx context.Context, eventTypes []string, limit int) ([]*models.AuditLog, error) {
			gotTypes = eventTypes
			gotLimit = limit
			return []*models.AuditLog{{EventType: eventTypes[0]}}, nil
		},
	}
	svc := NewAuditService(repo, NewTestLogger())

	logs, err := svc.RecentEvents(context.Background(), []string{models.AuditEventTypeAccountLocked}, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.Equal(t, 50, gotLimit)
	assert.Equal(t, []string{models.AuditEventTypeAccountLocked}, gotTypes)

	_, err = svc.RecentEvents(context.Background(), gotTypes, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, gotLimit)

	repo.ListByEventTypesFunc = func(ctx context.Context, eventTypes []string, limit int) ([]*models.AuditLog, error) {
		return nil, errors.New("connection refused")
	}
	_, err = svc.RecentEvents(context.Background(), gotTypes, 10)
	assert.Error(t, err)
}

func TestNewAuditEntry_EmptyTargetIsNil(t *testing.T) {
	entry := newAuditEntry(models.AuditEventTypeLogin, models.AuditActionVerify, true, "", nil)
	assert.Nil(t, entry.TargetEmail)
}
