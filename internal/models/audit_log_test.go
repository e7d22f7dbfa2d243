package models

import (
	"testing"
	"time"
)

func TestNewLockoutMetadata(t *testing.T) {
	lockedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	lockout := &AccountLockout{
		Email:          "a@x.com",
		LockedAt:       lockedAt,
		UnlockAt:       lockedAt.Add(30 * time.Minute),
		FailedAttempts: 5,
		LockoutCount:   2,
	}

	metadata := NewLockoutMetadata(lockout)

	if metadata["duration_minutes"] != 30 {
		t.Errorf("expected duration_minutes 30, got %v", metadata["duration_minutes"])
	}
	if metadata["lockout_count"] != 2 {
		t.Errorf("expected lockout_count 2, got %v", metadata["lockout_count"])
	}
	if metadata["unlock_at"] != "2026-03-01T10:30:00Z" {
		t.Errorf("unexpected unlock_at %v", metadata["unlock_at"])
	}
}

func TestNewAdminUnlockMetadata_WithoutPriorLockout(t *testing.T) {
	metadata := NewAdminUnlockMetadata("admin@x.com", nil)

	if metadata["admin_email"] != "admin@x.com" {
		t.Errorf("expected admin_email admin@x.com, got %v", metadata["admin_email"])
	}
	if _, ok := metadata["lockout_count"]; ok {
		t.Errorf("expected lockout_count to be omitted without a prior lockout")
	}
}

func TestAuditMetadata_ValueScanRoundTrip(t *testing.T) {
	original := AuditMetadata{"admin_email": "admin@x.com"}

	value, err := original.Value()
	if err != nil {
		t.Fatalf("Value() = %v", err)
	}

	var scanned AuditMetadata
	if err := scanned.Scan(value); err != nil {
		t.Fatalf("Scan() = %v", err)
	}
	if scanned["admin_email"] != "admin@x.com" {
		t.Errorf("expected admin_email to survive, got %v", scanned["admin_email"])
	}
}
