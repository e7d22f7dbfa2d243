package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/google/uuid"
)

// MemoryStore keeps attempts, lockouts and the escalation ledger in process.
// It is safe for concurrent use and suited to single-instance deployments and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	attempts map[string][]*models.LoginAttempt
	lockouts map[string]*models.AccountLockout
	ledger   map[string]int
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		attempts: make(map[string][]*models.LoginAttempt),
		lockouts: make(map[string]*models.AccountLockout),
		ledger:   make(map[string]int),
	}
}

func (m *MemoryStore) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	stored := *attempt
	m.attempts[attempt.Email] = append(m.attempts[attempt.Email], &stored)
	return nil
}

func (m *MemoryStore) CountAttemptsSince(ctx context.Context, email string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.countLocked(email, since), nil
}

func (m *MemoryStore) countLocked(email string, since time.Time) int {
	n := 0
	for _, a := range m.attempts[email] {
		if a.AttemptedAt.After(since) {
			n++
		}
	}
	return n
}

func (m *MemoryStore) GetAttemptsSince(ctx context.Context, email string, since time.Time) ([]*models.LoginAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.LoginAttempt, 0)
	for _, a := range m.attempts[email] {
		if a.AttemptedAt.After(since) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptedAt.After(out[j].AttemptedAt) })
	return out, nil
}

func (m *MemoryStore) DeleteAttempts(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.attempts, email)
	return nil
}

func (m *MemoryStore) DeleteExpiredAttempts(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for email, list := range m.attempts {
		kept := list[:0]
		for _, a := range list {
			if a.ExpiresAt.After(now) {
				kept = append(kept, a)
			} else {
				removed++
			}
		}
		if len(kept) == 0 {
			delete(m.attempts, email)
		} else {
			m.attempts[email] = kept
		}
	}
	return removed, nil
}

func (m *MemoryStore) GetLockout(ctx context.Context, email string) (*models.AccountLockout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.lockouts[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

// LockIfThresholdReached holds the write lock for the whole count-and-lock
// sequence. Attempts that reach the threshold while a lockout is still running
// are absorbed into it: they are cleared and nothing escalates.
func (m *MemoryStore) LockIfThresholdReached(ctx context.Context, email string, since time.Time, threshold int, next models.LockoutFunc) (*models.AccountLockout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := m.countLocked(email, since)
	if count < threshold {
		return nil, nil
	}

	previous := m.ledger[email]
	active, hasActive := m.lockouts[email]
	if hasActive && active.LockoutCount > previous {
		previous = active.LockoutCount
	}

	lockout := next(previous, count)
	lockout.Email = email

	if hasActive && !active.IsExpired(lockout.LockedAt) {
		delete(m.attempts, email)
		return nil, nil
	}

	stored := *lockout
	m.lockouts[email] = &stored
	if lockout.LockoutCount > m.ledger[email] {
		m.ledger[email] = lockout.LockoutCount
	}
	delete(m.attempts, email)

	return lockout, nil
}

func (m *MemoryStore) DeleteLockout(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.lockouts, email)
	return nil
}

func (m *MemoryStore) DeleteLockoutIfExpired(ctx context.Context, email string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.lockouts[email]
	if !ok || !l.IsExpired(now) {
		return false, nil
	}
	delete(m.lockouts, email)
	return true, nil
}

func (m *MemoryStore) DeleteExpiredLockouts(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for email, l := range m.lockouts {
		if l.IsExpired(now) {
			delete(m.lockouts, email)
			removed++
		}
	}
	return removed, nil
}
