//go:build integration

package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/BradenHooton/lockbox/internal/repositories"
	"github.com/BradenHooton/lockbox/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// attemptBackend is the surface both durable stores share
type attemptBackend interface {
	services.AttemptStore
	services.LockoutStore
	DeleteExpiredAttempts(ctx context.Context, now time.Time) (int64, error)
}

type pgBackend struct {
	*repositories.LoginAttemptRepository
	*repositories.LockoutRepository
}

func backends(t *testing.T) map[string]attemptBackend {
	t.Helper()
	resetState(t)
	return map[string]attemptBackend{
		"postgres": pgBackend{
			LoginAttemptRepository: repositories.NewLoginAttemptRepository(testDB.DB),
			LockoutRepository:      repositories.NewLockoutRepository(testDB.DB),
		},
		"redis": repositories.NewRedisAttemptStore(testRedis.Client),
	}
}

func record(t *testing.T, s services.AttemptStore, email string, at time.Time, n int) {
	t.Helper()
	require.NoError(t, s.RecordAttempt(context.Background(), &models.LoginAttempt{
		Email:         email,
		AttemptedAt:   at,
		AttemptNumber: n,
		ExpiresAt:     at.Add(2 * time.Hour),
	}))
}

func fixedLock(now time.Time) models.LockoutFunc {
	return func(previous, failed int) *models.AccountLockout {
		return &models.AccountLockout{
			LockedAt:       now,
			UnlockAt:       now.Add(15 * time.Minute),
			FailedAttempts: failed,
			LockoutCount:   previous + 1,
		}
	}
}

func TestAttemptStores_WindowIsExclusive(t *testing.T) {
	ctx := context.Background()
	t0 := time.Now().UTC().Truncate(time.Millisecond)

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			email := name + "-window@x.com"
			record(t, store, email, t0.Add(-60*time.Minute), 1)
			record(t, store, email, t0.Add(-30*time.Minute), 2)
			record(t, store, email, t0.Add(-1*time.Minute), 3)

			count, err := store.CountAttemptsSince(ctx, email, t0.Add(-60*time.Minute))
			require.NoError(t, err)
			assert.Equal(t, 2, count)

			attempts, err := store.GetAttemptsSince(ctx, email, t0.Add(-61*time.Minute))
			require.NoError(t, err)
			require.Len(t, attempts, 3)
			assert.Equal(t, 3, attempts[0].AttemptNumber)
		})
	}
}

func TestAttemptStores_LockEscalatesAcrossDeletion(t *testing.T) {
	ctx := context.Background()
	t0 := time.Now().UTC().Truncate(time.Millisecond)

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			email := name + "-ledger@x.com"

			record(t, store, email, t0.Add(-time.Minute), 1)
			lockout, err := store.LockIfThresholdReached(ctx, email, t0.Add(-time.Hour), 1, fixedLock(t0))
			require.NoError(t, err)
			require.NotNil(t, lockout)
			assert.Equal(t, 1, lockout.LockoutCount)

			// locking consumes the attempts
			count, err := store.CountAttemptsSince(ctx, email, t0.Add(-time.Hour))
			require.NoError(t, err)
			assert.Zero(t, count)

			require.NoError(t, store.DeleteLockout(ctx, email))
			_, err = store.GetLockout(ctx, email)
			assert.ErrorIs(t, err, models.ErrNotFound)

			record(t, store, email, t0.Add(time.Second), 1)
			again, err := store.LockIfThresholdReached(ctx, email, t0.Add(-time.Hour), 1, fixedLock(t0.Add(time.Minute)))
			require.NoError(t, err)
			require.NotNil(t, again)
			assert.Equal(t, 2, again.LockoutCount)
		})
	}
}

func TestAttemptStores_BelowThresholdDoesNotLock(t *testing.T) {
	ctx := context.Background()
	t0 := time.Now().UTC().Truncate(time.Millisecond)

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			email := name + "-below@x.com"
			record(t, store, email, t0.Add(-time.Minute), 1)

			lockout, err := store.LockIfThresholdReached(ctx, email, t0.Add(-time.Hour), 5, fixedLock(t0))
			require.NoError(t, err)
			assert.Nil(t, lockout)

			_, err = store.GetLockout(ctx, email)
			assert.ErrorIs(t, err, models.ErrNotFound)
		})
	}
}

func TestAttemptStores_ConcurrentFailuresLockOnce(t *testing.T) {
	ctx := context.Background()
	t0 := time.Now().UTC().Truncate(time.Millisecond)

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			email := name + "-race@x.com"
			for i := 0; i < 5; i++ {
				record(t, store, email, t0.Add(time.Duration(-i-1)*time.Second), i+1)
			}

			var (
				wg    sync.WaitGroup
				mu    sync.Mutex
				locks int
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					l, err := store.LockIfThresholdReached(ctx, email, t0.Add(-time.Hour), 5, fixedLock(t0))
					if err == nil && l != nil {
						mu.Lock()
						locks++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 1, locks)
			lockout, err := store.GetLockout(ctx, email)
			require.NoError(t, err)
			assert.Equal(t, 1, lockout.LockoutCount)
		})
	}
}

func TestAttemptStores_RunningLockoutAbsorbsAttempts(t *testing.T) {
	ctx := context.Background()
	t0 := time.Now().UTC().Truncate(time.Millisecond)

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			email := name + "-absorb@x.com"
			record(t, store, email, t0.Add(-time.Minute), 1)
			first, err := store.LockIfThresholdReached(ctx, email, t0.Add(-time.Hour), 1, fixedLock(t0))
			require.NoError(t, err)
			require.NotNil(t, first)

			record(t, store, email, t0.Add(time.Minute), 1)
			l, err := store.LockIfThresholdReached(ctx, email, t0.Add(-time.Hour), 1, fixedLock(t0.Add(2*time.Minute)))
			require.NoError(t, err)
			assert.Nil(t, l)

			current, err := store.GetLockout(ctx, email)
			require.NoError(t, err)
			assert.Equal(t, 1, current.LockoutCount)
			assert.True(t, first.UnlockAt.Equal(current.UnlockAt))

			count, err := store.CountAttemptsSince(ctx, email, t0.Add(-time.Hour))
			require.NoError(t, err)
			assert.Zero(t, count)
		})
	}
}

func TestAttemptStores_ConditionalExpiryDelete(t *testing.T) {
	ctx := context.Background()
	t0 := time.Now().UTC().Truncate(time.Millisecond)

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			email := name + "-expiry@x.com"
			record(t, store, email, t0.Add(-time.Minute), 1)
			_, err := store.LockIfThresholdReached(ctx, email, t0.Add(-time.Hour), 1, fixedLock(t0))
			require.NoError(t, err)

			deleted, err := store.DeleteLockoutIfExpired(ctx, email, t0.Add(14*time.Minute))
			require.NoError(t, err)
			assert.False(t, deleted)

			deleted, err = store.DeleteLockoutIfExpired(ctx, email, t0.Add(15*time.Minute))
			require.NoError(t, err)
			assert.True(t, deleted)
		})
	}
}

func TestLoginAttemptRepository_DeleteExpiredAttempts(t *testing.T) {
	resetState(t)
	ctx := context.Background()
	repo := repositories.NewLoginAttemptRepository(testDB.DB)
	t0 := time.Now().UTC().Truncate(time.Millisecond)

	record(t, repo, "old@x.com", t0.Add(-3*time.Hour), 1)
	record(t, repo, "new@x.com", t0.Add(-time.Minute), 1)

	removed, err := repo.DeleteExpiredAttempts(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
