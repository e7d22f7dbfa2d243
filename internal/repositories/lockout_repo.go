package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/lockbox/internal/database"
	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/jackc/pgx/v5"
)

// LockoutRepository stores the active lockout per email and the escalation
// ledger that outlives it
type LockoutRepository struct {
	db *database.DB
}

// NewLockoutRepository creates a new LockoutRepository
func NewLockoutRepository(db *database.DB) *LockoutRepository {
	return &LockoutRepository{db: db}
}

// GetLockout returns the active lockout or models.ErrNotFound
func (r *LockoutRepository) GetLockout(ctx context.Context, email string) (*models.AccountLockout, error) {
	query := `
		SELECT email, locked_at, unlock_at, failed_attempts, lockout_count
		FROM account_lockouts WHERE email = $1
	`

	var l models.AccountLockout
	err := r.db.Pool.QueryRow(ctx, query, email).Scan(
		&l.Email, &l.LockedAt, &l.UnlockAt, &l.FailedAttempts, &l.LockoutCount,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &l, nil
}

// LockIfThresholdReached counts the attempts after since and, when the count
// reaches threshold, writes the lockout built by next, bumps the ledger and
// clears the attempts. A threshold of zero locks unless a lockout is already
// running at the new LockedAt, in which case the attempts are absorbed and
// nil is returned. The whole sequence runs under a per-email advisory lock so
// concurrent failures lock once.
func (r *LockoutRepository) LockIfThresholdReached(ctx context.Context, email string, since time.Time, threshold int, next models.LockoutFunc) (*models.AccountLockout, error) {
	var lockout *models.AccountLockout

	err := r.db.WithKeyLock(ctx, "lockout:"+email, func(tx pgx.Tx) error {
		var count int
		err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM login_attempts WHERE email = $1 AND attempted_at > $2`,
			email, since,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to count attempts: %w", err)
		}
		if count < threshold {
			return nil
		}

		previous, err := previousLockoutCount(ctx, tx, email)
		if err != nil {
			return err
		}

		candidate := next(previous, count)
		candidate.Email = email

		var running bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM account_lockouts WHERE email = $1 AND unlock_at > $2)`,
			email, candidate.LockedAt,
		).Scan(&running)
		if err != nil {
			return fmt.Errorf("failed to read active lockout: %w", err)
		}
		if running {
			// absorbed by the lockout already in force
			if _, err := tx.Exec(ctx, `DELETE FROM login_attempts WHERE email = $1`, email); err != nil {
				return fmt.Errorf("failed to clear attempts: %w", err)
			}
			return nil
		}
		lockout = candidate

		_, err = tx.Exec(ctx, `
			INSERT INTO account_lockouts (email, locked_at, unlock_at, failed_attempts, lockout_count)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (email) DO UPDATE SET
				locked_at = EXCLUDED.locked_at,
				unlock_at = EXCLUDED.unlock_at,
				failed_attempts = EXCLUDED.failed_attempts,
				lockout_count = EXCLUDED.lockout_count
		`, lockout.Email, lockout.LockedAt, lockout.UnlockAt, lockout.FailedAttempts, lockout.LockoutCount)
		if err != nil {
			return fmt.Errorf("failed to write lockout: %w", database.MapPostgresError(err))
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO lockout_counters (email, lockout_count, last_locked_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (email) DO UPDATE SET
				lockout_count = GREATEST(lockout_counters.lockout_count, EXCLUDED.lockout_count),
				last_locked_at = EXCLUDED.last_locked_at
		`, lockout.Email, lockout.LockoutCount, lockout.LockedAt)
		if err != nil {
			return fmt.Errorf("failed to update lockout ledger: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM login_attempts WHERE email = $1`, email); err != nil {
			return fmt.Errorf("failed to clear attempts: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return lockout, nil
}

// previousLockoutCount reads the ledger, falling back to an active row written
// before the ledger existed
func previousLockoutCount(ctx context.Context, tx pgx.Tx, email string) (int, error) {
	var count int
	err := tx.QueryRow(ctx, `
		SELECT GREATEST(
			COALESCE((SELECT lockout_count FROM lockout_counters WHERE email = $1), 0),
			COALESCE((SELECT lockout_count FROM account_lockouts WHERE email = $1), 0)
		)
	`, email).Scan(&count)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to read lockout ledger: %w", err)
	}
	return count, nil
}

// DeleteLockout removes the active lockout for an email
func (r *LockoutRepository) DeleteLockout(ctx context.Context, email string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM account_lockouts WHERE email = $1`, email)
	return err
}

// DeleteLockoutIfExpired removes the lockout only if it has run out at now,
// so a concurrent re-lock is never erased
func (r *LockoutRepository) DeleteLockoutIfExpired(ctx context.Context, email string, now time.Time) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM account_lockouts WHERE email = $1 AND unlock_at <= $2`, email, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteExpiredLockouts removes every lockout that has run out
func (r *LockoutRepository) DeleteExpiredLockouts(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM account_lockouts WHERE unlock_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
