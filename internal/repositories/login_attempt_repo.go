package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/lockbox/internal/database"
	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LoginAttemptRepository handles database operations for failed login attempts
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// RecordAttempt records a failed login attempt
func (r *LoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}

	query := `
		INSERT INTO login_attempts (id, email, attempted_at, attempt_number, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.ID,
		attempt.Email,
		attempt.AttemptedAt,
		attempt.AttemptNumber,
		attempt.ExpiresAt,
	)

	return database.MapPostgresError(err)
}

// CountAttemptsSince returns the number of attempts for an email strictly after since
func (r *LoginAttemptRepository) CountAttemptsSince(ctx context.Context, email string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE email = $1 AND attempted_at > $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, email, since).Scan(&count)
	return count, err
}

// GetAttemptsSince returns attempts for an email strictly after since, newest first
func (r *LoginAttemptRepository) GetAttemptsSince(ctx context.Context, email string, since time.Time) ([]*models.LoginAttempt, error) {
	query := `
		SELECT id, email, attempted_at, attempt_number, expires_at
		FROM login_attempts
		WHERE email = $1 AND attempted_at > $2
		ORDER BY attempted_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, email, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query login attempts: %w", err)
	}

	attempts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.LoginAttempt, error) {
		var a models.LoginAttempt
		err := row.Scan(&a.ID, &a.Email, &a.AttemptedAt, &a.AttemptNumber, &a.ExpiresAt)
		return &a, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan login attempts: %w", err)
	}

	return attempts, nil
}

// DeleteAttempts removes every attempt for an email
func (r *LoginAttemptRepository) DeleteAttempts(ctx context.Context, email string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM login_attempts WHERE email = $1`, email)
	return err
}

// DeleteExpiredAttempts removes attempts whose retention has passed
func (r *LoginAttemptRepository) DeleteExpiredAttempts(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM login_attempts WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
