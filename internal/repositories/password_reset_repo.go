package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/lockbox/internal/database"
	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PasswordResetRepository handles password reset token data access
type PasswordResetRepository struct {
	pool *pgxpool.Pool
}

// NewPasswordResetRepository creates a new PasswordResetRepository
func NewPasswordResetRepository(db *database.DB) *PasswordResetRepository {
	return &PasswordResetRepository{pool: db.Pool}
}

const resetTokenColumns = `id, user_id, email, token_hash, used, expires_at, created_at`

func scanResetTokenRow(row rowScanner) (*models.PasswordResetToken, error) {
	var token models.PasswordResetToken

	err := row.Scan(
		&token.ID, &token.UserID, &token.Email, &token.TokenHash,
		&token.Used, &token.ExpiresAt, &token.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &token, nil
}

// Create stores a new reset token hash
func (r *PasswordResetRepository) Create(ctx context.Context, userID, email, tokenHash string, expiresAt time.Time) (*models.PasswordResetToken, error) {
	query := `
		INSERT INTO password_reset_tokens (user_id, email, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + resetTokenColumns

	token, err := scanResetTokenRow(r.pool.QueryRow(ctx, query, userID, email, tokenHash, expiresAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create password reset token: %w", err)
	}

	return token, nil
}

// GetByTokenHash retrieves a token by its hash
func (r *PasswordResetRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	query := `SELECT ` + resetTokenColumns + ` FROM password_reset_tokens WHERE token_hash = $1`
	return scanResetTokenRow(r.pool.QueryRow(ctx, query, tokenHash))
}

// MarkAsUsed consumes a token; a token already used yields models.ErrNotFound
func (r *PasswordResetRepository) MarkAsUsed(ctx context.Context, id string) error {
	query := `UPDATE password_reset_tokens SET used = true WHERE id = $1 AND used = false`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark token as used: %w", err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// DeleteByUserID invalidates every outstanding token for a user
func (r *PasswordResetRepository) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM password_reset_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete tokens for user: %w", err)
	}
	return nil
}

// DeleteExpiredResetTokens removes expired and used tokens
func (r *PasswordResetRepository) DeleteExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM password_reset_tokens WHERE expires_at <= $1 OR used = true`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired reset tokens: %w", err)
	}
	return result.RowsAffected(), nil
}

// CountCreatedSince returns how many tokens were issued to a user after since
func (r *PasswordResetRepository) CountCreatedSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM password_reset_tokens WHERE user_id = $1 AND created_at > $2`,
		userID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count reset tokens: %w", err)
	}
	return count, nil
}
