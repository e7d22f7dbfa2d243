package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/lockbox/internal/database"
	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LoginHistoryRepository appends to and reads the login history. Rows are never updated.
type LoginHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewLoginHistoryRepository creates a new LoginHistoryRepository
func NewLoginHistoryRepository(db *database.DB) *LoginHistoryRepository {
	return &LoginHistoryRepository{pool: db.Pool}
}

// Append stores a login record
func (r *LoginHistoryRepository) Append(ctx context.Context, rec *models.LoginRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	var userID *string
	if rec.UserID != "" {
		userID = &rec.UserID
	}

	query := `
		INSERT INTO login_history (id, user_id, email, success, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		rec.ID, userID, rec.Email, rec.Success, rec.IPAddress, rec.UserAgent, rec.Timestamp,
	)
	return database.MapPostgresError(err)
}

// GetLastSuccessfulLogin returns the most recent successful login time, or nil
func (r *LoginHistoryRepository) GetLastSuccessfulLogin(ctx context.Context, userID string) (*time.Time, error) {
	query := `
		SELECT created_at FROM login_history
		WHERE user_id = $1 AND success = true
		ORDER BY created_at DESC
		LIMIT 1
	`

	var ts time.Time
	err := r.pool.QueryRow(ctx, query, userID).Scan(&ts)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &ts, nil
}

// CountFailedSince returns the number of failed logins for a user strictly after since
func (r *LoginHistoryRepository) CountFailedSince(ctx context.Context, userID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_history
		WHERE user_id = $1 AND success = false AND created_at > $2
	`

	var count int
	err := r.pool.QueryRow(ctx, query, userID, since).Scan(&count)
	return count, err
}
