package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BradenHooton/lockbox/internal/database"
	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

// SecurityProfileRepository persists per-user credential policy state
type SecurityProfileRepository struct {
	pool *pgxpool.Pool
}

// NewSecurityProfileRepository creates a new SecurityProfileRepository
func NewSecurityProfileRepository(db *database.DB) *SecurityProfileRepository {
	return &SecurityProfileRepository{pool: db.Pool}
}

const profileColumns = `user_id, security_questions, last_password_change, password_change_history,
	password_hashes, last_login_attempt, last_successful_login, account_recovery_enabled,
	created_at, updated_at`

// GetByUserID returns the profile or models.ErrNotFound
func (r *SecurityProfileRepository) GetByUserID(ctx context.Context, userID string) (*models.UserSecurityProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM user_security_profiles WHERE user_id = $1`

	var (
		p             models.UserSecurityProfile
		questionsJSON []byte
		historyJSON   []byte
		hashes        []string
	)

	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &questionsJSON, &p.LastPasswordChange, &historyJSON,
		pq.Array(&hashes), &p.LastLoginAttempt, &p.LastSuccessfulLogin, &p.AccountRecoveryEnabled,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if err := json.Unmarshal(questionsJSON, &p.SecurityQuestions); err != nil {
		return nil, fmt.Errorf("failed to decode security questions: %w", err)
	}
	if err := json.Unmarshal(historyJSON, &p.PasswordChangeHistory); err != nil {
		return nil, fmt.Errorf("failed to decode password change history: %w", err)
	}
	if hashes == nil {
		hashes = []string{}
	}
	p.PasswordHashes = hashes

	return &p, nil
}

// Upsert writes the whole profile, creating it on first use
func (r *SecurityProfileRepository) Upsert(ctx context.Context, p *models.UserSecurityProfile) error {
	questionsJSON, err := json.Marshal(nonNilQuestions(p.SecurityQuestions))
	if err != nil {
		return fmt.Errorf("failed to encode security questions: %w", err)
	}
	historyJSON, err := json.Marshal(nonNilHistory(p.PasswordChangeHistory))
	if err != nil {
		return fmt.Errorf("failed to encode password change history: %w", err)
	}

	hashes := p.PasswordHashes
	if hashes == nil {
		hashes = []string{}
	}

	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	query := `
		INSERT INTO user_security_profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			security_questions = EXCLUDED.security_questions,
			last_password_change = EXCLUDED.last_password_change,
			password_change_history = EXCLUDED.password_change_history,
			password_hashes = EXCLUDED.password_hashes,
			last_login_attempt = EXCLUDED.last_login_attempt,
			last_successful_login = EXCLUDED.last_successful_login,
			account_recovery_enabled = EXCLUDED.account_recovery_enabled,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.pool.Exec(ctx, query,
		p.UserID, questionsJSON, p.LastPasswordChange, historyJSON,
		pq.Array(hashes), p.LastLoginAttempt, p.LastSuccessfulLogin, p.AccountRecoveryEnabled,
		p.CreatedAt, p.UpdatedAt,
	)
	return database.MapPostgresError(err)
}

// TouchLogin records the latest login attempt, and the latest success when success is true
func (r *SecurityProfileRepository) TouchLogin(ctx context.Context, userID string, at time.Time, success bool) error {
	query := `
		INSERT INTO user_security_profiles (user_id, last_login_attempt, last_successful_login)
		VALUES ($1, $2, CASE WHEN $3 THEN $2::timestamptz END)
		ON CONFLICT (user_id) DO UPDATE SET
			last_login_attempt = EXCLUDED.last_login_attempt,
			last_successful_login = CASE WHEN $3 THEN EXCLUDED.last_login_attempt
			                             ELSE user_security_profiles.last_successful_login END,
			updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query, userID, at, success)
	return database.MapPostgresError(err)
}

func nonNilQuestions(q []models.SecurityQuestion) []models.SecurityQuestion {
	if q == nil {
		return []models.SecurityQuestion{}
	}
	return q
}

func nonNilHistory(h []models.PasswordChange) []models.PasswordChange {
	if h == nil {
		return []models.PasswordChange{}
	}
	return h
}
