package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
)

// NewTestLogger returns a logger that discards output
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// TestClock is a manually advanced clock
type TestClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewTestClock(start time.Time) *TestClock {
	return &TestClock{now: start}
}

func (c *TestClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *TestClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *TestClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// MockUserRepository implements UserRepository and UserStore for testing
type MockUserRepository struct {
	GetByIDFunc        func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc     func(ctx context.Context, email string) (*models.User, error)
	CreateFunc         func(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePasswordFunc func(ctx context.Context, id, passwordHash string, changedAt time.Time) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash, changedAt)
	}
	return nil
}

// MockSecurityProfileRepository keeps profiles in a map unless a func overrides it
type MockSecurityProfileRepository struct {
	mu       sync.Mutex
	profiles map[string]*models.UserSecurityProfile

	GetByUserIDFunc func(ctx context.Context, userID string) (*models.UserSecurityProfile, error)
	UpsertFunc      func(ctx context.Context, profile *models.UserSecurityProfile) error
	TouchLoginFunc  func(ctx context.Context, userID string, at time.Time, success bool) error
}

func NewMockSecurityProfileRepository() *MockSecurityProfileRepository {
	return &MockSecurityProfileRepository{profiles: make(map[string]*models.UserSecurityProfile)}
}

func (m *MockSecurityProfileRepository) GetByUserID(ctx context.Context, userID string) (*models.UserSecurityProfile, error) {
	if m.GetByUserIDFunc != nil {
		return m.GetByUserIDFunc(ctx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	clone := *p
	clone.PasswordHashes = append([]string(nil), p.PasswordHashes...)
	clone.SecurityQuestions = append([]models.SecurityQuestion(nil), p.SecurityQuestions...)
	clone.PasswordChangeHistory = append([]models.PasswordChange(nil), p.PasswordChangeHistory...)
	return &clone, nil
}

func (m *MockSecurityProfileRepository) Upsert(ctx context.Context, profile *models.UserSecurityProfile) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, profile)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *profile
	m.profiles[profile.UserID] = &stored
	return nil
}

func (m *MockSecurityProfileRepository) TouchLogin(ctx context.Context, userID string, at time.Time, success bool) error {
	if m.TouchLoginFunc != nil {
		return m.TouchLoginFunc(ctx, userID, at, success)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil
	}
	p.LastLoginAttempt = &at
	if success {
		p.LastSuccessfulLogin = &at
	}
	return nil
}

// MockAuthProvider implements AuthProvider for testing
type MockAuthProvider struct {
	ReauthenticateFunc   func(ctx context.Context, identity models.Identity, currentSecret string) error
	UpdateCredentialFunc func(ctx context.Context, identity models.Identity, newSecret string) error
	DispatchFunc         func(ctx context.Context, email string) error

	mu         sync.Mutex
	Updated    []string
	Dispatched []string
}

func (m *MockAuthProvider) Reauthenticate(ctx context.Context, identity models.Identity, currentSecret string) error {
	if m.ReauthenticateFunc != nil {
		return m.ReauthenticateFunc(ctx, identity, currentSecret)
	}
	return nil
}

func (m *MockAuthProvider) UpdateCredential(ctx context.Context, identity models.Identity, newSecret string) error {
	if m.UpdateCredentialFunc != nil {
		if err := m.UpdateCredentialFunc(ctx, identity, newSecret); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Updated = append(m.Updated, newSecret)
	return nil
}

func (m *MockAuthProvider) DispatchCredentialResetMessage(ctx context.Context, email string) error {
	if m.DispatchFunc != nil {
		if err := m.DispatchFunc(ctx, email); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Dispatched = append(m.Dispatched, email)
	return nil
}

// MockPasswordResetRepository implements PasswordResetRepository for testing
type MockPasswordResetRepository struct {
	CreateFunc            func(ctx context.Context, userID, email, tokenHash string, expiresAt time.Time) (*models.PasswordResetToken, error)
	GetByTokenHashFunc    func(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error)
	MarkAsUsedFunc        func(ctx context.Context, id string) error
	DeleteByUserIDFunc    func(ctx context.Context, userID string) error
	CountCreatedSinceFunc func(ctx context.Context, userID string, since time.Time) (int, error)
}

func (m *MockPasswordResetRepository) Create(ctx context.Context, userID, email, tokenHash string, expiresAt time.Time) (*models.PasswordResetToken, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, userID, email, tokenHash, expiresAt)
	}
	return &models.PasswordResetToken{ID: "reset_123", UserID: userID, Email: email, TokenHash: tokenHash, ExpiresAt: expiresAt}, nil
}

func (m *MockPasswordResetRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	if m.GetByTokenHashFunc != nil {
		return m.GetByTokenHashFunc(ctx, tokenHash)
	}
	return nil, models.ErrNotFound
}

func (m *MockPasswordResetRepository) MarkAsUsed(ctx context.Context, id string) error {
	if m.MarkAsUsedFunc != nil {
		return m.MarkAsUsedFunc(ctx, id)
	}
	return nil
}

func (m *MockPasswordResetRepository) DeleteByUserID(ctx context.Context, userID string) error {
	if m.DeleteByUserIDFunc != nil {
		return m.DeleteByUserIDFunc(ctx, userID)
	}
	return nil
}

func (m *MockPasswordResetRepository) CountCreatedSince(ctx context.Context, userID string, since time.Time) (int, error) {
	if m.CountCreatedSinceFunc != nil {
		return m.CountCreatedSinceFunc(ctx, userID, since)
	}
	return 0, nil
}

// MockEmailService implements EmailService for testing
type MockEmailService struct {
	SendPasswordResetEmailFunc func(ctx context.Context, email, token string, expiresAt time.Time) error
}

func (m *MockEmailService) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	if m.SendPasswordResetEmailFunc != nil {
		return m.SendPasswordResetEmailFunc(ctx, email, token, expiresAt)
	}
	return nil
}

// MockAuditor captures recorded audit entries
type MockAuditor struct {
	mu      sync.Mutex
	Entries []*models.AuditLog
}

func (m *MockAuditor) Record(ctx context.Context, entry *models.AuditLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, entry)
}

// ByType returns the captured entries of one event type
func (m *MockAuditor) ByType(eventType string) []*models.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AuditLog
	for _, e := range m.Entries {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// MockAuditLogRepository implements AuditLogRepository for testing
type MockAuditLogRepository struct {
	CreateFunc           func(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
	ListByEventTypesFunc func(ctx context.Context, eventTypes []string, limit int) ([]*models.AuditLog, error)
}

func (m *MockAuditLogRepository) Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, log)
	}
	return log, nil
}

func (m *MockAuditLogRepository) ListByEventTypes(ctx context.Context, eventTypes []string, limit int) ([]*models.AuditLog, error) {
	if m.ListByEventTypesFunc != nil {
		return m.ListByEventTypesFunc(ctx, eventTypes, limit)
	}
	return []*models.AuditLog{}, nil
}

// MockLoginHistoryRepository keeps login records in memory
type MockLoginHistoryRepository struct {
	mu      sync.Mutex
	Records []*models.LoginRecord

	AppendFunc func(ctx context.Context, rec *models.LoginRecord) error
}

func (m *MockLoginHistoryRepository) Append(ctx context.Context, rec *models.LoginRecord) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, rec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records = append(m.Records, rec)
	return nil
}

func (m *MockLoginHistoryRepository) GetLastSuccessfulLogin(ctx context.Context, userID string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last *time.Time
	for _, r := range m.Records {
		if r.UserID == userID && r.Success && (last == nil || r.Timestamp.After(*last)) {
			ts := r.Timestamp
			last = &ts
		}
	}
	return last, nil
}

func (m *MockLoginHistoryRepository) CountFailedSince(ctx context.Context, userID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, r := range m.Records {
		if r.UserID == userID && !r.Success && r.Timestamp.After(since) {
			count++
		}
	}
	return count, nil
}

// NewTestUser creates a test user with default values
func NewTestUser(id, email, name string) *models.User {
	return &models.User{
		ID:        id,
		Email:     email,
		Name:      name,
		Role:      models.RoleUser,
		Status:    models.UserStatusActive,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

// NewTestUserWithPassword creates a test user with a password hash
func NewTestUserWithPassword(id, email, name, passwordHash string) *models.User {
	user := NewTestUser(id, email, name)
	user.PasswordHash = passwordHash
	return user
}

// NewTestUserWithStatus creates a test user with specific status
func NewTestUserWithStatus(id, email, name, status string) *models.User {
	user := NewTestUser(id, email, name)
	user.Status = status
	return user
}
