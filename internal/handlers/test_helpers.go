package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/lockbox/internal/auth"
	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/BradenHooton/lockbox/internal/services"
	pkghttp "github.com/BradenHooton/lockbox/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds user claims to request context for testing authenticated endpoints
func WithAuthContext(req *http.Request, userID, email string) *http.Request {
	claims := &models.TokenClaims{
		UserID: userID,
		Email:  email,
		Role:   models.RoleUser,
		Type:   "access",
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// WithAdminContext adds admin user claims to request context
func WithAdminContext(req *http.Request, userID, email string) *http.Request {
	claims := &models.TokenClaims{
		UserID: userID,
		Email:  email,
		Role:   models.RoleAdmin,
		Type:   "access",
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc func(ctx context.Context, email, password string, info services.LoginRequestInfo) (*services.AuthResponse, error)
}

func (m *MockAuthService) Login(ctx context.Context, email, password string, info services.LoginRequestInfo) (*services.AuthResponse, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginFunc(ctx, email, password, info)
}

// MockLockStatusReader implements LockStatusReader and SecurityStatusReader for testing
type MockLockStatusReader struct {
	IsAccountLockedFunc          func(ctx context.Context, email string) models.LockStatus
	GetAccountSecurityStatusFunc func(ctx context.Context, email string) *models.AccountSecurityStatus
}

func (m *MockLockStatusReader) IsAccountLocked(ctx context.Context, email string) models.LockStatus {
	if m.IsAccountLockedFunc == nil {
		return models.LockStatus{}
	}
	return m.IsAccountLockedFunc(ctx, email)
}

func (m *MockLockStatusReader) GetAccountSecurityStatus(ctx context.Context, email string) *models.AccountSecurityStatus {
	if m.GetAccountSecurityStatusFunc == nil {
		return &models.AccountSecurityStatus{Email: email}
	}
	return m.GetAccountSecurityStatusFunc(ctx, email)
}

// MockRecoveryService implements RecoveryService and SecurityQuestionService for testing
type MockRecoveryService struct {
	GetRecoveryQuestionsFunc   func(ctx context.Context, email string) ([]models.SecurityQuestionPrompt, error)
	VerifyFunc                 func(ctx context.Context, email string, answers []models.SecurityAnswer) (bool, error)
	ResetFunc                  func(ctx context.Context, email string, answers []models.SecurityAnswer, newPassword string) error
	SetupSecurityQuestionsFunc func(ctx context.Context, userID string, answers []models.SecurityAnswer) error
}

func (m *MockRecoveryService) GetRecoveryQuestions(ctx context.Context, email string) ([]models.SecurityQuestionPrompt, error) {
	if m.GetRecoveryQuestionsFunc == nil {
		return nil, models.ErrRecoveryNotEnabled
	}
	return m.GetRecoveryQuestionsFunc(ctx, email)
}

func (m *MockRecoveryService) VerifySecurityQuestions(ctx context.Context, email string, answers []models.SecurityAnswer) (bool, error) {
	if m.VerifyFunc == nil {
		return false, models.ErrRecoveryNotEnabled
	}
	return m.VerifyFunc(ctx, email, answers)
}

func (m *MockRecoveryService) ResetPasswordWithSecurityQuestions(ctx context.Context, email string, answers []models.SecurityAnswer, newPassword string) error {
	if m.ResetFunc == nil {
		return models.ErrRecoveryNotEnabled
	}
	return m.ResetFunc(ctx, email, answers, newPassword)
}

func (m *MockRecoveryService) SetupSecurityQuestions(ctx context.Context, userID string, answers []models.SecurityAnswer) error {
	if m.SetupSecurityQuestionsFunc == nil {
		return nil
	}
	return m.SetupSecurityQuestionsFunc(ctx, userID, answers)
}

// MockCredentialResetter implements CredentialResetter for testing
type MockCredentialResetter struct {
	CompleteFunc func(ctx context.Context, token, newPassword string) error
}

func (m *MockCredentialResetter) CompleteCredentialReset(ctx context.Context, token, newPassword string) error {
	if m.CompleteFunc == nil {
		return models.ErrResetTokenInvalid
	}
	return m.CompleteFunc(ctx, token, newPassword)
}

// MockUserService implements UserService for testing
type MockUserService struct {
	GetUserByIDFunc func(ctx context.Context, id string) (*services.UserResponse, error)
}

func (m *MockUserService) GetUserByID(ctx context.Context, id string) (*services.UserResponse, error) {
	if m.GetUserByIDFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetUserByIDFunc(ctx, id)
}

// MockPasswordService implements PasswordService for testing
type MockPasswordService struct {
	ChangePasswordFunc    func(ctx context.Context, identity models.Identity, currentPassword, newPassword string) error
	CanChangePasswordFunc func(ctx context.Context, userID string) models.PasswordChangeEligibility
}

func (m *MockPasswordService) ChangePassword(ctx context.Context, identity models.Identity, currentPassword, newPassword string) error {
	if m.ChangePasswordFunc == nil {
		return nil
	}
	return m.ChangePasswordFunc(ctx, identity, currentPassword, newPassword)
}

func (m *MockPasswordService) CanChangePassword(ctx context.Context, userID string) models.PasswordChangeEligibility {
	if m.CanChangePasswordFunc == nil {
		return models.PasswordChangeEligibility{Allowed: true}
	}
	return m.CanChangePasswordFunc(ctx, userID)
}

// MockLastLoginReader implements LastLoginReader for testing
type MockLastLoginReader struct {
	GetLastLoginInfoFunc func(ctx context.Context, userID string) (*models.LastLoginInfo, error)
}

func (m *MockLastLoginReader) GetLastLoginInfo(ctx context.Context, userID string) (*models.LastLoginInfo, error) {
	if m.GetLastLoginInfoFunc == nil {
		return &models.LastLoginInfo{}, nil
	}
	return m.GetLastLoginInfoFunc(ctx, userID)
}

// MockAdminService implements AdminServiceInterface for testing
type MockAdminService struct {
	AdminUnlockAccountFunc func(ctx context.Context, email, adminEmail string) bool
	GetRecentActivityFunc  func(ctx context.Context, limit int) (*services.DashboardActivityResponse, error)
}

func (m *MockAdminService) AdminUnlockAccount(ctx context.Context, email, adminEmail string) bool {
	if m.AdminUnlockAccountFunc == nil {
		return true
	}
	return m.AdminUnlockAccountFunc(ctx, email, adminEmail)
}

func (m *MockAdminService) GetRecentActivity(ctx context.Context, limit int) (*services.DashboardActivityResponse, error) {
	if m.GetRecentActivityFunc == nil {
		return &services.DashboardActivityResponse{}, nil
	}
	return m.GetRecentActivityFunc(ctx, limit)
}
