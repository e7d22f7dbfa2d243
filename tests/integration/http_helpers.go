//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/lockbox/internal/auth"
	"github.com/BradenHooton/lockbox/internal/database"
	"github.com/BradenHooton/lockbox/internal/handlers"
	middlewareCustom "github.com/BradenHooton/lockbox/internal/middleware"
	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/BradenHooton/lockbox/internal/repositories"
	"github.com/BradenHooton/lockbox/internal/routes"
	"github.com/BradenHooton/lockbox/internal/services"
	pkgauth "github.com/BradenHooton/lockbox/pkg/auth"
	pkghttp "github.com/BradenHooton/lockbox/pkg/http"
)

const testJWTSecret = "test-secret-32-characters-long-for-testing"

// SentEmail is a captured reset message
type SentEmail struct {
	To        string
	Token     string
	ExpiresAt time.Time
}

// MockEmailService captures reset emails for test assertions
type MockEmailService struct {
	SentEmails []SentEmail
	mu         sync.Mutex
}

// SendPasswordResetEmail records the email
func (m *MockEmailService) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SentEmails = append(m.SentEmails, SentEmail{To: email, Token: token, ExpiresAt: expiresAt})
	return nil
}

// GetLastEmail returns the most recent email sent
func (m *MockEmailService) GetLastEmail() *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.SentEmails) == 0 {
		return nil
	}
	return &m.SentEmails[len(m.SentEmails)-1]
}

// TestServer wraps httptest.Server with the full security stack on Postgres
type TestServer struct {
	Server       *httptest.Server
	DB           *database.DB
	EmailService *MockEmailService
	Policy       models.SecurityPolicy
	Tokens       *auth.TokenManager
}

// testPolicy keeps the documented thresholds with a cheap hash cost and no
// minimum interval between password changes
func testPolicy() models.SecurityPolicy {
	policy := models.DefaultSecurityPolicy()
	policy.SecretHashCost = 4
	policy.MinPasswordChangeInterval = 0
	return policy
}

// NewTestServer wires repositories, services, handlers and routes the way the
// API binary does, with a capturing email service and no failure padding
func NewTestServer(db *database.DB, policy models.SecurityPolicy) *TestServer {
	logger := quietLogger()

	userRepo := repositories.NewUserRepository(db)
	profileRepo := repositories.NewSecurityProfileRepository(db)
	historyRepo := repositories.NewLoginHistoryRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)
	resetRepo := repositories.NewPasswordResetRepository(db)
	attemptRepo := repositories.NewLoginAttemptRepository(db)
	lockoutRepo := repositories.NewLockoutRepository(db)

	mockEmail := &MockEmailService{}
	hasher := pkgauth.NewSecretHasher(policy.SecretHashCost)

	auditService := services.NewAuditService(auditRepo, logger)
	recorder := services.NewAttemptRecorder(attemptRepo, policy, logger)
	engine := services.NewLockoutEngine(lockoutRepo, policy, auditService, logger)
	recorder.SetEvaluator(engine)

	provider := services.NewLocalAuthProvider(userRepo, resetRepo, mockEmail, hasher, time.Hour, auditService, logger)
	lifecycle := services.NewPasswordLifecycleService(profileRepo, provider, hasher, policy, auditService, logger)
	provider.SetPendingResetChecker(lifecycle)
	recovery := services.NewKnowledgeRecoveryService(userRepo, profileRepo, lifecycle, provider, hasher, policy, auditService, logger)
	status := services.NewSecurityStatusService(recorder, engine, historyRepo, profileRepo, policy, logger)
	adminService := services.NewAdminService(engine, recorder, auditService, auditService, logger)
	userService := services.NewUserService(userRepo, hasher, logger)

	tokenManager := auth.NewTokenManager(testJWTSecret, 15*time.Minute)
	authService := services.NewAuthService(provider, engine, recorder, status, tokenManager, auth.NewFailureDelay(0, 0), logger)

	ipConfig := &pkghttp.IPConfig{}
	h := routes.Handlers{
		Auth:     handlers.NewAuthHandler(authService, status, ipConfig),
		Recovery: handlers.NewRecoveryHandler(recovery, provider),
		User:     handlers.NewUserHandler(userService, lifecycle, recovery, status),
		Admin:    handlers.NewAdminHandler(adminService, status),
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// high enough that only the lockout engine decides
	rateLimit := middlewareCustom.RateLimitConfig{RequestsPerMinute: 1000, IPConfig: ipConfig}
	routes.RegisterRoutes(r, h, tokenManager, userRepo, rateLimit, logger)

	return &TestServer{
		Server:       httptest.NewServer(r),
		DB:           db,
		EmailService: mockEmail,
		Policy:       policy,
		Tokens:       tokenManager,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with an access token
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	return ts.Request(method, path, body, map[string]string{
		"Authorization": "Bearer " + accessToken,
	})
}

// Login posts credentials and returns the raw response
func (ts *TestServer) Login(email, password string) (*http.Response, error) {
	return ts.Request(http.MethodPost, "/auth/login", handlers.LoginRequest{Email: email, Password: password}, nil)
}

// ParseJSONResponse parses a JSON response body into target
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// ExtractAccessToken reads the access token from a login response
func ExtractAccessToken(resp *http.Response) (string, error) {
	var authResp services.AuthResponse
	if err := ParseJSONResponse(resp, &authResp); err != nil {
		return "", err
	}
	return authResp.AccessToken, nil
}

// GetErrorResponse decodes the standard error body
func GetErrorResponse(resp *http.Response) (pkghttp.ErrorResponse, error) {
	var errResp pkghttp.ErrorResponse
	err := ParseJSONResponse(resp, &errResp)
	return errResp, err
}
