package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/lockbox/internal/handlers"
	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/BradenHooton/lockbox/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loginWith(t *testing.T, loginErr error) *httptest.ResponseRecorder {
	t.Helper()
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, email, password string, info services.LoginRequestInfo) (*services.AuthResponse, error) {
			return nil, loginErr
		},
	}
	handler := handlers.NewAuthHandler(mockAuth, &handlers.MockLockStatusReader{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "user@example.com",
		Password: "Harbor#Light42",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)
	return w
}

func TestLogin_Success(t *testing.T) {
	var gotInfo services.LoginRequestInfo
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, email, password string, info services.LoginRequestInfo) (*services.AuthResponse, error) {
			gotInfo = info
			return &services.AuthResponse{
				AccessToken: "access_token_123",
				User:        &services.UserResponse{ID: "u1", Email: email},
			}, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, &handlers.MockLockStatusReader{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "user@example.com",
		Password: "Harbor#Light42",
	})
	req.Header.Set("User-Agent", "test-agent")

	w := httptest.NewRecorder()
	handler.Login(w, req)

	var resp services.AuthResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "access_token_123", resp.AccessToken)
	assert.Equal(t, "u1", resp.User.ID)
	assert.Equal(t, "test-agent", gotInfo.UserAgent)
	assert.NotEmpty(t, gotInfo.IPAddress)
}

func TestLogin_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"bad credentials", &models.AuthError{Reason: "invalid credentials"}, 401, "unauthorized"},
		{"suspended looks like bad credentials", models.ErrAccountSuspended, 401, "unauthorized"},
		{"disabled looks like bad credentials", models.ErrAccountDisabled, 401, "unauthorized"},
		{"rate limited", models.ErrRateLimitExceeded, 429, "rate_limit_exceeded"},
		{"internal", models.ErrInternalServer, 500, "internal_error"},
		{"unexpected", errors.New("boom"), 500, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := loginWith(t, tt.err)
			handlers.AssertErrorResponse(t, w, tt.status, tt.code)
		})
	}
}

func TestLogin_SuspendedAndWrongPasswordAreIndistinguishable(t *testing.T) {
	a := loginWith(t, models.ErrAccountSuspended)
	b := loginWith(t, &models.AuthError{Reason: "invalid credentials"})

	assert.Equal(t, a.Code, b.Code)
	assert.Equal(t, a.Body.String(), b.Body.String())
}

func TestLogin_Locked(t *testing.T) {
	unlockAt := time.Date(2026, 3, 1, 9, 17, 0, 0, time.UTC)
	w := loginWith(t, models.NewLockoutError(models.LockStatus{
		IsLocked:         true,
		UnlockAt:         &unlockAt,
		RemainingMinutes: 15,
		LockoutCount:     1,
	}))

	assert.Equal(t, http.StatusLocked, w.Code)
	assert.Equal(t, "900", w.Header().Get("Retry-After"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "account_locked", body["error"])
	assert.Equal(t, float64(15), body["remaining_minutes"])
	assert.Equal(t, "2026-03-01T09:17:00Z", body["unlock_at"])
}

func TestLogin_ValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		fields []string
	}{
		{"invalid json", `{"email":`, []string{"body"}},
		{"missing fields", `{}`, []string{"email", "password"}},
		{"bad email", `{"email":"not-an-email","password":"x"}`, []string{"email"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			mockAuth := &handlers.MockAuthService{
				LoginFunc: func(ctx context.Context, email, password string, info services.LoginRequestInfo) (*services.AuthResponse, error) {
					called = true
					return nil, nil
				},
			}
			handler := handlers.NewAuthHandler(mockAuth, &handlers.MockLockStatusReader{}, nil)
			req := httptest.NewRequest("POST", "/auth/login", strings.NewReader(tt.body))

			w := httptest.NewRecorder()
			handler.Login(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, called)

			var body struct {
				Error  string              `json:"error"`
				Fields []models.FieldError `json:"fields"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "validation_failed", body.Error)
			var got []string
			for _, f := range body.Fields {
				got = append(got, f.Field)
			}
			assert.Equal(t, tt.fields, got)
		})
	}
}

func TestLockStatus(t *testing.T) {
	unlockAt := time.Date(2026, 3, 1, 9, 17, 0, 0, time.UTC)
	status := &handlers.MockLockStatusReader{
		IsAccountLockedFunc: func(ctx context.Context, email string) models.LockStatus {
			if email == "a@x.com" {
				return models.LockStatus{IsLocked: true, UnlockAt: &unlockAt, RemainingMinutes: 15, LockoutCount: 1}
			}
			return models.LockStatus{}
		},
	}
	handler := handlers.NewAuthHandler(&handlers.MockAuthService{}, status, nil)

	w := httptest.NewRecorder()
	handler.LockStatus(w, httptest.NewRequest("GET", "/auth/lock-status?email=a@x.com", nil))

	var resp models.LockStatus
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.True(t, resp.IsLocked)
	assert.Equal(t, 15, resp.RemainingMinutes)

	w = httptest.NewRecorder()
	handler.LockStatus(w, httptest.NewRequest("GET", "/auth/lock-status?email=b@x.com", nil))
	resp = models.LockStatus{}
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.False(t, resp.IsLocked)
	assert.Nil(t, resp.UnlockAt)

	w = httptest.NewRecorder()
	handler.LockStatus(w, httptest.NewRequest("GET", "/auth/lock-status", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
