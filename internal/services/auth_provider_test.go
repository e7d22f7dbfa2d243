package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/BradenHooton/lockbox/internal/services"
	pkgauth "github.com/BradenHooton/lockbox/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type providerFixture struct {
	user     *models.User
	users    *services.MockUserRepository
	resets   *services.MockPasswordResetRepository
	email    *services.MockEmailService
	auditor  *services.MockAuditor
	clock    *services.TestClock
	provider *services.LocalAuthProvider

	sentTo    string
	sentToken string
	updated   map[string]string
}

func newProviderFixture(t *testing.T) *providerFixture {
	t.Helper()

	hash, err := pkgauth.HashPassword(loginPassword)
	require.NoError(t, err)

	f := &providerFixture{
		user:    services.NewTestUserWithPassword("u1", "a@x.com", "Alice", hash),
		resets:  &services.MockPasswordResetRepository{},
		auditor: &services.MockAuditor{},
		clock:   services.NewTestClock(t0),
		updated: map[string]string{},
	}
	f.users = &services.MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			if id == f.user.ID {
				return f.user, nil
			}
			return nil, models.ErrNotFound
		},
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			if email == f.user.Email {
				return f.user, nil
			}
			return nil, models.ErrNotFound
		},
		UpdatePasswordFunc: func(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
			f.updated[id] = passwordHash
			return nil
		},
	}
	f.email = &services.MockEmailService{
		SendPasswordResetEmailFunc: func(ctx context.Context, email, token string, expiresAt time.Time) error {
			f.sentTo = email
			f.sentToken = token
			return nil
		},
	}

	f.provider = services.NewLocalAuthProvider(f.users, f.resets, f.email, pkgauth.NewSecretHasher(4), time.Hour, f.auditor, services.NewTestLogger())
	f.provider.SetClock(f.clock.Now)
	return f
}

func TestLocalAuthProvider_Authenticate(t *testing.T) {
	f := newProviderFixture(t)
	ctx := context.Background()

	user, err := f.provider.Authenticate(ctx, "A@X.com", loginPassword)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)

	user, err = f.provider.Authenticate(ctx, "a@x.com", "Wrong#Pass99")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	require.NotNil(t, user)
	assert.Equal(t, "u1", user.ID)

	user, err = f.provider.Authenticate(ctx, "ghost@x.com", loginPassword)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Nil(t, user)

	f.user.Status = models.UserStatusSuspended
	_, err = f.provider.Authenticate(ctx, "a@x.com", loginPassword)
	assert.ErrorIs(t, err, models.ErrAccountSuspended)
}

func TestLocalAuthProvider_Reauthenticate(t *testing.T) {
	f := newProviderFixture(t)
	ctx := context.Background()
	identity := models.Identity{UserID: "u1", Email: "a@x.com"}

	assert.NoError(t, f.provider.Reauthenticate(ctx, identity, loginPassword))
	assert.ErrorIs(t, f.provider.Reauthenticate(ctx, identity, "Wrong#Pass99"), models.ErrUnauthorized)
	assert.ErrorIs(t, f.provider.Reauthenticate(ctx, models.Identity{UserID: "u2"}, loginPassword), models.ErrUnauthorized)
}

func TestLocalAuthProvider_UpdateCredential(t *testing.T) {
	f := newProviderFixture(t)
	var changedAt time.Time
	f.users.UpdatePasswordFunc = func(ctx context.Context, id, passwordHash string, at time.Time) error {
		f.updated[id] = passwordHash
		changedAt = at
		return nil
	}

	require.NoError(t, f.provider.UpdateCredential(context.Background(), models.Identity{UserID: "u1"}, "Meadow$Stone77"))
	assert.NoError(t, pkgauth.ComparePassword(f.updated["u1"], "Meadow$Stone77"))
	assert.Equal(t, t0, changedAt)

	f.users.UpdatePasswordFunc = func(ctx context.Context, id, passwordHash string, at time.Time) error {
		return errors.New("connection refused")
	}
	err := f.provider.UpdateCredential(context.Background(), models.Identity{UserID: "u1"}, "Meadow$Stone77")
	assert.ErrorIs(t, err, models.ErrPersistence)
}

func TestLocalAuthProvider_DispatchStoresOnlyTheHash(t *testing.T) {
	f := newProviderFixture(t)
	var storedHash string
	var storedExpiry time.Time
	f.resets.CreateFunc = func(ctx context.Context, userID, email, tokenHash string, expiresAt time.Time) (*models.PasswordResetToken, error) {
		storedHash = tokenHash
		storedExpiry = expiresAt
		return &models.PasswordResetToken{ID: "r1", UserID: userID, Email: email, TokenHash: tokenHash, ExpiresAt: expiresAt}, nil
	}

	require.NoError(t, f.provider.DispatchCredentialResetMessage(context.Background(), " A@x.com"))

	assert.Equal(t, "a@x.com", f.sentTo)
	require.NotEmpty(t, f.sentToken)
	assert.NotEqual(t, f.sentToken, storedHash)
	assert.Equal(t, pkgauth.HashToken(f.sentToken), storedHash)
	assert.Equal(t, t0.Add(time.Hour), storedExpiry)
}

func TestLocalAuthProvider_DispatchUnknownEmail(t *testing.T) {
	f := newProviderFixture(t)

	assert.NoError(t, f.provider.DispatchCredentialResetMessage(context.Background(), "ghost@x.com"))
	assert.Empty(t, f.sentTo)
}

func TestLocalAuthProvider_DispatchRateLimited(t *testing.T) {
	f := newProviderFixture(t)
	var since time.Time
	f.resets.CountCreatedSinceFunc = func(ctx context.Context, userID string, s time.Time) (int, error) {
		since = s
		return services.MaxResetDispatchesPerHour, nil
	}

	err := f.provider.DispatchCredentialResetMessage(context.Background(), "a@x.com")

	assert.ErrorIs(t, err, models.ErrRateLimitExceeded)
	assert.Equal(t, t0.Add(-time.Hour), since)
	assert.Empty(t, f.sentTo)
}

func TestLocalAuthProvider_CompleteCredentialReset(t *testing.T) {
	const token = "reset-token"

	tests := []struct {
		name    string
		stored  *models.PasswordResetToken
		markErr error
		pw      string
		want    error
	}{
		{
			name:   "valid token",
			stored: &models.PasswordResetToken{ID: "r1", UserID: "u1", Email: "a@x.com", ExpiresAt: t0.Add(time.Minute)},
			pw:     "Meadow$Stone77",
		},
		{
			name:   "expired token",
			stored: &models.PasswordResetToken{ID: "r1", UserID: "u1", Email: "a@x.com", ExpiresAt: t0},
			pw:     "Meadow$Stone77",
			want:   models.ErrResetTokenInvalid,
		},
		{
			name:   "used token",
			stored: &models.PasswordResetToken{ID: "r1", UserID: "u1", Email: "a@x.com", Used: true, ExpiresAt: t0.Add(time.Minute)},
			pw:     "Meadow$Stone77",
			want:   models.ErrResetTokenInvalid,
		},
		{
			name:    "consumed concurrently",
			stored:  &models.PasswordResetToken{ID: "r1", UserID: "u1", Email: "a@x.com", ExpiresAt: t0.Add(time.Minute)},
			markErr: models.ErrNotFound,
			pw:      "Meadow$Stone77",
			want:    models.ErrResetTokenInvalid,
		},
		{
			name: "unknown token",
			pw:   "Meadow$Stone77",
			want: models.ErrResetTokenInvalid,
		},
		{
			name:   "weak password",
			stored: &models.PasswordResetToken{ID: "r1", UserID: "u1", Email: "a@x.com", ExpiresAt: t0.Add(time.Minute)},
			pw:     "weak",
			want:   models.ErrBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newProviderFixture(t)
			deleted := false
			f.resets.GetByTokenHashFunc = func(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
				if tt.stored == nil || tokenHash != pkgauth.HashToken(token) {
					return nil, models.ErrNotFound
				}
				return tt.stored, nil
			}
			f.resets.MarkAsUsedFunc = func(ctx context.Context, id string) error { return tt.markErr }
			f.resets.DeleteByUserIDFunc = func(ctx context.Context, userID string) error {
				deleted = true
				return nil
			}

			err := f.provider.CompleteCredentialReset(context.Background(), token, tt.pw)

			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
				assert.Empty(t, f.updated)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, pkgauth.ComparePassword(f.updated["u1"], tt.pw))
			assert.True(t, deleted)

			resets := f.auditor.ByType(models.AuditEventTypePasswordReset)
			require.Len(t, resets, 1)
			assert.True(t, resets[0].Success)
		})
	}
}

type pendingResetFunc func(ctx context.Context, userID, password string) error

func (f pendingResetFunc) CheckPendingReset(ctx context.Context, userID, password string) error {
	return f(ctx, userID, password)
}

func TestLocalAuthProvider_CompleteCredentialResetRequiresVettedPassword(t *testing.T) {
	const token = "reset-token"
	f := newProviderFixture(t)
	stored := &models.PasswordResetToken{ID: "r1", UserID: "u1", Email: "a@x.com", ExpiresAt: t0.Add(time.Minute)}
	f.resets.GetByTokenHashFunc = func(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
		return stored, nil
	}
	consumed := false
	f.resets.MarkAsUsedFunc = func(ctx context.Context, id string) error {
		consumed = true
		return nil
	}

	var checked string
	f.provider.SetPendingResetChecker(pendingResetFunc(func(ctx context.Context, userID, password string) error {
		checked = userID
		if password == "Meadow$Stone77" {
			return nil
		}
		return &models.ReuseError{HistorySize: 5}
	}))

	err := f.provider.CompleteCredentialReset(context.Background(), token, "Harbor#Light42")
	assert.ErrorIs(t, err, models.ErrPasswordReused)
	assert.Equal(t, "u1", checked)
	assert.False(t, consumed, "token stays usable")
	assert.Empty(t, f.updated)

	refused := f.auditor.ByType(models.AuditEventTypePasswordReset)
	require.Len(t, refused, 1)
	assert.False(t, refused[0].Success)

	require.NoError(t, f.provider.CompleteCredentialReset(context.Background(), token, "Meadow$Stone77"))
	assert.True(t, consumed)
	assert.True(t, pkgauth.NewSecretHasher(4).Matches(f.updated["u1"], "Meadow$Stone77"))
}

func TestLocalAuthProvider_UsesConfiguredHashCost(t *testing.T) {
	f := newProviderFixture(t)

	require.NoError(t, f.provider.UpdateCredential(context.Background(), models.Identity{UserID: "u1"}, "Meadow$Stone77"))

	cost, err := bcrypt.Cost([]byte(f.updated["u1"]))
	require.NoError(t, err)
	assert.Equal(t, 4, cost)
}
