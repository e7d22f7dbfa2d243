package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/BradenHooton/lockbox/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserService_GetUserByID_Success(t *testing.T) {
	user := NewTestUser("user123", "user@example.com", "Test User")

	mockUserRepo := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return user, nil
		},
	}

	svc := NewUserService(mockUserRepo, auth.NewSecretHasher(4), NewTestLogger())

	result, err := svc.GetUserByID(context.Background(), "user123")

	assert.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "user123", result.ID)
	assert.Equal(t, "user@example.com", result.Email)
	assert.Equal(t, user.CreatedAt.Format(time.RFC3339), result.CreatedAt)
}

func TestUserService_GetUserByID_NotFound(t *testing.T) {
	svc := NewUserService(&MockUserRepository{}, auth.NewSecretHasher(4), NewTestLogger())

	result, err := svc.GetUserByID(context.Background(), "missing")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUserService_GetUserByID_DatabaseError(t *testing.T) {
	mockUserRepo := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := NewUserService(mockUserRepo, auth.NewSecretHasher(4), NewTestLogger())

	_, err := svc.GetUserByID(context.Background(), "user123")

	assert.ErrorIs(t, err, models.ErrInternalServer)
}

func TestUserService_CreateUser_Success(t *testing.T) {
	var stored *models.User
	mockUserRepo := &MockUserRepository{
		CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			user.ID = "user123"
			stored = user
			return user, nil
		},
	}
	svc := NewUserService(mockUserRepo, auth.NewSecretHasher(4), NewTestLogger())

	created, err := svc.CreateUser(context.Background(), " Admin@Example.com ", "Admin", models.RoleAdmin, "Harbor#Light42")

	require.NoError(t, err)
	assert.Equal(t, "user123", created.ID)
	assert.Equal(t, "admin@example.com", stored.Email)
	assert.Equal(t, models.RoleAdmin, stored.Role)
	assert.Equal(t, models.UserStatusActive, stored.Status)
	assert.NotEqual(t, "Harbor#Light42", stored.PasswordHash)
	assert.NoError(t, auth.ComparePassword(stored.PasswordHash, "Harbor#Light42"))
}

func TestUserService_CreateUser_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		role     string
		password string
		lookup   func(ctx context.Context, email string) (*models.User, error)
		want     error
	}{
		{
			name:     "empty email",
			email:    "  ",
			role:     models.RoleUser,
			password: "Harbor#Light42",
			want:     models.ErrBadRequest,
		},
		{
			name:     "unknown role",
			email:    "a@x.com",
			role:     "superuser",
			password: "Harbor#Light42",
			want:     models.ErrBadRequest,
		},
		{
			name:     "weak password",
			email:    "a@x.com",
			role:     models.RoleUser,
			password: "password",
			want:     models.ErrBadRequest,
		},
		{
			name:     "duplicate email",
			email:    "a@x.com",
			role:     models.RoleUser,
			password: "Harbor#Light42",
			lookup: func(ctx context.Context, email string) (*models.User, error) {
				return NewTestUser("u1", email, "Existing"), nil
			},
			want: models.ErrConflict,
		},
		{
			name:     "lookup failure",
			email:    "a@x.com",
			role:     models.RoleUser,
			password: "Harbor#Light42",
			lookup: func(ctx context.Context, email string) (*models.User, error) {
				return nil, errors.New("connection refused")
			},
			want: models.ErrInternalServer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			created := false
			repo := &MockUserRepository{
				GetByEmailFunc: tt.lookup,
				CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
					created = true
					return user, nil
				},
			}
			svc := NewUserService(repo, auth.NewSecretHasher(4), NewTestLogger())

			_, err := svc.CreateUser(context.Background(), tt.email, "Name", tt.role, tt.password)

			assert.ErrorIs(t, err, tt.want)
			assert.False(t, created)
		})
	}
}

func TestUserService_CreateUser_ConflictOnInsert(t *testing.T) {
	repo := &MockUserRepository{
		CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			return nil, models.ErrConflict
		},
	}
	svc := NewUserService(repo, auth.NewSecretHasher(4), NewTestLogger())

	_, err := svc.CreateUser(context.Background(), "a@x.com", "Name", models.RoleUser, "Harbor#Light42")

	assert.ErrorIs(t, err, models.ErrConflict)
}
