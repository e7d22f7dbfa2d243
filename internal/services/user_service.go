package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/BradenHooton/lockbox/pkg/auth"
)

// UserStore defines the user data access the account service needs
type UserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
}

// UserService handles account lookup and provisioning
type UserService struct {
	repo   UserStore
	hasher *auth.SecretHasher
	logger *slog.Logger
}

// NewUserService creates a new UserService
func NewUserService(repo UserStore, hasher *auth.SecretHasher, logger *slog.Logger) *UserService {
	return &UserService{
		repo:   repo,
		hasher: hasher,
		logger: logger,
	}
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(ctx context.Context, id string) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("user not found", slog.String("user_id", id))
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return userModelToResponse(user), nil
}

// CreateUser provisions an active account with a password that meets the strength policy
func (s *UserService) CreateUser(ctx context.Context, email, name, role, password string) (*models.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, models.NewValidationError("email", "is required")
	}
	if role != models.RoleUser && role != models.RoleAdmin {
		return nil, models.NewValidationError("role", "must be user or admin")
	}

	if err := strengthError("password", password); err != nil {
		return nil, err
	}

	_, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		s.logger.Info("user already exists")
		return nil, models.ErrConflict
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check if user exists", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hashedPassword, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	createdUser, err := s.repo.Create(ctx, &models.User{
		Email:        email,
		Name:         name,
		Role:         role,
		Status:       models.UserStatusActive,
		PasswordHash: hashedPassword,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user created", slog.String("user_id", createdUser.ID), slog.String("role", role))
	return createdUser, nil
}
