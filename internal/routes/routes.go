package routes

import (
	"log/slog"

	"github.com/BradenHooton/lockbox/internal/auth"
	"github.com/BradenHooton/lockbox/internal/handlers"
	"github.com/BradenHooton/lockbox/internal/middleware"
	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/go-chi/chi/v5"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes
type Handlers struct {
	Auth     *handlers.AuthHandler
	Recovery *handlers.RecoveryHandler
	User     *handlers.UserHandler
	Admin    *handlers.AdminHandler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	h Handlers,
	tokenManager *auth.TokenManager,
	users auth.UserRepository,
	rateLimit middleware.RateLimitConfig,
	logger *slog.Logger,
) {
	limited := router.With(middleware.RateLimitByIP(rateLimit))

	// Public routes - no authentication required
	limited.Post("/auth/login", h.Auth.Login)
	limited.Get("/auth/lock-status", h.Auth.LockStatus)
	router.Get("/auth/security-questions/catalog", h.Recovery.Catalog)
	limited.Post("/auth/recovery/questions", h.Recovery.Questions)
	limited.Post("/auth/recovery/verify", h.Recovery.Verify)
	limited.Post("/auth/recovery/reset", h.Recovery.Reset)
	limited.Post("/auth/password-reset/complete", h.Recovery.CompletePasswordReset)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager, users, logger))

		// Any authenticated user
		r.Get("/me", h.User.Me)
		r.Post("/me/password", h.User.ChangePassword)
		r.Get("/me/password/eligibility", h.User.PasswordEligibility)
		r.Put("/me/security-questions", h.User.SetupSecurityQuestions)
		r.Get("/me/last-login", h.User.LastLogin)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleAdmin))
			r.Get("/admin/security/status", h.Admin.GetSecurityStatus)
			r.Post("/admin/security/unlock", h.Admin.Unlock)
			r.Get("/admin/security/activity", h.Admin.GetRecentActivity)
		})
	})
}
