package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/lockbox/internal/auth"
	"github.com/BradenHooton/lockbox/internal/background"
	"github.com/BradenHooton/lockbox/internal/config"
	"github.com/BradenHooton/lockbox/internal/database"
	"github.com/BradenHooton/lockbox/internal/handlers"
	middlewareCustom "github.com/BradenHooton/lockbox/internal/middleware"
	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/BradenHooton/lockbox/internal/repositories"
	"github.com/BradenHooton/lockbox/internal/routes"
	"github.com/BradenHooton/lockbox/internal/services"
	pkgauth "github.com/BradenHooton/lockbox/pkg/auth"
	pkghttp "github.com/BradenHooton/lockbox/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

// attemptBackend is where failed attempts and lockouts live
type attemptBackend struct {
	attempts services.AttemptStore
	lockouts services.LockoutStore
	tasks    []background.Task
	health   func(ctx context.Context) error
	close    func()
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("attempt_store", cfg.Store.AttemptStore))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 60*time.Second)
	err = database.Migrate(migrateCtx, db.Pool, logger)
	migrateCancel()
	if err != nil {
		logger.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	backend, err := newAttemptBackend(cfg, db, logger)
	if err != nil {
		logger.Error("failed to initialize attempt store", slog.Any("error", err))
		os.Exit(1)
	}
	defer backend.close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	profileRepo := repositories.NewSecurityProfileRepository(db)
	historyRepo := repositories.NewLoginHistoryRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)
	resetRepo := repositories.NewPasswordResetRepository(db)

	policy := cfg.Security.Policy()
	hasher := pkgauth.NewSecretHasher(policy.SecretHashCost)

	// Reset email delivery
	var emailService services.EmailService = services.NewLogEmailService(logger)
	if cfg.Email.Enabled {
		sesCtx, sesCancel := context.WithTimeout(context.Background(), 10*time.Second)
		ses, err := services.NewAWSSESEmailService(sesCtx, cfg.Email.AWSRegion, cfg.Email.FromAddress, cfg.Email.ResetURLBase, logger)
		sesCancel()
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
		emailService = ses
	}

	// Security subsystem
	auditService := services.NewAuditService(auditRepo, logger)
	recorder := services.NewAttemptRecorder(backend.attempts, policy, logger)
	engine := services.NewLockoutEngine(backend.lockouts, policy, auditService, logger)
	recorder.SetEvaluator(engine)

	provider := services.NewLocalAuthProvider(userRepo, resetRepo, emailService, hasher, cfg.Email.ResetTokenExpiry, auditService, logger)
	lifecycle := services.NewPasswordLifecycleService(profileRepo, provider, hasher, policy, auditService, logger)
	provider.SetPendingResetChecker(lifecycle)
	recovery := services.NewKnowledgeRecoveryService(userRepo, profileRepo, lifecycle, provider, hasher, policy, auditService, logger)
	status := services.NewSecurityStatusService(recorder, engine, historyRepo, profileRepo, policy, logger)
	adminService := services.NewAdminService(engine, recorder, auditService, auditService, logger)
	userService := services.NewUserService(userRepo, hasher, logger)

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)
	delay := auth.NewFailureDelay(cfg.Auth.FailureDelay, cfg.Auth.FailureDelayJitter)
	authService := services.NewAuthService(provider, engine, recorder, status, tokenManager, delay, logger)

	// Bootstrap first admin user if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(ctx, cfg.Auth, userService, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	h := routes.Handlers{
		Auth:     handlers.NewAuthHandler(authService, status, ipConfig),
		Recovery: handlers.NewRecoveryHandler(recovery, provider),
		User:     handlers.NewUserHandler(userService, lifecycle, recovery, status),
		Admin:    handlers.NewAdminHandler(adminService, status),
	}

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	rateLimit := middlewareCustom.DefaultAuthRateLimit(ipConfig)
	if cfg.Server.AuthRateLimit > 0 {
		rateLimit.RequestsPerMinute = cfg.Server.AuthRateLimit
	}
	routes.RegisterRoutes(router, h, tokenManager, userRepo, rateLimit, logger)

	// Health check with database and attempt store
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		dbStatus, storeStatus := "up", "up"
		if err := db.HealthCheck(ctx); err != nil {
			dbStatus = "down"
		}
		if err := backend.health(ctx); err != nil {
			storeStatus = "down"
		}

		code, overall := http.StatusOK, "healthy"
		if dbStatus != "up" || storeStatus != "up" {
			code, overall = http.StatusServiceUnavailable, "unhealthy"
		}
		pkghttp.WriteJSON(w, code, map[string]string{
			"status":        overall,
			"database":      dbStatus,
			"attempt_store": storeStatus,
		})
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	tasks := append(backend.tasks,
		background.Task{Name: "password_reset_tokens", Sweep: resetRepo.DeleteExpiredResetTokens},
		background.Task{Name: "audit_logs", Sweep: func(ctx context.Context, now time.Time) (int64, error) {
			return auditRepo.Cleanup(ctx, now.Add(-cfg.Auth.AuditRetention))
		}},
	)
	cleanupManager := background.NewCleanupManager(logger, cfg.Auth.CleanupInterval, tasks...)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// newAttemptBackend selects the store behind the attempt recorder and lockout engine
func newAttemptBackend(cfg *config.Config, db *database.DB, logger *slog.Logger) (*attemptBackend, error) {
	switch cfg.Store.AttemptStore {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		store := repositories.NewRedisAttemptStore(client)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("unable to reach redis at %s: %w", cfg.Store.RedisAddr, err)
		}
		logger.Info("redis attempt store connected", slog.String("addr", cfg.Store.RedisAddr))

		// keys expire through their TTLs, so these sweeps report zero rows
		return &attemptBackend{
			attempts: store,
			lockouts: store,
			tasks: []background.Task{
				{Name: "login_attempts", Sweep: store.DeleteExpiredAttempts},
				{Name: "lockouts", Sweep: store.DeleteExpiredLockouts},
			},
			health: store.Ping,
			close:  func() { _ = client.Close() },
		}, nil

	case config.StoreMemory:
		logger.Warn("using in-memory attempt store; lockouts are lost on restart")
		store := repositories.NewMemoryStore()
		return &attemptBackend{
			attempts: store,
			lockouts: store,
			tasks: []background.Task{
				{Name: "login_attempts", Sweep: store.DeleteExpiredAttempts},
				{Name: "lockouts", Sweep: store.DeleteExpiredLockouts},
			},
			health: func(context.Context) error { return nil },
			close:  func() {},
		}, nil

	default:
		attempts := repositories.NewLoginAttemptRepository(db)
		lockouts := repositories.NewLockoutRepository(db)
		return &attemptBackend{
			attempts: attempts,
			lockouts: lockouts,
			tasks: []background.Task{
				{Name: "login_attempts", Sweep: attempts.DeleteExpiredAttempts},
				{Name: "lockouts", Sweep: lockouts.DeleteExpiredLockouts},
			},
			health: db.HealthCheck,
			close:  func() {},
		}, nil
	}
}

// ensureAdminUser creates the first admin user if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, cfg config.AuthConfig, users *services.UserService, logger *slog.Logger) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	_, err := users.CreateUser(ctx, cfg.AdminEmail, "Admin", models.RoleAdmin, cfg.AdminPassword)
	if errors.Is(err, models.ErrConflict) {
		logger.Info("admin user already exists")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created successfully")
	return nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
