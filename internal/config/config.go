package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/joho/godotenv"
)

// Attempt store backends
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Security SecurityConfig
	Email    EmailConfig
	Store    StoreConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	AuthRateLimit  int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type AuthConfig struct {
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	CleanupInterval    time.Duration
	AuditRetention     time.Duration
	FailureDelay       time.Duration
	FailureDelayJitter time.Duration
	AdminEmail         string
	AdminPassword      string
}

// SecurityConfig carries the lockout, password and recovery thresholds
type SecurityConfig struct {
	MaxFailedAttempts              int
	BaseLockoutMinutes             int
	MaxLockoutMinutes              int
	AttemptWindowMinutes           int
	ProgressiveMultiplier          float64
	PasswordHistorySize            int
	PasswordChangeHistorySize      int
	MinPasswordChangeIntervalHours int
	MinSecurityQuestions           int
	MaxSecurityQuestions           int
	MinSecurityAnswerLength        int
	RecoveryMinCorrectAnswers      int
	LockoutFailClosed              bool
	SecretHashCost                 int
}

type EmailConfig struct {
	Enabled          bool
	AWSRegion        string
	FromAddress      string
	ResetURLBase     string
	ResetTokenExpiry time.Duration
}

// StoreConfig selects where login attempts and lockouts live
type StoreConfig struct {
	AttemptStore  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")
	defaults := models.DefaultSecurityPolicy()

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "lockbox"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: parseList(getEnv("TRUSTED_PROXIES", "")),
			AuthRateLimit:  getEnvAsInt("AUTH_RATE_LIMIT_PER_MINUTE", 10),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:          jwtSecret,
			AccessTokenExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			CleanupInterval:    getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
			AuditRetention:     getEnvAsDuration("AUDIT_RETENTION", 90*24*time.Hour),
			FailureDelay:       getEnvAsDuration("AUTH_FAILURE_DELAY", 250*time.Millisecond),
			FailureDelayJitter: getEnvAsDuration("AUTH_FAILURE_JITTER", 100*time.Millisecond),
			AdminEmail:         getEnv("ADMIN_EMAIL", ""),
			AdminPassword:      getEnv("ADMIN_PASSWORD", ""),
		},
		Security: SecurityConfig{
			MaxFailedAttempts:              getEnvAsInt("MAX_FAILED_ATTEMPTS", defaults.MaxFailedAttempts),
			BaseLockoutMinutes:             getEnvAsInt("BASE_LOCKOUT_MINUTES", int(defaults.BaseLockout.Minutes())),
			MaxLockoutMinutes:              getEnvAsInt("MAX_LOCKOUT_MINUTES", int(defaults.MaxLockout.Minutes())),
			AttemptWindowMinutes:           getEnvAsInt("ATTEMPT_WINDOW_MINUTES", int(defaults.AttemptWindow.Minutes())),
			ProgressiveMultiplier:          getEnvAsFloat("PROGRESSIVE_MULTIPLIER", defaults.ProgressiveMultiplier),
			PasswordHistorySize:            getEnvAsInt("PASSWORD_HISTORY_SIZE", defaults.PasswordHistorySize),
			PasswordChangeHistorySize:      getEnvAsInt("PASSWORD_CHANGE_HISTORY_SIZE", defaults.PasswordChangeHistorySize),
			MinPasswordChangeIntervalHours: getEnvAsInt("MIN_PASSWORD_CHANGE_INTERVAL_HOURS", int(defaults.MinPasswordChangeInterval.Hours())),
			MinSecurityQuestions:           getEnvAsInt("MIN_SECURITY_QUESTIONS", defaults.MinSecurityQuestions),
			MaxSecurityQuestions:           getEnvAsInt("MAX_SECURITY_QUESTIONS", defaults.MaxSecurityQuestions),
			MinSecurityAnswerLength:        getEnvAsInt("MIN_SECURITY_ANSWER_LENGTH", defaults.MinSecurityAnswerLength),
			RecoveryMinCorrectAnswers:      getEnvAsInt("RECOVERY_MIN_CORRECT_ANSWERS", defaults.RecoveryMinCorrectAnswers),
			LockoutFailClosed:              getEnvAsBool("LOCKOUT_FAIL_CLOSED", defaults.LockoutFailClosed),
			SecretHashCost:                 getEnvAsInt("SECRET_HASH_COST", defaults.SecretHashCost),
		},
		Email: EmailConfig{
			Enabled:          getEnvAsBool("EMAIL_ENABLED", false),
			AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
			FromAddress:      getEnv("EMAIL_FROM_ADDRESS", ""),
			ResetURLBase:     getEnv("PASSWORD_RESET_URL_BASE", "http://localhost:3000"),
			ResetTokenExpiry: getEnvAsDuration("PASSWORD_RESET_TOKEN_EXPIRY", 1*time.Hour),
		},
		Store: StoreConfig{
			AttemptStore:  strings.ToLower(getEnv("ATTEMPT_STORE", StorePostgres)),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.Security.Policy().Validate(); err != nil {
		return nil, fmt.Errorf("invalid security policy: %w", err)
	}

	switch cfg.Store.AttemptStore {
	case StorePostgres, StoreRedis, StoreMemory:
	default:
		return nil, fmt.Errorf("ATTEMPT_STORE must be one of postgres, redis, memory (got %q)", cfg.Store.AttemptStore)
	}

	if cfg.Email.Enabled && cfg.Email.FromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when EMAIL_ENABLED is true")
	}

	return cfg, nil
}

// Policy builds the immutable policy handed to every security component
func (c SecurityConfig) Policy() models.SecurityPolicy {
	return models.SecurityPolicy{
		MaxFailedAttempts:         c.MaxFailedAttempts,
		BaseLockout:               time.Duration(c.BaseLockoutMinutes) * time.Minute,
		MaxLockout:                time.Duration(c.MaxLockoutMinutes) * time.Minute,
		AttemptWindow:             time.Duration(c.AttemptWindowMinutes) * time.Minute,
		ProgressiveMultiplier:     c.ProgressiveMultiplier,
		PasswordHistorySize:       c.PasswordHistorySize,
		PasswordChangeHistorySize: c.PasswordChangeHistorySize,
		MinPasswordChangeInterval: time.Duration(c.MinPasswordChangeIntervalHours) * time.Hour,
		MinSecurityQuestions:      c.MinSecurityQuestions,
		MaxSecurityQuestions:      c.MaxSecurityQuestions,
		MinSecurityAnswerLength:   c.MinSecurityAnswerLength,
		RecoveryMinCorrectAnswers: c.RecoveryMinCorrectAnswers,
		LockoutFailClosed:         c.LockoutFailClosed,
		SecretHashCost:            c.SecretHashCost,
	}
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	// Minimum length based on environment
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	// Check against common weak secrets
	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return parseList(getEnv("ALLOWED_ORIGINS", ""))
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
