package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Storage configuration
	DataDir     string
	LockTimeout time.Duration

	// Password hashing cost parameters
	Argon2Memory  uint32
	Argon2Time    uint32
	Argon2Threads uint8

	// Session settings
	SessionLifetime    time.Duration
	RememberMeLifetime time.Duration

	// CSRF protection
	CsrfTokenLength int

	// Rate limiting and lockout
	MaxLoginAttempts int
	RateLimitWindow  time.Duration
	LockoutDuration  time.Duration
	RateLimitRPS     int
	RateLimitBurst   int

	// Validation rules
	UsernameMinLength      int
	UsernameMaxLength      int
	PasswordMinLength      int
	PasswordRequireUpper   bool
	PasswordRequireLower   bool
	PasswordRequireNumber  bool
	PasswordRequireSpecial bool

	// Feature toggles
	ActivityLogEnabled       bool
	RequireEmailVerification bool

	// Audit configuration
	AuditLogPath   string
	AuditAsyncMode bool

	// Backup configuration
	BackupDir           string
	BackupEncryptionKey string
	BackupInterval      time.Duration
	BackupRetentionDays int

	// Application settings
	Environment string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (not required in production)
	godotenv.Load()

	config := &Config{
		DataDir:     getEnv("DATA_DIR", "./data"),
		LockTimeout: time.Duration(getEnvAsInt("LOCK_TIMEOUT_MS", 5000)) * time.Millisecond,

		Argon2Memory:  uint32(getEnvAsInt("ARGON2_MEMORY_KB", 64*1024)),
		Argon2Time:    uint32(getEnvAsInt("ARGON2_TIME", 3)),
		Argon2Threads: uint8(getEnvAsInt("ARGON2_THREADS", 2)),

		SessionLifetime:    time.Duration(getEnvAsInt("SESSION_LIFETIME_HOURS", 24)) * time.Hour,
		RememberMeLifetime: time.Duration(getEnvAsInt("REMEMBER_ME_LIFETIME_DAYS", 30)) * 24 * time.Hour,

		CsrfTokenLength: getEnvAsInt("CSRF_TOKEN_LENGTH", 32),

		MaxLoginAttempts: getEnvAsInt("MAX_LOGIN_ATTEMPTS", 5),
		RateLimitWindow:  time.Duration(getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 900)) * time.Second,
		LockoutDuration:  time.Duration(getEnvAsInt("LOCKOUT_DURATION_SECONDS", 900)) * time.Second,
		RateLimitRPS:     getEnvAsInt("RATE_LIMIT_REQUESTS_PER_SECOND", 10),
		RateLimitBurst:   getEnvAsInt("RATE_LIMIT_BURST", 20),

		UsernameMinLength:      getEnvAsInt("USERNAME_MIN_LENGTH", 3),
		UsernameMaxLength:      getEnvAsInt("USERNAME_MAX_LENGTH", 50),
		PasswordMinLength:      getEnvAsInt("PASSWORD_MIN_LENGTH", 8),
		PasswordRequireUpper:   getEnvAsBool("PASSWORD_REQUIRE_UPPERCASE", true),
		PasswordRequireLower:   getEnvAsBool("PASSWORD_REQUIRE_LOWERCASE", true),
		PasswordRequireNumber:  getEnvAsBool("PASSWORD_REQUIRE_NUMBER", true),
		PasswordRequireSpecial: getEnvAsBool("PASSWORD_REQUIRE_SPECIAL", true),

		ActivityLogEnabled:       getEnvAsBool("ACTIVITY_LOG_ENABLED", true),
		RequireEmailVerification: getEnvAsBool("REQUIRE_EMAIL_VERIFICATION", false),

		AuditLogPath:   getEnv("AUDIT_LOG_PATH", "./logs/audit.log"),
		AuditAsyncMode: getEnvAsBool("AUDIT_ASYNC_MODE", true),

		BackupDir:           getEnv("BACKUP_DIR", "./backups"),
		BackupEncryptionKey: getEnv("BACKUP_ENCRYPTION_KEY", ""),
		BackupInterval:      time.Duration(getEnvAsInt("BACKUP_INTERVAL_HOURS", 24)) * time.Hour,
		BackupRetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),

		Environment: getEnv("APP_ENV", "development"),
	}

	// Validate critical configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate ensures the configuration is usable
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}

	if c.MaxLoginAttempts < 1 {
		return fmt.Errorf("MAX_LOGIN_ATTEMPTS must be at least 1")
	}

	if c.SessionLifetime <= 0 {
		return fmt.Errorf("SESSION_LIFETIME_HOURS must be positive")
	}

	// Token generation never goes below 32 bytes of entropy, so a smaller
	// configured value would be silently ignored. Reject it instead.
	if c.CsrfTokenLength < 32 {
		return fmt.Errorf("CSRF_TOKEN_LENGTH must be at least 32 bytes")
	}

	if c.PasswordMinLength < 8 {
		return fmt.Errorf("PASSWORD_MIN_LENGTH must be at least 8")
	}

	if c.BackupEncryptionKey != "" && len(c.BackupEncryptionKey) < 32 {
		return fmt.Errorf("BACKUP_ENCRYPTION_KEY must be at least 32 characters")
	}

	return nil
}

// Helper functions to read environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
