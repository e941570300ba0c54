package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	Server     ServerConfig
	Session    SessionConfig
	Ledger     LedgerConfig
	Breach     BreachConfig
	Notify     NotifyConfig
	SelfHosted bool
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// SessionConfig holds session policy settings.
type SessionConfig struct {
	JWTSecret       string //nolint:gosec // G117: JWT signing secret config
	MaxConcurrent   int
	IdleTimeout     time.Duration
	AbsoluteTimeout time.Duration
	WarnThreshold   time.Duration
	SweepInterval   time.Duration
}

// LedgerConfig holds audit ledger settings.
type LedgerConfig struct {
	FallbackPath string
	WriteTimeout time.Duration
}

// BreachConfig holds breach corpus lookup settings.
type BreachConfig struct {
	Enabled bool
	BaseURL string
	Timeout time.Duration
}

// NotifyConfig holds incident notification settings.
type NotifyConfig struct {
	SlackWebhookURL string
	WebhookURL      string
	Timeout         time.Duration
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only. In production,
// sensitive values (JWT secret, DB password) must be set explicitly.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("SENTINEL_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("SENTINEL_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("SENTINEL_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("SENTINEL_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("SENTINEL_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	maxConcurrent, err := getEnvInt("SENTINEL_SESSION_MAX_CONCURRENT", 3)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	idleTimeout, err := getEnvDuration("SENTINEL_SESSION_IDLE_TIMEOUT", 30*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	absoluteTimeout, err := getEnvDuration("SENTINEL_SESSION_ABSOLUTE_TIMEOUT", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	warnThreshold, err := getEnvDuration("SENTINEL_SESSION_WARN_THRESHOLD", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	sweepInterval, err := getEnvDuration("SENTINEL_SESSION_SWEEP_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	ledgerWriteTimeout, err := getEnvDuration("SENTINEL_LEDGER_WRITE_TIMEOUT", 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	breachEnabled, err := getEnvBool("SENTINEL_BREACH_CHECK_ENABLED", true)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	breachTimeout, err := getEnvDuration("SENTINEL_BREACH_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	notifyTimeout, err := getEnvDuration("SENTINEL_NOTIFY_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	selfHosted, err := getEnvBool("SENTINEL_SELF_HOSTED", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	corsOrigins := getEnvList("SENTINEL_CORS_ORIGINS", []string{"http://localhost:5173"})

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("SENTINEL_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("SENTINEL_DB_USER", "sentinel"),
			Password: getEnv("SENTINEL_DB_PASSWORD", ""),
			DBName:   getEnv("SENTINEL_DB_NAME", "sentinel_dev"),
			SSLMode:  getEnv("SENTINEL_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("SENTINEL_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("SENTINEL_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Server: ServerConfig{
			Addr:         getEnv("SENTINEL_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  corsOrigins,
		},
		Session: SessionConfig{
			JWTSecret:       getEnv("SENTINEL_JWT_SECRET", ""),
			MaxConcurrent:   maxConcurrent,
			IdleTimeout:     idleTimeout,
			AbsoluteTimeout: absoluteTimeout,
			WarnThreshold:   warnThreshold,
			SweepInterval:   sweepInterval,
		},
		Ledger: LedgerConfig{
			FallbackPath: getEnv("SENTINEL_LEDGER_FALLBACK_PATH", "sentinel-fallback.jsonl"),
			WriteTimeout: ledgerWriteTimeout,
		},
		Breach: BreachConfig{
			Enabled: breachEnabled,
			BaseURL: getEnv("SENTINEL_BREACH_BASE_URL", ""),
			Timeout: breachTimeout,
		},
		Notify: NotifyConfig{
			SlackWebhookURL: getEnv("SENTINEL_SLACK_WEBHOOK_URL", ""),
			WebhookURL:      getEnv("SENTINEL_NOTIFY_WEBHOOK_URL", ""),
			Timeout:         notifyTimeout,
		},
		SelfHosted: selfHosted,
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	// JWT secret is required (no insecure default).
	if c.Session.JWTSecret == "" {
		return errors.New("SENTINEL_JWT_SECRET is required")
	}
	if len(c.Session.JWTSecret) < 32 {
		return errors.New("SENTINEL_JWT_SECRET must be at least 32 characters")
	}

	// DB SSL mode warning for non-self-hosted deployments.
	if c.Database.SSLMode == "disable" && !c.SelfHosted {
		log.Warn().Msg("SENTINEL_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	// Bounds checks.
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("SENTINEL_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("SENTINEL_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Session.MaxConcurrent < 1 {
		return fmt.Errorf("SENTINEL_SESSION_MAX_CONCURRENT must be >= 1, got %d", c.Session.MaxConcurrent)
	}
	if c.Session.IdleTimeout <= 0 {
		return fmt.Errorf("SENTINEL_SESSION_IDLE_TIMEOUT must be positive, got %s", c.Session.IdleTimeout)
	}
	if c.Session.AbsoluteTimeout < c.Session.IdleTimeout {
		return fmt.Errorf("SENTINEL_SESSION_ABSOLUTE_TIMEOUT must be >= idle timeout, got %s", c.Session.AbsoluteTimeout)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("SENTINEL_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("SENTINEL_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
