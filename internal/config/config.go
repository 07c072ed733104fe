package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment variables
type Config struct {
	Env       string
	Port      string
	LogLevel  string
	LogFormat string

	DatabaseURL             string
	DatabaseMaxOpenConns    int
	DatabaseMaxIdleConns    int
	DatabaseConnMaxLifetime time.Duration
	RedisURL                string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string
	SessionSecret      string

	// Timezone is the calendar used for quota resets and daily idea dates.
	Timezone          string
	DailyCredits      int
	DailyIdeaSchedule string

	ProviderStubMode  bool
	ProviderBaseURL   string
	ProviderAPIKey    string
	ProviderModel     string
	ProviderMaxTokens int
	ProviderTimeout   time.Duration

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
}

// Load reads configuration from a .env file (if present) and environment variables
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found", "error", err)
	}

	cfg := &Config{
		Env:       getEnvWithDefault("ENV", "development"),
		Port:      getEnvWithDefault("PORT", "8080"),
		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "text"),

		DatabaseURL:             os.Getenv("DATABASE_URL"),
		DatabaseMaxOpenConns:    getIntWithDefault("DB_MAX_OPEN_CONNS", 20),
		DatabaseMaxIdleConns:    getIntWithDefault("DB_MAX_IDLE_CONNS", 10),
		DatabaseConnMaxLifetime: getDurationWithDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		RedisURL:                os.Getenv("REDIS_URL"),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleCallbackURL:  os.Getenv("GOOGLE_CALLBACK_URL"),
		SessionSecret:      os.Getenv("SESSION_SECRET"),

		Timezone:          getEnvWithDefault("APP_TIMEZONE", "Local"),
		DailyCredits:      getIntWithDefault("DAILY_CREDITS", 3),
		DailyIdeaSchedule: getEnvWithDefault("DAILY_IDEA_SCHEDULE", "0 * * * *"),

		ProviderStubMode:  getBoolWithDefault("PROVIDER_STUB_MODE", true),
		ProviderBaseURL:   getEnvWithDefault("PROVIDER_BASE_URL", "https://api.anthropic.com"),
		ProviderAPIKey:    os.Getenv("PROVIDER_API_KEY"),
		ProviderModel:     getEnvWithDefault("PROVIDER_MODEL", "claude-3-5-sonnet-latest"),
		ProviderMaxTokens: getIntWithDefault("PROVIDER_MAX_TOKENS", 8192),
		ProviderTimeout:   getDurationWithDefault("PROVIDER_TIMEOUT", 120*time.Second),

		MinIOEndpoint:  getEnvWithDefault("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinIOBucket:    getEnvWithDefault("MINIO_BUCKET", "idea-attachments"),
		MinIOUseSSL:    getBoolWithDefault("MINIO_USE_SSL", false),
	}

	// Warn if using default session secret (insecure for production)
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = "dev-secret-change-in-production-use-openssl-rand-hex-32"
		slog.Warn("Using default SESSION_SECRET. Generate a secure secret with: openssl rand -hex 32")
	}

	if !cfg.ProviderStubMode && cfg.ProviderAPIKey == "" {
		slog.Warn("PROVIDER_API_KEY not set while stub mode is disabled; generation requests will fail")
	}

	return cfg
}

// Location resolves the configured timezone, falling back to the process local zone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		slog.Warn("Invalid timezone, using local time", "timezone", c.Timezone, "error", err)
		return time.Local
	}
	return loc
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntWithDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("Invalid integer in environment, using default", "key", key, "value", value)
		return defaultValue
	}
	return n
}

func getBoolWithDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		slog.Warn("Invalid boolean in environment, using default", "key", key, "value", value)
		return defaultValue
	}
	return b
}

func getDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("Invalid duration in environment, using default", "key", key, "value", value)
		return defaultValue
	}
	return d
}
