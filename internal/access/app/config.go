package app

import (
	"os"
	"strconv"
	"time"

	"github.com/sgsgita/alumnigate/internal/access/domain"
	"github.com/sgsgita/alumnigate/internal/access/service"
)

type Config struct {
	SigningSecret string // Optional: HMAC signing secret; generated (with a warning) when absent

	DatabaseFile         string        // Optional: path to SQLite database file (default: ./access.db)
	InvitationTTL        time.Duration // Optional: invitation token lifetime (default: 7 days)
	ConsentTTL           time.Duration // Optional: guardian consent validity (default: 365 days)
	RateLimitFailClosed  bool          // Optional: reject requests when the limiter store is down (default: false)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	return Config{
		SigningSecret: os.Getenv("ACCESS_SIGNING_SECRET"),
		DatabaseFile:  getEnvOrDefault("ACCESS_DATABASE_FILE", "access.db"),
		InvitationTTL: getEnvDurationOrDefault(
			"ACCESS_INVITATION_TTL", service.DefaultInvitationTTL),
		ConsentTTL: getEnvDurationOrDefault(
			"ACCESS_CONSENT_TTL", domain.ConsentValidity),
		RateLimitFailClosed:  getEnvBoolOrDefault("ACCESS_RATELIMIT_FAIL_CLOSED", false),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
