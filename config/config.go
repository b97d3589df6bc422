// Package config provides centralized configuration management for the settings web front
// with validation, type safety, and clear documentation for SRE/DevOps teams.
//
// Configuration Sources (12-factor app principles):
//  1. Default values (hardcoded)
//  2. .env file (local development via godotenv)
//  3. Environment variables (Kubernetes runtime)
//  4. Helm values → deployment.yaml → env/extraEnv → container environment
//
// Usage:
//
//	import "github.com/duynhne/settings-web/config"
//
//	func main() {
//	    cfg := config.Load()
//	    if err := cfg.Validate(); err != nil {
//	        log.Fatal(err)
//	    }
//	    // Use cfg.Service.Port, cfg.Backend.URL, etc.
//	}
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for a microservice
type Config struct {
	Service         ServiceConfig   // Service-specific settings (port, name, version)
	Tracing         TracingConfig   // OpenTelemetry/Tempo configuration
	Profiling       ProfilingConfig // Pyroscope continuous profiling
	Logging         LoggingConfig   // Structured logging (Zap)
	Metrics         MetricsConfig   // Prometheus metrics
	Backend         BackendConfig   // Backend REST API that owns users
	Session         SessionConfig   // Session cookie and current-user cache
	Avatar          AvatarConfig    // Profile picture upload limits
	ShutdownTimeout int             // Graceful shutdown timeout in seconds - from SHUTDOWN_TIMEOUT env (default: 10)
	// ReadinessDrainDelay: delay after failing readiness before shutting down the HTTP server.
	// This gives Kubernetes/Service routing time to stop sending new traffic.
	// From READINESS_DRAIN_DELAY env (default: 5s, max: 30s).
	ReadinessDrainDelay int
}

// ServiceConfig defines basic service configuration
type ServiceConfig struct {
	Name    string // Service name (e.g., "auth", "user") - from SERVICE_NAME env
	Port    string // HTTP server port (default: "8080") - from PORT env
	Version string // Service version (optional) - from VERSION env
	Env     string // Environment (dev/staging/production) - from ENV env
}

// TracingConfig defines OpenTelemetry tracing configuration
// Traces are sent to OpenTelemetry Collector for distributed tracing analysis
type TracingConfig struct {
	Enabled            bool    // Enable tracing (default: true) - from TRACING_ENABLED env
	Endpoint           string  // OTel Collector endpoint - from OTEL_COLLECTOR_ENDPOINT env
	SampleRate         float64 // Trace sampling rate (0.0-1.0) - from OTEL_SAMPLE_RATE env
	ServiceName        string  // Service name for traces (defaults to ServiceConfig.Name)
	MaxExportBatchSize int     // Max spans per batch (default: 512)
}

// ProfilingConfig defines Pyroscope continuous profiling configuration
type ProfilingConfig struct {
	Enabled     bool   // Enable profiling (default: true) - from PROFILING_ENABLED env
	Endpoint    string // Pyroscope endpoint - from PYROSCOPE_ENDPOINT env
	ServiceName string // Service name for profiling (defaults to ServiceConfig.Name)
}

// LoggingConfig defines structured logging configuration
type LoggingConfig struct {
	Level  string // Log level: debug, info, warn, error (default: "info") - from LOG_LEVEL env
	Format string // Log format: json, console (default: "json") - from LOG_FORMAT env

	// File: optional path of a rotating log file written in addition to stdout - from LOG_FILE env
	File       string
	MaxSizeMB  int // Rotate after this many megabytes (default: 100) - from LOG_FILE_MAX_SIZE_MB env
	MaxBackups int // Rotated files to keep (default: 3) - from LOG_FILE_MAX_BACKUPS env
}

// MetricsConfig defines Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   // Enable metrics (default: true) - from METRICS_ENABLED env
	Path    string // Metrics endpoint path (default: "/metrics") - from METRICS_PATH env
}

// BackendConfig defines how the settings page reaches the backend API
type BackendConfig struct {
	URL           string // Backend base URL serving /api/user - from BACKEND_URL env
	Timeout       int    // Per-request timeout in seconds - from BACKEND_TIMEOUT env (default: 10s, max: 60s)
	RetryAttempts int    // Attempts for the idempotent current-user lookup - from BACKEND_RETRY_ATTEMPTS env (default: 3)
}

// SessionConfig defines the session cookie forwarded to the backend and the
// cache of resolved users
type SessionConfig struct {
	CookieName string // Session cookie name - from SESSION_COOKIE_NAME env (default: "sessionId")
	CacheSize  int    // Max cached sessions - from SESSION_CACHE_SIZE env (default: 1024)
	CacheTTL   int    // Cached user lifetime in seconds - from SESSION_CACHE_TTL env (default: 30s, max: 60s)
	SignInURL  string // Where anonymous visitors are sent to sign in - from SIGN_IN_URL env (default: "/login")
}

// AvatarConfig defines profile picture upload limits
type AvatarConfig struct {
	MaxBytes int64 // Largest accepted upload - from AVATAR_MAX_BYTES env (default: 5 MiB)
}

// Load reads configuration from environment variables with defaults
// It automatically loads .env file if present (for local development)
//
// Priority: .env file < environment variables
// This means ENV vars override .env file values (production takes precedence)
func Load() *Config {
	// Load .env file if exists (for local development)
	// godotenv.Load() fails silently if .env doesn't exist - perfect for production
	_ = godotenv.Load()

	return &Config{
		Service: ServiceConfig{
			Name:    getEnv("SERVICE_NAME", "unknown"),
			Port:    getEnv("PORT", "8080"),
			Version: getEnv("VERSION", "dev"),
			Env:     getEnv("ENV", "development"),
		},
		Tracing: TracingConfig{
			Enabled:            getEnvBool("TRACING_ENABLED", true),
			Endpoint:           getEnv("OTEL_COLLECTOR_ENDPOINT", "otel-collector-opentelemetry-collector.monitoring.svc.cluster.local:4318"),
			SampleRate:         getEnvFloat("OTEL_SAMPLE_RATE", 0.1), // 10% default (production)
			ServiceName:        getEnv("SERVICE_NAME", "unknown"),
			MaxExportBatchSize: getEnvInt("OTEL_BATCH_SIZE", 512),
		},
		Profiling: ProfilingConfig{
			Enabled:     getEnvBool("PROFILING_ENABLED", true),
			Endpoint:    getEnv("PYROSCOPE_ENDPOINT", "http://pyroscope.monitoring.svc.cluster.local:4040"),
			ServiceName: getEnv("SERVICE_NAME", "unknown"),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("LOG_FILE_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_FILE_MAX_BACKUPS", 3),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
		Backend: BackendConfig{
			URL:           strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:3000"), "/"),
			Timeout:       getEnvDurationSeconds("BACKEND_TIMEOUT", 10),
			RetryAttempts: getEnvInt("BACKEND_RETRY_ATTEMPTS", 3),
		},
		Session: SessionConfig{
			CookieName: getEnv("SESSION_COOKIE_NAME", "sessionId"),
			CacheSize:  getEnvInt("SESSION_CACHE_SIZE", 1024),
			CacheTTL:   getEnvDurationSeconds("SESSION_CACHE_TTL", 30),
			SignInURL:  getEnv("SIGN_IN_URL", "/login"),
		},
		Avatar: AvatarConfig{
			MaxBytes: int64(getEnvInt("AVATAR_MAX_BYTES", 5<<20)),
		},
		ShutdownTimeout:     getEnvDurationSeconds("SHUTDOWN_TIMEOUT", 10),
		ReadinessDrainDelay: getEnvDurationSecondsWithMax("READINESS_DRAIN_DELAY", 5, 30),
	}
}

// Validate performs comprehensive validation of all configuration fields
// Returns detailed error messages for SRE/DevOps troubleshooting
func (c *Config) Validate() error {
	var errors []string

	// Service validation
	if c.Service.Name == "" || c.Service.Name == "unknown" {
		errors = append(errors, "SERVICE_NAME is required (e.g., 'settings-web')")
	}
	if c.Service.Port == "" {
		errors = append(errors, "PORT is required (e.g., '8080')")
	}
	// Validate port is a valid number
	if _, err := strconv.Atoi(c.Service.Port); err != nil {
		errors = append(errors, fmt.Sprintf("PORT must be a valid number, got: %s", c.Service.Port))
	}
	// Validate environment
	validEnvs := []string{"development", "dev", "staging", "stage", "production", "prod"}
	if !contains(validEnvs, c.Service.Env) {
		errors = append(errors, fmt.Sprintf("ENV must be one of %v, got: %s", validEnvs, c.Service.Env))
	}

	// Tracing validation
	if c.Tracing.Enabled {
		if c.Tracing.Endpoint == "" {
			errors = append(errors, "OTEL_COLLECTOR_ENDPOINT is required when tracing is enabled")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1.0 {
			errors = append(errors, fmt.Sprintf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got: %.2f", c.Tracing.SampleRate))
		}
		if c.Tracing.ServiceName == "" || c.Tracing.ServiceName == "unknown" {
			errors = append(errors, "SERVICE_NAME is required for tracing (used in Tempo queries)")
		}
	}

	// Profiling validation
	if c.Profiling.Enabled {
		if c.Profiling.Endpoint == "" {
			errors = append(errors, "PYROSCOPE_ENDPOINT is required when profiling is enabled")
		}
		if c.Profiling.ServiceName == "" || c.Profiling.ServiceName == "unknown" {
			errors = append(errors, "SERVICE_NAME is required for profiling (used in Pyroscope UI)")
		}
	}

	// Logging validation
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, strings.ToLower(c.Logging.Level)) {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of %v, got: %s", validLogLevels, c.Logging.Level))
	}
	validLogFormats := []string{"json", "console"}
	if !contains(validLogFormats, strings.ToLower(c.Logging.Format)) {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of %v, got: %s", validLogFormats, c.Logging.Format))
	}

	// Backend validation
	if c.Backend.URL == "" {
		errors = append(errors, "BACKEND_URL is required (e.g., 'http://web:3000')")
	} else if u, err := url.Parse(c.Backend.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, fmt.Sprintf("BACKEND_URL must be an absolute URL, got: %s", c.Backend.URL))
	}
	if c.Backend.RetryAttempts < 1 {
		errors = append(errors, fmt.Sprintf("BACKEND_RETRY_ATTEMPTS must be at least 1, got: %d", c.Backend.RetryAttempts))
	}

	// Session validation
	if c.Session.CookieName == "" {
		errors = append(errors, "SESSION_COOKIE_NAME is required")
	}
	if c.Session.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("SESSION_CACHE_SIZE must be at least 1, got: %d", c.Session.CacheSize))
	}

	// Avatar validation
	if c.Avatar.MaxBytes <= 0 {
		errors = append(errors, fmt.Sprintf("AVATAR_MAX_BYTES must be positive, got: %d", c.Avatar.MaxBytes))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Service.Env)
	return env == "development" || env == "dev"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Service.Env)
	return env == "production" || env == "prod"
}

// Helper functions for environment variable parsing

// getEnv reads an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool reads a boolean environment variable with a default fallback
// Accepts: "true", "1", "yes" for true | "false", "0", "no" for false
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	value = strings.ToLower(value)
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt reads an integer environment variable with a default fallback
// Returns default if parsing fails
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat reads a float64 environment variable with a default fallback
// Returns default if parsing fails
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvDurationSeconds reads a duration environment variable and returns seconds as int
// Accepts Go duration format (e.g., "10s", "30s", "1m")
// Default: 10 seconds
// Max: 60 seconds (safety limit)
// Returns default on invalid values (silent fallback for startup safety)
func getEnvDurationSeconds(key string, defaultValueSeconds int) int {
	const maxSeconds = 60

	timeoutStr := os.Getenv(key)
	if timeoutStr == "" {
		return defaultValueSeconds
	}

	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		// Invalid format - use default (silent fallback for startup safety)
		return defaultValueSeconds
	}

	// Convert to seconds
	seconds := int(timeout.Seconds())

	// Validate: must be positive and within reasonable limit
	if seconds <= 0 || seconds > maxSeconds {
		// Invalid value - use default (silent fallback for startup safety)
		return defaultValueSeconds
	}

	return seconds
}

// GetShutdownTimeoutDuration returns shutdown timeout as time.Duration
// Convenience method for use in main.go
func (c *Config) GetShutdownTimeoutDuration() time.Duration {
	return time.Duration(c.ShutdownTimeout) * time.Second
}

// getEnvDurationSecondsWithMax reads a duration env var and returns seconds as int.
// Accepts Go duration format (e.g., "5s", "30s", "1m").
// Returns default on invalid values (silent fallback for startup safety).
func getEnvDurationSecondsWithMax(key string, defaultValueSeconds int, maxSeconds int) int {
	timeoutStr := os.Getenv(key)
	if timeoutStr == "" {
		return defaultValueSeconds
	}

	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return defaultValueSeconds
	}

	seconds := int(timeout.Seconds())
	if seconds <= 0 || seconds > maxSeconds {
		return defaultValueSeconds
	}

	return seconds
}

// GetBackendTimeoutDuration returns the backend request timeout as time.Duration.
func (c *Config) GetBackendTimeoutDuration() time.Duration {
	return time.Duration(c.Backend.Timeout) * time.Second
}

// GetSessionCacheTTLDuration returns the cached user lifetime as time.Duration.
func (c *Config) GetSessionCacheTTLDuration() time.Duration {
	return time.Duration(c.Session.CacheTTL) * time.Second
}

// GetReadinessDrainDelayDuration returns readiness drain delay as time.Duration.
func (c *Config) GetReadinessDrainDelayDuration() time.Duration {
	return time.Duration(c.ReadinessDrainDelay) * time.Second
}

// contains checks if a string slice contains a specific value
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, item) {
			return true
		}
	}
	return false
}
