package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/accessly/accessly/pkg/observability"
	"github.com/accessly/accessly/pkg/store"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Database configuration
	Database store.ConnectionConfig `yaml:"database"`

	// Session configuration
	Sessions SessionConfig `yaml:"sessions"`

	// Auth configuration
	Auth AuthConfig `yaml:"auth"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// SessionConfig holds session store configuration
type SessionConfig struct {
	RedisURL      string        `yaml:"redis_url"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

// AuthConfig holds credential verification tuning
type AuthConfig struct {
	// Maximum bcrypt comparisons in flight at once
	MaxConcurrentVerifications int `yaml:"max_concurrent_verifications"`

	// Size of the verified-secret cache
	VerifierCacheSize int `yaml:"verifier_cache_size"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel `yaml:"log_level"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// LoadConfig loads configuration from environment variables. If
// ACCESSLY_CONFIG_FILE names a YAML file, its values are applied first
// and the environment overrides them.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := getEnv("ACCESSLY_CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Database: store.DefaultConnectionConfig("postgres://localhost:5432/accessly?sslmode=disable"),
		Sessions: SessionConfig{
			RedisURL: "redis://localhost:6379",
			TTL:      24 * time.Hour,
		},
		Auth: AuthConfig{
			MaxConcurrentVerifications: 4,
			VerifierCacheSize:          512,
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.InfoLevel,
			MetricsEnabled: true,
		},
	}
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	// Server
	if host := getEnv("ACCESSLY_HOST", ""); host != "" {
		c.Server.Host = host
	}
	if port := getEnv("ACCESSLY_PORT", ""); port != "" {
		c.Server.Port = port
	}
	if healthPort := getEnv("ACCESSLY_HEALTH_PORT", ""); healthPort != "" {
		c.Server.HealthPort = healthPort
	}
	if timeout := getEnvDuration("ACCESSLY_READ_TIMEOUT", 0); timeout > 0 {
		c.Server.ReadTimeout = timeout
	}
	if timeout := getEnvDuration("ACCESSLY_WRITE_TIMEOUT", 0); timeout > 0 {
		c.Server.WriteTimeout = timeout
	}
	if timeout := getEnvDuration("ACCESSLY_IDLE_TIMEOUT", 0); timeout > 0 {
		c.Server.IdleTimeout = timeout
	}
	if timeout := getEnvDuration("ACCESSLY_SHUTDOWN_TIMEOUT", 0); timeout > 0 {
		c.Server.ShutdownTimeout = timeout
	}

	// Database
	if pgURL := getEnv("ACCESSLY_POSTGRES_URL", ""); pgURL != "" {
		c.Database.URL = pgURL
	}
	if maxConns := getEnvInt("ACCESSLY_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		c.Database.MaxConns = maxConns
	}
	if minConns := getEnvInt("ACCESSLY_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		c.Database.MinConns = minConns
	}
	if timeout := getEnvDuration("ACCESSLY_POSTGRES_TIMEOUT", 0); timeout > 0 {
		c.Database.Timeout = timeout
	}
	if lifetime := getEnvDuration("ACCESSLY_POSTGRES_CONN_LIFETIME", 0); lifetime > 0 {
		c.Database.MaxLifetime = lifetime
	}

	// Sessions
	if redisURL := getEnv("ACCESSLY_REDIS_URL", ""); redisURL != "" {
		c.Sessions.RedisURL = redisURL
	}
	if redisPassword := getEnv("ACCESSLY_REDIS_PASSWORD", ""); redisPassword != "" {
		c.Sessions.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("ACCESSLY_REDIS_DB", -1); redisDB >= 0 {
		c.Sessions.RedisDB = redisDB
	}
	if ttl := getEnvDuration("ACCESSLY_SESSION_TTL", 0); ttl > 0 {
		c.Sessions.TTL = ttl
	}

	// Auth
	if n := getEnvInt("ACCESSLY_MAX_CONCURRENT_VERIFICATIONS", 0); n > 0 {
		c.Auth.MaxConcurrentVerifications = n
	}
	if n := getEnvInt("ACCESSLY_VERIFIER_CACHE_SIZE", 0); n > 0 {
		c.Auth.VerifierCacheSize = n
	}

	// Observability
	if level := getEnv("ACCESSLY_LOG_LEVEL", ""); level != "" {
		c.Observability.LogLevel = parseLogLevel(level)
	}
	if enabled := getEnv("ACCESSLY_METRICS_ENABLED", ""); enabled != "" {
		c.Observability.MetricsEnabled = strings.ToLower(enabled) == "true" || enabled == "1"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Sessions.RedisURL == "" {
		return fmt.Errorf("redis URL is required")
	}
	if c.Sessions.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}

	if c.Auth.MaxConcurrentVerifications <= 0 {
		return fmt.Errorf("max concurrent verifications must be positive")
	}
	if c.Auth.VerifierCacheSize <= 0 {
		return fmt.Errorf("verifier cache size must be positive")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
