package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Identity      IdentityConfig
	Webhook       WebhookConfig
	RateLimit     RateLimitConfig
	Storage       StorageConfig
	Jobs          JobsConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// Public base URL of the web application, used for invite links and CORS.
	AppURL string
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// DatabaseConfig holds relational database settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// IdentityConfig holds identity provider settings
type IdentityConfig struct {
	IssuerURL string
	ClientID  string

	// ServiceAccount is the decoded admin credential, nil when not configured.
	ServiceAccount *ServiceAccount

	CacheSize int
	CacheTTL  time.Duration
}

// WebhookConfig holds inbound webhook settings
type WebhookConfig struct {
	Secret string
}

// RateLimitConfig holds limiter settings
type RateLimitConfig struct {
	Enabled  bool
	RedisURL string
	Window   time.Duration
}

// StorageConfig holds document storage settings
type StorageConfig struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	PresignTTL   time.Duration
}

// Enabled reports whether document storage is configured
func (s StorageConfig) Enabled() bool {
	return s.Bucket != ""
}

// JobsConfig holds background job schedules
type JobsConfig struct {
	Enabled         bool
	OverdueSchedule string
	CleanupSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel  logrus.Level
	LogFormat string

	// AuditMirror copies every audit entry into the log stream.
	AuditMirror bool

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	identity, err := loadIdentityConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Identity:      identity,
		Webhook:       WebhookConfig{Secret: getEnv("WEBHOOK_SECRET", "")},
		RateLimit:     loadRateLimitConfig(),
		Storage:       loadStorageConfig(),
		Jobs:          loadJobsConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("HTTP_HOST", "0.0.0.0"),
		Port:            getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		RequestTimeout:  getEnvDuration("HTTP_REQUEST_TIMEOUT", 25*time.Second),
		ShutdownTimeout: getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("HTTP_MAX_BODY_BYTES", 1<<20),
		AppURL:          strings.TrimRight(getEnv("APP_URL", "http://localhost:3000"), "/"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("DATABASE_URL", ""),
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

func loadIdentityConfig() (IdentityConfig, error) {
	sa, err := LoadServiceAccount(
		getEnv("IDP_SERVICE_ACCOUNT", ""),
		getEnv("IDP_CLIENT_ID", ""),
		getEnv("IDP_CLIENT_SECRET", ""),
		getEnv("IDP_TOKEN_URL", ""),
		getEnv("IDP_ADMIN_URL", ""),
	)
	if err != nil {
		return IdentityConfig{}, err
	}

	return IdentityConfig{
		IssuerURL:      getEnv("IDP_ISSUER_URL", ""),
		ClientID:       getEnv("IDP_CLIENT_ID", ""),
		ServiceAccount: sa,
		CacheSize:      getEnvInt("IDP_CACHE_SIZE", 10000),
		CacheTTL:       getEnvDuration("IDP_CACHE_TTL", 2*time.Minute),
	}, nil
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:  getEnvBool("RATE_LIMIT_ENABLED", true),
		RedisURL: getEnv("REDIS_URL", ""),
		Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Bucket:       getEnv("S3_BUCKET", ""),
		Region:       getEnv("S3_REGION", "us-east-1"),
		Endpoint:     getEnv("S3_ENDPOINT", ""),
		AccessKey:    getEnv("S3_ACCESS_KEY", ""),
		SecretKey:    getEnv("S3_SECRET_KEY", ""),
		UsePathStyle: getEnvBool("S3_USE_PATH_STYLE", false),
		PresignTTL:   getEnvDuration("S3_PRESIGN_TTL", 15*time.Minute),
	}
}

func loadJobsConfig() JobsConfig {
	return JobsConfig{
		Enabled:         getEnvBool("JOBS_ENABLED", true),
		OverdueSchedule: getEnv("JOBS_OVERDUE_SCHEDULE", "0 * * * *"),
		CleanupSchedule: getEnv("JOBS_CLEANUP_SCHEDULE", "*/10 * * * *"),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "json")),
		AuditMirror:        getEnvBool("AUDIT_LOG_MIRROR", false),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("OTEL_SERVICE_NAME", "groundwork"),
		OTelServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}

	if c.Identity.IssuerURL != "" && c.Identity.ClientID == "" {
		return fmt.Errorf("IDP_CLIENT_ID is required when IDP_ISSUER_URL is set")
	}

	if c.Storage.Enabled() && c.Storage.Region == "" {
		return fmt.Errorf("S3 region is required when S3_BUCKET is set")
	}
	if (c.Storage.AccessKey == "") != (c.Storage.SecretKey == "") {
		return fmt.Errorf("S3 access key and secret key must be set together")
	}

	switch c.Observability.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Observability.LogFormat)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// RequireDatabase returns an error when no database URL is configured
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

func parseLogLevel(level string) logrus.Level {
	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
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

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
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
