package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Storage       StorageConfig
	Database      DatabaseConfig
	AuditDatabase *DatabaseConfig // Optional: separate DB for audit records. When nil, audit uses main DB.
	Redis         RedisConfig
	Modes         ModesConfig
	Dispatch      DispatchConfig
	Quotas        QuotaConfig
	Adapters      AdaptersConfig
	Auth          AuthConfig
	Catalog       CatalogConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// StorageConfig selects where invocations and audit records live
type StorageConfig struct {
	Driver string // memory or postgres
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// RedisConfig holds the optional Redis connection used by the shared mode store
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ModesConfig holds dispatch mode settings
type ModesConfig struct {
	Store         string // memory, postgres or redis
	DefaultMode   string
	OperatorEmail string
	OperatorSMS   string
	OperatorAPI   string
	HistoryLimit  int
}

// DispatchConfig holds adapter retry, rate and worker settings
type DispatchConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
	RatePerSecond  float64
	RateBurst      int
	Async          bool
	Workers        int
	QueueSize      int
	WebhookTimeout time.Duration
	RecoverLimit   int
	RecoverWorkers int
}

// QuotaConfig caps submissions per requesting agent. Zero disables a window.
type QuotaConfig struct {
	SubmitPerMinute int
	SubmitPerHour   int
	SubmitPerDay    int
}

// AdaptersConfig holds the endpoints channel adapters deliver to. An empty
// relay URL selects the recording sink for that channel.
type AdaptersConfig struct {
	EmailRelayURL string
	SMSRelayURL   string
	OpsHookURL    string
	AuthToken     string
}

// AuthConfig holds operator authentication settings
type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

// CatalogConfig points at an optional YAML action catalog
type CatalogConfig struct {
	Path string
}

// AuditConfig holds audit policy settings
type AuditConfig struct {
	RecordValidationRejections bool
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(getEnv("STORAGE_DRIVER", "memory")),
		},
		Database:      loadDatabaseConfig(),
		AuditDatabase: loadAuditDatabaseConfig(),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Modes: ModesConfig{
			Store:         strings.ToLower(getEnv("MODE_STORE", "memory")),
			DefaultMode:   strings.ToLower(getEnv("DEFAULT_MODE", "safe")),
			OperatorEmail: getEnv("OPERATOR_EMAIL", "operator@localhost"),
			OperatorSMS:   getEnv("OPERATOR_SMS", "+10000000000"),
			OperatorAPI:   getEnv("OPERATOR_API_URL", "http://localhost:8080/operator-sink"),
			HistoryLimit:  getEnvAsInt("MODE_HISTORY_LIMIT", 100),
		},
		Dispatch: DispatchConfig{
			MaxRetries:     getEnvAsInt("DISPATCH_MAX_RETRIES", 3),
			InitialBackoff: getEnvAsDuration("DISPATCH_INITIAL_BACKOFF", 200*time.Millisecond),
			MaxBackoff:     getEnvAsDuration("DISPATCH_MAX_BACKOFF", 5*time.Second),
			Timeout:        getEnvAsDuration("DISPATCH_TIMEOUT", 10*time.Second),
			RatePerSecond:  getEnvAsFloat("DISPATCH_RATE_PER_SECOND", 0),
			RateBurst:      getEnvAsInt("DISPATCH_RATE_BURST", 1),
			Async:          getEnvAsBool("DISPATCH_ASYNC", false),
			Workers:        getEnvAsInt("DISPATCH_WORKERS", 4),
			QueueSize:      getEnvAsInt("DISPATCH_QUEUE_SIZE", 256),
			WebhookTimeout: getEnvAsDuration("WEBHOOK_TIMEOUT", 10*time.Second),
			RecoverLimit:   getEnvAsInt("RECOVER_LIMIT", 500),
			RecoverWorkers: getEnvAsInt("RECOVER_WORKERS", 4),
		},
		Quotas: QuotaConfig{
			SubmitPerMinute: getEnvAsInt("SUBMIT_LIMIT_PER_MINUTE", 0),
			SubmitPerHour:   getEnvAsInt("SUBMIT_LIMIT_PER_HOUR", 0),
			SubmitPerDay:    getEnvAsInt("SUBMIT_LIMIT_PER_DAY", 0),
		},
		Adapters: AdaptersConfig{
			EmailRelayURL: getEnv("EMAIL_RELAY_URL", ""),
			SMSRelayURL:   getEnv("SMS_RELAY_URL", ""),
			OpsHookURL:    getEnv("OPS_HOOK_URL", ""),
			AuthToken:     getEnv("ADAPTER_AUTH_TOKEN", ""),
		},
		Auth: AuthConfig{
			Enabled:   getEnvAsBool("AUTH_ENABLED", false),
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			Issuer:    getEnv("AUTH_ISSUER", "action-gate"),
			TokenTTL:  getEnvAsDuration("AUTH_TOKEN_TTL", 12*time.Hour),
		},
		Catalog: CatalogConfig{
			Path: getEnv("ACTION_CATALOG_PATH", ""),
		},
		Audit: AuditConfig{
			RecordValidationRejections: getEnvAsBool("AUDIT_VALIDATION_REJECTIONS", true),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}
	cfg.Server.TLS.Enabled = getEnvAsBool("TLS_ENABLED", false)
	cfg.Server.TLS.CertFile = getEnv("TLS_CERT_FILE", "certs/cert.pem")
	cfg.Server.TLS.KeyFile = getEnv("TLS_KEY_FILE", "certs/key.pem")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
		if c.Database.ConnectionString == "" {
			if c.Database.User == "" {
				return fmt.Errorf("database user is required")
			}
			if c.Database.Database == "" {
				return fmt.Errorf("database name is required")
			}
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Modes.Store {
	case "memory":
	case "postgres":
		if c.Storage.Driver != "postgres" {
			return fmt.Errorf("MODE_STORE=postgres requires STORAGE_DRIVER=postgres")
		}
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("MODE_STORE=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown mode store %q", c.Modes.Store)
	}

	switch c.Modes.DefaultMode {
	case "safe", "test", "live":
	default:
		return fmt.Errorf("unknown default mode %q", c.Modes.DefaultMode)
	}

	if c.Dispatch.MaxRetries < 0 {
		return fmt.Errorf("dispatch max retries cannot be negative")
	}
	if c.Dispatch.Async && c.Dispatch.Workers < 1 {
		return fmt.Errorf("async dispatch needs at least one worker")
	}

	if c.Quotas.SubmitPerMinute < 0 || c.Quotas.SubmitPerHour < 0 || c.Quotas.SubmitPerDay < 0 {
		return fmt.Errorf("submission quotas cannot be negative")
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required when auth is enabled")
	}

	if c.IsProduction() {
		if !c.Auth.Enabled {
			return fmt.Errorf("auth must be enabled in production")
		}
		if c.Storage.Driver != "postgres" {
			return fmt.Errorf("postgres storage is required in production")
		}
		if c.Modes.OperatorEmail == "" || c.Modes.OperatorSMS == "" || c.Modes.OperatorAPI == "" {
			return fmt.Errorf("operator addresses are required in production")
		}
		if c.Adapters.EmailRelayURL == "" || c.Adapters.SMSRelayURL == "" || c.Adapters.OpsHookURL == "" {
			return fmt.Errorf("EMAIL_RELAY_URL, SMS_RELAY_URL and OPS_HOOK_URL are required in production")
		}
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password)
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, strings.TrimPrefix(u.Path, "/"))
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

func loadDatabaseConfig() DatabaseConfig {
	pool := DatabaseConfig{
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		pool.ConnectionString = dbURL
		return pool
	}
	pool.Host = getEnv("DB_HOST", "localhost")
	pool.Port = getEnvAsInt("DB_PORT", 5432)
	pool.User = getEnv("DB_USER", "actiongate")
	pool.Password = getEnv("DB_PASSWORD", "")
	pool.Database = getEnv("DB_NAME", "actiongate")
	pool.SSLMode = getEnv("DB_SSLMODE", "disable")
	return pool
}

// loadAuditDatabaseConfig returns nil when DATABASE_URL_AUDIT is unset
func loadAuditDatabaseConfig() *DatabaseConfig {
	dbURL := getEnv("DATABASE_URL_AUDIT", "")
	if dbURL == "" {
		return nil
	}
	return &DatabaseConfig{
		ConnectionString: dbURL,
		MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
