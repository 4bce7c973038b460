package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name:    "default configuration",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "development", cfg.Environment)
				assert.True(t, cfg.IsDevelopment())
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.False(t, cfg.Server.TLS.Enabled)
				assert.Equal(t, "memory", cfg.Storage.Driver)
				assert.Equal(t, "memory", cfg.Modes.Store)
				assert.Equal(t, "safe", cfg.Modes.DefaultMode)
				assert.Equal(t, 3, cfg.Dispatch.MaxRetries)
				assert.False(t, cfg.Dispatch.Async)
				assert.True(t, cfg.Audit.RecordValidationRejections)
				assert.Nil(t, cfg.AuditDatabase)
			},
		},
		{
			name: "dispatch tuning",
			envVars: map[string]string{
				"DISPATCH_MAX_RETRIES":     "5",
				"DISPATCH_INITIAL_BACKOFF": "50ms",
				"DISPATCH_RATE_PER_SECOND": "2.5",
				"DISPATCH_ASYNC":           "true",
				"DISPATCH_WORKERS":         "8",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 5, cfg.Dispatch.MaxRetries)
				assert.Equal(t, 50*time.Millisecond, cfg.Dispatch.InitialBackoff)
				assert.Equal(t, 2.5, cfg.Dispatch.RatePerSecond)
				assert.True(t, cfg.Dispatch.Async)
				assert.Equal(t, 8, cfg.Dispatch.Workers)
			},
		},
		{
			name: "postgres storage with separate audit database",
			envVars: map[string]string{
				"STORAGE_DRIVER":     "postgres",
				"MODE_STORE":         "postgres",
				"DATABASE_URL":       "postgres://u:p@db.internal:6543/gate",
				"DATABASE_URL_AUDIT": "postgres://u:p@audit.internal/audit",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "postgres://u:p@db.internal:6543/gate", cfg.Database.DSN())
				assert.Equal(t, "host=db.internal port=6543 database=gate", cfg.Database.LogString())
				require.NotNil(t, cfg.AuditDatabase)
				assert.Equal(t, "host=audit.internal port=5432 database=audit", cfg.AuditDatabase.LogString())
			},
		},
		{
			name: "cors origins list",
			envVars: map[string]string{
				"CORS_ALLOWED_ORIGINS": "https://a.example, https://b.example ,",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
			},
		},
		{
			name: "PORT takes precedence over SERVER_PORT",
			envVars: map[string]string{
				"PORT":        "9443",
				"SERVER_PORT": "9000",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9443, cfg.Server.Port)
			},
		},
		{
			name: "submission quotas",
			envVars: map[string]string{
				"SUBMIT_LIMIT_PER_MINUTE": "30",
				"SUBMIT_LIMIT_PER_DAY":    "1000",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 30, cfg.Quotas.SubmitPerMinute)
				assert.Equal(t, 0, cfg.Quotas.SubmitPerHour)
				assert.Equal(t, 1000, cfg.Quotas.SubmitPerDay)
			},
		},
		{
			name:    "negative quota",
			envVars: map[string]string{"SUBMIT_LIMIT_PER_HOUR": "-1"},
			wantErr: true,
		},
		{
			name:    "unknown storage driver",
			envVars: map[string]string{"STORAGE_DRIVER": "mongo"},
			wantErr: true,
		},
		{
			name:    "postgres mode store needs postgres storage",
			envVars: map[string]string{"MODE_STORE": "postgres"},
			wantErr: true,
		},
		{
			name:    "redis mode store needs an address",
			envVars: map[string]string{"MODE_STORE": "redis"},
			wantErr: true,
		},
		{
			name:    "unknown default mode",
			envVars: map[string]string{"DEFAULT_MODE": "yolo"},
			wantErr: true,
		},
		{
			name:    "auth without secret",
			envVars: map[string]string{"AUTH_ENABLED": "true"},
			wantErr: true,
		},
		{
			name: "production without auth",
			envVars: map[string]string{
				"ENVIRONMENT":    "production",
				"STORAGE_DRIVER": "postgres",
				"DB_HOST":        "db",
			},
			wantErr: true,
		},
		{
			name: "production without relays",
			envVars: map[string]string{
				"ENVIRONMENT":     "production",
				"STORAGE_DRIVER":  "postgres",
				"DB_HOST":         "db",
				"AUTH_ENABLED":    "true",
				"AUTH_JWT_SECRET": "s3cret",
				"EMAIL_RELAY_URL": "https://relay.internal/email",
				"OPS_HOOK_URL":    "https://ops.internal/hook",
			},
			wantErr: true,
		},
		{
			name: "production fully configured",
			envVars: map[string]string{
				"ENVIRONMENT":     "production",
				"STORAGE_DRIVER":  "postgres",
				"DB_HOST":         "db",
				"AUTH_ENABLED":    "true",
				"AUTH_JWT_SECRET": "s3cret",
				"EMAIL_RELAY_URL": "https://relay.internal/email",
				"SMS_RELAY_URL":   "https://relay.internal/sms",
				"OPS_HOOK_URL":    "https://ops.internal/hook",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.IsProduction())
				assert.Contains(t, cfg.Database.DSN(), "host=db")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := New(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{Host: "127.0.0.1", Port: 8080}
	assert.Equal(t, "127.0.0.1:8080", cfg.Address())
}
