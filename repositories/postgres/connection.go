package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/upb/action-gate/config"
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB opens and verifies a connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return Wrap(db, logger), nil
}

// Wrap adopts an already opened pool
func Wrap(db *sql.DB, logger *zap.Logger) *DB {
	return &DB{
		DB:     db,
		logger: logger,
	}
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck pings the database and runs a trivial query
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

const auditSchema = `
		CREATE TABLE IF NOT EXISTS audit_records (
			id UUID PRIMARY KEY,
			sequence BIGSERIAL NOT NULL UNIQUE,
			invocation_id VARCHAR(255) NOT NULL,
			action_id VARCHAR(255) NOT NULL,
			event VARCHAR(50) NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			channel VARCHAR(20) NOT NULL,
			original_destination TEXT NOT NULL DEFAULT '',
			resolved_destination TEXT NOT NULL DEFAULT '',
			mode VARCHAR(20) NOT NULL DEFAULT '',
			rehearsal BOOLEAN NOT NULL DEFAULT false,
			actor VARCHAR(255) NOT NULL DEFAULT '',
			attempt INTEGER NOT NULL DEFAULT 0,
			detail TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_audit_records_invocation_id ON audit_records(invocation_id);
		CREATE INDEX IF NOT EXISTS idx_audit_records_channel ON audit_records(channel);
		CREATE INDEX IF NOT EXISTS idx_audit_records_event ON audit_records(event);
		CREATE INDEX IF NOT EXISTS idx_audit_records_occurred_at ON audit_records(occurred_at, sequence);
`

// InitSchema creates the engine tables. The audit table is included so a
// single database deployment needs no extra step.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS invocations (
			id VARCHAR(255) PRIMARY KEY,
			action_id VARCHAR(255) NOT NULL,
			parameters JSONB NOT NULL DEFAULT '{}',
			requested_by VARCHAR(255) NOT NULL,
			submitted_at TIMESTAMPTZ NOT NULL,
			status VARCHAR(50) NOT NULL,
			channel VARCHAR(20) NOT NULL,
			requires_approval BOOLEAN NOT NULL,
			original_destination TEXT NOT NULL DEFAULT '',
			resolved_destination TEXT NOT NULL DEFAULT '',
			mode_at_dispatch VARCHAR(20) NOT NULL DEFAULT '',
			rehearsal BOOLEAN NOT NULL DEFAULT false,
			decided_by VARCHAR(255) NOT NULL DEFAULT '',
			decided_at TIMESTAMPTZ,
			attempts INTEGER NOT NULL DEFAULT 0,
			reason TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS mode_states (
			channel VARCHAR(20) PRIMARY KEY,
			mode VARCHAR(20) NOT NULL,
			version BIGINT NOT NULL,
			last_changed_at TIMESTAMPTZ NOT NULL,
			last_changed_by VARCHAR(255) NOT NULL
		);

		CREATE TABLE IF NOT EXISTS mode_changes (
			id UUID PRIMARY KEY,
			channel VARCHAR(20) NOT NULL,
			previous_mode VARCHAR(20) NOT NULL,
			new_mode VARCHAR(20) NOT NULL,
			changed_by VARCHAR(255) NOT NULL,
			changed_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_invocations_status ON invocations(status, submitted_at);
		CREATE INDEX IF NOT EXISTS idx_mode_changes_channel ON mode_changes(channel, changed_at);
	` + auditSchema

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}

// InitAuditSchema initializes only the audit table.
// Use for the separate audit database when DATABASE_URL_AUDIT is set.
func (db *DB) InitAuditSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, auditSchema); err != nil {
		return fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	db.logger.Info("audit schema initialized successfully")
	return nil
}
