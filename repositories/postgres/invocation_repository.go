package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

const invocationColumns = `id, action_id, parameters, requested_by, submitted_at, status, channel,
		       requires_approval, original_destination, resolved_destination, mode_at_dispatch,
		       rehearsal, decided_by, decided_at, attempts, reason, updated_at`

// InvocationRepository implements the repositories.InvocationRepository interface
type InvocationRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewInvocationRepository creates a new invocation repository
func NewInvocationRepository(db *DB, logger *zap.Logger) repositories.InvocationRepository {
	return &InvocationRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new invocation; a primary key collision maps to ErrDuplicate
func (r *InvocationRepository) Create(ctx context.Context, inv *models.Invocation) error {
	query := `
		INSERT INTO invocations (
			id, action_id, parameters, requested_by, submitted_at, status, channel,
			requires_approval, original_destination, resolved_destination, mode_at_dispatch,
			rehearsal, decided_by, decided_at, attempts, reason, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		inv.ID,
		inv.ActionID,
		inv.Parameters,
		inv.RequestedBy,
		inv.SubmittedAt,
		inv.Status,
		inv.Channel,
		inv.RequiresApproval,
		inv.OriginalDestination,
		inv.ResolvedDestination,
		inv.ModeAtDispatch,
		inv.Rehearsal,
		inv.DecidedBy,
		inv.DecidedAt,
		inv.Attempts,
		inv.Reason,
		inv.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return repositories.ErrDuplicate
		}
		return fmt.Errorf("failed to create invocation: %w", err)
	}

	r.logger.Debug("invocation created", zap.String("invocation_id", inv.ID), zap.String("action_id", inv.ActionID))
	return nil
}

// GetByID retrieves an invocation by ID
func (r *InvocationRepository) GetByID(ctx context.Context, id string) (*models.Invocation, error) {
	query := `SELECT ` + invocationColumns + ` FROM invocations WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	inv, err := scanInvocation(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get invocation: %w", err)
	}
	return inv, nil
}

// CompareAndSwap updates the mutable columns only while status still equals expected
func (r *InvocationRepository) CompareAndSwap(ctx context.Context, inv *models.Invocation, expected models.InvocationStatus) (bool, error) {
	query := `
		UPDATE invocations
		SET status = $2, original_destination = $3, resolved_destination = $4,
		    mode_at_dispatch = $5, rehearsal = $6, decided_by = $7, decided_at = $8,
		    attempts = $9, reason = $10, updated_at = $11
		WHERE id = $1 AND status = $12
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		inv.ID,
		inv.Status,
		inv.OriginalDestination,
		inv.ResolvedDestination,
		inv.ModeAtDispatch,
		inv.Rehearsal,
		inv.DecidedBy,
		inv.DecidedAt,
		inv.Attempts,
		inv.Reason,
		inv.UpdatedAt,
		expected,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update invocation status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		r.logger.Debug("invocation status swap lost",
			zap.String("invocation_id", inv.ID),
			zap.String("expected", string(expected)),
			zap.String("next", string(inv.Status)))
		return false, nil
	}
	return true, nil
}

// ListByStatus returns the oldest invocations in a status
func (r *InvocationRepository) ListByStatus(ctx context.Context, status models.InvocationStatus, limit int) ([]*models.Invocation, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `SELECT ` + invocationColumns + `
		FROM invocations
		WHERE status = $1
		ORDER BY submitted_at ASC, id ASC
		LIMIT $2`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list invocations: %w", err)
	}
	defer rows.Close()

	var out []*models.Invocation
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invocation: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invocation rows: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInvocation(row rowScanner) (*models.Invocation, error) {
	inv := &models.Invocation{}
	var decidedAt sql.NullTime
	err := row.Scan(
		&inv.ID,
		&inv.ActionID,
		&inv.Parameters,
		&inv.RequestedBy,
		&inv.SubmittedAt,
		&inv.Status,
		&inv.Channel,
		&inv.RequiresApproval,
		&inv.OriginalDestination,
		&inv.ResolvedDestination,
		&inv.ModeAtDispatch,
		&inv.Rehearsal,
		&inv.DecidedBy,
		&decidedAt,
		&inv.Attempts,
		&inv.Reason,
		&inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if decidedAt.Valid {
		t := decidedAt.Time
		inv.DecidedAt = &t
	}
	return inv, nil
}
