package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
	"go.uber.org/zap"
)

// errSwapLost aborts the transaction when the version check fails
var errSwapLost = errors.New("mode version changed")

// ModeRepository implements the repositories.ModeRepository interface
type ModeRepository struct {
	db     *DB
	txm    repositories.TransactionManager
	logger *zap.Logger
}

// NewModeRepository creates a new mode repository
func NewModeRepository(db *DB, txm repositories.TransactionManager, logger *zap.Logger) repositories.ModeRepository {
	return &ModeRepository{
		db:     db,
		txm:    txm,
		logger: logger,
	}
}

// Load retrieves the current state of a channel
func (r *ModeRepository) Load(ctx context.Context, channel models.Channel) (*models.ModeState, error) {
	query := `
		SELECT channel, mode, version, last_changed_at, last_changed_by
		FROM mode_states
		WHERE channel = $1
	`

	executor := GetExecutor(ctx, r.db)
	state := &models.ModeState{}
	err := executor.QueryRowContext(ctx, query, channel).Scan(
		&state.Channel,
		&state.Mode,
		&state.Version,
		&state.LastChangedAt,
		&state.LastChangedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load mode state: %w", err)
	}
	return state, nil
}

// CompareAndSwap writes the new state and its change record in one transaction
func (r *ModeRepository) CompareAndSwap(ctx context.Context, next models.ModeState, expectedVersion int64, change *models.ModeChange) (bool, error) {
	err := r.txm.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		executor := GetExecutor(ctx, r.db)

		var result sql.Result
		var err error
		if expectedVersion == 0 {
			result, err = executor.ExecContext(ctx, `
				INSERT INTO mode_states (channel, mode, version, last_changed_at, last_changed_by)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (channel) DO NOTHING
			`, next.Channel, next.Mode, next.Version, next.LastChangedAt, next.LastChangedBy)
		} else {
			result, err = executor.ExecContext(ctx, `
				UPDATE mode_states
				SET mode = $2, version = $3, last_changed_at = $4, last_changed_by = $5
				WHERE channel = $1 AND version = $6
			`, next.Channel, next.Mode, next.Version, next.LastChangedAt, next.LastChangedBy, expectedVersion)
		}
		if err != nil {
			return fmt.Errorf("failed to write mode state: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if rows == 0 {
			return errSwapLost
		}

		if change == nil {
			return nil
		}
		_, err = executor.ExecContext(ctx, `
			INSERT INTO mode_changes (id, channel, previous_mode, new_mode, changed_by, changed_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, change.ID, change.Channel, change.PreviousMode, change.NewMode, change.ChangedBy, change.ChangedAt)
		if err != nil {
			return fmt.Errorf("failed to record mode change: %w", err)
		}
		return nil
	})

	if errors.Is(err, errSwapLost) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	r.logger.Debug("mode state swapped",
		zap.String("channel", string(next.Channel)),
		zap.String("mode", string(next.Mode)),
		zap.Int64("version", next.Version))
	return true, nil
}

// History returns the newest mode changes for a channel
func (r *ModeRepository) History(ctx context.Context, channel models.Channel, limit int) ([]*models.ModeChange, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, channel, previous_mode, new_mode, changed_by, changed_at
		FROM mode_changes
		WHERE channel = $1
		ORDER BY changed_at DESC
		LIMIT $2
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, channel, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query mode changes: %w", err)
	}
	defer rows.Close()

	changes := []*models.ModeChange{}
	for rows.Next() {
		c := &models.ModeChange{}
		if err := rows.Scan(&c.ID, &c.Channel, &c.PreviousMode, &c.NewMode, &c.ChangedBy, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mode change: %w", err)
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mode change rows: %w", err)
	}
	return changes, nil
}
