package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
	"go.uber.org/zap"
)

const auditColumns = `id, sequence, invocation_id, action_id, event, occurred_at, channel,
		       original_destination, resolved_destination, mode, rehearsal, actor, attempt, detail`

// AuditRepository implements the repositories.AuditRepository interface.
// The table is append-only: there is no update or delete path.
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Append inserts a record and reads back its sequence number
func (r *AuditRepository) Append(ctx context.Context, record *models.AuditRecord) error {
	query := `
		INSERT INTO audit_records (
			id, invocation_id, action_id, event, occurred_at, channel,
			original_destination, resolved_destination, mode, rehearsal, actor, attempt, detail
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
		RETURNING sequence
	`

	executor := GetExecutor(ctx, r.db)
	err := executor.QueryRowContext(ctx, query,
		record.ID,
		record.InvocationID,
		record.ActionID,
		record.Event,
		record.Timestamp,
		record.Channel,
		record.OriginalDestination,
		record.ResolvedDestination,
		record.Mode,
		record.Rehearsal,
		record.Actor,
		record.Attempt,
		record.Detail,
	).Scan(&record.Sequence)
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}

	r.logger.Debug("audit record appended",
		zap.String("id", record.ID.String()),
		zap.String("invocation_id", record.InvocationID),
		zap.String("event", string(record.Event)))
	return nil
}

// Query returns one page of matching records ordered by occurrence
func (r *AuditRepository) Query(ctx context.Context, filter models.AuditFilter) ([]*models.AuditRecord, int, error) {
	filter.Normalize()
	where, args := buildAuditWhere(filter)

	executor := GetExecutor(ctx, r.db)

	var total int
	countQuery := `SELECT COUNT(*) FROM audit_records` + where
	if err := executor.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit records: %w", err)
	}

	args = append(args, filter.PageSize, filter.Offset())
	query := fmt.Sprintf(`SELECT %s FROM audit_records%s ORDER BY occurred_at ASC, sequence ASC LIMIT $%d OFFSET $%d`,
		auditColumns, where, len(args)-1, len(args))

	records, err := r.queryRecords(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// LatestForInvocation returns the newest record of an invocation
func (r *AuditRepository) LatestForInvocation(ctx context.Context, invocationID string) (*models.AuditRecord, error) {
	query := `SELECT ` + auditColumns + `
		FROM audit_records
		WHERE invocation_id = $1
		ORDER BY occurred_at DESC, sequence DESC
		LIMIT 1`

	records, err := r.queryRecords(ctx, query, invocationID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, repositories.ErrNotFound
	}
	return records[0], nil
}

func buildAuditWhere(filter models.AuditFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.Channel != "" {
		add("channel = $%d", filter.Channel)
	}
	if filter.Event != "" {
		add("event = $%d", filter.Event)
	}
	if filter.InvocationID != "" {
		add("invocation_id = $%d", filter.InvocationID)
	}
	if filter.From != nil {
		add("occurred_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("occurred_at <= $%d", *filter.To)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// queryRecords is a helper method to query multiple audit records
func (r *AuditRepository) queryRecords(ctx context.Context, query string, args ...interface{}) ([]*models.AuditRecord, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	records := []*models.AuditRecord{}
	for rows.Next() {
		rec := &models.AuditRecord{}
		err := rows.Scan(
			&rec.ID,
			&rec.Sequence,
			&rec.InvocationID,
			&rec.ActionID,
			&rec.Event,
			&rec.Timestamp,
			&rec.Channel,
			&rec.OriginalDestination,
			&rec.ResolvedDestination,
			&rec.Mode,
			&rec.Rehearsal,
			&rec.Actor,
			&rec.Attempt,
			&rec.Detail,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit record rows: %w", err)
	}

	return records, nil
}
