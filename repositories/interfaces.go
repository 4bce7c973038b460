package repositories

import (
	"context"
	"errors"

	"github.com/upb/action-gate/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert collides with an existing key
	ErrDuplicate = errors.New("duplicate record")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// InvocationRepository persists invocations and their status
type InvocationRepository interface {
	// Create inserts a new invocation. Returns ErrDuplicate when the id exists.
	Create(ctx context.Context, inv *models.Invocation) error

	// GetByID retrieves an invocation. Returns ErrNotFound when missing.
	GetByID(ctx context.Context, id string) (*models.Invocation, error)

	// CompareAndSwap stores inv only if the persisted status still equals
	// expected. Reports false, with no error, when another writer got there first.
	CompareAndSwap(ctx context.Context, inv *models.Invocation, expected models.InvocationStatus) (bool, error)

	// ListByStatus returns up to limit invocations in status, oldest first
	ListByStatus(ctx context.Context, status models.InvocationStatus, limit int) ([]*models.Invocation, error)
}

// AuditRepository is the append-only store behind the audit log
type AuditRepository interface {
	// Append stores a record and assigns its sequence number
	Append(ctx context.Context, record *models.AuditRecord) error

	// Query returns one page of matching records ordered by timestamp
	// ascending, plus the total number of matches
	Query(ctx context.Context, filter models.AuditFilter) ([]*models.AuditRecord, int, error)

	// LatestForInvocation returns the most recent record for an invocation.
	// Returns ErrNotFound when the invocation has no records.
	LatestForInvocation(ctx context.Context, invocationID string) (*models.AuditRecord, error)
}

// ModeRepository stores the current mode per channel together with the
// history of changes. A state update and its change record are written
// atomically.
type ModeRepository interface {
	// Load returns the stored state for channel, or ErrNotFound
	Load(ctx context.Context, channel models.Channel) (*models.ModeState, error)

	// CompareAndSwap replaces the state for next.Channel if its stored
	// version equals expectedVersion (0 means "no state stored yet") and
	// records change in the same step
	CompareAndSwap(ctx context.Context, next models.ModeState, expectedVersion int64, change *models.ModeChange) (bool, error)

	// History returns up to limit changes for channel, newest first
	History(ctx context.Context, channel models.Channel, limit int) ([]*models.ModeChange, error)
}

// Repositories groups every repository the engine needs
type Repositories struct {
	Invocations InvocationRepository
	Audit       AuditRepository
	Modes       ModeRepository
}
