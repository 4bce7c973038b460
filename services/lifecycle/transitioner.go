// Package lifecycle persists invocation status changes together with their
// audit records.
package lifecycle

import (
	"context"

	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
	"github.com/upb/action-gate/services"
	"github.com/upb/action-gate/services/audit"
	"go.uber.org/zap"
)

// Transitioner applies one forward step of the invocation state machine.
//
// The status compare-and-swap runs first and acts as the claim: of several
// workers racing on the same invocation only the winner writes an audit
// record. If the audit append then fails the status change is undone, by
// rolling back the shared transaction when txm is set, otherwise by a
// compensating swap. Either way the caller sees an AuditWriteError and the
// invocation is never reported in a state whose record is missing.
type Transitioner struct {
	repo   repositories.InvocationRepository
	log    *audit.Log
	txm    repositories.TransactionManager
	logger *zap.Logger
}

// New creates a Transitioner. txm must be nil unless invocations and audit
// records live in the same database.
func New(repo repositories.InvocationRepository, log *audit.Log, txm repositories.TransactionManager, logger *zap.Logger) *Transitioner {
	return &Transitioner{repo: repo, log: log, txm: txm, logger: logger}
}

// Audit exposes the audit log used for records
func (t *Transitioner) Audit() *audit.Log {
	return t.log
}

// Apply moves the persisted invocation from current.Status to next.Status and
// appends rec. A nil rec changes status without recording.
func (t *Transitioner) Apply(ctx context.Context, current, next *models.Invocation, rec *models.AuditRecord) error {
	if !current.Status.CanTransitionTo(next.Status) {
		return conflict(current, next.Status)
	}

	var auditErr error
	err := services.WithTransaction(ctx, t.txm, func(ctx context.Context) error {
		swapped, err := t.repo.CompareAndSwap(ctx, next, current.Status)
		if err != nil {
			return services.WrapInternal("failed to update invocation", err)
		}
		if !swapped {
			return conflict(current, next.Status)
		}
		if rec == nil {
			return nil
		}
		if err := t.log.Append(ctx, rec); err != nil {
			auditErr = err
			return err
		}
		return nil
	})

	if auditErr != nil && t.txm == nil {
		t.revert(ctx, current, next)
	}
	if err == nil {
		t.logger.Debug("invocation transitioned",
			zap.String("invocation_id", next.ID),
			zap.String("from", string(current.Status)),
			zap.String("to", string(next.Status)))
	}
	return err
}

// CheckRecorded returns an ApprovalConflict when inv is Approved but its
// newest audit record is not the approval. Without a shared transaction an
// approval swap is visible before its record, and stays visible until the
// compensating swap if the append fails.
func (t *Transitioner) CheckRecorded(ctx context.Context, inv *models.Invocation) error {
	if inv.Status != models.InvocationStatusApproved {
		return nil
	}
	rec, err := t.log.Latest(ctx, inv.ID)
	if err != nil {
		return err
	}
	if rec != nil && rec.Event == models.AuditEventApproved {
		return nil
	}
	return services.NewDomainError(services.ErrorTypeApprovalConflict, "invocation approval is not recorded", nil).
		WithDetail("invocationId", inv.ID).
		WithDetail("status", string(inv.Status))
}

func (t *Transitioner) revert(ctx context.Context, current, next *models.Invocation) {
	restored, err := t.repo.CompareAndSwap(context.WithoutCancel(ctx), current, next.Status)
	if err != nil || !restored {
		t.logger.Error("failed to revert unaudited transition",
			zap.String("invocation_id", next.ID),
			zap.String("stuck_status", string(next.Status)),
			zap.Bool("swapped", restored),
			zap.Error(err))
		return
	}
	t.logger.Warn("reverted transition after audit failure",
		zap.String("invocation_id", next.ID),
		zap.String("status", string(current.Status)))
}

func conflict(inv *models.Invocation, target models.InvocationStatus) *services.DomainError {
	msg := "invocation is not in a state that allows this transition"
	switch target {
	case models.InvocationStatusApproved:
		msg = "invocation is not pending approval"
	case models.InvocationStatusRejected:
		if inv.Status != models.InvocationStatusSubmitted {
			msg = "invocation is not pending approval"
		}
	case models.InvocationStatusDispatched:
		msg = "invocation is not in a dispatchable state"
	}
	return services.NewDomainError(services.ErrorTypeApprovalConflict, msg, nil).
		WithDetail("invocationId", inv.ID).
		WithDetail("status", string(inv.Status)).
		WithDetail("target", string(target))
}
