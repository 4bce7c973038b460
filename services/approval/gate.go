// Package approval implements the rules of the approval state machine.
// Persistence of a transition is the caller's job; every method here is pure.
package approval

import (
	"strings"
	"time"

	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/services"
)

// Decision is a human verdict on a pending invocation
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ParseDecision normalizes a decision string
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(strings.ToLower(strings.TrimSpace(s))); d {
	case DecisionApprove, DecisionReject:
		return d, nil
	}
	return "", services.ErrInvalidDecision
}

// Gate decides where a validated invocation goes next
type Gate struct{}

// NewGate creates a Gate
func NewGate() *Gate {
	return &Gate{}
}

// Admit returns the status a freshly validated invocation moves to
func (g *Gate) Admit(def *models.ActionDefinition) models.InvocationStatus {
	if def.RequiresApproval {
		return models.InvocationStatusPendingApproval
	}
	return models.InvocationStatusDispatched
}

// Decide applies decision to inv and returns the updated copy together with
// the audit event to record. inv itself is left untouched. An invocation that
// is not pending approval yields ErrApprovalConflict.
func (g *Gate) Decide(inv *models.Invocation, decision Decision, approverID, reason string, at time.Time) (*models.Invocation, models.AuditEvent, error) {
	if strings.TrimSpace(approverID) == "" {
		return nil, "", services.NewDomainError(services.ErrorTypeValidation, "approver id is required", nil).
			WithDetail("missingFields", []string{"approverId"})
	}
	if inv.Status != models.InvocationStatusPendingApproval {
		return nil, "", services.NewDomainError(services.ErrorTypeApprovalConflict, "invocation is not pending approval", nil).
			WithDetail("invocationId", inv.ID).
			WithDetail("status", string(inv.Status))
	}

	next := inv.Clone()
	next.DecidedBy = approverID
	decidedAt := at
	next.DecidedAt = &decidedAt
	next.UpdatedAt = at

	switch decision {
	case DecisionApprove:
		next.Status = models.InvocationStatusApproved
		next.Reason = "approved by " + approverID
		return next, models.AuditEventApproved, nil
	case DecisionReject:
		next.Status = models.InvocationStatusRejected
		next.Reason = "rejected by " + approverID
		if reason != "" {
			next.Reason += ": " + reason
		}
		return next, models.AuditEventRejected, nil
	}
	return nil, "", services.ErrInvalidDecision
}

// CheckDispatchable returns nil when inv may be handed to the dispatcher.
// Only approved invocations, or submitted ones that need no approval, qualify.
func (g *Gate) CheckDispatchable(inv *models.Invocation) error {
	switch {
	case inv.Status == models.InvocationStatusApproved:
		return nil
	case inv.Status == models.InvocationStatusSubmitted && !inv.RequiresApproval:
		return nil
	}
	return services.NewDomainError(services.ErrorTypeApprovalConflict, "invocation is not in a dispatchable state", nil).
		WithDetail("invocationId", inv.ID).
		WithDetail("status", string(inv.Status))
}
