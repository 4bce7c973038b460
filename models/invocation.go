package models

import (
	"time"
)

// InvocationStatus is the lifecycle state of an invocation
type InvocationStatus string

const (
	InvocationStatusSubmitted       InvocationStatus = "submitted"
	InvocationStatusRejected        InvocationStatus = "rejected"
	InvocationStatusPendingApproval InvocationStatus = "pending_approval"
	InvocationStatusApproved        InvocationStatus = "approved"
	InvocationStatusDispatched      InvocationStatus = "dispatched"
	InvocationStatusCompleted       InvocationStatus = "completed"
	InvocationStatusFailed          InvocationStatus = "failed"
)

// forward transitions of the lifecycle state machine
var invocationTransitions = map[InvocationStatus][]InvocationStatus{
	InvocationStatusSubmitted:       {InvocationStatusRejected, InvocationStatusPendingApproval, InvocationStatusDispatched},
	InvocationStatusPendingApproval: {InvocationStatusApproved, InvocationStatusRejected},
	InvocationStatusApproved:        {InvocationStatusDispatched},
	InvocationStatusDispatched:      {InvocationStatusCompleted, InvocationStatusFailed},
}

// IsTerminal reports whether no further transition is possible
func (s InvocationStatus) IsTerminal() bool {
	return s == InvocationStatusRejected || s == InvocationStatusCompleted || s == InvocationStatusFailed
}

// CanTransitionTo reports whether next is a legal forward step from s
func (s InvocationStatus) CanTransitionTo(next InvocationStatus) bool {
	for _, candidate := range invocationTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Invocation is one concrete request to perform an action
type Invocation struct {
	ID                  string           `json:"invocation_id" db:"id"`
	ActionID            string           `json:"action_id" db:"action_id"`
	Parameters          Parameters       `json:"parameters" db:"parameters"`
	RequestedBy         string           `json:"requested_by" db:"requested_by"`
	SubmittedAt         time.Time        `json:"submitted_at" db:"submitted_at"`
	Status              InvocationStatus `json:"status" db:"status"`
	Channel             Channel          `json:"channel" db:"channel"`
	RequiresApproval    bool             `json:"requires_approval" db:"requires_approval"`
	OriginalDestination string           `json:"original_destination,omitempty" db:"original_destination"`
	ResolvedDestination string           `json:"resolved_destination,omitempty" db:"resolved_destination"`
	ModeAtDispatch      Mode             `json:"mode_at_dispatch,omitempty" db:"mode_at_dispatch"`
	Rehearsal           bool             `json:"rehearsal" db:"rehearsal"`
	DecidedBy           string           `json:"decided_by,omitempty" db:"decided_by"`
	DecidedAt           *time.Time       `json:"decided_at,omitempty" db:"decided_at"`
	Attempts            int              `json:"attempts" db:"attempts"`
	Reason              string           `json:"reason,omitempty" db:"reason"`
	UpdatedAt           time.Time        `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Invocation model
func (Invocation) TableName() string {
	return "invocations"
}

// NewInvocation creates a Submitted invocation for the given action
func NewInvocation(id string, def *ActionDefinition, params Parameters, requestedBy string, now time.Time) *Invocation {
	channel := def.Channel
	if channel == "" {
		channel = ChannelNone
	}
	return &Invocation{
		ID:               id,
		ActionID:         def.ID,
		Parameters:       params.Clone(),
		RequestedBy:      requestedBy,
		SubmittedAt:      now,
		Status:           InvocationStatusSubmitted,
		Channel:          channel,
		RequiresApproval: def.RequiresApproval,
		UpdatedAt:        now,
	}
}

// Clone returns a copy that shares no mutable state with the receiver
func (i *Invocation) Clone() *Invocation {
	c := *i
	c.Parameters = i.Parameters.Clone()
	if i.DecidedAt != nil {
		t := *i.DecidedAt
		c.DecidedAt = &t
	}
	return &c
}
