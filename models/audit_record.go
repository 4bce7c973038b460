package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// AuditEvent names the lifecycle event captured by an AuditRecord
type AuditEvent string

const (
	AuditEventRejected        AuditEvent = "rejected"
	AuditEventPendingApproval AuditEvent = "pending_approval"
	AuditEventApproved        AuditEvent = "approved"
	AuditEventDispatched      AuditEvent = "dispatched"
	AuditEventCompleted       AuditEvent = "completed"
	AuditEventFailed          AuditEvent = "failed"
)

// IsValid reports whether the event is known
func (e AuditEvent) IsValid() bool {
	switch e {
	case AuditEventRejected, AuditEventPendingApproval, AuditEventApproved,
		AuditEventDispatched, AuditEventCompleted, AuditEventFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the event closes the invocation's lifecycle
func (e AuditEvent) IsTerminal() bool {
	return e == AuditEventRejected || e == AuditEventCompleted || e == AuditEventFailed
}

// AuditRecord is an immutable entry for one lifecycle event of an invocation
type AuditRecord struct {
	ID                  uuid.UUID  `json:"id" db:"id"`
	Sequence            int64      `json:"sequence" db:"sequence"`
	InvocationID        string     `json:"invocation_id" db:"invocation_id"`
	ActionID            string     `json:"action_id" db:"action_id"`
	Event               AuditEvent `json:"event" db:"event"`
	Timestamp           time.Time  `json:"timestamp" db:"timestamp"`
	Channel             Channel    `json:"channel" db:"channel"`
	OriginalDestination string     `json:"original_destination,omitempty" db:"original_destination"`
	ResolvedDestination string     `json:"resolved_destination,omitempty" db:"resolved_destination"`
	Mode                Mode       `json:"mode,omitempty" db:"mode"`
	Rehearsal           bool       `json:"rehearsal" db:"rehearsal"`
	Actor               string     `json:"actor,omitempty" db:"actor"`
	Attempt             int        `json:"attempt,omitempty" db:"attempt"`
	Detail              string     `json:"detail,omitempty" db:"detail"`
}

// TableName returns the table name for the AuditRecord model
func (AuditRecord) TableName() string {
	return "audit_records"
}

// NewAuditRecord snapshots the invocation's routing fields for event
func NewAuditRecord(inv *Invocation, event AuditEvent, at time.Time) *AuditRecord {
	return &AuditRecord{
		ID:                  uuid.New(),
		InvocationID:        inv.ID,
		ActionID:            inv.ActionID,
		Event:               event,
		Timestamp:           at,
		Channel:             inv.Channel,
		OriginalDestination: inv.OriginalDestination,
		ResolvedDestination: inv.ResolvedDestination,
		Mode:                inv.ModeAtDispatch,
		Rehearsal:           inv.Rehearsal,
		Attempt:             inv.Attempts,
	}
}

// WithActor sets who caused the event
func (r *AuditRecord) WithActor(actor string) *AuditRecord {
	r.Actor = actor
	return r
}

// WithDetail sets the human readable reason
func (r *AuditRecord) WithDetail(detail string) *AuditRecord {
	r.Detail = detail
	return r
}

const (
	DefaultAuditPageSize = 50
	MaxAuditPageSize     = 500
	// MaxAuditPage keeps Offset from overflowing at the largest page size
	MaxAuditPage         = math.MaxInt32 / MaxAuditPageSize
)

// AuditFilter selects audit records. Zero values mean "any".
type AuditFilter struct {
	Channel      Channel
	Event        AuditEvent
	InvocationID string
	From         *time.Time
	To           *time.Time
	Page         int
	PageSize     int
}

// Normalize clamps paging to sane bounds
func (f *AuditFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Page > MaxAuditPage {
		f.Page = MaxAuditPage
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultAuditPageSize
	}
	if f.PageSize > MaxAuditPageSize {
		f.PageSize = MaxAuditPageSize
	}
}

// Offset returns the number of records preceding the requested page
func (f *AuditFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// Matches reports whether r satisfies every set criterion
func (f *AuditFilter) Matches(r *AuditRecord) bool {
	if f.Channel != "" && r.Channel != f.Channel {
		return false
	}
	if f.Event != "" && r.Event != f.Event {
		return false
	}
	if f.InvocationID != "" && r.InvocationID != f.InvocationID {
		return false
	}
	if f.From != nil && r.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && r.Timestamp.After(*f.To) {
		return false
	}
	return true
}

// AuditPage is one page of records ordered by timestamp ascending
type AuditPage struct {
	Records  []*AuditRecord `json:"records"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	Total    int            `json:"total"`
}
