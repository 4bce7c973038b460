// Package invocation runs the lifecycle of submitted actions: validation,
// the approval gate, dispatch and recovery.
package invocation

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
	"github.com/upb/action-gate/services"
	"github.com/upb/action-gate/services/approval"
	"github.com/upb/action-gate/services/audit"
	"github.com/upb/action-gate/services/dispatch"
	"github.com/upb/action-gate/services/lifecycle"
	"github.com/upb/action-gate/services/registry"
	"github.com/upb/action-gate/services/validation"
	"go.uber.org/zap"
)

// Enqueuer hands a dispatch to a background worker
type Enqueuer interface {
	Enqueue(invocationID string) error
}

// SubmitLimiter caps how often one requester may submit
type SubmitLimiter interface {
	Check(ctx context.Context, requester string) error
}

// Service is the entry point for every invocation operation
type Service struct {
	catalog          *registry.Registry
	repo             repositories.InvocationRepository
	transitions      *lifecycle.Transitioner
	audit            *audit.Log
	gate             *approval.Gate
	dispatcher       *dispatch.Dispatcher
	queue            Enqueuer
	limiter          SubmitLimiter
	recordRejections bool
	logger           *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithQueue makes dispatches asynchronous through q
func WithQueue(q Enqueuer) Option {
	return func(s *Service) { s.queue = q }
}

// WithRejectionAudit controls whether validation rejections get an audit
// record (the default) or are only logged
func WithRejectionAudit(enabled bool) Option {
	return func(s *Service) { s.recordRejections = enabled }
}

// WithSubmitLimiter applies a per-requester quota to new submissions.
// Replays of an existing invocation id are not counted.
func WithSubmitLimiter(l SubmitLimiter) Option {
	return func(s *Service) { s.limiter = l }
}

// NewService creates a new invocation service
func NewService(
	catalog *registry.Registry,
	repo repositories.InvocationRepository,
	transitions *lifecycle.Transitioner,
	dispatcher *dispatch.Dispatcher,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		catalog:          catalog,
		repo:             repo,
		transitions:      transitions,
		audit:            transitions.Audit(),
		gate:             approval.NewGate(),
		dispatcher:       dispatcher,
		recordRejections: true,
		logger:           logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetQueue attaches the async dispatch queue after construction, for pools
// whose handler needs the service itself
func (s *Service) SetQueue(q Enqueuer) {
	s.queue = q
}

// SubmitRequest is the input of Submit
type SubmitRequest struct {
	InvocationID string
	ActionID     string
	Parameters   models.Parameters
	RequestedBy  string
	// SubmittedBy is the authenticated operator, if any. Quotas are charged
	// to it rather than to the self-declared RequestedBy.
	SubmittedBy  string
}

// quotaKey is who a submission is charged to
func (r SubmitRequest) quotaKey() string {
	if r.SubmittedBy != "" {
		return r.SubmittedBy
	}
	return r.RequestedBy
}

// DecisionRequest is the input of Decide
type DecisionRequest struct {
	InvocationID string
	Decision     approval.Decision
	ApproverID   string
	Reason       string
}

// Submit registers an invocation and drives it as far as it can go without a
// human. Resubmitting an existing invocation id returns that invocation in its
// current state with created=false. A validation failure returns the
// Rejected invocation together with the ValidationError.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*models.Invocation, bool, error) {
	if strings.TrimSpace(req.RequestedBy) == "" {
		return nil, false, services.NewDomainError(services.ErrorTypeValidation, "requestedBy is required", nil).
			WithDetail("missingFields", []string{"requestedBy"})
	}

	id := strings.TrimSpace(req.InvocationID)
	if id != "" {
		if existing, err := s.repo.GetByID(ctx, id); err == nil {
			return s.withReason(ctx, existing), false, nil
		} else if !errors.Is(err, repositories.ErrNotFound) {
			return nil, false, services.WrapInternal("failed to load invocation", err)
		}
	} else {
		id = uuid.NewString()
	}

	entry, ok := s.catalog.Lookup(req.ActionID)
	if !ok {
		return nil, false, services.NewDomainError(services.ErrorTypeNotFound, "action not found", nil).
			WithDetail("actionId", req.ActionID)
	}

	if s.limiter != nil {
		if err := s.limiter.Check(ctx, req.quotaKey()); err != nil {
			return nil, false, err
		}
	}

	inv := models.NewInvocation(id, entry.Definition, req.Parameters, req.RequestedBy, s.audit.Now())
	if err := s.repo.Create(ctx, inv); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			existing, getErr := s.repo.GetByID(ctx, id)
			if getErr != nil {
				return nil, false, services.WrapInternal("failed to load invocation", getErr)
			}
			return s.withReason(ctx, existing), false, nil
		}
		return nil, false, services.WrapInternal("failed to create invocation", err)
	}

	s.logger.Info("invocation submitted",
		zap.String("invocation_id", id),
		zap.String("action_id", entry.Definition.ID),
		zap.String("requested_by", req.RequestedBy))

	out, err := s.advance(ctx, inv, entry)
	return out, true, err
}

// advance takes a Submitted invocation through validation and admission
func (s *Service) advance(ctx context.Context, inv *models.Invocation, entry registry.Entry) (*models.Invocation, error) {
	if res := validation.Check(entry.Definition, inv.Parameters); !res.OK() {
		return s.reject(ctx, inv, res)
	}

	switch s.gate.Admit(entry.Definition) {
	case models.InvocationStatusPendingApproval:
		next := inv.Clone()
		next.Status = models.InvocationStatusPendingApproval
		next.Reason = "awaiting approval"
		next.UpdatedAt = s.audit.Now()
		rec := models.NewAuditRecord(next, models.AuditEventPendingApproval, next.UpdatedAt).
			WithActor(inv.RequestedBy).
			WithDetail(next.Reason)
		if err := s.transitions.Apply(ctx, inv, next, rec); err != nil {
			return nil, err
		}
		return next, nil
	default:
		return s.dispatch(ctx, inv, entry)
	}
}

func (s *Service) reject(ctx context.Context, inv *models.Invocation, res validation.Result) (*models.Invocation, error) {
	next := inv.Clone()
	next.Status = models.InvocationStatusRejected
	next.Reason = "validation failed: " + res.Summary()
	next.UpdatedAt = s.audit.Now()

	var rec *models.AuditRecord
	if s.recordRejections {
		rec = models.NewAuditRecord(next, models.AuditEventRejected, next.UpdatedAt).
			WithActor("validator").
			WithDetail(next.Reason)
	} else {
		s.logger.Warn("invocation rejected by validation",
			zap.String("invocation_id", inv.ID),
			zap.String("action_id", inv.ActionID),
			zap.String("reason", next.Reason))
	}
	if err := s.transitions.Apply(ctx, inv, next, rec); err != nil {
		return nil, err
	}

	verr := validation.NewError(res).
		WithDetail("invocationId", next.ID).
		WithDetail("status", string(next.Status))
	return next, verr
}

// dispatch runs the dispatcher inline or queues it
func (s *Service) dispatch(ctx context.Context, inv *models.Invocation, entry registry.Entry) (*models.Invocation, error) {
	if s.queue != nil {
		if err := s.queue.Enqueue(inv.ID); err != nil {
			// left in its current state; Recover picks it up
			s.logger.Warn("failed to queue dispatch",
				zap.String("invocation_id", inv.ID),
				zap.Error(err))
		}
		return inv, nil
	}
	return s.dispatcher.Dispatch(ctx, inv, entry.Executor)
}

// Decide applies an approve or reject decision to a pending invocation.
// Exactly one decision can win; later ones get an ApprovalConflict.
func (s *Service) Decide(ctx context.Context, req DecisionRequest) (*models.Invocation, error) {
	inv, err := s.load(ctx, req.InvocationID)
	if err != nil {
		return nil, err
	}

	next, event, err := s.gate.Decide(inv, req.Decision, req.ApproverID, req.Reason, s.audit.Now())
	if err != nil {
		return nil, err
	}
	rec := models.NewAuditRecord(next, event, next.UpdatedAt).
		WithActor(req.ApproverID).
		WithDetail(next.Reason)
	if err := s.transitions.Apply(ctx, inv, next, rec); err != nil {
		return nil, err
	}

	s.logger.Info("invocation decided",
		zap.String("invocation_id", next.ID),
		zap.String("decision", string(req.Decision)),
		zap.String("approver_id", req.ApproverID))

	if next.Status != models.InvocationStatusApproved {
		return next, nil
	}
	entry, err := s.entryFor(next)
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, next, entry)
}

// Dispatch dispatches a stored invocation by id. Only Approved invocations and
// Submitted ones that need no approval are accepted.
func (s *Service) Dispatch(ctx context.Context, invocationID string) (*models.Invocation, error) {
	inv, err := s.load(ctx, invocationID)
	if err != nil {
		return nil, err
	}
	entry, err := s.entryFor(inv)
	if err != nil {
		return nil, err
	}
	return s.dispatcher.Dispatch(ctx, inv, entry.Executor)
}

// Get returns an invocation with the reason of its latest audit record
func (s *Service) Get(ctx context.Context, invocationID string) (*models.Invocation, error) {
	inv, err := s.load(ctx, invocationID)
	if err != nil {
		return nil, err
	}
	return s.withReason(ctx, inv), nil
}

func (s *Service) withReason(ctx context.Context, inv *models.Invocation) *models.Invocation {
	rec, err := s.audit.Latest(ctx, inv.ID)
	if err != nil {
		s.logger.Warn("failed to load latest audit record", zap.String("invocation_id", inv.ID), zap.Error(err))
		return inv
	}
	if rec != nil && rec.Detail != "" {
		inv.Reason = rec.Detail
	}
	return inv
}

func (s *Service) load(ctx context.Context, invocationID string) (*models.Invocation, error) {
	inv, err := s.repo.GetByID(ctx, invocationID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, services.NewDomainError(services.ErrorTypeNotFound, "invocation not found", nil).
			WithDetail("invocationId", invocationID)
	}
	if err != nil {
		return nil, services.WrapInternal("failed to load invocation", err)
	}
	return inv, nil
}

func (s *Service) entryFor(inv *models.Invocation) (registry.Entry, error) {
	entry, ok := s.catalog.Lookup(inv.ActionID)
	if !ok {
		return registry.Entry{}, services.NewDomainError(services.ErrorTypeInternal, "action no longer in catalog", nil).
			WithDetail("actionId", inv.ActionID)
	}
	return entry, nil
}
