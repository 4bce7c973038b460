package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/upb/action-gate/middleware"
	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/services"
	"github.com/upb/action-gate/services/approval"
	"github.com/upb/action-gate/services/invocation"
	"github.com/upb/action-gate/utils"
	"go.uber.org/zap"
)

// SubmitInvocationRequest represents a request to run an action
type SubmitInvocationRequest struct {
	InvocationID string            `json:"invocation_id,omitempty" validate:"max=128"`
	ActionID     string            `json:"action_id" validate:"required,max=128"`
	Parameters   models.Parameters `json:"parameters"`
	RequestedBy  string            `json:"requested_by" validate:"required,max=256"`
}

// DecisionRequest represents an approve or reject decision
type DecisionRequest struct {
	Decision   string `json:"decision" validate:"required"`
	ApproverID string `json:"approver_id,omitempty" validate:"max=256"`
	Reason     string `json:"reason,omitempty" validate:"max=1024"`
}

// InvocationResponse represents an invocation in API responses
type InvocationResponse struct {
	InvocationID        string `json:"invocation_id"`
	ActionID            string `json:"action_id"`
	Status              string `json:"status"`
	Reason              string `json:"reason,omitempty"`
	Channel             string `json:"channel"`
	RequiresApproval    bool   `json:"requires_approval"`
	RequestedBy         string `json:"requested_by"`
	OriginalDestination string `json:"original_destination,omitempty"`
	ResolvedDestination string `json:"resolved_destination,omitempty"`
	ModeAtDispatch      string `json:"mode_at_dispatch,omitempty"`
	Rehearsal           bool   `json:"rehearsal"`
	Attempts            int    `json:"attempts"`
	DecidedBy           string `json:"decided_by,omitempty"`
	DecidedAt           string `json:"decided_at,omitempty"`
	SubmittedAt         string `json:"submitted_at"`
	UpdatedAt           string `json:"updated_at"`
}

// InvocationService defines the invocation operations exposed over HTTP
type InvocationService interface {
	// Submit registers an invocation; created is false on replay of a known id
	Submit(ctx context.Context, req invocation.SubmitRequest) (*models.Invocation, bool, error)

	// Get returns one invocation
	Get(ctx context.Context, invocationID string) (*models.Invocation, error)

	// Decide approves or rejects a pending invocation
	Decide(ctx context.Context, req invocation.DecisionRequest) (*models.Invocation, error)
}

// InvocationHandler handles invocation HTTP requests
type InvocationHandler struct {
	service InvocationService
	logger  *zap.Logger
}

// NewInvocationHandler creates a new InvocationHandler
func NewInvocationHandler(service InvocationService, logger *zap.Logger) *InvocationHandler {
	return &InvocationHandler{
		service: service,
		logger:  logger,
	}
}

// HandleSubmit handles POST /api/v1/invocations
func (h *InvocationHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SubmitInvocationRequest
	operator := middleware.OperatorFromContext(ctx)
	if operator != "" {
		// the token subject submits unless the body names an agent
		req.RequestedBy = operator
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleRequestError(w, err, h.logger)
		return
	}

	inv, created, err := h.service.Submit(ctx, invocation.SubmitRequest{
		InvocationID: req.InvocationID,
		ActionID:     req.ActionID,
		Parameters:   req.Parameters,
		RequestedBy:  req.RequestedBy,
		SubmittedBy:  operator,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("invocation accepted",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.String("invocation_id", inv.ID),
		zap.String("status", string(inv.Status)),
		zap.Bool("created", created))

	if created {
		_ = utils.WriteCreated(w, toInvocationResponse(inv))
		return
	}
	_ = utils.WriteOK(w, toInvocationResponse(inv))
}

// HandleGet handles GET /api/v1/invocations/{id}
func (h *InvocationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, toInvocationResponse(inv))
}

// HandleDecision handles POST /api/v1/invocations/{id}/decision
func (h *InvocationHandler) HandleDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req DecisionRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleRequestError(w, err, h.logger)
		return
	}

	decision, err := approval.ParseDecision(req.Decision)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	approver := req.ApproverID
	if operator := middleware.OperatorFromContext(ctx); operator != "" {
		if approver != "" && approver != operator {
			HandleServiceError(w, services.ErrApproverMismatch, h.logger)
			return
		}
		approver = operator
	}

	inv, err := h.service.Decide(ctx, invocation.DecisionRequest{
		InvocationID: chi.URLParam(r, "id"),
		Decision:     decision,
		ApproverID:   approver,
		Reason:       req.Reason,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, toInvocationResponse(inv))
}

func toInvocationResponse(inv *models.Invocation) InvocationResponse {
	resp := InvocationResponse{
		InvocationID:        inv.ID,
		ActionID:            inv.ActionID,
		Status:              string(inv.Status),
		Reason:              inv.Reason,
		Channel:             string(inv.Channel),
		RequiresApproval:    inv.RequiresApproval,
		RequestedBy:         inv.RequestedBy,
		OriginalDestination: inv.OriginalDestination,
		ResolvedDestination: inv.ResolvedDestination,
		ModeAtDispatch:      string(inv.ModeAtDispatch),
		Rehearsal:           inv.Rehearsal,
		Attempts:            inv.Attempts,
		DecidedBy:           inv.DecidedBy,
		SubmittedAt:         inv.SubmittedAt.Format(time.RFC3339Nano),
		UpdatedAt:           inv.UpdatedAt.Format(time.RFC3339Nano),
	}
	if inv.DecidedAt != nil {
		resp.DecidedAt = inv.DecidedAt.Format(time.RFC3339Nano)
	}
	return resp
}
