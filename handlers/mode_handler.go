package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/upb/action-gate/middleware"
	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/services"
	"github.com/upb/action-gate/services/mode"
	"github.com/upb/action-gate/utils"
	"go.uber.org/zap"
)

// SwitchModeRequest represents a request to change a channel's mode
type SwitchModeRequest struct {
	Mode         string `json:"mode" validate:"required"`
	ChangedBy    string `json:"changed_by,omitempty" validate:"max=256"`
	ExpectedMode string `json:"expected_mode,omitempty"`
}

// ModeService defines the mode operations exposed over HTTP
type ModeService interface {
	List(ctx context.Context) ([]models.ModeState, error)
	GetMode(ctx context.Context, channel models.Channel) (models.ModeState, error)
	Switch(ctx context.Context, req mode.SwitchRequest) (*models.ModeChange, error)
	History(ctx context.Context, channel models.Channel, limit int) ([]*models.ModeChange, error)
}

// ModeHandler handles dispatch mode HTTP requests
type ModeHandler struct {
	service      ModeService
	historyLimit int
	logger       *zap.Logger
}

// NewModeHandler creates a new ModeHandler
func NewModeHandler(service ModeService, logger *zap.Logger) *ModeHandler {
	return &ModeHandler{
		service: service,
		logger:  logger,
	}
}

// WithHistoryLimit sets the page size of history responses when the request
// names none
func (h *ModeHandler) WithHistoryLimit(n int) *ModeHandler {
	h.historyLimit = n
	return h
}

// HandleList handles GET /api/v1/modes
func (h *ModeHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	states, err := h.service.List(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, states)
}

// HandleGet handles GET /api/v1/modes/{channel}
func (h *ModeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	channel, err := channelParam(r)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	state, err := h.service.GetMode(r.Context(), channel)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, state)
}

// HandleSwitch handles PUT /api/v1/modes/{channel}
func (h *ModeHandler) HandleSwitch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	channel, err := channelParam(r)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	var req SwitchModeRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleRequestError(w, err, h.logger)
		return
	}

	target, err := models.ParseMode(req.Mode)
	if err != nil {
		HandleServiceError(w, services.NewDomainError(services.ErrorTypeValidation, err.Error(), nil).
			WithDetail("mode", req.Mode), h.logger)
		return
	}

	sw := mode.SwitchRequest{Channel: channel, Mode: target, ChangedBy: req.ChangedBy}
	if operator := middleware.OperatorFromContext(ctx); operator != "" {
		sw.ChangedBy = operator
	}
	if req.ExpectedMode != "" {
		expected, err := models.ParseMode(req.ExpectedMode)
		if err != nil {
			HandleServiceError(w, services.NewDomainError(services.ErrorTypeValidation, err.Error(), nil).
				WithDetail("expectedMode", req.ExpectedMode), h.logger)
			return
		}
		sw.ExpectedMode = &expected
	}

	change, err := h.service.Switch(ctx, sw)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("mode switched",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.String("channel", string(change.Channel)),
		zap.String("previous_mode", string(change.PreviousMode)),
		zap.String("new_mode", string(change.NewMode)),
		zap.String("changed_by", change.ChangedBy))

	_ = utils.WriteOK(w, change)
}

// HandleHistory handles GET /api/v1/modes/{channel}/history
func (h *ModeHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	channel, err := channelParam(r)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	limit, err := intQuery(r, "limit", h.historyLimit)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	changes, err := h.service.History(r.Context(), channel, limit)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if changes == nil {
		changes = []*models.ModeChange{}
	}
	_ = utils.WriteOK(w, changes)
}

func channelParam(r *http.Request) (models.Channel, error) {
	raw := chi.URLParam(r, "channel")
	channel, ok := models.ParseChannel(raw)
	if !ok || raw == "" {
		return "", services.NewDomainError(services.ErrorTypeValidation, "unknown channel", nil).
			WithDetail("channel", raw)
	}
	return channel, nil
}

func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, services.NewDomainError(services.ErrorTypeValidation, name+" must be a non-negative integer", nil).
			WithDetail(name, raw)
	}
	return n, nil
}
