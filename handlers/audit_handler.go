package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/services"
	"github.com/upb/action-gate/utils"
	"go.uber.org/zap"
)

// AuditQuerier reads the audit log
type AuditQuerier interface {
	Query(ctx context.Context, filter models.AuditFilter) (*models.AuditPage, error)
}

// AuditHandler handles audit log HTTP requests
type AuditHandler struct {
	audit  AuditQuerier
	logger *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(audit AuditQuerier, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		audit:  audit,
		logger: logger,
	}
}

// HandleQuery handles GET /api/v1/audit
// Query params: channel, status (or event), invocation_id, from, to, page, page_size
func (h *AuditHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditFilter(r)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	page, err := h.audit.Query(r.Context(), filter)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, page)
}

func parseAuditFilter(r *http.Request) (models.AuditFilter, error) {
	q := r.URL.Query()
	var filter models.AuditFilter

	if raw := q.Get("channel"); raw != "" {
		channel, ok := models.ParseChannel(raw)
		if !ok {
			return filter, services.NewDomainError(services.ErrorTypeValidation, "unknown channel", nil).
				WithDetail("channel", raw)
		}
		filter.Channel = channel
	}

	event := q.Get("status")
	if event == "" {
		event = q.Get("event")
	}
	filter.Event = models.AuditEvent(strings.ToLower(strings.TrimSpace(event)))
	filter.InvocationID = q.Get("invocation_id")

	for name, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, services.NewDomainError(services.ErrorTypeValidation, name+" must be an RFC3339 timestamp", nil).
				WithDetail(name, raw)
		}
		*dst = &t
	}

	var err error
	if filter.Page, err = intQuery(r, "page", 1); err != nil {
		return filter, err
	}
	if filter.PageSize, err = intQuery(r, "page_size", 0); err != nil {
		return filter, err
	}
	return filter, nil
}
