package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/services"
	"github.com/upb/action-gate/services/registry"
	"github.com/upb/action-gate/utils"
	"go.uber.org/zap"
)

// Catalog is the read side of the action registry
type Catalog interface {
	All() []*models.ActionDefinition
	ListByCategory(category string) []*models.ActionDefinition
	ListByRiskTier(tier models.RiskTier) []*models.ActionDefinition
	Lookup(actionID string) (registry.Entry, bool)
}

// CatalogHandler handles action catalog HTTP requests
type CatalogHandler struct {
	catalog Catalog
	logger  *zap.Logger
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(catalog Catalog, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// HandleList handles GET /api/v1/actions
// Query params: category, risk_tier
func (h *CatalogHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	tier := models.RiskTier(r.URL.Query().Get("risk_tier"))
	if tier != "" && !tier.IsValid() {
		HandleServiceError(w, services.NewDomainError(services.ErrorTypeValidation, "unknown risk tier", nil).
			WithDetail("risk_tier", string(tier)), h.logger)
		return
	}

	var defs []*models.ActionDefinition
	switch {
	case category != "":
		defs = h.catalog.ListByCategory(category)
	case tier != "":
		defs = h.catalog.ListByRiskTier(tier)
	default:
		defs = h.catalog.All()
	}

	out := make([]*models.ActionDefinition, 0, len(defs))
	for _, d := range defs {
		if tier != "" && d.RiskTier != tier {
			continue
		}
		out = append(out, d)
	}
	_ = utils.WriteOK(w, out)
}

// HandleGet handles GET /api/v1/actions/{id}
func (h *CatalogHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, ok := h.catalog.Lookup(id)
	if !ok {
		HandleServiceError(w, services.NewDomainError(services.ErrorTypeNotFound, "action not found", nil).
			WithDetail("actionId", id), h.logger)
		return
	}
	_ = utils.WriteOK(w, entry.Definition)
}
