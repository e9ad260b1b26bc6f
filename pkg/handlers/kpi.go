package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dataloom-io/loom-engine/pkg/services"
)

// ExtractKpisRequest runs KPI extraction against a classified project.
type ExtractKpisRequest struct {
	CleaningJobID uuid.UUID `json:"cleaningJobId"`
	DomainJobID   uuid.UUID `json:"domainJobId"`
}

// SelectKpisRequest confirms a subset of the feasible KPI set.
type SelectKpisRequest struct {
	KpiJobID       uuid.UUID `json:"kpiJobId"`
	SelectedKpiIDs []string  `json:"selectedKpiIds"`
}

// KpiHandler exposes KPI extraction, the compiled-in library and selection.
type KpiHandler struct {
	orchestrator services.ProjectOrchestrator
	logger       *zap.Logger
}

// NewKpiHandler creates a new KPI handler.
func NewKpiHandler(orchestrator services.ProjectOrchestrator, logger *zap.Logger) *KpiHandler {
	return &KpiHandler{orchestrator: orchestrator, logger: logger}
}

// RegisterRoutes registers the KPI handler's routes on the given mux.
func (h *KpiHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/kpi/extract", h.Extract)
	mux.HandleFunc("GET /api/v1/kpi/library", h.Library)
	mux.HandleFunc("POST /api/v1/kpi/select", h.Select)
	mux.HandleFunc("GET /api/v1/kpi/{kpiJobId}/status", h.Status)
}

// Extract handles POST /api/v1/kpi/extract. The domain job anchors the
// project; the cleaning job, when given, must belong to the same project.
func (h *KpiHandler) Extract(w http.ResponseWriter, r *http.Request) {
	var req ExtractKpisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DomainJobID == uuid.Nil {
		h.writeBadRequest(w, "domainJobId is required")
		return
	}

	domainJob, err := h.orchestrator.DomainStatus(r.Context(), req.DomainJobID)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	job, err := h.orchestrator.ExtractKpis(r.Context(), domainJob.ProjectID)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	if err := WriteSuccess(w, http.StatusOK, job); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// Library handles GET /api/v1/kpi/library?domain=….
func (h *KpiHandler) Library(w http.ResponseWriter, r *http.Request) {
	domain := r.URL.Query().Get("domain")
	if domain == "" {
		h.writeBadRequest(w, "domain query parameter is required")
		return
	}

	kpis, ok := services.KpiLibraryFor(domain)
	if !ok {
		if err := WriteError(w, http.StatusNotFound, "not found"); err != nil {
			h.logger.Error("failed to write error response", zap.Error(err))
		}
		return
	}
	if err := WriteSuccess(w, http.StatusOK, map[string]any{
		"domain": domain,
		"kpis":   kpis,
	}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// Select handles POST /api/v1/kpi/select.
func (h *KpiHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req SelectKpisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.KpiJobID == uuid.Nil {
		h.writeBadRequest(w, "kpiJobId is required")
		return
	}
	if len(req.SelectedKpiIDs) == 0 {
		h.writeBadRequest(w, "selectedKpiIds must not be empty")
		return
	}

	selected, err := h.orchestrator.SelectKpis(r.Context(), req.KpiJobID, req.SelectedKpiIDs)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	if err := WriteSuccess(w, http.StatusOK, map[string]any{
		"selectionId":   req.KpiJobID,
		"selectedCount": len(selected),
		"selected":      selected,
	}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// Status handles GET /api/v1/kpi/{kpiJobId}/status.
func (h *KpiHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("kpiJobId"))
	if err != nil {
		h.writeBadRequest(w, "invalid KPI job ID")
		return
	}

	job, err := h.orchestrator.KpiStatus(r.Context(), id)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	if err := WriteSuccess(w, http.StatusOK, job); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

func (h *KpiHandler) writeBadRequest(w http.ResponseWriter, message string) {
	if err := WriteError(w, http.StatusBadRequest, message); err != nil {
		h.logger.Error("failed to write error response", zap.Error(err))
	}
}
