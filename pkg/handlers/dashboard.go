package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dataloom-io/loom-engine/pkg/services"
)

// GenerateDashboardRequest assembles a dashboard from the project's selected
// KPIs. datasetId is the project identifier.
type GenerateDashboardRequest struct {
	DatasetID uuid.UUID       `json:"datasetId"`
	Options   json.RawMessage `json:"options,omitempty"`
}

// DashboardHandler exposes dashboard assembly and retrieval.
type DashboardHandler struct {
	orchestrator services.ProjectOrchestrator
	logger       *zap.Logger
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(orchestrator services.ProjectOrchestrator, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{orchestrator: orchestrator, logger: logger}
}

// RegisterRoutes registers the dashboard handler's routes on the given mux.
func (h *DashboardHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/dashboard/generate", h.Generate)
	mux.HandleFunc("GET /api/dashboard/{datasetId}", h.Get)
}

// Generate handles POST /api/dashboard/generate.
func (h *DashboardHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateDashboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DatasetID == uuid.Nil {
		h.writeBadRequest(w, "datasetId is required")
		return
	}

	dashboard, err := h.orchestrator.GenerateDashboard(r.Context(), req.DatasetID)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	if err := WriteSuccess(w, http.StatusOK, dashboard); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/dashboard/{datasetId}.
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("datasetId"))
	if err != nil {
		h.writeBadRequest(w, "invalid dataset ID")
		return
	}

	dashboard, err := h.orchestrator.Dashboard(r.Context(), id)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	if err := WriteSuccess(w, http.StatusOK, dashboard); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

func (h *DashboardHandler) writeBadRequest(w http.ResponseWriter, message string) {
	if err := WriteError(w, http.StatusBadRequest, message); err != nil {
		h.logger.Error("failed to write error response", zap.Error(err))
	}
}
