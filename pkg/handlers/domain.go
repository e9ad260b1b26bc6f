package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dataloom-io/loom-engine/pkg/models"
	"github.com/dataloom-io/loom-engine/pkg/services"
)

// DetectDomainRequest classifies the columns of a single cleaned file.
type DetectDomainRequest struct {
	CleaningJobID uuid.UUID `json:"cleaningJobId"`
}

// DetectProjectDomainRequest classifies the column union of a project. An
// empty cleaningJobIds means the latest job of every upload.
type DetectProjectDomainRequest struct {
	ProjectID      uuid.UUID   `json:"projectId"`
	CleaningJobIDs []uuid.UUID `json:"cleaningJobIds,omitempty"`
}

// ConfirmDomainRequest pins a project's domain to a library entry.
type ConfirmDomainRequest struct {
	DomainJobID    uuid.UUID `json:"domainJobId"`
	SelectedDomain string    `json:"selectedDomain"`
}

// DomainJobResponse is the classification outcome payload.
type DomainJobResponse struct {
	DomainJobID      uuid.UUID              `json:"domainJobId"`
	Domain           string                 `json:"domain"`
	Confidence       int                    `json:"confidence"`
	Decision         models.DomainDecision  `json:"decision"`
	Status           models.DomainJobStatus `json:"status"`
	PrimaryMatches   []string               `json:"primaryMatches"`
	KeywordMatches   []string               `json:"keywordMatches"`
	Top3Alternatives []models.DomainScore   `json:"top3Alternatives,omitempty"`
	AllDomains       []models.DomainScore   `json:"allDomains"`
}

// DomainHandler exposes domain classification and confirmation.
type DomainHandler struct {
	orchestrator services.ProjectOrchestrator
	cleaning     services.CleaningService
	logger       *zap.Logger
}

// NewDomainHandler creates a new domain handler.
func NewDomainHandler(orchestrator services.ProjectOrchestrator, cleaning services.CleaningService, logger *zap.Logger) *DomainHandler {
	return &DomainHandler{orchestrator: orchestrator, cleaning: cleaning, logger: logger}
}

// RegisterRoutes registers the domain handler's routes on the given mux.
func (h *DomainHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/domain/detect", h.Detect)
	mux.HandleFunc("POST /api/v1/domain/detect-project", h.DetectProject)
	mux.HandleFunc("POST /api/v1/domain/confirm", h.Confirm)
	mux.HandleFunc("GET /api/v1/domain/list", h.List)
	mux.HandleFunc("GET /api/v1/domain/{id}/status", h.Status)
}

// Detect handles POST /api/v1/domain/detect for a single cleaning job. The
// job is resolved to its project and classified alone.
func (h *DomainHandler) Detect(w http.ResponseWriter, r *http.Request) {
	var req DetectDomainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CleaningJobID == uuid.Nil {
		h.writeBadRequest(w, "cleaningJobId is required")
		return
	}

	job, err := h.cleaning.Status(r.Context(), req.CleaningJobID)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	domainJob, err := h.orchestrator.DetectDomain(r.Context(), job.ProjectID, []uuid.UUID{job.ID})
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	h.writeDomainJob(w, http.StatusOK, domainJob)
}

// DetectProject handles POST /api/v1/domain/detect-project.
func (h *DomainHandler) DetectProject(w http.ResponseWriter, r *http.Request) {
	var req DetectProjectDomainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProjectID == uuid.Nil {
		h.writeBadRequest(w, "projectId is required")
		return
	}

	domainJob, err := h.orchestrator.DetectDomain(r.Context(), req.ProjectID, req.CleaningJobIDs)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	h.writeDomainJob(w, http.StatusOK, domainJob)
}

// Confirm handles POST /api/v1/domain/confirm.
func (h *DomainHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmDomainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DomainJobID == uuid.Nil || req.SelectedDomain == "" {
		h.writeBadRequest(w, "domainJobId and selectedDomain are required")
		return
	}

	domainJob, err := h.orchestrator.ConfirmDomain(r.Context(), req.DomainJobID, req.SelectedDomain)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	h.writeDomainJob(w, http.StatusOK, domainJob)
}

// Status handles GET /api/v1/domain/{id}/status.
func (h *DomainHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeBadRequest(w, "invalid domain job ID")
		return
	}

	domainJob, err := h.orchestrator.DomainStatus(r.Context(), id)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	h.writeDomainJob(w, http.StatusOK, domainJob)
}

// List handles GET /api/v1/domain/list: the supported domain signatures.
func (h *DomainHandler) List(w http.ResponseWriter, r *http.Request) {
	if err := WriteSuccess(w, http.StatusOK, map[string]any{
		"domains": services.DomainLibrary(),
	}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

func (h *DomainHandler) writeDomainJob(w http.ResponseWriter, status int, job *models.DomainDetectionJob) {
	response := DomainJobResponse{
		DomainJobID:      job.ID,
		Domain:           job.Domain,
		Confidence:       job.Confidence,
		Decision:         job.Decision,
		Status:           job.Status,
		PrimaryMatches:   job.PrimaryMatches,
		KeywordMatches:   job.KeywordMatches,
		Top3Alternatives: job.Top3,
		AllDomains:       job.AllScores,
	}
	if err := WriteSuccess(w, status, response); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

func (h *DomainHandler) writeBadRequest(w http.ResponseWriter, message string) {
	if err := WriteError(w, http.StatusBadRequest, message); err != nil {
		h.logger.Error("failed to write error response", zap.Error(err))
	}
}
