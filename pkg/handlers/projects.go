package handlers

import (
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dataloom-io/loom-engine/pkg/models"
	"github.com/dataloom-io/loom-engine/pkg/services"
)

// multipartMemoryLimit is the in-memory buffer for multipart parsing; larger
// files spill to temp files.
const multipartMemoryLimit = 32 << 20

// UploadSummary is one upload's slice of the project-create response.
type UploadSummary struct {
	UploadID uuid.UUID `json:"uploadId"`
	FileName string    `json:"fileName"`
	Records  int64     `json:"records"`
	Status   string    `json:"status"`
}

// CreateProjectResponse is the payload of POST /api/projects.
type CreateProjectResponse struct {
	ProjectID uuid.UUID       `json:"projectId"`
	Uploads   []UploadSummary `json:"uploads"`
}

// ProjectsHandler handles the project lifecycle and the project-scoped
// pipeline operations.
type ProjectsHandler struct {
	projects     services.ProjectService
	orchestrator services.ProjectOrchestrator
	logger       *zap.Logger
}

// NewProjectsHandler creates a new projects handler.
func NewProjectsHandler(projects services.ProjectService, orchestrator services.ProjectOrchestrator, logger *zap.Logger) *ProjectsHandler {
	return &ProjectsHandler{
		projects:     projects,
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// RegisterRoutes registers the projects handler's routes on the given mux.
func (h *ProjectsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/projects", h.Create)
	mux.HandleFunc("GET /api/projects", h.List)
	mux.HandleFunc("GET /api/projects/{id}", h.Get)
	mux.HandleFunc("DELETE /api/projects/{id}", h.Delete)
	mux.HandleFunc("GET /api/projects/{id}/columns", h.Columns)
	mux.HandleFunc("POST /api/projects/{id}/clean", h.Clean)
	mux.HandleFunc("POST /api/projects/{id}/detect-relationships", h.DetectRelationships)
	mux.HandleFunc("POST /api/projects/{id}/create-unified-view", h.CreateUnifiedView)
	mux.HandleFunc("POST /api/projects/{id}/auto-complete", h.AutoComplete)
}

// Create handles POST /api/projects: multipart name, description, files[].
func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		h.writeBadRequest(w, "invalid multipart request")
		return
	}
	defer r.MultipartForm.RemoveAll()

	name := r.FormValue("name")
	description := r.FormValue("description")

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["files[]"]
	}

	var files []services.UploadFile
	var open []multipart.File
	defer func() {
		for _, f := range open {
			f.Close()
		}
	}()
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			h.writeBadRequest(w, "unreadable file in request")
			return
		}
		open = append(open, f)
		files = append(files, services.UploadFile{
			Name:     header.Filename,
			MimeType: header.Header.Get("Content-Type"),
			Content:  f,
		})
	}

	project, uploads, err := h.projects.CreateWithFiles(r.Context(), name, description, files)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	response := CreateProjectResponse{ProjectID: project.ID}
	for _, upload := range uploads {
		response.Uploads = append(response.Uploads, UploadSummary{
			UploadID: upload.ID,
			FileName: upload.OriginalFilename,
			Records:  upload.TotalRecords,
			Status:   string(upload.Status),
		})
	}

	if err := WriteSuccess(w, http.StatusCreated, response); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// List handles GET /api/projects.
func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.List(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	if projects == nil {
		projects = []models.Project{}
	}
	if err := WriteSuccess(w, http.StatusOK, projects); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/projects/{id}.
func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	project, err := h.projects.Get(r.Context(), projectID)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	if err := WriteSuccess(w, http.StatusOK, project); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/projects/{id}.
func (h *ProjectsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.projects.Delete(r.Context(), projectID); err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	if err := WriteSuccess(w, http.StatusOK, map[string]string{"deleted": projectID.String()}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// Columns handles GET /api/projects/{id}/columns.
func (h *ProjectsHandler) Columns(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	columns, err := h.projects.Columns(r.Context(), projectID)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	if columns == nil {
		columns = []string{}
	}
	if err := WriteSuccess(w, http.StatusOK, map[string]any{"columns": columns}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// Clean handles POST /api/projects/{id}/clean: one auto-configured cleaning
// job per upload.
func (h *ProjectsHandler) Clean(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	jobs, err := h.orchestrator.CleanProject(r.Context(), projectID)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	summaries := make([]map[string]any, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, map[string]any{
			"jobId":    job.ID,
			"uploadId": job.UploadID,
			"status":   job.Status,
		})
	}
	if err := WriteSuccess(w, http.StatusAccepted, map[string]any{"jobs": summaries}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// DetectRelationships handles POST /api/projects/{id}/detect-relationships.
func (h *ProjectsHandler) DetectRelationships(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	relationships, err := h.orchestrator.DetectRelationships(r.Context(), projectID)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	if relationships == nil {
		relationships = []models.Relationship{}
	}
	if err := WriteSuccess(w, http.StatusOK, map[string]any{
		"relationships": relationships,
		"count":         len(relationships),
	}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// CreateUnifiedView handles POST /api/projects/{id}/create-unified-view: a
// composite convenience call that also extracts KPIs, selects the top set
// and assembles the dashboard.
func (h *ProjectsHandler) CreateUnifiedView(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	views, err := h.orchestrator.CreateUnifiedViews(ctx, projectID)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	payload := map[string]any{"views": views}

	kpiJob, err := h.orchestrator.ExtractKpis(ctx, projectID)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	payload["kpiJob"] = kpiJob

	if len(kpiJob.TopKpis) > 0 {
		ids := make([]string, 0, len(kpiJob.TopKpis))
		for _, kpi := range kpiJob.TopKpis {
			ids = append(ids, kpi.KpiID)
		}
		selected, err := h.orchestrator.SelectKpis(ctx, kpiJob.ID, ids)
		if err != nil {
			WriteServiceError(w, h.logger, err)
			return
		}
		payload["selectedKpis"] = selected

		dashboard, err := h.orchestrator.GenerateDashboard(ctx, projectID)
		if err != nil {
			WriteServiceError(w, h.logger, err)
			return
		}
		payload["dashboard"] = dashboard
	}

	if err := WriteSuccess(w, http.StatusOK, payload); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// AutoComplete handles POST /api/projects/{id}/auto-complete.
func (h *ProjectsHandler) AutoComplete(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	result, err := h.orchestrator.AutoComplete(r.Context(), projectID)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	if err := WriteSuccess(w, http.StatusOK, result); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

func (h *ProjectsHandler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeBadRequest(w, "invalid project ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *ProjectsHandler) writeBadRequest(w http.ResponseWriter, message string) {
	if err := WriteError(w, http.StatusBadRequest, message); err != nil {
		h.logger.Error("failed to write error response", zap.Error(err))
	}
}
