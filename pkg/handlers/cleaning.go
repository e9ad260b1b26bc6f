package handlers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dataloom-io/loom-engine/pkg/models"
	"github.com/dataloom-io/loom-engine/pkg/services"
)

const (
	defaultDataPageSize = 100
	maxDataPageSize     = 500
)

// AutoConfigRequest asks for a derived cleaning configuration.
type AutoConfigRequest struct {
	UploadID uuid.UUID `json:"uploadId"`
}

// StartCleaningRequest starts a cleaning job. A nil config means
// auto-configure.
type StartCleaningRequest struct {
	UploadID uuid.UUID              `json:"uploadId"`
	Config   *models.CleaningConfig `json:"config,omitempty"`
}

// CleaningHandler exposes the cleaning job lifecycle.
type CleaningHandler struct {
	cleaning services.CleaningService
	logger   *zap.Logger
}

// NewCleaningHandler creates a new cleaning handler.
func NewCleaningHandler(cleaning services.CleaningService, logger *zap.Logger) *CleaningHandler {
	return &CleaningHandler{cleaning: cleaning, logger: logger}
}

// RegisterRoutes registers the cleaning handler's routes on the given mux.
func (h *CleaningHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/clean/auto-config", h.AutoConfig)
	mux.HandleFunc("POST /api/v1/clean", h.Start)
	mux.HandleFunc("GET /api/v1/clean/{jobId}/status", h.Status)
	mux.HandleFunc("GET /api/v1/clean/{jobId}/report", h.Report)
	mux.HandleFunc("GET /api/v1/clean/{jobId}/data", h.Data)
	mux.HandleFunc("GET /api/v1/clean/{jobId}/download", h.Download)
}

// AutoConfig handles POST /api/v1/clean/auto-config.
func (h *CleaningHandler) AutoConfig(w http.ResponseWriter, r *http.Request) {
	var req AutoConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UploadID == uuid.Nil {
		h.writeBadRequest(w, "uploadId is required")
		return
	}

	config, err := h.cleaning.AutoConfig(r.Context(), req.UploadID)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	if err := WriteSuccess(w, http.StatusOK, map[string]any{"config": config}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// Start handles POST /api/v1/clean.
func (h *CleaningHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartCleaningRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UploadID == uuid.Nil {
		h.writeBadRequest(w, "uploadId is required")
		return
	}

	job, err := h.cleaning.StartJob(r.Context(), req.UploadID, req.Config)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	if err := WriteSuccess(w, http.StatusAccepted, map[string]any{
		"jobId":  job.ID,
		"status": job.Status,
	}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// Status handles GET /api/v1/clean/{jobId}/status.
func (h *CleaningHandler) Status(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}

	job, err := h.cleaning.Status(r.Context(), jobID)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	payload := map[string]any{
		"jobId":    job.ID,
		"status":   job.Status,
		"progress": job.Progress,
	}
	if job.Stats != nil {
		payload["stats"] = job.Stats
	}
	if job.ErrorMessage != nil {
		payload["error"] = *job.ErrorMessage
	}
	if err := WriteSuccess(w, http.StatusOK, payload); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// Report handles GET /api/v1/clean/{jobId}/report.
func (h *CleaningHandler) Report(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}

	report, err := h.cleaning.Report(r.Context(), jobID)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	if err := WriteSuccess(w, http.StatusOK, report); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// Data handles GET /api/v1/clean/{jobId}/data with page/limit paging.
func (h *CleaningHandler) Data(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", defaultDataPageSize)
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultDataPageSize
	}
	if limit > maxDataPageSize {
		limit = maxDataPageSize
	}
	offset := (page - 1) * limit

	data, total, err := h.cleaning.Data(r.Context(), jobID, limit, offset)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	if err := WriteSuccess(w, http.StatusOK, map[string]any{
		"tableName": data.TableName,
		"columns":   data.Columns,
		"rows":      data.Rows,
		"page":      page,
		"limit":     limit,
		"total":     total,
	}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// Download handles GET /api/v1/clean/{jobId}/download?format=csv|json and
// streams the full cleaned table.
func (h *CleaningHandler) Download(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "json" {
		h.writeBadRequest(w, "format must be csv or json")
		return
	}

	data, _, err := h.cleaning.Data(r.Context(), jobID, 0, 0)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	filename := fmt.Sprintf("cleaned-%s.%s", jobID, format)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	if format == "json" {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(data); err != nil {
			h.logger.Error("failed to stream cleaned data", zap.Error(err))
		}
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	cw := csv.NewWriter(w)
	if err := cw.Write(data.Columns); err != nil {
		h.logger.Error("failed to stream cleaned data", zap.Error(err))
		return
	}
	record := make([]string, len(data.Columns))
	for _, row := range data.Rows {
		for i, col := range data.Columns {
			record[i] = row.Get(col).Raw()
		}
		if err := cw.Write(record); err != nil {
			h.logger.Error("failed to stream cleaned data", zap.Error(err))
			return
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.Error("failed to stream cleaned data", zap.Error(err))
	}
}

func (h *CleaningHandler) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("jobId"))
	if err != nil {
		h.writeBadRequest(w, "invalid job ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *CleaningHandler) writeBadRequest(w http.ResponseWriter, message string) {
	if err := WriteError(w, http.StatusBadRequest, message); err != nil {
		h.logger.Error("failed to write error response", zap.Error(err))
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
