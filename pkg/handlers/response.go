// Package handlers exposes the pipeline over HTTP. Every endpoint answers
// with the envelope { success, data?, error? }.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/dataloom-io/loom-engine/pkg/apperrors"
)

// Envelope is the uniform response wrapper.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// WriteSuccess writes a success envelope.
func WriteSuccess(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(Envelope{Success: true, Data: data})
}

// WriteError writes an error envelope with the given status.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(Envelope{Success: false, Error: message})
}

// WriteServiceError maps a service error onto the HTTP taxonomy: 404 for
// missing entities, 409 for conflicts, 400 for tagged validation failures,
// 500 otherwise. Internal failures never leak detail to the caller.
func WriteServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var writeErr error
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		writeErr = WriteError(w, http.StatusNotFound, "not found")
	case errors.Is(err, apperrors.ErrConflict):
		writeErr = WriteError(w, http.StatusConflict, "conflict")
	default:
		var pe *apperrors.PipelineError
		if errors.As(err, &pe) && pe.Tag != apperrors.TagStageError {
			writeErr = WriteError(w, http.StatusBadRequest, pe.Error())
			break
		}
		logger.Error("request failed", zap.Error(err))
		writeErr = WriteError(w, http.StatusInternalServerError, "internal error")
	}
	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}
