// Package apperrors defines the error taxonomy shared across the pipeline.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Tag identifies a pipeline error category. Tags are stable and surface to
// API callers; messages are human-readable detail.
type Tag string

const (
	TagUnsupportedFormat    Tag = "UnsupportedFormat"
	TagMalformedInput       Tag = "MalformedInput"
	TagConfigError          Tag = "ConfigError"
	TagStageError           Tag = "StageError"
	TagPreconditionFailed   Tag = "PreconditionFailed"
	TagUnknownDomain        Tag = "UnknownDomain"
	TagNoRelationshipsFound Tag = "NoRelationshipsFound"
)

// PipelineError is a tagged error produced by pipeline components. Operation
// is set only for StageError and names the cleaning stage that failed.
type PipelineError struct {
	Tag       Tag
	Operation string
	Message   string
	Err       error
}

func (e *PipelineError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("%s(%s): %s", e.Tag, e.Operation, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Tag, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError creates a tagged error with a formatted message.
func NewPipelineError(tag Tag, format string, args ...any) *PipelineError {
	return &PipelineError{Tag: tag, Message: fmt.Sprintf(format, args...)}
}

// NewStageError creates a StageError for the given cleaning operation,
// wrapping the underlying cause.
func NewStageError(operation string, err error) *PipelineError {
	return &PipelineError{
		Tag:       TagStageError,
		Operation: operation,
		Message:   err.Error(),
		Err:       err,
	}
}

// UnsupportedFormat creates an UnsupportedFormat error.
func UnsupportedFormat(format string, args ...any) *PipelineError {
	return NewPipelineError(TagUnsupportedFormat, format, args...)
}

// MalformedInput creates a MalformedInput error wrapping the decode failure.
func MalformedInput(err error, format string, args ...any) *PipelineError {
	e := NewPipelineError(TagMalformedInput, format, args...)
	e.Err = err
	return e
}

// ConfigError creates a ConfigError.
func ConfigError(format string, args ...any) *PipelineError {
	return NewPipelineError(TagConfigError, format, args...)
}

// PreconditionFailed creates a PreconditionFailed error.
func PreconditionFailed(format string, args ...any) *PipelineError {
	return NewPipelineError(TagPreconditionFailed, format, args...)
}

// HasTag reports whether err is a PipelineError carrying the given tag.
func HasTag(err error, tag Tag) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Tag == tag
	}
	return false
}

// TagOf returns the tag of err if it is a PipelineError, or an empty Tag.
func TagOf(err error) Tag {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Tag
	}
	return ""
}
