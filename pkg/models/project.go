package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectStatusActive     ProjectStatus = "active"
	ProjectStatusProcessing ProjectStatus = "processing"
	ProjectStatusCompleted  ProjectStatus = "completed"
	ProjectStatusFailed     ProjectStatus = "failed"
)

// Project is the root aggregate: one or more related uploads cleaned
// independently, then linked, classified, scored and summarised as one whole.
// Deleting a project cascades to every dependent entity.
type Project struct {
	ID             uuid.UUID     `json:"id"`
	Name           string        `json:"name"`
	Description    string        `json:"description,omitempty"`
	Status         ProjectStatus `json:"status"`
	FileCount      int           `json:"file_count"`
	TotalRecords   int64         `json:"total_records"`
	DetectedDomain *string       `json:"detected_domain,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// UploadStatus is the lifecycle state of an upload.
type UploadStatus string

const (
	UploadStatusQueued     UploadStatus = "queued"
	UploadStatusProcessing UploadStatus = "processing"
	UploadStatusCompleted  UploadStatus = "completed"
	UploadStatusFailed     UploadStatus = "failed"
)

// Upload is one source file within a project.
type Upload struct {
	ID               uuid.UUID    `json:"id"`
	ProjectID        uuid.UUID    `json:"project_id"`
	OriginalFilename string       `json:"original_filename"`
	StoredFilename   string       `json:"stored_filename"`
	MimeType         string       `json:"mime_type"`
	SizeBytes        int64        `json:"size_bytes"`
	StoragePath      string       `json:"storage_path"`
	Status           UploadStatus `json:"status"`
	RecordsProcessed int64        `json:"records_processed"`
	TotalRecords     int64        `json:"total_records"`
	TableName        string       `json:"table_name,omitempty"`
	ErrorMessage     *string      `json:"error_message,omitempty"`
	Metadata         JSONBMap     `json:"metadata,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Columns returns the inferred column list recorded in upload metadata.
func (u *Upload) Columns() []string {
	raw, ok := u.Metadata["columns"]
	if !ok {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	cols := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			cols = append(cols, s)
		}
	}
	return cols
}

// DataRow is one parsed record of an upload, persisted in the record store.
type DataRow struct {
	ID        uuid.UUID `json:"id"`
	UploadID  uuid.UUID `json:"upload_id"`
	RowNumber int       `json:"row_number"`
	Payload   Row       `json:"payload"`
}

// JSONBMap is a map type that handles PostgreSQL JSONB serialization.
type JSONBMap map[string]any

// Value implements driver.Valuer for database serialization.
func (j JSONBMap) Value() (driver.Value, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner for database deserialization.
func (j *JSONBMap) Scan(value any) error {
	if value == nil {
		*j = make(map[string]any)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into JSONBMap", value)
	}

	return json.Unmarshal(bytes, j)
}
