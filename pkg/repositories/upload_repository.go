package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dataloom-io/loom-engine/pkg/apperrors"
	"github.com/dataloom-io/loom-engine/pkg/models"
)

// UploadRepository defines the interface for upload data access.
type UploadRepository interface {
	Create(ctx context.Context, upload *models.Upload) error
	Get(ctx context.Context, id uuid.UUID) (*models.Upload, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Upload, error)
	Update(ctx context.Context, upload *models.Upload) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// uploadRepository implements UploadRepository using PostgreSQL.
type uploadRepository struct {
	db *pgxpool.Pool
}

// NewUploadRepository creates a new upload repository.
func NewUploadRepository(db *pgxpool.Pool) UploadRepository {
	return &uploadRepository{db: db}
}

const uploadColumns = `id, project_id, original_filename, stored_filename, mime_type, size_bytes,
	storage_path, status, records_processed, total_records, table_name, error_message, metadata,
	created_at, updated_at`

// Create inserts a new upload record.
func (r *uploadRepository) Create(ctx context.Context, upload *models.Upload) error {
	if upload.ID == uuid.Nil {
		upload.ID = uuid.New()
	}

	now := time.Now()
	upload.CreatedAt = now
	upload.UpdatedAt = now
	if upload.Status == "" {
		upload.Status = models.UploadStatusQueued
	}

	metadata, err := json.Marshal(upload.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal upload metadata: %w", err)
	}

	query := `
		INSERT INTO loom_uploads (id, project_id, original_filename, stored_filename, mime_type,
			size_bytes, storage_path, status, records_processed, total_records, table_name,
			error_message, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = r.db.Exec(ctx, query,
		upload.ID,
		upload.ProjectID,
		upload.OriginalFilename,
		upload.StoredFilename,
		upload.MimeType,
		upload.SizeBytes,
		upload.StoragePath,
		upload.Status,
		upload.RecordsProcessed,
		upload.TotalRecords,
		upload.TableName,
		upload.ErrorMessage,
		metadata,
		upload.CreatedAt,
		upload.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create upload: %w", err)
	}

	return nil
}

// Get retrieves an upload by ID.
func (r *uploadRepository) Get(ctx context.Context, id uuid.UUID) (*models.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM loom_uploads WHERE id = $1`

	upload, err := scanUpload(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}

	return upload, nil
}

// ListByProject returns all uploads of a project in creation order.
func (r *uploadRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM loom_uploads WHERE project_id = $1 ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	var uploads []models.Upload
	for rows.Next() {
		upload, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		uploads = append(uploads, *upload)
	}

	return uploads, rows.Err()
}

// Update persists upload status, counters and metadata.
func (r *uploadRepository) Update(ctx context.Context, upload *models.Upload) error {
	upload.UpdatedAt = time.Now()

	metadata, err := json.Marshal(upload.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal upload metadata: %w", err)
	}

	query := `
		UPDATE loom_uploads
		SET status = $2, records_processed = $3, total_records = $4, table_name = $5,
		    error_message = $6, metadata = $7, updated_at = $8
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query,
		upload.ID,
		upload.Status,
		upload.RecordsProcessed,
		upload.TotalRecords,
		upload.TableName,
		upload.ErrorMessage,
		metadata,
		upload.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update upload: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// Delete removes an upload and, via CASCADE, its parsed rows.
func (r *uploadRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM loom_uploads WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func scanUpload(row pgx.Row) (*models.Upload, error) {
	var upload models.Upload
	var metadata []byte

	err := row.Scan(
		&upload.ID,
		&upload.ProjectID,
		&upload.OriginalFilename,
		&upload.StoredFilename,
		&upload.MimeType,
		&upload.SizeBytes,
		&upload.StoragePath,
		&upload.Status,
		&upload.RecordsProcessed,
		&upload.TotalRecords,
		&upload.TableName,
		&upload.ErrorMessage,
		&metadata,
		&upload.CreatedAt,
		&upload.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &upload.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal upload metadata: %w", err)
		}
	}

	return &upload, nil
}

// Ensure uploadRepository implements UploadRepository at compile time.
var _ UploadRepository = (*uploadRepository)(nil)
