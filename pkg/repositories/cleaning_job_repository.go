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

// CleaningJobRepository defines the interface for cleaning job data access.
type CleaningJobRepository interface {
	Create(ctx context.Context, job *models.CleaningJob) error
	Get(ctx context.Context, id uuid.UUID) (*models.CleaningJob, error)
	GetLatestByUpload(ctx context.Context, uploadID uuid.UUID) (*models.CleaningJob, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.CleaningJob, error)
	Update(ctx context.Context, job *models.CleaningJob) error
	UpdateProgress(ctx context.Context, id uuid.UUID, progress models.CleaningProgress) error
}

// cleaningJobRepository implements CleaningJobRepository using PostgreSQL.
type cleaningJobRepository struct {
	db *pgxpool.Pool
}

// NewCleaningJobRepository creates a new cleaning job repository.
func NewCleaningJobRepository(db *pgxpool.Pool) CleaningJobRepository {
	return &cleaningJobRepository{db: db}
}

const cleaningJobColumns = `id, project_id, upload_id, config, stats, cleaned_table, status,
	progress, error_message, created_at, updated_at`

// Create inserts a new cleaning job.
func (r *cleaningJobRepository) Create(ctx context.Context, job *models.CleaningJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}

	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = models.CleaningJobRunning
	}

	config, stats, progress, err := marshalCleaningJobDocs(job)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO loom_cleaning_jobs (id, project_id, upload_id, config, stats, cleaned_table,
			status, progress, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.db.Exec(ctx, query,
		job.ID,
		job.ProjectID,
		job.UploadID,
		config,
		stats,
		job.CleanedTable,
		job.Status,
		progress,
		job.ErrorMessage,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create cleaning job: %w", err)
	}

	return nil
}

// Get retrieves a cleaning job by ID.
func (r *cleaningJobRepository) Get(ctx context.Context, id uuid.UUID) (*models.CleaningJob, error) {
	query := `SELECT ` + cleaningJobColumns + ` FROM loom_cleaning_jobs WHERE id = $1`

	job, err := scanCleaningJob(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cleaning job: %w", err)
	}

	return job, nil
}

// GetLatestByUpload returns the most recent cleaning job for an upload.
func (r *cleaningJobRepository) GetLatestByUpload(ctx context.Context, uploadID uuid.UUID) (*models.CleaningJob, error) {
	query := `SELECT ` + cleaningJobColumns + `
		FROM loom_cleaning_jobs
		WHERE upload_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	job, err := scanCleaningJob(r.db.QueryRow(ctx, query, uploadID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest cleaning job: %w", err)
	}

	return job, nil
}

// ListByProject returns all cleaning jobs of a project in creation order.
func (r *cleaningJobRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.CleaningJob, error) {
	query := `SELECT ` + cleaningJobColumns + `
		FROM loom_cleaning_jobs
		WHERE project_id = $1
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cleaning jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.CleaningJob
	for rows.Next() {
		job, err := scanCleaningJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cleaning job: %w", err)
		}
		jobs = append(jobs, *job)
	}

	return jobs, rows.Err()
}

// Update persists the job's status, result and progress.
func (r *cleaningJobRepository) Update(ctx context.Context, job *models.CleaningJob) error {
	job.UpdatedAt = time.Now()

	config, stats, progress, err := marshalCleaningJobDocs(job)
	if err != nil {
		return err
	}

	query := `
		UPDATE loom_cleaning_jobs
		SET config = $2, stats = $3, cleaned_table = $4, status = $5, progress = $6,
		    error_message = $7, updated_at = $8
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query,
		job.ID,
		config,
		stats,
		job.CleanedTable,
		job.Status,
		progress,
		job.ErrorMessage,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update cleaning job: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// UpdateProgress writes the job's progress document without touching the rest.
func (r *cleaningJobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress models.CleaningProgress) error {
	doc, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	query := `UPDATE loom_cleaning_jobs SET progress = $2, updated_at = $3 WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, doc, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update cleaning progress: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func marshalCleaningJobDocs(job *models.CleaningJob) (config, stats, progress []byte, err error) {
	config, err = json.Marshal(job.Config)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal cleaning config: %w", err)
	}
	if job.Stats != nil {
		stats, err = json.Marshal(job.Stats)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal cleaning stats: %w", err)
		}
	}
	progress, err = json.Marshal(job.Progress)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal progress: %w", err)
	}
	return config, stats, progress, nil
}

func scanCleaningJob(row pgx.Row) (*models.CleaningJob, error) {
	var job models.CleaningJob
	var config, stats, progress []byte

	err := row.Scan(
		&job.ID,
		&job.ProjectID,
		&job.UploadID,
		&config,
		&stats,
		&job.CleanedTable,
		&job.Status,
		&progress,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(config, &job.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cleaning config: %w", err)
	}
	if len(stats) > 0 {
		job.Stats = &models.TableStats{}
		if err := json.Unmarshal(stats, job.Stats); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cleaning stats: %w", err)
		}
	}
	if len(progress) > 0 {
		if err := json.Unmarshal(progress, &job.Progress); err != nil {
			return nil, fmt.Errorf("failed to unmarshal progress: %w", err)
		}
	}

	return &job, nil
}

// Ensure cleaningJobRepository implements CleaningJobRepository at compile time.
var _ CleaningJobRepository = (*cleaningJobRepository)(nil)
