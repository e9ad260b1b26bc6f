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

// DomainJobRepository defines the interface for domain detection job access.
type DomainJobRepository interface {
	Create(ctx context.Context, job *models.DomainDetectionJob) error
	Get(ctx context.Context, id uuid.UUID) (*models.DomainDetectionJob, error)
	GetLatestByProject(ctx context.Context, projectID uuid.UUID) (*models.DomainDetectionJob, error)
	Update(ctx context.Context, job *models.DomainDetectionJob) error
}

// domainJobRepository implements DomainJobRepository using PostgreSQL.
type domainJobRepository struct {
	db *pgxpool.Pool
}

// NewDomainJobRepository creates a new domain job repository.
func NewDomainJobRepository(db *pgxpool.Pool) DomainJobRepository {
	return &domainJobRepository{db: db}
}

// domainJobDoc is the JSONB document carrying the classifier's detail lists.
type domainJobDoc struct {
	CleaningJobIDs []uuid.UUID          `json:"cleaning_job_ids"`
	PrimaryMatches []string             `json:"primary_matches"`
	KeywordMatches []string             `json:"keyword_matches"`
	Top3           []models.DomainScore `json:"top3_alternatives,omitempty"`
	AllScores      []models.DomainScore `json:"all_scores"`
}

// Create inserts a new domain detection job.
func (r *domainJobRepository) Create(ctx context.Context, job *models.DomainDetectionJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}

	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = models.DomainJobCompleted
	}

	detail, err := marshalDomainDoc(job)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO loom_domain_jobs (id, project_id, domain, confidence, decision, detail,
			status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = r.db.Exec(ctx, query,
		job.ID,
		job.ProjectID,
		job.Domain,
		job.Confidence,
		job.Decision,
		detail,
		job.Status,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create domain job: %w", err)
	}

	return nil
}

// Get retrieves a domain job by ID.
func (r *domainJobRepository) Get(ctx context.Context, id uuid.UUID) (*models.DomainDetectionJob, error) {
	query := domainJobSelect + ` WHERE id = $1`

	job, err := scanDomainJob(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get domain job: %w", err)
	}

	return job, nil
}

// GetLatestByProject returns the most recent domain job for a project.
func (r *domainJobRepository) GetLatestByProject(ctx context.Context, projectID uuid.UUID) (*models.DomainDetectionJob, error) {
	query := domainJobSelect + ` WHERE project_id = $1 ORDER BY created_at DESC LIMIT 1`

	job, err := scanDomainJob(r.db.QueryRow(ctx, query, projectID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest domain job: %w", err)
	}

	return job, nil
}

// Update persists a job's domain, decision and status. Used by manual
// confirmation.
func (r *domainJobRepository) Update(ctx context.Context, job *models.DomainDetectionJob) error {
	job.UpdatedAt = time.Now()

	detail, err := marshalDomainDoc(job)
	if err != nil {
		return err
	}

	query := `
		UPDATE loom_domain_jobs
		SET domain = $2, confidence = $3, decision = $4, detail = $5, status = $6, updated_at = $7
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query,
		job.ID,
		job.Domain,
		job.Confidence,
		job.Decision,
		detail,
		job.Status,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update domain job: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

const domainJobSelect = `
	SELECT id, project_id, domain, confidence, decision, detail, status, created_at, updated_at
	FROM loom_domain_jobs`

func marshalDomainDoc(job *models.DomainDetectionJob) ([]byte, error) {
	doc := domainJobDoc{
		CleaningJobIDs: job.CleaningJobIDs,
		PrimaryMatches: job.PrimaryMatches,
		KeywordMatches: job.KeywordMatches,
		Top3:           job.Top3,
		AllScores:      job.AllScores,
	}
	detail, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal domain job detail: %w", err)
	}
	return detail, nil
}

func scanDomainJob(row pgx.Row) (*models.DomainDetectionJob, error) {
	var job models.DomainDetectionJob
	var detail []byte

	err := row.Scan(
		&job.ID,
		&job.ProjectID,
		&job.Domain,
		&job.Confidence,
		&job.Decision,
		&detail,
		&job.Status,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	var doc domainJobDoc
	if err := json.Unmarshal(detail, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal domain job detail: %w", err)
	}
	job.CleaningJobIDs = doc.CleaningJobIDs
	job.PrimaryMatches = doc.PrimaryMatches
	job.KeywordMatches = doc.KeywordMatches
	job.Top3 = doc.Top3
	job.AllScores = doc.AllScores

	return &job, nil
}

// Ensure domainJobRepository implements DomainJobRepository at compile time.
var _ DomainJobRepository = (*domainJobRepository)(nil)
