package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dataloom-io/loom-engine/pkg/models"
)

// CleaningLogRepository is the append-only audit store for cleaning stage
// operations. Entries are never updated or deleted individually; they go
// away only when their job's project is removed.
type CleaningLogRepository interface {
	Append(ctx context.Context, log *models.CleaningLog) error
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.CleaningLog, error)
}

// cleaningLogRepository implements CleaningLogRepository using PostgreSQL.
type cleaningLogRepository struct {
	db *pgxpool.Pool
}

// NewCleaningLogRepository creates a new cleaning log repository.
func NewCleaningLogRepository(db *pgxpool.Pool) CleaningLogRepository {
	return &cleaningLogRepository{db: db}
}

// Append inserts one audit entry.
func (r *cleaningLogRepository) Append(ctx context.Context, log *models.CleaningLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}

	before, err := json.Marshal(log.BeforeStats)
	if err != nil {
		return fmt.Errorf("failed to marshal before stats: %w", err)
	}
	after, err := json.Marshal(log.AfterStats)
	if err != nil {
		return fmt.Errorf("failed to marshal after stats: %w", err)
	}
	config, err := json.Marshal(log.ConfigSnapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal config snapshot: %w", err)
	}

	query := `
		INSERT INTO loom_cleaning_logs (id, job_id, operation, before_stats, after_stats,
			config_snapshot, duration_ms, status, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.Exec(ctx, query,
		log.ID,
		log.JobID,
		log.Operation,
		before,
		after,
		config,
		log.DurationMillis,
		log.Status,
		log.ErrorMessage,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append cleaning log: %w", err)
	}

	return nil
}

// ListByJob returns a job's audit entries in append order.
func (r *cleaningLogRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.CleaningLog, error) {
	query := `
		SELECT id, job_id, operation, before_stats, after_stats, config_snapshot,
		       duration_ms, status, error_message, created_at
		FROM loom_cleaning_logs
		WHERE job_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cleaning logs: %w", err)
	}
	defer rows.Close()

	var logs []models.CleaningLog
	for rows.Next() {
		var log models.CleaningLog
		var before, after, config []byte

		if err := rows.Scan(
			&log.ID,
			&log.JobID,
			&log.Operation,
			&before,
			&after,
			&config,
			&log.DurationMillis,
			&log.Status,
			&log.ErrorMessage,
			&log.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cleaning log: %w", err)
		}

		if err := json.Unmarshal(before, &log.BeforeStats); err != nil {
			return nil, fmt.Errorf("failed to unmarshal before stats: %w", err)
		}
		if err := json.Unmarshal(after, &log.AfterStats); err != nil {
			return nil, fmt.Errorf("failed to unmarshal after stats: %w", err)
		}
		if err := json.Unmarshal(config, &log.ConfigSnapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config snapshot: %w", err)
		}

		logs = append(logs, log)
	}

	return logs, rows.Err()
}

// Ensure cleaningLogRepository implements CleaningLogRepository at compile time.
var _ CleaningLogRepository = (*cleaningLogRepository)(nil)
