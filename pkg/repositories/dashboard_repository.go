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

// DashboardRepository defines the interface for dashboard data access. A
// project holds at most one dashboard; regeneration overwrites it.
type DashboardRepository interface {
	Upsert(ctx context.Context, dashboard *models.Dashboard) error
	GetByProject(ctx context.Context, projectID uuid.UUID) (*models.Dashboard, error)
	UpdateStatus(ctx context.Context, projectID uuid.UUID, status models.DashboardStatus) error
}

// dashboardRepository implements DashboardRepository using PostgreSQL.
type dashboardRepository struct {
	db *pgxpool.Pool
}

// NewDashboardRepository creates a new dashboard repository.
func NewDashboardRepository(db *pgxpool.Pool) DashboardRepository {
	return &dashboardRepository{db: db}
}

// Upsert inserts a dashboard or replaces the project's existing one.
func (r *dashboardRepository) Upsert(ctx context.Context, dashboard *models.Dashboard) error {
	if dashboard.ID == uuid.Nil {
		dashboard.ID = uuid.New()
	}

	now := time.Now()
	if dashboard.CreatedAt.IsZero() {
		dashboard.CreatedAt = now
	}
	dashboard.UpdatedAt = now
	if dashboard.Status == "" {
		dashboard.Status = models.DashboardReady
	}

	config, err := json.Marshal(dashboard.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal dashboard config: %w", err)
	}

	query := `
		INSERT INTO loom_dashboards (id, project_id, title, description, config, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (project_id) DO UPDATE
		SET title = EXCLUDED.title,
		    description = EXCLUDED.description,
		    config = EXCLUDED.config,
		    status = EXCLUDED.status,
		    updated_at = EXCLUDED.updated_at`

	_, err = r.db.Exec(ctx, query,
		dashboard.ID,
		dashboard.ProjectID,
		dashboard.Title,
		dashboard.Description,
		config,
		dashboard.Status,
		dashboard.CreatedAt,
		dashboard.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert dashboard: %w", err)
	}

	return nil
}

// GetByProject retrieves the project's dashboard.
func (r *dashboardRepository) GetByProject(ctx context.Context, projectID uuid.UUID) (*models.Dashboard, error) {
	query := `
		SELECT id, project_id, title, description, config, status, created_at, updated_at
		FROM loom_dashboards
		WHERE project_id = $1`

	var dashboard models.Dashboard
	var config []byte

	err := r.db.QueryRow(ctx, query, projectID).Scan(
		&dashboard.ID,
		&dashboard.ProjectID,
		&dashboard.Title,
		&dashboard.Description,
		&config,
		&dashboard.Status,
		&dashboard.CreatedAt,
		&dashboard.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get dashboard: %w", err)
	}

	if err := json.Unmarshal(config, &dashboard.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dashboard config: %w", err)
	}

	return &dashboard, nil
}

// UpdateStatus marks the project's dashboard, e.g. stale after re-cleaning.
func (r *dashboardRepository) UpdateStatus(ctx context.Context, projectID uuid.UUID, status models.DashboardStatus) error {
	result, err := r.db.Exec(ctx,
		`UPDATE loom_dashboards SET status = $2, updated_at = $3 WHERE project_id = $1`,
		projectID, status, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update dashboard status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// Ensure dashboardRepository implements DashboardRepository at compile time.
var _ DashboardRepository = (*dashboardRepository)(nil)
