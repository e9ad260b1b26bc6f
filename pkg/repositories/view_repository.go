package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dataloom-io/loom-engine/pkg/apperrors"
	"github.com/dataloom-io/loom-engine/pkg/models"
)

// ViewRepository tracks unified view metadata. The views themselves live in
// the database as real SQL views; CleanedDataRepository creates and drops
// them.
type ViewRepository interface {
	// ReplaceForProject deactivates the project's previous views and records
	// the new generation in one transaction.
	ReplaceForProject(ctx context.Context, projectID uuid.UUID, views []models.UnifiedView) error
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.UnifiedView, error)
	GetActiveByProject(ctx context.Context, projectID uuid.UUID) ([]models.UnifiedView, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// viewRepository implements ViewRepository using PostgreSQL.
type viewRepository struct {
	db *pgxpool.Pool
}

// NewViewRepository creates a new view repository.
func NewViewRepository(db *pgxpool.Pool) ViewRepository {
	return &viewRepository{db: db}
}

const viewColumns = `id, project_id, view_name, view_sql, fact_table, tables, active, created_at`

// ReplaceForProject records a fresh generation of unified views.
func (r *viewRepository) ReplaceForProject(ctx context.Context, projectID uuid.UUID, views []models.UnifiedView) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE loom_unified_views SET active = FALSE WHERE project_id = $1 AND active`,
		projectID)
	if err != nil {
		return fmt.Errorf("failed to deactivate previous views: %w", err)
	}

	for i := range views {
		view := &views[i]
		if view.ID == uuid.Nil {
			view.ID = uuid.New()
		}
		if view.CreatedAt.IsZero() {
			view.CreatedAt = time.Now()
		}
		view.ProjectID = projectID

		_, err := tx.Exec(ctx, `
			INSERT INTO loom_unified_views (id, project_id, view_name, view_sql, fact_table, tables, active, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			view.ID, view.ProjectID, view.ViewName, view.ViewSQL, view.FactTable,
			view.Tables, view.Active, view.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert unified view: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit unified views: %w", err)
	}

	return nil
}

// ListByProject returns all recorded views of a project, newest first.
func (r *viewRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.UnifiedView, error) {
	return r.list(ctx,
		`SELECT `+viewColumns+` FROM loom_unified_views WHERE project_id = $1 ORDER BY created_at DESC`,
		projectID)
}

// GetActiveByProject returns the project's currently active views.
func (r *viewRepository) GetActiveByProject(ctx context.Context, projectID uuid.UUID) ([]models.UnifiedView, error) {
	return r.list(ctx,
		`SELECT `+viewColumns+` FROM loom_unified_views WHERE project_id = $1 AND active ORDER BY view_name`,
		projectID)
}

// Deactivate marks one view inactive.
func (r *viewRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx,
		`UPDATE loom_unified_views SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate view: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *viewRepository) list(ctx context.Context, query string, args ...any) ([]models.UnifiedView, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list unified views: %w", err)
	}
	defer rows.Close()

	var views []models.UnifiedView
	for rows.Next() {
		var view models.UnifiedView
		if err := rows.Scan(
			&view.ID,
			&view.ProjectID,
			&view.ViewName,
			&view.ViewSQL,
			&view.FactTable,
			&view.Tables,
			&view.Active,
			&view.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan unified view: %w", err)
		}
		views = append(views, view)
	}

	return views, rows.Err()
}

// Ensure viewRepository implements ViewRepository at compile time.
var _ ViewRepository = (*viewRepository)(nil)
