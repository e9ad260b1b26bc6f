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

// KpiRepository defines the interface for KPI job and selection access.
type KpiRepository interface {
	CreateJob(ctx context.Context, job *models.KpiExtractionJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.KpiExtractionJob, error)
	GetLatestJobByProject(ctx context.Context, projectID uuid.UUID) (*models.KpiExtractionJob, error)
	// ReplaceSelections swaps the project's confirmed KPI selections.
	ReplaceSelections(ctx context.Context, projectID uuid.UUID, selections []models.SelectedKpi) error
	ListSelections(ctx context.Context, projectID uuid.UUID) ([]models.SelectedKpi, error)
}

// kpiRepository implements KpiRepository using PostgreSQL.
type kpiRepository struct {
	db *pgxpool.Pool
}

// NewKpiRepository creates a new KPI repository.
func NewKpiRepository(db *pgxpool.Pool) KpiRepository {
	return &kpiRepository{db: db}
}

// kpiJobDoc is the JSONB document carrying the ranking detail.
type kpiJobDoc struct {
	TopKpis           []models.RankedKpi     `json:"top_kpis"`
	AllFeasible       []models.RankedKpi     `json:"all_feasible"`
	Infeasible        []models.InfeasibleKpi `json:"infeasible"`
	UnresolvedColumns []string               `json:"unresolved_columns"`
	ColumnMapping     map[string]string      `json:"column_mapping"`
}

// CreateJob inserts a KPI extraction job.
func (r *kpiRepository) CreateJob(ctx context.Context, job *models.KpiExtractionJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	detail, err := json.Marshal(kpiJobDoc{
		TopKpis:           job.TopKpis,
		AllFeasible:       job.AllFeasible,
		Infeasible:        job.Infeasible,
		UnresolvedColumns: job.UnresolvedColumns,
		ColumnMapping:     job.ColumnMapping,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal KPI job detail: %w", err)
	}

	query := `
		INSERT INTO loom_kpi_jobs (id, project_id, domain, total_kpis, feasible_count,
			infeasible_count, avg_completeness, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = r.db.Exec(ctx, query,
		job.ID,
		job.ProjectID,
		job.Domain,
		job.TotalKpisInLib,
		job.FeasibleCount,
		job.InfeasibleCount,
		job.AvgCompleteness,
		detail,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create KPI job: %w", err)
	}

	return nil
}

// GetJob retrieves a KPI job by ID.
func (r *kpiRepository) GetJob(ctx context.Context, id uuid.UUID) (*models.KpiExtractionJob, error) {
	job, err := scanKpiJob(r.db.QueryRow(ctx, kpiJobSelect+` WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get KPI job: %w", err)
	}
	return job, nil
}

// GetLatestJobByProject returns the most recent KPI job for a project.
func (r *kpiRepository) GetLatestJobByProject(ctx context.Context, projectID uuid.UUID) (*models.KpiExtractionJob, error) {
	job, err := scanKpiJob(r.db.QueryRow(ctx,
		kpiJobSelect+` WHERE project_id = $1 ORDER BY created_at DESC LIMIT 1`, projectID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest KPI job: %w", err)
	}
	return job, nil
}

// ReplaceSelections swaps a project's confirmed selections in one transaction.
func (r *kpiRepository) ReplaceSelections(ctx context.Context, projectID uuid.UUID, selections []models.SelectedKpi) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `DELETE FROM loom_kpi_selections WHERE project_id = $1`, projectID)
	if err != nil {
		return fmt.Errorf("failed to clear KPI selections: %w", err)
	}

	now := time.Now()
	for i := range selections {
		sel := &selections[i]
		if sel.ID == uuid.Nil {
			sel.ID = uuid.New()
		}
		if sel.CreatedAt.IsZero() {
			sel.CreatedAt = now
		}
		sel.ProjectID = projectID

		columnsNeeded, err := json.Marshal(sel.ColumnsNeeded)
		if err != nil {
			return fmt.Errorf("failed to marshal columns needed: %w", err)
		}
		resolved, err := json.Marshal(sel.ResolvedColumns)
		if err != nil {
			return fmt.Errorf("failed to marshal resolved columns: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO loom_kpi_selections (id, project_id, kpi_job_id, kpi_id, name, formula_expr,
				columns_needed, resolved_columns, priority, category, chart_hint, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			sel.ID, sel.ProjectID, sel.KpiJobID, sel.KpiID, sel.Name, sel.FormulaExpr,
			columnsNeeded, resolved, sel.Priority, sel.Category, sel.ChartHint, sel.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert KPI selection: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit KPI selections: %w", err)
	}

	return nil
}

// ListSelections returns a project's confirmed selections in insertion order.
func (r *kpiRepository) ListSelections(ctx context.Context, projectID uuid.UUID) ([]models.SelectedKpi, error) {
	query := `
		SELECT id, project_id, kpi_job_id, kpi_id, name, formula_expr, columns_needed,
		       resolved_columns, priority, category, chart_hint, created_at
		FROM loom_kpi_selections
		WHERE project_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list KPI selections: %w", err)
	}
	defer rows.Close()

	var selections []models.SelectedKpi
	for rows.Next() {
		var sel models.SelectedKpi
		var columnsNeeded, resolved []byte

		if err := rows.Scan(
			&sel.ID,
			&sel.ProjectID,
			&sel.KpiJobID,
			&sel.KpiID,
			&sel.Name,
			&sel.FormulaExpr,
			&columnsNeeded,
			&resolved,
			&sel.Priority,
			&sel.Category,
			&sel.ChartHint,
			&sel.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan KPI selection: %w", err)
		}

		if err := json.Unmarshal(columnsNeeded, &sel.ColumnsNeeded); err != nil {
			return nil, fmt.Errorf("failed to unmarshal columns needed: %w", err)
		}
		if err := json.Unmarshal(resolved, &sel.ResolvedColumns); err != nil {
			return nil, fmt.Errorf("failed to unmarshal resolved columns: %w", err)
		}

		selections = append(selections, sel)
	}

	return selections, rows.Err()
}

const kpiJobSelect = `
	SELECT id, project_id, domain, total_kpis, feasible_count, infeasible_count,
	       avg_completeness, detail, created_at
	FROM loom_kpi_jobs`

func scanKpiJob(row pgx.Row) (*models.KpiExtractionJob, error) {
	var job models.KpiExtractionJob
	var detail []byte

	err := row.Scan(
		&job.ID,
		&job.ProjectID,
		&job.Domain,
		&job.TotalKpisInLib,
		&job.FeasibleCount,
		&job.InfeasibleCount,
		&job.AvgCompleteness,
		&detail,
		&job.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	var doc kpiJobDoc
	if err := json.Unmarshal(detail, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal KPI job detail: %w", err)
	}
	job.TopKpis = doc.TopKpis
	job.AllFeasible = doc.AllFeasible
	job.Infeasible = doc.Infeasible
	job.UnresolvedColumns = doc.UnresolvedColumns
	job.ColumnMapping = doc.ColumnMapping

	return &job, nil
}

// Ensure kpiRepository implements KpiRepository at compile time.
var _ KpiRepository = (*kpiRepository)(nil)
