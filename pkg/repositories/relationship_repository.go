package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dataloom-io/loom-engine/pkg/apperrors"
	"github.com/dataloom-io/loom-engine/pkg/models"
)

// RelationshipRepository defines the interface for relationship data access.
type RelationshipRepository interface {
	Create(ctx context.Context, rel *models.Relationship) error
	// ReplaceForProject atomically swaps a project's detected relationships.
	// Manual relationships survive the swap.
	ReplaceForProject(ctx context.Context, projectID uuid.UUID, rels []models.Relationship) error
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Relationship, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.RelationshipStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// relationshipRepository implements RelationshipRepository using PostgreSQL.
type relationshipRepository struct {
	db *pgxpool.Pool
}

// NewRelationshipRepository creates a new relationship repository.
func NewRelationshipRepository(db *pgxpool.Pool) RelationshipRepository {
	return &relationshipRepository{db: db}
}

const relationshipColumns = `id, project_id, source_table, source_column, target_table,
	target_column, match_rate, status, kind, created_at`

const insertRelationship = `
	INSERT INTO loom_relationships (id, project_id, source_table, source_column, target_table,
		target_column, match_rate, status, kind, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// Create inserts one relationship, typically a manual confirmation.
func (r *relationshipRepository) Create(ctx context.Context, rel *models.Relationship) error {
	if rel.ID == uuid.Nil {
		rel.ID = uuid.New()
	}
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now()
	}
	if rel.Kind == "" {
		rel.Kind = models.RelationshipOneToMany
	}

	_, err := r.db.Exec(ctx, insertRelationship,
		rel.ID, rel.ProjectID, rel.SourceTable, rel.SourceColumn, rel.TargetTable,
		rel.TargetColumn, rel.MatchRate, rel.Status, rel.Kind, rel.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create relationship: %w", err)
	}

	return nil
}

// ReplaceForProject deletes the project's non-manual relationships and inserts
// the new detection result in one transaction, so re-detection never leaves a
// mixed set behind.
func (r *relationshipRepository) ReplaceForProject(ctx context.Context, projectID uuid.UUID, rels []models.Relationship) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`DELETE FROM loom_relationships WHERE project_id = $1 AND status <> $2`,
		projectID, models.RelationshipManual)
	if err != nil {
		return fmt.Errorf("failed to clear detected relationships: %w", err)
	}

	now := time.Now()
	for i := range rels {
		rel := &rels[i]
		if rel.ID == uuid.Nil {
			rel.ID = uuid.New()
		}
		if rel.CreatedAt.IsZero() {
			rel.CreatedAt = now
		}
		rel.ProjectID = projectID

		if _, err := tx.Exec(ctx, insertRelationship,
			rel.ID, rel.ProjectID, rel.SourceTable, rel.SourceColumn, rel.TargetTable,
			rel.TargetColumn, rel.MatchRate, rel.Status, rel.Kind, rel.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert relationship: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit relationships: %w", err)
	}

	return nil
}

// ListByProject returns all relationships of a project in creation order.
func (r *relationshipRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Relationship, error) {
	query := `SELECT ` + relationshipColumns + `
		FROM loom_relationships
		WHERE project_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	defer rows.Close()

	var rels []models.Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		rels = append(rels, *rel)
	}

	return rels, rows.Err()
}

// UpdateStatus flips one relationship's status, e.g. a user rejecting a
// detected link.
func (r *relationshipRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.RelationshipStatus) error {
	result, err := r.db.Exec(ctx,
		`UPDATE loom_relationships SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update relationship status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// Delete removes one relationship.
func (r *relationshipRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM loom_relationships WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete relationship: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func scanRelationship(row pgx.Row) (*models.Relationship, error) {
	var rel models.Relationship
	err := row.Scan(
		&rel.ID,
		&rel.ProjectID,
		&rel.SourceTable,
		&rel.SourceColumn,
		&rel.TargetTable,
		&rel.TargetColumn,
		&rel.MatchRate,
		&rel.Status,
		&rel.Kind,
		&rel.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

// Ensure relationshipRepository implements RelationshipRepository at compile time.
var _ RelationshipRepository = (*relationshipRepository)(nil)
