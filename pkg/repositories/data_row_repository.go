package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dataloom-io/loom-engine/pkg/models"
)

// DataRowRepository is the record store for parsed upload rows. Payloads are
// stored as JSONB keyed by column name; column order lives in the upload's
// metadata.
type DataRowRepository interface {
	BulkInsert(ctx context.Context, uploadID uuid.UUID, rows []models.Row) (int64, error)
	ListByUpload(ctx context.Context, uploadID uuid.UUID, limit, offset int) ([]models.Row, error)
	CountByUpload(ctx context.Context, uploadID uuid.UUID) (int64, error)
	DeleteByUpload(ctx context.Context, uploadID uuid.UUID) error
}

// dataRowRepository implements DataRowRepository using PostgreSQL.
type dataRowRepository struct {
	db *pgxpool.Pool
}

// NewDataRowRepository creates a new data row repository.
func NewDataRowRepository(db *pgxpool.Pool) DataRowRepository {
	return &dataRowRepository{db: db}
}

// BulkInsert copies all rows of an upload into the record store in one
// round trip. Returns the number of rows written.
func (r *dataRowRepository) BulkInsert(ctx context.Context, uploadID uuid.UUID, rows []models.Row) (int64, error) {
	source := make([][]any, 0, len(rows))
	for _, row := range rows {
		payload, err := json.Marshal(row.Cells)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal row %d: %w", row.RowNumber, err)
		}
		source = append(source, []any{uuid.New(), uploadID, row.RowNumber, payload})
	}

	n, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"loom_data_rows"},
		[]string{"id", "upload_id", "row_number", "payload"},
		pgx.CopyFromRows(source),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert data rows: %w", err)
	}

	return n, nil
}

// ListByUpload returns a page of rows in row-number order. A limit of 0
// returns everything from offset on.
func (r *dataRowRepository) ListByUpload(ctx context.Context, uploadID uuid.UUID, limit, offset int) ([]models.Row, error) {
	query := `
		SELECT row_number, payload
		FROM loom_data_rows
		WHERE upload_id = $1
		ORDER BY row_number
		OFFSET $2`
	args := []any{uploadID, offset}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list data rows: %w", err)
	}
	defer rows.Close()

	var out []models.Row
	for rows.Next() {
		var row models.Row
		var payload []byte
		if err := rows.Scan(&row.RowNumber, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan data row: %w", err)
		}
		if err := json.Unmarshal(payload, &row.Cells); err != nil {
			return nil, fmt.Errorf("failed to unmarshal row %d: %w", row.RowNumber, err)
		}
		out = append(out, row)
	}

	return out, rows.Err()
}

// CountByUpload returns the number of stored rows for an upload.
func (r *dataRowRepository) CountByUpload(ctx context.Context, uploadID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM loom_data_rows WHERE upload_id = $1`, uploadID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count data rows: %w", err)
	}
	return count, nil
}

// DeleteByUpload removes all stored rows of an upload.
func (r *dataRowRepository) DeleteByUpload(ctx context.Context, uploadID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM loom_data_rows WHERE upload_id = $1`, uploadID)
	if err != nil {
		return fmt.Errorf("failed to delete data rows: %w", err)
	}
	return nil
}

// Ensure dataRowRepository implements DataRowRepository at compile time.
var _ DataRowRepository = (*dataRowRepository)(nil)
