package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dataloom-io/loom-engine/pkg/apperrors"
	"github.com/dataloom-io/loom-engine/pkg/models"
	sqlutil "github.com/dataloom-io/loom-engine/pkg/sql"
)

// CleanedDataRepository manages the per-job cleaned tables and the unified
// views built over them. Cleaned tables are real tables with one TEXT column
// per dataset column plus a serial ordering column, so view SQL can reference
// columns by name.
type CleanedDataRepository interface {
	CreateTable(ctx context.Context, tableName string, columns []string) error
	InsertRows(ctx context.Context, tableName string, columns []string, rows []models.Row) (int64, error)
	Query(ctx context.Context, tableName string, limit, offset int) (*models.CleanedData, error)
	CountRows(ctx context.Context, relation string) (int64, error)
	DropTable(ctx context.Context, tableName string) error
	ExecViewSQL(ctx context.Context, viewSQL string) error
	DropView(ctx context.Context, viewName string) error
}

// cleanedDataRepository implements CleanedDataRepository using PostgreSQL.
type cleanedDataRepository struct {
	db *pgxpool.Pool
}

// NewCleanedDataRepository creates a new cleaned data repository.
func NewCleanedDataRepository(db *pgxpool.Pool) CleanedDataRepository {
	return &cleanedDataRepository{db: db}
}

// rowOrderColumn keeps cleaned rows in pipeline output order. Parsers
// reserve the name when de-duplicating headers, so dataset columns never
// collide with it.
const rowOrderColumn = models.RowOrderColumn

func validateRelationName(name string) error {
	if err := sqlutil.ValidateIdentifier(name); err != nil {
		return apperrors.ConfigError("invalid relation name %q", name)
	}
	return nil
}

// CreateTable creates (or recreates) a cleaned table. Recreating makes
// cleaning reruns idempotent.
func (r *cleanedDataRepository) CreateTable(ctx context.Context, tableName string, columns []string) error {
	if err := validateRelationName(tableName); err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	sb.WriteString(sqlutil.QuoteIdentifier(tableName))
	sb.WriteString(" (")
	sb.WriteString(sqlutil.QuoteIdentifier(rowOrderColumn))
	sb.WriteString(" BIGSERIAL PRIMARY KEY")
	for _, col := range columns {
		sb.WriteString(", ")
		sb.WriteString(sqlutil.QuoteIdentifier(col))
		sb.WriteString(" TEXT")
	}
	sb.WriteString(")")

	if _, err := r.db.Exec(ctx, `DROP TABLE IF EXISTS `+sqlutil.QuoteIdentifier(tableName)+` CASCADE`); err != nil {
		return fmt.Errorf("failed to drop previous cleaned table: %w", err)
	}
	if _, err := r.db.Exec(ctx, sb.String()); err != nil {
		return fmt.Errorf("failed to create cleaned table: %w", err)
	}

	return nil
}

// InsertRows copies cleaned rows into the table in dataset order. Null cells
// become SQL NULLs.
func (r *cleanedDataRepository) InsertRows(ctx context.Context, tableName string, columns []string, rows []models.Row) (int64, error) {
	if err := validateRelationName(tableName); err != nil {
		return 0, err
	}

	source := make([][]any, len(rows))
	for i, row := range rows {
		record := make([]any, len(columns))
		for j, col := range columns {
			v := row.Get(col)
			if v.IsNull() {
				record[j] = nil
			} else {
				record[j] = v.Raw()
			}
		}
		source[i] = record
	}

	n, err := r.db.CopyFrom(ctx, pgx.Identifier{tableName}, columns, pgx.CopyFromRows(source))
	if err != nil {
		return 0, fmt.Errorf("failed to insert cleaned rows: %w", err)
	}

	return n, nil
}

// Query returns a page of cleaned rows in insertion order. A limit of 0
// returns everything from offset on.
func (r *cleanedDataRepository) Query(ctx context.Context, tableName string, limit, offset int) (*models.CleanedData, error) {
	if err := validateRelationName(tableName); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT * FROM %s ORDER BY %s OFFSET $1`,
		sqlutil.QuoteIdentifier(tableName), sqlutil.QuoteIdentifier(rowOrderColumn))
	args := []any{offset}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cleaned table: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Name != rowOrderColumn {
			columns = append(columns, f.Name)
		}
	}

	data := &models.CleanedData{TableName: tableName, Columns: columns}
	rowNumber := offset
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read cleaned row: %w", err)
		}

		rowNumber++
		row := models.Row{RowNumber: rowNumber, Cells: make(map[string]models.Value, len(columns))}
		for i, f := range fields {
			if f.Name == rowOrderColumn {
				continue
			}
			switch v := values[i].(type) {
			case nil:
				row.Cells[f.Name] = models.Null()
			case string:
				row.Cells[f.Name] = models.String(v)
			default:
				row.Cells[f.Name] = models.String(fmt.Sprint(v))
			}
		}
		data.Rows = append(data.Rows, row)
	}

	return data, rows.Err()
}

// CountRows counts rows of a cleaned table or unified view.
func (r *cleanedDataRepository) CountRows(ctx context.Context, relation string) (int64, error) {
	if err := validateRelationName(relation); err != nil {
		return 0, err
	}

	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM `+sqlutil.QuoteIdentifier(relation)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", relation, err)
	}
	return count, nil
}

// DropTable removes a cleaned table and any views built on it.
func (r *cleanedDataRepository) DropTable(ctx context.Context, tableName string) error {
	if err := validateRelationName(tableName); err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, `DROP TABLE IF EXISTS `+sqlutil.QuoteIdentifier(tableName)+` CASCADE`); err != nil {
		return fmt.Errorf("failed to drop cleaned table: %w", err)
	}
	return nil
}

// ExecViewSQL runs a generated CREATE VIEW statement after confirming it is
// a single statement.
func (r *cleanedDataRepository) ExecViewSQL(ctx context.Context, viewSQL string) error {
	result := sqlutil.ValidateAndNormalize(viewSQL)
	if result.Error != nil {
		return result.Error
	}
	if _, err := r.db.Exec(ctx, result.NormalizedSQL); err != nil {
		return fmt.Errorf("failed to create unified view: %w", err)
	}
	return nil
}

// DropView removes a unified view.
func (r *cleanedDataRepository) DropView(ctx context.Context, viewName string) error {
	if err := validateRelationName(viewName); err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, `DROP VIEW IF EXISTS `+sqlutil.QuoteIdentifier(viewName)); err != nil {
		return fmt.Errorf("failed to drop unified view: %w", err)
	}
	return nil
}

// Ensure cleanedDataRepository implements CleanedDataRepository at compile time.
var _ CleanedDataRepository = (*cleanedDataRepository)(nil)
