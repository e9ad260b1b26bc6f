package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dataloom-io/loom-engine/pkg/apperrors"
	"github.com/dataloom-io/loom-engine/pkg/models"
	sqlutil "github.com/dataloom-io/loom-engine/pkg/sql"
)

// ViewGenerator builds one unified view per connected component of the
// relationship graph. The fact table anchors the view; dimensions hang off
// it with left joins so fact rows survive failed lookups.
type ViewGenerator interface {
	Generate(projectID uuid.UUID, relationships []models.Relationship, tables []TableData) ([]models.UnifiedView, error)
}

type viewGenerator struct {
	logger *zap.Logger
}

// NewViewGenerator creates the generator.
func NewViewGenerator(logger *zap.Logger) ViewGenerator {
	return &viewGenerator{logger: logger.Named("view_generator")}
}

var _ ViewGenerator = (*viewGenerator)(nil)

func (g *viewGenerator) Generate(projectID uuid.UUID, relationships []models.Relationship, tables []TableData) ([]models.UnifiedView, error) {
	usable := make([]models.Relationship, 0, len(relationships))
	for _, rel := range relationships {
		if rel.IsUsable() {
			usable = append(usable, rel)
		}
	}
	if len(usable) == 0 {
		return nil, apperrors.NewPipelineError(apperrors.TagNoRelationshipsFound,
			"no valid relationships to join; detect relationships first or confirm them manually")
	}

	if err := validateJoinColumns(usable); err != nil {
		return nil, err
	}

	byName := make(map[string]*TableData, len(tables))
	for i := range tables {
		byName[tables[i].Name] = &tables[i]
	}

	graph := NewTableGraph()
	for _, rel := range usable {
		graph.AddEdge(rel.SourceTable, rel.TargetTable)
	}

	nowMillis := time.Now().UnixMilli()
	var views []models.UnifiedView

	for i, component := range graph.ConnectedComponents() {
		inComponent := make(map[string]bool, len(component))
		for _, t := range component {
			inComponent[t] = true
		}

		var componentRels []models.Relationship
		for _, rel := range usable {
			if inComponent[rel.SourceTable] {
				componentRels = append(componentRels, rel)
			}
		}

		fact := chooseFactTable(component, componentRels, byName)
		viewName := fmt.Sprintf("unified_view_%d", nowMillis+int64(i))

		viewSQL, err := buildViewSQL(viewName, fact, componentRels, byName)
		if err != nil {
			return nil, err
		}

		views = append(views, models.UnifiedView{
			ID:        uuid.New(),
			ProjectID: projectID,
			ViewName:  viewName,
			ViewSQL:   viewSQL,
			FactTable: fact,
			Tables:    component,
			Active:    true,
			CreatedAt: time.Now(),
		})

		g.logger.Info("generated unified view",
			zap.String("view", viewName),
			zap.String("fact_table", fact),
			zap.Int("tables", len(component)))
	}

	return views, nil
}

// validateJoinColumns rejects join sets where one join column would appear
// twice on the same side of a join. Manual confirmations can produce such
// degenerate inputs.
func validateJoinColumns(relationships []models.Relationship) error {
	type side struct{ table, column string }
	sourceSeen := make(map[side]bool)
	for _, rel := range relationships {
		s := side{rel.SourceTable, rel.SourceColumn}
		if sourceSeen[s] {
			return apperrors.ConfigError(
				"join column %s.%s participates in more than one relationship on the same side",
				rel.SourceTable, rel.SourceColumn)
		}
		sourceSeen[s] = true
	}
	return nil
}

// chooseFactTable picks the component's anchor: the table holding the most
// foreign keys (relationship source side), ties broken by largest row count,
// then earliest creation time, then name for determinism.
func chooseFactTable(component []string, relationships []models.Relationship, byName map[string]*TableData) string {
	fkCount := make(map[string]int, len(component))
	for _, rel := range relationships {
		fkCount[rel.SourceTable]++
	}

	best := component[0]
	for _, table := range component[1:] {
		if factLess(best, table, fkCount, byName) {
			best = table
		}
	}
	return best
}

// factLess reports whether candidate beats current as fact table.
func factLess(current, candidate string, fkCount map[string]int, byName map[string]*TableData) bool {
	if fkCount[candidate] != fkCount[current] {
		return fkCount[candidate] > fkCount[current]
	}
	a, b := byName[current], byName[candidate]
	if a == nil || b == nil {
		return false
	}
	if len(b.Dataset.Rows) != len(a.Dataset.Rows) {
		return len(b.Dataset.Rows) > len(a.Dataset.Rows)
	}
	if !b.CreatedAt.Equal(a.CreatedAt) {
		return b.CreatedAt.Before(a.CreatedAt)
	}
	return candidate < current
}

// buildViewSQL renders the CREATE VIEW statement: all fact columns as-is,
// dimension columns prefixed with their table name, the dimension's join
// column omitted since the fact's foreign key already carries it.
func buildViewSQL(viewName, fact string, relationships []models.Relationship, byName map[string]*TableData) (string, error) {
	factData := byName[fact]
	if factData == nil {
		return "", apperrors.PreconditionFailed("cleaned table %q is missing", fact)
	}

	var sb strings.Builder
	sb.WriteString("CREATE VIEW ")
	sb.WriteString(sqlutil.QuoteIdentifier(viewName))
	sb.WriteString(" AS\nSELECT ")
	sb.WriteString(sqlutil.QuoteIdentifier(fact))
	sb.WriteString(".*")

	// Joins in relationship order keeps output deterministic. A dimension
	// not directly linked to the fact joins through its parent; edges whose
	// both sides are already in the view are skipped to avoid a second join
	// path through a cycle.
	var joins []models.Relationship
	joined := map[string]bool{fact: true}

	remaining := append([]models.Relationship(nil), relationships...)
	for len(remaining) > 0 {
		progressed := false
		var next []models.Relationship
		for _, rel := range remaining {
			switch {
			case joined[rel.SourceTable] && !joined[rel.TargetTable]:
				joins = append(joins, rel)
				joined[rel.TargetTable] = true
				progressed = true
			case joined[rel.TargetTable] && !joined[rel.SourceTable]:
				// Reverse orientation: the already-joined side is the
				// referenced one.
				flipped := rel
				flipped.SourceTable, flipped.TargetTable = rel.TargetTable, rel.SourceTable
				flipped.SourceColumn, flipped.TargetColumn = rel.TargetColumn, rel.SourceColumn
				joins = append(joins, flipped)
				joined[flipped.TargetTable] = true
				progressed = true
			case joined[rel.SourceTable] && joined[rel.TargetTable]:
			default:
				next = append(next, rel)
				continue
			}
		}
		remaining = next
		if !progressed {
			break
		}
	}

	for _, j := range joins {
		dim := byName[j.TargetTable]
		if dim == nil {
			return "", apperrors.PreconditionFailed("cleaned table %q is missing", j.TargetTable)
		}
		for _, col := range dim.Dataset.Columns {
			if col == j.TargetColumn {
				continue
			}
			sb.WriteString(",\n       ")
			sb.WriteString(sqlutil.QuoteIdentifier(dim.Name))
			sb.WriteString(".")
			sb.WriteString(sqlutil.QuoteIdentifier(col))
			sb.WriteString(" AS ")
			sb.WriteString(sqlutil.QuoteIdentifier(dim.Name + "_" + col))
		}
	}

	sb.WriteString("\nFROM ")
	sb.WriteString(sqlutil.QuoteIdentifier(fact))

	for _, j := range joins {
		sb.WriteString("\nLEFT JOIN ")
		sb.WriteString(sqlutil.QuoteIdentifier(j.TargetTable))
		sb.WriteString(" ON ")
		sb.WriteString(sqlutil.QuoteIdentifier(j.SourceTable))
		sb.WriteString(".")
		sb.WriteString(sqlutil.QuoteIdentifier(j.SourceColumn))
		sb.WriteString(" = ")
		sb.WriteString(sqlutil.QuoteIdentifier(j.TargetTable))
		sb.WriteString(".")
		sb.WriteString(sqlutil.QuoteIdentifier(j.TargetColumn))
	}

	return sb.String(), nil
}
