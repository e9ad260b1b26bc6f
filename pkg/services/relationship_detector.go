package services

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dataloom-io/loom-engine/pkg/models"
)

// TableData is one cleaned table held in memory for cross-table analysis.
type TableData struct {
	Name          string
	UploadID      uuid.UUID
	CleaningJobID uuid.UUID
	Dataset       *models.Dataset
	Schema        *models.Schema
	CreatedAt     time.Time
}

// RelationshipDetector discovers referential links between the cleaned
// tables of one project by comparing column names and value overlap.
type RelationshipDetector interface {
	Detect(projectID uuid.UUID, tables []TableData) []models.Relationship
}

type relationshipDetector struct {
	logger *zap.Logger
}

// NewRelationshipDetector creates the detector.
func NewRelationshipDetector(logger *zap.Logger) RelationshipDetector {
	return &relationshipDetector{logger: logger.Named("relationship_detector")}
}

var _ RelationshipDetector = (*relationshipDetector)(nil)

// candidate is one scored column pair between two tables.
type candidate struct {
	source       *TableData
	target       *TableData
	sourceColumn string
	targetColumn string
	matchRate    float64
}

func (d *relationshipDetector) Detect(projectID uuid.UUID, tables []TableData) []models.Relationship {
	var out []models.Relationship

	// Unordered table pairs; both directions are scored and only the better
	// one survives, so no reverse duplicates are emitted.
	for i := 0; i < len(tables); i++ {
		for j := i + 1; j < len(tables); j++ {
			forward := d.bestCandidate(&tables[i], &tables[j])
			backward := d.bestCandidate(&tables[j], &tables[i])

			best := forward
			if best == nil || (backward != nil && backward.matchRate > best.matchRate) {
				best = backward
			}
			if best == nil {
				continue
			}

			rel := d.buildRelationship(projectID, best)
			out = append(out, rel)

			d.logger.Info("relationship candidate scored",
				zap.String("source", rel.SourceTable+"."+rel.SourceColumn),
				zap.String("target", rel.TargetTable+"."+rel.TargetColumn),
				zap.Float64("match_rate", rel.MatchRate),
				zap.String("status", string(rel.Status)))
		}
	}

	return out
}

// bestCandidate scores every name-linked, type-compatible column pair from
// source to target and keeps the highest match rate.
func (d *relationshipDetector) bestCandidate(source, target *TableData) *candidate {
	var best *candidate

	for _, sc := range source.Dataset.Columns {
		for _, tc := range target.Dataset.Columns {
			if !columnsNameLinked(sc, tc) {
				continue
			}
			if !typesCompatible(source.Schema.TypeOf(sc), target.Schema.TypeOf(tc)) {
				continue
			}

			rate := matchRate(source.Dataset, sc, target.Dataset, tc)
			if best == nil || rate > best.matchRate {
				best = &candidate{
					source:       source,
					target:       target,
					sourceColumn: sc,
					targetColumn: tc,
					matchRate:    rate,
				}
			}
		}
	}

	return best
}

func (d *relationshipDetector) buildRelationship(projectID uuid.UUID, c *candidate) models.Relationship {
	status := models.RelationshipInvalid
	if c.matchRate >= models.ValidMatchRateThreshold {
		status = models.RelationshipValid
	}

	// 1:many runs from the side whose column is unique to the side whose
	// column is not. The relationship's source is the referencing (many)
	// side, so swap when the detector's source column is the unique one.
	sourceColumn, targetColumn := c.sourceColumn, c.targetColumn
	sourceTable, targetTable := c.source.Name, c.target.Name
	if columnIsUnique(c.source.Dataset, c.sourceColumn) && !columnIsUnique(c.target.Dataset, c.targetColumn) {
		sourceTable, targetTable = c.target.Name, c.source.Name
		sourceColumn, targetColumn = c.targetColumn, c.sourceColumn
	}

	return models.Relationship{
		ID:           uuid.New(),
		ProjectID:    projectID,
		SourceTable:  sourceTable,
		SourceColumn: sourceColumn,
		TargetTable:  targetTable,
		TargetColumn: targetColumn,
		MatchRate:    c.matchRate,
		Status:       status,
		Kind:         models.RelationshipOneToMany,
		CreatedAt:    time.Now(),
	}
}

// columnsNameLinked reports whether two column names refer to the same
// entity: equal after normalisation, or linked through an id-affix form
// (<name>_id, <name>id, id_<name>).
func columnsNameLinked(a, b string) bool {
	na, nb := normalizeColumn(a), normalizeColumn(b)
	if na == nb {
		return true
	}
	ba, bb := idBase(na), idBase(nb)
	if ba != "" && (ba == nb || ba == bb) {
		return true
	}
	return bb != "" && bb == na
}

// idBase strips an id affix from a normalised column name. Returns "" when
// no affix is present.
func idBase(n string) string {
	if len(n) <= 2 {
		return ""
	}
	if strings.HasSuffix(n, "id") {
		return strings.TrimSuffix(n, "id")
	}
	if strings.HasPrefix(n, "id") {
		return strings.TrimPrefix(n, "id")
	}
	return ""
}

// typesCompatible fails fast on pairs that cannot reference each other.
// Identifier-ish types are mutually joinable; format-typed columns only join
// their own kind.
func typesCompatible(a, b models.ColumnType) bool {
	if a == b {
		return true
	}
	joinable := func(t models.ColumnType) bool {
		switch t {
		case models.ColumnTypeNumeric, models.ColumnTypeTextID, models.ColumnTypeText, models.ColumnTypeCategorical:
			return true
		default:
			return false
		}
	}
	return joinable(a) && joinable(b)
}

// matchRate is |distinct values of source column found in target column| /
// |distinct non-null values of source column|.
func matchRate(source *models.Dataset, sourceColumn string, target *models.Dataset, targetColumn string) float64 {
	targetValues := make(map[string]struct{})
	for _, row := range target.Rows {
		v := row.Get(targetColumn)
		if v.IsNull() {
			continue
		}
		targetValues[v.Raw()] = struct{}{}
	}

	sourceValues := make(map[string]struct{})
	for _, row := range source.Rows {
		v := row.Get(sourceColumn)
		if v.IsNull() {
			continue
		}
		sourceValues[v.Raw()] = struct{}{}
	}
	if len(sourceValues) == 0 {
		return 0
	}

	matched := 0
	for v := range sourceValues {
		if _, ok := targetValues[v]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(sourceValues))
}

// columnIsUnique reports whether every non-null value in the column is
// distinct and the column covers every row.
func columnIsUnique(ds *models.Dataset, column string) bool {
	seen := make(map[string]struct{}, len(ds.Rows))
	for _, row := range ds.Rows {
		v := row.Get(column)
		if v.IsNull() {
			return false
		}
		raw := v.Raw()
		if _, dup := seen[raw]; dup {
			return false
		}
		seen[raw] = struct{}{}
	}
	return len(seen) == len(ds.Rows)
}
