package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dataloom-io/loom-engine/pkg/apperrors"
	"github.com/dataloom-io/loom-engine/pkg/models"
)

// recencyBonus is added to every KPI score when the user's column universe
// contains a date-typed column.
const recencyBonus = 0.1

// maxTopKpis caps the pre-selection list.
const maxTopKpis = 10

// KpiExtractor ranks the domain's KPI library against a user column
// universe: synonym resolution, feasibility, then scoring.
type KpiExtractor interface {
	Extract(domain string, columns []string, types map[string]models.ColumnType) (*models.KpiExtractionJob, error)
}

type kpiExtractor struct {
	logger *zap.Logger
}

// NewKpiExtractor creates the extractor over the built-in library.
func NewKpiExtractor(logger *zap.Logger) KpiExtractor {
	return &kpiExtractor{logger: logger.Named("kpi_extractor")}
}

var _ KpiExtractor = (*kpiExtractor)(nil)

func (e *kpiExtractor) Extract(domain string, columns []string, types map[string]models.ColumnType) (*models.KpiExtractionJob, error) {
	defs, ok := KpiLibraryFor(domain)
	if !ok {
		return nil, apperrors.NewPipelineError(apperrors.TagUnknownDomain, "domain %q is not in the KPI library", domain)
	}
	synonyms, _ := SynonymsFor(domain)

	mapping, unresolved := ResolveSynonyms(domain, columns)

	hasDateColumn := false
	for _, t := range types {
		if t == models.ColumnTypeDate {
			hasDateColumn = true
			break
		}
	}
	bonus := 0.0
	if hasDateColumn {
		bonus = recencyBonus
	}

	job := &models.KpiExtractionJob{
		Domain:            domain,
		TotalKpisInLib:    len(defs),
		UnresolvedColumns: unresolved,
		ColumnMapping:     mapping,
		CreatedAt:         time.Now(),
	}

	totalCompleteness := 0.0
	for _, def := range defs {
		available := make(map[string]string, len(def.ColumnsNeeded))
		var missing []string
		for _, canonical := range def.ColumnsNeeded {
			if original, ok := mapping[canonical]; ok {
				available[canonical] = original
			} else {
				missing = append(missing, canonical)
			}
		}

		completeness := float64(len(available)) / float64(len(def.ColumnsNeeded))
		totalCompleteness += completeness

		if completeness >= models.FeasibilityThreshold {
			job.AllFeasible = append(job.AllFeasible, models.RankedKpi{
				KpiDefinition:   def,
				Completeness:    completeness,
				Score:           float64(def.Priority)*(1+completeness) + bonus,
				ResolvedColumns: available,
			})
		} else {
			job.Infeasible = append(job.Infeasible, models.InfeasibleKpi{
				KpiID:          def.KpiID,
				Name:           def.Name,
				Completeness:   completeness,
				MissingColumns: missing,
				Reason:         fmt.Sprintf("missing columns: %s", strings.Join(missing, ", ")),
			})
		}
	}

	job.FeasibleCount = len(job.AllFeasible)
	job.InfeasibleCount = len(job.Infeasible)
	if len(defs) > 0 {
		job.AvgCompleteness = totalCompleteness / float64(len(defs))
	}

	// Descending score, ties by priority then library order. SliceStable
	// preserves library order for full ties.
	sort.SliceStable(job.AllFeasible, func(i, j int) bool {
		a, b := job.AllFeasible[i], job.AllFeasible[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Priority > b.Priority
	})

	top := len(job.AllFeasible)
	if top > maxTopKpis {
		top = maxTopKpis
	}
	job.TopKpis = append([]models.RankedKpi(nil), job.AllFeasible[:top]...)

	e.logger.Info("extracted KPIs",
		zap.String("domain", domain),
		zap.Int("library_size", len(defs)),
		zap.Int("feasible", job.FeasibleCount),
		zap.Int("infeasible", job.InfeasibleCount),
		zap.Int("synonyms_available", len(synonyms)))

	return job, nil
}

// ResolveSynonyms maps the domain's canonical column names onto the user's
// columns. A canonical matches a user column when the canonical itself, or
// any of its synonyms, equals the column after normalisation. The first
// matching user column wins. Unresolved returns user columns that matched no
// canonical. Resolution is idempotent on the produced mapping.
func ResolveSynonyms(domain string, columns []string) (mapping map[string]string, unresolved []string) {
	mapping = make(map[string]string)

	synonyms, _ := SynonymsFor(domain)
	canonicals := canonicalNames(domain)

	matchedUser := make(map[string]bool, len(columns))
	for _, canonical := range canonicals {
		spellings := append([]string{canonical}, synonyms[canonical]...)
		for _, col := range columns {
			if matchedUser[col] {
				continue
			}
			n := normalizeColumn(col)
			for _, spelling := range spellings {
				if normalizeColumn(spelling) == n {
					mapping[canonical] = col
					matchedUser[col] = true
					break
				}
			}
			if _, done := mapping[canonical]; done {
				break
			}
		}
	}

	for _, col := range columns {
		if !matchedUser[col] {
			unresolved = append(unresolved, col)
		}
	}

	return mapping, unresolved
}

// canonicalNames collects the domain's canonical column vocabulary: every
// column any KPI needs, plus synonym-map keys, deduplicated in a stable
// order.
func canonicalNames(domain string) []string {
	seen := make(map[string]bool)
	var out []string

	if defs, ok := KpiLibraryFor(domain); ok {
		for _, def := range defs {
			for _, canonical := range def.ColumnsNeeded {
				if !seen[canonical] {
					seen[canonical] = true
					out = append(out, canonical)
				}
			}
		}
	}

	if synonyms, ok := SynonymsFor(domain); ok {
		keys := make([]string, 0, len(synonyms))
		for k := range synonyms {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}

	return out
}
