package services

import (
	"sort"

	"github.com/dataloom-io/loom-engine/pkg/models"
	"github.com/dataloom-io/loom-engine/pkg/typedetect"
)

// minOutlierUniqueCount is the eligibility floor: columns with this many or
// fewer distinct values are skipped, not errored.
const minOutlierUniqueCount = 10

// applyOutliers runs IQR detection over every eligible column. Flagged row
// numbers are returned; when remove is set the flagged rows are dropped from
// the dataset.
func applyOutliers(ds *models.Dataset, schema *models.Schema, config models.OutlierConfig) (flagged map[int]bool) {
	flagged = make(map[int]bool)
	if !config.Enabled {
		return flagged
	}

	for _, col := range ds.Columns {
		if schema.TypeOf(col) != models.ColumnTypeNumeric {
			continue
		}
		if uniqueCountOf(ds, col) <= minOutlierUniqueCount {
			continue
		}
		for _, rowNumber := range iqrFlagRows(ds, col, config.Threshold) {
			flagged[rowNumber] = true
		}
	}

	if config.Remove && len(flagged) > 0 {
		kept := ds.Rows[:0]
		for _, row := range ds.Rows {
			if !flagged[row.RowNumber] {
				kept = append(kept, row)
			}
		}
		ds.Rows = kept
	}

	return flagged
}

// iqrFlagRows returns the row numbers whose value in col falls outside
// [Q1 - k*IQR, Q3 + k*IQR].
func iqrFlagRows(ds *models.Dataset, col string, k float64) []int {
	var numbers []float64
	for _, row := range ds.Rows {
		v := row.Get(col)
		if v.IsNull() {
			continue
		}
		if f, ok := v.AsFloat(); ok {
			numbers = append(numbers, f)
		}
	}
	if len(numbers) == 0 {
		return nil
	}
	sort.Float64s(numbers)

	q1 := typedetect.Percentile(numbers, 0.25)
	q3 := typedetect.Percentile(numbers, 0.75)
	iqr := q3 - q1
	lower := q1 - k*iqr
	upper := q3 + k*iqr

	var out []int
	for _, row := range ds.Rows {
		v := row.Get(col)
		if v.IsNull() {
			continue
		}
		f, ok := v.AsFloat()
		if !ok {
			continue
		}
		if f < lower || f > upper {
			out = append(out, row.RowNumber)
		}
	}
	return out
}

func uniqueCountOf(ds *models.Dataset, col string) int {
	unique := make(map[string]struct{})
	for _, row := range ds.Rows {
		v := row.Get(col)
		if v.IsNull() {
			continue
		}
		unique[v.Raw()] = struct{}{}
	}
	return len(unique)
}
