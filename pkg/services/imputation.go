package services

import (
	"sort"
	"strconv"

	"github.com/dataloom-io/loom-engine/pkg/models"
)

// applyImputation fills nulls in place according to the per-column strategy
// map. A nil strategy skips the column. Returns the per-column count of
// leading nulls left in place by FORWARD-FILL.
func applyImputation(ds *models.Dataset, config map[string]*models.ImputationStrategy) map[string]int {
	leadingNulls := make(map[string]int)

	for _, col := range ds.Columns {
		strat, ok := config[col]
		if !ok || strat == nil {
			continue
		}

		switch *strat {
		case models.ImputeMedian:
			imputeMedian(ds, col)
		case models.ImputeMode:
			imputeMode(ds, col)
		case models.ImputeForwardFill:
			if leading := imputeForwardFill(ds, col); leading > 0 {
				leadingNulls[col] = leading
			}
		}
	}

	return leadingNulls
}

// imputeMedian replaces nulls with the median of the column's non-null
// numeric values in the current snapshot.
func imputeMedian(ds *models.Dataset, col string) {
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
		return
	}
	sort.Float64s(numbers)

	median := medianOfSorted(numbers)
	fill := models.Float(median, strconv.FormatFloat(median, 'f', -1, 64))

	for i := range ds.Rows {
		if ds.Rows[i].Get(col).IsNull() {
			ds.Rows[i].Cells[col] = fill
		}
	}
}

// imputeMode replaces nulls with the most frequent non-null value, breaking
// ties by first encountered in row order.
func imputeMode(ds *models.Dataset, col string) {
	counts := make(map[string]int)
	var firstSeen []string
	values := make(map[string]models.Value)

	for _, row := range ds.Rows {
		v := row.Get(col)
		if v.IsNull() {
			continue
		}
		raw := v.Raw()
		if _, seen := counts[raw]; !seen {
			firstSeen = append(firstSeen, raw)
			values[raw] = v
		}
		counts[raw]++
	}
	if len(firstSeen) == 0 {
		return
	}

	best := firstSeen[0]
	for _, raw := range firstSeen[1:] {
		if counts[raw] > counts[best] {
			best = raw
		}
	}
	fill := values[best]

	for i := range ds.Rows {
		if ds.Rows[i].Get(col).IsNull() {
			ds.Rows[i].Cells[col] = fill
		}
	}
}

// imputeForwardFill replaces each null with the previous row's value.
// Leading nulls remain null; their count is returned.
func imputeForwardFill(ds *models.Dataset, col string) int {
	leading := 0
	var prev models.Value
	havePrev := false

	for i := range ds.Rows {
		v := ds.Rows[i].Get(col)
		if !v.IsNull() {
			prev = v
			havePrev = true
			continue
		}
		if !havePrev {
			leading++
			continue
		}
		ds.Rows[i].Cells[col] = prev
	}

	return leading
}

func medianOfSorted(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
