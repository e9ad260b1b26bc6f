package typedetect

import (
	"math"
	"sort"

	"github.com/dataloom-io/loom-engine/pkg/models"
)

const maxSamples = 5

// ComputeStats builds per-column summary statistics. Count is the number of
// non-null cells. Numeric aggregates are computed only for numeric columns;
// other columns get a mode instead.
func ComputeStats(name string, typ models.ColumnType, values []models.Value) *models.ColumnStats {
	stats := &models.ColumnStats{Name: name, Type: typ}

	unique := make(map[string]struct{})
	counts := make(map[string]int)
	var firstSeen []string
	var numbers []float64

	for _, v := range values {
		if v.IsNull() {
			stats.NullCount++
			continue
		}
		stats.Count++
		raw := v.Raw()
		if _, ok := unique[raw]; !ok {
			unique[raw] = struct{}{}
			firstSeen = append(firstSeen, raw)
		}
		counts[raw]++
		if len(stats.Samples) < maxSamples {
			stats.Samples = append(stats.Samples, raw)
		}
		if typ == models.ColumnTypeNumeric {
			if f, ok := v.AsFloat(); ok {
				numbers = append(numbers, f)
			}
		}
	}
	stats.UniqueCount = len(unique)

	if typ == models.ColumnTypeNumeric {
		fillNumericStats(stats, numbers)
	} else if stats.Count > 0 {
		mode := modeOf(counts, firstSeen)
		stats.Mode = &mode
	}

	return stats
}

// modeOf returns the most frequent value, breaking ties by first encountered
// row order.
func modeOf(counts map[string]int, firstSeen []string) string {
	best := ""
	bestCount := 0
	for _, v := range firstSeen {
		if counts[v] > bestCount {
			best = v
			bestCount = counts[v]
		}
	}
	return best
}

func fillNumericStats(stats *models.ColumnStats, numbers []float64) {
	if len(numbers) == 0 {
		return
	}
	sorted := append([]float64(nil), numbers...)
	sort.Float64s(sorted)

	stats.Min = ptr(sorted[0])
	stats.Max = ptr(sorted[len(sorted)-1])

	sum := 0.0
	for _, f := range sorted {
		sum += f
	}
	mean := sum / float64(len(sorted))
	stats.Mean = ptr(mean)

	variance := 0.0
	for _, f := range sorted {
		d := f - mean
		variance += d * d
	}
	stats.Std = ptr(math.Sqrt(variance / float64(len(sorted))))

	stats.Median = ptr(Percentile(sorted, 0.50))
	stats.Q1 = ptr(Percentile(sorted, 0.25))
	stats.Q3 = ptr(Percentile(sorted, 0.75))
}

// Percentile computes the p-th quantile of an ascending-sorted slice using
// linear interpolation between closest ranks.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func ptr(f float64) *float64 { return &f }
