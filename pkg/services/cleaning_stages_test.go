package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataloom-io/loom-engine/pkg/models"
	"github.com/dataloom-io/loom-engine/pkg/typedetect"
)

func datasetOf(columns []string, rows ...map[string]models.Value) *models.Dataset {
	ds := &models.Dataset{Columns: columns}
	for i, cells := range rows {
		ds.Rows = append(ds.Rows, models.Row{RowNumber: i + 1, Cells: cells})
	}
	return ds
}

func strategy(s models.ImputationStrategy) *models.ImputationStrategy {
	return &s
}

func TestImputeMedianFillsNulls(t *testing.T) {
	ds := datasetOf([]string{"amount"},
		map[string]models.Value{"amount": models.Float(10, "10")},
		map[string]models.Value{"amount": models.Null()},
		map[string]models.Value{"amount": models.Float(20, "20")},
		map[string]models.Value{"amount": models.Float(30, "30")},
	)

	applyImputation(ds, map[string]*models.ImputationStrategy{"amount": strategy(models.ImputeMedian)})

	v := ds.Rows[1].Get("amount")
	require.False(t, v.IsNull())
	f, ok := v.AsFloat()
	require.True(t, ok)
	assert.Equal(t, 20.0, f)
}

func TestImputeMedianEvenCountAverages(t *testing.T) {
	ds := datasetOf([]string{"n"},
		map[string]models.Value{"n": models.Float(1, "1")},
		map[string]models.Value{"n": models.Float(2, "2")},
		map[string]models.Value{"n": models.Float(3, "3")},
		map[string]models.Value{"n": models.Float(4, "4")},
		map[string]models.Value{"n": models.Null()},
	)

	applyImputation(ds, map[string]*models.ImputationStrategy{"n": strategy(models.ImputeMedian)})

	f, ok := ds.Rows[4].Get("n").AsFloat()
	require.True(t, ok)
	assert.Equal(t, 2.5, f)
}

func TestImputeModeTieBreaksByFirstSeen(t *testing.T) {
	ds := datasetOf([]string{"plan"},
		map[string]models.Value{"plan": models.String("pro")},
		map[string]models.Value{"plan": models.String("basic")},
		map[string]models.Value{"plan": models.String("basic")},
		map[string]models.Value{"plan": models.String("pro")},
		map[string]models.Value{"plan": models.Null()},
	)

	applyImputation(ds, map[string]*models.ImputationStrategy{"plan": strategy(models.ImputeMode)})

	assert.Equal(t, "pro", ds.Rows[4].Get("plan").Raw())
}

func TestImputeForwardFillLeavesLeadingNulls(t *testing.T) {
	ds := datasetOf([]string{"date"},
		map[string]models.Value{"date": models.Null()},
		map[string]models.Value{"date": models.String("2024-01-02")},
		map[string]models.Value{"date": models.Null()},
		map[string]models.Value{"date": models.String("2024-01-05")},
		map[string]models.Value{"date": models.Null()},
	)

	leading := applyImputation(ds, map[string]*models.ImputationStrategy{"date": strategy(models.ImputeForwardFill)})

	assert.True(t, ds.Rows[0].Get("date").IsNull())
	assert.Equal(t, "2024-01-02", ds.Rows[2].Get("date").Raw())
	assert.Equal(t, "2024-01-05", ds.Rows[4].Get("date").Raw())
	assert.Equal(t, map[string]int{"date": 1}, leading)
}

func TestImputationSkipsNilStrategy(t *testing.T) {
	ds := datasetOf([]string{"note"},
		map[string]models.Value{"note": models.Null()},
	)

	leading := applyImputation(ds, map[string]*models.ImputationStrategy{"note": nil})

	assert.True(t, ds.Rows[0].Get("note").IsNull())
	assert.Empty(t, leading)
}

func TestIQRFlagRowsDetectsExtremeValue(t *testing.T) {
	raws := []float64{1, 2, 2, 3, 3, 3, 4, 4, 100}
	ds := &models.Dataset{Columns: []string{"value"}}
	for i, f := range raws {
		ds.Rows = append(ds.Rows, models.Row{
			RowNumber: i + 1,
			Cells:     map[string]models.Value{"value": models.Float(f, "")},
		})
	}

	flagged := iqrFlagRows(ds, "value", 1.5)

	assert.Equal(t, []int{9}, flagged)
	assert.Len(t, ds.Rows, 9, "flagging must not drop rows")
}

func TestApplyOutliersSkipsLowCardinalityColumns(t *testing.T) {
	// Only 5 distinct values, below the eligibility floor.
	ds := datasetOf([]string{"value"})
	for i, f := range []float64{1, 2, 2, 3, 3, 3, 4, 4, 100} {
		ds.Rows = append(ds.Rows, models.Row{
			RowNumber: i + 1,
			Cells:     map[string]models.Value{"value": models.Float(f, "")},
		})
	}
	schema := &models.Schema{Types: map[string]models.ColumnType{"value": models.ColumnTypeNumeric}}

	flagged := applyOutliers(ds, schema, models.OutlierConfig{
		Enabled:   true,
		Method:    models.OutlierMethodIQR,
		Threshold: 1.5,
	})

	assert.Empty(t, flagged)
}

func TestApplyOutliersFlagsWithoutRemoving(t *testing.T) {
	ds := datasetOf([]string{"value"})
	for i := 1; i <= 20; i++ {
		f := float64(i)
		if i == 20 {
			f = 1000
		}
		ds.Rows = append(ds.Rows, models.Row{
			RowNumber: i,
			Cells:     map[string]models.Value{"value": models.Float(f, "")},
		})
	}
	schema := &models.Schema{Types: map[string]models.ColumnType{"value": models.ColumnTypeNumeric}}

	flagged := applyOutliers(ds, schema, models.OutlierConfig{
		Enabled:   true,
		Method:    models.OutlierMethodIQR,
		Threshold: 1.5,
	})

	assert.True(t, flagged[20])
	assert.Len(t, ds.Rows, 20)
}

func TestApplyOutliersRemoveDropsFlaggedRows(t *testing.T) {
	ds := datasetOf([]string{"value"})
	for i := 1; i <= 20; i++ {
		f := float64(i)
		if i == 20 {
			f = 1000
		}
		ds.Rows = append(ds.Rows, models.Row{
			RowNumber: i,
			Cells:     map[string]models.Value{"value": models.Float(f, "")},
		})
	}
	schema := &models.Schema{Types: map[string]models.ColumnType{"value": models.ColumnTypeNumeric}}

	flagged := applyOutliers(ds, schema, models.OutlierConfig{
		Enabled:   true,
		Method:    models.OutlierMethodIQR,
		Threshold: 1.5,
		Remove:    true,
	})

	assert.True(t, flagged[20])
	require.Len(t, ds.Rows, 19)
	for _, row := range ds.Rows {
		assert.NotEqual(t, 20, row.RowNumber)
	}
}

func TestApplyOutliersIgnoresNonNumericColumns(t *testing.T) {
	ds := datasetOf([]string{"name"})
	for i := 1; i <= 20; i++ {
		ds.Rows = append(ds.Rows, models.Row{
			RowNumber: i,
			Cells:     map[string]models.Value{"name": models.String("a")},
		})
	}
	schema := &models.Schema{Types: map[string]models.ColumnType{"name": models.ColumnTypeText}}

	flagged := applyOutliers(ds, schema, models.OutlierConfig{
		Enabled:   true,
		Method:    models.OutlierMethodIQR,
		Threshold: 1.5,
	})

	assert.Empty(t, flagged)
}

func TestApplyDedupCaseInsensitiveOnTextColumns(t *testing.T) {
	ds := datasetOf([]string{"id", "name"},
		map[string]models.Value{"id": models.Int(1, "1"), "name": models.String("Alice")},
		map[string]models.Value{"id": models.Int(1, "1"), "name": models.String("alice")},
		map[string]models.Value{"id": models.Int(2, "2"), "name": models.String("Bob")},
	)
	schema := &models.Schema{Types: map[string]models.ColumnType{
		"id":   models.ColumnTypeNumeric,
		"name": models.ColumnTypeText,
	}}

	removed := applyDedup(ds, schema, models.DedupConfig{
		Enabled:  true,
		Strategy: models.DedupKeepFirst,
	})

	assert.Equal(t, 1, removed)
	require.Len(t, ds.Rows, 2)
	// keep_first retains the earlier spelling.
	assert.Equal(t, "Alice", ds.Rows[0].Get("name").Raw())
	assert.Equal(t, "Bob", ds.Rows[1].Get("name").Raw())
}

func TestApplyDedupNumericColumnsCompareExactly(t *testing.T) {
	ds := datasetOf([]string{"code"},
		map[string]models.Value{"code": models.String("A10")},
		map[string]models.Value{"code": models.String("a10")},
	)
	schema := &models.Schema{Types: map[string]models.ColumnType{"code": models.ColumnTypeTextID}}

	removed := applyDedup(ds, schema, models.DedupConfig{Enabled: true, Strategy: models.DedupKeepFirst})

	assert.Equal(t, 0, removed)
	assert.Len(t, ds.Rows, 2)
}

func TestApplyDedupKeyColumnsSubset(t *testing.T) {
	ds := datasetOf([]string{"email", "visits"},
		map[string]models.Value{"email": models.String("a@x.com"), "visits": models.Int(1, "1")},
		map[string]models.Value{"email": models.String("A@X.com"), "visits": models.Int(9, "9")},
	)
	schema := &models.Schema{Types: map[string]models.ColumnType{
		"email":  models.ColumnTypeText,
		"visits": models.ColumnTypeNumeric,
	}}

	removed := applyDedup(ds, schema, models.DedupConfig{
		Enabled:    true,
		Strategy:   models.DedupKeepFirst,
		KeyColumns: []string{"email"},
	})

	assert.Equal(t, 1, removed)
	require.Len(t, ds.Rows, 1)
	assert.Equal(t, "1", ds.Rows[0].Get("visits").Raw())
}

func TestCountDuplicateRowsDoesNotModify(t *testing.T) {
	ds := datasetOf([]string{"name"},
		map[string]models.Value{"name": models.String("x")},
		map[string]models.Value{"name": models.String("x")},
		map[string]models.Value{"name": models.String("y")},
	)
	schema := &models.Schema{Types: map[string]models.ColumnType{"name": models.ColumnTypeText}}

	assert.Equal(t, 1, countDuplicateRows(ds, schema))
	assert.Len(t, ds.Rows, 3)
}

func TestStandardizeE164(t *testing.T) {
	s, ok := formatE164("(555) 123-4567", "1")
	require.True(t, ok)
	assert.Equal(t, "+1-55512-34567", s)

	// 12 digits carry their own country code.
	s, ok = formatE164("+44 7911 123456", "1")
	require.True(t, ok)
	assert.Equal(t, "+44-79111-23456", s)

	_, ok = formatE164("12345", "1")
	assert.False(t, ok)

	_, ok = formatE164("1234567890123456", "1")
	assert.False(t, ok)
}

func TestApplyStandardizationRules(t *testing.T) {
	ds := datasetOf([]string{"phone", "email", "signup", "amount"},
		map[string]models.Value{
			"phone":  models.String("(555) 123-4567"),
			"email":  models.String("  USER@Example.COM "),
			"signup": models.String("15/01/2024"),
			"amount": models.String("1,234.5"),
		},
		map[string]models.Value{
			"phone":  models.String("12"),
			"email":  models.String("b@c.io"),
			"signup": models.String("not a date"),
			"amount": models.String("abc"),
		},
	)

	failures := applyStandardization(ds, map[string]models.StandardizationRule{
		"phone":  models.StandardizeE164,
		"email":  models.StandardizeLowercase,
		"signup": models.StandardizeISO8601,
		"amount": models.StandardizeNumber,
	}, "1")

	assert.Equal(t, "+1-55512-34567", ds.Rows[0].Get("phone").Raw())
	assert.Equal(t, "user@example.com", ds.Rows[0].Get("email").Raw())
	assert.Equal(t, "2024-01-15", ds.Rows[0].Get("signup").Raw())
	assert.Equal(t, "1234.50", ds.Rows[0].Get("amount").Raw())

	// Unparseable values stay put and are counted.
	assert.Equal(t, "12", ds.Rows[1].Get("phone").Raw())
	assert.Equal(t, "not a date", ds.Rows[1].Get("signup").Raw())
	assert.Equal(t, "abc", ds.Rows[1].Get("amount").Raw())
	assert.Equal(t, 1, failures["phone"])
	assert.Equal(t, 1, failures["signup"])
	assert.Equal(t, 1, failures["amount"])
	assert.Zero(t, failures["email"])
}

func TestStandardizationSkipsNulls(t *testing.T) {
	ds := datasetOf([]string{"amount"},
		map[string]models.Value{"amount": models.Null()},
	)

	failures := applyStandardization(ds, map[string]models.StandardizationRule{
		"amount": models.StandardizeNumber,
	}, "1")

	assert.True(t, ds.Rows[0].Get("amount").IsNull())
	assert.Empty(t, failures)
}

func TestPercentileMatchesQuartiles(t *testing.T) {
	sorted := []float64{1, 2, 2, 3, 3, 3, 4, 4, 100}
	q1 := typedetect.Percentile(sorted, 0.25)
	q3 := typedetect.Percentile(sorted, 0.75)
	assert.Equal(t, 2.0, q1)
	assert.Equal(t, 4.0, q3)
}
