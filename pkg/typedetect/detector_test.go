package typedetect

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataloom-io/loom-engine/pkg/models"
)

func stringValues(raws ...string) []models.Value {
	out := make([]models.Value, len(raws))
	for i, r := range raws {
		out[i] = models.String(r)
	}
	return out
}

func TestDetectType(t *testing.T) {
	tests := []struct {
		name   string
		values []models.Value
		want   models.ColumnType
	}{
		{
			name: "unique ids win over numeric",
			values: func() []models.Value {
				var vs []models.Value
				for i := 0; i < 100; i++ {
					vs = append(vs, models.String(fmt.Sprintf("%d", 1000+i)))
				}
				return vs
			}(),
			want: models.ColumnTypeTextID,
		},
		{
			name:   "numeric with grouping commas",
			values: stringValues("1,200", "950", "3.5", "1,200", "950", "abc"),
			want:   models.ColumnTypeNumeric,
		},
		{
			name:   "dates in mixed layouts",
			values: stringValues("2024-01-15", "15/01/2024", "2024-01-15 10:30:00", "not a date", "2024-02-01", "2024-02-01"),
			want:   models.ColumnTypeDate,
		},
		{
			name:   "phones tolerate punctuation",
			values: stringValues("+1 (555) 123-4567", "555-123-4567", "5551234567", "+1 (555) 123-4567", "n/a"),
			want:   models.ColumnTypePhone,
		},
		{
			name:   "emails",
			values: stringValues("a@example.com", "b@example.org", "c@example.io", "not-an-email", "a@example.com"),
			want:   models.ColumnTypeEmail,
		},
		{
			name:   "booleans from closed set",
			values: stringValues("yes", "no", "Yes", "NO", "yes", "no", "yes", "no", "yes", "maybe"),
			want:   models.ColumnTypeBoolean,
		},
		{
			name: "categorical low cardinality",
			values: func() []models.Value {
				var vs []models.Value
				for i := 0; i < 100; i++ {
					vs = append(vs, models.String([]string{"gold", "silver"}[i%2]))
				}
				return vs
			}(),
			want: models.ColumnTypeCategorical,
		},
		{
			name:   "fallback text",
			values: stringValues("alpha", "beta", "gamma", "alpha", "beta", "gamma", "alpha", "beta"),
			want:   models.ColumnTypeText,
		},
		{
			name:   "all nulls is text",
			values: []models.Value{models.Null(), models.String(""), models.String("N/A")},
			want:   models.ColumnTypeText,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectType(tt.values))
		})
	}
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"2024-03-09", "09/03/2024", "03-09-2024", "2024-03-09 14:00:00"} {
		_, ok := ParseDate(s)
		assert.True(t, ok, s)
	}
	_, ok := ParseDate("next tuesday")
	assert.False(t, ok)
}

func TestComputeStatsNumeric(t *testing.T) {
	values := stringValues("10", "20", "30", "40", "")
	stats := ComputeStats("amount", models.ColumnTypeNumeric, values)

	assert.Equal(t, 4, stats.Count)
	assert.Equal(t, 1, stats.NullCount)
	assert.Equal(t, 4, stats.UniqueCount)
	require.NotNil(t, stats.Median)
	assert.Equal(t, 25.0, *stats.Median)
	require.NotNil(t, stats.Q1)
	assert.Equal(t, 17.5, *stats.Q1)
	require.NotNil(t, stats.Q3)
	assert.Equal(t, 32.5, *stats.Q3)
	assert.Equal(t, 10.0, *stats.Min)
	assert.Equal(t, 40.0, *stats.Max)
	assert.Equal(t, 25.0, *stats.Mean)
	assert.Nil(t, stats.Mode)
}

func TestComputeStatsModeTieBreak(t *testing.T) {
	values := stringValues("b", "a", "b", "a", "c")
	stats := ComputeStats("tier", models.ColumnTypeCategorical, values)

	require.NotNil(t, stats.Mode)
	// b and a tie at two occurrences; first encountered wins.
	assert.Equal(t, "b", *stats.Mode)
	assert.Len(t, stats.Samples, 5)
}

func TestDetectSchema(t *testing.T) {
	ds := &models.Dataset{
		Columns: []string{"amount", "status"},
		Rows: []models.Row{
			{RowNumber: 1, Cells: map[string]models.Value{"amount": models.String("10"), "status": models.String("open")}},
			{RowNumber: 2, Cells: map[string]models.Value{"amount": models.String("20"), "status": models.String("open")}},
			{RowNumber: 3, Cells: map[string]models.Value{"amount": models.String("30"), "status": models.String("closed")}},
		},
	}

	schema := DetectSchema(ds)
	assert.Equal(t, []string{"amount", "status"}, schema.Columns)
	assert.Equal(t, models.ColumnTypeNumeric, schema.TypeOf("amount"))
	require.NotNil(t, schema.Stats["amount"].Median)
	assert.Equal(t, 20.0, *schema.Stats["amount"].Median)
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	assert.Equal(t, 2.5, Percentile(sorted, 0.5))
	assert.Equal(t, 1.75, Percentile(sorted, 0.25))
	assert.Equal(t, 1.0, Percentile(sorted, 0))
	assert.Equal(t, 4.0, Percentile(sorted, 1))
	assert.Equal(t, 7.0, Percentile([]float64{7}, 0.5))
}
