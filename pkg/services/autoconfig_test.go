package services

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataloom-io/loom-engine/pkg/models"
)

func autoConfigSchema(types map[string]models.ColumnType, uniqueCounts map[string]int) *models.Schema {
	stats := make(map[string]*models.ColumnStats, len(types))
	for col := range types {
		stats[col] = &models.ColumnStats{Name: col, Type: types[col], UniqueCount: uniqueCounts[col]}
	}
	return &models.Schema{Types: types, Stats: stats}
}

func TestBuildAutoConfigPerTypeMappings(t *testing.T) {
	columns := []string{"amount", "signup", "phone", "email", "active", "plan", "order_id", "notes"}
	types := map[string]models.ColumnType{
		"amount":   models.ColumnTypeNumeric,
		"signup":   models.ColumnTypeDate,
		"phone":    models.ColumnTypePhone,
		"email":    models.ColumnTypeEmail,
		"active":   models.ColumnTypeBoolean,
		"plan":     models.ColumnTypeCategorical,
		"order_id": models.ColumnTypeTextID,
		"notes":    models.ColumnTypeText,
	}
	ds := datasetOf(columns)
	schema := autoConfigSchema(types, map[string]int{"amount": 50})

	config := BuildAutoConfig(ds, schema)

	require.NoError(t, config.Validate())

	require.NotNil(t, config.Imputation["amount"])
	assert.Equal(t, models.ImputeMedian, *config.Imputation["amount"])
	require.NotNil(t, config.Imputation["signup"])
	assert.Equal(t, models.ImputeForwardFill, *config.Imputation["signup"])
	require.NotNil(t, config.Imputation["phone"])
	assert.Equal(t, models.ImputeMode, *config.Imputation["phone"])
	require.NotNil(t, config.Imputation["email"])
	assert.Equal(t, models.ImputeMode, *config.Imputation["email"])
	require.NotNil(t, config.Imputation["active"])
	assert.Equal(t, models.ImputeMode, *config.Imputation["active"])
	require.NotNil(t, config.Imputation["plan"])
	assert.Equal(t, models.ImputeMode, *config.Imputation["plan"])

	// ID and free-text columns are present but skipped.
	id, ok := config.Imputation["order_id"]
	assert.True(t, ok)
	assert.Nil(t, id)
	notes, ok := config.Imputation["notes"]
	assert.True(t, ok)
	assert.Nil(t, notes)

	assert.Equal(t, models.StandardizeISO8601, config.Standardization["signup"])
	assert.Equal(t, models.StandardizeE164, config.Standardization["phone"])
	assert.Equal(t, models.StandardizeLowercase, config.Standardization["email"])
	assert.NotContains(t, config.Standardization, "amount")
	assert.NotContains(t, config.Standardization, "notes")
}

func TestBuildAutoConfigOutlierEligibility(t *testing.T) {
	ds := datasetOf([]string{"amount"})
	types := map[string]models.ColumnType{"amount": models.ColumnTypeNumeric}

	// At the floor: not eligible.
	config := BuildAutoConfig(ds, autoConfigSchema(types, map[string]int{"amount": 10}))
	assert.False(t, config.Outliers.Enabled)

	// Above the floor: eligible, IQR with the default threshold, flag only.
	config = BuildAutoConfig(ds, autoConfigSchema(types, map[string]int{"amount": 11}))
	assert.True(t, config.Outliers.Enabled)
	assert.Equal(t, models.OutlierMethodIQR, config.Outliers.Method)
	assert.Equal(t, 1.5, config.Outliers.Threshold)
	assert.False(t, config.Outliers.Remove)
}

func TestBuildAutoConfigDedupFromSample(t *testing.T) {
	ds := datasetOf([]string{"name"},
		map[string]models.Value{"name": models.String("a")},
		map[string]models.Value{"name": models.String("b")},
	)
	schema := autoConfigSchema(map[string]models.ColumnType{"name": models.ColumnTypeText}, nil)

	config := BuildAutoConfig(ds, schema)
	assert.False(t, config.Deduplication.Enabled)
	assert.Equal(t, models.DedupKeepFirst, config.Deduplication.Strategy)

	ds.Rows = append(ds.Rows, models.Row{RowNumber: 3, Cells: map[string]models.Value{"name": models.String("a")}})
	config = BuildAutoConfig(ds, schema)
	assert.True(t, config.Deduplication.Enabled)
}

func TestBuildAutoConfigDedupSampleIsBounded(t *testing.T) {
	// The only duplicate pair sits beyond the sample window.
	ds := datasetOf([]string{"n"})
	for i := 0; i < dedupSampleSize; i++ {
		ds.Rows = append(ds.Rows, models.Row{
			RowNumber: i + 1,
			Cells:     map[string]models.Value{"n": models.String(strconv.Itoa(i))},
		})
	}
	ds.Rows = append(ds.Rows,
		models.Row{RowNumber: dedupSampleSize + 1, Cells: map[string]models.Value{"n": models.String("0")}},
	)
	schema := autoConfigSchema(map[string]models.ColumnType{"n": models.ColumnTypeText}, nil)

	config := BuildAutoConfig(ds, schema)
	assert.False(t, config.Deduplication.Enabled)
}
