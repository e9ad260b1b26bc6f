package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueNullSpellings(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		want  bool
	}{
		{"explicit null", Null(), true},
		{"empty string", String(""), true},
		{"whitespace", String("   "), true},
		{"null spelled out", String("NULL"), true},
		{"n/a", String("n/a"), true},
		{"zero is not null", Int(0, "0"), false},
		{"false is not null", Bool(false, "false"), false},
		{"text", String("alice"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.value.IsNull())
		})
	}
}

func TestValueAsFloat(t *testing.T) {
	f, ok := Int(42, "42").AsFloat()
	require.True(t, ok)
	assert.Equal(t, 42.0, f)

	f, ok = String("1,234.50").AsFloat()
	require.True(t, ok)
	assert.Equal(t, 1234.5, f)

	_, ok = String("abc").AsFloat()
	assert.False(t, ok)

	_, ok = Null().AsFloat()
	assert.False(t, ok)
}

func TestValueJSONRoundTrip(t *testing.T) {
	row := Row{
		RowNumber: 1,
		Cells: map[string]Value{
			"name":   String("Alice"),
			"age":    Int(30, "30"),
			"score":  Float(97.5, "97.5"),
			"active": Bool(true, "true"),
			"note":   Null(),
		},
	}

	data, err := json.Marshal(row)
	require.NoError(t, err)

	var back Row
	require.NoError(t, json.Unmarshal(data, &back))

	assert.Equal(t, KindString, back.Cells["name"].Kind())
	assert.Equal(t, "Alice", back.Cells["name"].Raw())
	assert.Equal(t, KindInt, back.Cells["age"].Kind())
	assert.Equal(t, KindFloat, back.Cells["score"].Kind())
	b, ok := back.Cells["active"].AsBool()
	require.True(t, ok)
	assert.True(t, b)
	assert.True(t, back.Cells["note"].IsNull())
}

func TestValueEqualIsCaseSensitive(t *testing.T) {
	// Case folding is a deduplication concern, not a Value concern.
	assert.False(t, String("Alice").Equal(String("alice")))
	assert.True(t, String("alice").Equal(String("alice")))
	assert.True(t, Null().Equal(String("")))
}

func TestDatasetNullCount(t *testing.T) {
	d := &Dataset{
		Columns: []string{"a", "b"},
		Rows: []Row{
			{RowNumber: 1, Cells: map[string]Value{"a": String("x"), "b": Null()}},
			{RowNumber: 2, Cells: map[string]Value{"a": String(""), "b": String("y")}},
		},
	}
	assert.Equal(t, 2, d.NullCount())
}

func TestCleaningConfigValidate(t *testing.T) {
	median := ImputeMedian
	bogus := ImputationStrategy("DROP")

	ok := CleaningConfig{
		Imputation: map[string]*ImputationStrategy{"amount": &median, "skip": nil},
		Outliers:   OutlierConfig{Enabled: true, Method: OutlierMethodIQR, Threshold: 1.5},
		Deduplication: DedupConfig{
			Enabled:  true,
			Strategy: DedupKeepFirst,
		},
		Standardization: map[string]StandardizationRule{"email": StandardizeLowercase},
	}
	require.NoError(t, ok.Validate())

	bad := ok
	bad.Imputation = map[string]*ImputationStrategy{"amount": &bogus}
	require.Error(t, bad.Validate())

	bad = ok
	bad.Outliers.Threshold = -1
	require.Error(t, bad.Validate())

	bad = ok
	bad.Standardization = map[string]StandardizationRule{"email": "UPPER"}
	require.Error(t, bad.Validate())
}

func TestStageIndexFollowsFixedOrder(t *testing.T) {
	assert.Equal(t, 0, StageIndex(OpImputation))
	assert.Equal(t, 1, StageIndex(OpOutliers))
	assert.Equal(t, 2, StageIndex(OpDeduplication))
	assert.Equal(t, 3, StageIndex(OpStandardization))
	assert.Equal(t, -1, StageIndex(CleaningOperation("unknown")))
}
