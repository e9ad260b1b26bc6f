package models

import "slices"

// ColumnType is the canonical semantic type inferred for a column.
type ColumnType string

const (
	ColumnTypeNumeric     ColumnType = "numeric"
	ColumnTypeDate        ColumnType = "date"
	ColumnTypePhone       ColumnType = "phone"
	ColumnTypeEmail       ColumnType = "email"
	ColumnTypeBoolean     ColumnType = "boolean"
	ColumnTypeCategorical ColumnType = "categorical"
	ColumnTypeTextID      ColumnType = "text_id"
	ColumnTypeText        ColumnType = "text"
)

// ValidColumnTypes contains all valid column type values.
var ValidColumnTypes = []ColumnType{
	ColumnTypeNumeric,
	ColumnTypeDate,
	ColumnTypePhone,
	ColumnTypeEmail,
	ColumnTypeBoolean,
	ColumnTypeCategorical,
	ColumnTypeTextID,
	ColumnTypeText,
}

// IsValidColumnType checks whether t is a known column type.
func IsValidColumnType(t ColumnType) bool {
	return slices.Contains(ValidColumnTypes, t)
}

// ColumnStats holds per-column summary statistics sufficient for imputation
// and outlier detection. Numeric aggregates are nil for non-numeric columns;
// Mode is nil for numeric columns.
type ColumnStats struct {
	Name        string     `json:"name"`
	Type        ColumnType `json:"type"`
	Count       int        `json:"count"`
	NullCount   int        `json:"null_count"`
	UniqueCount int        `json:"unique_count"`

	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Mean   *float64 `json:"mean,omitempty"`
	Median *float64 `json:"median,omitempty"`
	Std    *float64 `json:"std,omitempty"`
	Q1     *float64 `json:"q1,omitempty"`
	Q3     *float64 `json:"q3,omitempty"`

	Mode *string `json:"mode,omitempty"`

	// Samples holds up to 5 example non-null values.
	Samples []string `json:"samples,omitempty"`
}

// Schema maps column names to their detected types and stats, preserving the
// dataset's column order.
type Schema struct {
	Columns []string                `json:"columns"`
	Types   map[string]ColumnType   `json:"types"`
	Stats   map[string]*ColumnStats `json:"stats"`
}

// TypeOf returns the detected type for a column, defaulting to text.
func (s *Schema) TypeOf(column string) ColumnType {
	if t, ok := s.Types[column]; ok {
		return t
	}
	return ColumnTypeText
}
