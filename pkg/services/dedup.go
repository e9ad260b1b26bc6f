package services

import (
	"crypto/sha256"
	"strings"

	"github.com/dataloom-io/loom-engine/pkg/models"
)

// dedupKey hashes the normalised key tuple of a row. Text and categorical
// cells compare case-insensitively; everything else compares exactly. SHA-256
// over a canonical encoding keeps the key collision-safe for observed inputs.
func dedupKey(row models.Row, keyColumns []string, schema *models.Schema) [32]byte {
	h := sha256.New()
	for _, col := range keyColumns {
		v := row.Get(col)
		var cell string
		if !v.IsNull() {
			cell = v.Raw()
			switch schema.TypeOf(col) {
			case models.ColumnTypeText, models.ColumnTypeCategorical:
				cell = strings.ToLower(strings.TrimSpace(cell))
			}
		}
		h.Write([]byte(col))
		h.Write([]byte{0x1f})
		h.Write([]byte(cell))
		h.Write([]byte{0x1e})
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// applyDedup removes rows that duplicate an earlier row's normalised key
// tuple, keeping the earliest by row number. Returns the number of rows
// removed. An empty key column list means all columns participate.
func applyDedup(ds *models.Dataset, schema *models.Schema, config models.DedupConfig) int {
	if !config.Enabled {
		return 0
	}

	keyColumns := config.KeyColumns
	if len(keyColumns) == 0 {
		keyColumns = ds.Columns
	}

	seen := make(map[[32]byte]bool, len(ds.Rows))
	kept := ds.Rows[:0]
	removed := 0

	for _, row := range ds.Rows {
		key := dedupKey(row, keyColumns, schema)
		if seen[key] {
			removed++
			continue
		}
		seen[key] = true
		kept = append(kept, row)
	}
	ds.Rows = kept

	return removed
}

// countDuplicateRows reports how many rows share a normalised full-row key
// with an earlier row, without modifying the dataset. Used for stage stats.
func countDuplicateRows(ds *models.Dataset, schema *models.Schema) int {
	seen := make(map[[32]byte]bool, len(ds.Rows))
	dupes := 0
	for _, row := range ds.Rows {
		key := dedupKey(row, ds.Columns, schema)
		if seen[key] {
			dupes++
			continue
		}
		seen[key] = true
	}
	return dupes
}
