package parsers

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/dataloom-io/loom-engine/pkg/apperrors"
	"github.com/dataloom-io/loom-engine/pkg/models"
)

// parseDelimited decodes CSV and TSV files. The first record is the header;
// duplicate headers are de-duplicated with numeric suffixes.
func parseDelimited(path string, comma rune, kind Kind) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.MalformedInput(err, "open %s file", kind)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = comma
	// Ragged rows are tolerated; short rows yield nulls for missing cells.
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return &Result{Kind: kind, Columns: []string{}, Rows: []models.Row{}}, nil
	}
	if err != nil {
		return nil, apperrors.MalformedInput(err, "read %s header", kind)
	}

	columns := dedupeColumns(header)

	var rows []models.Row
	rowNumber := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.MalformedInput(err, "read %s row %d", kind, rowNumber+1)
		}

		rowNumber++
		cells := make(map[string]models.Value, len(columns))
		for i, col := range columns {
			if i < len(record) {
				cells[col] = models.String(record[i])
			} else {
				cells[col] = models.Null()
			}
		}
		rows = append(rows, models.Row{RowNumber: rowNumber, Cells: cells})
	}

	return &Result{Kind: kind, Columns: columns, Rows: rows}, nil
}
