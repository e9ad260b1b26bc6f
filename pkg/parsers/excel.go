package parsers

import (
	"bytes"
	"io"
	"os"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/dataloom-io/loom-engine/pkg/apperrors"
	"github.com/dataloom-io/loom-engine/pkg/models"
)

// ole2Magic is the compound-file header legacy BIFF workbooks start with.
// OOXML workbooks are zip archives and sniff differently.
var ole2Magic = []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}

// parseExcel decodes the first worksheet of a workbook. The reader is picked
// by content, not extension: BIFF containers go through the legacy reader,
// everything else through excelize. Remaining sheet names are recorded in
// metadata under "other_sheets" only.
func parseExcel(path string) (*Result, error) {
	legacy, err := isLegacyWorkbook(path)
	if err != nil {
		return nil, apperrors.MalformedInput(err, "open workbook")
	}
	if legacy {
		return parseLegacyExcel(path)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.MalformedInput(err, "open workbook")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &Result{Kind: KindExcel, Columns: []string{}, Rows: []models.Row{}}, nil
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperrors.MalformedInput(err, "read worksheet %q", sheets[0])
	}

	metadata := map[string]any{"sheet": sheets[0]}
	if len(sheets) > 1 {
		metadata["other_sheets"] = sheets[1:]
	}
	return workbookResult(records, metadata), nil
}

// parseLegacyExcel reads a BIFF (.xls) workbook.
func parseLegacyExcel(path string) (*Result, error) {
	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, apperrors.MalformedInput(err, "open workbook")
	}

	if wb.NumSheets() == 0 {
		return &Result{Kind: KindExcel, Columns: []string{}, Rows: []models.Row{}}, nil
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return &Result{Kind: KindExcel, Columns: []string{}, Rows: []models.Row{}}, nil
	}

	metadata := map[string]any{"sheet": sheet.Name}
	if n := wb.NumSheets(); n > 1 {
		others := make([]string, 0, n-1)
		for i := 1; i < n; i++ {
			if s := wb.GetSheet(i); s != nil {
				others = append(others, s.Name)
			}
		}
		metadata["other_sheets"] = others
	}

	records := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			records = append(records, nil)
			continue
		}
		record := make([]string, row.LastCol())
		for j := row.FirstCol(); j < row.LastCol(); j++ {
			record[j] = row.Col(j)
		}
		records = append(records, record)
	}
	return workbookResult(records, metadata), nil
}

// workbookResult converts raw worksheet records into a Result. The first
// record is the header row.
func workbookResult(records [][]string, metadata map[string]any) *Result {
	if len(records) == 0 {
		return &Result{Kind: KindExcel, Columns: []string{}, Rows: []models.Row{}, Metadata: metadata}
	}

	columns := dedupeColumns(records[0])

	rows := make([]models.Row, 0, len(records)-1)
	for i, record := range records[1:] {
		cells := make(map[string]models.Value, len(columns))
		for j, col := range columns {
			if j < len(record) {
				cells[col] = models.String(record[j])
			} else {
				cells[col] = models.Null()
			}
		}
		rows = append(rows, models.Row{RowNumber: i + 1, Cells: cells})
	}

	return &Result{Kind: KindExcel, Columns: columns, Rows: rows, Metadata: metadata}
}

func isLegacyWorkbook(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	header := make([]byte, len(ole2Magic))
	if _, err := io.ReadFull(f, header); err != nil {
		// Too short to carry either magic; let the OOXML reader report it.
		return false, nil
	}
	return bytes.Equal(header, ole2Magic), nil
}
