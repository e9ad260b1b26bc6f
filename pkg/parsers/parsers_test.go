package parsers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/dataloom-io/loom-engine/pkg/apperrors"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		mimeType string
		want     Kind
		wantErr  bool
	}{
		{name: "csv extension", filename: "orders.csv", want: KindCSV},
		{name: "xlsx extension", filename: "report.XLSX", want: KindExcel},
		{name: "legacy xls extension", filename: "legacy.xls", want: KindExcel},
		{name: "json extension", filename: "events.json", want: KindJSON},
		{name: "extension wins over mime", filename: "data.csv", mimeType: "application/json", want: KindCSV},
		{name: "mime fallback", filename: "upload", mimeType: "application/json", want: KindJSON},
		{name: "mime with parameters", filename: "upload", mimeType: "text/csv; charset=utf-8", want: KindCSV},
		{name: "unknown", filename: "model.parquet", mimeType: "application/octet-stream", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, err := Detect(tt.filename, tt.mimeType)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.HasTag(err, apperrors.TagUnsupportedFormat))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func TestParseCSV(t *testing.T) {
	path := writeTempFile(t, "orders.csv", "id,name,amount\n1,Widget,9.99\n2,Gadget\n")

	result, err := ParseAs(path, KindCSV)
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name", "amount"}, result.Columns)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "Widget", result.Rows[0].Cells["name"].Raw())
	// Short rows backfill missing cells with nulls.
	assert.True(t, result.Rows[1].Cells["amount"].IsNull())
	assert.Equal(t, 2, result.Rows[1].RowNumber)
}

func TestParseCSVDuplicateHeaders(t *testing.T) {
	path := writeTempFile(t, "dup.csv", "id,name,name,,name\n1,a,b,c,d\n")

	result, err := ParseAs(path, KindCSV)
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name", "name_2", "column_4", "name_3"}, result.Columns)
	assert.Equal(t, "b", result.Rows[0].Cells["name_2"].Raw())
	assert.Equal(t, "c", result.Rows[0].Cells["column_4"].Raw())
}

func TestParseTSV(t *testing.T) {
	path := writeTempFile(t, "orders.tsv", "id\tname\n1\talpha\n")

	result, err := ParseAs(path, KindTSV)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, result.Columns)
	assert.Equal(t, "alpha", result.Rows[0].Cells["name"].Raw())
}

func TestParseJSONTopLevelArray(t *testing.T) {
	path := writeTempFile(t, "events.json", `[
		{"id": 1, "user": {"name": "Ada", "email": "ada@example.com"}, "tags": ["a", "b"]},
		{"id": 2, "user": {"name": "Lin"}, "active": true}
	]`)

	result, err := ParseAs(path, KindJSON)
	require.NoError(t, err)

	// First record's insertion order wins; later-only columns append.
	assert.Equal(t, []string{"id", "user.name", "user.email", "tags", "active"}, result.Columns)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "ada@example.com", result.Rows[0].Cells["user.email"].Raw())
	assert.Equal(t, `["a", "b"]`, result.Rows[0].Cells["tags"].Raw())
	assert.True(t, result.Rows[0].Cells["active"].IsNull())
	assert.True(t, result.Rows[1].Cells["user.email"].IsNull())

	f, ok := result.Rows[1].Cells["id"].AsFloat()
	require.True(t, ok)
	assert.Equal(t, 2.0, f)
}

func TestParseJSONWrappedArray(t *testing.T) {
	path := writeTempFile(t, "wrapped.json", `{"meta": {"count": 1}, "records": [{"id": 7}]}`)

	result, err := ParseAs(path, KindJSON)
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, result.Columns)
	require.Len(t, result.Rows, 1)
}

func TestParseJSONNoArray(t *testing.T) {
	path := writeTempFile(t, "scalar.json", `{"id": 1}`)

	_, err := ParseAs(path, KindJSON)
	require.Error(t, err)
	assert.True(t, apperrors.HasTag(err, apperrors.TagMalformedInput))
}

func TestParseExcelWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"id", "name"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{1, "Widget"}))
	_, err := f.NewSheet("Notes")
	require.NoError(t, err)
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	result, err := ParseAs(path, KindExcel)
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name"}, result.Columns)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "Widget", result.Rows[0].Cells["name"].Raw())
	assert.Equal(t, "Sheet1", result.Metadata["sheet"])
	assert.Equal(t, []string{"Notes"}, result.Metadata["other_sheets"])
}

func TestLegacyWorkbookSniff(t *testing.T) {
	legacy := writeTempFile(t, "legacy.xls", string(ole2Magic)+"rest")
	got, err := isLegacyWorkbook(legacy)
	require.NoError(t, err)
	assert.True(t, got)

	modern := writeTempFile(t, "modern.xlsx", "PK\x03\x04rest")
	got, err = isLegacyWorkbook(modern)
	require.NoError(t, err)
	assert.False(t, got)

	// Files shorter than the magic fall through to the OOXML reader.
	short := writeTempFile(t, "short.xls", "PK")
	got, err = isLegacyWorkbook(short)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestParseExcelLegacyTruncated(t *testing.T) {
	path := writeTempFile(t, "legacy.xls", string(ole2Magic)+"not a workbook")

	_, err := ParseAs(path, KindExcel)
	require.Error(t, err)
	assert.True(t, apperrors.HasTag(err, apperrors.TagMalformedInput))
}

func TestParseXML(t *testing.T) {
	path := writeTempFile(t, "catalog.xml", `<?xml version="1.0"?>
<catalog>
  <product sku="A-1">
    <name>Widget</name>
    <price currency="USD">9.99</price>
  </product>
  <product sku="A-2">
    <name>Gadget</name>
  </product>
</catalog>`)

	result, err := ParseAs(path, KindXML)
	require.NoError(t, err)

	assert.Equal(t, []string{"sku", "name", "price.currency", "price"}, result.Columns)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "A-1", result.Rows[0].Cells["sku"].Raw())
	assert.Equal(t, "9.99", result.Rows[0].Cells["price"].Raw())
	assert.Equal(t, "USD", result.Rows[0].Cells["price.currency"].Raw())
	assert.True(t, result.Rows[1].Cells["price"].IsNull())
}

func TestParseText(t *testing.T) {
	path := writeTempFile(t, "notes.txt", "First paragraph\nstill first.\n\nSecond paragraph.\n\n\n")

	result, err := ParseAs(path, KindText)
	require.NoError(t, err)

	assert.Equal(t, []string{ContentColumn}, result.Columns)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "First paragraph\nstill first.", result.Rows[0].Cells[ContentColumn].Raw())
	assert.Equal(t, "Second paragraph.", result.Rows[1].Cells[ContentColumn].Raw())
}

func TestKindIsTabular(t *testing.T) {
	assert.True(t, KindCSV.IsTabular())
	assert.True(t, KindXML.IsTabular())
	assert.False(t, KindPDF.IsTabular())
	assert.False(t, KindText.IsTabular())
}

func TestDedupeColumns(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		want    []string
	}{
		{name: "unique passthrough", headers: []string{"a", "b"}, want: []string{"a", "b"}},
		{name: "repeats suffixed", headers: []string{"a", "a", "a"}, want: []string{"a", "a_2", "a_3"}},
		{name: "empty positional", headers: []string{"", "x", ""}, want: []string{"column_1", "x", "column_3"}},
		{name: "suffix collision", headers: []string{"a", "a_2", "a"}, want: []string{"a", "a_2", "a_3"}},
		{name: "whitespace trimmed", headers: []string{" id ", "id"}, want: []string{"id", "id_2"}},
		{name: "row order column reserved", headers: []string{"loom_row_id", "id"}, want: []string{"loom_row_id_2", "id"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dedupeColumns(tt.headers))
		})
	}
}
