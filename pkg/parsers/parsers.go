// Package parsers decodes uploaded files into ordered record sequences with a
// best-effort column order. Format is detected by extension first, with the
// declared mime type as fallback.
package parsers

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dataloom-io/loom-engine/pkg/apperrors"
	"github.com/dataloom-io/loom-engine/pkg/models"
)

// Kind identifies a supported file format.
type Kind string

const (
	KindCSV   Kind = "csv"
	KindTSV   Kind = "tsv"
	KindExcel Kind = "excel"
	KindJSON  Kind = "json"
	KindXML   Kind = "xml"
	KindPDF   Kind = "pdf"
	KindDocx  Kind = "docx"
	KindText  Kind = "text"
)

// ContentColumn is the single field emitted for document formats (pdf, docx,
// plain text). Those records carry no tabular schema and flow through
// cleaning unchanged.
const ContentColumn = "content"

// Result is the parser output: an ordered record sequence plus the
// authoritative column order. For tabular formats the column order is the
// file's own order; for JSON the first record's insertion order wins.
type Result struct {
	Kind     Kind
	Columns  []string
	Rows     []models.Row
	Metadata map[string]any
}

var extensionKinds = map[string]Kind{
	".csv":  KindCSV,
	".tsv":  KindTSV,
	".xls":  KindExcel,
	".xlsx": KindExcel,
	".json": KindJSON,
	".xml":  KindXML,
	".pdf":  KindPDF,
	".docx": KindDocx,
	".txt":  KindText,
	".text": KindText,
}

var mimeKinds = map[string]Kind{
	"text/csv":                      KindCSV,
	"text/tab-separated-values":     KindTSV,
	"application/vnd.ms-excel":      KindExcel,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": KindExcel,
	"application/json": KindJSON,
	"text/xml":         KindXML,
	"application/xml":  KindXML,
	"application/pdf":  KindPDF,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": KindDocx,
	"text/plain": KindText,
}

// Detect resolves the format kind from the original filename's extension,
// falling back to the declared mime type.
func Detect(filename, mimeType string) (Kind, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if kind, ok := extensionKinds[ext]; ok {
		return kind, nil
	}
	mime := strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	if kind, ok := mimeKinds[mime]; ok {
		return kind, nil
	}
	return "", apperrors.UnsupportedFormat("no parser for extension %q or mime type %q", ext, mimeType)
}

// Parse detects the format of the stored file and decodes it.
func Parse(path, filename, mimeType string) (*Result, error) {
	kind, err := Detect(filename, mimeType)
	if err != nil {
		return nil, err
	}
	return ParseAs(path, kind)
}

// ParseAs decodes the stored file with the parser for the given kind.
func ParseAs(path string, kind Kind) (*Result, error) {
	switch kind {
	case KindCSV:
		return parseDelimited(path, ',', KindCSV)
	case KindTSV:
		return parseDelimited(path, '\t', KindTSV)
	case KindExcel:
		return parseExcel(path)
	case KindJSON:
		return parseJSON(path)
	case KindXML:
		return parseXML(path)
	case KindPDF:
		return parsePDF(path)
	case KindDocx:
		return parseDocx(path)
	case KindText:
		return parseText(path)
	default:
		return nil, apperrors.UnsupportedFormat("unknown format kind %q", kind)
	}
}

// IsTabular reports whether the kind carries a tabular schema.
func (k Kind) IsTabular() bool {
	switch k {
	case KindCSV, KindTSV, KindExcel, KindJSON, KindXML:
		return true
	default:
		return false
	}
}

// dedupeColumns makes header names unique by suffixing repeats with _2, _3
// and so on. Empty headers are named positionally. The cleaned-table row
// order column is pre-reserved, so a literal header with that name gets
// suffixed like any repeat.
func dedupeColumns(headers []string) []string {
	out := make([]string, len(headers))
	used := map[string]bool{models.RowOrderColumn: true}
	for i, h := range headers {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		candidate := name
		for n := 2; used[candidate]; n++ {
			candidate = fmt.Sprintf("%s_%d", name, n)
		}
		used[candidate] = true
		out[i] = candidate
	}
	return out
}
