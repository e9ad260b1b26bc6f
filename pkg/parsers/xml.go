package parsers

import (
	"encoding/xml"
	"io"
	"os"
	"strings"

	"github.com/dataloom-io/loom-engine/pkg/apperrors"
	"github.com/dataloom-io/loom-engine/pkg/models"
)

// parseXML treats each first-level child of the document root as one record.
// Attributes become fields; nested elements flatten with dotted paths.
func parseXML(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.MalformedInput(err, "open xml file")
	}
	defer f.Close()

	dec := xml.NewDecoder(f)

	// Skip to the document root; its children are the records.
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return &Result{Kind: KindXML, Columns: []string{}, Rows: []models.Row{}}, nil
		}
		if err != nil {
			return nil, apperrors.MalformedInput(err, "read xml root")
		}
		if _, ok := tok.(xml.StartElement); ok {
			break
		}
	}

	var columns []string
	seen := make(map[string]bool)
	var rows []models.Row

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.MalformedInput(err, "read xml record %d", len(rows)+1)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		order, cells, err := decodeXMLRecord(dec, start)
		if err != nil {
			return nil, apperrors.MalformedInput(err, "decode xml record %d", len(rows)+1)
		}
		for _, col := range order {
			if !seen[col] {
				seen[col] = true
				columns = append(columns, col)
			}
		}
		rows = append(rows, models.Row{RowNumber: len(rows) + 1, Cells: cells})
	}

	for i := range rows {
		for _, col := range columns {
			if _, ok := rows[i].Cells[col]; !ok {
				rows[i].Cells[col] = models.Null()
			}
		}
	}

	if columns == nil {
		columns = []string{}
	}
	return &Result{Kind: KindXML, Columns: columns, Rows: rows}, nil
}

// decodeXMLRecord consumes one record element and flattens it into fields.
func decodeXMLRecord(dec *xml.Decoder, start xml.StartElement) ([]string, map[string]models.Value, error) {
	cells := make(map[string]models.Value)
	var order []string

	add := func(key, value string) {
		if _, exists := cells[key]; exists {
			return
		}
		order = append(order, key)
		cells[key] = models.String(value)
	}

	for _, attr := range start.Attr {
		add(attr.Name.Local, attr.Value)
	}

	if err := flattenXMLElement(dec, "", add); err != nil {
		return nil, nil, err
	}

	return order, cells, nil
}

// flattenXMLElement walks the children of an already-opened element until its
// end tag, emitting one field per leaf element. Nested elements are joined
// with dots.
func flattenXMLElement(dec *xml.Decoder, prefix string, add func(key, value string)) error {
	var text strings.Builder
	sawChild := false

	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			sawChild = true
			key := t.Name.Local
			if prefix != "" {
				key = prefix + "." + key
			}
			if err := flattenXMLElementInto(dec, t, key, add); err != nil {
				return err
			}
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if !sawChild && prefix != "" {
				add(prefix, strings.TrimSpace(text.String()))
			}
			return nil
		}
	}
}

// flattenXMLElementInto handles one child element: attributes first, then its
// content.
func flattenXMLElementInto(dec *xml.Decoder, start xml.StartElement, key string, add func(key, value string)) error {
	for _, attr := range start.Attr {
		add(key+"."+attr.Name.Local, attr.Value)
	}
	return flattenXMLElement(dec, key, add)
}
