package parsers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dataloom-io/loom-engine/pkg/apperrors"
	"github.com/dataloom-io/loom-engine/pkg/models"
)

// parseJSON decodes either a top-level array of objects or an object whose
// first array-valued property is taken as the record list. Nested objects are
// flattened with dotted paths; arrays are serialised to JSON text. The first
// record's insertion order is the authoritative column order.
func parseJSON(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.MalformedInput(err, "read json file")
	}

	arr, err := locateRecordArray(data)
	if err != nil {
		return nil, err
	}

	var columns []string
	seen := make(map[string]bool)
	rows := make([]models.Row, 0, len(arr))

	for i, raw := range arr {
		order, cells, err := flattenObject(raw, "")
		if err != nil {
			return nil, apperrors.MalformedInput(err, "decode record %d", i+1)
		}
		for _, col := range order {
			if !seen[col] {
				seen[col] = true
				columns = append(columns, col)
			}
		}
		rows = append(rows, models.Row{RowNumber: i + 1, Cells: cells})
	}

	// Backfill nulls for columns a record does not carry.
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
	return &Result{Kind: KindJSON, Columns: columns, Rows: rows}, nil
}

// locateRecordArray finds the record array: the document itself when it is an
// array, otherwise the first array-valued property of the top-level object.
func locateRecordArray(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, apperrors.MalformedInput(io.ErrUnexpectedEOF, "empty json document")
	}

	if trimmed[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return nil, apperrors.MalformedInput(err, "decode json array")
		}
		return arr, nil
	}

	if trimmed[0] != '{' {
		return nil, apperrors.MalformedInput(
			fmt.Errorf("top-level value is neither array nor object"), "decode json document")
	}

	// Walk the object's properties in document order and take the first
	// array-valued one.
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if _, err := dec.Token(); err != nil { // consume '{'
		return nil, apperrors.MalformedInput(err, "decode json object")
	}
	for dec.More() {
		if _, err := dec.Token(); err != nil { // property name
			return nil, apperrors.MalformedInput(err, "decode json property name")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, apperrors.MalformedInput(err, "decode json property value")
		}
		rawTrimmed := bytes.TrimSpace(raw)
		if len(rawTrimmed) > 0 && rawTrimmed[0] == '[' {
			var arr []json.RawMessage
			if err := json.Unmarshal(rawTrimmed, &arr); err != nil {
				return nil, apperrors.MalformedInput(err, "decode record array")
			}
			return arr, nil
		}
	}

	return nil, apperrors.MalformedInput(
		fmt.Errorf("no array-valued property found"), "locate record array")
}

// flattenObject decodes one record object, preserving key insertion order.
// Nested objects recurse with dotted prefixes; arrays become JSON text.
func flattenObject(raw json.RawMessage, prefix string) ([]string, map[string]models.Value, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, nil, fmt.Errorf("record is not an object")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}

	var order []string
	cells := make(map[string]models.Value)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected token %v for property name", keyTok)
		}
		if prefix != "" {
			key = prefix + "." + key
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, nil, err
		}

		valueTrimmed := bytes.TrimSpace(value)
		switch {
		case len(valueTrimmed) > 0 && valueTrimmed[0] == '{':
			subOrder, subCells, err := flattenObject(valueTrimmed, key)
			if err != nil {
				return nil, nil, err
			}
			order = append(order, subOrder...)
			for k, v := range subCells {
				cells[k] = v
			}
		case len(valueTrimmed) > 0 && valueTrimmed[0] == '[':
			order = append(order, key)
			cells[key] = models.String(string(valueTrimmed))
		default:
			var v models.Value
			if err := v.UnmarshalJSON(valueTrimmed); err != nil {
				return nil, nil, err
			}
			order = append(order, key)
			cells[key] = v
		}
	}

	return order, cells, nil
}
