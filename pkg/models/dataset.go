package models

// RowOrderColumn is the ordering column added to every cleaned table.
// Parsers reserve the name so no dataset column can collide with it.
const RowOrderColumn = "loom_row_id"

// Row is one parsed record. RowNumber is 1-based and contiguous within an
// upload.
type Row struct {
	RowNumber int              `json:"row_number"`
	Cells     map[string]Value `json:"cells"`
}

// Get returns the cell value for a column, or the null value when absent.
func (r Row) Get(column string) Value {
	if v, ok := r.Cells[column]; ok {
		return v
	}
	return Null()
}

// Clone returns a deep copy of the row.
func (r Row) Clone() Row {
	cells := make(map[string]Value, len(r.Cells))
	for k, v := range r.Cells {
		cells[k] = v
	}
	return Row{RowNumber: r.RowNumber, Cells: cells}
}

// Dataset is an in-memory record set with an authoritative column order.
// Cleaning stages read one dataset snapshot and produce the next.
type Dataset struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Clone returns a deep copy of the dataset.
func (d *Dataset) Clone() *Dataset {
	cols := make([]string, len(d.Columns))
	copy(cols, d.Columns)
	rows := make([]Row, len(d.Rows))
	for i, r := range d.Rows {
		rows[i] = r.Clone()
	}
	return &Dataset{Columns: cols, Rows: rows}
}

// NullCount returns the total number of null cells across all columns.
func (d *Dataset) NullCount() int {
	n := 0
	for _, row := range d.Rows {
		for _, col := range d.Columns {
			if row.Get(col).IsNull() {
				n++
			}
		}
	}
	return n
}

// ColumnValues returns the values of one column in row order.
func (d *Dataset) ColumnValues(column string) []Value {
	out := make([]Value, len(d.Rows))
	for i, row := range d.Rows {
		out[i] = row.Get(column)
	}
	return out
}
