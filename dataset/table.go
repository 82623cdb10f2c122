package dataset

import "strings"

// ============================================================================
// TABLE — Ordered, uniformly-shaped records with named, typed columns
// ============================================================================

// Column describes one named column. Kind is the dominant kind of its values;
// individual cells may still be missing.
type Column struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Table is an in-memory tabular dataset. Rows are stored column-ordered:
// Rows[i][j] is the value of Columns[j] in record i.
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]Value

	index map[string]int
}

// NewTable builds a table and its column index.
func NewTable(name string, columns []Column, rows [][]Value) *Table {
	t := &Table{Name: name, Columns: columns, Rows: rows}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		if _, dup := t.index[c.Name]; !dup {
			t.index[c.Name] = i
		}
	}
}

// Len returns the number of records.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the position of a column by exact (case-sensitive) name.
func (t *Table) ColumnIndex(name string) (int, bool) {
	if t.index == nil {
		t.reindex()
	}
	i, ok := t.index[name]
	return i, ok
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Value returns the cell at (row, col); out of range cells are missing.
func (t *Table) Value(row, col int) Value {
	if row < 0 || row >= len(t.Rows) {
		return Missing()
	}
	r := t.Rows[row]
	if col < 0 || col >= len(r) {
		return Missing()
	}
	return r[col]
}

// Clone returns a deep copy. Values are immutable, so copying the row slices
// is enough to make the clone independent of the original.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	cols := make([]Column, len(t.Columns))
	copy(cols, t.Columns)
	rows := make([][]Value, len(t.Rows))
	for i, r := range t.Rows {
		row := make([]Value, len(r))
		copy(row, r)
		rows[i] = row
	}
	return NewTable(t.Name, cols, rows)
}

// LowerColumnMap builds the lowercase → canonical column name index.
func (t *Table) LowerColumnMap() map[string]string {
	m := make(map[string]string, len(t.Columns))
	for _, c := range t.Columns {
		lower := strings.ToLower(c.Name)
		if _, exists := m[lower]; !exists {
			m[lower] = c.Name
		}
	}
	return m
}

// IsDateColumnName reports whether a column name marks a date column.
func IsDateColumnName(name string) bool {
	return strings.Contains(strings.ToLower(name), "date")
}
