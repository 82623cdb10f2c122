package schema

import "github.com/spektr-org/finchat/dataset"

// ============================================================================
// SCHEMA — Describes the shape of a dataset for the prompt and the CLI
// ============================================================================
// Built by inspecting a loaded dataset.Table. The translator never sees raw
// rows, only what Describe renders from this metadata.
// ============================================================================

// DatasetMeta describes one table.
type DatasetMeta struct {
	Name     string       `json:"name"`
	RowCount int          `json:"rowCount"`
	Columns  []ColumnMeta `json:"columns"`
}

// ColumnMeta describes one column.
type ColumnMeta struct {
	Name         string       `json:"name"`
	Kind         dataset.Kind `json:"kind"`
	SampleValues []string     `json:"sampleValues,omitempty"`
	UniqueCount  int          `json:"uniqueCount"`
	NullCount    int          `json:"nullCount"`
	IsDate       bool         `json:"isDate,omitempty"`
}

// ColumnNames returns the column names in order.
func (m DatasetMeta) ColumnNames() []string {
	names := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		names[i] = c.Name
	}
	return names
}

// DateColumns returns the names of columns flagged as dates.
func (m DatasetMeta) DateColumns() []string {
	var names []string
	for _, c := range m.Columns {
		if c.IsDate {
			names = append(names, c.Name)
		}
	}
	return names
}

// Inspect collects column metadata from a table.
func Inspect(t *dataset.Table) DatasetMeta {
	meta := DatasetMeta{Name: t.Name, RowCount: t.Len()}
	for j, c := range t.Columns {
		unique := make(map[string]bool)
		col := ColumnMeta{
			Name:   c.Name,
			Kind:   c.Kind,
			IsDate: c.Kind == dataset.KindDate || dataset.IsDateColumnName(c.Name),
		}
		for i := 0; i < t.Len(); i++ {
			v := t.Value(i, j)
			if v.IsMissing() {
				col.NullCount++
				continue
			}
			unique[v.String()] = true
		}
		col.UniqueCount = len(unique)
		col.SampleValues = collectSamples(unique, 5)
		meta.Columns = append(meta.Columns, col)
	}
	return meta
}
