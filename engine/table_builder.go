package engine

import "github.com/spektr-org/finchat/dataset"

// ============================================================================
// TABLE BUILDER — Materializes views and groups into result tables
// ============================================================================
// Results leave the engine as owned copies: a caller may keep or modify a
// result table without reaching back into the session's datasets.
// ============================================================================

// BuildTable copies a view into a new table.
func BuildTable(view TableView) *dataset.Table {
	cols := make([]dataset.Column, len(view.Columns()))
	copy(cols, view.Columns())

	rows := make([][]dataset.Value, view.Len())
	for i := range rows {
		row := make([]dataset.Value, len(cols))
		for j := range cols {
			row[j] = view.Value(i, j)
		}
		rows[i] = row
	}
	return dataset.NewTable(view.Name(), cols, rows)
}

// BuildGroupSeries turns single-key groups into a series labeled by key.
func BuildGroupSeries(groups []Group, index, name string) *Series {
	s := &Series{
		Name:   name,
		Index:  index,
		Labels: make([]dataset.Value, len(groups)),
		Values: make([]dataset.Value, len(groups)),
	}
	for i, g := range groups {
		if len(g.Keys) > 0 {
			s.Labels[i] = g.Keys[0]
		}
		s.Values[i] = g.Value
	}
	return s
}

// BuildGroupTable turns multi-key groups into a table: one column per key
// followed by the aggregated value.
func BuildGroupTable(groups []Group, keyColumns []dataset.Column, name string) *dataset.Table {
	cols := make([]dataset.Column, 0, len(keyColumns)+1)
	cols = append(cols, keyColumns...)
	cols = append(cols, dataset.Column{Name: name, Kind: inferKind(groupValues(groups))})

	rows := make([][]dataset.Value, len(groups))
	for i, g := range groups {
		row := make([]dataset.Value, 0, len(cols))
		row = append(row, g.Keys...)
		row = append(row, g.Value)
		rows[i] = row
	}
	return dataset.NewTable("groups", cols, rows)
}

// SeriesTable renders a series as a two-column table (labels, values).
func SeriesTable(s *Series) *dataset.Table {
	index := s.Index
	if index == "" {
		index = "index"
	}
	name := s.Name
	if name == "" || name == index {
		name = "value"
	}
	cols := []dataset.Column{
		{Name: index, Kind: inferKind(s.Labels)},
		{Name: name, Kind: inferKind(s.Values)},
	}
	rows := make([][]dataset.Value, s.Len())
	for i := range rows {
		var label dataset.Value
		if i < len(s.Labels) {
			label = s.Labels[i]
		}
		rows[i] = []dataset.Value{label, s.Values[i]}
	}
	return dataset.NewTable(s.Name, cols, rows)
}

func groupValues(groups []Group) []dataset.Value {
	out := make([]dataset.Value, len(groups))
	for i, g := range groups {
		out[i] = g.Value
	}
	return out
}

// inferKind returns the single kind shared by all non-missing values, or
// text when they disagree.
func inferKind(values []dataset.Value) dataset.Kind {
	kind := dataset.KindMissing
	for _, v := range values {
		if v.IsMissing() {
			continue
		}
		if kind == dataset.KindMissing {
			kind = v.Kind()
		} else if kind != v.Kind() {
			return dataset.KindString
		}
	}
	return kind
}
