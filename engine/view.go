package engine

import "github.com/spektr-org/finchat/dataset"

// ============================================================================
// TABLE VIEW — Zero-Copy Read-Only Data Access
// ============================================================================
// Programs never touch a dataset.Table directly. They read through this
// interface, which has no mutating methods.
//
// Implementations:
//   tableView    — wraps a prepared *dataset.Table
//   SubView      — filtered or reordered subset (indices into parent)
//   ProjectView  — column subset (column positions into parent)
//
// Filter, sort and select chain views; nothing is copied until a table is
// returned as a result (see BuildTable).
// ============================================================================

// TableView provides indexed, read-only access to tabular data.
// The evaluator calls Value in tight loops; keep implementations fast.
type TableView interface {
	Name() string
	Len() int
	Columns() []dataset.Column
	ColumnIndex(name string) (int, bool)
	Value(row, col int) dataset.Value
}

// ============================================================================
// TABLE — wraps a dataset.Table
// ============================================================================

type tableView struct {
	t *dataset.Table
}

// NewTableView exposes a table read-only.
func NewTableView(t *dataset.Table) TableView { return &tableView{t: t} }

func (v *tableView) Name() string                        { return v.t.Name }
func (v *tableView) Len() int                            { return v.t.Len() }
func (v *tableView) Columns() []dataset.Column           { return v.t.Columns }
func (v *tableView) ColumnIndex(name string) (int, bool) { return v.t.ColumnIndex(name) }
func (v *tableView) Value(row, col int) dataset.Value    { return v.t.Value(row, col) }

// ============================================================================
// SUB VIEW — filtered or sorted subset (zero-copy)
// ============================================================================

// SubView is a subset of a parent view. Holds indices into the parent.
type SubView struct {
	parent  TableView
	indices []int
}

func newSubView(parent TableView, indices []int) TableView {
	// Flatten nested sub views so long filter chains stay one hop deep.
	if sv, ok := parent.(*SubView); ok {
		flat := make([]int, len(indices))
		for i, idx := range indices {
			flat[i] = sv.indices[idx]
		}
		return &SubView{parent: sv.parent, indices: flat}
	}
	return &SubView{parent: parent, indices: indices}
}

func (v *SubView) Name() string                        { return v.parent.Name() }
func (v *SubView) Len() int                            { return len(v.indices) }
func (v *SubView) Columns() []dataset.Column           { return v.parent.Columns() }
func (v *SubView) ColumnIndex(name string) (int, bool) { return v.parent.ColumnIndex(name) }

func (v *SubView) Value(row, col int) dataset.Value {
	if row < 0 || row >= len(v.indices) {
		return dataset.Missing()
	}
	return v.parent.Value(v.indices[row], col)
}

// ============================================================================
// PROJECT VIEW — column subset (zero-copy)
// ============================================================================

// ProjectView exposes selected columns of a parent view, in the given order.
type ProjectView struct {
	parent  TableView
	cols    []int
	columns []dataset.Column
	index   map[string]int
}

func newProjectView(parent TableView, cols []int) TableView {
	pc := parent.Columns()
	v := &ProjectView{parent: parent, cols: cols, index: make(map[string]int, len(cols))}
	for i, c := range cols {
		v.columns = append(v.columns, pc[c])
		if _, dup := v.index[pc[c].Name]; !dup {
			v.index[pc[c].Name] = i
		}
	}
	return v
}

func (v *ProjectView) Name() string              { return v.parent.Name() }
func (v *ProjectView) Len() int                  { return v.parent.Len() }
func (v *ProjectView) Columns() []dataset.Column { return v.columns }

func (v *ProjectView) ColumnIndex(name string) (int, bool) {
	i, ok := v.index[name]
	return i, ok
}

func (v *ProjectView) Value(row, col int) dataset.Value {
	if col < 0 || col >= len(v.cols) {
		return dataset.Missing()
	}
	return v.parent.Value(row, v.cols[col])
}
