package engine

import (
	"fmt"
	"sort"

	"github.com/spektr-org/finchat/dataset"
)

// ============================================================================
// FILTERS — Row selection, ordering and projection via TableView
// ============================================================================
// Single pass over the parent; each returns a SubView or ProjectView, so no
// cell is copied.
// ============================================================================

// FilterRows returns a view of the rows for which keep reports true. An error
// from keep aborts the scan.
func FilterRows(view TableView, keep func(row int) (bool, error)) (TableView, error) {
	n := view.Len()
	indices := make([]int, 0, n)
	for i := 0; i < n; i++ {
		ok, err := keep(i)
		if err != nil {
			return nil, err
		}
		if ok {
			indices = append(indices, i)
		}
	}
	return newSubView(view, indices), nil
}

// SortKey orders rows by one column.
type SortKey struct {
	Col  int
	Desc bool
}

// SortRows stable-sorts rows by the given keys. Missing values sort last in
// both directions; values of different kinds order by kind.
func SortRows(view TableView, keys []SortKey) TableView {
	n := view.Len()
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		for _, k := range keys {
			c := compareForSort(view.Value(indices[a], k.Col), view.Value(indices[b], k.Col), k.Desc)
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
	return newSubView(view, indices)
}

// compareForSort is a total order over values: missing last, then by kind,
// then by value (reversed when desc).
func compareForSort(a, b dataset.Value, desc bool) int {
	am, bm := a.IsMissing(), b.IsMissing()
	switch {
	case am && bm:
		return 0
	case am:
		return 1
	case bm:
		return -1
	}
	c, ok := a.Compare(b)
	if !ok {
		c = int(a.Kind()) - int(b.Kind())
	}
	if desc {
		c = -c
	}
	return c
}

// HeadRows returns the first n rows (all rows when n exceeds the length).
func HeadRows(view TableView, n int) TableView {
	if n < 0 {
		n = 0
	}
	if n > view.Len() {
		n = view.Len()
	}
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return newSubView(view, indices)
}

// ProjectColumns keeps the named columns in the given order.
func ProjectColumns(view TableView, names []string) (TableView, error) {
	cols := make([]int, 0, len(names))
	for _, name := range names {
		i, ok := view.ColumnIndex(name)
		if !ok {
			return nil, fmt.Errorf("column %q not found in %s", name, view.Name())
		}
		cols = append(cols, i)
	}
	return newProjectView(view, cols), nil
}
