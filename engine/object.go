package engine

import "github.com/spektr-org/finchat/dataset"

// ============================================================================
// RUNTIME VALUES
// ============================================================================
// Everything a program can hold: a scalar cell value, a table view, a
// series, or a list. There are no functions-as-values, no handles and no
// references back into the session beyond read-only views.
// ============================================================================

type objKind uint8

const (
	objScalar objKind = iota
	objTable
	objSeries
	objList
)

type object struct {
	kind   objKind
	scalar dataset.Value
	table  TableView
	series *Series
	list   []object
}

func scalarObj(v dataset.Value) object      { return object{kind: objScalar, scalar: v} }
func numberObj(f float64) object            { return scalarObj(dataset.Number(f)) }
func boolObj(b bool) object                 { return scalarObj(dataset.Bool(b)) }
func tableObj(v TableView) object           { return object{kind: objTable, table: v} }
func seriesObj(s *Series) object            { return object{kind: objSeries, series: s} }
func listObj(items []object) object         { return object{kind: objList, list: items} }
func (o object) isScalar() bool             { return o.kind == objScalar }
func (o object) isKind(k dataset.Kind) bool { return o.kind == objScalar && o.scalar.Kind() == k }

// typeName names an object for error messages.
func (o object) typeName() string {
	switch o.kind {
	case objTable:
		return "table"
	case objSeries:
		return "series"
	case objList:
		return "list"
	}
	if o.scalar.IsMissing() {
		return "none"
	}
	return o.scalar.Kind().String()
}

// values flattens a series or list of scalars into cell values.
func (o object) values() ([]dataset.Value, bool) {
	switch o.kind {
	case objSeries:
		return o.series.Values, true
	case objList:
		out := make([]dataset.Value, 0, len(o.list))
		for _, it := range o.list {
			if !it.isScalar() {
				return nil, false
			}
			out = append(out, it.scalar)
		}
		return out, true
	}
	return nil, false
}

// length returns the element count of a container.
func (o object) length() (int, bool) {
	switch o.kind {
	case objTable:
		return o.table.Len(), true
	case objSeries:
		return o.series.Len(), true
	case objList:
		return len(o.list), true
	}
	if o.scalar.Kind() == dataset.KindString {
		return len([]rune(o.scalar.Str())), true
	}
	return 0, false
}

// truthy follows the usual conventions: missing, false, 0 and "" are false.
func truthy(v dataset.Value) bool {
	switch v.Kind() {
	case dataset.KindBool:
		return v.BoolValue()
	case dataset.KindNumber:
		return v.Num() != 0
	case dataset.KindString:
		return v.Str() != ""
	case dataset.KindDate:
		return true
	}
	return false
}
