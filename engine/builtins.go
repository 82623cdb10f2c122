package engine

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/spektr-org/finchat/dataset"
)

// ============================================================================
// BUILTINS — The complete set of callable functions
// ============================================================================
// Nothing else is callable from a program. None of these reach the
// filesystem, the network, the clock or the process.
//
// Row expressions: filter, count, sum, mean, min, max, unique and nunique
// accept (table, expr) and evaluate expr once per row with that row's
// columns in scope. A string literal in that position names a column.
// ============================================================================

type builtin struct {
	minArgs int
	maxArgs int // -1 = variadic
	kwargs  []string
	call    func(ev *evaluator, c *CallExpr) (object, error)
}

func (b *builtin) allowsKwarg(name string) bool {
	for _, k := range b.kwargs {
		if k == name {
			return true
		}
	}
	return false
}

func (b *builtin) arity() string {
	switch {
	case b.maxArgs < 0:
		return fmt.Sprintf("at least %d argument(s)", b.minArgs)
	case b.minArgs == b.maxArgs:
		return fmt.Sprintf("%d argument(s)", b.minArgs)
	}
	return fmt.Sprintf("%d to %d arguments", b.minArgs, b.maxArgs)
}

// builtins is filled in init to break the initialization cycle between the
// table and the evaluator that dispatches through it.
var builtins map[string]*builtin

func init() {
	builtins = map[string]*builtin{
		// built-ins
		"len":  {minArgs: 1, maxArgs: 1, call: eager(fnLen)},
		"sum":  {minArgs: 1, maxArgs: 2, call: reducer("sum")},
		"min":  {minArgs: 1, maxArgs: -1, call: extreme(-1)},
		"max":  {minArgs: 1, maxArgs: -1, call: extreme(1)},
		"date": {minArgs: 1, maxArgs: 3, call: eager(fnDate)},

		// data manipulation
		"filter":  {minArgs: 2, maxArgs: 2, call: fnFilter},
		"select":  {minArgs: 2, maxArgs: -1, call: eager(fnSelect)},
		"sort":    {minArgs: 1, maxArgs: 2, kwargs: []string{"desc", "ascending"}, call: eager(fnSort)},
		"head":    {minArgs: 1, maxArgs: 2, kwargs: []string{"n"}, call: eager(fnHead)},
		"group":   {minArgs: 2, maxArgs: 4, kwargs: []string{"agg", "col", "sort"}, call: eager(fnGroup)},
		"unique":  {minArgs: 1, maxArgs: 2, call: fnUnique},
		"nunique": {minArgs: 1, maxArgs: 2, call: reducer("nunique")},
		"column":  {minArgs: 2, maxArgs: 2, call: eager(fnColumn)},
		"count":   {minArgs: 1, maxArgs: 2, call: fnCount},
		"mean":    {minArgs: 1, maxArgs: 2, call: reducer("mean")},

		// numeric
		"round": {minArgs: 1, maxArgs: 2, kwargs: []string{"digits"}, call: eager(fnRound)},
		"abs":   {minArgs: 1, maxArgs: 1, call: eager(fnAbs)},

		// text and date helpers
		"lower":      {minArgs: 1, maxArgs: 1, call: eager(textMap("lower", strings.ToLower))},
		"upper":      {minArgs: 1, maxArgs: 1, call: eager(textMap("upper", strings.ToUpper))},
		"contains":   {minArgs: 2, maxArgs: 2, kwargs: []string{"case"}, call: eager(textTest("contains", strings.Contains))},
		"startswith": {minArgs: 2, maxArgs: 2, kwargs: []string{"case"}, call: eager(textTest("startswith", strings.HasPrefix))},
		"year":       {minArgs: 1, maxArgs: 1, call: eager(datePart("year", func(t time.Time) int { return t.Year() }))},
		"month":      {minArgs: 1, maxArgs: 1, call: eager(datePart("month", func(t time.Time) int { return int(t.Month()) }))},
		"day":        {minArgs: 1, maxArgs: 1, call: eager(datePart("day", func(t time.Time) int { return t.Day() }))},
		"isnull":     {minArgs: 1, maxArgs: 1, call: eager(fnIsNull)},
		"col":        {minArgs: 1, maxArgs: 1, call: fnCol},
	}
}

// ============================================================================
// ARGUMENT HELPERS
// ============================================================================

type eagerFunc func(ev *evaluator, name string, args []object, kw map[string]object) (object, error)

// eager evaluates all arguments before calling fn.
func eager(fn eagerFunc) func(*evaluator, *CallExpr) (object, error) {
	return func(ev *evaluator, c *CallExpr) (object, error) {
		args := make([]object, len(c.Args))
		for i, a := range c.Args {
			o, err := ev.eval(a)
			if err != nil {
				return object{}, err
			}
			args[i] = o
		}
		var kw map[string]object
		if len(c.Kwargs) > 0 {
			kw = make(map[string]object, len(c.Kwargs))
			for _, k := range c.Kwargs {
				o, err := ev.eval(k.Value)
				if err != nil {
					return object{}, err
				}
				kw[k.Name] = o
			}
		}
		out, err := fn(ev, c.Func, args, kw)
		if err != nil && !isExecError(err) {
			return object{}, fmt.Errorf("%s(): %w", c.Func, err)
		}
		return out, err
	}
}

func isExecError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}

func wantTable(fn string, o object) (TableView, error) {
	if o.kind != objTable {
		return nil, fmt.Errorf("%s() expects a table as first argument, got %s", fn, o.typeName())
	}
	return o.table, nil
}

func wantString(what string, o object) (string, error) {
	if !o.isKind(dataset.KindString) {
		return "", fmt.Errorf("%s must be text, got %s", what, o.typeName())
	}
	return o.scalar.Str(), nil
}

func wantInt(what string, o object) (int, error) {
	if !o.isKind(dataset.KindNumber) || !o.scalar.IsIntegral() {
		return 0, fmt.Errorf("%s must be a whole number, got %s", what, o.typeName())
	}
	return int(o.scalar.Num()), nil
}

func wantBool(what string, o object) (bool, error) {
	if !o.isKind(dataset.KindBool) {
		return false, fmt.Errorf("%s must be true or false, got %s", what, o.typeName())
	}
	return o.scalar.BoolValue(), nil
}

// tableAndValues handles the (table, expr) form shared by the reducers. When
// the first argument is a series or list its values are returned directly.
func (ev *evaluator) tableAndValues(c *CallExpr) ([]dataset.Value, error) {
	first, err := ev.eval(c.Args[0])
	if err != nil {
		return nil, err
	}
	return ev.valuesFrom(c, first)
}

func (ev *evaluator) valuesFrom(c *CallExpr, first object) ([]dataset.Value, error) {
	if first.kind == objTable {
		if len(c.Args) < 2 {
			return nil, fmt.Errorf("%s() of a table needs a column or row expression, e.g. %s(%s, Qty)", c.Func, c.Func, first.table.Name())
		}
		return ev.rowValues(first.table, c.Args[1], c.Func+"() expression")
	}
	if len(c.Args) > 1 {
		return nil, fmt.Errorf("%s() takes a second argument only when the first is a table", c.Func)
	}
	vals, ok := first.values()
	if !ok {
		return nil, fmt.Errorf("%s() expects a table, series or list, got %s", c.Func, first.typeName())
	}
	return vals, nil
}

func wrapCallError(c *CallExpr, err error) error {
	if err == nil || isExecError(err) {
		return err
	}
	if strings.HasPrefix(err.Error(), c.Func+"()") {
		return err
	}
	return fmt.Errorf("%s(): %w", c.Func, err)
}

// ============================================================================
// BUILT-INS
// ============================================================================

func fnLen(_ *evaluator, _ string, args []object, _ map[string]object) (object, error) {
	n, ok := args[0].length()
	if !ok {
		return object{}, fmt.Errorf("object of type %s has no length", args[0].typeName())
	}
	return numberObj(float64(n)), nil
}

// reducer implements sum, mean and nunique over a series/list or (table, expr).
func reducer(agg string) func(*evaluator, *CallExpr) (object, error) {
	return func(ev *evaluator, c *CallExpr) (object, error) {
		vals, err := ev.tableAndValues(c)
		if err != nil {
			return object{}, wrapCallError(c, err)
		}
		v, err := Aggregate(vals, agg)
		if err != nil {
			return object{}, wrapCallError(c, err)
		}
		return scalarObj(v), nil
	}
}

// extreme implements min and max: over a series/list, over (table, expr), or
// across two or more scalars.
func extreme(dir int) func(*evaluator, *CallExpr) (object, error) {
	return func(ev *evaluator, c *CallExpr) (object, error) {
		var vals []dataset.Value
		if len(c.Args) == 1 || len(c.Args) == 2 {
			first, err := ev.eval(c.Args[0])
			if err != nil {
				return object{}, err
			}
			if !first.isScalar() {
				vals, err = ev.valuesFrom(c, first)
				if err != nil {
					return object{}, wrapCallError(c, err)
				}
			}
		}
		if vals == nil {
			if len(c.Args) < 2 {
				return object{}, fmt.Errorf("%s() of a single value: pass a series, a list, a table with a column, or several values", c.Func)
			}
			for _, a := range c.Args {
				o, err := ev.eval(a)
				if err != nil {
					return object{}, err
				}
				if !o.isScalar() {
					return object{}, fmt.Errorf("%s() of several values expects single values, got %s", c.Func, o.typeName())
				}
				vals = append(vals, o.scalar)
			}
		}
		v, err := ExtremeValue(vals, dir)
		if err != nil {
			return object{}, wrapCallError(c, err)
		}
		return scalarObj(v), nil
	}
}

// fnDate parses text with the session date formats, or builds a date from
// year, month and day.
func fnDate(ev *evaluator, _ string, args []object, _ map[string]object) (object, error) {
	if len(args) == 3 {
		y, err := wantInt("year", args[0])
		if err != nil {
			return object{}, err
		}
		m, err := wantInt("month", args[1])
		if err != nil {
			return object{}, err
		}
		d, err := wantInt("day", args[2])
		if err != nil {
			return object{}, err
		}
		t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
		if t.Year() != y || int(t.Month()) != m || t.Day() != d {
			return object{}, fmt.Errorf("invalid date %04d-%02d-%02d", y, m, d)
		}
		return scalarObj(dataset.Date(t)), nil
	}
	if len(args) != 1 {
		return object{}, errors.New("expects a text date or year, month, day")
	}
	parser := ev.env.Dates
	if parser == nil {
		parser = dataset.MustDateParser(nil)
	}
	return ev.mapObject(args[0], func(v dataset.Value) (dataset.Value, error) {
		switch v.Kind() {
		case dataset.KindMissing, dataset.KindDate:
			return v, nil
		case dataset.KindString:
			t, err := parser.Parse(v.Str())
			if err != nil {
				return dataset.Missing(), err
			}
			return dataset.Date(t), nil
		}
		return dataset.Missing(), fmt.Errorf("cannot make a date from %s", v.Kind())
	})
}

// ============================================================================
// DATA MANIPULATION
// ============================================================================

func fnFilter(ev *evaluator, c *CallExpr) (object, error) {
	first, err := ev.eval(c.Args[0])
	if err != nil {
		return object{}, err
	}
	view, err := wantTable("filter", first)
	if err != nil {
		return object{}, err
	}
	out, err := FilterRows(view, func(i int) (bool, error) {
		v, err := ev.evalRow(view, i, c.Args[1], "filter() condition")
		if err != nil {
			return false, err
		}
		return truthy(v), nil
	})
	if err != nil {
		return object{}, wrapCallError(c, err)
	}
	return tableObj(out), nil
}

func fnSelect(ev *evaluator, fn string, args []object, _ map[string]object) (object, error) {
	view, err := wantTable(fn, args[0])
	if err != nil {
		return object{}, err
	}
	var names []string
	for _, a := range args[1:] {
		ns, err := stringList(a)
		if err != nil {
			return object{}, err
		}
		names = append(names, ns...)
	}
	for _, n := range names {
		if _, err := columnIndex(view, n); err != nil {
			return object{}, err
		}
	}
	out, err := ProjectColumns(view, names)
	if err != nil {
		return object{}, err
	}
	return tableObj(out), nil
}

func sortDescending(kw map[string]object) (bool, error) {
	desc := false
	if o, ok := kw["desc"]; ok {
		b, err := wantBool("desc", o)
		if err != nil {
			return false, err
		}
		desc = b
	}
	if o, ok := kw["ascending"]; ok {
		b, err := wantBool("ascending", o)
		if err != nil {
			return false, err
		}
		desc = !b
	}
	return desc, nil
}

func fnSort(ev *evaluator, _ string, args []object, kw map[string]object) (object, error) {
	desc, err := sortDescending(kw)
	if err != nil {
		return object{}, err
	}
	x := args[0]
	if err := ev.charge(sortCost(x)); err != nil {
		return object{}, err
	}

	switch x.kind {
	case objTable:
		if len(args) < 2 {
			return object{}, errors.New("sorting a table needs a column name, e.g. sort(holdings, \"Qty\")")
		}
		names, err := stringList(args[1])
		if err != nil {
			return object{}, err
		}
		keys := make([]SortKey, 0, len(names))
		for _, n := range names {
			ci, err := columnIndex(x.table, n)
			if err != nil {
				return object{}, err
			}
			keys = append(keys, SortKey{Col: ci, Desc: desc})
		}
		return tableObj(SortRows(x.table, keys)), nil

	case objSeries, objList:
		if len(args) > 1 {
			return object{}, errors.New("sorting a series or list takes no column name")
		}
		s := x.series
		if x.kind == objList {
			vals, ok := x.values()
			if !ok {
				return object{}, errors.New("list elements must be single values")
			}
			s = newPositionalSeries("", vals)
		}
		sorted := sortSeries(s, desc)
		if x.kind == objList {
			items := make([]object, len(sorted.Values))
			for i, v := range sorted.Values {
				items[i] = scalarObj(v)
			}
			return listObj(items), nil
		}
		return seriesObj(sorted), nil
	}
	return object{}, fmt.Errorf("cannot sort a %s", x.typeName())
}

func sortCost(x object) int {
	n, _ := x.length()
	if n < 2 {
		return n
	}
	return int(float64(n) * math.Log2(float64(n)))
}

func sortSeries(s *Series, desc bool) *Series {
	order := make([]int, s.Len())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return compareForSort(s.Values[order[a]], s.Values[order[b]], desc) < 0
	})
	out := &Series{Name: s.Name, Index: s.Index, Labels: make([]dataset.Value, len(order)), Values: make([]dataset.Value, len(order))}
	for i, j := range order {
		if j < len(s.Labels) {
			out.Labels[i] = s.Labels[j]
		}
		out.Values[i] = s.Values[j]
	}
	return out
}

func fnHead(ev *evaluator, _ string, args []object, kw map[string]object) (object, error) {
	n := 5
	if len(args) > 1 {
		v, err := wantInt("n", args[1])
		if err != nil {
			return object{}, err
		}
		n = v
	}
	if o, ok := kw["n"]; ok {
		v, err := wantInt("n", o)
		if err != nil {
			return object{}, err
		}
		n = v
	}
	if n < 0 {
		n = 0
	}

	x := args[0]
	switch x.kind {
	case objTable:
		return tableObj(HeadRows(x.table, n)), nil
	case objSeries:
		if n > x.series.Len() {
			n = x.series.Len()
		}
		labels := x.series.Labels
		if len(labels) > n {
			labels = labels[:n]
		}
		return seriesObj(&Series{Name: x.series.Name, Index: x.series.Index, Labels: labels, Values: x.series.Values[:n]}), nil
	case objList:
		if n > len(x.list) {
			n = len(x.list)
		}
		return listObj(x.list[:n]), nil
	}
	return object{}, fmt.Errorf("cannot take the head of a %s", x.typeName())
}

// fnGroup: group(table, by, agg="count", col=none, sort="key").
// One key gives a series labeled by key; several keys give a table.
func fnGroup(ev *evaluator, fn string, args []object, kw map[string]object) (object, error) {
	view, err := wantTable(fn, args[0])
	if err != nil {
		return object{}, err
	}
	by, err := stringList(args[1])
	if err != nil {
		return object{}, err
	}
	if len(by) == 0 {
		return object{}, errors.New("needs at least one column to group by")
	}

	get := func(pos int, name string) (object, bool) {
		if o, ok := kw[name]; ok {
			return o, true
		}
		if pos < len(args) {
			return args[pos], true
		}
		return object{}, false
	}

	agg := "count"
	if o, ok := get(2, "agg"); ok {
		if agg, err = wantString("agg", o); err != nil {
			return object{}, err
		}
	}
	colName := ""
	if o, ok := get(3, "col"); ok && !(o.isScalar() && o.scalar.IsMissing()) {
		if colName, err = wantString("col", o); err != nil {
			return object{}, err
		}
	}
	sortBy := "key"
	if o, ok := kw["sort"]; ok {
		if sortBy, err = wantString("sort", o); err != nil {
			return object{}, err
		}
	}

	byCols := make([]int, len(by))
	keyColumns := make([]dataset.Column, len(by))
	for i, name := range by {
		ci, err := columnIndex(view, name)
		if err != nil {
			return object{}, err
		}
		byCols[i] = ci
		keyColumns[i] = view.Columns()[ci]
	}
	col := -1
	if colName != "" {
		if col, err = columnIndex(view, colName); err != nil {
			return object{}, err
		}
	} else if normalizeAggregation(agg) != "count" {
		return object{}, fmt.Errorf("aggregation %q needs a column, e.g. group(%s, %q, %q, \"Qty\")", agg, view.Name(), by[0], agg)
	}

	if err := ev.charge(view.Len()); err != nil {
		return object{}, err
	}
	groups, err := GroupAndAggregate(view, byCols, agg, col, sortBy, 0)
	if err != nil {
		return object{}, err
	}

	valueName := colName
	if valueName == "" {
		valueName = "count"
	}
	if len(by) == 1 {
		return seriesObj(BuildGroupSeries(groups, by[0], valueName)), nil
	}
	return tableObj(NewTableView(BuildGroupTable(groups, keyColumns, valueName))), nil
}

// fnUnique: unique(series|list) or unique(table, column-or-expr).
func fnUnique(ev *evaluator, c *CallExpr) (object, error) {
	vals, err := ev.tableAndValues(c)
	if err != nil {
		return object{}, wrapCallError(c, err)
	}
	u := UniqueValues(vals)
	items := make([]object, len(u))
	for i, v := range u {
		items[i] = scalarObj(v)
	}
	return listObj(items), nil
}

func fnColumn(ev *evaluator, fn string, args []object, _ map[string]object) (object, error) {
	view, err := wantTable(fn, args[0])
	if err != nil {
		return object{}, err
	}
	name, err := wantString("column name", args[1])
	if err != nil {
		return object{}, err
	}
	return ev.columnSeries(view, name)
}

// fnCount: count(table) rows, count(table, condition) matching rows,
// count(series|list) non-missing values.
func fnCount(ev *evaluator, c *CallExpr) (object, error) {
	first, err := ev.eval(c.Args[0])
	if err != nil {
		return object{}, err
	}
	if first.kind == objTable {
		if len(c.Args) == 1 {
			return numberObj(float64(first.table.Len())), nil
		}
		if lit, ok := c.Args[1].(*Literal); ok && lit.Value.Kind() == dataset.KindString {
			vals, err := ev.rowValues(first.table, lit, "count() column")
			if err != nil {
				return object{}, wrapCallError(c, err)
			}
			return numberObj(float64(CountValues(vals))), nil
		}
		n := 0
		for i := 0; i < first.table.Len(); i++ {
			v, err := ev.evalRow(first.table, i, c.Args[1], "count() condition")
			if err != nil {
				return object{}, wrapCallError(c, err)
			}
			if truthy(v) {
				n++
			}
		}
		return numberObj(float64(n)), nil
	}
	if len(c.Args) > 1 {
		return object{}, errors.New("count() takes a condition only when the first argument is a table")
	}
	vals, ok := first.values()
	if !ok {
		return object{}, fmt.Errorf("count() expects a table, series or list, got %s", first.typeName())
	}
	return numberObj(float64(CountValues(vals))), nil
}

// ============================================================================
// NUMERIC
// ============================================================================

func fnRound(ev *evaluator, _ string, args []object, kw map[string]object) (object, error) {
	digits := 0
	if len(args) > 1 {
		d, err := wantInt("digits", args[1])
		if err != nil {
			return object{}, err
		}
		digits = d
	}
	if o, ok := kw["digits"]; ok {
		d, err := wantInt("digits", o)
		if err != nil {
			return object{}, err
		}
		digits = d
	}
	return ev.mapObject(args[0], func(v dataset.Value) (dataset.Value, error) {
		switch v.Kind() {
		case dataset.KindMissing:
			return v, nil
		case dataset.KindNumber:
			return dataset.Number(RoundTo(v.Num(), digits)), nil
		}
		return dataset.Missing(), fmt.Errorf("cannot round %s", v.Kind())
	})
}

func fnAbs(ev *evaluator, _ string, args []object, _ map[string]object) (object, error) {
	return ev.mapObject(args[0], func(v dataset.Value) (dataset.Value, error) {
		switch v.Kind() {
		case dataset.KindMissing:
			return v, nil
		case dataset.KindNumber:
			return dataset.Number(math.Abs(v.Num())), nil
		}
		return dataset.Missing(), fmt.Errorf("cannot take abs of %s", v.Kind())
	})
}

// ============================================================================
// TEXT AND DATE HELPERS
// ============================================================================

func textMap(name string, f func(string) string) eagerFunc {
	return func(ev *evaluator, _ string, args []object, _ map[string]object) (object, error) {
		return ev.mapObject(args[0], func(v dataset.Value) (dataset.Value, error) {
			switch v.Kind() {
			case dataset.KindMissing:
				return v, nil
			case dataset.KindString:
				return dataset.String(f(v.Str())), nil
			}
			return dataset.Missing(), fmt.Errorf("expects text, got %s", v.Kind())
		})
	}
}

func textTest(name string, f func(s, sub string) bool) eagerFunc {
	return func(ev *evaluator, _ string, args []object, kw map[string]object) (object, error) {
		sub, err := wantString("search text", args[1])
		if err != nil {
			return object{}, err
		}
		caseSensitive := true
		if o, ok := kw["case"]; ok {
			if caseSensitive, err = wantBool("case", o); err != nil {
				return object{}, err
			}
		}
		if !caseSensitive {
			sub = strings.ToLower(sub)
		}
		return ev.mapObject(args[0], func(v dataset.Value) (dataset.Value, error) {
			switch v.Kind() {
			case dataset.KindMissing:
				return dataset.Bool(false), nil
			case dataset.KindString:
				s := v.Str()
				if !caseSensitive {
					s = strings.ToLower(s)
				}
				return dataset.Bool(f(s, sub)), nil
			}
			return dataset.Missing(), fmt.Errorf("%s expects text, got %s", name, v.Kind())
		})
	}
}

func datePart(name string, f func(time.Time) int) eagerFunc {
	return func(ev *evaluator, _ string, args []object, _ map[string]object) (object, error) {
		return ev.mapObject(args[0], func(v dataset.Value) (dataset.Value, error) {
			switch v.Kind() {
			case dataset.KindMissing:
				return v, nil
			case dataset.KindDate:
				return dataset.Number(float64(f(v.Time()))), nil
			}
			return dataset.Missing(), fmt.Errorf("%s expects a date, got %s (convert text with date(...))", name, v.Kind())
		})
	}
}

func fnIsNull(ev *evaluator, _ string, args []object, _ map[string]object) (object, error) {
	return ev.mapObject(args[0], func(v dataset.Value) (dataset.Value, error) {
		return dataset.Bool(v.IsMissing()), nil
	})
}

// fnCol reads a column of the current row by name, for names that are not
// valid identifiers ("Open Date").
func fnCol(ev *evaluator, c *CallExpr) (object, error) {
	if ev.row == nil {
		return object{}, errors.New("col() can only be used inside a row expression, e.g. filter(holdings, col(\"Open Date\") > date(\"01-01-2020\"))")
	}
	row := ev.row
	// The name is evaluated outside the row so it cannot itself be a column.
	ev.row = nil
	nameObj, err := ev.eval(c.Args[0])
	ev.row = row
	if err != nil {
		return object{}, err
	}
	name, err := wantString("col() name", nameObj)
	if err != nil {
		return object{}, err
	}
	ci, err := columnIndex(row.view, name)
	if err != nil {
		return object{}, err
	}
	return scalarObj(row.view.Value(row.row, ci)), nil
}
