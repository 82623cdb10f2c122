package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/spektr-org/finchat/dataset"
)

// ============================================================================
// EVALUATOR — Tree-walking evaluation of a parsed program
// ============================================================================
// Name resolution:
//   - inside a row expression (filter/count/sum/... second argument) a bare
//     name is first looked up as a column of the current row
//   - otherwise names resolve in the program scope, which starts out holding
//     only the datasets
// Every node and every visited row costs one step; the context is polled
// every pollEvery steps.
// ============================================================================

const pollEvery = 1024

type rowContext struct {
	view TableView
	row  int
}

type evaluator struct {
	ctx   context.Context
	env   Env
	cfg   *config
	scope map[string]object
	row   *rowContext
	steps int
}

func newEvaluator(ctx context.Context, env Env, cfg *config) *evaluator {
	ev := &evaluator{ctx: ctx, env: env, cfg: cfg, scope: make(map[string]object)}
	for name, t := range env.Datasets {
		if t != nil {
			ev.scope[name] = tableObj(NewTableView(t))
		}
	}
	return ev
}

// charge spends n steps and enforces the step budget and the deadline.
func (ev *evaluator) charge(n int) error {
	before := ev.steps
	ev.steps += n
	if ev.cfg.StepLimit > 0 && ev.steps > ev.cfg.StepLimit {
		return execErrorf(StageLimit, "program exceeded the step limit of %d", ev.cfg.StepLimit)
	}
	if ev.steps/pollEvery != before/pollEvery {
		if err := ev.ctx.Err(); err != nil {
			return contextError(err, ev.cfg)
		}
	}
	return nil
}

func contextError(err error, cfg *config) *ExecutionError {
	if errors.Is(err, context.DeadlineExceeded) {
		if cfg.Timeout > 0 {
			return execErrorf(StageTimeout, "program timed out after %s", cfg.Timeout)
		}
		return execErrorf(StageTimeout, "program timed out")
	}
	return execErrorf(StageTimeout, "program execution cancelled")
}

func (ev *evaluator) eval(e Expr) (object, error) {
	if err := ev.charge(1); err != nil {
		return object{}, err
	}
	switch n := e.(type) {
	case *Literal:
		return scalarObj(n.Value), nil
	case *Ident:
		return ev.lookup(n)
	case *ListExpr:
		items := make([]object, 0, len(n.Elems))
		for _, el := range n.Elems {
			o, err := ev.eval(el)
			if err != nil {
				return object{}, err
			}
			items = append(items, o)
		}
		return listObj(items), nil
	case *UnaryExpr:
		x, err := ev.eval(n.X)
		if err != nil {
			return object{}, err
		}
		return ev.unary(n.Op, x)
	case *BinaryExpr:
		return ev.binary(n)
	case *CallExpr:
		return builtins[n.Func].call(ev, n)
	case *IndexExpr:
		return ev.index(n)
	}
	return object{}, fmt.Errorf("unsupported expression %T", e)
}

// ============================================================================
// NAMES
// ============================================================================

func (ev *evaluator) lookup(id *Ident) (object, error) {
	if ev.row != nil {
		if c, ok := ev.row.view.ColumnIndex(id.Name); ok {
			return scalarObj(ev.row.view.Value(ev.row.row, c)), nil
		}
	}
	if o, ok := ev.scope[id.Name]; ok {
		return o, nil
	}
	return object{}, ev.nameError(id.Name)
}

func (ev *evaluator) nameError(name string) error {
	lower := strings.ToLower(name)
	if ev.row != nil {
		for _, c := range ev.row.view.Columns() {
			if strings.ToLower(c.Name) == lower {
				return fmt.Errorf("column %q not found in %s (did you mean %s?)", name, ev.row.view.Name(), c.Name)
			}
		}
	}
	if hint := ev.columnHint(lower); hint != "" {
		return fmt.Errorf("name %q is not defined (did you mean column %s? columns are only visible inside row expressions such as filter(%s, ...))",
			name, hint, ev.datasetForColumn(lower))
	}
	for n := range ev.scope {
		if strings.ToLower(n) == lower {
			return fmt.Errorf("name %q is not defined (did you mean %s?)", name, n)
		}
	}
	return fmt.Errorf("name %q is not defined", name)
}

// columnHint looks a lowercase name up in the session column maps.
func (ev *evaluator) columnHint(lower string) string {
	for _, ds := range ev.datasetNames() {
		if canon, ok := ev.env.ColumnMaps[ds][lower]; ok {
			return canon
		}
	}
	return ""
}

func (ev *evaluator) datasetForColumn(lower string) string {
	for _, ds := range ev.datasetNames() {
		if _, ok := ev.env.ColumnMaps[ds][lower]; ok {
			return ds
		}
	}
	return "table"
}

func (ev *evaluator) datasetNames() []string {
	names := make([]string, 0, len(ev.env.ColumnMaps))
	for n := range ev.env.ColumnMaps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// columnIndex resolves a column of view with a case-insensitive hint on miss.
func columnIndex(view TableView, name string) (int, error) {
	if i, ok := view.ColumnIndex(name); ok {
		return i, nil
	}
	lower := strings.ToLower(name)
	for _, c := range view.Columns() {
		if strings.ToLower(c.Name) == lower {
			return -1, fmt.Errorf("column %q not found in %s (did you mean %s?)", name, view.Name(), c.Name)
		}
	}
	return -1, fmt.Errorf("column %q not found in %s", name, view.Name())
}

// ============================================================================
// ROW EXPRESSIONS
// ============================================================================

// evalRow evaluates e with the columns of one row in scope. The result must
// be a scalar.
func (ev *evaluator) evalRow(view TableView, row int, e Expr, what string) (dataset.Value, error) {
	if err := ev.charge(1); err != nil {
		return dataset.Missing(), err
	}
	saved := ev.row
	ev.row = &rowContext{view: view, row: row}
	o, err := ev.eval(e)
	ev.row = saved
	if err != nil {
		return dataset.Missing(), err
	}
	if !o.isScalar() {
		return dataset.Missing(), fmt.Errorf("%s must give one value per row, got a %s; refer to columns by name, e.g. filter(%s, Qty > 0)",
			what, o.typeName(), view.Name())
	}
	return o.scalar, nil
}

// rowValues evaluates e for every row. A string literal names a column.
func (ev *evaluator) rowValues(view TableView, e Expr, what string) ([]dataset.Value, error) {
	if lit, ok := e.(*Literal); ok && lit.Value.Kind() == dataset.KindString {
		c, err := columnIndex(view, lit.Value.Str())
		if err != nil {
			return nil, err
		}
		if err := ev.charge(view.Len()); err != nil {
			return nil, err
		}
		return columnValues(view, c), nil
	}
	out := make([]dataset.Value, view.Len())
	for i := range out {
		v, err := ev.evalRow(view, i, e, what)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ============================================================================
// OPERATORS
// ============================================================================

func (ev *evaluator) unary(op string, x object) (object, error) {
	f := func(v dataset.Value) (dataset.Value, error) {
		switch op {
		case "not":
			if v.IsMissing() {
				return dataset.Bool(true), nil
			}
			return dataset.Bool(!truthy(v)), nil
		default: // "-"
			switch v.Kind() {
			case dataset.KindMissing:
				return v, nil
			case dataset.KindNumber:
				return dataset.Number(-v.Num()), nil
			}
			return dataset.Missing(), fmt.Errorf("cannot negate %s", v.Kind())
		}
	}
	return ev.mapObject(x, f)
}

func (ev *evaluator) binary(n *BinaryExpr) (object, error) {
	x, err := ev.eval(n.X)
	if err != nil {
		return object{}, err
	}

	// Short-circuit on scalars.
	if x.isScalar() && (n.Op == "and" || n.Op == "or") {
		t := truthy(x.scalar)
		if n.Op == "and" && !t {
			return boolObj(false), nil
		}
		if n.Op == "or" && t {
			return boolObj(true), nil
		}
	}

	y, err := ev.eval(n.Y)
	if err != nil {
		return object{}, err
	}
	return ev.zipObjects(x, y, func(a, b dataset.Value) (dataset.Value, error) {
		return binaryOp(n.Op, a, b)
	})
}

func binaryOp(op string, a, b dataset.Value) (dataset.Value, error) {
	switch op {
	case "and":
		return dataset.Bool(truthy(a) && truthy(b)), nil
	case "or":
		return dataset.Bool(truthy(a) || truthy(b)), nil
	case "==", "!=", "<", "<=", ">", ">=":
		return compareOp(op, a, b)
	}
	return arithmeticOp(op, a, b)
}

func compareOp(op string, a, b dataset.Value) (dataset.Value, error) {
	if isDateText(a, b) || isDateText(b, a) {
		return dataset.Missing(), fmt.Errorf("cannot compare a date with text; wrap the text in date(\"...\"), e.g. OpenDate == date(\"04-03-2020\")")
	}
	if a.IsMissing() || b.IsMissing() {
		return dataset.Bool(op == "!="), nil
	}
	c, ok := a.Compare(b)
	if !ok {
		switch op {
		case "==":
			return dataset.Bool(false), nil
		case "!=":
			return dataset.Bool(true), nil
		}
		return dataset.Missing(), fmt.Errorf("cannot compare %s with %s using %s", a.Kind(), b.Kind(), op)
	}
	var r bool
	switch op {
	case "==":
		r = c == 0
	case "!=":
		r = c != 0
	case "<":
		r = c < 0
	case "<=":
		r = c <= 0
	case ">":
		r = c > 0
	case ">=":
		r = c >= 0
	}
	return dataset.Bool(r), nil
}

func isDateText(a, b dataset.Value) bool {
	return a.Kind() == dataset.KindDate && b.Kind() == dataset.KindString
}

const day = 24 * 60 * 60

func arithmeticOp(op string, a, b dataset.Value) (dataset.Value, error) {
	if a.IsMissing() || b.IsMissing() {
		return dataset.Missing(), nil
	}
	an, aok, _ := numericOf(a)
	bn, bok, _ := numericOf(b)
	if aok && bok {
		switch op {
		case "+":
			return dataset.Number(an + bn), nil
		case "-":
			return dataset.Number(an - bn), nil
		case "*":
			return dataset.Number(an * bn), nil
		case "/":
			if bn == 0 {
				return dataset.Missing(), errors.New("division by zero")
			}
			return dataset.Number(an / bn), nil
		case "%":
			if bn == 0 {
				return dataset.Missing(), errors.New("division by zero")
			}
			return dataset.Number(an - bn*math.Floor(an/bn)), nil
		}
	}
	switch {
	case op == "+" && a.Kind() == dataset.KindString && b.Kind() == dataset.KindString:
		return dataset.String(a.Str() + b.Str()), nil
	case op == "-" && a.Kind() == dataset.KindDate && b.Kind() == dataset.KindDate:
		// Difference in days.
		return dataset.Number(a.Time().Sub(b.Time()).Seconds() / day), nil
	case (op == "+" || op == "-") && a.Kind() == dataset.KindDate && b.Kind() == dataset.KindNumber:
		days := b.Num()
		if op == "-" {
			days = -days
		}
		return dataset.Date(a.Time().Add(secondsDuration(days * day))), nil
	}
	return dataset.Missing(), fmt.Errorf("cannot apply %s to %s and %s", op, a.Kind(), b.Kind())
}

func secondsDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ============================================================================
// ELEMENTWISE HELPERS
// ============================================================================

// mapObject applies f to a scalar, or to each element of a series or list.
func (ev *evaluator) mapObject(x object, f func(dataset.Value) (dataset.Value, error)) (object, error) {
	switch x.kind {
	case objScalar:
		v, err := f(x.scalar)
		return scalarObj(v), err
	case objSeries:
		if err := ev.charge(x.series.Len()); err != nil {
			return object{}, err
		}
		out := make([]dataset.Value, x.series.Len())
		for i, v := range x.series.Values {
			r, err := f(v)
			if err != nil {
				return object{}, err
			}
			out[i] = r
		}
		return seriesObj(&Series{Name: x.series.Name, Index: x.series.Index, Labels: x.series.Labels, Values: out}), nil
	case objList:
		vals, ok := x.values()
		if !ok {
			return object{}, errors.New("list elements must be single values")
		}
		s, err := ev.mapObject(seriesObj(newPositionalSeries("", vals)), f)
		if err != nil {
			return object{}, err
		}
		items := make([]object, s.series.Len())
		for i, v := range s.series.Values {
			items[i] = scalarObj(v)
		}
		return listObj(items), nil
	}
	return object{}, fmt.Errorf("cannot apply this operation to a %s", x.typeName())
}

// zipObjects applies f pairwise, broadcasting scalars over series.
func (ev *evaluator) zipObjects(x, y object, f func(a, b dataset.Value) (dataset.Value, error)) (object, error) {
	switch {
	case x.isScalar() && y.isScalar():
		v, err := f(x.scalar, y.scalar)
		return scalarObj(v), err
	case x.kind == objSeries && y.isScalar():
		return ev.mapObject(x, func(v dataset.Value) (dataset.Value, error) { return f(v, y.scalar) })
	case x.isScalar() && y.kind == objSeries:
		return ev.mapObject(y, func(v dataset.Value) (dataset.Value, error) { return f(x.scalar, v) })
	case x.kind == objSeries && y.kind == objSeries:
		if x.series.Len() != y.series.Len() {
			return object{}, fmt.Errorf("cannot combine series of length %d and %d", x.series.Len(), y.series.Len())
		}
		if err := ev.charge(x.series.Len()); err != nil {
			return object{}, err
		}
		out := make([]dataset.Value, x.series.Len())
		for i := range out {
			v, err := f(x.series.Values[i], y.series.Values[i])
			if err != nil {
				return object{}, err
			}
			out[i] = v
		}
		return seriesObj(&Series{Name: x.series.Name, Index: x.series.Index, Labels: x.series.Labels, Values: out}), nil
	}
	return object{}, fmt.Errorf("operator not supported between %s and %s", x.typeName(), y.typeName())
}

// ============================================================================
// INDEXING
// ============================================================================

func (ev *evaluator) index(n *IndexExpr) (object, error) {
	x, err := ev.eval(n.X)
	if err != nil {
		return object{}, err
	}
	idx, err := ev.eval(n.Index)
	if err != nil {
		return object{}, err
	}

	switch x.kind {
	case objTable:
		switch {
		case idx.isKind(dataset.KindString):
			return ev.columnSeries(x.table, idx.scalar.Str())
		case idx.kind == objList:
			names, err := stringList(idx)
			if err != nil {
				return object{}, err
			}
			v, err := ProjectColumns(x.table, names)
			if err != nil {
				return object{}, err
			}
			return tableObj(v), nil
		case idx.kind == objSeries:
			mask, err := boolMask(idx.series, x.table.Len())
			if err != nil {
				return object{}, err
			}
			v, _ := FilterRows(x.table, func(i int) (bool, error) { return mask[i], nil })
			return tableObj(v), nil
		}
		return object{}, fmt.Errorf("a table can be indexed by a column name, a list of names or a true/false series, not a %s", idx.typeName())

	case objSeries:
		if idx.kind == objSeries {
			mask, err := boolMask(idx.series, x.series.Len())
			if err != nil {
				return object{}, err
			}
			out := &Series{Name: x.series.Name, Index: x.series.Index}
			for i, keep := range mask {
				if keep {
					out.Labels = append(out.Labels, x.series.Labels[i])
					out.Values = append(out.Values, x.series.Values[i])
				}
			}
			return seriesObj(out), nil
		}
		// Label lookup first, then position.
		if idx.isScalar() {
			for i, l := range x.series.Labels {
				if l.Equal(idx.scalar) {
					return scalarObj(x.series.Values[i]), nil
				}
			}
		}
		i, err := position(idx, x.series.Len())
		if err != nil {
			return object{}, err
		}
		return scalarObj(x.series.Values[i]), nil

	case objList:
		i, err := position(idx, len(x.list))
		if err != nil {
			return object{}, err
		}
		return x.list[i], nil
	}
	return object{}, fmt.Errorf("cannot index a %s", x.typeName())
}

func (ev *evaluator) columnSeries(view TableView, name string) (object, error) {
	c, err := columnIndex(view, name)
	if err != nil {
		return object{}, err
	}
	if err := ev.charge(view.Len()); err != nil {
		return object{}, err
	}
	return seriesObj(newPositionalSeries(view.Columns()[c].Name, columnValues(view, c))), nil
}

func boolMask(s *Series, n int) ([]bool, error) {
	if s.Len() != n {
		return nil, fmt.Errorf("true/false series has length %d, expected %d", s.Len(), n)
	}
	mask := make([]bool, n)
	for i, v := range s.Values {
		if !v.IsMissing() && v.Kind() != dataset.KindBool {
			return nil, fmt.Errorf("row selector must be true/false values, found %s", v.Kind())
		}
		mask[i] = truthy(v)
	}
	return mask, nil
}

func position(idx object, n int) (int, error) {
	if !idx.isKind(dataset.KindNumber) || !idx.scalar.IsIntegral() {
		return 0, fmt.Errorf("index must be a whole number, not %s", idx.typeName())
	}
	i := int(idx.scalar.Num())
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, fmt.Errorf("index %d out of range (length %d)", int(idx.scalar.Num()), n)
	}
	return i, nil
}

func stringList(o object) ([]string, error) {
	switch {
	case o.isKind(dataset.KindString):
		return []string{o.scalar.Str()}, nil
	case o.kind == objList:
		out := make([]string, 0, len(o.list))
		for _, it := range o.list {
			if !it.isKind(dataset.KindString) {
				return nil, fmt.Errorf("expected column names, found %s", it.typeName())
			}
			out = append(out, it.scalar.Str())
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a column name or a list of names, found %s", o.typeName())
}
