package engine

import (
	"fmt"

	"github.com/spektr-org/finchat/dataset"
)

// ============================================================================
// ENV — What a program can see
// ============================================================================

// Env binds the datasets a program may read. ColumnMaps (lowercase →
// canonical, per dataset name) only feed "did you mean" hints; lookups stay
// case-sensitive. Dates parses date("...") literals.
type Env struct {
	Datasets   map[string]*dataset.Table
	ColumnMaps map[string]map[string]string
	Dates      *dataset.DateParser
}

// ============================================================================
// RESULT — Output of one program execution
// ============================================================================

// ResultKind discriminates Result.
type ResultKind int

const (
	ResultAbsent ResultKind = iota
	ResultScalar
	ResultSeries
	ResultTable
)

func (k ResultKind) String() string {
	switch k {
	case ResultScalar:
		return "scalar"
	case ResultSeries:
		return "series"
	case ResultTable:
		return "table"
	}
	return "absent"
}

// Result is the value bound to `result` when the program finished, plus the
// optional `note` the program left for the reader.
type Result struct {
	Kind   ResultKind
	Scalar dataset.Value
	Series *Series
	Table  *dataset.Table
	Note   string
	Steps  int
}

// Len returns the entry count of a series or table result, 1 for a scalar and
// 0 when absent.
func (r *Result) Len() int {
	switch r.Kind {
	case ResultSeries:
		return r.Series.Len()
	case ResultTable:
		return r.Table.Len()
	case ResultScalar:
		return 1
	}
	return 0
}

// Series is a labeled sequence of scalars, e.g. the output of a grouped
// aggregation (labels = group keys) or a column (labels = row positions).
type Series struct {
	Name   string          // value column header
	Index  string          // label column header
	Labels []dataset.Value // one per value
	Values []dataset.Value
}

// Len returns the number of entries; nil-safe.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Values)
}

// newPositionalSeries labels values 0..n-1.
func newPositionalSeries(name string, values []dataset.Value) *Series {
	labels := make([]dataset.Value, len(values))
	for i := range values {
		labels[i] = dataset.Number(float64(i))
	}
	return &Series{Name: name, Labels: labels, Values: values}
}

// Group is a set of rows sharing a key, produced by the aggregation pipeline.
type Group struct {
	Keys  []dataset.Value // one per group-by column
	View  TableView       // the member rows
	Value dataset.Value   // aggregated value
	Count int
}

// Label joins the group keys for display.
func (g Group) Label() string {
	if len(g.Keys) == 1 {
		return g.Keys[0].String()
	}
	s := ""
	for i, k := range g.Keys {
		if i > 0 {
			s += " / "
		}
		s += k.String()
	}
	return s
}

// ============================================================================
// ERRORS
// ============================================================================

// Execution stages reported on ExecutionError.
const (
	StageParse   = "parse"
	StageEval    = "eval"
	StageResult  = "result"
	StageTimeout = "timeout"
	StageLimit   = "limit"
	StagePanic   = "panic"
)

// ExecutionError is the only error type Execute returns. Message is written
// for the person who asked the question.
type ExecutionError struct {
	Stage   string
	Message string
}

func (e *ExecutionError) Error() string { return e.Message }

func execErrorf(stage, format string, a ...any) *ExecutionError {
	return &ExecutionError{Stage: stage, Message: fmt.Sprintf(format, a...)}
}
