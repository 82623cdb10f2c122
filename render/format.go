package render

import (
	"math"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/spektr-org/finchat/dataset"
	"github.com/spektr-org/finchat/engine"
)

// ============================================================================
// RESULT FORMATTER — Turns an execution result into display text
// ============================================================================
// Priority:
//   1. text          → unchanged
//   2. number        → NaN/missing/zero: "0 (<empty message>)"
//                      whole: no decimals; fractional: DecimalPlaces
//                      grouped with thousands separators when enabled
//   3. series/table  → empty: the empty message; else "\n" + table
//   4. anything else → generic conversion
// ============================================================================

// DefaultEmptyResultMessage is shown for empty and zero results.
const DefaultEmptyResultMessage = "No results found"

// Formatter holds the display settings.
type Formatter struct {
	DecimalPlaces      int
	ThousandsSeparator bool
	EmptyResultMessage string

	printer *message.Printer
}

// NewFormatter creates a formatter. Negative decimal places become 0.
func NewFormatter(decimals int, thousands bool, emptyMessage string) *Formatter {
	if decimals < 0 {
		decimals = 0
	}
	if emptyMessage == "" {
		emptyMessage = DefaultEmptyResultMessage
	}
	return &Formatter{
		DecimalPlaces:      decimals,
		ThousandsSeparator: thousands,
		EmptyResultMessage: emptyMessage,
		printer:            message.NewPrinter(language.English),
	}
}

// DefaultFormatter uses 2 decimals, thousands separators and the default
// empty message.
func DefaultFormatter() *Formatter {
	return NewFormatter(2, true, DefaultEmptyResultMessage)
}

// Format renders a result. A nil or absent result renders as "None".
func (f *Formatter) Format(res *engine.Result) string {
	if res == nil {
		return "None"
	}
	switch res.Kind {
	case engine.ResultScalar:
		return f.FormatScalar(res.Scalar)
	case engine.ResultSeries:
		if res.Series.Len() == 0 {
			return f.EmptyResultMessage
		}
		return "\n" + f.Table(engine.SeriesTable(res.Series))
	case engine.ResultTable:
		if res.Table.Len() == 0 {
			return f.EmptyResultMessage
		}
		return "\n" + f.Table(res.Table)
	}
	return "None"
}

// FormatScalar renders a single value by the priority rules.
func (f *Formatter) FormatScalar(v dataset.Value) string {
	switch v.Kind() {
	case dataset.KindString:
		return v.Str()
	case dataset.KindNumber, dataset.KindMissing:
		n := v.Num()
		if v.IsMissing() || math.IsNaN(n) || n == 0 {
			return "0 (" + f.EmptyResultMessage + ")"
		}
		return f.FormatNumber(n)
	}
	return v.String()
}

// FormatNumber renders a non-empty number: whole numbers without decimals,
// others with DecimalPlaces, grouped when ThousandsSeparator is set.
func (f *Formatter) FormatNumber(n float64) string {
	if math.IsInf(n, 0) {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	whole := n == math.Trunc(n) && math.Abs(n) < 1e15
	if !f.ThousandsSeparator {
		if whole {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'f', f.DecimalPlaces, 64)
	}
	p := f.numbers()
	if whole {
		return p.Sprintf("%d", int64(n))
	}
	return p.Sprintf("%."+strconv.Itoa(f.DecimalPlaces)+"f", n)
}

func (f *Formatter) numbers() *message.Printer {
	if f.printer == nil {
		f.printer = message.NewPrinter(language.English)
	}
	return f.printer
}

// cell renders a table cell: numbers follow the number rules, missing is
// blank, everything else is its plain form.
func (f *Formatter) cell(v dataset.Value) string {
	switch v.Kind() {
	case dataset.KindMissing:
		return ""
	case dataset.KindNumber:
		if math.IsNaN(v.Num()) {
			return ""
		}
		return f.FormatNumber(v.Num())
	}
	return v.String()
}
