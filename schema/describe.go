package schema

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/spektr-org/finchat/dataset"
)

// ============================================================================
// DESCRIBER — Text block injected into the system prompt
// ============================================================================
// Output shape:
//
//	DATASETS AVAILABLE:
//
//	1. holdings (12 records)
//	   Columns: PortfolioName (text), Qty (number), OpenDate (date)
//
//	2. trades (40 records)
//	   Columns: ...
//
//	IMPORTANT: All date columns are already typed as dates.
//
// The closing note is only true when the session normalized date columns,
// so it is controlled by datesTyped.
// ============================================================================

// DatesTypedNote closes the description when date columns were normalized.
const DatesTypedNote = "IMPORTANT: All date columns are already typed as dates."

// Describe renders the dataset block for the prompt. Row counts are written
// without grouping so the model sees plain integers.
func Describe(tables []*dataset.Table, datesTyped bool) string {
	var b strings.Builder
	b.WriteString("DATASETS AVAILABLE:\n")
	for i, t := range tables {
		b.WriteString("\n")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(t.Name)
		b.WriteString(" (")
		b.WriteString(strconv.Itoa(t.Len()))
		b.WriteString(" records)\n")
		b.WriteString("   Columns: ")
		for j, c := range t.Columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(c.Name)
			b.WriteString(" (")
			b.WriteString(kindLabel(c.Kind))
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	if datesTyped {
		b.WriteString("\n")
		b.WriteString(DatesTypedNote)
		b.WriteString("\n")
	}
	return b.String()
}

// Summary renders record counts (thousands-grouped) and column lists, one
// block per table.
func Summary(tables []*dataset.Table) string {
	p := message.NewPrinter(language.English)
	title := cases.Title(language.English)

	var b strings.Builder
	b.WriteString("Data Summary:\n")
	for _, t := range tables {
		b.WriteString(p.Sprintf("   %s: %d records\n", title.String(t.Name), t.Len()))
	}
	b.WriteString("\n")
	for _, t := range tables {
		b.WriteString(p.Sprintf("   %s Columns: %s\n", title.String(t.Name), strings.Join(t.ColumnNames(), ", ")))
	}
	return b.String()
}

func kindLabel(k dataset.Kind) string {
	if k == dataset.KindMissing {
		return dataset.KindString.String()
	}
	return k.String()
}
