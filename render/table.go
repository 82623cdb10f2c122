package render

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/spektr-org/finchat/dataset"
)

// ============================================================================
// TABLE RENDERING — lipgloss tables for series and tabular results
// ============================================================================

// MaxRows caps how many rows Table prints; the rest are summarized.
const MaxRows = 60

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
)

// Table renders t as a bordered text table. Number columns are right-aligned.
func (f *Formatter) Table(t *dataset.Table) string {
	rows := t.Len()
	truncated := 0
	if rows > MaxRows {
		truncated = rows - MaxRows
		rows = MaxRows
	}

	data := make([][]string, rows)
	for i := range data {
		row := make([]string, len(t.Columns))
		for j := range t.Columns {
			row[j] = f.cell(t.Value(i, j))
		}
		data[i] = row
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(t.ColumnNames()...).
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col < len(t.Columns) && t.Columns[col].Kind == dataset.KindNumber {
				return numberStyle
			}
			return cellStyle
		})

	var b strings.Builder
	b.WriteString(tbl.String())
	if truncated > 0 {
		b.WriteString("\n")
		b.WriteString(f.numbers().Sprintf("... %d more rows (%d total)", truncated, t.Len()))
	}
	return b.String()
}
