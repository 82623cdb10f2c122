package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spektr-org/finchat/dataset"
	"github.com/spektr-org/finchat/engine"
)

// ============================================================================
// EXPORT — Results as CSV (ready for Sheets/Excel) or JSON
// ============================================================================

// WriteCSV writes a result as CSV. Series become label/value columns,
// scalars a single Result/Value row.
func WriteCSV(w io.Writer, res *engine.Result) error {
	cw := csv.NewWriter(w)

	switch {
	case res == nil || res.Kind == engine.ResultAbsent:
		_ = cw.Write([]string{"Result", "No data"})
	case res.Kind == engine.ResultScalar:
		_ = cw.Write([]string{"Result"})
		_ = cw.Write([]string{plain(res.Scalar)})
	default:
		t := res.Table
		if res.Kind == engine.ResultSeries {
			t = engine.SeriesTable(res.Series)
		}
		_ = cw.Write(t.ColumnNames())
		for i := 0; i < t.Len(); i++ {
			row := make([]string, len(t.Columns))
			for j := range row {
				row[j] = plain(t.Value(i, j))
			}
			_ = cw.Write(row)
		}
	}

	cw.Flush()
	return cw.Error()
}

// plain renders a cell for machine-readable output: no grouping, missing
// is empty.
func plain(v dataset.Value) string {
	if v.IsMissing() {
		return ""
	}
	return v.String()
}

// Output is the JSON shape of one answered question.
type Output struct {
	ID       string   `json:"id,omitempty"`
	Question string   `json:"question,omitempty"`
	Program  string   `json:"program,omitempty"`
	Answer   string   `json:"answer"`
	Note     string   `json:"note,omitempty"`
	Kind     string   `json:"kind"`
	Columns  []string `json:"columns,omitempty"`
	Rows     [][]any  `json:"rows,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// NewOutput fills the result fields of an Output.
func NewOutput(res *engine.Result) Output {
	out := Output{Kind: engine.ResultAbsent.String()}
	if res == nil {
		return out
	}
	out.Kind = res.Kind.String()
	out.Note = res.Note
	switch res.Kind {
	case engine.ResultScalar:
		out.Columns = []string{"result"}
		out.Rows = [][]any{{jsonValue(res.Scalar)}}
	case engine.ResultSeries, engine.ResultTable:
		t := res.Table
		if res.Kind == engine.ResultSeries {
			t = engine.SeriesTable(res.Series)
		}
		out.Columns = t.ColumnNames()
		out.Rows = make([][]any, t.Len())
		for i := range out.Rows {
			row := make([]any, len(t.Columns))
			for j := range row {
				row[j] = jsonValue(t.Value(i, j))
			}
			out.Rows[i] = row
		}
	}
	return out
}

// WriteJSON writes v as JSON, indented when pretty is set.
func WriteJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	return nil
}

func jsonValue(v dataset.Value) any {
	switch v.Kind() {
	case dataset.KindNumber:
		return v.Num()
	case dataset.KindBool:
		return v.BoolValue()
	case dataset.KindMissing:
		return nil
	}
	return v.String()
}
