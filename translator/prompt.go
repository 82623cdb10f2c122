package translator

import (
	"fmt"
	"strings"

	"github.com/spektr-org/finchat/engine"
)

// ============================================================================
// PROMPT BUILDER — Schema-driven instructions for program generation
// ============================================================================
// The model sees the schema description (column names and kinds) and the
// rules of the query language. It never sees data rows.
//
// Sections:
//   - role + schema
//   - date handling rules
//   - text matching rules (only with case-insensitive search)
//   - column naming rule (use the real name, explain it in `note`)
//   - language reference: bindings, functions, operators
//   - fallback when the question cannot be answered
// ============================================================================

// Fallback is the program the model is told to return when it cannot answer.
const Fallback = `result = "Sorry, cannot find the answer"`

// Request is a ready-to-send prompt.
type Request struct {
	System string
	User   string
}

// PromptOptions toggles optional prompt sections.
type PromptOptions struct {
	CaseInsensitive bool   // add the lower() matching rule
	DateFormat      string // how user dates are written in examples, e.g. "04-03-2020"
}

// DefaultPromptOptions matches the default chatbot settings.
func DefaultPromptOptions() PromptOptions {
	return PromptOptions{CaseInsensitive: true, DateFormat: "04-03-2020"}
}

// BuildPrompt assembles the system instructions around schemaText and pairs
// them with the question.
func BuildPrompt(schemaText, question string, opts PromptOptions) Request {
	example := opts.DateFormat
	if example == "" {
		example = "04-03-2020"
	}

	var b strings.Builder

	// ── Header ────────────────────────────────────────────────────────────
	b.WriteString("You are a financial data analyst. Answer by writing ONLY a program in FQL, the query language described below.\n\n")
	b.WriteString(strings.TrimRight(schemaText, "\n"))
	b.WriteString("\n\n")

	// ── Dates ─────────────────────────────────────────────────────────────
	fmt.Fprintf(&b, `DATE HANDLING RULES:
- Users write dates in any format: '04/03/20', '04-03-2020', 'April 3 2020'.
- Date columns hold dates. ALWAYS wrap a user date in date("...") before comparing.
- Compare dates with dates, never with text.
- Example: result = sum(filter(holdings, OpenDate == date("%s")), Qty)

`, example)

	// ── Text matching ─────────────────────────────────────────────────────
	if opts.CaseInsensitive {
		b.WriteString(`TEXT MATCHING RULES:
- Match names case-insensitively: lower(Column) == "lowercase text".
- Example: filter(holdings, lower(PortfolioName) == "garfield")

`)
	}

	// ── Column names ──────────────────────────────────────────────────────
	b.WriteString(`COLUMN NAMES:
- Column names are case-sensitive. Always use the exact name from DATASETS AVAILABLE.
- If the user's word is similar to a column name (e.g. "opendate" for OpenDate), use the real column
  and explain it: note = "Used column OpenDate for 'opendate'."
- Names with spaces are read with col("Column Name") inside row expressions.

`)

	// ── Language reference ────────────────────────────────────────────────
	b.WriteString(languageReference())

	// ── Fallback ──────────────────────────────────────────────────────────
	fmt.Fprintf(&b, `If no data matches or the question is unclear, return:
%s

Return ONLY the FQL program. No markdown, no code fences, no explanations.
`, Fallback)

	return Request{System: b.String(), User: question}
}

func languageReference() string {
	var b strings.Builder
	b.WriteString(`FQL RULES:
- One statement per line: name = expression. Comments start with #.
- Store the final answer in result. Optionally set note to a short text.
- Datasets: holdings, trades.
- Row expressions: in filter, count, sum, mean, min, max, unique and nunique the second
  argument is evaluated per row, with that row's columns available by name.
  A quoted string there names a column: sum(holdings, "Qty").
- Operators: + - * / %  == != < <= > >=  and or not. Indexing: table["Col"], series["label"], list[0].
- No attributes, methods, imports or loops.
`)
	fmt.Fprintf(&b, "- Functions: %s\n", strings.Join(engine.FunctionNames(), ", "))
	b.WriteString(`
FUNCTION REFERENCE:
  filter(table, condition)                  rows where condition is true
  select(table, "A", "B")                   keep columns
  sort(table, "Col", desc=true)             order rows (also sorts a series or list)
  head(x, n)                                first n rows or values (default 5)
  group(table, "Col" or ["A","B"], agg="sum", col="Qty", sort="value_desc")
                                            agg: sum count mean median min max nunique
  count(table) / count(table, condition)    number of rows
  sum/mean/min/max(table, expr)             aggregate a column or expression
  unique(table, Col) / nunique(table, Col)  distinct values / how many
  column(table, "Col")                      column as a series
  len(x), round(x, digits), abs(x)
  lower(s), upper(s), contains(s, "text", case=false), startswith(s, "text")
  date("04-03-2020") or date(2020, 3, 4), year(d), month(d), day(d), isnull(x)

EXAMPLES:
  result = count(filter(trades, lower(PortfolioName) == "garfield"))
  result = group(holdings, "PortfolioName", agg="sum", col="Qty", sort="value_desc")
  rows = filter(holdings, OpenDate > date("01-01-2020"))
  result = head(sort(select(rows, "SecurityId", "Qty"), "Qty", desc=true), 10)

`)
	return b.String()
}
