package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/spektr-org/finchat/dataset"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ── Test Data ─────────────────────────────────────────────────────────────────

func dateOf(y int, m time.Month, d int) dataset.Value {
	return dataset.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

func testEnv() Env {
	holdings := dataset.NewTable("holdings",
		[]dataset.Column{
			{Name: "PortfolioName", Kind: dataset.KindString},
			{Name: "SecurityId", Kind: dataset.KindString},
			{Name: "Qty", Kind: dataset.KindNumber},
			{Name: "Price", Kind: dataset.KindNumber},
			{Name: "OpenDate", Kind: dataset.KindDate},
		},
		[][]dataset.Value{
			{dataset.String("Garfield"), dataset.String("AAPL"), dataset.Number(100), dataset.Number(10.5), dateOf(2020, 3, 4)},
			{dataset.String("Garfield"), dataset.String("MSFT"), dataset.Number(40), dataset.Number(200), dateOf(2021, 6, 5)},
			{dataset.String("Heathcliff"), dataset.String("AAPL"), dataset.Number(250), dataset.Number(10.5), dateOf(2020, 3, 4)},
			{dataset.String("Nermal"), dataset.String("TSLA"), dataset.Missing(), dataset.Number(700), dataset.Missing()},
		},
	)
	trades := dataset.NewTable("trades",
		[]dataset.Column{
			{Name: "PortfolioName", Kind: dataset.KindString},
			{Name: "Side", Kind: dataset.KindString},
			{Name: "Trade Date", Kind: dataset.KindDate},
			{Name: "Qty", Kind: dataset.KindNumber},
		},
		[][]dataset.Value{
			{dataset.String("Garfield"), dataset.String("BUY"), dateOf(2020, 3, 4), dataset.Number(100)},
			{dataset.String("Garfield"), dataset.String("SELL"), dateOf(2020, 4, 1), dataset.Number(60)},
			{dataset.String("Heathcliff"), dataset.String("BUY"), dateOf(2020, 3, 4), dataset.Number(250)},
		},
	)
	return Env{
		Datasets: map[string]*dataset.Table{"holdings": holdings, "trades": trades},
		ColumnMaps: map[string]map[string]string{
			"holdings": holdings.LowerColumnMap(),
			"trades":   trades.LowerColumnMap(),
		},
		Dates: dataset.MustDateParser(nil),
	}
}

func run(t *testing.T, program string, opts ...Option) *Result {
	t.Helper()
	res, err := Execute(context.Background(), program, testEnv(), opts...)
	require.NoError(t, err, program)
	return res
}

func runErr(t *testing.T, program string, opts ...Option) *ExecutionError {
	t.Helper()
	_, err := Execute(context.Background(), program, testEnv(), opts...)
	require.Error(t, err, program)
	var ee *ExecutionError
	require.True(t, errors.As(err, &ee), "want *ExecutionError, got %T", err)
	return ee
}

// ============================================================================
// SCALAR QUERIES
// ============================================================================

func TestExecuteTotalQuantityOnDate(t *testing.T) {
	res := run(t, `
# total quantity for Garfield opened on 4 March 2020
rows = filter(holdings, lower(PortfolioName) == "garfield" and OpenDate == date("04-03-2020"))
result = sum(rows, Qty)
`)
	require.Equal(t, ResultScalar, res.Kind)
	assert.Equal(t, 100.0, res.Scalar.Num())
}

func TestExecuteCaseInsensitiveMatchIsStable(t *testing.T) {
	var counts []float64
	for _, name := range []string{"garfield", "GARFIELD", "Garfield"} {
		prog := fmt.Sprintf(`result = count(holdings, lower(PortfolioName) == lower(%q))`, name)
		counts = append(counts, run(t, prog).Scalar.Num())
	}
	assert.Equal(t, []float64{2, 2, 2}, counts)
}

func TestExecuteBuiltins(t *testing.T) {
	cases := []struct {
		program string
		want    dataset.Value
	}{
		{`result = len(holdings)`, dataset.Number(4)},
		{`result = len("abc")`, dataset.Number(3)},
		{`result = sum(holdings, "Qty")`, dataset.Number(390)},
		{`result = sum(holdings, Qty * Price)`, dataset.Number(100*10.5 + 40*200 + 250*10.5)},
		{`result = mean(trades, Qty)`, dataset.Number(410.0 / 3)},
		{`result = min(holdings, Qty)`, dataset.Number(40)},
		{`result = max(holdings, OpenDate)`, dateOf(2021, 6, 5)},
		{`result = max(3, 7, 5)`, dataset.Number(7)},
		{`result = count(holdings, "Qty")`, dataset.Number(3)},
		{`result = nunique(holdings, PortfolioName)`, dataset.Number(3)},
		{`result = round(10.125, 2)`, dataset.Number(10.13)},
		{`result = round(2.5)`, dataset.Number(3)},
		{`result = abs(-4)`, dataset.Number(4)},
		{`result = upper("abc") + lower("DEF")`, dataset.String("ABCdef")},
		{`result = contains("Garfield", "FIELD", case=false)`, dataset.Bool(true)},
		{`result = startswith("Garfield", "Gar")`, dataset.Bool(true)},
		{`result = year(date("04-03-2020")) * 100 + month(date(2020, 3, 4))`, dataset.Number(202003)},
		{`result = day(date("March 4 2020"))`, dataset.Number(4)},
		{`result = date("04-03-2020") - date(2020, 3, 1)`, dataset.Number(3)},
		{`result = isnull(none)`, dataset.Bool(true)},
		{`result = 7 % 3 + 2 * -1`, dataset.Number(-1)},
		{`result = not (1 > 2) and true`, dataset.Bool(true)},
		{`result = column(holdings, "SecurityId")[-1]`, dataset.String("TSLA")},
		{`result = unique(holdings, PortfolioName)[1]`, dataset.String("Heathcliff")},
		{`result = group(holdings, "PortfolioName", "sum", "Qty")["Heathcliff"]`, dataset.Number(250)},
		{`result = count(filter(trades, col("Trade Date") > date("01-03-2020")))`, dataset.Number(3)},
		{"x = 2; y = 3\nresult = x * y", dataset.Number(6)},
	}
	for _, tc := range cases {
		t.Run(tc.program, func(t *testing.T) {
			res := run(t, tc.program)
			require.Equal(t, ResultScalar, res.Kind)
			assert.True(t, tc.want.Equal(res.Scalar), "want %s, got %s", tc.want, res.Scalar)
		})
	}
}

func TestExecuteMissingPropagates(t *testing.T) {
	res := run(t, `result = mean(filter(holdings, PortfolioName == "nobody"), Qty)`)
	assert.Equal(t, ResultScalar, res.Kind)
	assert.True(t, res.Scalar.IsMissing())
}

// ============================================================================
// SERIES AND TABLE RESULTS
// ============================================================================

func TestExecuteGroupSeries(t *testing.T) {
	res := run(t, `result = group(holdings, "PortfolioName", agg="sum", col="Qty")`)
	require.Equal(t, ResultSeries, res.Kind)
	s := res.Series
	assert.Equal(t, "PortfolioName", s.Index)
	assert.Equal(t, "Qty", s.Name)
	require.Equal(t, 3, s.Len())
	assert.Equal(t, "Garfield", s.Labels[0].Str())
	assert.Equal(t, 140.0, s.Values[0].Num())
	assert.Equal(t, "Nermal", s.Labels[2].Str())
	assert.Equal(t, 0.0, s.Values[2].Num())
}

func TestExecuteGroupSortedByValue(t *testing.T) {
	res := run(t, `result = group(trades, "PortfolioName", "sum", "Qty", sort="value_desc")`)
	require.Equal(t, ResultSeries, res.Kind)
	assert.Equal(t, "Heathcliff", res.Series.Labels[0].Str())
}

func TestExecuteGroupMultipleKeys(t *testing.T) {
	res := run(t, `result = group(trades, ["PortfolioName", "Side"])`)
	require.Equal(t, ResultTable, res.Kind)
	assert.Equal(t, []string{"PortfolioName", "Side", "count"}, res.Table.ColumnNames())
	assert.Equal(t, 3, res.Table.Len())
}

func TestExecuteTableResult(t *testing.T) {
	res := run(t, `result = head(select(sort(holdings, "Qty", desc=true), "PortfolioName", "Qty"), 2)`)
	require.Equal(t, ResultTable, res.Kind)
	assert.Equal(t, []string{"PortfolioName", "Qty"}, res.Table.ColumnNames())
	require.Equal(t, 2, res.Table.Len())
	assert.Equal(t, "Heathcliff", res.Table.Value(0, 0).Str())
	assert.Equal(t, "Garfield", res.Table.Value(1, 0).Str())
}

func TestExecuteBooleanMaskIndexing(t *testing.T) {
	res := run(t, `result = holdings[holdings["Qty"] > 50]["SecurityId"]`)
	require.Equal(t, ResultSeries, res.Kind)
	assert.Equal(t, []dataset.Value{dataset.String("AAPL"), dataset.String("AAPL")}, res.Series.Values)
}

func TestExecuteListResultBecomesSeries(t *testing.T) {
	res := run(t, `result = sort(unique(holdings, SecurityId), desc=true)`)
	require.Equal(t, ResultSeries, res.Kind)
	assert.Equal(t, 3, res.Series.Len())
	assert.Equal(t, "TSLA", res.Series.Values[0].Str())
}

func TestExecuteEmptyTableResult(t *testing.T) {
	res := run(t, `result = filter(holdings, Qty > 10000)`)
	require.Equal(t, ResultTable, res.Kind)
	assert.Equal(t, 0, res.Len())
}

func TestExecuteNote(t *testing.T) {
	res := run(t, "note = \"Used column Qty for 'quantity'.\"\nresult = sum(holdings, Qty)")
	assert.Equal(t, "Used column Qty for 'quantity'.", res.Note)
}

// ============================================================================
// ISOLATION AND ERRORS
// ============================================================================

func TestExecuteRejectsUnknownNames(t *testing.T) {
	env := testEnv()

	_, err := Execute(context.Background(), `result = open("/etc/passwd")`, env)
	var ee *ExecutionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, StageParse, ee.Stage)
	assert.Contains(t, ee.Message, `unknown function "open"`)

	_, err = Execute(context.Background(), `result = os`, env)
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, StageEval, ee.Stage)
	assert.Contains(t, ee.Message, `name "os" is not defined`)

	// The session is still usable.
	res, err := Execute(context.Background(), `result = len(holdings)`, env)
	require.NoError(t, err)
	assert.Equal(t, 4.0, res.Scalar.Num())
}

func TestExecuteSyntaxErrors(t *testing.T) {
	for _, prog := range []string{
		`import os`,
		`result = holdings.Qty.sum()`,
		`result = (1 + 2`,
		`result = "unterminated`,
		`result = holdings["Qty"] & 1`,
		`result = sum(holdings, Qty, Price)`,
		`result = sort(holdings, "Qty", reverse=true)`,
		``,
	} {
		t.Run(prog, func(t *testing.T) {
			ee := runErr(t, prog)
			assert.Equal(t, StageParse, ee.Stage)
		})
	}
}

func TestExecuteNoResult(t *testing.T) {
	ee := runErr(t, `x = 1`)
	assert.Equal(t, StageResult, ee.Stage)
	assert.Contains(t, ee.Message, "no result produced")
}

func TestExecuteDateComparedWithTextSuggestsDate(t *testing.T) {
	ee := runErr(t, `result = count(holdings, OpenDate == "2020-03-04")`)
	assert.Equal(t, StageEval, ee.Stage)
	assert.Contains(t, ee.Message, `date("...")`)
	assert.Contains(t, ee.Message, "line 1")
}

func TestExecuteColumnCaseHint(t *testing.T) {
	ee := runErr(t, `result = count(holdings, opendate > date("01-01-2020"))`)
	assert.Contains(t, ee.Message, "did you mean OpenDate?")

	ee = runErr(t, `result = sum(holdings, "qty")`)
	assert.Contains(t, ee.Message, "did you mean Qty?")

	ee = runErr(t, `result = Qty`)
	assert.Contains(t, ee.Message, "did you mean column Qty?")
}

func TestExecuteTypeErrors(t *testing.T) {
	for _, prog := range []string{
		`result = 1 + "a"`,
		`result = 1 / 0`,
		`result = sum(holdings, PortfolioName)`,
		`result = year("2020")`,
		`result = date("31-31-2020")`,
		`result = col("Qty")`,
		`result = filter(holdings, holdings["Qty"] > 1)`,
		`result = [1, 2][5]`,
	} {
		t.Run(prog, func(t *testing.T) {
			ee := runErr(t, prog)
			assert.Equal(t, StageEval, ee.Stage)
		})
	}
}

func TestExecuteNeverMutatesDatasets(t *testing.T) {
	env := testEnv()
	before := env.Datasets["holdings"].Clone()

	res, err := Execute(context.Background(), "holdings = filter(holdings, Qty > 1000)\nresult = len(holdings)", env)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Scalar.Num())

	res, err = Execute(context.Background(), `result = sort(holdings, "Qty")`, env)
	require.NoError(t, err)
	res.Table.Rows[0][0] = dataset.String("changed")

	res, err = Execute(context.Background(), `result = len(holdings)`, env)
	require.NoError(t, err)
	assert.Equal(t, 4.0, res.Scalar.Num())
	assert.Equal(t, before.Rows, env.Datasets["holdings"].Rows)
}

// ============================================================================
// LIMITS
// ============================================================================

func bigEnv(n int) Env {
	rows := make([][]dataset.Value, n)
	for i := range rows {
		rows[i] = []dataset.Value{dataset.Number(float64(i))}
	}
	t := dataset.NewTable("holdings", []dataset.Column{{Name: "N", Kind: dataset.KindNumber}}, rows)
	return Env{Datasets: map[string]*dataset.Table{"holdings": t}}
}

func TestExecuteStepLimit(t *testing.T) {
	_, err := Execute(context.Background(), `result = count(holdings, N % 2 == 0)`, bigEnv(10_000), WithStepLimit(1_000))
	var ee *ExecutionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, StageLimit, ee.Stage)
}

func TestExecuteTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	_, err := Execute(context.Background(), `result = count(holdings, N % 2 == 0 and N > 5)`, bigEnv(200_000),
		WithTimeout(time.Nanosecond), WithStepLimit(0))
	var ee *ExecutionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, StageTimeout, ee.Stage)
}

func TestExecuteCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Execute(ctx, `result = 1`, testEnv())
	var ee *ExecutionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, StageTimeout, ee.Stage)
	assert.Contains(t, ee.Message, "cancelled")
}

func TestExecuteDefaultsAllowNormalPrograms(t *testing.T) {
	res, err := Execute(context.Background(), `result = sum(holdings, N)`, bigEnv(50_000))
	require.NoError(t, err)
	assert.Equal(t, float64(50_000*49_999/2), res.Scalar.Num())
	assert.Greater(t, res.Steps, 50_000)
}
