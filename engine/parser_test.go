package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	toks, err := tokenize("x = 1_000.5 # comment\n\ny = (a >=\n 2) ; z = 'it\\'s'")
	require.NoError(t, err)

	var got []string
	for _, tok := range toks {
		switch tok.typ {
		case tNewline:
			got = append(got, "NL")
		case tEOF:
			got = append(got, "EOF")
		default:
			got = append(got, tok.val)
		}
	}
	assert.Equal(t, []string{
		"x", "=", "1000.5", "NL",
		"y", "=", "(", "a", ">=", "2", ")", "NL",
		"z", "=", "it's", "EOF",
	}, got)
}

func TestTokenizePositions(t *testing.T) {
	toks, err := tokenize("a = 1\n  b")
	require.NoError(t, err)
	last := toks[len(toks)-2]
	assert.Equal(t, "b", last.val)
	assert.Equal(t, Position{Line: 2, Col: 3}, last.pos)
}

func TestTokenizeKeywords(t *testing.T) {
	toks, err := tokenize("True and None")
	require.NoError(t, err)
	assert.Equal(t, tKeyword, toks[0].typ)
	assert.Equal(t, "true", toks[0].val)
	assert.Equal(t, "none", toks[2].val)
}

func TestParsePrecedence(t *testing.T) {
	prog, err := Parse(`result = 1 + 2 * 3 == 7 and not false`)
	require.NoError(t, err)
	require.Len(t, prog.Stmts, 1)
	st := prog.Stmts[0]
	assert.Equal(t, "result", st.Target)

	and, ok := st.Expr.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, "and", and.Op)

	eq := and.X.(*BinaryExpr)
	assert.Equal(t, "==", eq.Op)
	add := eq.X.(*BinaryExpr)
	assert.Equal(t, "+", add.Op)
	assert.Equal(t, "*", add.Y.(*BinaryExpr).Op)

	not := and.Y.(*UnaryExpr)
	assert.Equal(t, "not", not.Op)
}

func TestParseCallArguments(t *testing.T) {
	prog, err := Parse(`group(holdings, ["PortfolioName", "Side"], agg="sum", col="Qty")`)
	require.NoError(t, err)
	call := prog.Stmts[0].Expr.(*CallExpr)
	assert.Equal(t, "group", call.Func)
	assert.Len(t, call.Args, 2)
	require.Len(t, call.Kwargs, 2)
	assert.Equal(t, "agg", call.Kwargs[0].Name)
	assert.IsType(t, &ListExpr{}, call.Args[1])
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{`result = exec("x")`, `unknown function "exec"`},
		{`result = Sum(holdings, Qty)`, "did you mean sum?"},
		{`result = len()`, "len() takes 1 argument(s), got 0"},
		{`result = head(holdings, n=2, 3)`, "positional argument follows keyword argument"},
		{`result = holdings.Qty`, "attribute access"},
		{`result = a ** 2`, "** is not supported"},
		{`result = a != 1 && b`, "operator '&' is not supported"},
		{`result = !a`, "use not"},
		{`f(x) = 1`, "unknown function"},
		{`result + 1 = 2`, "can only assign to a plain name"},
		{`result = x(1)`, `unknown function "x"`},
		{`result = [1, 2`, `expected ',' or "]"`},
		{"# nothing here\n\n", "empty program"},
	}
	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			_, err := Parse(tc.src)
			require.Error(t, err)
			var se *SyntaxError
			require.True(t, errors.As(err, &se))
			assert.Contains(t, se.Error(), tc.want)
		})
	}
}

func TestParseLineContinuation(t *testing.T) {
	prog, err := Parse("result = sum(holdings, \\\n  Qty)\nnote = \"ok\"")
	require.NoError(t, err)
	assert.Len(t, prog.Stmts, 2)
	assert.Equal(t, 3, prog.Stmts[1].Pos.Line)
}

func TestFunctionNamesSorted(t *testing.T) {
	names := FunctionNames()
	assert.Contains(t, names, "filter")
	assert.Contains(t, names, "group")
	assert.NotContains(t, names, "open")
	assert.IsNonDecreasing(t, names)
}
