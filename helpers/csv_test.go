package helpers

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/finchat/dataset"
)

var holdingsCSV = []byte("\uFEFFPortfolioName,SecurityId,Qty,OpenDate\n" +
	"Garfield,AAPL,100,04-03-2020\n" +
	"Heathcliff,MSFT,250.5,05/06/21\n" +
	"\n" +
	"Nermal,TSLA,,\n")

func TestLoadCSVBytes(t *testing.T) {
	tbl, err := LoadCSVBytes(holdingsCSV, "holdings")
	require.NoError(t, err)

	assert.Equal(t, "holdings", tbl.Name)
	assert.Equal(t, []string{"PortfolioName", "SecurityId", "Qty", "OpenDate"}, tbl.ColumnNames())
	assert.Equal(t, 3, tbl.Len())

	assert.Equal(t, dataset.KindString, tbl.Columns[0].Kind)
	assert.Equal(t, dataset.KindNumber, tbl.Columns[2].Kind)
	assert.Equal(t, dataset.KindString, tbl.Columns[3].Kind)

	assert.Equal(t, 100.0, tbl.Value(0, 2).Num())
	assert.Equal(t, 250.5, tbl.Value(1, 2).Num())
	assert.True(t, tbl.Value(2, 2).IsMissing())
	assert.True(t, tbl.Value(2, 3).IsMissing())
	assert.Equal(t, "04-03-2020", tbl.Value(0, 3).Str())
}

func TestLoadCSVShortRowsPadded(t *testing.T) {
	tbl, err := LoadCSV(strings.NewReader("A,B,C\n1,x\n"), "t")
	require.NoError(t, err)
	require.Equal(t, 1, tbl.Len())
	assert.Len(t, tbl.Rows[0], 3)
	assert.True(t, tbl.Value(0, 2).IsMissing())
}

func TestLoadCSVErrors(t *testing.T) {
	_, err := LoadCSV(strings.NewReader(""), "empty")
	assert.ErrorContains(t, err, "no header row")

	_, err = LoadCSV(strings.NewReader("A,B\n1,2,3\n"), "wide")
	assert.ErrorContains(t, err, "has 3 fields")
}

func TestLoadCSVSemicolon(t *testing.T) {
	tbl, err := LoadCSV(strings.NewReader("A;B\n1;x\n"), "t", CSVOptions{Comma: ';'})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, tbl.ColumnNames())
	assert.Equal(t, 1.0, tbl.Value(0, 0).Num())
}

func TestLoadCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "holdings.csv")
	require.NoError(t, os.WriteFile(path, holdingsCSV, 0o600))

	tbl, err := LoadCSVFile(path, "holdings")
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.Len())

	_, err = LoadCSVFile(filepath.Join(t.TempDir(), "missing.csv"), "trades")
	assert.ErrorContains(t, err, "open trades data")
}

func TestStripHeaderBOM(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, StripHeaderBOM([]string{"\uFEFFA", "B"}))
	assert.Empty(t, StripHeaderBOM(nil))
}
