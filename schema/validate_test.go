package schema

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/finchat/dataset"
)

// ── Test Data ─────────────────────────────────────────────────────────────────

func sampleHoldings() *dataset.Table {
	return dataset.NewTable("holdings",
		[]dataset.Column{
			{Name: "PortfolioName", Kind: dataset.KindString},
			{Name: "Qty", Kind: dataset.KindNumber},
			{Name: "OpenDate", Kind: dataset.KindDate},
		},
		[][]dataset.Value{
			{dataset.String("Garfield"), dataset.Number(100), dataset.Missing()},
		},
	)
}

func sampleTrades(n int) *dataset.Table {
	rows := make([][]dataset.Value, n)
	for i := range rows {
		rows[i] = []dataset.Value{dataset.String("Garfield"), dataset.Bool(i%2 == 0)}
	}
	return dataset.NewTable("trades",
		[]dataset.Column{
			{Name: "PortfolioName", Kind: dataset.KindString},
			{Name: "Settled", Kind: dataset.KindBool},
		},
		rows,
	)
}

// ============================================================================
// VALIDATION
// ============================================================================

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(sampleHoldings()))

	cases := map[string]*dataset.Table{
		"nil":        nil,
		"no columns": dataset.NewTable("holdings", nil, [][]dataset.Value{{}}),
		"no rows":    dataset.NewTable("holdings", []dataset.Column{{Name: "A"}}, nil),
		"blank name": dataset.NewTable("holdings", []dataset.Column{{Name: " "}}, [][]dataset.Value{{dataset.Missing()}}),
		"duplicate": dataset.NewTable("holdings",
			[]dataset.Column{{Name: "A"}, {Name: "A"}},
			[][]dataset.Value{{dataset.Missing(), dataset.Missing()}}),
		"ragged row": dataset.NewTable("holdings",
			[]dataset.Column{{Name: "A"}, {Name: "B"}},
			[][]dataset.Value{{dataset.Missing()}}),
	}
	for name, tbl := range cases {
		t.Run(name, func(t *testing.T) {
			err := Validate(tbl)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidDataset)
		})
	}
}

// ============================================================================
// DESCRIBE / SUMMARY
// ============================================================================

func TestDescribe(t *testing.T) {
	got := Describe([]*dataset.Table{sampleHoldings(), sampleTrades(2)}, true)
	want := "DATASETS AVAILABLE:\n" +
		"\n" +
		"1. holdings (1 records)\n" +
		"   Columns: PortfolioName (text), Qty (number), OpenDate (date)\n" +
		"\n" +
		"2. trades (2 records)\n" +
		"   Columns: PortfolioName (text), Settled (bool)\n" +
		"\n" +
		"IMPORTANT: All date columns are already typed as dates.\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Describe() mismatch (-want +got):\n%s", diff)
	}
}

func TestDescribeWithoutDateNote(t *testing.T) {
	got := Describe([]*dataset.Table{sampleHoldings()}, false)
	assert.NotContains(t, got, DatesTypedNote)
	assert.Contains(t, got, "1. holdings (1 records)")
}

func TestDescribeIsStable(t *testing.T) {
	tables := []*dataset.Table{sampleHoldings(), sampleTrades(3)}
	assert.Equal(t, Describe(tables, true), Describe(tables, true))
}

func TestSummaryGroupsCounts(t *testing.T) {
	got := Summary([]*dataset.Table{sampleHoldings(), sampleTrades(1234)})
	assert.Contains(t, got, "Holdings: 1 records")
	assert.Contains(t, got, "Trades: 1,234 records")
	assert.Contains(t, got, "Holdings Columns: PortfolioName, Qty, OpenDate")
	assert.Contains(t, got, "Trades Columns: PortfolioName, Settled")
}
