package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/finchat/dataset"
	"github.com/spektr-org/finchat/engine"
	"github.com/spektr-org/finchat/schema"
)

func rawHoldings() *dataset.Table {
	return dataset.NewTable("holdings.csv",
		[]dataset.Column{
			{Name: "PortfolioName", Kind: dataset.KindString},
			{Name: "Qty", Kind: dataset.KindNumber},
			{Name: "OpenDate", Kind: dataset.KindString},
		},
		[][]dataset.Value{
			{dataset.String("Garfield"), dataset.Number(100), dataset.String("04-03-2020")},
			{dataset.String("Garfield"), dataset.Number(40), dataset.String("not a date")},
			{dataset.String("Heathcliff"), dataset.Number(250), dataset.Missing()},
		},
	)
}

func rawTrades() *dataset.Table {
	return dataset.NewTable("trades.csv",
		[]dataset.Column{
			{Name: "PortfolioName", Kind: dataset.KindString},
			{Name: "TradeDate", Kind: dataset.KindString},
			{Name: "SettleDateKey", Kind: dataset.KindNumber},
		},
		[][]dataset.Value{
			{dataset.String("Garfield"), dataset.String("2020-03-04"), dataset.Number(20200306)},
		},
	)
}

func TestPrepareNormalizesDates(t *testing.T) {
	s, err := Prepare(rawHoldings(), rawTrades(), DefaultOptions())
	require.NoError(t, err)

	h := s.Holdings()
	assert.Equal(t, HoldingsName, h.Name)
	ci, ok := h.ColumnIndex("OpenDate")
	require.True(t, ok)
	assert.Equal(t, dataset.KindDate, h.Columns[ci].Kind)
	assert.Equal(t, time.Date(2020, 3, 4, 0, 0, 0, 0, time.UTC), h.Value(0, ci).Time())
	assert.True(t, h.Value(1, ci).IsMissing())
	assert.True(t, h.Value(2, ci).IsMissing())

	tr := s.Trades()
	assert.Equal(t, dataset.KindDate, tr.Value(0, 1).Kind())
	// Numeric "date" columns are left alone.
	assert.Equal(t, 20200306.0, tr.Value(0, 2).Num())
}

func TestPrepareWithoutNormalization(t *testing.T) {
	s, err := Prepare(rawHoldings(), rawTrades(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "04-03-2020", s.Holdings().Value(0, 2).Str())
	assert.Nil(t, s.ColumnMap(HoldingsName))
	assert.NotContains(t, s.Schema(), schema.DatesTypedNote)
}

func TestPrepareDoesNotMutateInputs(t *testing.T) {
	h, tr := rawHoldings(), rawTrades()
	before := h.Clone()

	_, err := Prepare(h, tr, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, "holdings.csv", h.Name)
	assert.Equal(t, before.Columns, h.Columns)
	assert.Equal(t, before.Rows, h.Rows)
	assert.Equal(t, dataset.KindString, tr.Value(0, 1).Kind())
}

func TestPrepareRejectsInvalidTables(t *testing.T) {
	empty := dataset.NewTable("trades", []dataset.Column{{Name: "A", Kind: dataset.KindString}}, nil)
	dup := dataset.NewTable("holdings",
		[]dataset.Column{{Name: "A", Kind: dataset.KindString}, {Name: "A", Kind: dataset.KindString}},
		[][]dataset.Value{{dataset.String("x"), dataset.String("y")}})

	cases := []struct {
		name     string
		holdings *dataset.Table
		trades   *dataset.Table
		want     string
	}{
		{"nil holdings", nil, rawTrades(), "holdings"},
		{"empty trades", rawHoldings(), empty, "trades is empty"},
		{"duplicate columns", dup, rawTrades(), "duplicate column"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Prepare(tc.holdings, tc.trades, DefaultOptions())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrPreparation))
			assert.True(t, errors.Is(err, schema.ErrInvalidDataset))
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestSessionDescriptions(t *testing.T) {
	s, err := Prepare(rawHoldings(), rawTrades(), DefaultOptions())
	require.NoError(t, err)

	assert.Contains(t, s.Schema(), "1. holdings (3 records)")
	assert.Contains(t, s.Schema(), "OpenDate (date)")
	assert.Contains(t, s.Schema(), schema.DatesTypedNote)
	assert.Contains(t, s.Summary(), "Holdings: 3 records")
	assert.Equal(t, s.Schema(), s.Schema())

	require.Len(t, s.Metadata(), 2)
	assert.Equal(t, []string{"OpenDate"}, s.Metadata()[0].DateColumns())
	assert.Equal(t, "OpenDate", s.ColumnMap(HoldingsName)["opendate"])

	_, ok := s.Table("positions")
	assert.False(t, ok)
	tbl, ok := s.Table(TradesName)
	require.True(t, ok)
	assert.Same(t, s.Trades(), tbl)
}

func TestSessionEnvRunsPrograms(t *testing.T) {
	s, err := Prepare(rawHoldings(), rawTrades(), DefaultOptions())
	require.NoError(t, err)

	res, err := engine.Execute(context.Background(),
		`result = sum(filter(holdings, lower(PortfolioName) == "garfield" and OpenDate == date("04-03-2020")), Qty)`,
		s.Env())
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.Scalar.Num())

	_, err = engine.Execute(context.Background(), `result = count(holdings, opendate > date("01-01-2019"))`, s.Env())
	assert.ErrorContains(t, err, "did you mean OpenDate?")
}

func TestPrepareParsesUnpaddedDates(t *testing.T) {
	h := rawHoldings()
	h.Rows[1][2] = dataset.String("4/3/2020")
	parser := dataset.MustDateParser([]string{"%d-%m-%Y", "%d/%m/%Y"})

	s, err := Prepare(h, rawTrades(), Options{NormalizeDates: true, DateParser: parser})
	require.NoError(t, err)
	assert.Equal(t, []string{"%d-%m-%Y", "%d/%m/%Y"}, s.DateFormats())

	want := time.Date(2020, 3, 4, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, want, s.Holdings().Value(0, 2).Time())
	assert.Equal(t, want, s.Holdings().Value(1, 2).Time())
}

func TestDefaultDateFormats(t *testing.T) {
	s, err := Prepare(rawHoldings(), rawTrades(), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, dataset.DefaultDateFormats, s.DateFormats())
}
