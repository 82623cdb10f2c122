package session

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spektr-org/finchat/dataset"
	"github.com/spektr-org/finchat/engine"
	"github.com/spektr-org/finchat/schema"
)

// ============================================================================
// PREPARED SESSION — Validated, normalized, read-only datasets
// ============================================================================
// Prepare runs once per process:
//   1. Validate both raw tables (fatal on failure)
//   2. Clone them so the caller's tables are never touched
//   3. Parse every "date" column into date values (optional)
//   4. Build the lowercase → canonical column maps (optional)
//   5. Render the schema description and data summary once
//
// After Prepare returns nothing in the Session changes. Execution reads it
// through engine views only.
// ============================================================================

// Dataset names as they appear in programs and prompts.
const (
	HoldingsName = "holdings"
	TradesName   = "trades"
)

// ErrPreparation wraps every failure of Prepare.
var ErrPreparation = errors.New("dataset preparation failed")

// Options controls preparation.
type Options struct {
	NormalizeDates         bool
	CaseInsensitiveColumns bool
	DateParser             *dataset.DateParser // nil = default formats
	Logger                 *zap.Logger
}

// DefaultOptions enables both normalizations with the default date formats.
func DefaultOptions() Options {
	return Options{NormalizeDates: true, CaseInsensitiveColumns: true}
}

// Session holds the prepared datasets.
type Session struct {
	tables     []*dataset.Table // holdings, trades
	columnMaps map[string]map[string]string
	meta       []schema.DatasetMeta
	dates      *dataset.DateParser
	schemaText string
	summary    string
	opts       Options
}

// Prepare validates, copies and normalizes the two raw tables.
func Prepare(holdings, trades *dataset.Table, opts Options) (*Session, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	parser := opts.DateParser
	if parser == nil {
		parser = dataset.MustDateParser(nil)
	}

	raw := []*dataset.Table{holdings, trades}
	names := []string{HoldingsName, TradesName}
	s := &Session{
		columnMaps: make(map[string]map[string]string, len(raw)),
		dates:      parser,
		opts:       opts,
	}

	for i, t := range raw {
		if err := schema.Validate(t); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrPreparation, names[i], err)
		}
		c := t.Clone()
		c.Name = names[i]
		if opts.NormalizeDates {
			normalizeDates(c, parser, log)
		}
		if opts.CaseInsensitiveColumns {
			s.columnMaps[c.Name] = c.LowerColumnMap()
		}
		s.tables = append(s.tables, c)
		s.meta = append(s.meta, schema.Inspect(c))
	}

	s.schemaText = schema.Describe(s.tables, opts.NormalizeDates)
	s.summary = schema.Summary(s.tables)

	log.Info("session prepared",
		zap.Int("holdings", s.tables[0].Len()),
		zap.Int("trades", s.tables[1].Len()),
		zap.Bool("dates_normalized", opts.NormalizeDates),
		zap.Strings("date_formats", parser.Formats()))
	return s, nil
}

// normalizeDates converts every column whose name mentions "date" to date
// values. Text that does not parse becomes missing. Columns of numbers or
// booleans are left alone.
func normalizeDates(t *dataset.Table, parser *dataset.DateParser, log *zap.Logger) {
	for ci, col := range t.Columns {
		if !dataset.IsDateColumnName(col.Name) {
			continue
		}
		if col.Kind != dataset.KindString && col.Kind != dataset.KindDate && col.Kind != dataset.KindMissing {
			log.Debug("skipping date normalization",
				zap.String("dataset", t.Name),
				zap.String("column", col.Name),
				zap.Stringer("kind", col.Kind))
			continue
		}
		failed := 0
		for _, row := range t.Rows {
			v := row[ci]
			if v.IsMissing() {
				continue
			}
			d := parser.ParseValue(v)
			if d.IsMissing() {
				failed++
			}
			row[ci] = d
		}
		t.Columns[ci].Kind = dataset.KindDate
		if failed > 0 {
			log.Debug("unparseable dates set to missing",
				zap.String("dataset", t.Name),
				zap.String("column", col.Name),
				zap.Int("count", failed))
		}
	}
}

// ============================================================================
// ACCESSORS
// ============================================================================

func (s *Session) Holdings() *dataset.Table { return s.tables[0] }
func (s *Session) Trades() *dataset.Table   { return s.tables[1] }

// Table returns a prepared dataset by name.
func (s *Session) Table(name string) (*dataset.Table, bool) {
	for _, t := range s.tables {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// ColumnMap returns the lowercase → canonical column map of a dataset, or nil
// when case-insensitive matching is disabled.
func (s *Session) ColumnMap(name string) map[string]string { return s.columnMaps[name] }

// Schema returns the schema description sent to the model.
func (s *Session) Schema() string { return s.schemaText }

// Summary returns the human-readable data summary.
func (s *Session) Summary() string { return s.summary }

// Metadata returns per-column statistics for each dataset.
func (s *Session) Metadata() []schema.DatasetMeta { return s.meta }

// DateFormats returns the strftime formats date columns were parsed with.
func (s *Session) DateFormats() []string { return s.dates.Formats() }

// Options returns the options the session was prepared with.
func (s *Session) Options() Options { return s.opts }

// Env builds the execution environment over the prepared datasets.
func (s *Session) Env() engine.Env {
	env := engine.Env{
		Datasets:   make(map[string]*dataset.Table, len(s.tables)),
		ColumnMaps: s.columnMaps,
		Dates:      s.dates,
	}
	for _, t := range s.tables {
		env.Datasets[t.Name] = t
	}
	return env
}
