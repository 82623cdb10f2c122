package schema

import (
	"sort"
	"strconv"
	"strings"

	"github.com/spektr-org/finchat/dataset"
)

// ============================================================================
// KIND DISCOVERY — Heuristic column typing for raw CSV cells
// ============================================================================
// Classification per column:
//   1. Drop null-like cells ("", "null", "N/A", ...)
//   2. All remaining cells boolean → bool
//   3. All remaining cells numeric → number
//   4. Otherwise → text
//
// Dates are deliberately left as text here. Turning date columns into dates
// is the session preparer's job, so loading and normalization stay separate
// and the raw table keeps what the file said.
// ============================================================================

// DiscoverOptions controls discovery behavior.
type DiscoverOptions struct {
	SampleSize int // Max rows to inspect (0 = all)
}

// DefaultDiscoverOptions returns sensible defaults.
func DefaultDiscoverOptions() DiscoverOptions {
	return DiscoverOptions{SampleSize: 1000}
}

// DiscoverKinds infers one Kind per header from raw rows.
func DiscoverKinds(headers []string, rows [][]string, opts ...DiscoverOptions) []dataset.Kind {
	opt := DefaultDiscoverOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	sample := rows
	if opt.SampleSize > 0 && len(sample) > opt.SampleSize {
		sample = sample[:opt.SampleSize]
	}

	kinds := make([]dataset.Kind, len(headers))
	for i := range headers {
		values := make([]string, 0, len(sample))
		for _, row := range sample {
			if i >= len(row) || isNull(row[i]) {
				continue
			}
			values = append(values, strings.TrimSpace(row[i]))
		}
		kinds[i] = detectKind(values)
	}
	return kinds
}

// ParseCell converts a raw cell into a Value of the given kind. Cells that do
// not fit the kind become missing.
func ParseCell(raw string, kind dataset.Kind) dataset.Value {
	if isNull(raw) {
		return dataset.Missing()
	}
	raw = strings.TrimSpace(raw)
	switch kind {
	case dataset.KindNumber:
		f, err := strconv.ParseFloat(cleanNumeric(raw), 64)
		if err != nil {
			return dataset.Missing()
		}
		return dataset.Number(f)
	case dataset.KindBool:
		switch strings.ToLower(raw) {
		case "true", "yes":
			return dataset.Bool(true)
		case "false", "no":
			return dataset.Bool(false)
		}
		return dataset.Missing()
	default:
		return dataset.String(raw)
	}
}

// ============================================================================
// TYPE DETECTION
// ============================================================================

// detectKind requires every non-null value to match for number/bool.
func detectKind(values []string) dataset.Kind {
	if len(values) == 0 {
		return dataset.KindString
	}

	numCount := 0
	boolCount := 0
	for _, v := range values {
		if isNumeric(v) {
			numCount++
		}
		if isBool(v) {
			boolCount++
		}
	}

	switch {
	case boolCount == len(values):
		return dataset.KindBool
	case numCount == len(values):
		return dataset.KindNumber
	}
	return dataset.KindString
}

func isNumeric(s string) bool {
	s = cleanNumeric(s)
	if s == "" || s == "-" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// cleanNumeric strips thousands separators and currency prefixes: "$1,234.56".
func cleanNumeric(s string) string {
	s = strings.TrimSpace(s)
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimPrefix(s, "€")
	s = strings.TrimPrefix(s, "£")
	if negative {
		s = "-" + s
	}
	return s
}

func isBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "false" || s == "yes" || s == "no"
}

func isNull(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "null", "NULL", "N/A", "n/a", "NaN", "nan":
		return true
	}
	return false
}

// ============================================================================
// STRING UTILITIES
// ============================================================================

// collectSamples picks up to maxSamples representative values.
func collectSamples(uniqueSet map[string]bool, maxSamples int) []string {
	samples := make([]string, 0, len(uniqueSet))
	for v := range uniqueSet {
		samples = append(samples, v)
	}

	// Sort for deterministic output
	sort.Strings(samples)

	if len(samples) > maxSamples {
		samples = samples[:maxSamples]
	}
	return samples
}
