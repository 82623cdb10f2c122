package dataset

import (
	"fmt"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
)

// ============================================================================
// DATE PARSER — strftime-style formats, first match wins
// ============================================================================
// Formats are configured in the strftime dialect users already know
// ("%d-%m-%Y") and converted to Go layouts once at construction.
// Order matters: the defaults are day-first, so "04-03-2020" is 4 March 2020.
// ============================================================================

// DefaultDateFormats mirrors the chatbot's default parse list.
var DefaultDateFormats = []string{
	"%d-%m-%Y",
	"%d/%m/%y",
	"%d/%m/%Y",
	"%Y-%m-%d",
	"%Y-%m-%d %H:%M:%S",
	"%Y-%m-%dT%H:%M:%S",
	"%B %e %Y",
	"%b %e %Y",
	"%e %B %Y",
	"%e %b %Y",
	"%B %e, %Y",
	"%b %e, %Y",
}

// DateParser parses date strings against an ordered list of layouts.
type DateParser struct {
	formats []string
	layouts []string
}

// unpadded turns Go's two-digit day and month into their one-or-two-digit
// forms, so "4/3/2020" matches "%d/%m/%Y" the way strptime does.
var unpadded = strings.NewReplacer("02", "2", "01", "1")

// NewDateParser converts strftime formats to Go layouts. Each layout with a
// padded day or month is followed by its unpadded variant. An invalid format
// is reported rather than silently dropped.
func NewDateParser(formats []string) (*DateParser, error) {
	if len(formats) == 0 {
		formats = DefaultDateFormats
	}
	p := &DateParser{formats: append([]string(nil), formats...)}
	for _, f := range formats {
		layout, err := strftime.Layout(f)
		if err != nil {
			return nil, fmt.Errorf("invalid date format %q: %w", f, err)
		}
		p.layouts = append(p.layouts, layout)
		if loose := unpadded.Replace(layout); loose != layout {
			p.layouts = append(p.layouts, loose)
		}
	}
	return p, nil
}

// MustDateParser is NewDateParser for known-good formats.
func MustDateParser(formats []string) *DateParser {
	p, err := NewDateParser(formats)
	if err != nil {
		panic(err)
	}
	return p
}

// Formats returns the configured strftime formats.
func (p *DateParser) Formats() []string { return p.formats }

// Parse returns the first successful interpretation of s, in UTC.
func (p *DateParser) Parse(s string) (time.Time, error) {
	s = normalizeDateInput(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range p.layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q (accepted formats: %s)", s, strings.Join(p.formats, ", "))
}

// ParseValue converts a cell to a date value. Dates pass through; strings are
// parsed; anything unparseable becomes missing.
func (p *DateParser) ParseValue(v Value) Value {
	switch v.Kind() {
	case KindDate:
		return v
	case KindString:
		t, err := p.Parse(v.Str())
		if err != nil {
			return Missing()
		}
		return Date(t)
	default:
		return Missing()
	}
}

// normalizeDateInput collapses repeated whitespace and title-cases month
// names so "april 3 2020" and "APRIL 3 2020" parse like "April 3 2020".
func normalizeDateInput(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		if len(f) > 1 && isLetters(f) {
			fields[i] = strings.ToUpper(f[:1]) + strings.ToLower(f[1:])
		}
	}
	return strings.Join(fields, " ")
}

func isLetters(s string) bool {
	for _, r := range strings.TrimSuffix(s, ",") {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
