package dataset

import (
	"math"
	"strconv"
	"time"
)

// ============================================================================
// VALUE — Typed cell value
// ============================================================================
// Every cell of a Table is a Value. The zero Value is missing, which is what
// blank CSV cells and unparseable dates turn into.
// ============================================================================

// Kind identifies the type held by a Value or declared by a Column.
type Kind uint8

const (
	KindMissing Kind = iota
	KindString
	KindNumber
	KindDate
	KindBool
)

// String returns the short name used in schema descriptions.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "text"
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	case KindBool:
		return "bool"
	default:
		return "missing"
	}
}

// Value is a tagged union over string, number, date, bool and missing.
type Value struct {
	kind Kind
	s    string
	n    float64
	t    time.Time
	b    bool
}

// Missing returns the missing marker.
func Missing() Value { return Value{} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Number wraps a float. NaN is stored as missing.
func Number(n float64) Value {
	if math.IsNaN(n) {
		return Value{}
	}
	return Value{kind: KindNumber, n: n}
}

// Date wraps a time.
func Date(t time.Time) Value { return Value{kind: KindDate, t: t} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func (v Value) Kind() Kind       { return v.kind }
func (v Value) IsMissing() bool  { return v.kind == KindMissing }
func (v Value) Str() string      { return v.s }
func (v Value) Num() float64     { return v.n }
func (v Value) Time() time.Time  { return v.t }
func (v Value) BoolValue() bool  { return v.b }
func (v Value) IsNumber() bool   { return v.kind == KindNumber }
func (v Value) IsIntegral() bool { return v.kind == KindNumber && v.n == math.Trunc(v.n) && !math.IsInf(v.n, 0) }

// String renders the value for plain display.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		if v.IsIntegral() && math.Abs(v.n) < 1e15 {
			return strconv.FormatInt(int64(v.n), 10)
		}
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindDate:
		return FormatDate(v.t)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return "NaN"
	}
}

// Equal reports whether two values hold the same kind and content.
// Missing never equals anything, itself included.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind || v.kind == KindMissing {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s == o.s
	case KindNumber:
		return v.n == o.n
	case KindDate:
		return v.t.Equal(o.t)
	case KindBool:
		return v.b == o.b
	}
	return false
}

// Compare orders two values of the same kind. ok is false when the kinds
// differ or either side is missing.
func (v Value) Compare(o Value) (c int, ok bool) {
	if v.kind != o.kind || v.kind == KindMissing {
		return 0, false
	}
	switch v.kind {
	case KindString:
		switch {
		case v.s < o.s:
			return -1, true
		case v.s > o.s:
			return 1, true
		}
		return 0, true
	case KindNumber:
		switch {
		case v.n < o.n:
			return -1, true
		case v.n > o.n:
			return 1, true
		}
		return 0, true
	case KindDate:
		return v.t.Compare(o.t), true
	case KindBool:
		switch {
		case v.b == o.b:
			return 0, true
		case !v.b:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// FormatDate renders a date without a clock when the time part is midnight.
func FormatDate(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04:05")
}
