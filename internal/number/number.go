// Package number holds numeric literals without committing to a Go numeric
// type until the consumer asks for one.
package number

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/valyala/fastjson/fastfloat"
)

// Kind names a representation a Wide can be cast to.
type Kind int

const (
	KindInt64 Kind = iota
	KindUint64
	KindFloat64
	KindDecimal
)

// String returns the Go spelling of the kind
func (k Kind) String() string {
	switch k {
	case KindInt64:
		return "int64"
	case KindUint64:
		return "uint64"
	case KindFloat64:
		return "float64"
	case KindDecimal:
		return "decimal"
	default:
		return "unknown"
	}
}

// Wide is a numeric literal kept as text. The int64, uint64, float64 and
// decimal representations are only computed when asked for, so a large
// integer or an exact decimal survives until the target type is known.
type Wide struct {
	text     string
	integral bool
}

// Parse validates a numeric literal and returns it as a Wide.
// A leading '+' is accepted and dropped.
func Parse(text string) (Wide, error) {
	text = strings.TrimPrefix(text, "+")
	integral, ok := scan(text)
	if !ok {
		return Wide{}, fmt.Errorf("invalid number literal %q", text)
	}
	w := Wide{text: text, integral: integral}

	// at least one representation must be usable
	if _, err := w.Decimal(); err != nil {
		if _, ferr := w.Float64(); ferr != nil {
			return Wide{}, fmt.Errorf("number literal %q has no usable representation: %w", text, err)
		}
	}
	return w, nil
}

// MustParse is like Parse but panics on invalid input. Intended for tests and
// package-level literals.
func MustParse(text string) Wide {
	w, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return w
}

// FromInt64 wraps an int64.
func FromInt64(v int64) Wide {
	return Wide{text: strconv.FormatInt(v, 10), integral: true}
}

// FromUint64 wraps a uint64.
func FromUint64(v uint64) Wide {
	return Wide{text: strconv.FormatUint(v, 10), integral: true}
}

// FromFloat64 wraps a float64 using the shortest text that round trips.
// NaN and infinities have no JSON spelling and are rejected.
func FromFloat64(v float64) (Wide, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Wide{}, fmt.Errorf("unsupported float value %v", v)
	}
	text := FormatFloat(v, 64)
	integral, _ := scan(text)
	return Wide{text: text, integral: integral}, nil
}

// FromDecimal wraps an arbitrary precision decimal.
func FromDecimal(d decimal.Decimal) Wide {
	text := FormatDecimal(d)
	integral, _ := scan(text)
	return Wide{text: text, integral: integral}
}

// maxPlainExponent bounds the exponents FormatDecimal writes out in full.
const maxPlainExponent = 64

// FormatDecimal renders d in plain notation, or as coefficient and exponent
// when the exponent is outside ±64 so that 1e50000000 stays short.
func FormatDecimal(d decimal.Decimal) string {
	exp := d.Exponent()
	if exp >= -maxPlainExponent && exp <= maxPlainExponent {
		return d.String()
	}
	return d.Coefficient().String() + "e" + strconv.Itoa(int(exp))
}

// FormatFloat renders a float the way encoding/json does: plain notation for
// moderate magnitudes, exponent notation otherwise.
func FormatFloat(f float64, bits int) string {
	abs := math.Abs(f)
	format := byte('f')
	if abs != 0 {
		if bits == 64 && (abs < 1e-6 || abs >= 1e21) || bits == 32 && (float32(abs) < 1e-6 || float32(abs) >= 1e21) {
			format = 'e'
		}
	}
	s := strconv.FormatFloat(f, format, -1, bits)
	if format == 'e' {
		// clean up e-09 to e-9
		n := len(s)
		if n >= 4 && s[n-4] == 'e' && s[n-3] == '-' && s[n-2] == '0' {
			s = s[:n-2] + s[n-1:]
		}
	}
	return s
}

// String returns the literal text.
func (w Wide) String() string { return w.text }

// IsZero reports whether the Wide was never assigned.
func (w Wide) IsZero() bool { return w.text == "" }

// IsIntegral reports whether the literal was written without a fraction or
// exponent.
func (w Wide) IsIntegral() bool { return w.integral }

// Int64 returns the literal as an int64. Non-integral literals are truncated
// toward zero; values out of range fail.
func (w Wide) Int64() (int64, error) {
	if w.integral {
		if v, err := fastfloat.ParseInt64(w.text); err == nil {
			return v, nil
		}
		return strconv.ParseInt(w.text, 10, 64)
	}
	d, err := w.Decimal()
	if err != nil {
		return 0, err
	}
	t := d.Truncate(0)
	if t.LessThan(decimal.NewFromInt(math.MinInt64)) || t.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, fmt.Errorf("number %s overflows int64", w.text)
	}
	return t.IntPart(), nil
}

// Uint64 returns the literal as a uint64. Negative values fail.
func (w Wide) Uint64() (uint64, error) {
	if strings.HasPrefix(w.text, "-") {
		if d, err := w.Decimal(); err == nil && d.Truncate(0).IsZero() {
			return 0, nil
		}
		return 0, fmt.Errorf("number %s is negative", w.text)
	}
	if w.integral {
		if v, err := fastfloat.ParseUint64(w.text); err == nil {
			return v, nil
		}
		return strconv.ParseUint(w.text, 10, 64)
	}
	d, err := w.Decimal()
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(d.Truncate(0).String(), 10, 64)
}

// Float64 returns the nearest float64.
func (w Wide) Float64() (float64, error) {
	f, err := fastfloat.Parse(w.text)
	if err != nil {
		return strconv.ParseFloat(w.text, 64)
	}
	return f, nil
}

// Decimal returns the exact decimal value.
func (w Wide) Decimal() (decimal.Decimal, error) {
	if w.text == "" {
		return decimal.Zero, fmt.Errorf("empty number")
	}
	return decimal.NewFromString(w.text)
}

// CastTo converts to the requested kind. lossy is set when a floating-point
// literal is narrowed to an integer kind, or when the float64 result differs
// from the exact decimal value.
func (w Wide) CastTo(k Kind) (v any, lossy bool, err error) {
	switch k {
	case KindInt64:
		i, err := w.Int64()
		return i, err == nil && !w.integral, err
	case KindUint64:
		u, err := w.Uint64()
		return u, err == nil && !w.integral, err
	case KindFloat64:
		f, err := w.Float64()
		if err != nil {
			return nil, false, err
		}
		return f, !w.exactAsFloat(f), nil
	case KindDecimal:
		d, err := w.Decimal()
		return d, false, err
	default:
		return nil, false, fmt.Errorf("unknown number kind %d", k)
	}
}

// Best returns the narrowest native value that holds the literal exactly:
// int64, then uint64, then float64, then decimal.Decimal.
func (w Wide) Best() any {
	if w.integral {
		if v, err := w.Int64(); err == nil {
			return v
		}
		if v, err := w.Uint64(); err == nil {
			return v
		}
	}
	if f, err := w.Float64(); err == nil && w.exactAsFloat(f) {
		return f
	}
	if d, err := w.Decimal(); err == nil {
		return d
	}
	f, _ := w.Float64()
	return f
}

// Double returns the literal the way a double-only profile sees it: int64
// when an integral literal fits, float64 otherwise.
func (w Wide) Double() any {
	if w.integral {
		if v, err := w.Int64(); err == nil {
			return v
		}
	}
	f, _ := w.Float64()
	return f
}

// Equal compares numeric values, not spellings.
func (w Wide) Equal(o Wide) bool {
	if w.text == o.text {
		return true
	}
	a, err1 := w.Decimal()
	b, err2 := o.Decimal()
	return err1 == nil && err2 == nil && a.Equal(b)
}

func (w Wide) exactAsFloat(f float64) bool {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return false
	}
	d, err := w.Decimal()
	if err != nil {
		return false
	}
	// d.Equal(zero) rescales zero to the exponent of d
	if f == 0 {
		return d.IsZero()
	}
	return d.Equal(decimal.NewFromFloat(f))
}

// scan checks the literal against the number grammar: optional '-', digits,
// optional fraction, optional exponent.
func scan(s string) (integral bool, ok bool) {
	i := 0
	if i < len(s) && s[i] == '-' {
		i++
	}
	start := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == start {
		return false, false
	}
	integral = true
	if i < len(s) && s[i] == '.' {
		integral = false
		i++
		fs := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == fs {
			return false, false
		}
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		integral = false
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		es := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == es {
			return false, false
		}
	}
	return integral, i == len(s)
}
