package materializer

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/itchyny/timefmt-go"

	"github.com/mcncl/typedjson/internal/analyzer"
	"github.com/mcncl/typedjson/internal/config"
	"github.com/mcncl/typedjson/internal/models"
	"github.com/mcncl/typedjson/internal/number"
)

// TicksPerSecond is the resolution of tick timestamps and durations.
const TicksPerSecond = 10_000_000

// unixEpochTicks is 1970-01-01 in ticks since 0001-01-01.
const unixEpochTicks = 621355968000000000

// TimeFromTicks converts 100ns ticks since 0001-01-01 UTC.
func TimeFromTicks(ticks int64) time.Time {
	rel := ticks - unixEpochTicks
	sec := rel / TicksPerSecond
	rem := rel % TicksPerSecond
	if rem < 0 {
		sec--
		rem += TicksPerSecond
	}
	return time.Unix(sec, rem*100).UTC()
}

// TicksFromTime is the inverse of TimeFromTicks.
func TicksFromTime(t time.Time) int64 {
	return t.Unix()*TicksPerSecond + int64(t.Nanosecond()/100) + unixEpochTicks
}

// numberOf reads a numeric node or a string holding a number.
func numberOf(node *models.Value) (number.Wide, bool) {
	switch node.Kind() {
	case models.KindNumber:
		return node.Number(), true
	case models.KindString:
		w, err := number.Parse(strings.TrimSpace(node.Str()))
		return w, err == nil
	}
	return number.Wide{}, false
}

func (m *Materializer) convertWide(node *models.Value, dst reflect.Value, path string) error {
	w, ok := numberOf(node)
	if !ok {
		return m.mismatch(path, node, dst.Type(), nil)
	}
	dst.Set(reflect.ValueOf(w))
	return nil
}

func (m *Materializer) convertNumber(node *models.Value, dst reflect.Value, path string) error {
	t := dst.Type()
	w, ok := numberOf(node)
	if !ok {
		if node.Kind() == models.KindBool {
			w = number.FromInt64(0)
			if node.Bool() {
				w = number.FromInt64(1)
			}
		} else {
			return m.mismatch(path, node, t, nil)
		}
	}

	var kind number.Kind
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		kind = number.KindInt64
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		kind = number.KindUint64
	case reflect.Float32, reflect.Float64:
		kind = number.KindFloat64
	default:
		return m.mismatch(path, node, t, nil)
	}

	v, lossy, err := w.CastTo(kind)
	if err != nil {
		return m.mismatch(path, node, t, err)
	}
	if lossy && m.profile.StrictNumbers {
		return m.mismatch(path, node, t, fmt.Errorf("%s loses precision", w))
	}

	switch x := v.(type) {
	case int64:
		if dst.OverflowInt(x) {
			return m.mismatch(path, node, t, fmt.Errorf("%s overflows %s", w, t))
		}
		dst.SetInt(x)
	case uint64:
		if dst.OverflowUint(x) {
			return m.mismatch(path, node, t, fmt.Errorf("%s overflows %s", w, t))
		}
		dst.SetUint(x)
	case float64:
		if t.Kind() == reflect.Float32 && math.Abs(x) > math.MaxFloat32 {
			return m.mismatch(path, node, t, fmt.Errorf("%s overflows %s", w, t))
		}
		dst.SetFloat(x)
	}
	return nil
}

func (m *Materializer) convertDecimal(node *models.Value, dst reflect.Value, path string) error {
	w, ok := numberOf(node)
	if !ok {
		return m.mismatch(path, node, dst.Type(), nil)
	}
	d, err := w.Decimal()
	if err != nil {
		return m.mismatch(path, node, dst.Type(), err)
	}
	dst.Set(reflect.ValueOf(d))
	return nil
}

func (m *Materializer) convertString(node *models.Value, dst reflect.Value, path string) error {
	switch node.Kind() {
	case models.KindString:
		dst.SetString(node.Str())
	case models.KindNumber:
		dst.SetString(node.Number().String())
	case models.KindBool:
		dst.SetString(strconv.FormatBool(node.Bool()))
	default:
		return m.mismatch(path, node, dst.Type(), nil)
	}
	return nil
}

func (m *Materializer) convertBool(node *models.Value, dst reflect.Value, path string) error {
	switch node.Kind() {
	case models.KindBool:
		dst.SetBool(node.Bool())
	case models.KindString:
		b, err := strconv.ParseBool(strings.TrimSpace(node.Str()))
		if err != nil {
			return m.mismatch(path, node, dst.Type(), err)
		}
		dst.SetBool(b)
	default:
		return m.mismatch(path, node, dst.Type(), nil)
	}
	return nil
}

func (m *Materializer) convertEnum(node *models.Value, dst reflect.Value, ti *analyzer.TypeInfo, path string) error {
	t := dst.Type()
	switch node.Kind() {
	case models.KindString:
		if v, ok := ti.Enum.Value(node.Str()); ok {
			setInteger(dst, v)
			return nil
		}
		if _, ok := numberOf(node); !ok {
			return m.mismatch(path, node, t, fmt.Errorf("%q is not a member of %s", node.Str(), ti.Name))
		}
	case models.KindNumber:
	default:
		return m.mismatch(path, node, t, nil)
	}
	return m.convertNumber(node, dst, path)
}

func setInteger(dst reflect.Value, v int64) {
	switch dst.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		dst.SetUint(uint64(v))
	default:
		dst.SetInt(v)
	}
}

func (m *Materializer) convertTime(node *models.Value, dst reflect.Value, path string) error {
	var (
		t   time.Time
		err error
	)
	switch node.Kind() {
	case models.KindString:
		t, err = ParseTime(node.Str(), m.profile.DateFormats)
	case models.KindNumber:
		t, err = timeFromNumber(node.Number(), m.profile.DateNumberUnit)
	default:
		err = fmt.Errorf("expected a date string or number")
	}
	if err != nil {
		return m.mismatch(path, node, dst.Type(), err)
	}
	if m.profile.UTCDates {
		t = t.UTC()
	}
	dst.Set(reflect.ValueOf(t))
	return nil
}

// ParseTime tries each format in order, then RFC 3339. Formats containing
// '%' are strftime patterns; others are Go layouts.
func ParseTime(s string, formats []string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, f := range formats {
		var (
			t   time.Time
			err error
		)
		if strings.Contains(f, "%") {
			t, err = timefmt.Parse(s, f)
		} else {
			t, err = time.Parse(f, s)
		}
		if err == nil {
			return t, nil
		}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q matches no date format", s)
	}
	return t, nil
}

// FormatTime renders t with format, a strftime pattern or a Go layout.
func FormatTime(t time.Time, format string) string {
	if strings.Contains(format, "%") {
		return timefmt.Format(t, format)
	}
	return t.Format(format)
}

func timeFromNumber(w number.Wide, unit string) (time.Time, error) {
	n, err := w.Int64()
	if err != nil {
		return time.Time{}, err
	}
	switch unit {
	case config.UnitUnix:
		return time.Unix(n, 0).UTC(), nil
	case config.UnitUnixMS:
		return time.UnixMilli(n).UTC(), nil
	default:
		return TimeFromTicks(n), nil
	}
}

// timespan matches [-][d.]hh:mm:ss[.fffffff], with up to nine fraction
// digits for sub-tick durations
var timespan = regexp.MustCompile(`^(-)?(?:(\d+)\.)?(\d+):(\d{2}):(\d{2})(?:\.(\d{1,9}))?$`)

// ParseDuration accepts Go duration strings and the [-][d.]hh:mm:ss[.fffffff]
// form.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	parts := timespan.FindStringSubmatch(s)
	if parts == nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	atoi := func(x string) int64 {
		if x == "" {
			return 0
		}
		n, _ := strconv.ParseInt(x, 10, 64)
		return n
	}
	days, hours, mins, secs := atoi(parts[2]), atoi(parts[3]), atoi(parts[4]), atoi(parts[5])
	if mins > 59 || secs > 59 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	frac := parts[6]
	nanos := atoi(frac + strings.Repeat("0", 9-len(frac)))

	d := time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(mins)*time.Minute +
		time.Duration(secs)*time.Second +
		time.Duration(nanos)
	if parts[1] == "-" {
		d = -d
	}
	return d, nil
}

// FormatDuration renders d as [-][d.]hh:mm:ss[.fffffff]. Durations that are
// not whole ticks get nine fraction digits.
func FormatDuration(d time.Duration) string {
	var b strings.Builder
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	if days > 0 {
		fmt.Fprintf(&b, "%d.", days)
	}
	h := d / time.Hour
	d -= h * time.Hour
	mi := d / time.Minute
	d -= mi * time.Minute
	s := d / time.Second
	d -= s * time.Second
	fmt.Fprintf(&b, "%02d:%02d:%02d", h, mi, s)
	switch {
	case d%100 != 0:
		fmt.Fprintf(&b, ".%09d", d)
	case d > 0:
		fmt.Fprintf(&b, ".%07d", d/100)
	}
	return b.String()
}

func (m *Materializer) convertDuration(node *models.Value, dst reflect.Value, path string) error {
	var d time.Duration
	switch node.Kind() {
	case models.KindString:
		var err error
		if d, err = ParseDuration(node.Str()); err != nil {
			return m.mismatch(path, node, dst.Type(), err)
		}
	case models.KindNumber:
		ticks, err := node.Number().Int64()
		if err != nil {
			return m.mismatch(path, node, dst.Type(), err)
		}
		d = time.Duration(ticks) * 100
	default:
		return m.mismatch(path, node, dst.Type(), nil)
	}
	dst.SetInt(int64(d))
	return nil
}

func (m *Materializer) convertGUID(node *models.Value, dst reflect.Value, path string) error {
	if node.Kind() != models.KindString {
		return m.mismatch(path, node, dst.Type(), nil)
	}
	id, err := ParseGUID(node.Str())
	if err != nil {
		return m.mismatch(path, node, dst.Type(), err)
	}
	dst.Set(reflect.ValueOf(id))
	return nil
}

// ParseGUID accepts the hex forms uuid.Parse understands and 16 bytes of
// base64.
func ParseGUID(s string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if id, err := uuid.Parse(s); err == nil {
		return id, nil
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(raw) != 16 {
		return uuid.Nil, fmt.Errorf("invalid GUID %q", s)
	}
	return uuid.FromBytes(raw)
}

// convertBytes accepts base64 text, 0x-prefixed hex and arrays of numbers.
func (m *Materializer) convertBytes(node *models.Value, dst reflect.Value, path string) error {
	t := dst.Type()
	switch node.Kind() {
	case models.KindString:
		raw, err := DecodeBytes(node.Str(), m.profile.ByteEncoding)
		if err != nil {
			return m.mismatch(path, node, t, err)
		}
		if raw == nil {
			raw = []byte{}
		}
		dst.SetBytes(raw)
		return nil
	case models.KindArray:
		raw := make([]byte, node.Len())
		for i, item := range node.Items() {
			b := reflect.New(t.Elem()).Elem()
			if err := m.convertNumber(item, b, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
			raw[i] = byte(b.Uint())
		}
		dst.SetBytes(raw)
		return nil
	default:
		return m.mismatch(path, node, t, nil)
	}
}

// DecodeBytes decodes s in the preferred encoding first. With base64 the
// order is padded base64, 0x-prefixed hex, unpadded base64, bare hex; with
// hex it is 0x-prefixed hex, bare hex, then base64.
func DecodeBytes(s, preferred string) ([]byte, error) {
	if preferred == config.EncodingHex {
		if rest, ok := strings.CutPrefix(s, "0x"); ok {
			return hex.DecodeString(rest)
		}
		if raw, err := hex.DecodeString(s); err == nil {
			return raw, nil
		}
		if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
			return raw, nil
		}
		if raw, err := base64.RawStdEncoding.DecodeString(s); err == nil {
			return raw, nil
		}
		return nil, fmt.Errorf("invalid byte string")
	}

	// standard base64 output may itself start with "0x"
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
		return raw, nil
	}
	if rest, ok := strings.CutPrefix(s, "0x"); ok {
		return hex.DecodeString(rest)
	}
	if raw, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return raw, nil
	}
	if raw, err := hex.DecodeString(s); err == nil {
		return raw, nil
	}
	return nil, fmt.Errorf("invalid byte string")
}
