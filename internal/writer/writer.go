// Package writer renders Go values as JSON text
package writer

import (
	"bytes"
	"encoding"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/valyala/bytebufferpool"

	"github.com/mcncl/typedjson/internal/analyzer"
	"github.com/mcncl/typedjson/internal/config"
	"github.com/mcncl/typedjson/internal/errors"
	"github.com/mcncl/typedjson/internal/formatter"
	"github.com/mcncl/typedjson/internal/logging"
	"github.com/mcncl/typedjson/internal/materializer"
	"github.com/mcncl/typedjson/internal/models"
	"github.com/mcncl/typedjson/internal/number"
	"github.com/mcncl/typedjson/internal/parser"
	"github.com/mcncl/typedjson/internal/schema"
)

// Writer renders one document. The global type table it builds lives for
// that document only, so a Writer must not be shared between concurrent
// calls.
type Writer struct {
	analyzer *analyzer.Analyzer
	profile  *config.Profile
	logger   logging.Logger

	maxDepth int
	global   bool
	tokens   map[string]int
	names    []string
}

// New creates a Writer for one document.
func New(a *analyzer.Analyzer, p *config.Profile, logger logging.Logger) *Writer {
	if p == nil {
		p = config.NewProfile()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	maxDepth := p.MaxDepth
	if maxDepth <= 0 {
		maxDepth = config.DefaultMaxDepth
	}
	return &Writer{
		analyzer: a,
		profile:  p,
		logger:   logger,
		maxDepth: maxDepth,
		tokens:   make(map[string]int),
	}
}

// Write renders v.
func (w *Writer) Write(v any) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	rv := reflect.ValueOf(v)
	w.global = w.profile.UseExtensions && w.profile.GlobalTypes && w.rendersObject(rv)
	if err := w.value(buf, rv, 0, "", true, nil); err != nil {
		return nil, err
	}

	out := w.withTypeTable(buf.B)
	if w.profile.Indent {
		out = []byte(formatter.Beautify(string(out)))
	}
	return out, nil
}

// WriteTo renders v into out, encoded in the named charset ("" is UTF-8).
func (w *Writer) WriteTo(out io.Writer, v any, encodingName string) error {
	data, err := w.Write(v)
	if err != nil {
		return err
	}
	return writeEncoded(out, data, encodingName)
}

// WriteValue renders a raw value tree.
func (w *Writer) WriteValue(v *models.Value) ([]byte, error) {
	if depth := nesting(v); depth > w.maxDepth {
		w.logger.Warnf("value nests %d levels, limit is %d", depth, w.maxDepth)
		return nil, errors.NewDepthError(w.maxDepth)
	}
	out := v.AppendJSON(nil)
	if w.profile.Indent {
		out = []byte(formatter.Beautify(string(out)))
	}
	return out, nil
}

func writeEncoded(out io.Writer, data []byte, encodingName string) error {
	if encodingName != "" {
		enc, err := parser.Charset(encodingName)
		if err != nil {
			return errors.NewOutputError("unsupported output encoding", err)
		}
		out = enc.NewEncoder().Writer(out)
	}
	if _, err := out.Write(data); err != nil {
		return errors.NewOutputError("failed to write output", err)
	}
	return nil
}

func nesting(v *models.Value) int {
	depth := 0
	switch v.Kind() {
	case models.KindArray:
		for _, item := range v.Items() {
			depth = max(depth, nesting(item))
		}
		return depth + 1
	case models.KindObject:
		for _, m := range v.Members() {
			depth = max(depth, nesting(m.Value))
		}
		return depth + 1
	}
	return 0
}

// withTypeTable splices the $types table in front of the root object's
// members.
func (w *Writer) withTypeTable(out []byte) []byte {
	if !w.global || len(w.names) == 0 || len(out) < 2 || out[0] != '{' {
		return bytes.Clone(out)
	}
	res := make([]byte, 0, len(out)+32*len(w.names))
	res = append(res, '{')
	res = models.AppendQuoted(res, materializer.KeyTypes)
	res = append(res, ':', '{')
	for i, name := range w.names {
		if i > 0 {
			res = append(res, ',')
		}
		res = models.AppendQuoted(res, strconv.Itoa(i+1))
		res = append(res, ':')
		res = models.AppendQuoted(res, name)
	}
	res = append(res, '}')
	if out[1] != '}' {
		res = append(res, ',')
	}
	return append(res, out[1:]...)
}

// rendersObject reports whether rv is written as a JSON object that can
// carry the $types table.
func (w *Writer) rendersObject(rv reflect.Value) bool {
	for rv.IsValid() && (rv.Kind() == reflect.Interface || rv.Kind() == reflect.Pointer) {
		if rv.IsNil() {
			return false
		}
		if rv.Kind() == reflect.Pointer && w.hooked(w.analyzer.Resolve(rv.Type(), w.profile).Class) {
			return false
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return false
	}
	c := w.analyzer.Resolve(rv.Type(), w.profile).Class
	return c.Any(analyzer.ClassStruct|analyzer.ClassStringMap) && !w.hooked(c)
}

func (w *Writer) hooked(c analyzer.Class) bool {
	return c.Any(analyzer.ClassRaw | analyzer.ClassTable | analyzer.ClassEnum | analyzer.ClassJSONMarshaler | analyzer.ClassTextMarshaler)
}

// typeTag returns the $type value written for t.
func (w *Writer) typeTag(dst []byte, t reflect.Type) []byte {
	if !w.global {
		return models.AppendQuoted(dst, w.analyzer.Registry.Tag(t))
	}
	name := analyzer.TypeName(t)
	tok, ok := w.tokens[name]
	if !ok {
		w.names = append(w.names, name)
		tok = len(w.names)
		w.tokens[name] = tok
	}
	return strconv.AppendInt(dst, int64(tok), 10)
}

func (w *Writer) fail(path string, rv reflect.Value, err error) error {
	return errors.NewConversionError(path, rv.Type().String(), "JSON", err)
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

// value writes rv. tagged is set for interface slots and the root, where a
// struct carries its $type; member is the struct member being written, if
// any.
func (w *Writer) value(buf *bytebufferpool.ByteBuffer, rv reflect.Value, depth int, path string, tagged bool, member *analyzer.Member) error {
	if !rv.IsValid() {
		buf.B = append(buf.B, "null"...)
		return nil
	}
	if depth > w.maxDepth {
		w.logger.Warnf("nesting limit %d reached at %q", w.maxDepth, path)
		return errors.NewDepthError(w.maxDepth)
	}

	t := rv.Type()
	if rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			buf.B = append(buf.B, "null"...)
			return nil
		}
		return w.value(buf, rv.Elem(), depth, path, true, member)
	}

	ti := w.analyzer.Resolve(t, w.profile)
	c := ti.Class

	switch {
	case c.Has(analyzer.ClassRaw):
		buf.B = rv.Interface().(*models.Value).AppendJSON(buf.B)
		return nil
	case c.Has(analyzer.ClassNullable) && rv.IsNil():
		buf.B = append(buf.B, "null"...)
		return nil
	case c.Has(analyzer.ClassWideNumber):
		n := rv.Interface().(number.Wide)
		if n.IsZero() {
			buf.B = append(buf.B, '0')
		} else {
			buf.B = append(buf.B, n.String()...)
		}
		return nil
	case c.Has(analyzer.ClassTable):
		return w.table(buf, rv, path)
	case c.Has(analyzer.ClassEnum):
		return w.enum(buf, rv, ti, member)
	case c.Has(analyzer.ClassJSONMarshaler):
		return w.marshalJSON(buf, rv, path)
	case c.Has(analyzer.ClassTextMarshaler) && !c.Has(analyzer.ClassNullable):
		return w.marshalText(buf, rv, path)
	case c.Has(analyzer.ClassTime):
		w.time(buf, rv.Interface().(time.Time))
		return nil
	case c.Has(analyzer.ClassDuration):
		buf.B = models.AppendQuoted(buf.B, materializer.FormatDuration(time.Duration(rv.Int())))
		return nil
	case c.Has(analyzer.ClassGUID):
		w.guid(buf, rv.Interface().(uuid.UUID))
		return nil
	case c.Has(analyzer.ClassDecimal):
		buf.B = append(buf.B, number.FormatDecimal(rv.Interface().(decimal.Decimal))...)
		return nil
	case c.Has(analyzer.ClassBytes):
		w.bytes(buf, rv)
		return nil
	case c.Any(analyzer.ClassList | analyzer.ClassArray):
		return w.list(buf, rv, depth, path)
	case c.Has(analyzer.ClassSet):
		return w.set(buf, rv, depth, path)
	case c.Has(analyzer.ClassStringMap):
		return w.stringMap(buf, rv, depth, path)
	case c.Has(analyzer.ClassPairMap):
		return w.pairMap(buf, rv, depth, path)
	case c.Has(analyzer.ClassNullable):
		return w.value(buf, rv.Elem(), depth, path, tagged, member)
	case c.Has(analyzer.ClassNumeric):
		return w.number(buf, rv, path, member)
	case c.Has(analyzer.ClassString):
		buf.B = models.AppendQuoted(buf.B, rv.String())
		return nil
	case c.Has(analyzer.ClassBool):
		if member != nil && member.AsString {
			buf.B = strconv.AppendQuote(buf.B, strconv.FormatBool(rv.Bool()))
		} else {
			buf.B = strconv.AppendBool(buf.B, rv.Bool())
		}
		return nil
	case c.Has(analyzer.ClassStruct):
		return w.object(buf, rv, ti, depth, path, tagged)
	default:
		return w.fail(path, rv, fmt.Errorf("unsupported type"))
	}
}

func (w *Writer) number(buf *bytebufferpool.ByteBuffer, rv reflect.Value, path string, member *analyzer.Member) error {
	quoted := member != nil && member.AsString
	if quoted {
		buf.B = append(buf.B, '"')
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		buf.B = strconv.AppendInt(buf.B, rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		buf.B = strconv.AppendUint(buf.B, rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return w.fail(path, rv, fmt.Errorf("unsupported float value %v", f))
		}
		buf.B = append(buf.B, number.FormatFloat(f, rv.Type().Bits())...)
	}
	if quoted {
		buf.B = append(buf.B, '"')
	}
	return nil
}

func (w *Writer) enum(buf *bytebufferpool.ByteBuffer, rv reflect.Value, ti *analyzer.TypeInfo, member *analyzer.Member) error {
	var v int64
	if rv.CanInt() {
		v = rv.Int()
	} else {
		v = int64(rv.Uint())
	}
	if !w.profile.EnumsAsNumbers && ti.Enum != nil {
		if name, ok := ti.Enum.Name(v); ok {
			buf.B = models.AppendQuoted(buf.B, name)
			return nil
		}
	}
	return w.number(buf, rv, "", member)
}

func (w *Writer) time(buf *bytebufferpool.ByteBuffer, t time.Time) {
	if w.profile.UTCDates {
		t = t.UTC()
	}
	format := time.RFC3339Nano
	if len(w.profile.DateFormats) > 0 {
		format = w.profile.DateFormats[0]
	}
	buf.B = models.AppendQuoted(buf.B, materializer.FormatTime(t, format))
}

func (w *Writer) guid(buf *bytebufferpool.ByteBuffer, id uuid.UUID) {
	if w.profile.GUIDFormat == config.EncodingBase64 {
		buf.B = models.AppendQuoted(buf.B, base64.StdEncoding.EncodeToString(id[:]))
		return
	}
	buf.B = models.AppendQuoted(buf.B, id.String())
}

func (w *Writer) bytes(buf *bytebufferpool.ByteBuffer, rv reflect.Value) {
	if rv.IsNil() {
		buf.B = append(buf.B, "null"...)
		return
	}
	raw := rv.Bytes()
	if w.profile.ByteEncoding == config.EncodingHex {
		buf.B = append(buf.B, `"0x`...)
		buf.B = hex.AppendEncode(buf.B, raw)
		buf.B = append(buf.B, '"')
		return
	}
	buf.B = append(buf.B, '"')
	buf.B = base64.StdEncoding.AppendEncode(buf.B, raw)
	buf.B = append(buf.B, '"')
}

// addressable returns rv or, for pointer-receiver methods, a pointer to a
// copy of it.
func addressable(rv reflect.Value) reflect.Value {
	if rv.CanAddr() {
		return rv.Addr()
	}
	ptr := reflect.New(rv.Type())
	ptr.Elem().Set(rv)
	return ptr
}

// marshalJSON writes the output of a MarshalJSON method, validated and
// compacted.
func (w *Writer) marshalJSON(buf *bytebufferpool.ByteBuffer, rv reflect.Value, path string) error {
	m, ok := rv.Interface().(json.Marshaler)
	if !ok {
		m = addressable(rv).Interface().(json.Marshaler)
	}
	raw, err := m.MarshalJSON()
	if err != nil {
		return w.fail(path, rv, err)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return w.fail(path, rv, fmt.Errorf("MarshalJSON returned invalid JSON: %w", err))
	}
	buf.B = append(buf.B, compact.Bytes()...)
	return nil
}

func (w *Writer) marshalText(buf *bytebufferpool.ByteBuffer, rv reflect.Value, path string) error {
	m, ok := rv.Interface().(encoding.TextMarshaler)
	if !ok {
		m = addressable(rv).Interface().(encoding.TextMarshaler)
	}
	text, err := m.MarshalText()
	if err != nil {
		return w.fail(path, rv, err)
	}
	buf.B = models.AppendQuoted(buf.B, string(text))
	return nil
}

func (w *Writer) table(buf *bytebufferpool.ByteBuffer, rv reflect.Value, path string) error {
	var ts schema.TableSet
	switch x := rv.Interface().(type) {
	case schema.TableSet:
		ts = x
	case schema.Table:
		ts = schema.TableSet{Tables: []schema.Table{x}}
	}
	v, err := schema.Encode(ts)
	if err != nil {
		return w.fail(path, rv, err)
	}
	buf.B = v.AppendJSON(buf.B)
	return nil
}
