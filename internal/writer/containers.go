package writer

import (
	"bytes"
	"encoding"
	"fmt"
	"reflect"
	"sort"
	"strconv"

	"github.com/valyala/bytebufferpool"

	"github.com/mcncl/typedjson/internal/analyzer"
	"github.com/mcncl/typedjson/internal/materializer"
	"github.com/mcncl/typedjson/internal/models"
)

func (w *Writer) list(buf *bytebufferpool.ByteBuffer, rv reflect.Value, depth int, path string) error {
	if rv.Kind() == reflect.Slice && rv.IsNil() {
		buf.B = append(buf.B, "null"...)
		return nil
	}
	buf.B = append(buf.B, '[')
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			buf.B = append(buf.B, ',')
		}
		if err := w.value(buf, rv.Index(i), depth+1, fmt.Sprintf("%s[%d]", path, i), false, nil); err != nil {
			return err
		}
	}
	buf.B = append(buf.B, ']')
	return nil
}

// render writes rv into a scratch buffer, for output that must be sorted
// before it is emitted.
func (w *Writer) render(rv reflect.Value, depth int, path string) ([]byte, error) {
	scratch := bytebufferpool.Get()
	defer bytebufferpool.Put(scratch)
	if err := w.value(scratch, rv, depth, path, false, nil); err != nil {
		return nil, err
	}
	return bytes.Clone(scratch.B), nil
}

// set writes the keys of a map[K]struct{} as an array, sorted by their
// JSON text.
func (w *Writer) set(buf *bytebufferpool.ByteBuffer, rv reflect.Value, depth int, path string) error {
	if rv.IsNil() {
		buf.B = append(buf.B, "null"...)
		return nil
	}
	items := make([][]byte, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		item, err := w.render(iter.Key(), depth+1, path+"[]")
		if err != nil {
			return err
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return bytes.Compare(items[i], items[j]) < 0 })

	buf.B = append(buf.B, '[')
	for i, item := range items {
		if i > 0 {
			buf.B = append(buf.B, ',')
		}
		buf.B = append(buf.B, item...)
	}
	buf.B = append(buf.B, ']')
	return nil
}

func mapKey(k reflect.Value) (string, error) {
	if k.Kind() == reflect.String {
		return k.String(), nil
	}
	if m, ok := k.Interface().(encoding.TextMarshaler); ok {
		text, err := m.MarshalText()
		return string(text), err
	}
	switch k.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(k.Uint(), 10), nil
	}
	return "", fmt.Errorf("unsupported map key type %s", k.Type())
}

// stringMap writes a map as an object with keys in sorted order.
func (w *Writer) stringMap(buf *bytebufferpool.ByteBuffer, rv reflect.Value, depth int, path string) error {
	if rv.IsNil() {
		buf.B = append(buf.B, "null"...)
		return nil
	}
	type entry struct {
		key string
		val reflect.Value
	}
	entries := make([]entry, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		key, err := mapKey(iter.Key())
		if err != nil {
			return w.fail(path, rv, err)
		}
		entries = append(entries, entry{key: key, val: iter.Value()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	buf.B = append(buf.B, '{')
	for i, e := range entries {
		if i > 0 {
			buf.B = append(buf.B, ',')
		}
		buf.B = models.AppendQuoted(buf.B, e.key)
		buf.B = append(buf.B, ':')
		if err := w.value(buf, e.val, depth+1, fmt.Sprintf("%s[%q]", path, e.key), false, nil); err != nil {
			return err
		}
	}
	buf.B = append(buf.B, '}')
	return nil
}

// pairMap writes a map with composite keys as [{"Key":k,"Value":v}, ...],
// sorted by the key's JSON text.
func (w *Writer) pairMap(buf *bytebufferpool.ByteBuffer, rv reflect.Value, depth int, path string) error {
	if rv.IsNil() {
		buf.B = append(buf.B, "null"...)
		return nil
	}
	type entry struct {
		key []byte
		val reflect.Value
	}
	entries := make([]entry, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		key, err := w.render(iter.Key(), depth+2, path+"."+materializer.PairKey)
		if err != nil {
			return err
		}
		entries = append(entries, entry{key: key, val: iter.Value()})
	}
	sort.Slice(entries, func(i, j int) bool { return bytes.Compare(entries[i].key, entries[j].key) < 0 })

	buf.B = append(buf.B, '[')
	for i, e := range entries {
		if i > 0 {
			buf.B = append(buf.B, ',')
		}
		buf.B = append(buf.B, '{')
		buf.B = models.AppendQuoted(buf.B, materializer.PairKey)
		buf.B = append(buf.B, ':')
		buf.B = append(buf.B, e.key...)
		buf.B = append(buf.B, ',')
		buf.B = models.AppendQuoted(buf.B, materializer.PairValue)
		buf.B = append(buf.B, ':')
		if err := w.value(buf, e.val, depth+2, fmt.Sprintf("%s[%d]", path, i), false, nil); err != nil {
			return err
		}
		buf.B = append(buf.B, '}')
	}
	buf.B = append(buf.B, ']')
	return nil
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return v.IsNil()
	}
	return false
}

func isEmpty(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	}
	return v.IsZero()
}

// object writes a struct. Nil members are skipped unless the profile emits
// nulls; $type leads when the struct sits in an interface slot and $map
// hints trail the members.
func (w *Writer) object(buf *bytebufferpool.ByteBuffer, rv reflect.Value, ti *analyzer.TypeInfo, depth int, path string, tagged bool) error {
	buf.B = append(buf.B, '{')
	first := true
	sep := func() {
		if !first {
			buf.B = append(buf.B, ',')
		}
		first = false
	}

	if tagged && w.profile.UseExtensions {
		sep()
		buf.B = models.AppendQuoted(buf.B, materializer.KeyType)
		buf.B = append(buf.B, ':')
		buf.B = w.typeTag(buf.B, ti.Type)
	}

	var hints [][2]string
	for _, m := range ti.Members {
		fv := m.Get(rv)
		if !fv.IsValid() {
			continue
		}
		if m.OmitEmpty && isEmpty(fv) {
			continue
		}
		if isNil(fv) && !w.profile.EmitNulls {
			continue
		}

		sep()
		buf.B = models.AppendQuoted(buf.B, m.JSONName)
		buf.B = append(buf.B, ':')
		if err := w.value(buf, fv, depth+1, joinPath(path, m.Name), false, m); err != nil {
			return err
		}

		if w.profile.TypeMap && m.Class.Any(analyzer.ClassAny|analyzer.ClassInterface) && !fv.IsNil() {
			held := fv.Elem().Type()
			if w.analyzer.Resolve(held, w.profile).Class.Scalar() {
				if name := analyzer.BuiltinName(held); name != "" {
					hints = append(hints, [2]string{m.JSONName, name})
				}
			}
		}
	}

	if len(hints) > 0 {
		sep()
		buf.B = models.AppendQuoted(buf.B, materializer.KeyMap)
		buf.B = append(buf.B, ':', '{')
		for i, h := range hints {
			if i > 0 {
				buf.B = append(buf.B, ',')
			}
			buf.B = models.AppendQuoted(buf.B, h[0])
			buf.B = append(buf.B, ':')
			buf.B = models.AppendQuoted(buf.B, h[1])
		}
		buf.B = append(buf.B, '}')
	}

	buf.B = append(buf.B, '}')
	return nil
}
