package materializer

import (
	"encoding"
	"fmt"
	"reflect"
	"strconv"

	"github.com/mcncl/typedjson/internal/analyzer"
	"github.com/mcncl/typedjson/internal/models"
)

func indexPath(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}

func keyPath(path, key string) string {
	return fmt.Sprintf("%s[%q]", path, key)
}

// element materializes node as a new value of type t.
func (m *Materializer) element(node *models.Value, t reflect.Type, path string) (reflect.Value, error) {
	v, err := m.fresh(t)
	if err != nil {
		return reflect.Value{}, m.mismatch(path, node, t, err)
	}
	if err := m.convert(node, v, path); err != nil {
		return reflect.Value{}, err
	}
	return v, nil
}

// convertList builds a new slice.
func (m *Materializer) convertList(node *models.Value, dst reflect.Value, ti *analyzer.TypeInfo, path string) error {
	if node.Kind() != models.KindArray {
		return m.mismatch(path, node, dst.Type(), nil)
	}
	items := node.Items()
	out := reflect.MakeSlice(dst.Type(), len(items), len(items))
	for i, item := range items {
		v, err := m.element(item, ti.Elem, indexPath(path, i))
		if err != nil {
			return err
		}
		out.Index(i).Set(v)
	}
	dst.Set(out)
	return nil
}

// convertArray fills a fixed-size array. Extra elements are ignored and
// missing ones are left zero.
func (m *Materializer) convertArray(node *models.Value, dst reflect.Value, ti *analyzer.TypeInfo, path string) error {
	if node.Kind() != models.KindArray {
		return m.mismatch(path, node, dst.Type(), nil)
	}
	if node.Len() > ti.Len {
		m.logger.Debugf("ignoring %d elements beyond %s length %d at %q", node.Len()-ti.Len, dst.Type(), ti.Len, path)
	}
	dst.Set(reflect.Zero(dst.Type()))
	for i, item := range node.Items() {
		if i >= ti.Len {
			break
		}
		v, err := m.element(item, ti.Elem, indexPath(path, i))
		if err != nil {
			return err
		}
		dst.Index(i).Set(v)
	}
	return nil
}

// convertSet reads an array into map[K]struct{}. Duplicates collapse.
func (m *Materializer) convertSet(node *models.Value, dst reflect.Value, ti *analyzer.TypeInfo, path string) error {
	if node.Kind() != models.KindArray {
		return m.mismatch(path, node, dst.Type(), nil)
	}
	out := reflect.MakeMapWithSize(dst.Type(), node.Len())
	present := reflect.Zero(dst.Type().Elem())
	for i, item := range node.Items() {
		v, err := m.element(item, ti.Elem, indexPath(path, i))
		if err != nil {
			return err
		}
		out.SetMapIndex(v, present)
	}
	dst.Set(out)
	return nil
}

// convertStringMap reads an object into a map keyed by strings, integers or
// text-unmarshalable keys. Extension keys are skipped. An existing map is
// updated in place.
func (m *Materializer) convertStringMap(node *models.Value, dst reflect.Value, ti *analyzer.TypeInfo, path string) error {
	if node.Kind() != models.KindObject {
		if node.Kind() == models.KindArray {
			return m.convertPairMap(node, dst, ti, path)
		}
		return m.mismatch(path, node, dst.Type(), nil)
	}
	if dst.IsNil() {
		dst.Set(reflect.MakeMapWithSize(dst.Type(), node.Len()))
	}
	for _, e := range node.Members() {
		if IsExtensionKey(e.Key) {
			continue
		}
		p := keyPath(path, e.Key)
		k, err := m.mapKey(e.Key, ti.Key, p)
		if err != nil {
			return err
		}
		v, err := m.element(e.Value, ti.Elem, p)
		if err != nil {
			return err
		}
		dst.SetMapIndex(k, v)
	}
	return nil
}

func (m *Materializer) mapKey(key string, t reflect.Type, path string) (reflect.Value, error) {
	k := reflect.New(t).Elem()
	if u, ok := k.Addr().Interface().(encoding.TextUnmarshaler); ok && t.Kind() != reflect.String {
		if err := u.UnmarshalText([]byte(key)); err != nil {
			return reflect.Value{}, m.mismatch(path, models.NewString(key), t, err)
		}
		return k, nil
	}
	switch t.Kind() {
	case reflect.String:
		k.SetString(key)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(key, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, m.mismatch(path, models.NewString(key), t, err)
		}
		k.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, err := strconv.ParseUint(key, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, m.mismatch(path, models.NewString(key), t, err)
		}
		k.SetUint(n)
	default:
		return reflect.Value{}, m.mismatch(path, models.NewString(key), t, nil)
	}
	return k, nil
}

// convertPairMap reads [{"Key":k,"Value":v}, ...] into a map whose keys are
// not string-like. Entry member names match case-insensitively.
func (m *Materializer) convertPairMap(node *models.Value, dst reflect.Value, ti *analyzer.TypeInfo, path string) error {
	if node.Kind() != models.KindArray {
		return m.mismatch(path, node, dst.Type(), nil)
	}
	if dst.IsNil() {
		dst.Set(reflect.MakeMapWithSize(dst.Type(), node.Len()))
	}
	for i, entry := range node.Items() {
		p := indexPath(path, i)
		if entry.Kind() != models.KindObject {
			return m.mismatch(p, entry, dst.Type(), fmt.Errorf("expected a key/value object"))
		}
		kn, ok := entry.LookupFunc(PairKey, analyzer.Normalize)
		if !ok {
			return m.mismatch(p, entry, dst.Type(), fmt.Errorf("entry has no %s", PairKey))
		}
		vn, _ := entry.LookupFunc(PairValue, analyzer.Normalize)
		k, err := m.element(kn, ti.Key, p+"."+PairKey)
		if err != nil {
			return err
		}
		v, err := m.element(vn, ti.Elem, p+"."+PairValue)
		if err != nil {
			return err
		}
		dst.SetMapIndex(k, v)
	}
	return nil
}

// Member names of pair-map entries
const (
	PairKey   = "Key"
	PairValue = "Value"
)
