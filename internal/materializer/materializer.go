// Package materializer converts raw value trees into typed Go values.
package materializer

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"slices"

	"github.com/mcncl/typedjson/internal/analyzer"
	"github.com/mcncl/typedjson/internal/config"
	"github.com/mcncl/typedjson/internal/errors"
	"github.com/mcncl/typedjson/internal/logging"
	"github.com/mcncl/typedjson/internal/models"
	"github.com/mcncl/typedjson/internal/schema"
)

// Extension keys carried inside documents
const (
	KeyType   = "$type"
	KeyTypes  = "$types"
	KeySchema = schema.Key
	KeyMap    = "$map"
)

// IsExtensionKey reports whether key is one of the reserved extension keys.
func IsExtensionKey(key string) bool {
	switch key {
	case KeyType, KeyTypes, KeySchema, KeyMap:
		return true
	}
	return false
}

// Materializer converts one document. Its global type table lives for the
// duration of that document, so a Materializer must not be shared between
// concurrent calls.
type Materializer struct {
	analyzer *analyzer.Analyzer
	profile  *config.Profile
	logger   logging.Logger

	types    map[string]string
	warnings []string
}

// New creates a Materializer for one document.
func New(a *analyzer.Analyzer, p *config.Profile, logger logging.Logger) *Materializer {
	if p == nil {
		p = config.NewProfile()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Materializer{
		analyzer: a,
		profile:  p,
		logger:   logger,
		types:    make(map[string]string),
	}
}

// Warnings returns the diagnostics collected so far.
func (m *Materializer) Warnings() []string { return m.warnings }

// Materialize builds a new value of type t from node. On failure no value is
// returned; collected warnings are attached to the error.
func (m *Materializer) Materialize(node *models.Value, t reflect.Type) (reflect.Value, error) {
	dst, err := m.fresh(t)
	if err != nil {
		return reflect.Value{}, m.finish(errors.NewConversionError("", node.Kind().String(), t.String(), err))
	}
	if err := m.convert(node, dst, ""); err != nil {
		return reflect.Value{}, m.finish(err)
	}
	return dst, nil
}

// Into fills the existing value target points to. Members absent from node
// keep their current values.
func (m *Materializer) Into(node *models.Value, target reflect.Value) error {
	if target.Kind() != reflect.Pointer || target.IsNil() {
		return errors.NewConversionError("", node.Kind().String(), target.Type().String(), fmt.Errorf("fill target must be a non-nil pointer"))
	}
	return m.finish(m.convert(node, target.Elem(), ""))
}

func (m *Materializer) finish(err error) error {
	if err == nil || len(m.warnings) == 0 {
		return err
	}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) && appErr.Type != errors.ErrorTypeShapeMismatch {
		appErr.WithWarnings(m.warnings...)
	}
	return err
}

func (m *Materializer) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	m.warnings = append(m.warnings, msg)
	m.logger.Debugf("%s", msg)
}

// fresh returns an addressable new value of type t, built by the type's
// factory so registered constructors run.
func (m *Materializer) fresh(t reflect.Type) (reflect.Value, error) {
	ti := m.analyzer.Resolve(t, m.profile)
	if ti.Class.Has(analyzer.ClassStruct) {
		ptr, err := ti.New()
		if err != nil {
			return reflect.Value{}, err
		}
		return ptr.Elem(), nil
	}
	return reflect.New(t).Elem(), nil
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func (m *Materializer) mismatch(path string, node *models.Value, t reflect.Type, err error) error {
	return errors.NewConversionError(path, node.Kind().String(), t.String(), err)
}

// convert writes node into the settable dst.
func (m *Materializer) convert(node *models.Value, dst reflect.Value, path string) error {
	if node.Kind() == models.KindObject {
		m.mergeTypes(node)
	}

	t := dst.Type()
	ti := m.analyzer.Resolve(t, m.profile)
	c := ti.Class

	if c.Has(analyzer.ClassRaw) {
		dst.Set(reflect.ValueOf(node))
		return nil
	}
	if node.IsNull() {
		dst.Set(reflect.Zero(t))
		return nil
	}

	switch {
	case c.Any(analyzer.ClassAny | analyzer.ClassInterface):
		return m.convertInterface(node, dst, ti, path)
	case c.Has(analyzer.ClassJSONUnmarshaler) && !c.Has(analyzer.ClassNullable):
		return m.convertJSONHook(node, dst, path)
	case c.Has(analyzer.ClassTextUnmarshaler) && !c.Has(analyzer.ClassNullable) && node.Kind() == models.KindString:
		if err := dst.Addr().Interface().(interface{ UnmarshalText([]byte) error }).UnmarshalText([]byte(node.Str())); err != nil {
			return m.mismatch(path, node, t, err)
		}
		return nil
	case c.Has(analyzer.ClassWideNumber):
		return m.convertWide(node, dst, path)
	case c.Has(analyzer.ClassTable):
		return m.convertTable(node, dst, path)
	case c.Has(analyzer.ClassBytes):
		return m.convertBytes(node, dst, path)
	case c.Has(analyzer.ClassList):
		return m.convertList(node, dst, ti, path)
	case c.Has(analyzer.ClassArray):
		return m.convertArray(node, dst, ti, path)
	case c.Has(analyzer.ClassSet):
		return m.convertSet(node, dst, ti, path)
	case c.Has(analyzer.ClassStringMap):
		return m.convertStringMap(node, dst, ti, path)
	case c.Has(analyzer.ClassPairMap):
		return m.convertPairMap(node, dst, ti, path)
	case c.Has(analyzer.ClassNullable):
		return m.convertPointer(node, dst, ti, path)
	case c.Has(analyzer.ClassEnum):
		return m.convertEnum(node, dst, ti, path)
	case c.Has(analyzer.ClassTime):
		return m.convertTime(node, dst, path)
	case c.Has(analyzer.ClassDuration):
		return m.convertDuration(node, dst, path)
	case c.Has(analyzer.ClassGUID):
		return m.convertGUID(node, dst, path)
	case c.Has(analyzer.ClassDecimal):
		return m.convertDecimal(node, dst, path)
	case c.Has(analyzer.ClassNumeric):
		return m.convertNumber(node, dst, path)
	case c.Has(analyzer.ClassString):
		return m.convertString(node, dst, path)
	case c.Has(analyzer.ClassBool):
		return m.convertBool(node, dst, path)
	case c.Has(analyzer.ClassStruct):
		return m.convertStruct(node, dst, ti, path)
	default:
		return m.mismatch(path, node, t, fmt.Errorf("unsupported type"))
	}
}

// SeedTypes loads the $types table of a document root, for callers that
// materialize nodes below the root rather than the root itself.
func (m *Materializer) SeedTypes(root *models.Value) {
	if root.Kind() == models.KindObject {
		m.mergeTypes(root)
	}
}

// mergeTypes records the entries of a $types table: token to type name.
func (m *Materializer) mergeTypes(node *models.Value) {
	table, ok := node.Lookup(KeyTypes)
	if !ok || table.Kind() != models.KindObject {
		return
	}
	for _, e := range table.Members() {
		if e.Value.Kind() == models.KindString {
			m.types[e.Key] = e.Value.Str()
		}
	}
}

// typeTag returns the type name an object is tagged with, resolving
// $types tokens.
func (m *Materializer) typeTag(node *models.Value) (string, bool) {
	tag, ok := node.Lookup(KeyType)
	if !ok {
		return "", false
	}
	var name string
	switch tag.Kind() {
	case models.KindString:
		name = tag.Str()
	case models.KindNumber:
		name = tag.Number().String()
	default:
		return "", false
	}
	if full, ok := m.types[name]; ok {
		return full, true
	}
	return name, true
}

// convertInterface handles any and non-empty interface targets: a $type
// tag picks the concrete type; untagged values become generic values for
// any, or the unique registered implementation for other interfaces.
func (m *Materializer) convertInterface(node *models.Value, dst reflect.Value, ti *analyzer.TypeInfo, path string) error {
	t := dst.Type()
	if node.Kind() == models.KindObject {
		if name, ok := m.typeTag(node); ok {
			concrete, err := m.analyzer.Registry.Resolve(name)
			if err != nil {
				return err
			}
			return m.convertConcrete(node, dst, concrete, path)
		}
	}

	if ti.Class.Has(analyzer.ClassAny) {
		v, err := m.generic(node, path)
		if err != nil {
			return err
		}
		if v == nil {
			dst.Set(reflect.Zero(t))
		} else {
			dst.Set(reflect.ValueOf(v))
		}
		return nil
	}

	// keep the dynamic type already held when filling
	if !dst.IsNil() && dst.Elem().Kind() == reflect.Pointer && !dst.Elem().IsNil() {
		return m.convert(node, dst.Elem().Elem(), path)
	}

	impls := m.analyzer.Registry.Implementers(t)
	if len(impls) != 1 {
		return m.mismatch(path, node, t, fmt.Errorf("%d registered implementations and no %s tag", len(impls), KeyType))
	}
	return m.convertConcrete(node, dst, impls[0], path)
}

// convertConcrete materializes node as concrete and stores it in the
// interface dst, taking the address when only the pointer implements it.
func (m *Materializer) convertConcrete(node *models.Value, dst reflect.Value, concrete reflect.Type, path string) error {
	t := dst.Type()
	base := concrete
	if base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	v, err := m.fresh(base)
	if err != nil {
		return m.mismatch(path, node, base, err)
	}
	if err := m.convert(node, v, path); err != nil {
		return err
	}
	switch {
	case base.AssignableTo(t) && concrete.Kind() != reflect.Pointer:
		dst.Set(v)
	case reflect.PointerTo(base).AssignableTo(t):
		dst.Set(v.Addr())
	case base.AssignableTo(t):
		dst.Set(v)
	default:
		return m.mismatch(path, node, t, fmt.Errorf("%s does not implement %s", analyzer.TypeName(base), t))
	}
	return nil
}

func (m *Materializer) convertJSONHook(node *models.Value, dst reflect.Value, path string) error {
	u := dst.Addr().Interface().(interface{ UnmarshalJSON([]byte) error })
	if err := u.UnmarshalJSON(node.AppendJSON(nil)); err != nil {
		return m.mismatch(path, node, dst.Type(), err)
	}
	return nil
}

func (m *Materializer) convertPointer(node *models.Value, dst reflect.Value, ti *analyzer.TypeInfo, path string) error {
	if dst.IsNil() {
		v, err := m.fresh(ti.Elem)
		if err != nil {
			return m.mismatch(path, node, ti.Elem, err)
		}
		if err := m.convert(node, v, path); err != nil {
			return err
		}
		ptr := reflect.New(ti.Elem)
		ptr.Elem().Set(v)
		dst.Set(ptr)
		return nil
	}
	return m.convert(node, dst.Elem(), path)
}

func (m *Materializer) convertTable(node *models.Value, dst reflect.Value, path string) error {
	ts, err := schema.Decode(node)
	if err != nil {
		return err
	}
	switch dst.Interface().(type) {
	case schema.TableSet:
		dst.Set(reflect.ValueOf(ts))
	case schema.Table:
		if len(ts.Tables) == 0 {
			return m.mismatch(path, node, dst.Type(), fmt.Errorf("document holds no table"))
		}
		dst.Set(reflect.ValueOf(ts.Tables[0]))
	}
	return nil
}

// convertStruct fills the struct dst from an object node.
func (m *Materializer) convertStruct(node *models.Value, dst reflect.Value, ti *analyzer.TypeInfo, path string) error {
	if node.Kind() != models.KindObject {
		return m.mismatch(path, node, dst.Type(), nil)
	}
	if name, ok := m.typeTag(node); ok {
		if tagged, err := m.analyzer.Registry.Resolve(name); err != nil || tagged != ti.Type {
			m.logger.Debugf("ignoring %s %q on %s member %q", KeyType, name, ti.Name, path)
		}
	}

	var hints *models.Value
	if h, ok := node.Lookup(KeyMap); ok && h.Kind() == models.KindObject {
		hints = h
	}

	type match struct {
		member *analyzer.Member
		value  *models.Value
	}
	var (
		matches    []match
		considered int
		misses     []string
	)
	for _, e := range node.Members() {
		if IsExtensionKey(e.Key) || m.profile.IgnoresKey(e.Key) {
			continue
		}
		considered++
		member, ok := ti.Lookup(e.Key)
		if !ok {
			if near, ok := ti.LookupNormalized(e.Key); ok && !m.profile.CaseInsensitive {
				misses = append(misses, fmt.Sprintf("key %q would match member %q with case-insensitive matching", e.Key, near.Name))
			}
			continue
		}
		matches = append(matches, match{member: member, value: e.Value})
	}

	if m.profile.StrictMatching && considered > 0 && len(matches) == 0 {
		return errors.NewShapeMismatchError(ti.Name, slices.Concat(m.warnings, misses))
	}
	for _, w := range misses {
		m.warn("%s", w)
	}

	for _, mt := range matches {
		field := mt.member.Set(dst)
		memberPath := joinPath(path, mt.member.Name)
		if hints != nil && mt.member.Class.Any(analyzer.ClassAny|analyzer.ClassInterface) {
			if hint := hints.Get(mt.member.JSONName); hint.Kind() == models.KindString {
				if err := m.convertHinted(mt.value, field, hint.Str(), memberPath); err != nil {
					return err
				}
				continue
			}
		}
		if err := m.convert(mt.value, field, memberPath); err != nil {
			return err
		}
	}
	return nil
}

// convertHinted materializes a scalar held by an interface member as the
// type named by its $map hint.
func (m *Materializer) convertHinted(node *models.Value, dst reflect.Value, hint, path string) error {
	ht, ok := analyzer.BuiltinType(hint)
	if !ok {
		var err error
		if ht, err = m.analyzer.Registry.Resolve(hint); err != nil {
			return err
		}
	}
	if node.IsNull() || !ht.AssignableTo(dst.Type()) {
		return m.convert(node, dst, path)
	}
	v := reflect.New(ht).Elem()
	if err := m.convert(node, v, path); err != nil {
		return err
	}
	dst.Set(v)
	return nil
}
