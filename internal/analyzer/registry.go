package analyzer

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mcncl/typedjson/internal/errors"
	"github.com/mcncl/typedjson/internal/logging"
)

// Registry maps type tags to Go types. It also holds enum name tables and
// registered constructors.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]reflect.Type
	tags   map[reflect.Type]string
	enums  map[reflect.Type]*EnumTable
	ctors  map[reflect.Type]reflect.Value
	logger logging.Logger

	// onChange is called after any registration that may change type
	// metadata already in a cache.
	onChange func()
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registry{
		byName: make(map[string]reflect.Type),
		tags:   make(map[reflect.Type]string),
		enums:  make(map[reflect.Type]*EnumTable),
		ctors:  make(map[reflect.Type]reflect.Value),
		logger: logger,
	}
}

// TypeName returns the fully qualified name of t: import path and type
// name for named types, the Go syntax otherwise. Pointers are named after
// their element.
func TypeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

// Register makes t resolvable by its full name and by each alias. The first
// alias, when given, is also the tag written for t.
func (r *Registry) Register(t reflect.Type, aliases ...string) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r.mu.Lock()
	full := TypeName(t)
	r.byName[full] = t
	tag := full
	for i, alias := range aliases {
		if alias == "" {
			continue
		}
		r.byName[alias] = t
		if i == 0 {
			tag = alias
		}
	}
	r.tags[t] = tag
	r.mu.Unlock()
	r.logger.Debugf("registered type %s as %q", full, tag)
}

// Tag returns the type tag written for t.
func (r *Registry) Tag(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if tag, ok := r.tags[t]; ok {
		return tag
	}
	return TypeName(t)
}

// Resolve finds the type for a tag. An exact match on a full name or alias
// wins; otherwise registered types whose short name matches are scanned and
// the first by sorted full name is taken.
func (r *Registry) Resolve(name string) (reflect.Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t, ok := r.byName[name]; ok {
		return t, nil
	}

	var matches []string
	for full, t := range r.byName {
		if t.Name() == name || strings.HasSuffix(full, "."+name) || strings.HasSuffix(full, "/"+name) {
			matches = append(matches, full)
		}
	}
	if len(matches) == 0 {
		return nil, errors.NewTypeResolutionError(name, errors.ErrUnknownType)
	}
	sort.Strings(matches)
	matches = dedupeByType(matches, r.byName)
	if len(matches) > 1 {
		r.logger.Warnf("type name %q is ambiguous (%s); using %s", name, strings.Join(matches, ", "), matches[0])
	}
	return r.byName[matches[0]], nil
}

// dedupeByType drops names that resolve to a type already seen, keeping
// the first name for each.
func dedupeByType(names []string, byName map[string]reflect.Type) []string {
	seen := make(map[reflect.Type]bool, len(names))
	out := names[:0]
	for _, n := range names {
		if t := byName[n]; !seen[t] {
			seen[t] = true
			out = append(out, n)
		}
	}
	return out
}

// Implementers returns the registered types that implement iface, either
// directly or through their pointer type, sorted by full name. Pointer
// types are returned when only the pointer implements iface.
func (r *Registry) Implementers(iface reflect.Type) []reflect.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	found := make(map[string]reflect.Type)
	for t := range r.tags {
		switch {
		case t.Implements(iface):
			found[TypeName(t)] = t
		case reflect.PointerTo(t).Implements(iface):
			found[TypeName(t)] = reflect.PointerTo(t)
		default:
			continue
		}
		names = append(names, TypeName(t))
	}
	sort.Strings(names)
	out := make([]reflect.Type, len(names))
	for i, n := range names {
		out[i] = found[n]
	}
	return out
}

// builtin scalar names used in $map hints
var builtins = map[string]reflect.Type{
	"string":   reflect.TypeOf(""),
	"bool":     reflect.TypeOf(false),
	"int64":    reflect.TypeOf(int64(0)),
	"uint64":   reflect.TypeOf(uint64(0)),
	"float64":  reflect.TypeOf(float64(0)),
	"decimal":  reflect.TypeOf(decimal.Decimal{}),
	"time":     reflect.TypeOf(time.Time{}),
	"duration": reflect.TypeOf(time.Duration(0)),
	"guid":     reflect.TypeOf(uuid.UUID{}),
	"bytes":    reflect.TypeOf([]byte(nil)),
}

// BuiltinType returns the scalar type for a $map hint name.
func BuiltinType(name string) (reflect.Type, bool) {
	t, ok := builtins[name]
	return t, ok
}

// BuiltinName returns the $map hint name for a scalar type, or "" when t
// has no hint name.
func BuiltinName(t reflect.Type) string {
	switch t {
	case builtins["decimal"]:
		return "decimal"
	case builtins["time"]:
		return "time"
	case builtins["duration"]:
		return "duration"
	case builtins["guid"]:
		return "guid"
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "bool"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "int64"
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "uint64"
	case reflect.Float32, reflect.Float64:
		return "float64"
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return "bytes"
		}
	}
	return ""
}

// Integer is the constraint for enum underlying types.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// EnumTable maps enum values to names and back.
type EnumTable struct {
	Type    reflect.Type
	names   map[int64]string
	values  map[string]int64
	byKey   map[string]int64
	ordered []int64
}

// Name returns the name for v.
func (e *EnumTable) Name(v int64) (string, bool) {
	name, ok := e.names[v]
	return name, ok
}

// Value finds the value named name, trying an exact match before a
// normalized one.
func (e *EnumTable) Value(name string) (int64, bool) {
	if v, ok := e.values[name]; ok {
		return v, true
	}
	v, ok := e.byKey[Normalize(name)]
	return v, ok
}

// Values returns the enum values in ascending order.
func (e *EnumTable) Values() []int64 { return e.ordered }

// RegisterEnum records the names of an integer enum type.
func RegisterEnum[E Integer](r *Registry, names map[E]string) {
	t := reflect.TypeOf(*new(E))
	table := &EnumTable{
		Type:   t,
		names:  make(map[int64]string, len(names)),
		values: make(map[string]int64, len(names)),
		byKey:  make(map[string]int64, len(names)),
	}
	for v, name := range names {
		iv := int64(v)
		table.names[iv] = name
		table.values[name] = iv
		table.byKey[Normalize(name)] = iv
		table.ordered = append(table.ordered, iv)
	}
	sort.Slice(table.ordered, func(i, j int) bool { return table.ordered[i] < table.ordered[j] })

	r.mu.Lock()
	r.enums[t] = table
	onChange := r.onChange
	r.mu.Unlock()
	if onChange != nil {
		onChange()
	}
}

// Enum returns the enum table registered for t, or nil.
func (r *Registry) Enum(t reflect.Type) *EnumTable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enums[t]
}

// RegisterConstructor registers fn as the factory for the type it returns.
// fn must return T, *T, (T, error) or (*T, error).
func (r *Registry) RegisterConstructor(fn any) error {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return fmt.Errorf("constructor must be a function, got %T", fn)
	}
	ft := v.Type()
	switch {
	case ft.NumOut() == 1:
	case ft.NumOut() == 2 && ft.Out(1) == errorType:
	default:
		return fmt.Errorf("constructor %s must return T, *T or (T, error)", ft)
	}
	t := ft.Out(0)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Interface {
		return fmt.Errorf("constructor %s returns an interface", ft)
	}

	r.mu.Lock()
	r.ctors[t] = v
	onChange := r.onChange
	r.mu.Unlock()
	if onChange != nil {
		onChange()
	}
	r.logger.Debugf("registered constructor for %s", TypeName(t))
	return nil
}

// Constructor returns the constructor registered for t.
func (r *Registry) Constructor(t reflect.Type) (reflect.Value, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.ctors[t]
	return fn, ok
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()
