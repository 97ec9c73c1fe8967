package analyzer

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/iancoleman/strcase"
	"golang.org/x/sync/singleflight"

	"github.com/mcncl/typedjson/internal/config"
	"github.com/mcncl/typedjson/internal/logging"
)

// tagStyles are the struct tag keys read for member names, in priority order
var tagStyles = []string{"tjson", "json", "yaml", "mapstructure"}

// Member describes one externally visible data member of a struct type.
type Member struct {
	Name      string   // Go field name
	JSONName  string   // name written
	Aliases   []string // names accepted when reading, JSONName first
	Key       string   // Normalize(JSONName)
	Index     []int
	Type      reflect.Type
	Class     Class
	Tagged    bool
	OmitEmpty bool
	AsString  bool
}

// Get returns the member's value in the struct v, or an invalid Value when
// an embedded pointer on the way is nil.
func (m *Member) Get(v reflect.Value) reflect.Value {
	for i, x := range m.Index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}

// Set returns the settable member field in the addressable struct v,
// allocating nil embedded pointers on the way.
func (m *Member) Set(v reflect.Value) reflect.Value {
	for i, x := range m.Index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}

// TypeInfo is the cached metadata for one type under one profile
// fingerprint.
type TypeInfo struct {
	Type    reflect.Type
	Name    string
	Class   Class
	Members []*Member

	// Elem is the element type of lists, arrays, sets (the key type),
	// maps and pointers. Key is the map key type.
	Elem reflect.Type
	Key  reflect.Type
	Len  int

	Enum *EnumTable

	caseInsensitive bool
	byName          map[string]*Member
	byKey           map[string]*Member

	factoryOnce sync.Once
	factory     func() (reflect.Value, error)
	build       func() func() (reflect.Value, error)
}

// Lookup finds the member for an input key: exact names and aliases first,
// then the normalized key when the profile is case-insensitive.
func (ti *TypeInfo) Lookup(key string) (*Member, bool) {
	if m, ok := ti.byName[key]; ok {
		return m, true
	}
	if ti.caseInsensitive {
		m, ok := ti.byKey[Normalize(key)]
		return m, ok
	}
	return nil, false
}

// LookupNormalized finds the member whose normalized name equals key's,
// regardless of the profile's case rule. Used for diagnostics.
func (ti *TypeInfo) LookupNormalized(key string) (*Member, bool) {
	m, ok := ti.byKey[Normalize(key)]
	return m, ok
}

// New returns a pointer to a new instance, built by the registered
// constructor when there is one.
func (ti *TypeInfo) New() (reflect.Value, error) {
	ti.factoryOnce.Do(func() { ti.factory = ti.build() })
	return ti.factory()
}

// Normalize lower-cases name and strips separators: underscores, hyphens,
// whitespace and control characters.
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if r == '_' || r == '-' || unicode.IsSpace(r) || unicode.IsControl(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

type cacheKey struct {
	t           reflect.Type
	fingerprint string
}

// Analyzer builds and caches TypeInfo. It is safe for concurrent use.
type Analyzer struct {
	Registry *Registry

	mu     sync.RWMutex
	cache  map[cacheKey]*TypeInfo
	group  singleflight.Group
	logger logging.Logger
}

// NewAnalyzer creates an Analyzer with an empty cache and registry.
func NewAnalyzer(logger logging.Logger) *Analyzer {
	if logger == nil {
		logger = logging.Nop()
	}
	a := &Analyzer{
		Registry: NewRegistry(logger),
		cache:    make(map[cacheKey]*TypeInfo),
		logger:   logger,
	}
	a.Registry.onChange = a.Clear
	return a
}

// Resolve returns the metadata for t under p. Entries are built once per
// (type, profile fingerprint); concurrent misses for the same key share
// one build and the first insertion wins.
func (a *Analyzer) Resolve(t reflect.Type, p *config.Profile) *TypeInfo {
	key := cacheKey{t: t, fingerprint: p.Fingerprint()}

	a.mu.RLock()
	ti, ok := a.cache[key]
	a.mu.RUnlock()
	if ok {
		return ti
	}

	v, _, _ := a.group.Do(key.fingerprint+"\x00"+TypeName(t)+"\x00"+t.String(), func() (any, error) {
		return a.store(key, a.build(t, p)), nil
	})
	ti = v.(*TypeInfo)
	if ti.Type != t {
		// distinct types with the same printed name
		ti = a.store(key, a.build(t, p))
	}
	return ti
}

func (a *Analyzer) store(key cacheKey, ti *TypeInfo) *TypeInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.cache[key]; ok {
		return existing
	}
	a.cache[key] = ti
	return ti
}

// Clear drops every cached entry.
func (a *Analyzer) Clear() {
	a.mu.Lock()
	a.cache = make(map[cacheKey]*TypeInfo)
	a.mu.Unlock()
	a.logger.Debugf("type metadata cache cleared")
}

// SetLogger replaces the logger of the analyzer and its registry. It is
// not synchronized with concurrent resolution.
func (a *Analyzer) SetLogger(logger logging.Logger) {
	if logger == nil {
		logger = logging.Nop()
	}
	a.logger = logger
	a.Registry.logger = logger
}

// Len returns the number of cached entries.
func (a *Analyzer) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.cache)
}

func (a *Analyzer) build(t reflect.Type, p *config.Profile) *TypeInfo {
	ti := &TypeInfo{
		Type:            t,
		Name:            TypeName(t),
		Class:           a.classify(t),
		caseInsensitive: p.CaseInsensitive,
	}

	switch t.Kind() {
	case reflect.Slice, reflect.Array, reflect.Pointer:
		ti.Elem = t.Elem()
		if t.Kind() == reflect.Array {
			ti.Len = t.Len()
		}
	case reflect.Map:
		ti.Key = t.Key()
		ti.Elem = t.Elem()
		if ti.Class.Has(ClassSet) {
			ti.Elem = t.Key()
		}
	}
	if ti.Class.Has(ClassEnum) {
		ti.Enum = a.Registry.Enum(t)
	}
	if ti.Class.Has(ClassStruct) {
		ti.Members = a.members(t, p)
		ti.index()
	}
	ti.build = func() func() (reflect.Value, error) { return a.factoryFor(t) }

	a.logger.Debugf("analyzed %s: %s, %d members", ti.Name, ti.Class, len(ti.Members))
	return ti
}

// index fills the lookup maps. JSON names take precedence over other
// aliases, and earlier members over later ones.
func (ti *TypeInfo) index() {
	ti.byName = make(map[string]*Member, len(ti.Members)*2)
	ti.byKey = make(map[string]*Member, len(ti.Members))
	for _, m := range ti.Members {
		ti.byName[m.JSONName] = m
	}
	for _, m := range ti.Members {
		for _, alias := range m.Aliases {
			if _, ok := ti.byName[alias]; !ok {
				ti.byName[alias] = m
			}
		}
	}
	for _, m := range ti.Members {
		if _, ok := ti.byKey[m.Key]; !ok {
			ti.byKey[m.Key] = m
		}
	}
	for _, m := range ti.Members {
		for _, alias := range m.Aliases {
			if k := Normalize(alias); k != "" {
				if _, ok := ti.byKey[k]; !ok {
					ti.byKey[k] = m
				}
			}
		}
	}
}

// factoryFor builds the instance factory for t. A registered constructor is
// called with placeholder arguments; otherwise the zero value is allocated.
func (a *Analyzer) factoryFor(t reflect.Type) func() (reflect.Value, error) {
	if _, ok := a.Registry.Constructor(t); !ok {
		return func() (reflect.Value, error) { return reflect.New(t), nil }
	}
	return func() (reflect.Value, error) {
		return a.construct(t, make(map[reflect.Type]bool))
	}
}

// construct calls the constructor registered for t. Types whose
// constructor is already running in visiting get a zero instance instead.
func (a *Analyzer) construct(t reflect.Type, visiting map[reflect.Type]bool) (reflect.Value, error) {
	fn, ok := a.Registry.Constructor(t)
	if !ok || visiting[t] {
		return reflect.New(t), nil
	}
	visiting[t] = true
	defer delete(visiting, t)

	ft := fn.Type()
	n := ft.NumIn()
	if ft.IsVariadic() {
		n--
	}
	args := make([]reflect.Value, n)
	for i := range args {
		arg, err := a.placeholder(ft.In(i), visiting)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("constructor for %s: argument %d: %w", TypeName(t), i, err)
		}
		args[i] = arg
	}
	out := fn.Call(args)
	if len(out) == 2 && !out[1].IsNil() {
		return reflect.Value{}, fmt.Errorf("constructor for %s: %w", TypeName(t), out[1].Interface().(error))
	}
	res := out[0]
	if res.Kind() == reflect.Pointer {
		if res.IsNil() {
			return reflect.New(t), nil
		}
		return res, nil
	}
	ptr := reflect.New(t)
	ptr.Elem().Set(res)
	return ptr, nil
}

// placeholder builds an argument of type t: a fresh instance for structs
// and pointers to structs, the zero value otherwise.
func (a *Analyzer) placeholder(t reflect.Type, visiting map[reflect.Type]bool) (reflect.Value, error) {
	switch {
	case t.Kind() == reflect.Struct && t != timeType && t != decimalType:
		v, err := a.construct(t, visiting)
		if err != nil {
			return reflect.Value{}, err
		}
		return v.Elem(), nil
	case t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct:
		return a.construct(t.Elem(), visiting)
	default:
		return reflect.Zero(t), nil
	}
}

type fieldTag struct {
	names     []string
	skip      bool
	omitEmpty bool
	asString  bool
}

// readTags collects names and options across the supported tag styles.
// The first style present decides whether the field is skipped and
// carries the options.
func readTags(sf reflect.StructField) fieldTag {
	var ft fieldTag
	first := true
	for _, style := range tagStyles {
		tag, ok := sf.Tag.Lookup(style)
		if !ok {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if first {
			first = false
			if name == "-" && opts == "" {
				ft.skip = true
				return ft
			}
			for _, opt := range strings.Split(opts, ",") {
				switch opt {
				case "omitempty", "omitzero":
					ft.omitEmpty = true
				case "string":
					ft.asString = true
				}
			}
		}
		if name != "" && name != "-" && !contains(ft.names, name) {
			ft.names = append(ft.names, name)
		}
	}
	return ft
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func applyStyle(name, style string) string {
	switch style {
	case config.StyleCamel:
		return strcase.ToCamel(name)
	case config.StyleLowerCamel:
		return strcase.ToLowerCamel(name)
	case config.StyleSnake:
		return strcase.ToSnake(name)
	case config.StyleKebab:
		return strcase.ToKebab(name)
	default:
		return name
	}
}

type candidate struct {
	m     *Member
	depth int
}

// members lists the visible members of struct type t. Embedded structs
// without an explicit name are flattened: a shallower member hides deeper
// ones with the same name, and at equal depth a tagged member wins; when
// that still leaves more than one the name is dropped.
func (a *Analyzer) members(t reflect.Type, p *config.Profile) []*Member {
	var all []candidate
	a.collect(t, nil, 0, map[reflect.Type]bool{t: true}, p, &all)

	groups := make(map[string][]candidate)
	var order []string
	for _, c := range all {
		if _, ok := groups[c.m.JSONName]; !ok {
			order = append(order, c.m.JSONName)
		}
		groups[c.m.JSONName] = append(groups[c.m.JSONName], c)
	}

	var out []*Member
	for _, name := range order {
		if m := dominant(groups[name]); m != nil {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return lessIndex(out[i].Index, out[j].Index) })
	return out
}

func dominant(cs []candidate) *Member {
	if len(cs) == 1 {
		return cs[0].m
	}
	minDepth := cs[0].depth
	for _, c := range cs[1:] {
		minDepth = min(minDepth, c.depth)
	}
	var shallow []*Member
	for _, c := range cs {
		if c.depth == minDepth {
			shallow = append(shallow, c.m)
		}
	}
	if len(shallow) == 1 {
		return shallow[0]
	}
	var tagged []*Member
	for _, m := range shallow {
		if m.Tagged {
			tagged = append(tagged, m)
		}
	}
	if len(tagged) == 1 {
		return tagged[0]
	}
	return nil
}

func lessIndex(a, b []int) bool {
	for i := range a {
		if i >= len(b) {
			return false
		}
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func (a *Analyzer) collect(t reflect.Type, index []int, depth int, visiting map[reflect.Type]bool, p *config.Profile, out *[]candidate) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tags := readTags(sf)
		if tags.skip {
			continue
		}
		idx := append(append([]int(nil), index...), i)

		if sf.Anonymous && len(tags.names) == 0 {
			ft := sf.Type
			isPtr := ft.Kind() == reflect.Pointer
			if isPtr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct && a.classify(ft) == ClassStruct {
				if isPtr && !sf.IsExported() {
					// cannot allocate through an unexported embedded pointer
					continue
				}
				if !visiting[ft] {
					visiting[ft] = true
					a.collect(ft, idx, depth+1, visiting, p, out)
					delete(visiting, ft)
				}
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}

		m := &Member{
			Name:      sf.Name,
			Index:     idx,
			Type:      sf.Type,
			Class:     a.classify(sf.Type),
			Tagged:    len(tags.names) > 0,
			OmitEmpty: tags.omitEmpty,
			AsString:  tags.asString,
		}
		if m.Tagged {
			m.JSONName = tags.names[0]
		} else {
			m.JSONName = applyStyle(sf.Name, p.NameStyle)
		}
		m.Key = Normalize(m.JSONName)
		m.Aliases = append(m.Aliases, m.JSONName)
		for _, n := range tags.names {
			if !contains(m.Aliases, n) {
				m.Aliases = append(m.Aliases, n)
			}
		}
		if !contains(m.Aliases, sf.Name) {
			m.Aliases = append(m.Aliases, sf.Name)
		}
		*out = append(*out, candidate{m: m, depth: depth})
	}
}
