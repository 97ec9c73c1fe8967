// Package models holds the untyped tree produced by the parser: ordered
// objects, arrays, strings, booleans, null and deferred-precision numbers.
package models

import (
	"github.com/mcncl/typedjson/internal/number"
)

// Kind is the JSON type of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns the JSON name of the kind
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Member is one key/value pair of an object, in document order.
type Member struct {
	Key   string
	Value *Value
}

// Value is a node of the raw value tree. Values are built by the parser (or
// the New* constructors) and treated as immutable afterwards. A nil *Value
// reads as null.
type Value struct {
	kind    Kind
	b       bool
	s       string
	n       number.Wide
	items   []*Value
	members []Member
	index   map[string]int
}

var (
	nullValue  = &Value{kind: KindNull}
	trueValue  = &Value{kind: KindBool, b: true}
	falseValue = &Value{kind: KindBool, b: false}
)

// NewNull returns the shared null value.
func NewNull() *Value { return nullValue }

// NewBool returns the shared true or false value.
func NewBool(b bool) *Value {
	if b {
		return trueValue
	}
	return falseValue
}

// NewString creates a string value.
func NewString(s string) *Value { return &Value{kind: KindString, s: s} }

// NewNumber creates a number value.
func NewNumber(n number.Wide) *Value { return &Value{kind: KindNumber, n: n} }

// NewArray creates an array value holding items.
func NewArray(items ...*Value) *Value {
	if items == nil {
		items = []*Value{}
	}
	return &Value{kind: KindArray, items: items}
}

// NewObject creates an empty object. Populate it with Set before sharing it.
func NewObject() *Value { return &Value{kind: KindObject} }

// Set adds or replaces a member. A repeated key keeps its first position and
// takes the latest value.
func (v *Value) Set(key string, val *Value) *Value {
	if val == nil {
		val = nullValue
	}
	if i, ok := v.index[key]; ok {
		v.members[i].Value = val
		return v
	}
	if v.index == nil {
		v.index = make(map[string]int)
	}
	v.index[key] = len(v.members)
	v.members = append(v.members, Member{Key: key, Value: val})
	return v
}

// Append adds an item to an array under construction.
func (v *Value) Append(item *Value) *Value {
	if item == nil {
		item = nullValue
	}
	v.items = append(v.items, item)
	return v
}

// Kind returns the JSON type.
func (v *Value) Kind() Kind {
	if v == nil {
		return KindNull
	}
	return v.kind
}

// IsNull reports whether the value is null.
func (v *Value) IsNull() bool { return v == nil || v.kind == KindNull }

// Bool returns the boolean payload.
func (v *Value) Bool() bool { return v != nil && v.b }

// Str returns the string payload.
func (v *Value) Str() string {
	if v == nil {
		return ""
	}
	return v.s
}

// Number returns the numeric payload.
func (v *Value) Number() number.Wide {
	if v == nil {
		return number.Wide{}
	}
	return v.n
}

// Len returns the number of items or members, zero for scalars.
func (v *Value) Len() int {
	switch v.Kind() {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.members)
	default:
		return 0
	}
}

// Index returns the i-th array item, or nil when out of range.
func (v *Value) Index(i int) *Value {
	if v.Kind() != KindArray || i < 0 || i >= len(v.items) {
		return nil
	}
	return v.items[i]
}

// Items returns the array items. The slice must not be modified.
func (v *Value) Items() []*Value {
	if v.Kind() != KindArray {
		return nil
	}
	return v.items
}

// Members returns the object members in document order. The slice must not
// be modified.
func (v *Value) Members() []Member {
	if v.Kind() != KindObject {
		return nil
	}
	return v.members
}

// Keys returns the object keys in document order.
func (v *Value) Keys() []string {
	if v.Kind() != KindObject {
		return nil
	}
	keys := make([]string, len(v.members))
	for i, m := range v.members {
		keys[i] = m.Key
	}
	return keys
}

// Lookup returns the member value for key.
func (v *Value) Lookup(key string) (*Value, bool) {
	if v.Kind() != KindObject {
		return nil, false
	}
	i, ok := v.index[key]
	if !ok {
		return nil, false
	}
	return v.members[i].Value, true
}

// Get returns the member value for key, or nil.
func (v *Value) Get(key string) *Value {
	val, _ := v.Lookup(key)
	return val
}

// LookupFunc looks up key exactly, then falls back to comparing normalize(key)
// against normalize of every member key. The first member in document order
// wins on the fallback path.
func (v *Value) LookupFunc(key string, normalize func(string) string) (*Value, bool) {
	if val, ok := v.Lookup(key); ok || normalize == nil {
		return val, ok
	}
	want := normalize(key)
	for _, m := range v.Members() {
		if normalize(m.Key) == want {
			return m.Value, true
		}
	}
	return nil, false
}

// Equal reports deep equality. Numbers compare by value and object members
// compare regardless of order.
func (v *Value) Equal(o *Value) bool {
	if v.Kind() != o.Kind() {
		return false
	}
	switch v.Kind() {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindString:
		return v.s == o.s
	case KindNumber:
		return v.n.Equal(o.n)
	case KindArray:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.members) != len(o.members) {
			return false
		}
		for _, m := range v.members {
			other, ok := o.Lookup(m.Key)
			if !ok || !m.Value.Equal(other) {
				return false
			}
		}
		return true
	}
	return false
}
