package analyzer

import (
	"encoding"
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mcncl/typedjson/internal/models"
	"github.com/mcncl/typedjson/internal/number"
	"github.com/mcncl/typedjson/internal/schema"
)

// Class is a set of classification flags computed once per type.
type Class uint64

const (
	ClassNumeric Class = 1 << iota
	ClassInteger
	ClassUnsigned
	ClassFloat
	ClassString
	ClassBool
	ClassEnum
	ClassTime
	ClassDuration
	ClassGUID
	ClassDecimal
	ClassBytes
	ClassList
	ClassArray
	ClassSet
	ClassStringMap
	ClassPairMap
	ClassNullable
	ClassStruct
	ClassInterface
	ClassAny
	ClassRaw
	ClassWideNumber
	ClassTable
	ClassJSONMarshaler
	ClassJSONUnmarshaler
	ClassTextMarshaler
	ClassTextUnmarshaler
)

var classNames = []string{
	"numeric", "integer", "unsigned", "float", "string", "bool", "enum",
	"time", "duration", "guid", "decimal", "bytes", "list", "array", "set",
	"string-map", "pair-map", "nullable", "struct", "interface", "any", "raw",
	"wide-number", "table", "json-marshaler", "json-unmarshaler",
	"text-marshaler", "text-unmarshaler",
}

// Has reports whether all flags in f are set.
func (c Class) Has(f Class) bool { return c&f == f }

// Any reports whether at least one flag in f is set.
func (c Class) Any(f Class) bool { return c&f != 0 }

func (c Class) String() string {
	if c == 0 {
		return "unsupported"
	}
	var parts []string
	for i, name := range classNames {
		if c&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// Scalar reports whether values of this class are written as a single JSON
// scalar rather than an object or array.
func (c Class) Scalar() bool {
	return c.Any(ClassNumeric|ClassString|ClassBool|ClassEnum|ClassTime|ClassDuration|ClassGUID|ClassDecimal|ClassBytes) &&
		!c.Any(ClassList|ClassArray|ClassStruct)
}

var (
	rawValueType    = reflect.TypeOf((*models.Value)(nil))
	wideNumberType  = reflect.TypeOf(number.Wide{})
	timeType        = reflect.TypeOf(time.Time{})
	durationType    = reflect.TypeOf(time.Duration(0))
	guidType        = reflect.TypeOf(uuid.UUID{})
	decimalType     = reflect.TypeOf(decimal.Decimal{})
	tableType       = reflect.TypeOf(schema.Table{})
	tableSetType    = reflect.TypeOf(schema.TableSet{})
	emptyStructType = reflect.TypeOf(struct{}{})

	jsonMarshalerType   = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	jsonUnmarshalerType = reflect.TypeOf((*json.Unmarshaler)(nil)).Elem()
	textMarshalerType   = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// classify computes the flags for t. Well-known types are matched first so
// that e.g. time.Time is not treated as a plain struct with text hooks.
func (a *Analyzer) classify(t reflect.Type) Class {
	switch t {
	case rawValueType:
		return ClassRaw
	case wideNumberType:
		return ClassWideNumber | ClassNumeric
	case timeType:
		return ClassTime
	case durationType:
		return ClassDuration
	case guidType:
		return ClassGUID
	case decimalType:
		return ClassDecimal | ClassNumeric
	case tableType, tableSetType:
		return ClassTable
	}

	var c Class
	if a.Registry.Enum(t) != nil {
		c |= ClassEnum
	}

	ptr := reflect.PointerTo(t)
	if t.Implements(jsonMarshalerType) || ptr.Implements(jsonMarshalerType) {
		c |= ClassJSONMarshaler
	}
	if ptr.Implements(jsonUnmarshalerType) {
		c |= ClassJSONUnmarshaler
	}
	if t.Implements(textMarshalerType) || ptr.Implements(textMarshalerType) {
		c |= ClassTextMarshaler
	}
	if ptr.Implements(textUnmarshalerType) {
		c |= ClassTextUnmarshaler
	}

	switch t.Kind() {
	case reflect.Bool:
		c |= ClassBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		c |= ClassNumeric | ClassInteger
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		c |= ClassNumeric | ClassInteger | ClassUnsigned
	case reflect.Float32, reflect.Float64:
		c |= ClassNumeric | ClassFloat
	case reflect.String:
		c |= ClassString
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			c |= ClassBytes
		} else {
			c |= ClassList
		}
	case reflect.Array:
		c |= ClassArray
	case reflect.Map:
		switch {
		case t.Elem() == emptyStructType:
			c |= ClassSet
		case isStringKey(t.Key()):
			c |= ClassStringMap
		default:
			c |= ClassPairMap
		}
	case reflect.Pointer:
		c |= ClassNullable
	case reflect.Struct:
		c |= ClassStruct
	case reflect.Interface:
		if t.NumMethod() == 0 {
			c |= ClassAny
		} else {
			c |= ClassInterface
		}
	}
	return c
}

// isStringKey reports whether map keys of type k can be written as JSON
// object keys.
func isStringKey(k reflect.Type) bool {
	switch k.Kind() {
	case reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return k.Implements(textMarshalerType) && reflect.PointerTo(k).Implements(textUnmarshalerType)
}
