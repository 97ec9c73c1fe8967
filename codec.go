package typedjson

import (
	"fmt"
	"io"
	"iter"
	"reflect"

	"github.com/mcncl/typedjson/internal/analyzer"
	"github.com/mcncl/typedjson/internal/errors"
	"github.com/mcncl/typedjson/internal/materializer"
	"github.com/mcncl/typedjson/internal/models"
	"github.com/mcncl/typedjson/internal/parser"
	"github.com/mcncl/typedjson/internal/pathq"
	"github.com/mcncl/typedjson/internal/writer"
)

func newMaterializer(p *Profile) *materializer.Materializer {
	return materializer.New(shared, resolve(p), currentLogger())
}

// Materialize parses data and converts it to T.
func Materialize[T any](data []byte, p *Profile) (T, error) {
	node, err := parser.ParseBytes(data, "")
	if err != nil {
		var zero T
		return zero, err
	}
	return MaterializeValue[T](node, p)
}

// MaterializeString is Materialize for a string document.
func MaterializeString[T any](text string, p *Profile) (T, error) {
	node, err := parser.ParseString(text)
	if err != nil {
		var zero T
		return zero, err
	}
	return MaterializeValue[T](node, p)
}

// MaterializeReader is Materialize for a UTF-8 stream.
func MaterializeReader[T any](r io.Reader, p *Profile) (T, error) {
	node, err := parser.Parse(r)
	if err != nil {
		var zero T
		return zero, err
	}
	return MaterializeValue[T](node, p)
}

// MaterializeValue converts an already parsed document to T.
func MaterializeValue[T any](node *Value, p *Profile) (T, error) {
	var out T
	rv, err := newMaterializer(p).Materialize(node, reflect.TypeFor[T]())
	if err != nil {
		return out, err
	}
	reflect.ValueOf(&out).Elem().Set(rv)
	return out, nil
}

// MaterializeType parses data and converts it to a value of type t.
func MaterializeType(data []byte, t reflect.Type, p *Profile) (any, error) {
	if t == nil {
		return nil, errors.NewTypeResolutionError("<nil>", errors.ErrUnknownType)
	}
	node, err := parser.ParseBytes(data, "")
	if err != nil {
		return nil, err
	}
	rv, err := newMaterializer(p).Materialize(node, t)
	if err != nil {
		return nil, err
	}
	return rv.Interface(), nil
}

// MaterializeAny parses data into generic values: map[string]any, []any,
// strings, bools, nil and numbers per the profile's number mode. Objects
// carrying a registered $type become that type.
func MaterializeAny(data []byte, p *Profile) (any, error) {
	return MaterializeType(data, reflect.TypeFor[any](), p)
}

// FillExisting converts data onto the value target points to. Members
// absent from data keep their current values.
func FillExisting(target any, data []byte, p *Profile) error {
	node, err := parser.ParseBytes(data, "")
	if err != nil {
		return err
	}
	return newMaterializer(p).Into(node, reflect.ValueOf(target))
}

// FillStatic fills process-wide variables from the top-level members of
// data. Each target is a pointer keyed by the member name it is filled
// from; names follow the profile's case rule and absent members leave their
// variable untouched.
func FillStatic(targets map[string]any, data []byte, p *Profile) error {
	prof := resolve(p)
	node, err := parser.ParseBytes(data, "")
	if err != nil {
		return err
	}
	if node.Kind() != models.KindObject {
		return errors.NewConversionError("", node.Kind().String(), "object", fmt.Errorf("static members are filled from an object"))
	}

	m := newMaterializer(prof)
	m.SeedTypes(node)
	for name, target := range targets {
		rv := reflect.ValueOf(target)
		if rv.Kind() != reflect.Pointer || rv.IsNil() {
			return errors.NewConversionError(name, node.Kind().String(), fmt.Sprintf("%T", target), fmt.Errorf("fill target must be a non-nil pointer"))
		}
		child, ok := node.Lookup(name)
		if !ok && prof.CaseInsensitive {
			child, ok = node.LookupFunc(name, analyzer.Normalize)
		}
		if !ok {
			continue
		}
		if err := m.Into(child, rv); err != nil {
			return err
		}
	}
	return nil
}

func newWriter(p *Profile) *writer.Writer {
	return writer.New(shared, resolve(p), currentLogger())
}

// Write renders v as JSON text.
func Write(v any, p *Profile) (string, error) {
	out, err := WriteBytes(v, p)
	return string(out), err
}

// WriteBytes renders v as UTF-8 JSON.
func WriteBytes(v any, p *Profile) ([]byte, error) {
	return newWriter(p).Write(v)
}

// WriteTo renders v onto w in the named character encoding; "" is UTF-8.
func WriteTo(w io.Writer, v any, encoding string, p *Profile) error {
	return newWriter(p).WriteTo(w, v, encoding)
}

// SelectPath parses data and returns the nodes path reaches, converted to
// T. Nodes that cannot be converted are skipped. When T is not itself a
// collection, arrays reached by the path contribute their elements.
func SelectPath[T any](path string, data []byte, p *Profile) (iter.Seq[T], error) {
	compiled, err := pathq.Compile(path)
	if err != nil {
		return nil, err
	}
	node, err := parser.ParseBytes(data, "")
	if err != nil {
		return nil, err
	}
	return selectCompiled[T](compiled, node, resolve(p)), nil
}

// SelectValue is SelectPath over an already parsed document.
func SelectValue[T any](path string, node *Value, p *Profile) (iter.Seq[T], error) {
	compiled, err := pathq.Compile(path)
	if err != nil {
		return nil, err
	}
	return selectCompiled[T](compiled, node, resolve(p)), nil
}

func selectCompiled[T any](path pathq.Path, root *Value, p *Profile) iter.Seq[T] {
	t := reflect.TypeFor[T]()
	ti := shared.Resolve(t, p)
	flatten := !ti.Class.Any(analyzer.ClassList | analyzer.ClassArray | analyzer.ClassSet |
		analyzer.ClassPairMap | analyzer.ClassBytes | analyzer.ClassAny | analyzer.ClassRaw |
		analyzer.ClassJSONUnmarshaler | analyzer.ClassTable)

	convert := func(node *models.Value) (T, error) {
		var out T
		m := newMaterializer(p)
		m.SeedTypes(root)
		rv, err := m.Materialize(node, t)
		if err != nil {
			currentLogger().Debugf("path %s: skipping node: %v", path, err)
			return out, err
		}
		reflect.ValueOf(&out).Elem().Set(rv)
		return out, nil
	}
	return pathq.Select(root, path, p.CaseInsensitive, convert, flatten)
}
