package materializer

import (
	"github.com/mcncl/typedjson/internal/config"
	"github.com/mcncl/typedjson/internal/models"
	"github.com/mcncl/typedjson/internal/schema"
)

// generic converts node for an untyped target. Tagged objects become the
// tagged type and $schema documents become a schema.TableSet; everything
// else maps onto map[string]any, []any, string, bool, nil and numbers in the
// profile's numeric mode.
func (m *Materializer) generic(node *models.Value, path string) (any, error) {
	switch node.Kind() {
	case models.KindNull:
		return nil, nil
	case models.KindBool:
		return node.Bool(), nil
	case models.KindString:
		return node.Str(), nil
	case models.KindNumber:
		if m.profile.Numbers == config.NumbersDouble {
			return node.Number().Double(), nil
		}
		return node.Number().Best(), nil
	case models.KindArray:
		out := make([]any, node.Len())
		for i, item := range node.Items() {
			v, err := m.genericChild(item, indexPath(path, i))
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}

	if schema.IsTableDocument(node) {
		return schema.Decode(node)
	}
	out := make(map[string]any, node.Len())
	for _, e := range node.Members() {
		if IsExtensionKey(e.Key) {
			continue
		}
		v, err := m.genericChild(e.Value, keyPath(path, e.Key))
		if err != nil {
			return nil, err
		}
		out[e.Key] = v
	}
	return out, nil
}

// genericChild is generic for nested nodes, honouring $type tags.
func (m *Materializer) genericChild(node *models.Value, path string) (any, error) {
	if node.Kind() != models.KindObject {
		return m.generic(node, path)
	}
	m.mergeTypes(node)
	name, ok := m.typeTag(node)
	if !ok {
		return m.generic(node, path)
	}
	t, err := m.analyzer.Registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	v, err := m.element(node, t, path)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}
