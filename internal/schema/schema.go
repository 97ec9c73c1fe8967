// Package schema provides tabular data described by a $schema header
package schema

import (
	"encoding/base64"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mcncl/typedjson/internal/errors"
	"github.com/mcncl/typedjson/internal/models"
	"github.com/mcncl/typedjson/internal/number"
	"github.com/mcncl/typedjson/internal/parser"
)

// Key is the extension key holding the table descriptors
const Key = "$schema"

// infoKey holds the flattened (table, column, type) triples
const infoKey = "info"

// ColumnType is the declared type of a column's cells
type ColumnType string

const (
	TypeString  ColumnType = "string"
	TypeInt64   ColumnType = "int64"
	TypeFloat64 ColumnType = "float64"
	TypeBool    ColumnType = "bool"
	TypeTime    ColumnType = "time"
	TypeDecimal ColumnType = "decimal"
	TypeBytes   ColumnType = "bytes"
	TypeAny     ColumnType = "any"
)

func (ct ColumnType) valid() bool {
	switch ct {
	case TypeString, TypeInt64, TypeFloat64, TypeBool, TypeTime, TypeDecimal, TypeBytes, TypeAny:
		return true
	}
	return false
}

// Column describes one column of a table
type Column struct {
	Name string
	Type ColumnType
}

// Table is a named list of rows sharing one set of columns. Cells hold
// string, int64, float64, bool, time.Time, decimal.Decimal, []byte or, for
// "any" columns, generic values (nil, map[string]any, []any and scalars).
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]any
}

// AddRow appends a row after checking its width
func (t *Table) AddRow(cells ...any) error {
	if len(cells) != len(t.Columns) {
		return fmt.Errorf("table %s: row has %d cells, want %d", t.Name, len(cells), len(t.Columns))
	}
	t.Rows = append(t.Rows, cells)
	return nil
}

// TableSet is an ordered collection of tables sharing one $schema header
type TableSet struct {
	Tables []Table
}

// Table returns the table with the given name
func (ts *TableSet) Table(name string) (*Table, bool) {
	for i := range ts.Tables {
		if ts.Tables[i].Name == name {
			return &ts.Tables[i], true
		}
	}
	return nil, false
}

// IsTableDocument reports whether v is an object carrying a $schema header
func IsTableDocument(v *models.Value) bool {
	h, ok := v.Lookup(Key)
	return ok && h.Kind() == models.KindObject
}

// Encode converts ts into its JSON object form
func Encode(ts TableSet) (*models.Value, error) {
	info := models.NewArray()
	out := models.NewObject()
	header := models.NewObject()
	header.Set(infoKey, info)
	out.Set(Key, header)

	for _, t := range ts.Tables {
		if t.Name == "" || t.Name == Key {
			return nil, fmt.Errorf("invalid table name %q", t.Name)
		}
		for _, c := range t.Columns {
			if !c.Type.valid() {
				return nil, fmt.Errorf("table %s: column %s has unknown type %q", t.Name, c.Name, c.Type)
			}
			info.Append(models.NewString(t.Name))
			info.Append(models.NewString(c.Name))
			info.Append(models.NewString(string(c.Type)))
		}

		rows := models.NewArray()
		for i, row := range t.Rows {
			if len(row) != len(t.Columns) {
				return nil, fmt.Errorf("table %s: row %d has %d cells, want %d", t.Name, i, len(row), len(t.Columns))
			}
			cells := models.NewArray()
			for j, cell := range row {
				v, err := encodeCell(cell, t.Columns[j].Type)
				if err != nil {
					return nil, errors.NewConversionError(t.Name+"."+t.Columns[j].Name, fmt.Sprintf("%T", cell), string(t.Columns[j].Type), err)
				}
				cells.Append(v)
			}
			rows.Append(cells)
		}
		out.Set(t.Name, rows)
	}
	return out, nil
}

func encodeCell(cell any, ct ColumnType) (*models.Value, error) {
	if cell == nil {
		return models.NewNull(), nil
	}
	switch ct {
	case TypeString:
		if s, ok := cell.(string); ok {
			return models.NewString(s), nil
		}
	case TypeInt64:
		switch n := cell.(type) {
		case int64:
			return models.NewNumber(number.FromInt64(n)), nil
		case int:
			return models.NewNumber(number.FromInt64(int64(n))), nil
		}
	case TypeFloat64:
		if f, ok := cell.(float64); ok {
			n, err := number.FromFloat64(f)
			if err != nil {
				return nil, err
			}
			return models.NewNumber(n), nil
		}
	case TypeBool:
		if b, ok := cell.(bool); ok {
			return models.NewBool(b), nil
		}
	case TypeTime:
		if t, ok := cell.(time.Time); ok {
			return models.NewString(t.Format(time.RFC3339Nano)), nil
		}
	case TypeDecimal:
		if d, ok := cell.(decimal.Decimal); ok {
			return models.NewNumber(number.FromDecimal(d)), nil
		}
	case TypeBytes:
		if b, ok := cell.([]byte); ok {
			return models.NewString(base64.StdEncoding.EncodeToString(b)), nil
		}
	case TypeAny:
		return encodeAny(cell)
	}
	return nil, fmt.Errorf("cell of type %T does not fit column type %s", cell, ct)
}

func encodeAny(v any) (*models.Value, error) {
	switch x := v.(type) {
	case nil:
		return models.NewNull(), nil
	case *models.Value:
		return x, nil
	case string:
		return models.NewString(x), nil
	case bool:
		return models.NewBool(x), nil
	case int:
		return models.NewNumber(number.FromInt64(int64(x))), nil
	case int64:
		return models.NewNumber(number.FromInt64(x)), nil
	case uint64:
		return models.NewNumber(number.FromUint64(x)), nil
	case float64:
		n, err := number.FromFloat64(x)
		if err != nil {
			return nil, err
		}
		return models.NewNumber(n), nil
	case decimal.Decimal:
		return models.NewNumber(number.FromDecimal(x)), nil
	case number.Wide:
		return models.NewNumber(x), nil
	case []any:
		arr := models.NewArray()
		for _, item := range x {
			iv, err := encodeAny(item)
			if err != nil {
				return nil, err
			}
			arr.Append(iv)
		}
		return arr, nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := models.NewObject()
		for _, k := range keys {
			iv, err := encodeAny(x[k])
			if err != nil {
				return nil, err
			}
			obj.Set(k, iv)
		}
		return obj, nil
	}
	return nil, fmt.Errorf("unsupported value of type %T", v)
}

// Decode reads a table document. Tables come back in header order.
func Decode(v *models.Value) (TableSet, error) {
	header, ok := v.Lookup(Key)
	if !ok || header.Kind() != models.KindObject {
		return TableSet{}, errors.NewConversionError(Key, v.Kind().String(), "table set", fmt.Errorf("missing %s header", Key))
	}
	info := header.Get(infoKey)
	if info.Kind() != models.KindArray || info.Len()%3 != 0 {
		return TableSet{}, errors.NewConversionError(Key+"."+infoKey, info.Kind().String(), "table descriptor", fmt.Errorf("expected an array of (table, column, type) triples"))
	}

	var ts TableSet
	for i := 0; i < info.Len(); i += 3 {
		tn, cn, ct := info.Index(i), info.Index(i+1), info.Index(i+2)
		if tn.Kind() != models.KindString || cn.Kind() != models.KindString || ct.Kind() != models.KindString {
			return TableSet{}, errors.NewConversionError(Key+"."+infoKey, "non-string", "table descriptor", nil)
		}
		col := Column{Name: cn.Str(), Type: ColumnType(ct.Str())}
		if !col.Type.valid() {
			return TableSet{}, errors.NewConversionError(tn.Str()+"."+col.Name, ct.Str(), "column type", fmt.Errorf("unknown column type"))
		}
		t, ok := ts.Table(tn.Str())
		if !ok {
			ts.Tables = append(ts.Tables, Table{Name: tn.Str()})
			t = &ts.Tables[len(ts.Tables)-1]
		}
		t.Columns = append(t.Columns, col)
	}

	for i := range ts.Tables {
		t := &ts.Tables[i]
		rows := v.Get(t.Name)
		if rows.IsNull() {
			continue
		}
		if rows.Kind() != models.KindArray {
			return TableSet{}, errors.NewConversionError(t.Name, rows.Kind().String(), "array of rows", nil)
		}
		for r, row := range rows.Items() {
			if row.Kind() != models.KindArray || row.Len() != len(t.Columns) {
				return TableSet{}, errors.NewConversionError(fmt.Sprintf("%s[%d]", t.Name, r), row.Kind().String(), fmt.Sprintf("row of %d cells", len(t.Columns)), nil)
			}
			cells := make([]any, len(t.Columns))
			for j, cell := range row.Items() {
				c, err := decodeCell(cell, t.Columns[j].Type)
				if err != nil {
					return TableSet{}, errors.NewConversionError(t.Name+"."+t.Columns[j].Name, cell.Kind().String(), string(t.Columns[j].Type), err)
				}
				cells[j] = c
			}
			t.Rows = append(t.Rows, cells)
		}
	}
	return ts, nil
}

func decodeCell(v *models.Value, ct ColumnType) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	switch ct {
	case TypeString:
		if v.Kind() == models.KindString {
			return v.Str(), nil
		}
	case TypeInt64:
		if v.Kind() == models.KindNumber {
			return v.Number().Int64()
		}
	case TypeFloat64:
		if v.Kind() == models.KindNumber {
			return v.Number().Float64()
		}
	case TypeBool:
		if v.Kind() == models.KindBool {
			return v.Bool(), nil
		}
	case TypeTime:
		if v.Kind() == models.KindString {
			return time.Parse(time.RFC3339Nano, v.Str())
		}
	case TypeDecimal:
		switch v.Kind() {
		case models.KindNumber:
			return v.Number().Decimal()
		case models.KindString:
			return decimal.NewFromString(v.Str())
		}
	case TypeBytes:
		if v.Kind() == models.KindString {
			return base64.StdEncoding.DecodeString(v.Str())
		}
	case TypeAny:
		return decodeAny(v), nil
	}
	return nil, fmt.Errorf("unexpected %s", v.Kind())
}

func decodeAny(v *models.Value) any {
	switch v.Kind() {
	case models.KindString:
		return v.Str()
	case models.KindBool:
		return v.Bool()
	case models.KindNumber:
		return v.Number().Best()
	case models.KindArray:
		out := make([]any, v.Len())
		for i, item := range v.Items() {
			out[i] = decodeAny(item)
		}
		return out
	case models.KindObject:
		out := make(map[string]any, v.Len())
		for _, m := range v.Members() {
			out[m.Key] = decodeAny(m.Value)
		}
		return out
	default:
		return nil
	}
}

// ParseBytes parses a table document from UTF-8 JSON
func ParseBytes(data []byte) (TableSet, error) {
	v, err := parser.ParseBytes(data, "")
	if err != nil {
		return TableSet{}, err
	}
	return Decode(v)
}

// ParseString parses a table document from a string
func ParseString(s string) (TableSet, error) {
	return ParseBytes([]byte(s))
}
