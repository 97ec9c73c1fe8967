package schema

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcncl/typedjson/internal/errors"
)

func sampleSet(t *testing.T) TableSet {
	t.Helper()
	users := Table{
		Name: "users",
		Columns: []Column{
			{Name: "id", Type: TypeInt64},
			{Name: "name", Type: TypeString},
			{Name: "joined", Type: TypeTime},
			{Name: "balance", Type: TypeDecimal},
		},
	}
	joined := time.Date(2022, 12, 13, 12, 57, 35, 0, time.UTC)
	require.NoError(t, users.AddRow(int64(1), "ada", joined, decimal.RequireFromString("10.25")))
	require.NoError(t, users.AddRow(int64(2), nil, joined, decimal.RequireFromString("0")))

	events := Table{
		Name: "events",
		Columns: []Column{
			{Name: "ok", Type: TypeBool},
			{Name: "score", Type: TypeFloat64},
			{Name: "blob", Type: TypeBytes},
			{Name: "extra", Type: TypeAny},
		},
	}
	require.NoError(t, events.AddRow(true, 1.5, []byte("hi"), map[string]any{"k": []any{int64(1), "two"}}))

	return TableSet{Tables: []Table{users, events}}
}

func TestEncode_Layout(t *testing.T) {
	v, err := Encode(sampleSet(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"$schema", "users", "events"}, v.Keys())
	assert.Equal(t,
		`{"info":["users","id","int64","users","name","string","users","joined","time","users","balance","decimal","events","ok","bool","events","score","float64","events","blob","bytes","events","extra","any"]}`,
		v.Get(Key).String())
	assert.Equal(t,
		`[[1,"ada","2022-12-13T12:57:35Z",10.25],[2,null,"2022-12-13T12:57:35Z",0]]`,
		v.Get("users").String())
	assert.Equal(t, `[[true,1.5,"aGk=",{"k":[1,"two"]}]]`, v.Get("events").String())
	assert.True(t, IsTableDocument(v))
}

func TestDecode_RoundTrip(t *testing.T) {
	in := sampleSet(t)
	v, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(v)
	require.NoError(t, err)
	require.Len(t, out.Tables, 2)

	users, ok := out.Table("users")
	require.True(t, ok)
	assert.Equal(t, in.Tables[0].Columns, users.Columns)
	require.Len(t, users.Rows, 2)
	assert.Equal(t, int64(1), users.Rows[0][0])
	assert.Equal(t, "ada", users.Rows[0][1])
	assert.True(t, in.Tables[0].Rows[0][2].(time.Time).Equal(users.Rows[0][2].(time.Time)))
	assert.True(t, decimal.RequireFromString("10.25").Equal(users.Rows[0][3].(decimal.Decimal)))
	assert.Nil(t, users.Rows[1][1])

	events, ok := out.Table("events")
	require.True(t, ok)
	assert.Equal(t, []any{true, 1.5, []byte("hi"), map[string]any{"k": []any{int64(1), "two"}}}, events.Rows[0])
}

func TestParseString(t *testing.T) {
	ts, err := ParseString(`{
		"$schema": {"info": ["points", "x", "int64", "points", "y", "int64"]},
		"points": [[1, 2], [3, 4]]
	}`)
	require.NoError(t, err)
	require.Len(t, ts.Tables, 1)
	assert.Equal(t, [][]any{{int64(1), int64(2)}, {int64(3), int64(4)}}, ts.Tables[0].Rows)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no header", `{"points": []}`, "missing $schema header"},
		{"bad triples", `{"$schema": {"info": ["points", "x"]}}`, "triples"},
		{"unknown column type", `{"$schema": {"info": ["p", "x", "complex"]}}`, "unknown column type"},
		{"short row", `{"$schema": {"info": ["p", "x", "int64", "p", "y", "int64"]}, "p": [[1]]}`, "row of 2 cells"},
		{"wrong cell", `{"$schema": {"info": ["p", "x", "int64"]}, "p": [["one"]]}`, `member "p.x": cannot convert string to int64`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseString(tt.input)
			require.Error(t, err)
			assert.Equal(t, errors.ErrorTypeConversion, errors.TypeOf(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEncode_Errors(t *testing.T) {
	_, err := Encode(TableSet{Tables: []Table{{Name: "t", Columns: []Column{{Name: "x", Type: TypeInt64}}, Rows: [][]any{{"nope"}}}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not fit column type int64")

	_, err = Encode(TableSet{Tables: []Table{{Name: "t", Columns: []Column{{Name: "x", Type: "complex"}}}}})
	assert.Error(t, err)

	tbl := Table{Name: "t", Columns: []Column{{Name: "x", Type: TypeInt64}}}
	assert.Error(t, tbl.AddRow(int64(1), int64(2)))
}
