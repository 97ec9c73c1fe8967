package models

import (
	"strings"
	"testing"

	"github.com/mcncl/typedjson/internal/number"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_ObjectKeepsOrderAndUniqueKeys(t *testing.T) {
	obj := NewObject().
		Set("b", NewString("first")).
		Set("a", NewBool(true)).
		Set("b", NewString("second"))

	assert.Equal(t, []string{"b", "a"}, obj.Keys())
	assert.Equal(t, "second", obj.Get("b").Str())
	assert.Equal(t, 2, obj.Len())
	assert.Equal(t, `{"b":"second","a":true}`, obj.String())
}

func TestValue_NilReadsAsNull(t *testing.T) {
	var v *Value
	assert.True(t, v.IsNull())
	assert.Equal(t, KindNull, v.Kind())
	assert.Nil(t, v.Get("x"))
	assert.Nil(t, v.Index(0))
	assert.Equal(t, "null", v.String())
}

func TestValue_Index(t *testing.T) {
	arr := NewArray(NewString("x"), NewNumber(number.FromInt64(2)))
	assert.Equal(t, "x", arr.Index(0).Str())
	assert.Equal(t, "2", arr.Index(1).Number().String())
	assert.Nil(t, arr.Index(2))
	assert.Nil(t, arr.Index(-1))
}

func TestValue_LookupFunc(t *testing.T) {
	obj := NewObject().Set("User_Name", NewString("ann"))

	_, ok := obj.Lookup("username")
	assert.False(t, ok)

	v, ok := obj.LookupFunc("username", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", ""))
	})
	require.True(t, ok)
	assert.Equal(t, "ann", v.Str())
}

func TestValue_Equal(t *testing.T) {
	a := NewObject().
		Set("n", NewNumber(number.MustParse("1.0"))).
		Set("l", NewArray(NewNull(), NewBool(false)))
	b := NewObject().
		Set("l", NewArray(NewNull(), NewBool(false))).
		Set("n", NewNumber(number.MustParse("1")))
	c := NewObject().Set("n", NewNumber(number.MustParse("2")))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, NewString("1").Equal(NewNumber(number.FromInt64(1))))
}

func TestAppendQuoted(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain", input: "hello", expected: `"hello"`},
		{name: "quote and backslash", input: `a"b\c`, expected: `"a\"b\\c"`},
		{name: "control characters", input: "a\nb\tc\x01", expected: `"a\nb\tc\u0001"`},
		{name: "unicode kept", input: "héllo 世界", expected: `"héllo 世界"`},
		{name: "line separator", input: "a\u2028b", expected: `"a\u2028b"`},
		{name: "invalid utf8", input: "a\xffb", expected: "\"a\ufffdb\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(AppendQuoted(nil, tt.input)))
		})
	}
}
