package formatter

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeautify_SimpleObject(t *testing.T) {
	input := `{"name":"Ada","tags":["a","b"],"empty":{},"none":[],"nested":{"n":1}}`

	expected := `{
  "name": "Ada",
  "tags": [
    "a",
    "b"
  ],
  "empty": {},
  "none": [],
  "nested": {
    "n": 1
  }
}
`
	assert.Equal(t, expected, Beautify(input))
}

func TestBeautify_PreservesStrings(t *testing.T) {
	input := `{"a":"x, {y}: [z] // not a comment","b":'single "quoted", kept',"c":"esc\"aped, \\"}`

	expected := `{
  "a": "x, {y}: [z] // not a comment",
  "b": 'single "quoted", kept',
  "c": "esc\"aped, \\"
}
`
	assert.Equal(t, expected, Beautify(input))
}

func TestBeautify_Comments(t *testing.T) {
	input := `// header
{"a": 1, // first
"b": [ // list
2]}`

	expected := `// header
{
  "a": 1,
  // first
  "b": [
    // list
    2
  ]
}
`
	assert.Equal(t, expected, Beautify(input))
}

func TestBeautify_Idempotent(t *testing.T) {
	inputs := []string{
		``,
		`1`,
		`"text"`,
		`[1,[2,[3,[]]],{}]`,
		`{"a":{"b":{"c":[true,false,null]}},"d":-1.5e10}`,
		"{\n\t\"spaced\" :\t[ 1 ,\r\n 2 ]\n}",
		`{"a": 1, // note
		"b": {} // trailing
		}`,
		`{ // only a comment
		}`,
		`[1,]`,
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			once := Beautify(input)
			assert.Equal(t, once, Beautify(once))
		})
	}
}

func TestBeautify_Malformed(t *testing.T) {
	// unbalanced input is re-indented, not rejected
	assert.Equal(t, "}\n", Beautify("}"))
	assert.Equal(t, "{\n  \"open\n", Beautify(`{"open`))
}

func TestBeautifyStream(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, BeautifyStream(strings.NewReader(`[1,2]`), &out))
	assert.Equal(t, "[\n  1,\n  2\n]\n", out.String())
}

func TestFormatter_CustomIndent(t *testing.T) {
	f := &Formatter{Indent: "\t"}
	assert.Equal(t, "{\n\t\"a\": [\n\t\t1\n\t]\n}\n", f.Format(`{"a":[1]}`))
}

func TestCompact(t *testing.T) {
	input := `{
  "a": "keep  spaces", // drop this
  "b": [ 1, 2 ]
}`
	assert.Equal(t, `{"a":"keep  spaces","b":[1,2]}`, Compact(input))
	assert.Equal(t, Compact(input), Compact(Beautify(input)))
}
