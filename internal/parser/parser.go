package parser

import (
	"bufio"
	"bytes"
	stderrors "errors" // Standard errors package
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/mcncl/typedjson/internal/errors" // Custom errors package
	"github.com/mcncl/typedjson/internal/models"
	"github.com/mcncl/typedjson/internal/number"
)

// windowSize is the number of recently read runes kept for error context
const windowSize = 32

// eof marks the end of input in the lookahead slot
const eof rune = -1

// parser is a single-use recursive-descent JSON reader with one rune of
// lookahead. Numbers are kept as text and handed to number.Parse.
type parser struct {
	r *bufio.Reader

	peeked  rune
	hasPeek bool
	readErr error

	offset  int
	line    int
	column  int
	newline bool

	window [windowSize]rune
	wpos   int
	wlen   int
}

func newParser(r io.Reader) *parser {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &parser{r: br, line: 1}
}

// Parse reads exactly one JSON value from reader. Whitespace and //
// comments may surround it; anything else after the root is an error.
func Parse(reader io.Reader) (*models.Value, error) {
	p := newParser(reader)

	if err := p.skipSpace(); err != nil {
		return nil, err
	}
	if c, err := p.peek(); err != nil {
		return nil, err
	} else if c == eof {
		return nil, errors.NewInputError("input is empty or contains only whitespace", errors.ErrEmptyInput)
	}

	root, err := p.value()
	if err != nil {
		return nil, err
	}

	// Check for trailing data after the root value
	if err := p.skipSpace(); err != nil {
		return nil, err
	}
	c, err := p.peek()
	if err != nil {
		return nil, err
	}
	if c != eof {
		_, _ = p.next()
		appErr := errors.NewLexicalError(fmt.Sprintf("unexpected %q after the root value", c), p.context())
		appErr.Err = errors.ErrTrailingData
		return nil, appErr
	}
	return root, nil
}

// ParseString parses JSON from a string
func ParseString(jsonString string) (*models.Value, error) {
	if strings.TrimSpace(jsonString) == "" {
		// Provide a specific error for truly empty or whitespace-only strings
		return nil, errors.NewInputError("input string is empty", errors.ErrEmptyInput)
	}
	return Parse(strings.NewReader(jsonString))
}

// ParseBytes parses data in the named character encoding. An empty name
// means UTF-8, with a UTF-8 or UTF-16 byte order mark honoured when present.
func ParseBytes(data []byte, encodingName string) (*models.Value, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.NewInputError("input is empty", errors.ErrEmptyInput)
	}
	if encodingName == "" {
		return Parse(transform.NewReader(bytes.NewReader(data), unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	}
	enc, err := Charset(encodingName)
	if err != nil {
		return nil, err
	}
	return Parse(enc.NewDecoder().Reader(bytes.NewReader(data)))
}

// Charset looks up a character encoding by its WHATWG name or label.
func Charset(name string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, errors.NewInputError(fmt.Sprintf("unsupported encoding %q", name), err)
	}
	return enc, nil
}

// ParseFile parses JSON from a file path
func ParseFile(filePath string) (*models.Value, error) {
	if strings.TrimSpace(filePath) == "" {
		return nil, errors.NewInputError("file path is empty", errors.ErrInvalidFilePath)
	}
	file, err := os.Open(filePath)
	if err != nil {
		// Check if the file doesn't exist
		if os.IsNotExist(err) {
			return nil, errors.NewInputError(
				fmt.Sprintf("file '%s' not found", filePath),
				errors.ErrFileNotFound,
			)
		}
		return nil, errors.NewInputError(
			fmt.Sprintf("failed to open file '%s'", filePath),
			err,
		)
	}
	defer func() {
		if err := file.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing file: %v\n", err)
		}
	}()

	// Check for empty file before parsing
	stat, err := file.Stat()
	if err != nil {
		return nil, errors.NewInputError(
			fmt.Sprintf("failed to get file stats for '%s'", filePath),
			err,
		)
	}
	if stat.Size() == 0 {
		return nil, errors.NewInputError(
			fmt.Sprintf("input file '%s' is empty", filePath),
			errors.ErrFileEmpty,
		)
	}

	return Parse(file)
}

// peek returns the next rune without consuming it, or eof.
func (p *parser) peek() (rune, error) {
	if p.hasPeek {
		return p.peeked, nil
	}
	if p.readErr != nil {
		return eof, nil
	}
	c, _, err := p.r.ReadRune()
	if err != nil {
		if !stderrors.Is(err, io.EOF) {
			return eof, errors.NewInputError("failed to read input", err)
		}
		p.readErr = err
		c = eof
	}
	p.peeked, p.hasPeek = c, true
	return c, nil
}

// next consumes one rune and records it in the context window.
func (p *parser) next() (rune, error) {
	c, err := p.peek()
	if err != nil {
		return eof, err
	}
	if c == eof {
		return eof, nil
	}
	p.hasPeek = false

	p.offset++
	if p.newline {
		p.line++
		p.column = 0
	}
	p.column++
	p.newline = c == '\n'

	p.window[p.wpos] = c
	p.wpos = (p.wpos + 1) % windowSize
	if p.wlen < windowSize {
		p.wlen++
	}
	return c, nil
}

// context snapshots the current position. The window ends at the last
// rune consumed.
func (p *parser) context() *errors.Context {
	var b strings.Builder
	start := (p.wpos - p.wlen + windowSize) % windowSize
	for i := 0; i < p.wlen; i++ {
		b.WriteRune(p.window[(start+i)%windowSize])
	}
	return &errors.Context{
		Offset: p.offset,
		Line:   p.line,
		Column: p.column,
		Window: b.String(),
	}
}

func (p *parser) unexpectedEnd(what string) error {
	return errors.NewPrematureEndError(fmt.Sprintf("input ended inside %s", what), p.context())
}

func (p *parser) unexpected(c rune, expected string) error {
	return errors.NewLexicalError(fmt.Sprintf("unexpected %q, expected %s", c, expected), p.context())
}

// skipSpace skips whitespace and // line comments.
func (p *parser) skipSpace() error {
	for {
		c, err := p.peek()
		if err != nil {
			return err
		}
		switch c {
		case ' ', '\t', '\r', '\n', '\uFEFF':
			_, _ = p.next()
		case '/':
			_, _ = p.next()
			c, err = p.next()
			if err != nil {
				return err
			}
			if c == eof {
				return p.unexpectedEnd("a comment")
			}
			if c != '/' {
				return p.unexpected(c, "'/' to start a comment")
			}
			for {
				c, err = p.next()
				if err != nil {
					return err
				}
				if c == '\n' || c == eof {
					break
				}
			}
		default:
			return nil
		}
	}
}

func (p *parser) value() (*models.Value, error) {
	c, err := p.peek()
	if err != nil {
		return nil, err
	}
	switch {
	case c == eof:
		return nil, p.unexpectedEnd("a value")
	case c == '{':
		return p.object()
	case c == '[':
		return p.array()
	case c == '"':
		s, err := p.str()
		if err != nil {
			return nil, err
		}
		return models.NewString(s), nil
	case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
		return p.number()
	case c >= 'a' && c <= 'z':
		return p.literal()
	default:
		_, _ = p.next()
		return nil, p.unexpected(c, "a value")
	}
}

func (p *parser) object() (*models.Value, error) {
	_, _ = p.next() // {
	obj := models.NewObject()

	if err := p.skipSpace(); err != nil {
		return nil, err
	}
	c, err := p.peek()
	if err != nil {
		return nil, err
	}
	if c == '}' {
		_, _ = p.next()
		return obj, nil
	}

	for {
		if err := p.skipSpace(); err != nil {
			return nil, err
		}
		c, err := p.peek()
		if err != nil {
			return nil, err
		}
		if c == eof {
			return nil, p.unexpectedEnd("an object")
		}
		if c != '"' {
			_, _ = p.next()
			return nil, p.unexpected(c, "a string key")
		}
		key, err := p.str()
		if err != nil {
			return nil, err
		}

		if err := p.skipSpace(); err != nil {
			return nil, err
		}
		c, err = p.next()
		if err != nil {
			return nil, err
		}
		if c == eof {
			return nil, p.unexpectedEnd("an object")
		}
		if c != ':' {
			return nil, p.unexpected(c, "':'")
		}

		if err := p.skipSpace(); err != nil {
			return nil, err
		}
		val, err := p.value()
		if err != nil {
			return nil, err
		}
		obj.Set(key, val)

		if err := p.skipSpace(); err != nil {
			return nil, err
		}
		c, err = p.next()
		if err != nil {
			return nil, err
		}
		switch c {
		case ',':
			continue
		case '}':
			return obj, nil
		case eof:
			return nil, p.unexpectedEnd("an object")
		default:
			return nil, p.unexpected(c, "',' or '}'")
		}
	}
}

func (p *parser) array() (*models.Value, error) {
	_, _ = p.next() // [
	arr := models.NewArray()

	if err := p.skipSpace(); err != nil {
		return nil, err
	}
	c, err := p.peek()
	if err != nil {
		return nil, err
	}
	if c == ']' {
		_, _ = p.next()
		return arr, nil
	}

	for {
		if err := p.skipSpace(); err != nil {
			return nil, err
		}
		item, err := p.value()
		if err != nil {
			return nil, err
		}
		arr.Append(item)

		if err := p.skipSpace(); err != nil {
			return nil, err
		}
		c, err := p.next()
		if err != nil {
			return nil, err
		}
		switch c {
		case ',':
			continue
		case ']':
			return arr, nil
		case eof:
			return nil, p.unexpectedEnd("an array")
		default:
			return nil, p.unexpected(c, "',' or ']'")
		}
	}
}

// str reads a double-quoted string, the opening quote still pending.
func (p *parser) str() (string, error) {
	_, _ = p.next() // "
	var b strings.Builder
	for {
		c, err := p.next()
		if err != nil {
			return "", err
		}
		switch c {
		case eof:
			return "", p.unexpectedEnd("a string")
		case '"':
			return b.String(), nil
		case '\\':
			if err := p.escape(&b); err != nil {
				return "", err
			}
		default:
			b.WriteRune(c)
		}
	}
}

// escape decodes the sequence after a backslash into b.
func (p *parser) escape(b *strings.Builder) error {
	c, err := p.next()
	if err != nil {
		return err
	}
	return p.escaped(b, c)
}

func (p *parser) escaped(b *strings.Builder, c rune) error {
	switch c {
	case eof:
		return p.unexpectedEnd("a string")
	case '"', '\\', '/':
		b.WriteRune(c)
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case 'n':
		b.WriteByte('\n')
	case 'r':
		b.WriteByte('\r')
	case 't':
		b.WriteByte('\t')
	case 'u':
		return p.unicode(b)
	default:
		return errors.NewLexicalError(fmt.Sprintf("invalid escape '\\%c'", c), p.context())
	}
	return nil
}

// unicode decodes a \uXXXX escape, joining a high surrogate with a
// following \u low surrogate. Unpaired surrogates become U+FFFD and any
// other escape after a high surrogate is decoded as usual.
func (p *parser) unicode(b *strings.Builder) error {
	r, err := p.hex4()
	if err != nil {
		return err
	}
	for utf16.IsSurrogate(r) && r < 0xDC00 {
		c, err := p.peek()
		if err != nil {
			return err
		}
		if c != '\\' {
			break
		}
		_, _ = p.next()
		if c, err = p.next(); err != nil {
			return err
		}
		if c != 'u' {
			b.WriteRune(utf8.RuneError)
			return p.escaped(b, c)
		}
		low, err := p.hex4()
		if err != nil {
			return err
		}
		if low >= 0xDC00 && low < 0xE000 {
			b.WriteRune(utf16.DecodeRune(r, low))
			return nil
		}
		b.WriteRune(utf8.RuneError)
		r = low
	}
	if utf16.IsSurrogate(r) {
		r = utf8.RuneError
	}
	b.WriteRune(r)
	return nil
}

func (p *parser) hex4() (rune, error) {
	var r rune
	for i := 0; i < 4; i++ {
		c, err := p.next()
		if err != nil {
			return 0, err
		}
		switch {
		case c == eof:
			return 0, p.unexpectedEnd("a string")
		case c >= '0' && c <= '9':
			r = r<<4 | (c - '0')
		case c >= 'a' && c <= 'f':
			r = r<<4 | (c - 'a' + 10)
		case c >= 'A' && c <= 'F':
			r = r<<4 | (c - 'A' + 10)
		default:
			return 0, errors.NewLexicalError(fmt.Sprintf("invalid hex digit %q in \\u escape", c), p.context())
		}
	}
	return r, nil
}

func (p *parser) number() (*models.Value, error) {
	var b strings.Builder
	for {
		c, err := p.peek()
		if err != nil {
			return nil, err
		}
		if !isNumberRune(c) {
			break
		}
		_, _ = p.next()
		b.WriteRune(c)
	}
	n, err := number.Parse(b.String())
	if err != nil {
		appErr := errors.NewLexicalError(fmt.Sprintf("invalid number %q", b.String()), p.context())
		appErr.Err = err
		return nil, appErr
	}
	return models.NewNumber(n), nil
}

func isNumberRune(c rune) bool {
	return (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E'
}

func (p *parser) literal() (*models.Value, error) {
	var b strings.Builder
	for {
		c, err := p.peek()
		if err != nil {
			return nil, err
		}
		if c < 'a' || c > 'z' {
			break
		}
		_, _ = p.next()
		b.WriteRune(c)
	}
	switch word := b.String(); word {
	case "true":
		return models.NewBool(true), nil
	case "false":
		return models.NewBool(false), nil
	case "null":
		return models.NewNull(), nil
	default:
		if c, _ := p.peek(); c == eof && (strings.HasPrefix("true", word) || strings.HasPrefix("false", word) || strings.HasPrefix("null", word)) {
			return nil, p.unexpectedEnd("a literal")
		}
		return nil, errors.NewLexicalError(fmt.Sprintf("unknown literal %q", word), p.context())
	}
}
