// Package formatter re-indents JSON text without parsing it
package formatter

import (
	"bufio"
	"io"
	"strings"
)

// DefaultIndent is the indentation unit for one nesting level
const DefaultIndent = "  "

// Formatter reformats JSON text. It tracks only strings, comments and
// brackets, so it never rejects input; malformed text comes out
// re-indented but still malformed.
type Formatter struct {
	// Indent is repeated once per nesting level
	Indent string
	// Compact drops all whitespace and comments outside strings
	Compact bool
}

// NewFormatter creates a new Formatter instance
func NewFormatter() *Formatter {
	return &Formatter{Indent: DefaultIndent}
}

// Format returns the reformatted text
func (f *Formatter) Format(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	// strings.Reader and strings.Builder never fail
	_ = f.FormatStream(strings.NewReader(text), &b)
	return b.String()
}

// FormatStream reformats r into w
func (f *Formatter) FormatStream(r io.Reader, w io.Writer) error {
	in := bufio.NewReader(r)
	out := bufio.NewWriter(w)
	s := state{f: f, out: out}
	if err := s.run(in); err != nil {
		return err
	}
	return out.Flush()
}

// Beautify indents text with DefaultIndent
func Beautify(text string) string {
	return NewFormatter().Format(text)
}

// BeautifyStream indents r into w with DefaultIndent
func BeautifyStream(r io.Reader, w io.Writer) error {
	return NewFormatter().FormatStream(r, w)
}

// Compact strips whitespace and comments outside strings
func Compact(text string) string {
	return (&Formatter{Compact: true}).Format(text)
}

type state struct {
	f     *Formatter
	out   *bufio.Writer
	level int

	// a line break is owed before the next token
	pending bool
	// the last token written was an opening bracket
	opened bool
	// nothing has been written on the current line yet
	lineStart bool
}

func (s *state) run(in *bufio.Reader) error {
	s.lineStart = true
	for {
		c, _, err := in.ReadRune()
		if err == io.EOF {
			if !s.f.Compact && !s.lineStart {
				s.out.WriteByte('\n')
			}
			return nil
		}
		if err != nil {
			return err
		}

		switch c {
		case ' ', '\t', '\r', '\n', '\uFEFF':
			continue
		case '"', '\'':
			s.token()
			if err := s.str(in, c); err != nil {
				return err
			}
		case '/':
			next, _, err := in.ReadRune()
			if err == nil && next == '/' {
				if err := s.comment(in); err != nil {
					return err
				}
				continue
			}
			if err == nil {
				_ = in.UnreadRune()
			}
			s.token()
			s.out.WriteRune(c)
		case '{', '[':
			s.token()
			s.out.WriteRune(c)
			s.level++
			s.opened = true
			s.pending = true
		case '}', ']':
			s.level = max(s.level-1, 0)
			if !s.opened && !s.f.Compact {
				s.newline()
			}
			s.out.WriteRune(c)
			s.pending = false
			s.opened = false
			s.lineStart = false
		case ',':
			s.token()
			s.out.WriteByte(',')
			s.pending = true
		case ':':
			s.token()
			s.out.WriteByte(':')
			if !s.f.Compact {
				s.out.WriteByte(' ')
			}
		default:
			s.token()
			s.out.WriteRune(c)
		}
	}
}

// token settles layout before a token is written
func (s *state) token() {
	if s.pending && !s.f.Compact {
		s.newline()
	}
	s.pending = false
	s.opened = false
	s.lineStart = false
}

func (s *state) newline() {
	if !s.lineStart {
		s.out.WriteByte('\n')
	}
	for i := 0; i < s.level; i++ {
		s.out.WriteString(s.f.Indent)
	}
	s.lineStart = false
}

// str copies a string literal, escapes included
func (s *state) str(in *bufio.Reader, quote rune) error {
	s.out.WriteRune(quote)
	for {
		c, _, err := in.ReadRune()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		s.out.WriteRune(c)
		switch c {
		case quote:
			return nil
		case '\\':
			e, _, err := in.ReadRune()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			s.out.WriteRune(e)
		}
	}
}

// comment copies a line comment onto its own line or after the current
// token, and owes a line break after it
func (s *state) comment(in *bufio.Reader) error {
	line, err := in.ReadString('\n')
	if err != nil && err != io.EOF {
		return err
	}
	if s.f.Compact {
		return nil
	}
	line = strings.TrimRight(line, " \t\r\n")
	if s.pending {
		s.newline()
	} else if !s.lineStart {
		s.out.WriteByte(' ')
	}
	s.out.WriteString("//")
	s.out.WriteString(line)
	s.pending = true
	s.opened = false
	s.lineStart = false
	return nil
}
