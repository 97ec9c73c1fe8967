// Package pathq selects nodes from a raw value tree with dotted path
// expressions such as "metrics.options[0].name" or "a.b[*].[1]".
package pathq

import (
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/mcncl/typedjson/internal/analyzer"
	"github.com/mcncl/typedjson/internal/errors"
	"github.com/mcncl/typedjson/internal/models"
)

// StepKind identifies a path step
type StepKind int

const (
	StepName StepKind = iota
	StepIndex
	StepWildcard
)

// Step is one element of a compiled path
type Step struct {
	Kind  StepKind
	Name  string
	Index int
}

func (s Step) String() string {
	switch s.Kind {
	case StepIndex:
		return fmt.Sprintf("[%d]", s.Index)
	case StepWildcard:
		return "[*]"
	default:
		if strings.ContainsAny(s.Name, ".[]'\"*") || s.Name == "" {
			return "['" + strings.ReplaceAll(s.Name, "'", `\'`) + "']"
		}
		return s.Name
	}
}

// Path is a compiled path expression. It holds no state between walks and
// is safe for concurrent use.
type Path struct {
	steps []Step
}

// Steps returns the compiled steps
func (p Path) Steps() []Step { return p.steps }

// IsRoot reports whether the path has no steps
func (p Path) IsRoot() bool { return len(p.steps) == 0 }

// String renders the path in canonical form
func (p Path) String() string {
	var b strings.Builder
	for i, s := range p.steps {
		if i > 0 && s.Kind == StepName && !strings.HasPrefix(s.String(), "[") {
			b.WriteByte('.')
		}
		b.WriteString(s.String())
	}
	return b.String()
}

func invalid(expr string, pos int, format string, args ...any) error {
	return errors.NewPathError(fmt.Sprintf("%s at offset %d in %q", fmt.Sprintf(format, args...), pos, expr), errors.ErrInvalidPath)
}

// Compile parses a path expression. Names are separated by '.', brackets
// hold an index (negative counts from the end), '*' or a quoted name. A
// bare '*' segment is a wildcard. The empty expression selects the root.
func Compile(expr string) (Path, error) {
	var steps []Step
	i := 0
	// a name may start here
	expectName := true
	for i < len(expr) {
		switch c := expr[i]; {
		case c == '[':
			end := strings.IndexByte(expr[i:], ']')
			if inner := expr[i+1:]; len(inner) > 0 && (inner[0] == '\'' || inner[0] == '"') {
				name, n, err := quoted(expr, i+1)
				if err != nil {
					return Path{}, err
				}
				if i+1+n >= len(expr) || expr[i+1+n] != ']' {
					return Path{}, invalid(expr, i+1+n, "expected ']'")
				}
				steps = append(steps, Step{Kind: StepName, Name: name})
				i += n + 2
				expectName = false
				continue
			}
			if end < 0 {
				return Path{}, invalid(expr, i, "unclosed '['")
			}
			body := strings.TrimSpace(expr[i+1 : i+end])
			if body == "*" {
				steps = append(steps, Step{Kind: StepWildcard})
			} else {
				n, err := strconv.Atoi(body)
				if err != nil {
					return Path{}, invalid(expr, i+1, "invalid index %q", body)
				}
				steps = append(steps, Step{Kind: StepIndex, Index: n})
			}
			i += end + 1
			expectName = false
		case c == '.':
			if expectName {
				return Path{}, invalid(expr, i, "empty name")
			}
			i++
			if i == len(expr) {
				return Path{}, invalid(expr, i, "path ends with '.'")
			}
			// "a.[1]" is the same as "a[1]"
			expectName = expr[i] != '['
		case c == ']':
			return Path{}, invalid(expr, i, "unexpected ']'")
		default:
			if !expectName {
				return Path{}, invalid(expr, i, "expected '.' or '['")
			}
			end := i
			for end < len(expr) && expr[end] != '.' && expr[end] != '[' && expr[end] != ']' {
				end++
			}
			name := strings.TrimSpace(expr[i:end])
			if name == "*" {
				steps = append(steps, Step{Kind: StepWildcard})
			} else {
				steps = append(steps, Step{Kind: StepName, Name: name})
			}
			i = end
			expectName = false
		}
	}
	if expectName && len(steps) > 0 {
		return Path{}, invalid(expr, i, "path ends with '.'")
	}
	return Path{steps: steps}, nil
}

// quoted reads a quoted name starting at expr[pos]. It returns the name and
// the number of bytes consumed, quotes included.
func quoted(expr string, pos int) (string, int, error) {
	quote := expr[pos]
	var b strings.Builder
	for i := pos + 1; i < len(expr); i++ {
		c := expr[i]
		switch {
		case c == '\\' && i+1 < len(expr):
			i++
			b.WriteByte(expr[i])
		case c == quote:
			return b.String(), i - pos + 1, nil
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, invalid(expr, pos, "unterminated quoted name")
}

// MustCompile is like Compile but panics on error
func MustCompile(expr string) Path {
	p, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// Walk yields every node the path reaches from root, in document order.
// Name steps on arrays apply to each element.
func (p Path) Walk(root *models.Value, caseInsensitive bool) iter.Seq[*models.Value] {
	return func(yield func(*models.Value) bool) {
		p.walk(root, 0, caseInsensitive, yield)
	}
}

func (p Path) walk(v *models.Value, i int, ci bool, yield func(*models.Value) bool) bool {
	if i == len(p.steps) {
		return yield(v)
	}
	s := p.steps[i]
	switch s.Kind {
	case StepName:
		switch v.Kind() {
		case models.KindObject:
			if child, ok := lookup(v, s.Name, ci); ok {
				return p.walk(child, i+1, ci, yield)
			}
		case models.KindArray:
			for _, item := range v.Items() {
				if !p.walk(item, i, ci, yield) {
					return false
				}
			}
		}
	case StepIndex:
		if v.Kind() == models.KindArray {
			n := s.Index
			if n < 0 {
				n += v.Len()
			}
			if n >= 0 && n < v.Len() {
				return p.walk(v.Index(n), i+1, ci, yield)
			}
		}
	case StepWildcard:
		switch v.Kind() {
		case models.KindArray:
			for _, item := range v.Items() {
				if !p.walk(item, i+1, ci, yield) {
					return false
				}
			}
		case models.KindObject:
			for _, m := range v.Members() {
				if !p.walk(m.Value, i+1, ci, yield) {
					return false
				}
			}
		}
	}
	return true
}

func lookup(v *models.Value, name string, ci bool) (*models.Value, bool) {
	if ci {
		return v.LookupFunc(name, analyzer.Normalize)
	}
	return v.Lookup(name)
}

// Select walks p from root and converts each node it reaches. Nodes that
// fail to convert are skipped. With flatten set, a reached array yields its
// elements instead of itself; the root of an empty path is never
// flattened.
func Select[T any](root *models.Value, p Path, caseInsensitive bool, convert func(*models.Value) (T, error), flatten bool) iter.Seq[T] {
	flatten = flatten && !p.IsRoot()
	return func(yield func(T) bool) {
		emit := func(v *models.Value) bool {
			out, err := convert(v)
			if err != nil {
				return true
			}
			return yield(out)
		}
		for v := range p.Walk(root, caseInsensitive) {
			if flatten && v.Kind() == models.KindArray {
				for _, item := range v.Items() {
					if !emit(item) {
						return
					}
				}
				continue
			}
			if !emit(v) {
				return
			}
		}
	}
}
