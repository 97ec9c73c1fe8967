package errors

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
)

// Context locates a parse failure. Window holds the most recently read
// characters, ending at the failure point.
type Context struct {
	Offset int // runes read before the failure
	Line   int // 1-based
	Column int // 1-based
	Window string
}

// String renders the position and window on one line.
func (c *Context) String() string {
	return fmt.Sprintf("at line %d, column %d near %q", c.Line, c.Column, c.Window)
}

// Snippet renders the window with a caret under its last character. Wide
// runes are measured in terminal cells so the caret lines up.
func (c *Context) Snippet() string {
	window := strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(c.Window)
	width := runewidth.StringWidth(window)
	caret := 0
	if width > 0 {
		last := []rune(window)
		caret = width - runewidth.RuneWidth(last[len(last)-1])
	}
	return fmt.Sprintf("  %s\n  %s^ (line %d, column %d)", window, strings.Repeat(" ", caret), c.Line, c.Column)
}
