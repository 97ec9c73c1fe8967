// Package logging provides the levelled logger used across the codec.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents the severity level for logs.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a string into a Level. Unknown names map to LevelWarn.
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "ERROR":
		return LevelError
	case "WARN", "WARNING":
		return LevelWarn
	case "INFO":
		return LevelInfo
	case "DEBUG":
		return LevelDebug
	default:
		return LevelWarn
	}
}

// Logger is the interface the codec logs through.
type Logger interface {
	IsEnabled(level Level) bool
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)

	// With returns a child logger carrying the given fields on every line.
	With(fields map[string]any) Logger
}

// writerLogger writes single-line text logs:
// [LEVEL] ts msg key1=val1 key2=val2
type writerLogger struct {
	out        io.Writer
	level      Level
	timestamps bool
	fields     map[string]any
	mu         *sync.Mutex
}

// New creates a logger writing to w at the given level. A nil w means
// os.Stderr.
func New(level Level, w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	return &writerLogger{
		out:        w,
		level:      level,
		timestamps: true,
		fields:     map[string]any{},
		mu:         &sync.Mutex{},
	}
}

// NewPlain is like New without timestamps, which keeps output stable for
// tests and CLI diagnostics.
func NewPlain(level Level, w io.Writer) Logger {
	l := New(level, w).(*writerLogger)
	l.timestamps = false
	return l
}

func (l *writerLogger) IsEnabled(level Level) bool { return level <= l.level }

func (l *writerLogger) With(fields map[string]any) Logger {
	if len(fields) == 0 {
		return l
	}
	merged := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &writerLogger{out: l.out, level: l.level, timestamps: l.timestamps, fields: merged, mu: l.mu}
}

func (l *writerLogger) Debugf(format string, args ...any) { l.log(LevelDebug, format, args) }
func (l *writerLogger) Infof(format string, args ...any)  { l.log(LevelInfo, format, args) }
func (l *writerLogger) Warnf(format string, args ...any)  { l.log(LevelWarn, format, args) }
func (l *writerLogger) Errorf(format string, args ...any) { l.log(LevelError, format, args) }

func (l *writerLogger) log(level Level, format string, args []any) {
	if !l.IsEnabled(level) {
		return
	}
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(level.String())
	b.WriteString("] ")
	if l.timestamps {
		b.WriteString(time.Now().UTC().Format(time.RFC3339Nano))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, format, args...)

	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(sprint(l.fields[k]))
	}
	b.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.out, b.String())
}

func sprint(v any) string {
	switch t := v.(type) {
	case string:
		if strings.IndexFunc(t, func(r rune) bool { return r <= ' ' }) >= 0 {
			return fmt.Sprintf("%q", t)
		}
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

// slogLogger logs through a *slog.Logger
type slogLogger struct {
	l     *slog.Logger
	level Level
}

// FromSlog adapts l to Logger. Messages above level are dropped before
// they are formatted.
func FromSlog(l *slog.Logger, level Level) Logger {
	return &slogLogger{l: l, level: level}
}

// NewJSON creates a logger writing one JSON object per line to w.
func NewJSON(level Level, w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slogLevel(level)})
	return FromSlog(slog.New(h), level)
}

func slogLevel(level Level) slog.Level {
	switch level {
	case LevelError:
		return slog.LevelError
	case LevelWarn:
		return slog.LevelWarn
	case LevelInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

func (s *slogLogger) IsEnabled(level Level) bool {
	return level <= s.level && s.l.Enabled(context.Background(), slogLevel(level))
}

func (s *slogLogger) With(fields map[string]any) Logger {
	if len(fields) == 0 {
		return s
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return &slogLogger{l: s.l.With(args...), level: s.level}
}

func (s *slogLogger) Debugf(format string, args ...any) { s.log(LevelDebug, format, args) }
func (s *slogLogger) Infof(format string, args ...any)  { s.log(LevelInfo, format, args) }
func (s *slogLogger) Warnf(format string, args ...any)  { s.log(LevelWarn, format, args) }
func (s *slogLogger) Errorf(format string, args ...any) { s.log(LevelError, format, args) }

func (s *slogLogger) log(level Level, format string, args []any) {
	if !s.IsEnabled(level) {
		return
	}
	s.l.Log(context.Background(), slogLevel(level), fmt.Sprintf(format, args...))
}

type nopLogger struct{}

func (nopLogger) IsEnabled(Level) bool         { return false }
func (nopLogger) Debugf(string, ...any)        {}
func (nopLogger) Infof(string, ...any)         {}
func (nopLogger) Warnf(string, ...any)         {}
func (nopLogger) Errorf(string, ...any)        {}
func (n nopLogger) With(map[string]any) Logger { return n }

// Nop returns a logger that discards everything.
func Nop() Logger { return nopLogger{} }
