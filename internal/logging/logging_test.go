package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"error", LevelError},
		{"WARN", LevelWarn},
		{"warning", LevelWarn},
		{"Info", LevelInfo},
		{"debug", LevelDebug},
		{"nonsense", LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestPlainLogger_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewPlain(LevelWarn, &buf)

	l.Debugf("hidden %d", 1)
	l.Infof("hidden too")
	l.Warnf("shown %s", "here")
	l.Errorf("also shown")

	assert.Equal(t, "[WARN] shown here\n[ERROR] also shown\n", buf.String())
}

func TestPlainLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewPlain(LevelDebug, &buf).With(map[string]any{"type": "pkg.T", "note": "two words"})

	l.Debugf("resolved")

	assert.Equal(t, "[DEBUG] resolved note=\"two words\" type=pkg.T\n", buf.String())
}

func TestNop(t *testing.T) {
	l := Nop()
	assert.False(t, l.IsEnabled(LevelError))
	l.Errorf("ignored")
	assert.Equal(t, l, l.With(map[string]any{"a": 1}))
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSON(LevelWarn, &buf)

	assert.False(t, l.IsEnabled(LevelInfo))
	l.Infof("hidden")
	l.With(map[string]any{"type": "pkg.T"}).Warnf("ambiguous %q", "T")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"msg":"ambiguous \"T\""`)
	assert.Contains(t, out, `"type":"pkg.T"`)
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestFromSlog_RespectsHandlerLevel(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError})
	l := FromSlog(slog.New(h), LevelDebug)

	assert.False(t, l.IsEnabled(LevelWarn))
	assert.True(t, l.IsEnabled(LevelError))
	l.Warnf("dropped")
	l.Errorf("kept %d", 1)

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `msg="kept 1"`)
}
