package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		expected string
	}{
		{
			name: "error with wrapped error",
			appError: &AppError{
				Type:    ErrorTypeInput,
				Message: "failed to read input",
				Err:     errors.New("file not found"),
			},
			expected: "input: failed to read input: file not found",
		},
		{
			name: "error without wrapped error",
			appError: &AppError{
				Type:    ErrorTypeLexical,
				Message: "unexpected character 'x'",
			},
			expected: "lexical: unexpected character 'x'",
		},
		{
			name: "error with context",
			appError: &AppError{
				Type:    ErrorTypePrematureEnd,
				Message: "unterminated string",
				Context: &Context{Offset: 5, Line: 1, Column: 6, Window: `{"ab`},
			},
			expected: `premature_end: unterminated string at line 1, column 6 near "{\"ab"`,
		},
		{
			name: "error with warnings",
			appError: &AppError{
				Type:     ErrorTypeShapeMismatch,
				Message:  "object does not match type T",
				Warnings: []string{"first", "second"},
			},
			expected: "shape_mismatch: object does not match type T (warnings: first; second)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appError.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	wrappedErr := errors.New("wrapped error")
	appErr := &AppError{
		Type:    ErrorTypeInput,
		Message: "test message",
		Err:     wrappedErr,
	}

	assert.Equal(t, wrappedErr, appErr.Unwrap())
	assert.True(t, errors.Is(NewDepthError(3), ErrMaxDepth))
	assert.True(t, errors.Is(NewShapeMismatchError("T", nil), ErrNoMatchingMembers))
}

func TestAppError_Is(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		target   error
		expected bool
	}{
		{
			name:     "same type",
			appError: NewConversionError("Age", "string", "int", nil),
			target:   &AppError{Type: ErrorTypeConversion},
			expected: true,
		},
		{
			name:     "different type",
			appError: NewLexicalError("bad token", nil),
			target:   &AppError{Type: ErrorTypePrematureEnd},
			expected: false,
		},
		{
			name:     "not an AppError",
			appError: NewInputError("test message", nil),
			target:   errors.New("standard error"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appError.Is(tt.target))
		})
	}
}

func TestNewConversionError(t *testing.T) {
	err := NewConversionError("Age", "object", "int", nil)
	assert.Equal(t, `conversion: member "Age": cannot convert object to int`, err.Error())
	assert.Equal(t, "Age", err.Member)
	assert.Equal(t, "object", err.From)
	assert.Equal(t, "int", err.To)

	err = NewConversionError("", "string", "bool", nil)
	assert.Equal(t, "conversion: cannot convert string to bool", err.Error())
}

func TestTypeOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewTypeResolutionError("pkg.Shape", ErrUnknownType))
	assert.Equal(t, ErrorTypeTypeResolution, TypeOf(wrapped))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("plain")))
}

func TestContext_Snippet(t *testing.T) {
	ctx := &Context{Line: 2, Column: 4, Window: "ab\ncd"}
	snippet := ctx.Snippet()

	lines := strings.Split(snippet, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "  ab cd", lines[0])
	assert.Equal(t, "      ^ (line 2, column 4)", lines[1])
}

func TestContext_SnippetWideRunes(t *testing.T) {
	ctx := &Context{Line: 1, Column: 3, Window: "世界"}
	lines := strings.Split(ctx.Snippet(), "\n")
	require.Len(t, lines, 2)
	// 世 is two cells wide, so the caret sits under 界 at cell 2
	assert.Equal(t, "    ^ (line 1, column 3)", lines[1])
}

func TestUserFriendlyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "input error",
			err:      NewInputError("failed to read file", nil),
			expected: "Input error: failed to read file",
		},
		{
			name:     "conversion error",
			err:      NewConversionError("Age", "string", "int", nil),
			expected: `Conversion error: member "Age": cannot convert string to int`,
		},
		{
			name:     "shape error with warnings",
			err:      NewShapeMismatchError("T", []string{"key \"a\" would match member \"A\""}),
			expected: `Shape error: object does not match type T (key "a" would match member "A")`,
		},
		{
			name:     "path error",
			err:      NewPathError("unclosed bracket", ErrInvalidPath),
			expected: "Path error: unclosed bracket",
		},
		{
			name:     "output error",
			err:      NewOutputError("failed to write output", nil),
			expected: "Output error: failed to write output",
		},
		{
			name:     "standard error - empty input",
			err:      ErrEmptyInput,
			expected: "Error: The input is empty. Please provide valid JSON data.",
		},
		{
			name:     "unknown error",
			err:      errors.New("some unknown error"),
			expected: "Error: some unknown error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, UserFriendlyError(tt.err))
		})
	}
}

func TestUserFriendlyError_IncludesSnippet(t *testing.T) {
	err := NewLexicalError("unexpected character '}'", &Context{Line: 1, Column: 3, Window: `{"}`})
	msg := UserFriendlyError(err)
	assert.True(t, strings.HasPrefix(msg, "JSON syntax error: unexpected character '}'\n"))
	assert.Contains(t, msg, "^ (line 1, column 3)")
}
