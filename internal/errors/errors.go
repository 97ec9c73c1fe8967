package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Standard codec errors
var (
	ErrEmptyInput        = errors.New("input is empty or contains only whitespace")
	ErrTrailingData      = errors.New("unexpected data after the root value")
	ErrMaxDepth          = errors.New("maximum nesting depth exceeded")
	ErrUnknownType       = errors.New("type name is not registered")
	ErrNoMatchingMembers = errors.New("no input key matches a member of the target type")
	ErrInvalidPath       = errors.New("invalid path expression")
	ErrFileNotFound      = errors.New("file not found")
	ErrFileEmpty         = errors.New("file is empty")
	ErrNoInput           = errors.New("no input provided: pass a file argument or pipe JSON data to stdin")
	ErrInvalidFilePath   = errors.New("invalid file path")
)

// ErrorType categorizes errors
type ErrorType string

const (
	ErrorTypeLexical        ErrorType = "lexical"
	ErrorTypePrematureEnd   ErrorType = "premature_end"
	ErrorTypeTypeResolution ErrorType = "type_resolution"
	ErrorTypeConversion     ErrorType = "conversion"
	ErrorTypeShapeMismatch  ErrorType = "shape_mismatch"
	ErrorTypeDepth          ErrorType = "depth"
	ErrorTypePath           ErrorType = "path"
	ErrorTypeInput          ErrorType = "input"
	ErrorTypeOutput         ErrorType = "output"
	ErrorTypeUnknown        ErrorType = "unknown"
)

// AppError is a codec error with context
type AppError struct {
	Type    ErrorType
	Message string
	Err     error

	// Context is the source position for lexical and premature-end errors.
	Context *Context
	// Member, From and To describe a failed conversion.
	Member string
	From   string
	To     string
	// Warnings are diagnostics collected before the failure.
	Warnings []string
}

// Error implements error interface
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Type))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Context != nil {
		b.WriteString(" ")
		b.WriteString(e.Context.String())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if len(e.Warnings) > 0 {
		b.WriteString(" (warnings: ")
		b.WriteString(strings.Join(e.Warnings, "; "))
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap returns wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for comparison
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithWarnings returns e with warnings appended. The receiver is modified.
func (e *AppError) WithWarnings(warnings ...string) *AppError {
	e.Warnings = append(e.Warnings, warnings...)
	return e
}

// NewLexicalError creates an error for an unrecognized token or malformed literal
func NewLexicalError(message string, ctx *Context) *AppError {
	return &AppError{
		Type:    ErrorTypeLexical,
		Message: message,
		Context: ctx,
	}
}

// NewPrematureEndError creates an error for input that ended inside an open structure
func NewPrematureEndError(message string, ctx *Context) *AppError {
	return &AppError{
		Type:    ErrorTypePrematureEnd,
		Message: message,
		Context: ctx,
	}
}

// NewTypeResolutionError creates an error for a type tag that names no known type
func NewTypeResolutionError(typeName string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeTypeResolution,
		Message: fmt.Sprintf("cannot resolve type %q", typeName),
		Err:     err,
	}
}

// NewConversionError creates an error for a value whose shape does not fit the target member
func NewConversionError(member, from, to string, err error) *AppError {
	msg := fmt.Sprintf("cannot convert %s to %s", from, to)
	if member != "" {
		msg = fmt.Sprintf("member %q: %s", member, msg)
	}
	return &AppError{
		Type:    ErrorTypeConversion,
		Message: msg,
		Err:     err,
		Member:  member,
		From:    from,
		To:      to,
	}
}

// NewShapeMismatchError creates an error for an object none of whose keys match the target type
func NewShapeMismatchError(typeName string, warnings []string) *AppError {
	return &AppError{
		Type:     ErrorTypeShapeMismatch,
		Message:  fmt.Sprintf("object does not match type %s", typeName),
		Err:      ErrNoMatchingMembers,
		To:       typeName,
		Warnings: warnings,
	}
}

// NewDepthError creates an error for output nested deeper than the configured maximum
func NewDepthError(maxDepth int) *AppError {
	return &AppError{
		Type:    ErrorTypeDepth,
		Message: fmt.Sprintf("nesting deeper than %d levels", maxDepth),
		Err:     ErrMaxDepth,
	}
}

// NewPathError creates an error for a malformed path expression
func NewPathError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypePath,
		Message: message,
		Err:     err,
	}
}

// NewInputError creates a new error related to input processing
func NewInputError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInput,
		Message: message,
		Err:     err,
	}
}

// NewOutputError creates a new error related to output processing
func NewOutputError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeOutput,
		Message: message,
		Err:     err,
	}
}

// TypeOf returns the ErrorType of the first AppError in err's chain.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeUnknown
}

// UserFriendlyError returns a user-friendly error message
func UserFriendlyError(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		msg := appErr.Message
		if appErr.Context != nil {
			msg += "\n" + appErr.Context.Snippet()
		}
		switch appErr.Type {
		case ErrorTypeLexical:
			return fmt.Sprintf("JSON syntax error: %s", msg)
		case ErrorTypePrematureEnd:
			return fmt.Sprintf("JSON ended early: %s", msg)
		case ErrorTypeTypeResolution:
			return fmt.Sprintf("Type error: %s", msg)
		case ErrorTypeConversion:
			return fmt.Sprintf("Conversion error: %s", msg)
		case ErrorTypeShapeMismatch:
			if len(appErr.Warnings) > 0 {
				msg += " (" + strings.Join(appErr.Warnings, "; ") + ")"
			}
			return fmt.Sprintf("Shape error: %s", msg)
		case ErrorTypeDepth:
			return fmt.Sprintf("Depth error: %s", msg)
		case ErrorTypePath:
			return fmt.Sprintf("Path error: %s", msg)
		case ErrorTypeInput:
			return fmt.Sprintf("Input error: %s", msg)
		case ErrorTypeOutput:
			return fmt.Sprintf("Output error: %s", msg)
		default:
			return fmt.Sprintf("Error: %s", msg)
		}
	}

	// Handle standard errors
	if errors.Is(err, ErrEmptyInput) {
		return "Error: The input is empty. Please provide valid JSON data."
	}
	if errors.Is(err, ErrFileNotFound) {
		return "Error: The specified file could not be found. Please check the file path."
	}
	if errors.Is(err, ErrFileEmpty) {
		return "Error: The specified file is empty. Please provide a file with valid JSON content."
	}
	if errors.Is(err, ErrNoInput) {
		return "Error: No input provided. Please pass a file argument or pipe JSON data to stdin."
	}
	if errors.Is(err, ErrInvalidFilePath) {
		return "Error: Invalid file path. Please provide a valid file path."
	}

	return fmt.Sprintf("Error: %v", err)
}
