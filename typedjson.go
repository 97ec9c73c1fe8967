// Package typedjson converts between JSON text and arbitrary Go values
// without requiring the values to implement any codec interface.
//
// Documents are parsed into a raw value tree that keeps numbers at full
// precision, then materialized into typed values using cached reflection
// metadata. The writer performs the inverse. Behaviour is controlled by a
// Profile: number mode, date formats, name matching, null emission and the
// $type/$types polymorphism extensions.
package typedjson

import (
	"io"
	"reflect"
	"sync"

	"github.com/mcncl/typedjson/internal/analyzer"
	"github.com/mcncl/typedjson/internal/config"
	"github.com/mcncl/typedjson/internal/formatter"
	"github.com/mcncl/typedjson/internal/logging"
	"github.com/mcncl/typedjson/internal/models"
	"github.com/mcncl/typedjson/internal/number"
	"github.com/mcncl/typedjson/internal/parser"
)

type (
	// Profile is the configuration consumed by every operation
	Profile = config.Profile
	// Value is a parsed, untyped JSON node
	Value = models.Value
	// Number is a JSON number kept at full precision
	Number = number.Wide
	// Logger receives diagnostics
	Logger = logging.Logger
)

var (
	mu             sync.RWMutex
	defaultProfile = config.NewProfile()
	logger         = logging.Nop()

	// shared holds type metadata and registrations for the process
	shared = analyzer.NewAnalyzer(logger)
)

// DefaultProfile returns a copy of the profile used when a call passes nil.
func DefaultProfile() *Profile {
	mu.RLock()
	defer mu.RUnlock()
	return defaultProfile.Clone()
}

// SetDefaultProfile replaces the default profile. The type metadata cache
// is cleared when the new profile changes how member names are matched.
func SetDefaultProfile(p *Profile) error {
	if p == nil {
		p = config.NewProfile()
	}
	if err := p.Validate(); err != nil {
		return err
	}
	mu.Lock()
	old := defaultProfile
	defaultProfile = p.Clone()
	mu.Unlock()

	if old.Fingerprint() != p.Fingerprint() {
		shared.Clear()
	}
	return nil
}

// ClearCache drops all cached type metadata. Registrations are kept.
func ClearCache() { shared.Clear() }

// SetLogger routes diagnostics to l. A nil logger discards them. It should
// be called before concurrent use.
func SetLogger(l Logger) {
	if l == nil {
		l = logging.Nop()
	}
	mu.Lock()
	logger = l
	mu.Unlock()
	shared.SetLogger(l)
}

func currentLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// resolve returns p, or the default profile when p is nil.
func resolve(p *Profile) *Profile {
	if p != nil {
		return p
	}
	mu.RLock()
	defer mu.RUnlock()
	return defaultProfile
}

// LoadProfile reads a YAML profile file.
func LoadProfile(path string) (*Profile, error) { return config.LoadProfile(path) }

// BundledProfile returns one of the built-in profiles by name.
func BundledProfile(name string) (*Profile, error) { return config.Bundled(name) }

// Parse parses a JSON document.
func Parse(text string) (*Value, error) { return parser.ParseString(text) }

// ParseBytes parses data in the named character encoding; "" means UTF-8.
func ParseBytes(data []byte, encoding string) (*Value, error) {
	return parser.ParseBytes(data, encoding)
}

// ParseReader parses a UTF-8 document from r.
func ParseReader(r io.Reader) (*Value, error) { return parser.Parse(r) }

// Beautify re-indents JSON text. It does not validate its input.
func Beautify(text string) string { return formatter.Beautify(text) }

// BeautifyStream re-indents JSON text from r onto w.
func BeautifyStream(r io.Reader, w io.Writer) error { return formatter.BeautifyStream(r, w) }

// Register makes the type of v resolvable from $type tags. The first alias,
// if any, is the tag the writer emits for it.
func Register(v any, aliases ...string) {
	shared.Registry.Register(reflect.TypeOf(v), aliases...)
}

// RegisterType is Register for a type known at compile time.
func RegisterType[T any](aliases ...string) {
	shared.Registry.Register(reflect.TypeFor[T](), aliases...)
}

// RegisterEnum records the names of an integer enum type. Enums are read
// from names or numbers and written by name unless the profile says
// otherwise.
func RegisterEnum[E analyzer.Integer](names map[E]string) {
	analyzer.RegisterEnum(shared.Registry, names)
}

// RegisterConstructor registers fn, a func() T or func() (T, error), as the
// way to create new values of T.
func RegisterConstructor(fn any) error {
	return shared.Registry.RegisterConstructor(fn)
}
