package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// NumberMode selects how numbers materialize into untyped targets
type NumberMode string

const (
	NumbersWide   NumberMode = "wide"
	NumbersDouble NumberMode = "double"
)

// Units accepted for date_number_unit
const (
	UnitTicks  = "ticks"
	UnitUnix   = "unix"
	UnitUnixMS = "unix_ms"
)

// Encodings accepted for byte_encoding and guid_format
const (
	EncodingBase64 = "base64"
	EncodingHex    = "hex"
)

// Name styles applied to members without an explicit tag
const (
	StyleNone       = ""
	StyleCamel      = "camel"
	StyleLowerCamel = "lower_camel"
	StyleSnake      = "snake"
	StyleKebab      = "kebab"
)

// DefaultMaxDepth bounds writer nesting when a profile does not set max_depth
const DefaultMaxDepth = 64

// Profile is the behavioural configuration shared by the materializer,
// writer and path engine. Treat a Profile as immutable once it is in use;
// derive variants with Clone or MergeProfiles.
type Profile struct {
	Name string `yaml:"name"`

	// Reading
	Numbers         NumberMode `yaml:"numbers"`
	DateFormats     []string   `yaml:"date_formats"`
	DateNumberUnit  string     `yaml:"date_number_unit"`
	UTCDates        bool       `yaml:"utc_dates"`
	CaseInsensitive bool       `yaml:"case_insensitive"`
	StrictMatching  bool       `yaml:"strict_matching"`
	StrictNumbers   bool       `yaml:"strict_numbers"`
	IgnoreKeys      []string   `yaml:"ignore_keys"`

	// Writing
	EmitNulls      bool   `yaml:"emit_nulls"`
	UseExtensions  bool   `yaml:"use_extensions"`
	GlobalTypes    bool   `yaml:"global_types"`
	TypeMap        bool   `yaml:"type_map"`
	ByteEncoding   string `yaml:"byte_encoding"`
	GUIDFormat     string `yaml:"guid_format"`
	EnumsAsNumbers bool   `yaml:"enums_as_numbers"`
	MaxDepth       int    `yaml:"max_depth"`
	Indent         bool   `yaml:"indent"`

	// Naming
	NameStyle string `yaml:"name_style"`
}

// NewProfile creates a Profile with default values
func NewProfile() *Profile {
	return &Profile{
		Name:            "default",
		Numbers:         NumbersWide,
		DateFormats:     []string{time.RFC3339Nano},
		DateNumberUnit:  UnitTicks,
		UTCDates:        false,
		CaseInsensitive: true,
		StrictMatching:  false,
		StrictNumbers:   false,
		EmitNulls:       false,
		UseExtensions:   false,
		GlobalTypes:     false,
		TypeMap:         false,
		ByteEncoding:    EncodingBase64,
		GUIDFormat:      EncodingHex,
		EnumsAsNumbers:  false,
		MaxDepth:        DefaultMaxDepth,
		Indent:          false,
		NameStyle:       StyleNone,
	}
}

// bundled profiles, keyed by name
var bundled = map[string]func() *Profile{
	"default": NewProfile,
	"strict": func() *Profile {
		p := NewProfile()
		p.Name = "strict"
		p.CaseInsensitive = false
		p.StrictMatching = true
		p.StrictNumbers = true
		return p
	},
	"polymorphic": func() *Profile {
		p := NewProfile()
		p.Name = "polymorphic"
		p.UseExtensions = true
		p.GlobalTypes = true
		p.TypeMap = true
		return p
	},
	"lenient": func() *Profile {
		p := NewProfile()
		p.Name = "lenient"
		p.Numbers = NumbersDouble
		p.EmitNulls = true
		p.DateFormats = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02", "%d/%m/%Y"}
		return p
	},
	"compact-dates": func() *Profile {
		p := NewProfile()
		p.Name = "compact-dates"
		p.DateFormats = []string{"2006-01-02T15:04:05.999999999Z07:00", "2006-01-02"}
		p.UTCDates = true
		p.ByteEncoding = EncodingHex
		p.GUIDFormat = EncodingBase64
		p.EnumsAsNumbers = true
		return p
	},
}

// BundledNames returns the names of the bundled profiles, sorted
func BundledNames() []string {
	names := make([]string, 0, len(bundled))
	for name := range bundled {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bundled returns a fresh copy of the named bundled profile
func Bundled(name string) (*Profile, error) {
	build, ok := bundled[name]
	if !ok {
		return nil, fmt.Errorf("unknown profile %q (available: %s)", name, strings.Join(BundledNames(), ", "))
	}
	p := build()
	if err := p.compilePatterns(); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadProfile loads a profile from a YAML file. Fields absent from the
// file keep their defaults.
func LoadProfile(path string) (*Profile, error) {
	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}

	// Start with defaults
	p := NewProfile()

	// Parse YAML
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse profile file: %w", err)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile %s: %w", path, err)
	}

	return p, nil
}

// FindProfileFile searches for a profile file in current directory and parents
func FindProfileFile() string {
	profileNames := []string{".typedjson.yml", ".typedjson.yaml", "typedjson.yml", "typedjson.yaml"}

	// Start from current directory
	currentDir, err := os.Getwd()
	if err != nil {
		return ""
	}

	// Search up the directory tree
	for {
		for _, name := range profileNames {
			profilePath := filepath.Join(currentDir, name)
			if _, err := os.Stat(profilePath); err == nil {
				return profilePath
			}
		}

		// Move up one directory
		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			// Reached root directory
			break
		}
		currentDir = parentDir
	}

	return ""
}

// Validate checks enumerated fields and bounds
func (p *Profile) Validate() error {
	switch p.Numbers {
	case NumbersWide, NumbersDouble:
	default:
		return fmt.Errorf("numbers must be %q or %q, got %q", NumbersWide, NumbersDouble, p.Numbers)
	}
	switch p.DateNumberUnit {
	case UnitTicks, UnitUnix, UnitUnixMS:
	default:
		return fmt.Errorf("date_number_unit must be one of ticks, unix, unix_ms, got %q", p.DateNumberUnit)
	}
	switch p.ByteEncoding {
	case EncodingBase64, EncodingHex:
	default:
		return fmt.Errorf("byte_encoding must be base64 or hex, got %q", p.ByteEncoding)
	}
	switch p.GUIDFormat {
	case EncodingBase64, EncodingHex:
	default:
		return fmt.Errorf("guid_format must be base64 or hex, got %q", p.GUIDFormat)
	}
	switch p.NameStyle {
	case StyleNone, StyleCamel, StyleLowerCamel, StyleSnake, StyleKebab:
	default:
		return fmt.Errorf("unknown name_style %q", p.NameStyle)
	}
	if p.MaxDepth <= 0 {
		return fmt.Errorf("max_depth must be positive, got %d", p.MaxDepth)
	}
	if len(p.DateFormats) == 0 {
		return fmt.Errorf("date_formats must not be empty")
	}
	return p.compilePatterns()
}

// patterns caches compiled ignore_keys expressions for every profile
var patterns sync.Map

func compiledPattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	actual, _ := patterns.LoadOrStore(pattern, re)
	return actual.(*regexp.Regexp), nil
}

// compilePatterns checks the ignore_keys patterns
func (p *Profile) compilePatterns() error {
	for _, pattern := range p.IgnoreKeys {
		if _, err := compiledPattern(pattern); err != nil {
			return fmt.Errorf("invalid ignore_keys pattern '%s': %w", pattern, err)
		}
	}
	return nil
}

// IgnoresKey reports whether an input key matches one of the ignore_keys
// patterns. Ignored keys are skipped by the materializer and do not count
// towards strict matching. Invalid patterns never match.
func (p *Profile) IgnoresKey(key string) bool {
	for _, pattern := range p.IgnoreKeys {
		re, err := compiledPattern(pattern)
		if err != nil {
			continue
		}
		if re.MatchString(key) {
			return true
		}
	}
	return false
}

// Fingerprint identifies the name-matching behaviour of the profile. Two
// profiles with the same fingerprint share type metadata.
func (p *Profile) Fingerprint() string {
	ci := "cs"
	if p.CaseInsensitive {
		ci = "ci"
	}
	return ci + "/" + p.NameStyle
}

// Clone returns a deep copy of p
func (p *Profile) Clone() *Profile {
	c := *p
	c.DateFormats = slices.Clone(p.DateFormats)
	c.IgnoreKeys = slices.Clone(p.IgnoreKeys)
	return &c
}

// MergeProfiles merges overrides into a base profile
// Non-empty values from override take precedence over base values
func MergeProfiles(base, override *Profile) *Profile {
	merged := base.Clone() // Start with a copy of base

	// Override non-empty string values
	if override.Name != "" {
		merged.Name = override.Name
	}
	if override.Numbers != "" {
		merged.Numbers = override.Numbers
	}
	if len(override.DateFormats) > 0 {
		merged.DateFormats = slices.Clone(override.DateFormats)
	}
	if override.DateNumberUnit != "" {
		merged.DateNumberUnit = override.DateNumberUnit
	}
	if override.ByteEncoding != "" {
		merged.ByteEncoding = override.ByteEncoding
	}
	if override.GUIDFormat != "" {
		merged.GUIDFormat = override.GUIDFormat
	}
	if override.NameStyle != "" {
		merged.NameStyle = override.NameStyle
	}
	if override.MaxDepth > 0 {
		merged.MaxDepth = override.MaxDepth
	}
	if len(override.IgnoreKeys) > 0 {
		merged.IgnoreKeys = append(merged.IgnoreKeys, override.IgnoreKeys...)
		_ = merged.compilePatterns()
	}

	// Booleans can only be switched on by an override, since an unset
	// override field cannot be told apart from false
	merged.UTCDates = merged.UTCDates || override.UTCDates
	merged.StrictMatching = merged.StrictMatching || override.StrictMatching
	merged.StrictNumbers = merged.StrictNumbers || override.StrictNumbers
	merged.EmitNulls = merged.EmitNulls || override.EmitNulls
	merged.UseExtensions = merged.UseExtensions || override.UseExtensions
	merged.GlobalTypes = merged.GlobalTypes || override.GlobalTypes
	merged.TypeMap = merged.TypeMap || override.TypeMap
	merged.EnumsAsNumbers = merged.EnumsAsNumbers || override.EnumsAsNumbers
	merged.Indent = merged.Indent || override.Indent

	return merged
}
