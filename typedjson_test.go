package typedjson

import (
	"bytes"
	stderrors "errors"
	"math"
	"reflect"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcncl/typedjson/internal/config"
	"github.com/mcncl/typedjson/internal/errors"
	"github.com/mcncl/typedjson/internal/number"
)

type tier int

const (
	tierBasic tier = iota
	tierSilver
	tierGold
)

type pricer interface {
	Total() decimal.Decimal
}

type flatRate struct {
	Amount   decimal.Decimal
	Currency string
}

func (f flatRate) Total() decimal.Decimal { return f.Amount }

type address struct {
	Street string
	City   string
}

type order struct {
	ID        uuid.UUID
	Customer  string
	Tier      tier
	Quantity  int64
	Serial    uint64
	Weight    float64
	Express   bool
	Placed    time.Time
	Window    time.Duration
	Signature []byte
	Exact     number.Wide
	Pricing   pricer
	Note      any
	Lines     []string
	Counts    map[string]int
	Flags     map[string]struct{}
	Shipping  *address
	Billing   *address
}

func init() {
	RegisterEnum(map[tier]string{tierBasic: "Basic", tierSilver: "Silver", tierGold: "Gold"})
	Register(flatRate{}, "flat")
}

func sampleOrder() order {
	return order{
		ID:        uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e"),
		Customer:  "Ada Lovelace",
		Tier:      tierGold,
		Quantity:  math.MaxInt64,
		Serial:    math.MaxUint64,
		Weight:    0.1,
		Express:   true,
		Placed:    time.Date(2022, 12, 13, 12, 57, 35, 0, time.UTC),
		Window:    90 * time.Minute,
		Signature: []byte("signed"),
		Exact:     number.MustParse("123456789012345678901234567890.5"),
		Pricing:   flatRate{Amount: decimal.RequireFromString("19.99"), Currency: "EUR"},
		Note:      "leave at door",
		Lines:     []string{"widget", "gadget"},
		Counts:    map[string]int{"widget": 2, "gadget": 1},
		Flags:     map[string]struct{}{"gift": {}, "fragile": {}},
		Shipping:  &address{Street: "1 Analytical Way", City: "London"},
	}
}

func TestRoundTrip_BundledProfiles(t *testing.T) {
	for _, name := range config.BundledNames() {
		t.Run(name, func(t *testing.T) {
			p, err := BundledProfile(name)
			require.NoError(t, err)

			in := sampleOrder()
			text, err := Write(in, p)
			require.NoError(t, err)

			out, err := MaterializeString[order](text, p)
			require.NoError(t, err, text)

			if diff := cmp.Diff(in, out); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s\njson: %s", diff, text)
			}
		})
	}
}

type blob struct {
	Data []byte
}

type gridPoint struct {
	X, Y int
}

type shelf struct {
	Items  []string
	Counts map[string]int
	Tags   map[string]struct{}
	Grid   map[gridPoint]string
	Nested [][]int
}

type timing struct {
	Backwards time.Duration
	Tiny      time.Duration
	Stamp     time.Time
	Shifted   time.Time
}

// roundTrips writes in under a profile, reads it back and compares
func roundTrips[T any](in T) func(*testing.T, *Profile) {
	return func(t *testing.T, p *Profile) {
		text, err := Write(in, p)
		require.NoError(t, err)

		out, err := MaterializeString[T](text, p)
		require.NoError(t, err, text)

		if diff := cmp.Diff(in, out); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s\njson: %s", diff, text)
		}
	}
}

func TestRoundTrip_EdgeValues(t *testing.T) {
	tests := []struct {
		name  string
		check func(*testing.T, *Profile)
	}{
		{"bytes encoding to 0xAb", roundTrips(blob{Data: []byte{0xD3, 0x10, 0x1B}})},
		{"bytes encoding to 0xq8", roundTrips(blob{Data: []byte{0xD3, 0x1A, 0xBC}})},
		{"bytes spelling 0x", roundTrips(blob{Data: []byte("0x12")})},
		{"empty bytes", roundTrips(blob{Data: []byte{}})},
		{"nil bytes", roundTrips(blob{})},
		{"nil containers", roundTrips(shelf{})},
		{"empty containers", roundTrips(shelf{
			Items:  []string{},
			Counts: map[string]int{},
			Tags:   map[string]struct{}{},
			Grid:   map[gridPoint]string{},
			Nested: [][]int{},
		})},
		{"filled containers", roundTrips(shelf{
			Items:  []string{"a", ""},
			Counts: map[string]int{"a": 1, "b": -2},
			Tags:   map[string]struct{}{"x": {}},
			Grid:   map[gridPoint]string{{X: 1, Y: 2}: "a", {X: -3}: ""},
			Nested: [][]int{{}, nil, {1, 2}},
		})},
		{"durations and nanosecond times", roundTrips(timing{
			Backwards: -(26*time.Hour + 3*time.Minute + 4*time.Second + 500*time.Millisecond),
			Tiny:      time.Nanosecond,
			Stamp:     time.Date(2023, 1, 2, 3, 4, 5, 123456789, time.UTC),
			Shifted:   time.Date(2023, 1, 2, 3, 4, 5, 1, time.FixedZone("", -5*3600)),
		})},
	}

	for _, name := range config.BundledNames() {
		p, err := BundledProfile(name)
		require.NoError(t, err)
		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				tt.check(t, p)
			})
		}
	}
}

func TestRoundTrip_Indented(t *testing.T) {
	p := DefaultProfile()
	p.Indent = true

	text, err := Write(sampleOrder(), p)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "{\n  \"ID\": "))

	out, err := MaterializeString[order](text, p)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(sampleOrder(), out))
}

type person struct {
	FirstName string
	LastName  string
	Age       int
}

func TestMaterialize_CaseNormalization(t *testing.T) {
	docs := []string{
		`{"FirstName":"Ada","LastName":"Lovelace","Age":36}`,
		`{"first_name":"Ada","last_name":"Lovelace","age":36}`,
		`{"firstName":"Ada","lastName":"Lovelace","AGE":36}`,
		`{"FIRST-NAME":"Ada","LAST-NAME":"Lovelace","age":36}`,
	}
	want := person{FirstName: "Ada", LastName: "Lovelace", Age: 36}

	for _, doc := range docs {
		t.Run(doc, func(t *testing.T) {
			got, err := Materialize[person]([]byte(doc), nil)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestMaterialize_StrictRejection(t *testing.T) {
	strict, err := BundledProfile("strict")
	require.NoError(t, err)

	_, err = MaterializeString[person](`{"first_name":"Ada","last_name":"Lovelace"}`, strict)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeShapeMismatch, errors.TypeOf(err))

	var appErr *errors.AppError
	require.True(t, stderrors.As(err, &appErr))
	assert.NotEmpty(t, appErr.Warnings)

	// exact names still match
	got, err := MaterializeString[person](`{"FirstName":"Ada"}`, strict)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.FirstName)
}

func TestMaterialize_NumericPrecision(t *testing.T) {
	type reading struct {
		Counter int64
		Taken   time.Time
	}

	got, err := MaterializeString[reading](`{"Counter":9223372036854775807,"Taken":638065330559726240}`, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), got.Counter)
	assert.True(t, got.Taken.Equal(time.Date(2022, 12, 13, 12, 57, 35, 972624000, time.UTC)), got.Taken.String())

	_, err = MaterializeString[reading](`{"Counter":9223372036854775808}`, nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeConversion, errors.TypeOf(err))
}

func TestMaterializeAny(t *testing.T) {
	got, err := MaterializeAny([]byte(`{"a":[1,2.5,"x",true,null],"b":{"c":12345678901234567890123}}`), nil)
	require.NoError(t, err)

	m, ok := got.(map[string]any)
	require.True(t, ok, "got %T", got)
	assert.Equal(t, []any{int64(1), 2.5, "x", true, nil}, m["a"])

	big, ok := m["b"].(map[string]any)["c"].(decimal.Decimal)
	require.True(t, ok)
	assert.Equal(t, "12345678901234567890123", big.String())
}

func TestMaterializeAny_HugeExponents(t *testing.T) {
	got, err := MaterializeAny([]byte(`{"a":1e50000000,"b":-2.5e-700}`), nil)
	require.NoError(t, err)

	out, err := Write(got, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1e50000000,"b":-25e-701}`, out)
}

func TestMaterialize_SharedProfileConcurrent(t *testing.T) {
	p := DefaultProfile()
	p.IgnoreKeys = []string{"^_"}

	const workers = 32
	var wg sync.WaitGroup
	got := make([]person, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], errs[i] = MaterializeString[person](`{"FirstName":"Ada","_FirstName":"ignored","Age":36}`, p)
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, person{FirstName: "Ada", Age: 36}, got[i])
	}
}

func TestMaterializeType(t *testing.T) {
	got, err := MaterializeType([]byte(`{"first_name":"Ada"}`), reflect.TypeOf(person{}), nil)
	require.NoError(t, err)
	assert.Equal(t, person{FirstName: "Ada"}, got)

	_, err = MaterializeType([]byte(`{}`), nil, nil)
	assert.Error(t, err)
}

func TestMaterialize_Interface(t *testing.T) {
	got, err := MaterializeString[pricer](`{"Amount":5,"Currency":"GBP"}`, nil)
	require.NoError(t, err)
	require.IsType(t, flatRate{}, got)
	assert.Equal(t, "GBP", got.(flatRate).Currency)
	assert.True(t, got.Total().Equal(decimal.NewFromInt(5)))
}

func TestWrite_NullSuppression(t *testing.T) {
	type contact struct {
		Name  string
		Email *string
		Phone *string
	}
	email := "ada@example.com"
	v := contact{Name: "Ada", Email: &email}

	text, err := Write(v, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"Name":"Ada","Email":"ada@example.com"}`, text)

	lenient, err := BundledProfile("lenient")
	require.NoError(t, err)
	text, err = Write(v, lenient)
	require.NoError(t, err)
	assert.Equal(t, `{"Name":"Ada","Email":"ada@example.com","Phone":null}`, text)
}

func TestWriteTo(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, WriteTo(&out, map[string]string{"city": "Zürich"}, "iso-8859-1", nil))
	assert.Equal(t, []byte("{\"city\":\"Z\xfcrich\"}"), out.Bytes())

	v, err := ParseBytes(out.Bytes(), "iso-8859-1")
	require.NoError(t, err)
	assert.Equal(t, "Zürich", v.Get("city").Str())
}

type thing struct {
	Name string
}

const branches = `{"Path":{"To":[
	{"Thing":[{"Name":"a"},{"Name":"b"}]},
	{"Thing":[{"Name":"c"},{"Name":"d"}]}
]}}`

func TestSelectPath_WildcardFanOut(t *testing.T) {
	seq, err := SelectPath[thing]("Path.To[*].Thing", []byte(branches), nil)
	require.NoError(t, err)
	assert.Equal(t, []thing{{"a"}, {"b"}, {"c"}, {"d"}}, slices.Collect(seq))

	// a slice target takes each branch whole
	lists, err := SelectPath[[]thing]("Path.To[*].Thing", []byte(branches), nil)
	require.NoError(t, err)
	assert.Len(t, slices.Collect(lists), 2)

	names, err := SelectPath[string]("path.to[*].thing.name", []byte(branches), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, slices.Collect(names))
}

func TestSelectPath_Examples(t *testing.T) {
	doc := []byte(`{
		"metrics": {"options": [{"name": "cpu"}, {"name": "mem"}]},
		"a": {"b": [[1, 2], [3, 4], [5]]}
	}`)

	first, err := SelectPath[string]("metrics.options[0].name", doc, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"cpu"}, slices.Collect(first))

	seconds, err := SelectPath[int]("a.b[*].[1]", doc, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, slices.Collect(seconds))

	root, err := SelectPath[map[string]any]("", doc, nil)
	require.NoError(t, err)
	assert.Len(t, slices.Collect(root), 1)

	missing, err := SelectPath[string]("metrics.nope[*]", doc, nil)
	require.NoError(t, err)
	assert.Empty(t, slices.Collect(missing))

	_, err = SelectPath[string]("metrics..options", doc, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidPath)
}

func TestSelectValue_SkipsUnconvertible(t *testing.T) {
	v, err := Parse(`{"ports":[80,"http",443,null,8080]}`)
	require.NoError(t, err)

	seq, err := SelectValue[int]("ports", v, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{80, 443, 0, 8080}, slices.Collect(seq))
}

func TestParse_ErrorContext(t *testing.T) {
	_, err := Parse("{\n  \"a\": [1, 2,, 3]\n}")
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeLexical, errors.TypeOf(err))

	var appErr *errors.AppError
	require.True(t, stderrors.As(err, &appErr))
	require.NotNil(t, appErr.Context)
	assert.Equal(t, 2, appErr.Context.Line)
	assert.True(t, strings.HasSuffix(appErr.Context.Window, "2,,"), appErr.Context.Window)

	_, err = ParseReader(strings.NewReader(`{"a": [1`))
	assert.Equal(t, errors.ErrorTypePrematureEnd, errors.TypeOf(err))
}

func TestBeautify_Idempotent(t *testing.T) {
	once := Beautify(`{"a":[1,{"b":null}],"c":"x, y"}`)
	assert.Equal(t, once, Beautify(once))

	var out bytes.Buffer
	require.NoError(t, BeautifyStream(strings.NewReader(once), &out))
	assert.Equal(t, once, out.String())
}

func TestFillExisting(t *testing.T) {
	target := person{FirstName: "Ada", LastName: "Lovelace", Age: 1}
	require.NoError(t, FillExisting(&target, []byte(`{"age":36}`), nil))
	assert.Equal(t, person{FirstName: "Ada", LastName: "Lovelace", Age: 36}, target)

	err := FillExisting(target, []byte(`{}`), nil)
	assert.Error(t, err)
}

var (
	staticTimeout time.Duration
	staticHosts   []string
	staticRetries = 3
)

func TestFillStatic(t *testing.T) {
	t.Cleanup(func() {
		staticTimeout, staticHosts, staticRetries = 0, nil, 3
	})

	targets := map[string]any{
		"Timeout": &staticTimeout,
		"Hosts":   &staticHosts,
		"Retries": &staticRetries,
	}
	require.NoError(t, FillStatic(targets, []byte(`{"timeout":"00:00:30","HOSTS":["a","b"],"unrelated":1}`), nil))

	assert.Equal(t, 30*time.Second, staticTimeout)
	assert.Equal(t, []string{"a", "b"}, staticHosts)
	assert.Equal(t, 3, staticRetries)

	err := FillStatic(targets, []byte(`[1]`), nil)
	assert.Equal(t, errors.ErrorTypeConversion, errors.TypeOf(err))

	err = FillStatic(map[string]any{"Retries": staticRetries}, []byte(`{"Retries":1}`), nil)
	assert.Error(t, err)
}

func TestSetDefaultProfile(t *testing.T) {
	t.Cleanup(func() { require.NoError(t, SetDefaultProfile(nil)) })

	_, err := MaterializeString[person](`{"first_name":"Ada"}`, nil)
	require.NoError(t, err)
	require.Positive(t, shared.Len())

	strict, err := BundledProfile("strict")
	require.NoError(t, err)
	require.NoError(t, SetDefaultProfile(strict))
	assert.Zero(t, shared.Len())
	assert.Equal(t, "strict", DefaultProfile().Name)

	_, err = MaterializeString[person](`{"first_name":"Ada"}`, nil)
	assert.Equal(t, errors.ErrorTypeShapeMismatch, errors.TypeOf(err))

	// the returned profile is a copy
	DefaultProfile().Name = "changed"
	assert.Equal(t, "strict", DefaultProfile().Name)

	bad := config.NewProfile()
	bad.Numbers = "quad"
	assert.Error(t, SetDefaultProfile(bad))
}

func TestClearCache(t *testing.T) {
	_, err := Write(sampleOrder(), nil)
	require.NoError(t, err)
	require.Positive(t, shared.Len())

	ClearCache()
	assert.Zero(t, shared.Len())
}

type money struct {
	Cents int64
	valid bool
}

func TestRegisterConstructor(t *testing.T) {
	require.NoError(t, RegisterConstructor(func() *money { return &money{valid: true} }))

	got, err := MaterializeString[money](`{"Cents":250}`, nil)
	require.NoError(t, err)
	assert.Equal(t, money{Cents: 250, valid: true}, got)

	assert.Error(t, RegisterConstructor(42))
}

type chain struct {
	Name string
	Next *chain
}

func TestRegisterConstructor_SelfReferential(t *testing.T) {
	require.NoError(t, RegisterConstructor(func(next *chain) *chain {
		return &chain{Name: "head", Next: next}
	}))

	got, err := MaterializeString[chain](`{"Name":"a"}`, nil)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name)
	assert.Equal(t, &chain{}, got.Next)
}
