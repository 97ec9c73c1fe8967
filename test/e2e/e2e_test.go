package e2e_test

import (
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcncl/typedjson"
)

type rateLimits struct {
	PerSecond int
	PerMinute int
	Burst     int
}

type environment struct {
	Debug    bool
	LogLevel string
}

type settings struct {
	Enabled        bool
	TimeoutSeconds int
	RetryCount     int
	Features       []string
	RateLimits     rateLimits
	Environments   map[string]environment
}

type userMetadata struct {
	LastLogin  time.Time
	LoginCount int
}

type user struct {
	ID       int
	Name     string
	Roles    []string
	Metadata userMetadata
}

type stats struct {
	Requests      int64
	Errors        int
	SuccessRate   float64
	ResponseTimes []float64
}

type document struct {
	ID        int64
	UUID      uuid.UUID
	CreatedAt time.Time
	UpdatedAt *time.Time
	Config    settings
	Users     []user
	Stats     stats
	Active    bool
}

// snake_case keys throughout; members are matched case-insensitively
const complexDocument = `{
	"id": 12345,
	"uuid": "550e8400-e29b-41d4-a716-446655440000",
	"created_at": "2023-05-20T14:56:23Z",
	"updated_at": null,
	"config": {
		"enabled": true,
		"timeout_seconds": 30,
		"retry_count": 3,
		"features": ["logging", "metrics", "alerting"],
		"rate_limits": {
			"per_second": 100,
			"per_minute": 1000,
			"burst": 150
		},
		"environments": {
			"development": {
				"debug": true,
				"log_level": "debug"
			},
			"production": {
				"debug": false,
				"log_level": "info"
			}
		}
	},
	"users": [
		{
			"id": 1,
			"name": "Alice",
			"roles": ["admin", "user"],
			"metadata": {
				"last_login": "2023-05-19T10:30:00Z",
				"login_count": 42
			}
		},
		{
			"id": 2,
			"name": "Bob",
			"roles": ["user"],
			"metadata": {
				"last_login": "2023-05-18T09:15:00Z",
				"login_count": 17
			}
		}
	],
	"stats": {
		"requests": 1234567,
		"errors": 123,
		"success_rate": 0.9999,
		"response_times": [0.045, 0.067, 0.032, 0.051]
	},
	"active": true
}`

// TestEndToEnd_ComplexNestedStructures materializes a nested document,
// writes it back and reads the output again
func TestEndToEnd_ComplexNestedStructures(t *testing.T) {
	doc, err := typedjson.MaterializeString[document](complexDocument, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(12345), doc.ID)
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", doc.UUID.String())
	assert.True(t, doc.CreatedAt.Equal(time.Date(2023, 5, 20, 14, 56, 23, 0, time.UTC)))
	assert.Nil(t, doc.UpdatedAt)
	assert.Equal(t, 150, doc.Config.RateLimits.Burst)
	assert.Equal(t, []string{"logging", "metrics", "alerting"}, doc.Config.Features)
	assert.Equal(t, environment{Debug: false, LogLevel: "info"}, doc.Config.Environments["production"])
	require.Len(t, doc.Users, 2)
	assert.Equal(t, 17, doc.Users[1].Metadata.LoginCount)
	assert.Equal(t, []float64{0.045, 0.067, 0.032, 0.051}, doc.Stats.ResponseTimes)

	text, err := typedjson.Write(doc, nil)
	require.NoError(t, err)

	again, err := typedjson.MaterializeString[document](text, nil)
	require.NoError(t, err)
	if diff := cmp.Diff(doc, again); diff != "" {
		t.Errorf("second pass differs (-first +second):\n%s", diff)
	}
}

// TestEndToEnd_Select queries the same document by path
func TestEndToEnd_Select(t *testing.T) {
	users, err := typedjson.SelectPath[user]("users", []byte(complexDocument), nil)
	require.NoError(t, err)
	names := []string{}
	for u := range users {
		names = append(names, u.Name)
	}
	assert.Equal(t, []string{"Alice", "Bob"}, names)

	roles, err := typedjson.SelectPath[string]("users[*].roles", []byte(complexDocument), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "user", "user"}, slices.Collect(roles))

	levels, err := typedjson.SelectPath[string]("config.environments.*.log_level", []byte(complexDocument), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"debug", "info"}, slices.Collect(levels))
}

// TestEndToEnd_HeterogeneousArrays reads arrays containing mixed types
func TestEndToEnd_HeterogeneousArrays(t *testing.T) {
	jsonContent := []byte(`{
		"mixed_array": [1, "string", true, null, {"nested": "object"}, [1, 2, 3]],
		"mixed_objects": [
			{"type": "user", "id": 1, "name": "Alice"},
			{"type": "group", "id": 2, "members": 5},
			{"type": "user", "id": 3, "name": "Bob", "active": true}
		]
	}`)

	v, err := typedjson.MaterializeAny(jsonContent, nil)
	require.NoError(t, err)
	mixed := v.(map[string]any)["mixed_array"]
	assert.Equal(t, []any{int64(1), "string", true, nil, map[string]any{"nested": "object"}, []any{int64(1), int64(2), int64(3)}}, mixed)

	names, err := typedjson.SelectPath[string]("mixed_objects.name", jsonContent, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob"}, slices.Collect(names))

	type member struct {
		Type    string
		ID      int
		Members int
		Active  bool
	}
	members, err := typedjson.SelectPath[member]("mixed_objects", jsonContent, nil)
	require.NoError(t, err)
	got := slices.Collect(members)
	require.Len(t, got, 3)
	assert.Equal(t, member{Type: "group", ID: 2, Members: 5}, got[1])
	assert.True(t, got[2].Active)
}

// TestEndToEnd_EdgeCases round trips documents through generic values
func TestEndToEnd_EdgeCases(t *testing.T) {
	testCases := []struct {
		name     string
		json     string
		expected string
		isError  bool
	}{
		{name: "EmptyObject", json: `{}`, expected: `{}`},
		{name: "EmptyArray", json: `[]`, expected: `[]`},
		{name: "SingleValue", json: `"just a string"`, expected: `"just a string"`},
		{name: "SingleNumber", json: `42`, expected: `42`},
		{name: "SingleBoolean", json: `true`, expected: `true`},
		{name: "SingleNull", json: `null`, expected: `null`},
		{name: "InvalidJSON", json: `{"name": "Invalid JSON",}`, isError: true},
		{name: "TrailingData", json: `{} {}`, isError: true},
		{name: "Empty", json: ` `, isError: true},
		{
			name:     "DeeplyNestedObject",
			json:     `{"level1":{"level2":{"level3":{"level4":{"level5":{"value":42}}}}}}`,
			expected: `{"level1":{"level2":{"level3":{"level4":{"level5":{"value":42}}}}}}`,
		},
		{name: "DeeplyNestedArray", json: `[[[[[[42]]]]]]`, expected: `[[[[[[42]]]]]]`},
		{name: "Unicode", json: `{"emoji":"😀","text":"café"}`, expected: "{\"emoji\":\"\U0001F600\",\"text\":\"café\"}"},
		{name: "BigInteger", json: `[12345678901234567890]`, expected: `[12345678901234567890]`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := typedjson.MaterializeAny([]byte(tc.json), nil)
			if tc.isError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			out, err := typedjson.Write(v, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, out)
		})
	}
}
