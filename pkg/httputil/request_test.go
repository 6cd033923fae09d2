package httputil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		expectError bool
	}{
		{
			name:        "valid JSON",
			body:        `{"email": "admin@example.com"}`,
			expectError: false,
		},
		{
			name:        "invalid JSON",
			body:        `{broken`,
			expectError: true,
		},
		{
			name:        "empty body",
			body:        ``,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/auth/login", bytes.NewBufferString(tt.body))
			var dest map[string]string

			err := ParseJSON(req, &dest)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, "admin@example.com", dest["email"])
			}
		})
	}
}

func TestParseJSONOrError(t *testing.T) {
	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/sites", bytes.NewBufferString(`{"name": "Example"}`))
		rec := httptest.NewRecorder()
		var dest map[string]string

		ok := ParseJSONOrError(rec, req, &dest)

		assert.True(t, ok)
		assert.Equal(t, "Example", dest["name"])
	})

	t.Run("invalid body writes 400", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/sites", bytes.NewBufferString(`{broken`))
		rec := httptest.NewRecorder()
		var dest map[string]string

		ok := ParseJSONOrError(rec, req, &dest)

		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var body map[string]string
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Contains(t, body["error"], "invalid JSON")
	})
}

func TestParsePathString(t *testing.T) {
	t.Run("present parameter", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/sites/abc", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "abc"})

		val, err := ParsePathString(req, "id")

		assert.NoError(t, err)
		assert.Equal(t, "abc", val)
	})

	t.Run("missing parameter", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/sites/abc", nil)

		_, err := ParsePathString(req, "id")

		assert.Error(t, err)
	})
}

func TestParsePathStringOrError(t *testing.T) {
	req := httptest.NewRequest("GET", "/urls/abc", nil)
	rec := httptest.NewRecorder()

	_, ok := ParsePathStringOrError(rec, req, "id")

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseQueryInt(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		defaultVal  int
		expected    int
		expectError bool
	}{
		{
			name:       "present and valid",
			query:      "limit=25",
			defaultVal: 10,
			expected:   25,
		},
		{
			name:       "absent uses default",
			query:      "",
			defaultVal: 10,
			expected:   10,
		},
		{
			name:        "not an integer",
			query:       "limit=lots",
			defaultVal:  10,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/results?"+tt.query, nil)

			val, err := ParseQueryInt(req, "limit", tt.defaultVal)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expected, val)
			}
		})
	}
}

func TestRequireNonEmpty(t *testing.T) {
	t.Run("non-empty passes", func(t *testing.T) {
		rec := httptest.NewRecorder()

		assert.True(t, RequireNonEmpty(rec, "https://example.com", "base_url"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("empty writes validation error", func(t *testing.T) {
		rec := httptest.NewRecorder()

		assert.False(t, RequireNonEmpty(rec, "", "base_url"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var body map[string]string
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "base_url is required", body["error"])
	})
}
