package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body["error"]
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()

	err := WriteJSON(rec, http.StatusOK, map[string]int{"count": 3})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]int
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 3, body["count"])
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteError(rec, http.StatusBadRequest, errors.New("bad schedule"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad schedule", decodeError(t, rec))
}

func TestStatusHelpers(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		expectCode int
	}{
		{
			name:       "validation error",
			write:      func(w http.ResponseWriter) { WriteValidationError(w, "name is required") },
			expectCode: http.StatusBadRequest,
		},
		{
			name:       "not found",
			write:      func(w http.ResponseWriter) { WriteNotFoundError(w, "site not found") },
			expectCode: http.StatusNotFound,
		},
		{
			name:       "internal error",
			write:      func(w http.ResponseWriter) { WriteInternalError(w, errors.New("boom")) },
			expectCode: http.StatusInternalServerError,
		},
		{
			name:       "bad request",
			write:      func(w http.ResponseWriter) { WriteBadRequest(w, "invalid JSON") },
			expectCode: http.StatusBadRequest,
		},
		{
			name:       "unauthorized",
			write:      func(w http.ResponseWriter) { WriteUnauthorized(w, "invalid credentials") },
			expectCode: http.StatusUnauthorized,
		},
		{
			name:       "forbidden",
			write:      func(w http.ResponseWriter) { WriteForbidden(w, "permission denied") },
			expectCode: http.StatusForbidden,
		},
		{
			name:       "conflict",
			write:      func(w http.ResponseWriter) { WriteConflict(w, "email already registered") },
			expectCode: http.StatusConflict,
		},
		{
			name:       "service unavailable",
			write:      func(w http.ResponseWriter) { WriteServiceUnavailable(w, "store unavailable") },
			expectCode: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()

			tt.write(rec)

			assert.Equal(t, tt.expectCode, rec.Code)
			assert.NotEmpty(t, decodeError(t, rec))
		})
	}
}

func TestWriteCreated(t *testing.T) {
	rec := httptest.NewRecorder()

	err := WriteCreated(rec, map[string]string{"id": "abc"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]string
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "abc", body["id"])
}

func TestWriteSuccess(t *testing.T) {
	rec := httptest.NewRecorder()

	err := WriteSuccess(rec, []string{"a", "b"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body []string
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, []string{"a", "b"}, body)
}

func TestWriteNoContent(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteNoContent(rec)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}
