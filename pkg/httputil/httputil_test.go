package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/groundwork/pkg/apperr"
	"github.com/platinummonkey/groundwork/pkg/contextkeys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestWriteSuccessAndPaginated(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccess(rec, map[string]string{"id": "t1"})
	assert.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	assert.Empty(t, env.Error)

	rec = httptest.NewRecorder()
	WritePaginated(rec, []string{"a", "b"}, NewPagination(PageRequest{Page: 2, Limit: 2}, 5))
	env = decodeEnvelope(t, rec)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 3, env.Pagination.TotalPages)
	assert.Equal(t, int64(5), env.Pagination.Total)
	assert.Contains(t, rec.Body.String(), `"totalPages":3`)
}

func TestWriteError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"validation", apperr.Validation("Validation failed", map[string]string{"title": "is required"}), 400, "VALIDATION_ERROR", "Validation failed"},
		{"forbidden", apperr.Forbidden("Insufficient permissions"), 403, "FORBIDDEN", "Insufficient permissions"},
		{"not found", apperr.NotFound("Task"), 404, "NOT_FOUND", "Task not found"},
		{"conflict", apperr.Conflict("already invited"), 409, "CONFLICT", "already invited"},
		{"unclassified", errors.New("pq: relation \"tasks\" does not exist"), 500, "INTERNAL_ERROR", apperr.GenericMessage},
		{"internal", apperr.Internal(errors.New("secret detail")), 500, "INTERNAL_ERROR", apperr.GenericMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, req, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			env := decodeEnvelope(t, rec)
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.Error)
			assert.Equal(t, tt.message, env.Message)
			assert.NotContains(t, rec.Body.String(), "secret detail")
			assert.NotContains(t, rec.Body.String(), "relation")
		})
	}

	t.Run("validation details", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, req, apperr.Validation("Validation failed", map[string]string{"title": "is required"}))
		env := decodeEnvelope(t, rec)
		assert.Equal(t, "is required", env.Details["title"])
	})
}

type createThing struct {
	Title  string `json:"title" validate:"required"`
	Status string `json:"status" validate:"omitempty,oneof=OPEN DONE"`
}

func TestDecodeAndValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"Pour slab","status":"OPEN"}`))
		var body createThing
		require.NoError(t, DecodeAndValidate(req, &body))
		assert.Equal(t, "Pour slab", body.Title)
	})

	t.Run("field details use json names", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"LATE"}`))
		var body createThing
		err := DecodeAndValidate(req, &body)
		appErr, ok := apperr.As(err)
		require.True(t, ok)
		assert.Equal(t, apperr.KindValidation, appErr.Kind)
		assert.Equal(t, "is required", appErr.Details["title"])
		assert.Equal(t, "must be one of: OPEN DONE", appErr.Details["status"])
	})

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":`))
		var body createThing
		assert.True(t, apperr.Is(DecodeAndValidate(req, &body), apperr.KindValidation))
	})

	t.Run("empty body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		var body createThing
		assert.True(t, apperr.Is(ParseJSON(req, &body), apperr.KindValidation))
	})
}

func TestParsePage(t *testing.T) {
	page, err := ParsePage(httptest.NewRequest(http.MethodGet, "/?page=3&limit=500", nil))
	require.NoError(t, err)
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, MaxPageSize, page.Limit)
	assert.Equal(t, uint64(200), page.Offset())

	page, err = ParsePage(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, PageRequest{Page: 1, Limit: DefaultPageSize}, page)

	_, err = ParsePage(httptest.NewRequest(http.MethodGet, "/?page=0", nil))
	assert.Error(t, err)
	_, err = ParsePage(httptest.NewRequest(http.MethodGet, "/?limit=abc", nil))
	assert.Error(t, err)
}

func TestProjectIDFromRequest(t *testing.T) {
	var got string
	router := mux.NewRouter()
	router.HandleFunc("/projects/{projectId}/tasks", func(w http.ResponseWriter, r *http.Request) {
		got = ProjectIDFromRequest(r)
	})
	router.HandleFunc("/tasks", func(w http.ResponseWriter, r *http.Request) {
		got = ProjectIDFromRequest(r)
	})

	req := httptest.NewRequest(http.MethodGet, "/projects/p-path/tasks", nil)
	req.Header.Set("x-project-id", "p-header")
	router.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "p-path", got)

	req = httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set("x-project-id", "p-header")
	router.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "p-header", got)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def", "abc.def", true},
		{"bearer abc", "abc", true},
		{"", "", false},
		{"Basic abc", "", false},
		{"Bearer ", "", false},
		{"Bearer", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, err := BearerToken(req)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestRequestIDAndRecovery(t *testing.T) {
	var seen string
	handler := Chain(RequestIDMiddleware, RecoveryMiddleware)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = contextkeys.GetRequestID(r.Context())
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, apperr.GenericMessage, decodeEnvelope(t, rec).Message)
}

func TestCORSMiddleware(t *testing.T) {
	handler := CORSMiddleware([]string{"https://app.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
