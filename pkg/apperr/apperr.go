// Package apperr defines the error taxonomy shared by services and HTTP handlers.
//
// Services return *Error values for expected failures. Anything else reaching
// the HTTP layer is treated as internal and reported with a generic message.
package apperr

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Kind classifies an error for status mapping
type Kind struct {
	Code   string
	Status int
}

var (
	KindValidation     = Kind{"VALIDATION_ERROR", http.StatusBadRequest}
	KindAuthentication = Kind{"UNAUTHORIZED", http.StatusUnauthorized}
	KindAuthorization  = Kind{"FORBIDDEN", http.StatusForbidden}
	KindNotFound       = Kind{"NOT_FOUND", http.StatusNotFound}
	KindConflict       = Kind{"CONFLICT", http.StatusConflict}
	KindRateLimited    = Kind{"RATE_LIMITED", http.StatusTooManyRequests}
	KindInternal       = Kind{"INTERNAL_ERROR", http.StatusInternalServerError}
)

// GenericMessage is the only text an internal error exposes to callers.
const GenericMessage = "An unexpected error occurred"

// Error is an expected, classified failure
type Error struct {
	Kind Kind
	// Code overrides Kind.Code in responses, e.g. TASKS_NOT_FOUND.
	Code    string
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ResponseCode is the stable code clients switch on
func (e *Error) ResponseCode() string {
	if e.Code != "" {
		return e.Code
	}
	return e.Kind.Code
}

// Status returns the HTTP status for the error
func (e *Error) Status() int {
	return e.Kind.Status
}

// WithDetail returns a copy of e with one more detail entry
func (e *Error) WithDetail(key string, value interface{}) *Error {
	cp := *e
	cp.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// Validation returns a 400 error with per-field details
func Validation(message string, fields map[string]string) *Error {
	details := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		details[k] = v
	}
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

// Unauthenticated returns a 401 error
func Unauthenticated(message string) *Error {
	return &Error{Kind: KindAuthentication, Message: message}
}

// Forbidden returns a 403 error
func Forbidden(message string) *Error {
	return &Error{Kind: KindAuthorization, Message: message}
}

// NotFound returns a 404 error for entity. Missing rows and rows outside the
// caller's project produce the same error.
func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Message: entity + " not found"}
}

// Conflict returns a 409 error
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// RateLimited returns a 429 error
func RateLimited(message string) *Error {
	return &Error{Kind: KindRateLimited, Message: message}
}

// Internal wraps an unexpected failure
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: GenericMessage, Err: err}
}

// TasksNotFound reports the ids of a bulk request that do not exist in the
// project. ids are sorted for a stable response.
func TasksNotFound(ids []string) *Error {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return &Error{
		Kind:    KindNotFound,
		Code:    "TASKS_NOT_FOUND",
		Message: "Tasks not found: " + strings.Join(sorted, ", "),
		Details: map[string]interface{}{"missingIds": sorted},
	}
}

// As extracts an *Error from err
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == kind
}

// FromDB classifies a database error: no rows become NotFound(entity),
// unique violations become Conflict, anything else is returned unchanged.
func FromDB(err error, entity string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return NotFound(entity)
	}
	if IsUniqueViolation(err) {
		return &Error{Kind: KindConflict, Message: entity + " already exists", Err: err}
	}
	return err
}

// IsUniqueViolation reports whether err is a unique constraint failure on
// postgres or sqlite.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
