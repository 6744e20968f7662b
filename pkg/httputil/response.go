// Package httputil provides the JSON response envelope, request parsing and
// validation helpers, and the HTTP middleware shared by every handler.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/platinummonkey/groundwork/pkg/apperr"
	"github.com/platinummonkey/groundwork/pkg/observability"
)

// Envelope is the body of every API response
type Envelope struct {
	Success    bool                   `json:"success"`
	Data       interface{}            `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Pagination *Pagination            `json:"pagination,omitempty"`
}

// Pagination describes one page of a list response
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// NewPagination computes totalPages for a page request
func NewPagination(page PageRequest, total int64) *Pagination {
	totalPages := 0
	if page.Limit > 0 {
		totalPages = int((total + int64(page.Limit) - 1) / int64(page.Limit))
	}
	return &Pagination{
		Page:       page.Page,
		Limit:      page.Limit,
		Total:      total,
		TotalPages: totalPages,
	}
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a 200 envelope with data
func WriteSuccess(w http.ResponseWriter, data interface{}) {
	_ = WriteJSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// WriteCreated writes a 201 envelope with data
func WriteCreated(w http.ResponseWriter, data interface{}) {
	_ = WriteJSON(w, http.StatusCreated, Envelope{Success: true, Data: data})
}

// WriteMessage writes a success envelope carrying a human readable message
func WriteMessage(w http.ResponseWriter, status int, message string, data interface{}) {
	_ = WriteJSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

// WritePaginated writes a 200 envelope for a list page
func WritePaginated(w http.ResponseWriter, data interface{}, pagination *Pagination) {
	_ = WriteJSON(w, http.StatusOK, Envelope{Success: true, Data: data, Pagination: pagination})
}

// WriteError maps err onto the envelope. Classified errors keep their
// message and details; anything else is logged and reported generically.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperr.As(err)
	if !ok || appErr.Kind == apperr.KindInternal {
		observability.LoggerFromContext(r.Context()).WithError(err).
			WithField("path", r.URL.Path).
			Error("Request failed")
		_ = WriteJSON(w, http.StatusInternalServerError, Envelope{
			Error:   apperr.KindInternal.Code,
			Message: apperr.GenericMessage,
		})
		return
	}

	_ = WriteJSON(w, appErr.Status(), Envelope{
		Error:   appErr.ResponseCode(),
		Message: appErr.Message,
		Details: appErr.Details,
	})
}

// WriteErrorMessage writes an error envelope without going through apperr
func WriteErrorMessage(w http.ResponseWriter, status int, code, message string) {
	_ = WriteJSON(w, status, Envelope{Error: code, Message: message})
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, apperr.KindValidation.Code, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, apperr.KindAuthentication.Code, message)
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusForbidden, apperr.KindAuthorization.Code, message)
}

// WriteTooManyRequests writes a rate limit error (429)
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusTooManyRequests, apperr.KindRateLimited.Code, message)
}
