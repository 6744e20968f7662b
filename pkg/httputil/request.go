package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/platinummonkey/groundwork/pkg/apperr"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names, not Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ParseJSON decodes JSON from the request body into dest. Malformed bodies
// are validation errors.
func ParseJSON(r *http.Request, dest interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("Request body is required", nil)
		}
		return apperr.Validation("Invalid JSON body", map[string]string{"body": err.Error()})
	}
	return nil
}

// Validate runs struct tag validation and converts failures into a
// validation error with one detail per field.
func Validate(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("Invalid request", map[string]string{"body": err.Error()})
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe)] = describe(fe)
	}
	return apperr.Validation("Validation failed", fields)
}

// DecodeAndValidate parses the body into dest and validates it
func DecodeAndValidate(r *http.Request, dest interface{}) error {
	if err := ParseJSON(r, dest); err != nil {
		return err
	}
	return Validate(dest)
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "email":
		return "must be a valid email"
	case "uuid", "uuid4":
		return "must be a valid id"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "dive":
		return "contains an invalid entry"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

// PathParam returns a required path parameter
func PathParam(r *http.Request, key string) (string, error) {
	value := mux.Vars(r)[key]
	if value == "" {
		return "", apperr.Validation("Missing path parameter", map[string]string{key: "is required"})
	}
	return value, nil
}

// ParseQueryInt extracts an integer query parameter or returns the default
func ParseQueryInt(r *http.Request, key string, defaultVal int) (int, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return defaultVal, nil
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return 0, apperr.Validation("Invalid query parameter", map[string]string{key: "must be an integer"})
	}
	return val, nil
}

// ParseQueryString returns a query parameter or the default
func ParseQueryString(r *http.Request, key string, defaultVal string) string {
	if str := r.URL.Query().Get(key); str != "" {
		return str
	}
	return defaultVal
}

// ParseQueryBool extracts a boolean query parameter or returns the default
func ParseQueryBool(r *http.Request, key string, defaultVal bool) (bool, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return defaultVal, nil
	}
	val, err := strconv.ParseBool(str)
	if err != nil {
		return false, apperr.Validation("Invalid query parameter", map[string]string{key: "must be a boolean"})
	}
	return val, nil
}

// PageRequest is the parsed ?page=&limit= pair
type PageRequest struct {
	Page  int
	Limit int
}

// Offset returns the row offset of the page
func (p PageRequest) Offset() uint64 {
	return uint64((p.Page - 1) * p.Limit)
}

// ParsePage reads page (1-based) and limit, clamping limit to MaxPageSize
func ParsePage(r *http.Request) (PageRequest, error) {
	page, err := ParseQueryInt(r, "page", 1)
	if err != nil {
		return PageRequest{}, err
	}
	limit, err := ParseQueryInt(r, "limit", DefaultPageSize)
	if err != nil {
		return PageRequest{}, err
	}
	if page < 1 {
		return PageRequest{}, apperr.Validation("Invalid query parameter", map[string]string{"page": "must be at least 1"})
	}
	if limit < 1 {
		return PageRequest{}, apperr.Validation("Invalid query parameter", map[string]string{"limit": "must be at least 1"})
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return PageRequest{Page: page, Limit: limit}, nil
}

// ProjectIDFromRequest reads the project scope from the {projectId} path
// segment, falling back to the x-project-id header.
func ProjectIDFromRequest(r *http.Request) string {
	if id := mux.Vars(r)["projectId"]; id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get("x-project-id"))
}

// BearerToken extracts the token from "Authorization: Bearer <token>"
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("invalid authorization header format")
	}
	return strings.TrimSpace(parts[1]), nil
}
