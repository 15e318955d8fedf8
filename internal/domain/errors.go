package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so errors built with
// WithError still satisfy errors.Is against the sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Err:        err,
	}
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		StatusCode: 500,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: 400,
	}

	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Invalid or missing access token",
		StatusCode: 401,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "Access denied",
		StatusCode: 403,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: 404,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Rate limit exceeded, please try again later",
		StatusCode: 429,
	}

	ErrValidationFailed = &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "Request validation failed",
		StatusCode: 422,
	}

	// Configuration errors
	ErrUnknownConfigType = &AppError{
		Code:       "UNKNOWN_CONFIG_TYPE",
		Message:    "Unknown configuration type, expected liveness, matching or silent-liveness",
		StatusCode: 400,
	}

	ErrConfigNotFound = &AppError{
		Code:       "CONFIG_NOT_FOUND",
		Message:    "Configuration not found",
		StatusCode: 404,
	}

	ErrConfigExists = &AppError{
		Code:       "CONFIG_ALREADY_EXISTS",
		Message:    "Client already has a configuration of this type",
		StatusCode: 409,
	}

	ErrOperationInProgress = &AppError{
		Code:       "OPERATION_IN_PROGRESS",
		Message:    "Another operation on this record is still in progress",
		StatusCode: 409,
	}

	// Client errors
	ErrClientNotFound = &AppError{
		Code:       "CLIENT_NOT_FOUND",
		Message:    "Client not found",
		StatusCode: 404,
	}

	ErrInvalidClientStatus = &AppError{
		Code:       "INVALID_CLIENT_STATUS",
		Message:    "Client status must be ACTIVE, SUSPENDED or INACTIVE",
		StatusCode: 422,
	}

	// Confirmation errors
	ErrIntentNotFound = &AppError{
		Code:       "INTENT_NOT_FOUND",
		Message:    "Confirmation request not found or already used",
		StatusCode: 404,
	}

	ErrIntentExpired = &AppError{
		Code:       "INTENT_EXPIRED",
		Message:    "Confirmation request has expired, please request it again",
		StatusCode: 410,
	}

	ErrBackendUnavailable = &AppError{
		Code:       "BACKEND_UNAVAILABLE",
		Message:    "Configuration service is unavailable",
		StatusCode: 502,
	}
)

// ValidationError carries field-scoped messages. It is never rendered as a
// single generic message.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// FieldTypeError reports a JSON value whose type does not match its field as
// a ValidationError on that field. Any other decode error yields nil.
func FieldTypeError(err error) *ValidationError {
	var typeErr *json.UnmarshalTypeError
	if !errors.As(err, &typeErr) || typeErr.Field == "" {
		return nil
	}
	return NewValidationError(map[string]string{
		typeErr.Field: "must be " + jsonKind(typeErr.Type),
	})
}

func jsonKind(t reflect.Type) string {
	if t == nil {
		return "a valid value"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "an integer"
	case reflect.Float32, reflect.Float64:
		return "a number"
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "a boolean"
	case reflect.Slice, reflect.Array:
		return "a list"
	case reflect.Map, reflect.Struct:
		return "an object"
	}
	return "a valid value"
}

// RemoteError is any non-NotFound failure reported by the configuration
// service. Error returns the service's message verbatim.
type RemoteError struct {
	StatusCode int
	Code       string
	Message    string
	Fields     map[string]string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Is lets callers compare a remote failure against the local sentinel with
// the same code (for instance CONFIG_ALREADY_EXISTS).
func (e *RemoteError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code != "" && e.Code == t.Code
}
