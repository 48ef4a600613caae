package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers and adapters MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationInvalidLat   ErrorCode = "validation_invalid_latitude"
	ErrCodeValidationInvalidLon   ErrorCode = "validation_invalid_longitude"
	ErrCodeValidationInvalidDate  ErrorCode = "validation_invalid_date"
	ErrCodeValidationMinutesRange ErrorCode = "validation_minutes_out_of_range"
	ErrCodeValidationInvalidZone  ErrorCode = "validation_invalid_zone"
	ErrCodeValidationInvalidSun   ErrorCode = "validation_invalid_sun_exposure"
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"

	// Not Found (404)
	ErrCodeNotFoundLogEntry ErrorCode = "not_found_log_entry"
	ErrCodeNotFoundSettings ErrorCode = "not_found_settings"

	// Forbidden (403)
	ErrCodeProxyPathForbidden ErrorCode = "proxy_path_forbidden"

	// Configuration (500, non-retryable)
	ErrCodeConfigCredentialMissing ErrorCode = "config_credential_missing"

	// Upstream (502/504)
	ErrCodeUpstreamTimeout    ErrorCode = "upstream_timeout"
	ErrCodeUpstreamHTTPStatus ErrorCode = "upstream_http_status"
	ErrCodeUpstreamNetwork    ErrorCode = "upstream_network"
	ErrCodeUpstreamParse      ErrorCode = "upstream_parse"

	// Domain-specific upstream failures
	ErrCodeStationsNoneNearby   ErrorCode = "stations_none_nearby"
	ErrCodeRasterAllDatesFailed ErrorCode = "raster_all_dates_failed"

	// Internal (500)
	ErrCodeInternalStore      ErrorCode = "internal_store_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case s == string(ErrCodeProxyPathForbidden):
		return http.StatusForbidden // 403
	case s == string(ErrCodeUpstreamTimeout):
		return http.StatusGatewayTimeout // 504
	case strings.HasPrefix(s, "upstream_"),
		s == string(ErrCodeStationsNoneNearby),
		s == string(ErrCodeRasterAllDatesFailed):
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type used throughout the service.
// All domain and adapter errors are expressed as AppError to enable consistent
// error classification, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// CodeOf extracts the ErrorCode from an error chain.
// Returns ErrCodeInternalUnexpected for non-AppError errors.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalUnexpected
}

// IsUpstreamStatus reports whether err is an upstream_http_status error whose
// recorded status code equals status. Callers use this to special-case
// responses such as HTTP 429 without re-parsing error messages.
func IsUpstreamStatus(err error, status int) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	if appErr.Code != ErrCodeUpstreamHTTPStatus {
		return false
	}
	got, ok := appErr.Details["status"].(int)
	return ok && got == status
}
