package errors

import (
	"fmt"
	"net/http"
)

// Code represents an error code with HTTP status and message
type Code struct {
	Code    int    // Business error code
	Status  int    // HTTP status code
	Message string // Error message
}

// Error codes for different modules
const (
	// Success
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer  = 1000
	ErrInvalidParams   = 1001
	ErrNotFound        = 1002
	ErrUnauthorized    = 1003
	ErrForbidden       = 1004
	ErrConflict        = 1005
	ErrTooManyRequests = 1006
	ErrBadRequest      = 1007
	ErrServiceUnavail  = 1008

	// Auth errors (2000-2999)
	ErrAuthInvalidToken = 2006
	ErrAuthTokenExpired = 2007

	// Archive errors (5000-5999)
	ErrArchiveNotFound           = 5001
	ErrArchiveInvalidPlaceholder = 5002
	ErrArchiveExtractionMismatch = 5003
	ErrArchiveQuotaExceeded      = 5004
	ErrArchiveIOFailure          = 5005
	ErrArchiveAlreadyExists      = 5006
	ErrArchiveInvalidDecision    = 5007
	ErrArchiveNotOwner           = 5008
	ErrArchiveBusy               = 5009
)

// codeMap maps error codes to their HTTP status and message
var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "success"},

	ErrInternalServer:  {ErrInternalServer, http.StatusInternalServerError, "internal server error"},
	ErrInvalidParams:   {ErrInvalidParams, http.StatusBadRequest, "invalid parameters"},
	ErrNotFound:        {ErrNotFound, http.StatusNotFound, "resource not found"},
	ErrUnauthorized:    {ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	ErrForbidden:       {ErrForbidden, http.StatusForbidden, "forbidden"},
	ErrConflict:        {ErrConflict, http.StatusConflict, "resource conflict"},
	ErrTooManyRequests: {ErrTooManyRequests, http.StatusTooManyRequests, "too many requests"},
	ErrBadRequest:      {ErrBadRequest, http.StatusBadRequest, "bad request"},
	ErrServiceUnavail:  {ErrServiceUnavail, http.StatusServiceUnavailable, "service unavailable"},

	ErrAuthInvalidToken: {ErrAuthInvalidToken, http.StatusUnauthorized, "invalid token"},
	ErrAuthTokenExpired: {ErrAuthTokenExpired, http.StatusUnauthorized, "token expired"},

	ErrArchiveNotFound:           {ErrArchiveNotFound, http.StatusNotFound, "not_found"},
	ErrArchiveInvalidPlaceholder: {ErrArchiveInvalidPlaceholder, http.StatusUnprocessableEntity, "invalid_placeholder"},
	ErrArchiveExtractionMismatch: {ErrArchiveExtractionMismatch, http.StatusUnprocessableEntity, "extraction_mismatch"},
	ErrArchiveQuotaExceeded:      {ErrArchiveQuotaExceeded, http.StatusInsufficientStorage, "storage_quota_exceeded"},
	ErrArchiveIOFailure:          {ErrArchiveIOFailure, http.StatusInternalServerError, "io_failure"},
	ErrArchiveAlreadyExists:      {ErrArchiveAlreadyExists, http.StatusConflict, "already_exists"},
	ErrArchiveInvalidDecision:    {ErrArchiveInvalidDecision, http.StatusBadRequest, "invalid_argument"},
	ErrArchiveNotOwner:           {ErrArchiveNotOwner, http.StatusForbidden, "not_owner"},
	ErrArchiveBusy:               {ErrArchiveBusy, http.StatusConflict, "task_busy"},
}

// GetCode returns the Code struct for the given error code
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

// GetHTTPStatus returns the HTTP status code for the given error code
func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

// GetMessage returns the error message for the given error code
func GetMessage(code int) string {
	return GetCode(code).Message
}

// IsSuccess checks if the code represents success
func IsSuccess(code int) bool {
	return code == Success
}

// IsClientError checks if the code maps to a 4xx status
func IsClientError(code int) bool {
	status := GetHTTPStatus(code)
	return status >= 400 && status < 500
}

// IsServerError checks if the code maps to a 5xx status
func IsServerError(code int) bool {
	return GetHTTPStatus(code) >= 500
}

// FormatError formats an error message with optional details
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
