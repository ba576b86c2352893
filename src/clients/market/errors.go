package market

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrorKind names the outcome classes a page reacts to.
type ErrorKind string

const (
	KindSessionExpired ErrorKind = "SESSION_EXPIRED"
	KindForbidden      ErrorKind = "FORBIDDEN"
	KindRequestFailed  ErrorKind = "REQUEST_FAILED"
	KindUnreachable    ErrorKind = "UNREACHABLE"
	KindValidation     ErrorKind = "VALIDATION"
)

// KindedError is implemented by every error this package returns for a call outcome.
type KindedError interface {
	error
	Kind() ErrorKind
}

// SessionExpiredError is returned for 401 responses.
type SessionExpiredError struct {
	Resource string
}

func (e *SessionExpiredError) Error() string {
	return "session expired, please log in again"
}

func (e *SessionExpiredError) Kind() ErrorKind { return KindSessionExpired }

// ForbiddenError is returned for 403 responses.
type ForbiddenError struct {
	Resource string
	Message  string
}

func (e *ForbiddenError) Error() string { return e.Message }

func (e *ForbiddenError) Kind() ErrorKind { return KindForbidden }

// RequestFailedError covers every other non-2xx status.
type RequestFailedError struct {
	Resource   string
	StatusCode int
	Message    string
}

func (e *RequestFailedError) Error() string { return e.Message }

func (e *RequestFailedError) Kind() ErrorKind { return KindRequestFailed }

// UnreachableError is returned when no response arrived at all.
type UnreachableError struct {
	Resource string
	Cause    error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("backend unreachable: %v", e.Cause)
}

func (e *UnreachableError) Unwrap() error { return e.Cause }

func (e *UnreachableError) Kind() ErrorKind { return KindUnreachable }

// ValidationError blocks a submission before any request is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Kind() ErrorKind { return KindValidation }

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func IsSessionExpired(err error) bool {
	var target *SessionExpiredError
	return errors.As(err, &target)
}

func IsForbidden(err error) bool {
	var target *ForbiddenError
	return errors.As(err, &target)
}

// KindOf returns the kind of err, or "" for errors from outside the taxonomy.
func KindOf(err error) ErrorKind {
	var kinded KindedError
	if errors.As(err, &kinded) {
		return kinded.Kind()
	}
	return ""
}

// operation describes one logical backend call for error reporting.
type operation struct {
	resource  string
	forbidden string
	failed    string
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// serverMessage extracts a human readable message from an error response body.
// The backend answers with {"error": ..., "message": ...}, a JSON string or plain text.
func serverMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}
	switch trimmed[0] {
	case '{':
		var parsed errorBody
		if err := json.Unmarshal(trimmed, &parsed); err != nil {
			return ""
		}
		if parsed.Error != "" {
			return parsed.Error
		}
		return parsed.Message
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return ""
		}
		return text
	case '[', '<':
		return ""
	default:
		return strings.TrimSpace(string(trimmed))
	}
}

// mapResponseError turns a non-2xx response into the matching error kind.
func mapResponseError(op operation, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	message := serverMessage(body)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return &SessionExpiredError{Resource: op.resource}
	case http.StatusForbidden:
		if message == "" {
			message = op.forbidden
		}
		return &ForbiddenError{Resource: op.resource, Message: message}
	default:
		if message == "" {
			message = op.failed
		}
		return &RequestFailedError{Resource: op.resource, StatusCode: resp.StatusCode, Message: message}
	}
}
