package api

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"

	apperrors "github.com/alexjbarnes/campusctl/internal/errors"
	"github.com/tidwall/gjson"
)

// TransportError is a network-level failure before any response arrived.
// It is never retried by the client.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("sending %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a response with an error status. The body is kept as
// received so callers can inspect it.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API %s %s (%d): %s", e.Method, e.Path, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("API %s %s returned status %d", e.Method, e.Path, e.StatusCode)
}

// Is makes every APIError match apperrors.ErrAPIRequest.
func (e *APIError) Is(target error) bool {
	return target == apperrors.ErrAPIRequest
}

// SessionExpiredError is terminal: the access token could not be
// renewed, or a replayed request was rejected again. The session has
// been cleared by the time a caller sees it.
type SessionExpiredError struct {
	Cause error
}

func (e *SessionExpiredError) Error() string {
	if e.Cause == nil {
		return apperrors.ErrSessionExpired.Error()
	}

	return fmt.Sprintf("%s: %v", apperrors.ErrSessionExpired, e.Cause)
}

func (e *SessionExpiredError) Unwrap() error { return e.Cause }

// Is makes every SessionExpiredError match apperrors.ErrSessionExpired.
func (e *SessionExpiredError) Is(target error) bool {
	return target == apperrors.ErrSessionExpired
}

// IsSessionExpired reports whether err means the user must log in again.
func IsSessionExpired(err error) bool {
	return errors.Is(err, apperrors.ErrSessionExpired)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}

	return 0
}

func newAPIError(method, path string, statusCode int, body []byte) *APIError {
	return &APIError{
		Method:     method,
		Path:       path,
		StatusCode: statusCode,
		Message:    errorMessage(statusCode, body),
		Body:       body,
	}
}

// errorMessage extracts the backend's message from a JSON error body,
// falling back to a sanitized excerpt of the raw body.
func errorMessage(statusCode int, body []byte) string {
	if gjson.ValidBytes(body) {
		for _, field := range []string{"message", "error"} {
			if v := gjson.GetBytes(body, field); v.Type == gjson.String && v.Str != "" {
				return sanitizeResponseBody([]byte(v.Str))
			}
		}
	}

	if len(body) == 0 {
		return http.StatusText(statusCode)
	}

	return sanitizeResponseBody(body)
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}
