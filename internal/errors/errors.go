package errors

import "errors"

// Client errors.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrSessionExpired     = errors.New("session expired")
	ErrStudentNotFound    = errors.New("student not found")
	ErrInvalidQRPayload   = errors.New("invalid QR payload")
)

// Server/transport errors.
var (
	ErrAPIRequest  = errors.New("API request failed")
	ErrAPIResponse = errors.New("unexpected API response")
)
