package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func allSentinels() []error {
	return []error{
		ErrInvalidCredentials,
		ErrNotAuthenticated,
		ErrSessionExpired,
		ErrStudentNotFound,
		ErrInvalidQRPayload,
		ErrAPIRequest,
		ErrAPIResponse,
	}
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	sentinels := allSentinels()
	for i := 0; i < len(sentinels); i++ {
		for j := i + 1; j < len(sentinels); j++ {
			assert.NotEqual(t, sentinels[i], sentinels[j],
				"sentinel errors should be distinct: %q vs %q", sentinels[i], sentinels[j])
		}
	}
}

func TestSentinelErrors_ExpectedMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrInvalidCredentials, "invalid email or password"},
		{ErrNotAuthenticated, "not authenticated"},
		{ErrSessionExpired, "session expired"},
		{ErrStudentNotFound, "student not found"},
		{ErrInvalidQRPayload, "invalid QR payload"},
		{ErrAPIRequest, "API request failed"},
		{ErrAPIResponse, "unexpected API response"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}

func TestSentinelErrors_SurviveWrapping(t *testing.T) {
	for _, sentinel := range allSentinels() {
		wrapped := fmt.Errorf("listing students: %w", sentinel)
		assert.True(t, errors.Is(wrapped, sentinel), "wrapped %q should match", sentinel)
	}
}
