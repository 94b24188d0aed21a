package client

import (
	"errors"
	"io"
	"net/http"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		errorClass ErrorClass
		expected   bool
	}{
		{
			name:       "client error should not retry",
			errorClass: ErrorClassClient,
			expected:   false,
		},
		{
			name:       "server error should retry",
			errorClass: ErrorClassServer,
			expected:   true,
		},
		{
			name:       "rate limit should retry",
			errorClass: ErrorClassRateLimit,
			expected:   true,
		},
		{
			name:       "network error should retry",
			errorClass: ErrorClassNetwork,
			expected:   true,
		},
		{
			name:       "empty error class should not retry",
			errorClass: "",
			expected:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := shouldRetry(tt.errorClass)
			if result != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.errorClass, result, tt.expected)
			}
		})
	}
}

func TestHTTPError_Error(t *testing.T) {
	err := &HTTPError{
		StatusCode:   404,
		ErrorClass:   ErrorClassClient,
		Method:       http.MethodGet,
		ResourcePath: "persons/123",
	}

	expected := "Pure API client error: GET persons/123 returned HTTP status 404"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestRequestError_Unwrap(t *testing.T) {
	err := &RequestError{Method: http.MethodGet, ResourcePath: "persons", Err: io.ErrUnexpectedEOF}

	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("errors.Is should find the wrapped transport error")
	}
	expected := "failed GET request for persons: unexpected EOF"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestClientError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &ClientError{Method: http.MethodPost, ResourcePath: "research-outputs", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the wrapped error")
	}

	var clientErr *ClientError
	if !errors.As(error(err), &clientErr) {
		t.Error("errors.As should match *ClientError")
	}
}

func TestBreakerSuccess(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: true},
		{name: "404 counts as healthy", err: &HTTPError{StatusCode: 404}, expected: true},
		{name: "429 counts as healthy", err: &HTTPError{StatusCode: 429}, expected: true},
		{name: "500 is a failure", err: &HTTPError{StatusCode: 500}, expected: false},
		{name: "transport error is a failure", err: &RequestError{Err: io.EOF}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := breakerSuccess(tt.err); got != tt.expected {
				t.Errorf("breakerSuccess() = %v, want %v", got, tt.expected)
			}
		})
	}
}
