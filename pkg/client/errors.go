package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Configuration errors returned by New.
var (
	// ErrMissingDomain is returned when no Pure host is configured.
	ErrMissingDomain = errors.New("no Pure API domain configured (set PURE_API_DOMAIN)")

	// ErrMissingKey is returned when no API key is configured.
	ErrMissingKey = errors.New("no Pure API key configured (set PURE_API_KEY)")

	// ErrInvalidProtocol is returned for a protocol other than http or https.
	ErrInvalidProtocol = errors.New("protocol must be http or https")
)

// Response shape errors.
var (
	// ErrMissingCount is returned when a collection response carries no count.
	ErrMissingCount = errors.New("response has no count")

	// ErrRetryExhausted wraps the last error once every attempt has failed.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)

// HTTPError is a response with status >= 400.
type HTTPError struct {
	StatusCode   int
	ErrorClass   ErrorClass
	Method       string
	ResourcePath string
	Request      *http.Request
	Response     *http.Response
	Body         []byte
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("Pure API %s error: %s %s returned HTTP status %d",
		e.ErrorClass, e.Method, e.ResourcePath, e.StatusCode)
}

// RequestError is a failure to complete the exchange: connection errors,
// timeouts, cancellation and truncated bodies.
type RequestError struct {
	Method       string
	ResourcePath string
	Err          error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return fmt.Sprintf("failed %s request for %s: %v", e.Method, e.ResourcePath, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// ClientError is any other failure inside the client, such as an
// unencodable payload or an open circuit breaker.
type ClientError struct {
	Method       string
	ResourcePath string
	Err          error
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	return fmt.Sprintf("unexpected error for %s request for %s: %v", e.Method, e.ResourcePath, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ClientError) Unwrap() error {
	return e.Err
}

// shouldRetry is the default retry policy.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx will not change on retry
		return false
	case ErrorClassServer:
		return true
	case ErrorClassRateLimit:
		return true
	case ErrorClassNetwork:
		return true
	default:
		return false
	}
}
