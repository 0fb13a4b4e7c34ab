package connectors

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Shared connector errors.
var (
	// ErrMalformedResponse indicates the upstream returned a body that
	// could not be decoded as the expected JSON shape. Treated as
	// transient: upstream glitches and truncated bodies look the same.
	ErrMalformedResponse = errors.New("connectors: malformed upstream response")

	// ErrMissingAPIKey indicates the connector has no credential to
	// authenticate with.
	ErrMissingAPIKey = errors.New("connectors: api key not configured")
)

// APIError represents an upstream API error response.
type APIError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int

	// Message is a short extract of the response body.
	Message string

	// URL is the request URL, without credentials.
	URL string

	// RetryAfter is the parsed Retry-After value for throttled
	// responses, zero when the header was absent or unparseable.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream API error %d: %s (URL: %s)", e.StatusCode, e.Message, e.URL)
}

// IsThrottled checks if the error is an upstream 429 response.
func IsThrottled(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

// IsServerError checks if the error is an upstream 5xx response.
func IsServerError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 500
}

// IsUnauthorized checks if the error indicates an authentication failure.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		(apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden)
}

// IsNotFound checks if the error indicates a missing upstream resource.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// ParseRetryAfter interprets a Retry-After header value, which is either a
// delay in seconds or an HTTP date. Returns zero for absent or unparseable
// values.
func ParseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		d := time.Until(at)
		if d < 0 {
			return 0
		}
		return d
	}
	return 0
}
