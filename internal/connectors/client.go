package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	// userAgent identifies this client to the upstream APIs.
	userAgent = "legisync-cli (+https://github.com/civica-labs/legisync-cli)"

	// maxErrorBody bounds how much of an error response body is read
	// into error messages.
	maxErrorBody = 4096
)

// GetJSON performs a GET against rawURL and decodes the JSON response body
// into out. Responses with status 400 and above become *APIError; bodies
// that fail to decode become ErrMalformedResponse. The caller's client
// carries authentication, timeouts, and transport configuration.
func GetJSON(ctx context.Context, client *http.Client, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return newAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrMalformedResponse, resp.Request.URL.Path, err)
	}
	return nil
}

// newAPIError builds an APIError from an upstream error response, reading a
// bounded extract of the body for the message.
func newAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := strings.TrimSpace(string(body))
	if message == "" {
		message = resp.Status
	}
	// Collapse JSON error payloads and HTML pages to a single line.
	message = strings.Join(strings.Fields(message), " ")
	if len(message) > 200 {
		message = message[:200] + "..."
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		URL:        resp.Request.URL.Redacted(),
		RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
	}
}
