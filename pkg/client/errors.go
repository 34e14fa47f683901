package client

import (
	"errors"
	"fmt"
)

// Common client errors
var (
	// ErrInvalidConfig indicates the client configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrAuthRequired indicates authentication is required for the operation
	ErrAuthRequired = errors.New("authentication required")
)

// APIError represents a non-2xx response from the server with the
// decoded error body attached.
type APIError struct {
	URL      string         // Request URL that failed
	Status   int            // HTTP status code, 0 when the request never reached the server
	Response map[string]any // Decoded error body, if any
	Err      error          // Underlying transport error, if any
}

func (e *APIError) Error() string {
	if msg, ok := e.Response["message"].(string); ok && msg != "" {
		return fmt.Sprintf("%s (%d): %s", e.URL, e.Status, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("%s: request failed with status %d", e.URL, e.Status)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsAbort reports whether the request failed before a server response,
// typically a cancelled context or a transport error.
func (e *APIError) IsAbort() bool {
	return e.Status == 0
}

func newAPIError(url string, status int, response map[string]any, err error) *APIError {
	if response == nil {
		response = map[string]any{}
	}
	return &APIError{URL: url, Status: status, Response: response, Err: err}
}
