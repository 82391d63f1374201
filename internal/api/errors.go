// ABOUTME: Error types for backend responses
// ABOUTME: Non-2xx statuses surface the parsed detail field or an HTTP fallback

package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// errorBodyLimit caps how much of a failure body is read for the detail field.
const errorBodyLimit = 64 << 10

// HTTPError is a non-2xx response from the backend. Detail carries the
// body's "detail" field when one was present.
type HTTPError struct {
	StatusCode int
	Detail     string
}

func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// decodeError builds an HTTPError from a failure response. Body parsing is
// best-effort; a malformed or missing body leaves Detail empty.
func decodeError(resp *http.Response) *HTTPError {
	herr := &HTTPError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	if err != nil {
		return herr
	}
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		herr.Detail = payload.Detail
	}
	return herr
}
