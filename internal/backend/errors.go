package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoSession is returned by calls that need a stored user id when there is none.
var ErrNoSession = errors.New("User session expired. Please login again.")

// ErrNoToken is returned when a login response carries no access token.
var ErrNoToken = errors.New("login response did not include an access token")

// APIError is a non-2xx response from the backend. Message is always human readable.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// StatusCode returns the HTTP status carried by err, or 0 if err is not an APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// extractMessage pulls a message out of an error body: "message" first, then
// "error" (a string or an object with its own "message"), else a generic line.
func extractMessage(body []byte, status int) string {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"message", "error"} {
			if msg := textOf(payload[key]); msg != "" {
				return msg
			}
		}
	}
	return fmt.Sprintf("Server Error: %d", status)
}

func textOf(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil {
		return strings.TrimSpace(nested.Message)
	}
	return ""
}
