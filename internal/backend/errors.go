package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// HTTPStatusError represents a non-2xx response from the cluster.
// It preserves the status code and body so callers can surface the
// engine's own error reason.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.URL == "" {
		return fmt.Sprintf("http status %d", e.StatusCode)
	}
	if e.Body == "" {
		return fmt.Sprintf("http %s returned status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("http %s returned status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Reason extracts error.reason (or error.type) from an OpenSearch error
// body, falling back to the raw body.
func (e *HTTPStatusError) Reason() string {
	if e == nil {
		return ""
	}
	var body struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(e.Body), &body); err == nil {
		if body.Error.Reason != "" {
			return body.Error.Reason
		}
		if body.Error.Type != "" {
			return body.Error.Type
		}
	}
	if e.Body != "" {
		return e.Body
	}
	return http.StatusText(e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the cluster.
func IsNotFound(err error) bool {
	var statusErr *HTTPStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}
