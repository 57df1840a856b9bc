package square

import (
	"fmt"
	"net/http"
	"strings"
)

// Error is one entry of a Square "errors" array.
type Error struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Detail   string `json:"detail,omitempty"`
	Field    string `json:"field,omitempty"`
}

// APIError is a non-2xx response from Square.
type APIError struct {
	StatusCode int
	Errors     []Error
	Body       string
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("API request failed: %d - %s", e.StatusCode, e.Body)
	}
	details := make([]string, 0, len(e.Errors))
	for _, se := range e.Errors {
		details = append(details, fmt.Sprintf("%s: %s", se.Code, se.Detail))
	}
	return fmt.Sprintf("API request failed: %d - %s", e.StatusCode, strings.Join(details, "; "))
}

// Transient reports whether the request may succeed if repeated.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// SchemaError means a response did not match the expected shape. It is
// never retried and callers treat it as fatal.
type SchemaError struct {
	Op  string
	Err error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema violation in %s: %v", e.Op, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}
