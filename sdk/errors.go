package mailq

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is returned when the API responds with a non-success status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mailq: HTTP %d: %s", e.StatusCode, e.Message)
}

// IsInvalidAddress reports whether err is the server rejecting the recipient.
func IsInvalidAddress(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest
}

// IsUnavailable reports whether the server could not reach its task store.
func IsUnavailable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable
}
