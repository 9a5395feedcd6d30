package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
)

// APIError is a problem details response from the admin API.
type APIError struct {
	StatusCode int    `json:"status"`
	Title      string `json:"title"`
	Detail     string `json:"detail,omitempty"`

	// Code is the connection error code, e.g. "NotFound" or "Busy".
	Code string `json:"code,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := e.Title
	if e.Detail != "" {
		msg = e.Detail
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	return msg
}

// IsAuthError returns true if this is an authentication error.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// IsNotFound returns true if this is a not found error.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsPermissionDenied returns true if the server refused access.
func (e *APIError) IsPermissionDenied() bool {
	return e.StatusCode == http.StatusForbidden
}

// IsBusy returns true if the object was in use.
func (e *APIError) IsBusy() bool {
	return e.StatusCode == http.StatusConflict
}

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// parseError builds an APIError from a failed response. Bodies that are
// not problem details (e.g. http.Error output) become the title.
func parseError(status int, body []byte) error {
	var apiErr APIError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Title != "" {
		apiErr.StatusCode = status
		return &apiErr
	}
	title := strings.TrimSpace(string(body))
	if title == "" {
		title = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Title: title}
}
