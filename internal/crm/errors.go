package crm

import (
	"errors"
	"fmt"
)

// ErrRefreshFailed wraps any failure of the OAuth refresh exchange:
// rejected refresh token, network failure, or a malformed token response.
var ErrRefreshFailed = errors.New("crm: token refresh failed")

// APIError is a structured CRM API failure. Callers special-case
// authentication failures (401 or code INVALID_TOKEN) for the
// refresh-and-retry-once path.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("crm: api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("crm: api error %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) IsAuth() bool {
	return e.StatusCode == 401 || e.Code == "INVALID_TOKEN"
}

// IsAuthError reports whether err is a CRM authentication failure.
func IsAuthError(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.IsAuth()
}
