package resource

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wonny/sigapi/internal/poller"
)

// HTTPError is returned for every non-2xx response
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("API request error: %s %s: status %d: %s", e.Method, e.URL, e.StatusCode, strings.TrimSpace(e.Body))
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not an *HTTPError
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

// PreconditionError means correlated identifiers were missing before a network call
type PreconditionError struct {
	Op      string
	Missing []string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: missing required %s", e.Op, strings.Join(e.Missing, " and "))
}

// RemoteFailureError is returned when the server reports FAILED for an object
type RemoteFailureError struct {
	SessionID string
	ObjectID  string
	Message   string
}

func (e *RemoteFailureError) Error() string {
	return fmt.Sprintf("SigTech API Error - session_id : %s - object_id : %s - Message : %s", e.SessionID, e.ObjectID, e.Message)
}

// Unwrap lets errors.Is(err, poller.ErrFailed) match
func (e *RemoteFailureError) Unwrap() error {
	return poller.ErrFailed
}
