package adminapi

import (
	"errors"
	"fmt"
)

// ErrConnectionFailedTimeout is returned when GetData times out waiting on
// a refresh and no prior failure is on record to explain the wait.
var ErrConnectionFailedTimeout = errors.New("cloudsqlconn: connection attempt timed out waiting for certificate refresh")

// Kind tags the category of failure the admin API reported, mirroring the
// distinct error types the Java client raises from its AdminApi layer.
type Kind int

const (
	KindUnknown Kind = iota
	KindAdminAPIFailed
	KindInstanceNotAuthorized
	KindInstanceNotFound
	KindInvalidInstanceName
)

// APIError wraps a failure from the admin API fetch path with the
// operation that failed and a Kind a caller can switch on without string
// matching, the same tagging style the teacher's VaultError uses.
type APIError struct {
	Kind Kind
	Op   string
	Conn string
	Err  error
}

func (e *APIError) Error() string {
	if e.Conn != "" {
		return fmt.Sprintf("cloudsqlconn: %s (%s): %v", e.Op, e.Conn, e.Err)
	}
	return fmt.Sprintf("cloudsqlconn: %s: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// Is supports errors.Is against a sentinel APIError carrying only a Kind,
// e.g. errors.Is(err, &APIError{Kind: KindInstanceNotFound}).
func (e *APIError) Is(target error) bool {
	var t *APIError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// ConnectionFailedError is surfaced by Refresher.GetData when a timed-out
// wait has a known prior refresh failure to explain it, so callers see the
// root cause instead of a bare deadline-exceeded.
type ConnectionFailedError struct {
	Conn  string
	Cause error
}

func (e *ConnectionFailedError) Error() string {
	return fmt.Sprintf("cloudsqlconn: connection attempt to %s failed: %v", e.Conn, e.Cause)
}

func (e *ConnectionFailedError) Unwrap() error { return e.Cause }
