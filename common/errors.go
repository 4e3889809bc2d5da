package common

import (
	"errors"
	"fmt"
)

// Failure classes surfaced by the API client. Match them with errors.Is.
var (
	ErrNetworkFailure  = errors.New("network failure")
	ErrRejected        = errors.New("request rejected")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// HTTPError is a custom error that captures unexpected status codes and response bodies.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.StatusCode, string(e.Body))
}

func (e *HTTPError) Is(target error) bool {
	return target == ErrRejected
}

// NetworkError wraps a transport-level failure, including context cancellation.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func (e *NetworkError) Is(target error) bool {
	return target == ErrNetworkFailure
}

// UnauthenticatedError reports that a 401 could not be recovered by a refresh.
// Original is the failure of the request that triggered the refresh. It does not
// unwrap, so the error never also matches ErrRejected or ErrNetworkFailure.
type UnauthenticatedError struct {
	Original error
	Cause    error
}

func (e *UnauthenticatedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("session expired: %v", e.Original)
	}
	return fmt.Sprintf("session expired: %v (refresh: %v)", e.Original, e.Cause)
}

func (e *UnauthenticatedError) Is(target error) bool {
	return target == ErrUnauthenticated
}

// StatusCode returns the HTTP status carried by err, or 0 when it has none.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}
