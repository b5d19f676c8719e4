package client

import (
	"errors"
	"fmt"
	"net/http"
)

// maxErrBodySize caps the amount of response body read when
// building an error for an unexpected status code. This prevents
// unbounded memory usage when a large archive arrives with a
// wrong status.
const maxErrBodySize = 4 << 10 // 4KB

// execFn represents a func to operate on a response.
type execFn func(response *http.Response) error

var (
	// ErrRequestFailed is the sentinel error wrapped by [RequestFailedError].
	ErrRequestFailed = errors.New("request failed")
	// ErrAuthFailure is joined with [ErrRequestFailed] when the server
	// responds with 401 Unauthorized or 403 Forbidden.
	ErrAuthFailure = errors.New("auth failure")
	// ErrMalformedResponse marks a success-shaped response that is missing
	// something the caller relies on, such as a Location header or a
	// decodable JSON body.
	ErrMalformedResponse = errors.New("malformed response")
)

// RequestFailedError is returned when the HTTP response status code
// falls outside the set the call accepts.
type RequestFailedError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestFailedError) Error() string {
	return fmt.Sprintf("%v: %d, body: %s", e.Err, e.StatusCode, e.Body)
}

func (e *RequestFailedError) Unwrap() error {
	return e.Err
}

func newRequestFailed(statusCode int, body []byte) *RequestFailedError {
	err := ErrRequestFailed
	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		err = errors.Join(ErrRequestFailed, ErrAuthFailure)
	}

	return &RequestFailedError{
		StatusCode: statusCode,
		Body:       string(body),
		Err:        err,
	}
}
