package api

import (
	"fmt"
	"net/http"
)

// StatusError is returned when the backend answered with a status other than
// 200. Message is the response body verbatim.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.StatusCode, e.Message)
}

// HTTPStatus returns the backend status code.
func (e *StatusError) HTTPStatus() int {
	return e.StatusCode
}

// TransportError is returned when no usable response was obtained: the
// request could not be sent, the connection failed or timed out, or a
// success body could not be decoded.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func statusError(op string, resp *http.Response, body []byte) *StatusError {
	return &StatusError{Op: op, StatusCode: resp.StatusCode, Message: string(body)}
}
