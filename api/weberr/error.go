package weberr

import (
	"net/http"
)

// ErrorResponse is the body of every failed request. Error is safe to
// show to the user.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RequestError marks err as caused by the request. The middleware logs
// these at info level.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string { return e.Err.Error() }

func (e *RequestError) Unwrap() error { return e.Err }

const (
	msgNotFound     = "not found"
	msgUnauthorized = "sign in to continue"
	msgInternal     = "something went wrong, please try again"
	msgBadRequest   = "the request could not be read"
)

// NewError wraps err with a status and a user facing message. Later opts
// take precedence, so callers cannot override the response set here.
func NewError(err error, msg string, status int, opts ...Opt) error {
	opts = append(opts, WithResponse(&ErrorResponse{Error: msg}, status))
	return Wrap(&RequestError{Err: err}, opts...)
}

func NotFound(err error, opts ...Opt) error {
	return NewError(err, msgNotFound, http.StatusNotFound, opts...)
}

func NotAuthorized(err error, opts ...Opt) error {
	return NewError(err, msgUnauthorized, http.StatusUnauthorized, opts...)
}

func InternalError(err error, opts ...Opt) error {
	return NewError(err, msgInternal, http.StatusInternalServerError, opts...)
}

func BadRequest(err error, opts ...Opt) error {
	return NewError(err, msgBadRequest, http.StatusBadRequest, opts...)
}

func Conflict(err error, msg string, opts ...Opt) error {
	return NewError(err, msg, http.StatusConflict, opts...)
}

// Unprocessable reports a well formed request the current state cannot
// satisfy. msg is shown to the user.
func Unprocessable(err error, msg string, opts ...Opt) error {
	return NewError(err, msg, http.StatusUnprocessableEntity, opts...)
}

func TooManyRequests(err error, msg string, opts ...Opt) error {
	return NewError(err, msg, http.StatusTooManyRequests, opts...)
}
