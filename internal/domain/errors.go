package domain

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrPermissionDeny = errors.New("permission denied")
)

// HTTPError is a failure with a fixed status code and a default message that
// can be replaced per instance. Two HTTPErrors match with errors.Is when their
// status codes are equal.
type HTTPError struct {
	StatusCode     int
	DefaultMessage string
	Message        string
	Err            error
}

var (
	ErrRequestParse   = &HTTPError{StatusCode: http.StatusBadRequest, DefaultMessage: "Error parsing request."}
	ErrAuthentication = &HTTPError{StatusCode: http.StatusUnauthorized, DefaultMessage: "Unable to authenticate."}
	ErrAuthorization  = &HTTPError{StatusCode: http.StatusForbidden, DefaultMessage: "Unauthorized."}
	ErrMissing        = &HTTPError{StatusCode: http.StatusNotFound, DefaultMessage: "Not found."}
	ErrInternal       = &HTTPError{StatusCode: http.StatusInternalServerError, DefaultMessage: "Internal server error."}
)

func RequestParseError(message string) *HTTPError   { return ErrRequestParse.WithMessage(message) }
func AuthenticationError(message string) *HTTPError { return ErrAuthentication.WithMessage(message) }
func AuthorizationError(message string) *HTTPError  { return ErrAuthorization.WithMessage(message) }
func MissingError(message string) *HTTPError        { return ErrMissing.WithMessage(message) }

// WithMessage returns a copy of e whose public message is message. An empty
// message keeps the default.
func (e *HTTPError) WithMessage(message string) *HTTPError {
	cp := *e
	cp.Message = message
	return &cp
}

// Wrap returns a copy of e carrying err as its cause. The cause is never
// part of the public message.
func (e *HTTPError) Wrap(err error) *HTTPError {
	cp := *e
	cp.Err = err
	return &cp
}

// PublicMessage is the text sent to the caller.
func (e *HTTPError) PublicMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return e.DefaultMessage
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return e.PublicMessage() + ": " + e.Err.Error()
	}
	return e.PublicMessage()
}

func (e *HTTPError) Unwrap() error { return e.Err }

func (e *HTTPError) Is(target error) bool {
	t, ok := target.(*HTTPError)
	return ok && t.StatusCode == e.StatusCode
}

// AsHTTPError reports whether err carries an HTTPError anywhere in its chain.
func AsHTTPError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}
