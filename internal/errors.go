package internal

import (
	"errors"
	"net/http"
)

// Dispatch and connection errors.
var (
	ErrResponseAlreadySent = errors.New("volt: response already sent")
	ErrNextCalledTwice     = errors.New("volt: next called more than once")
	ErrBodyTooLarge        = errors.New("volt: request body too large")
	ErrHijacked            = errors.New("volt: connection hijacked")
	ErrNotHijackable       = errors.New("volt: connection does not support hijacking")
	ErrClientNotFound      = errors.New("volt: client not found")
	ErrClientClosed        = errors.New("volt: client closed")
	ErrQueueClosed         = errors.New("volt: async queue closed")
	ErrQueueFull           = errors.New("volt: async queue full")
	ErrLaneClosed          = errors.New("volt: async lane closed")
	ErrNoUploadSink        = errors.New("volt: endpoint has no upload sink")
	ErrUploadConsumed      = errors.New("volt: multipart files parsed before an upload sink was set")
)

// HTTPError is an error carrying the status code it should be rendered with.
type HTTPError struct {
	// Err is the underlying error (logged, not shown to clients).
	Err error

	// Message is the client-facing message.
	Message string

	// RequestID is set by the error handler when a request ID is known.
	RequestID string

	// Code is the HTTP status code.
	Code int
}

func (e *HTTPError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

func (e *HTTPError) StatusCode() int {
	return e.Code
}

func (e *HTTPError) StatusText() string {
	return http.StatusText(e.Code)
}

// HTTPErrorOption configures an HTTPError.
type HTTPErrorOption func(*HTTPError)

// NewHTTPError creates an HTTPError with the given status code and message.
func NewHTTPError(code int, message string, opts ...HTTPErrorOption) *HTTPError {
	e := &HTTPError{Code: code, Message: message}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func WithError(err error) HTTPErrorOption {
	return func(e *HTTPError) {
		e.Err = err
	}
}

func WithRequestID(id string) HTTPErrorOption {
	return func(e *HTTPError) {
		e.RequestID = id
	}
}

// Convenience constructors for the status codes the dispatcher produces.

func ErrBadRequest(message string, opts ...HTTPErrorOption) *HTTPError {
	return NewHTTPError(http.StatusBadRequest, message, opts...)
}

func ErrUnauthorized(message string, opts ...HTTPErrorOption) *HTTPError {
	return NewHTTPError(http.StatusUnauthorized, message, opts...)
}

func ErrForbidden(message string, opts ...HTTPErrorOption) *HTTPError {
	return NewHTTPError(http.StatusForbidden, message, opts...)
}

func ErrNotFound(message string, opts ...HTTPErrorOption) *HTTPError {
	return NewHTTPError(http.StatusNotFound, message, opts...)
}

func ErrPayloadTooLarge(message string, opts ...HTTPErrorOption) *HTTPError {
	return NewHTTPError(http.StatusRequestEntityTooLarge, message, opts...)
}

func ErrInternal(message string, opts ...HTTPErrorOption) *HTTPError {
	return NewHTTPError(http.StatusInternalServerError, message, opts...)
}

func ErrServiceUnavailable(message string, opts ...HTTPErrorOption) *HTTPError {
	return NewHTTPError(http.StatusServiceUnavailable, message, opts...)
}

// AsHTTPError returns the first HTTPError in err's chain, or nil.
func AsHTTPError(err error) *HTTPError {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	return nil
}

// IsHTTPError reports whether err's chain contains an HTTPError.
func IsHTTPError(err error) bool {
	return AsHTTPError(err) != nil
}
