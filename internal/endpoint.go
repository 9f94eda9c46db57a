package internal

import (
	"net/http"
	"sync"
)

// MethodAny matches every request method.
const MethodAny = ""

// Endpoint binds a method and path pattern to a handler. It is configured
// through its chaining methods right after registration.
type Endpoint struct {
	matcher    Matcher
	handler    Handler
	upload     UploadFunc
	method     string
	pattern    string
	filters    []FilterFunc
	middleware []Middleware
	mu         *sync.RWMutex
}

// Method returns the endpoint's method, or MethodAny.
func (e *Endpoint) Method() string {
	return e.method
}

// Pattern returns the path pattern the endpoint was registered with.
func (e *Endpoint) Pattern() string {
	return e.pattern
}

// SetFilter adds a filter. Every filter must pass for the endpoint to match.
func (e *Endpoint) SetFilter(fn FilterFunc) *Endpoint {
	e.mu.Lock()
	e.filters = append(e.filters, fn)
	e.mu.Unlock()
	return e
}

// Use appends endpoint middleware. It runs after the dispatcher's global
// middleware.
func (e *Endpoint) Use(mw ...Middleware) *Endpoint {
	e.mu.Lock()
	e.middleware = append(e.middleware, mw...)
	e.mu.Unlock()
	return e
}

// SetMatcher replaces the default wildcard matcher.
func (e *Endpoint) SetMatcher(m Matcher) *Endpoint {
	e.mu.Lock()
	e.matcher = m
	e.mu.Unlock()
	return e
}

// OnUpload sets the sink for file fields of multipart bodies sent to this
// endpoint.
func (e *Endpoint) OnUpload(fn UploadFunc) *Endpoint {
	e.mu.Lock()
	e.upload = fn
	e.mu.Unlock()
	return e
}

// uploadReceiver is a handler that owns the sink for file fields.
type uploadReceiver interface {
	uploadSink() UploadFunc
}

// uploadSink returns the sink for file fields: the handler's own when it
// receives uploads, else the one set by OnUpload, else nil.
func (e *Endpoint) uploadSink() UploadFunc {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if u, ok := e.handler.(uploadReceiver); ok {
		if sink := u.uploadSink(); sink != nil {
			return sink
		}
	}
	return e.upload
}

// matches reports whether method and path select this endpoint.
// Callers hold the dispatcher read lock.
func (e *Endpoint) matches(method, path string) bool {
	if e.method != MethodAny && e.method != method {
		if !(e.method == http.MethodGet && method == http.MethodHead) {
			return false
		}
	}
	return e.matcher.Match(path)
}

// passFilters runs filters in order. A panicking filter counts as failed.
func passFilters(filters []FilterFunc, req *Request) bool {
	for _, fn := range filters {
		if !runFilter(fn, req) {
			return false
		}
	}
	return true
}

func runFilter(fn FilterFunc, req *Request) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			req.Logger().WarnContext(req.Context(), "request filter panicked",
				"panic", r,
				"path", req.Path())
			ok = false
		}
	}()
	return fn(req)
}
