package internal

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/dmitrymomot/volt/pkg/logger"
	"github.com/dmitrymomot/volt/pkg/session"
)

// DispatcherConfig is fixed when the dispatcher is created.
type DispatcherConfig struct {
	// Logger receives dispatch diagnostics. Defaults to a no-op logger.
	Logger *slog.Logger

	// SessionStore backs per-connection sessions. Nil keeps them in memory.
	SessionStore session.Store

	// ErrorHandler renders errors from the chain. Defaults to
	// DefaultErrorHandler.
	ErrorHandler ErrorHandler

	// NotFound handles requests no endpoint accepts. Defaults to a plain
	// 404 response.
	NotFound Handler

	// DefaultHeaders are added to every response that does not set them.
	DefaultHeaders http.Header

	// Limits bound body reads. Zero fields take the defaults.
	Limits Limits
}

// Dispatcher resolves each request to exactly one endpoint and runs its
// middleware chain. Registration may happen while serving.
type Dispatcher struct {
	conns        *ConnTracker
	logger       *slog.Logger
	errorHandler ErrorHandler
	notFound     Handler
	defaults     http.Header
	endpoints    []*Endpoint
	rewrites     []*Rewrite
	middleware   []Middleware
	limits       Limits
	mu           sync.RWMutex
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		logger:       cfg.Logger,
		errorHandler: cfg.ErrorHandler,
		notFound:     cfg.NotFound,
		defaults:     cfg.DefaultHeaders.Clone(),
		limits:       cfg.Limits.withDefaults(),
	}
	if d.logger == nil {
		d.logger = logger.NewNope()
	}
	if d.errorHandler == nil {
		d.errorHandler = DefaultErrorHandler
	}
	if d.notFound == nil {
		d.notFound = HandlerFunc(defaultNotFound)
	}
	d.conns = NewConnTracker(cfg.SessionStore, d.logger)
	return d
}

// Conns returns the connection tracker to install on http.Server.
func (d *Dispatcher) Conns() *ConnTracker {
	return d.conns
}

// Limits returns the effective request limits.
func (d *Dispatcher) Limits() Limits {
	return d.limits
}

// Logger returns the dispatcher logger.
func (d *Dispatcher) Logger() *slog.Logger {
	return d.logger
}

// On registers h for method and pattern. Use MethodAny for every method.
// Endpoints are tried in registration order, so register specific patterns
// before general ones.
func (d *Dispatcher) On(method, pattern string, h Handler) *Endpoint {
	e := &Endpoint{
		method:  method,
		pattern: pattern,
		matcher: Wildcard(pattern),
		handler: h,
		mu:      &d.mu,
	}
	d.mu.Lock()
	d.endpoints = append(d.endpoints, e)
	d.mu.Unlock()
	return e
}

func (d *Dispatcher) GET(pattern string, h HandlerFunc) *Endpoint {
	return d.On(http.MethodGet, pattern, h)
}

func (d *Dispatcher) POST(pattern string, h HandlerFunc) *Endpoint {
	return d.On(http.MethodPost, pattern, h)
}

func (d *Dispatcher) PUT(pattern string, h HandlerFunc) *Endpoint {
	return d.On(http.MethodPut, pattern, h)
}

func (d *Dispatcher) PATCH(pattern string, h HandlerFunc) *Endpoint {
	return d.On(http.MethodPatch, pattern, h)
}

func (d *Dispatcher) DELETE(pattern string, h HandlerFunc) *Endpoint {
	return d.On(http.MethodDelete, pattern, h)
}

func (d *Dispatcher) ANY(pattern string, h HandlerFunc) *Endpoint {
	return d.On(MethodAny, pattern, h)
}

// RemoveEndpoint unregisters e. It reports whether e was registered.
func (d *Dispatcher) RemoveEndpoint(e *Endpoint) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, cur := range d.endpoints {
		if cur == e {
			d.endpoints = append(d.endpoints[:i], d.endpoints[i+1:]...)
			return true
		}
	}
	return false
}

// Endpoints returns the registered endpoints in matching order.
func (d *Dispatcher) Endpoints() []*Endpoint {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*Endpoint(nil), d.endpoints...)
}

// Rewrite maps requests for the path from to the URI to before matching.
// Only the first matching rewrite applies.
func (d *Dispatcher) Rewrite(from, to string) *Rewrite {
	rw := newRewrite(from, to)
	d.mu.Lock()
	d.rewrites = append(d.rewrites, rw)
	d.mu.Unlock()
	return rw
}

// RemoveRewrite unregisters rw. It reports whether rw was registered.
func (d *Dispatcher) RemoveRewrite(rw *Rewrite) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, cur := range d.rewrites {
		if cur == rw {
			d.rewrites = append(d.rewrites[:i], d.rewrites[i+1:]...)
			return true
		}
	}
	return false
}

// Use appends global middleware. It runs for every request, before the
// endpoint's own middleware.
func (d *Dispatcher) Use(mw ...Middleware) {
	d.mu.Lock()
	d.middleware = append(d.middleware, mw...)
	d.mu.Unlock()
}

// Mount lets each Routable register its endpoints.
func (d *Dispatcher) Mount(rs ...Routable) {
	for _, r := range rs {
		r.Routes(d)
	}
}

// Resolve applies the first matching rewrite to req and returns the first
// endpoint whose method, matcher and filters all accept it, or nil.
// Filters run without the dispatcher lock, so they may register or remove
// endpoints. While a filter runs, req is bound to the endpoint under test.
func (d *Dispatcher) Resolve(req *Request) *Endpoint {
	type candidate struct {
		e       *Endpoint
		filters []FilterFunc
	}

	d.mu.RLock()
	for _, rw := range d.rewrites {
		if rw.match(req) {
			rw.apply(req)
			break
		}
	}
	var candidates []candidate
	for _, e := range d.endpoints {
		if e.matches(req.Method(), req.path) {
			candidates = append(candidates, candidate{e: e, filters: slices.Clip(e.filters)})
		}
	}
	d.mu.RUnlock()

	for _, c := range candidates {
		req.endpoint = c.e
		if passFilters(c.filters, req) {
			return c.e
		}
	}
	req.endpoint = nil
	return nil
}

// ServeHTTP implements http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn := ConnFromContext(r.Context())
	if conn == nil {
		conn = d.conns.Ephemeral(r)
		r = r.WithContext(WithConn(r.Context(), conn))
		defer conn.Release(context.WithoutCancel(r.Context()))
	}

	req := newRequest(r, conn, d.limits, d.logger)
	res := newResponse(NewResponseWriter(w), d.defaults, d.limits)

	err := d.dispatch(req, res)
	if err != nil {
		d.handleError(req, res, err)
	}
	if !res.Sent() {
		if err := res.Commit(); err != nil {
			d.logger.WarnContext(req.Context(), "response commit failed", slog.Any("error", err))
		}
	}

	if err := conn.persist(context.WithoutCancel(req.Context())); err != nil {
		d.logger.WarnContext(req.Context(), "session persist failed", slog.Any("error", err))
	}
}

func (d *Dispatcher) dispatch(req *Request, res *Response) error {
	ep := d.Resolve(req)

	d.mu.RLock()
	chain := append([]Middleware(nil), d.middleware...)
	var h Handler
	if ep != nil {
		chain = append(chain, ep.middleware...)
		h = ep.handler
	} else {
		h = d.notFound
	}
	d.mu.RUnlock()

	req.endpoint = ep
	return runChain(req, res, chain, h)
}

// runChain calls chain[0], whose next calls chain[1], and so on down to h.
// Each next may run only once.
func runChain(req *Request, res *Response, chain []Middleware, h Handler) error {
	var step func(i int) error
	step = func(i int) error {
		if i == len(chain) {
			return h.ServeRequest(req, res)
		}
		var once sync.Once
		next := func() error {
			err := ErrNextCalledTwice
			once.Do(func() {
				err = step(i + 1)
			})
			return err
		}
		return chain[i].Run(req, res, next)
	}
	return step(0)
}

func (d *Dispatcher) handleError(req *Request, res *Response, err error) {
	if res.Sent() {
		d.logger.WarnContext(req.Context(), "error after response was sent",
			slog.String("path", req.Path()),
			slog.Any("error", err))
		return
	}
	if herr := d.errorHandler(req, res, err); herr != nil {
		d.logger.ErrorContext(req.Context(), "error handler failed",
			slog.Any("error", herr),
			slog.Any("original_error", err))
		if !res.Sent() {
			_ = res.Send(http.StatusInternalServerError, "text/plain; charset=utf-8", http.StatusText(http.StatusInternalServerError))
		}
	}
}

func defaultNotFound(_ *Request, res *Response) error {
	return res.Send(http.StatusNotFound, "text/plain; charset=utf-8", http.StatusText(http.StatusNotFound))
}

// DefaultErrorHandler sends the HTTPError's code and message, or 500 for
// any other error.
func DefaultErrorHandler(req *Request, res *Response, err error) error {
	if herr := AsHTTPError(err); herr != nil {
		if herr.Code >= http.StatusInternalServerError {
			req.Logger().ErrorContext(req.Context(), "request failed",
				slog.Int("status", herr.Code),
				slog.Any("error", err))
		}
		msg := herr.Message
		if msg == "" {
			msg = http.StatusText(herr.Code)
		}
		return res.Send(herr.Code, "text/plain; charset=utf-8", msg)
	}

	req.Logger().ErrorContext(req.Context(), "request failed", slog.Any("error", err))
	return res.Send(http.StatusInternalServerError, "text/plain; charset=utf-8", http.StatusText(http.StatusInternalServerError))
}
