package volt

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/dmitrymomot/volt/internal"
	"github.com/dmitrymomot/volt/middlewares"
	"github.com/dmitrymomot/volt/pkg/logger"
	"github.com/dmitrymomot/volt/pkg/session"
)

// Type aliases - public API
type (
	// App orchestrates the server lifecycle: outer router, health
	// endpoints, scheduled tasks and graceful shutdown.
	App = internal.App

	// Dispatcher matches requests to endpoints and runs the middleware chain.
	Dispatcher = internal.Dispatcher

	// DispatcherConfig configures a standalone Dispatcher.
	DispatcherConfig = internal.DispatcherConfig

	// Endpoint is a registered method and URI pattern.
	Endpoint = internal.Endpoint

	// Rewrite maps one exact path to another before matching.
	Rewrite = internal.Rewrite

	// Request is the inbound request as seen by filters, middleware and handlers.
	Request = internal.Request

	// Response is the outbound response of one request.
	Response = internal.Response

	// Stream is a chunked response body.
	Stream = internal.Stream

	// ResponseWriter wraps http.ResponseWriter with status tracking and hooks.
	ResponseWriter = internal.ResponseWriter

	// Handler is the terminal step of an endpoint.
	Handler = internal.Handler

	// HandlerFunc adapts a function to Handler.
	HandlerFunc = internal.HandlerFunc

	// Middleware intercepts requests before the handler.
	Middleware = internal.Middleware

	// MiddlewareFunc adapts a function to Middleware.
	MiddlewareFunc = internal.MiddlewareFunc

	// Next continues the middleware chain.
	Next = internal.Next

	// FilterFunc is a request predicate attached to an endpoint.
	FilterFunc = internal.FilterFunc

	// ErrorHandler renders errors returned from the chain.
	ErrorHandler = internal.ErrorHandler

	// UploadFunc receives uploaded file chunks.
	UploadFunc = internal.UploadFunc

	// Routable registers endpoints on a dispatcher.
	Routable = internal.Routable

	// RoutesFunc adapts a function to Routable.
	RoutesFunc = internal.RoutesFunc

	// Matcher decides whether an endpoint accepts a path.
	Matcher = internal.Matcher

	// MatcherFunc adapts a function to Matcher.
	MatcherFunc = internal.MatcherFunc

	// Param is one decoded request parameter.
	Param = internal.Param

	// ParamStore holds a request's parameters in order.
	ParamStore = internal.ParamStore

	// Limits bounds request body and upload sizes.
	Limits = internal.Limits

	// Option configures the application.
	Option = internal.Option

	// RunOption configures the server runtime.
	RunOption = internal.RunOption

	// HealthOption configures health check endpoints.
	HealthOption = internal.HealthOption

	// CheckFunc is a readiness check.
	CheckFunc = internal.CheckFunc

	// TaskFunc is a scheduled task.
	TaskFunc = internal.TaskFunc

	// Scheduler runs tasks on cron schedules.
	Scheduler = internal.Scheduler

	// Conn is the per-connection state shared by requests on one connection.
	Conn = internal.Conn

	// ConnTracker follows connections of an http.Server.
	ConnTracker = internal.ConnTracker

	// Client is a push client of an EventSource or WebSocket handler.
	Client = internal.Client

	// ClientRegistry holds the clients of one push handler.
	ClientRegistry = internal.ClientRegistry

	// AsyncQueue delivers work in order per key.
	AsyncQueue = internal.AsyncQueue

	// WorkItem is one unit of AsyncQueue work.
	WorkItem = internal.WorkItem

	// EventSource serves Server-Sent Events.
	EventSource = internal.EventSource

	// EventSourceClient is one connected event-stream client.
	EventSourceClient = internal.EventSourceClient

	// EventSourceOption configures an EventSource.
	EventSourceOption = internal.EventSourceOption

	// WebSocket serves WebSocket connections.
	WebSocket = internal.WebSocket

	// WebSocketClient is one connected WebSocket client.
	WebSocketClient = internal.WebSocketClient

	// WebSocketOption configures a WebSocket handler.
	WebSocketOption = internal.WebSocketOption

	// Frame is one WebSocket message.
	Frame = internal.Frame

	// UploadHandler receives raw or multipart uploads.
	UploadHandler = internal.UploadHandler

	// StaticHandler serves files from an fs.FS.
	StaticHandler = internal.StaticHandler

	// StaticOption configures a static file endpoint.
	StaticOption = internal.StaticOption

	// FileOption configures Response.SendFile.
	FileOption = internal.FileOption

	// AuthMode selects Basic or Digest authentication.
	AuthMode = internal.AuthMode

	// HTTPError carries the status code an error renders with.
	HTTPError = internal.HTTPError

	// HTTPErrorOption configures an HTTPError.
	HTTPErrorOption = internal.HTTPErrorOption

	// Extractor tries several sources for one request value.
	Extractor = internal.Extractor

	// ExtractorSource pulls a value from a request.
	ExtractorSource = internal.ExtractorSource

	// ContextExtractor extracts a slog attribute from context.
	// Used with WithLogger to add request-scoped values to logs.
	ContextExtractor = logger.ContextExtractor

	// Scalar lists the types typed parameter helpers convert to.
	Scalar = internal.Scalar

	// Session holds per-connection values.
	Session = session.Session

	// SessionStore persists sessions.
	SessionStore = session.Store
)

// Authentication modes.
const (
	AuthBasic  = internal.AuthBasic
	AuthDigest = internal.AuthDigest
)

// WebSocket frame types.
const (
	TextFrame   = internal.TextFrame
	BinaryFrame = internal.BinaryFrame
)

// MethodAny registers an endpoint for every method.
const MethodAny = internal.MethodAny

// DefaultRealm is the realm of challenges that name none.
const DefaultRealm = internal.DefaultRealm

// Errors for checking return values.
var (
	ErrResponseAlreadySent = internal.ErrResponseAlreadySent
	ErrNextCalledTwice     = internal.ErrNextCalledTwice
	ErrBodyTooLarge        = internal.ErrBodyTooLarge
	ErrHijacked            = internal.ErrHijacked
	ErrNotHijackable       = internal.ErrNotHijackable
	ErrClientNotFound      = internal.ErrClientNotFound
	ErrClientClosed        = internal.ErrClientClosed
	ErrQueueClosed         = internal.ErrQueueClosed
	ErrQueueFull           = internal.ErrQueueFull
	ErrLaneClosed          = internal.ErrLaneClosed
	ErrNoUploadSink        = internal.ErrNoUploadSink
	ErrUploadConsumed      = internal.ErrUploadConsumed
)

// Constructors

// New creates a new application with the given options.
// The App is immutable after creation; endpoints may still be added to its
// Dispatcher.
//
// Example:
//
//	app := volt.New(
//	    volt.WithLogger("voltd", volt.RequestIDExtractor()),
//	    volt.WithMiddleware(middlewares.RequestID(), middlewares.Recover()),
//	    volt.WithRoutes(device.NewHandler(store)),
//	)
//
//	err := app.Run(":8080")
func New(opts ...Option) *App {
	return internal.New(opts...)
}

// NewDispatcher creates a dispatcher for use without App, for example
// behind an existing http.Server. Set the server's ConnContext and
// ConnState from Dispatcher.Conns to get per-connection sessions.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	return internal.NewDispatcher(cfg)
}

// NewEventSource creates a Server-Sent Events handler.
//
//	events := volt.NewEventSource(log)
//	d.GET("/events", events.ServeRequest)
//	events.Send("21.5", "temperature", 0, 0)
func NewEventSource(log *slog.Logger, opts ...EventSourceOption) *EventSource {
	return internal.NewEventSource(log, opts...)
}

// NewWebSocket creates a WebSocket handler.
func NewWebSocket(log *slog.Logger, opts ...WebSocketOption) *WebSocket {
	return internal.NewWebSocket(log, opts...)
}

// NewUploadHandler creates an upload handler writing to sink.
func NewUploadHandler(sink UploadFunc) *UploadHandler {
	return internal.NewUploadHandler(sink)
}

// NewStaticHandler creates a handler serving fsys under uri. Most callers
// want Dispatcher.Static instead.
func NewStaticHandler(uri string, fsys fs.FS, opts ...StaticOption) *StaticHandler {
	return internal.NewStaticHandler(uri, fsys, opts...)
}

// NewClientRegistry creates an empty client registry.
func NewClientRegistry(log *slog.Logger) *ClientRegistry {
	return internal.NewClientRegistry(log)
}

// NewAsyncQueue creates a per-key ordered work queue.
func NewAsyncQueue(depth int, log *slog.Logger) *AsyncQueue {
	return internal.NewAsyncQueue(depth, log)
}

// NewScheduler creates a stopped cron scheduler.
func NewScheduler(log *slog.Logger) *Scheduler {
	return internal.NewScheduler(log)
}

// NewMemorySessionStore creates an in-process session store.
func NewMemorySessionStore() SessionStore {
	return session.NewMemoryStore()
}

// DefaultLimits returns the default request limits.
func DefaultLimits() Limits {
	return internal.DefaultLimits()
}

// App options

// WithMiddleware adds global middleware. They run in the order provided,
// before endpoint middleware.
func WithMiddleware(mw ...Middleware) Option {
	return internal.WithMiddleware(mw...)
}

// WithRoutes registers Routables whose Routes method adds endpoints.
func WithRoutes(rs ...Routable) Option {
	return internal.WithRoutes(rs...)
}

// WithErrorHandler sets a custom error handler.
func WithErrorHandler(h ErrorHandler) Option {
	return internal.WithErrorHandler(h)
}

// WithNotFoundHandler sets the handler for requests no endpoint matched.
// It runs after global middleware.
func WithNotFoundHandler(h HandlerFunc) Option {
	return internal.WithNotFoundHandler(h)
}

// WithDefaultHeaders sets headers added to every response that does not set
// them itself.
//
//	volt.WithDefaultHeaders(map[string]string{"Server": "volt"})
func WithDefaultHeaders(headers map[string]string) Option {
	return internal.WithDefaultHeaders(headers)
}

// WithLimits overrides request body and upload limits. Zero fields keep
// their defaults.
func WithLimits(l Limits) Option {
	return internal.WithLimits(l)
}

// WithSessionStore sets where per-connection sessions are kept. Defaults to
// an in-process store.
func WithSessionStore(store SessionStore) Option {
	return internal.WithSessionStore(store)
}

// WithHealthChecks enables health check endpoints with optional configuration.
// Liveness (/health/live): Always returns OK if process is running.
// Readiness (/health/ready): Runs all configured checks.
//
// Example:
//
//	volt.WithHealthChecks(
//	    volt.WithReadinessCheck("redis", redis.Healthcheck(client)),
//	)
func WithHealthChecks(opts ...HealthOption) Option {
	return internal.WithHealthChecks(opts...)
}

// WithSchedule runs fn on a cron schedule while the server runs.
//
//	volt.WithSchedule("uptime", "@every 30s", func(ctx context.Context) error {
//	    events.Send(uptime(), "uptime", 0, 0)
//	    return nil
//	})
func WithSchedule(name, spec string, fn TaskFunc) Option {
	return internal.WithSchedule(name, spec, fn)
}

// WithShutdown registers a hook run after the server stops accepting
// requests.
func WithShutdown(fn func(context.Context) error) Option {
	return internal.WithShutdown(fn)
}

// WithLogger creates a logger with a component name and optional extractors.
// The component name is added to every log entry for easy filtering.
//
// Example:
//
//	volt.New(
//	    volt.WithLogger("voltd", volt.RequestIDExtractor(), volt.ConnIDExtractor()),
//	)
func WithLogger(component string, extractors ...ContextExtractor) Option {
	return internal.WithLogger(component, extractors...)
}

// WithCustomLogger sets a fully custom logger.
func WithCustomLogger(l *slog.Logger) Option {
	return internal.WithCustomLogger(l)
}

// Health check options

// WithLivenessPath sets a custom liveness endpoint path.
// Defaults to "/health/live".
func WithLivenessPath(path string) HealthOption {
	return internal.WithLivenessPath(path)
}

// WithReadinessPath sets a custom readiness endpoint path.
// Defaults to "/health/ready".
func WithReadinessPath(path string) HealthOption {
	return internal.WithReadinessPath(path)
}

// WithReadinessCheck adds a named readiness check.
func WithReadinessCheck(name string, fn CheckFunc) HealthOption {
	return internal.WithReadinessCheck(name, fn)
}

// WithHealthTimeout bounds one readiness probe.
func WithHealthTimeout(d time.Duration) HealthOption {
	return internal.WithHealthTimeout(d)
}

// Run options

// Address sets the listen address used when Run gets an empty one.
func Address(addr string) RunOption {
	return internal.Address(addr)
}

// Logger sets the server lifecycle logger.
func Logger(l *slog.Logger) RunOption {
	return internal.Logger(l)
}

// ShutdownTimeout bounds graceful shutdown. Defaults to 30s.
func ShutdownTimeout(d time.Duration) RunOption {
	return internal.ShutdownTimeout(d)
}

// ShutdownHook registers a hook run during graceful shutdown.
func ShutdownHook(fn func(context.Context) error) RunOption {
	return internal.ShutdownHook(fn)
}

// StartupHook registers a hook run after the listener is open and before
// the server accepts requests.
func StartupHook(fn func(context.Context) error) RunOption {
	return internal.StartupHook(fn)
}

// WithContext sets the base context whose cancellation stops the server.
func WithContext(ctx context.Context) RunOption {
	return internal.WithContext(ctx)
}

// Endpoint options

// Exact matches one path.
func Exact(pattern string) Matcher {
	return internal.Exact(pattern)
}

// Wildcard matches a pattern with an optional "*" tail and "?" optional
// character.
func Wildcard(pattern string) Matcher {
	return internal.Wildcard(pattern)
}

// Regexp matches paths a regular expression accepts in full.
func Regexp(expr string) (Matcher, error) {
	return internal.Regexp(expr)
}

// MustRegexp is like Regexp but panics on an invalid expression.
func MustRegexp(expr string) Matcher {
	return internal.MustRegexp(expr)
}

// HostFilter accepts requests for the given hosts. "*.example.com" matches
// any subdomain.
func HostFilter(hosts ...string) FilterFunc {
	return internal.HostFilter(hosts...)
}

// HeaderFilter accepts requests whose header equals value.
func HeaderFilter(name, value string) FilterFunc {
	return internal.HeaderFilter(name, value)
}

// LocalAddrFilter accepts requests that arrived on a local address in prefix.
func LocalAddrFilter(prefix netip.Prefix) FilterFunc {
	return internal.LocalAddrFilter(prefix)
}

// RemoteAddrFilter accepts requests from clients in prefix.
func RemoteAddrFilter(prefix netip.Prefix) FilterFunc {
	return internal.RemoteAddrFilter(prefix)
}

// LocalOnlyFilter accepts requests from loopback, private and link-local
// addresses.
func LocalOnlyFilter(req *Request) bool {
	return internal.LocalOnlyFilter(req)
}

// Static options

// WithDefaultFile sets the file served for directory requests.
func WithDefaultFile(name string) StaticOption {
	return internal.WithDefaultFile(name)
}

// WithCacheControl sets Cache-Control and enables ETag checks.
func WithCacheControl(v string) StaticOption {
	return internal.WithCacheControl(v)
}

// WithLastModified sets a fixed Last-Modified date.
func WithLastModified(v string) StaticOption {
	return internal.WithLastModified(v)
}

// WithGzipHistory tunes the gzip-first heuristic.
func WithGzipHistory(width, threshold int) StaticOption {
	return internal.WithGzipHistory(width, threshold)
}

// File options

// AsAttachment makes SendFile offer the file as a download.
func AsAttachment() FileOption {
	return internal.AsAttachment()
}

// WithFileContentType overrides the content type SendFile derives.
func WithFileContentType(ct string) FileOption {
	return internal.WithFileContentType(ct)
}

// ContentTypeFor returns the content type for a file name.
func ContentTypeFor(name string) string {
	return internal.ContentTypeFor(name)
}

// Push options

// WithEventQueue delivers events through q instead of writing inline.
func WithEventQueue(q *AsyncQueue) EventSourceOption {
	return internal.WithEventQueue(q)
}

// WithEventWriteTimeout bounds one event write.
func WithEventWriteTimeout(d time.Duration) EventSourceOption {
	return internal.WithEventWriteTimeout(d)
}

// EncodeEvent renders one SSE frame.
func EncodeEvent(message, event string, id uint64, retry time.Duration) []byte {
	return internal.EncodeEvent(message, event, id, retry)
}

// WithSubprotocols sets the WebSocket subprotocols offered during upgrade.
func WithSubprotocols(protocols ...string) WebSocketOption {
	return internal.WithSubprotocols(protocols...)
}

// WithCheckOrigin sets the WebSocket origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) WebSocketOption {
	return internal.WithCheckOrigin(fn)
}

// WithMaxMessageSize limits inbound WebSocket messages.
func WithMaxMessageSize(n int64) WebSocketOption {
	return internal.WithMaxMessageSize(n)
}

// Errors

// NewHTTPError creates an HTTPError.
func NewHTTPError(code int, message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.NewHTTPError(code, message, opts...)
}

// WithError attaches the underlying error to an HTTPError.
func WithError(err error) HTTPErrorOption {
	return internal.WithError(err)
}

// WithRequestID tags an HTTPError with the request it belongs to.
func WithRequestID(id string) HTTPErrorOption {
	return internal.WithRequestID(id)
}

// ErrBadRequest creates a 400 HTTPError.
func ErrBadRequest(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrBadRequest(message, opts...)
}

// ErrUnauthorized creates a 401 HTTPError.
func ErrUnauthorized(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrUnauthorized(message, opts...)
}

// ErrForbidden creates a 403 HTTPError.
func ErrForbidden(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrForbidden(message, opts...)
}

// ErrNotFound creates a 404 HTTPError.
func ErrNotFound(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrNotFound(message, opts...)
}

// ErrPayloadTooLarge creates a 413 HTTPError.
func ErrPayloadTooLarge(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrPayloadTooLarge(message, opts...)
}

// ErrInternal creates a 500 HTTPError.
func ErrInternal(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrInternal(message, opts...)
}

// ErrServiceUnavailable creates a 503 HTTPError.
func ErrServiceUnavailable(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrServiceUnavailable(message, opts...)
}

// AsHTTPError returns the HTTPError in err's chain, or nil.
func AsHTTPError(err error) *HTTPError {
	return internal.AsHTTPError(err)
}

// IsHTTPError reports whether err's chain holds an HTTPError.
func IsHTTPError(err error) bool {
	return internal.IsHTTPError(err)
}

// DefaultErrorHandler renders HTTPErrors with their code and everything
// else as 500.
func DefaultErrorHandler(req *Request, res *Response, err error) error {
	return internal.DefaultErrorHandler(req, res, err)
}

// Logging

// RequestIDExtractor adds request_id to log entries. Pair it with
// middlewares.RequestID.
func RequestIDExtractor() ContextExtractor {
	return middlewares.RequestIDExtractor()
}

// ConnIDExtractor adds conn_id to log entries.
func ConnIDExtractor() ContextExtractor {
	return internal.ConnIDExtractor()
}

// Extractors

// NewExtractor tries sources in order and returns the first value found.
//
//	token := volt.NewExtractor(volt.FromBearerToken(), volt.FromQuery("token"))
func NewExtractor(sources ...ExtractorSource) Extractor {
	return internal.NewExtractor(sources...)
}

// FromHeader reads a request header.
func FromHeader(name string) ExtractorSource { return internal.FromHeader(name) }

// FromQuery reads a query parameter.
func FromQuery(name string) ExtractorSource { return internal.FromQuery(name) }

// FromCookie reads a cookie.
func FromCookie(name string) ExtractorSource { return internal.FromCookie(name) }

// FromParam reads any request parameter.
func FromParam(name string) ExtractorSource { return internal.FromParam(name) }

// FromForm reads a form or multipart text field.
func FromForm(name string) ExtractorSource { return internal.FromForm(name) }

// FromSession reads a connection session value.
func FromSession(key string) ExtractorSource { return internal.FromSession(key) }

// FromBearerToken reads the token of an "Authorization: Bearer" header.
func FromBearerToken() ExtractorSource { return internal.FromBearerToken() }

// Typed helpers

// RequestValue returns a value stored with Request.Set, or T's zero value.
func RequestValue[T any](req *Request, key any) T {
	return internal.RequestValue[T](req, key)
}

// ClientValue returns a client value, or T's zero value.
func ClientValue[T any](c *Client, key string) T {
	return internal.ClientValue[T](c, key)
}

// ParamValue converts a request parameter to T. Conversion failures yield
// T's zero value.
//
//	relay := volt.ParamValue[int](req, "relay")
func ParamValue[T Scalar](req *Request, name string) T {
	return internal.ParamValue[T](req, name)
}

// QueryValue converts a query-string parameter to T.
func QueryValue[T Scalar](req *Request, name string) T {
	return internal.Query[T](req, name)
}

// ParamDefault converts a request parameter to T, or returns defaultValue
// when it is missing or does not convert.
func ParamDefault[T Scalar](req *Request, name string, defaultValue T) T {
	return internal.ParamDefault(req, name, defaultValue)
}
