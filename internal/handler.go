package internal

// Handler is the terminal step of an endpoint.
type Handler interface {
	ServeRequest(req *Request, res *Response) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(req *Request, res *Response) error

// ServeRequest implements Handler.
func (f HandlerFunc) ServeRequest(req *Request, res *Response) error {
	return f(req, res)
}

// Next continues the middleware chain. It may be called at most once per
// middleware invocation; a second call returns ErrNextCalledTwice.
type Next func() error

// Middleware intercepts a request before the terminal handler. Returning
// without calling next short-circuits the chain.
type Middleware interface {
	Run(req *Request, res *Response, next Next) error
}

// MiddlewareFunc adapts a function to Middleware.
type MiddlewareFunc func(req *Request, res *Response, next Next) error

// Run implements Middleware.
func (f MiddlewareFunc) Run(req *Request, res *Response, next Next) error {
	return f(req, res, next)
}

// FilterFunc is a request predicate. Endpoints whose filters do not all pass
// are skipped during matching.
type FilterFunc func(req *Request) bool

// ErrorHandler renders an error returned from the chain.
// It runs only if the response has not been sent yet.
type ErrorHandler func(req *Request, res *Response, err error) error

// UploadFunc receives uploaded file chunks for an endpoint.
// offset is the position of data within the file; last is true exactly once
// per file, on the final chunk. data is only valid during the call.
type UploadFunc func(req *Request, filename string, offset int64, data []byte, last bool) error

// Routable registers endpoints on a dispatcher.
type Routable interface {
	Routes(d *Dispatcher)
}

// RoutesFunc adapts a function to Routable.
type RoutesFunc func(d *Dispatcher)

// Routes implements Routable.
func (f RoutesFunc) Routes(d *Dispatcher) {
	f(d)
}
