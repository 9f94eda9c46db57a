package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/dmitrymomot/volt/pkg/multipart"
	"github.com/dmitrymomot/volt/pkg/session"
)

// Request is one inbound HTTP request as seen by filters, middleware and
// handlers. Path and query reflect any rewrite applied before matching.
type Request struct {
	r         *http.Request
	conn      *Conn
	endpoint  *Endpoint
	logger    *slog.Logger
	body      []byte
	bodyErr   error
	paramsErr error
	params    ParamStore
	path      string
	query     string
	limits    Limits
	bodyOnce  sync.Once
	paramOnce sync.Once
	rewritten bool
	// Multipart file fields parsed without a sink.
	droppedFiles bool
	// Files with chunks written but no successful final write.
	unfinished map[string]struct{}
}

func newRequest(r *http.Request, conn *Conn, limits Limits, log *slog.Logger) *Request {
	return &Request{
		r:      r,
		conn:   conn,
		limits: limits,
		logger: log,
		path:   r.URL.Path,
		query:  r.URL.RawQuery,
	}
}

// HTTP returns the underlying *http.Request.
func (r *Request) HTTP() *http.Request {
	return r.r
}

// Context returns the request context.
func (r *Request) Context() context.Context {
	return r.r.Context()
}

// Method returns the request method.
func (r *Request) Method() string {
	return r.r.Method
}

// Path returns the effective request path.
func (r *Request) Path() string {
	return r.path
}

// RawQuery returns the effective query string without the "?".
func (r *Request) RawQuery() string {
	return r.query
}

// URI returns the effective path and query.
func (r *Request) URI() string {
	if r.query == "" {
		return r.path
	}
	return r.path + "?" + r.query
}

// OriginalURI returns the URI as received, before any rewrite.
func (r *Request) OriginalURI() string {
	return r.r.URL.RequestURI()
}

// Rewritten reports whether a rewrite changed the effective URI.
func (r *Request) Rewritten() bool {
	return r.rewritten
}

// Host returns the Host header.
func (r *Request) Host() string {
	return r.r.Host
}

// Header returns the first value of the named request header.
func (r *Request) Header(name string) string {
	return r.r.Header.Get(name)
}

// HasHeader reports whether the named request header is present.
func (r *Request) HasHeader(name string) bool {
	_, ok := r.r.Header[http.CanonicalHeaderKey(name)]
	return ok
}

// ContentType returns the Content-Type header.
func (r *Request) ContentType() string {
	return r.r.Header.Get("Content-Type")
}

// ContentLength returns the declared body length, or -1 if unknown.
func (r *Request) ContentLength() int64 {
	return r.r.ContentLength
}

// IsMultipart reports whether the body is multipart/form-data.
func (r *Request) IsMultipart() bool {
	mt, _, _ := mime.ParseMediaType(r.ContentType())
	return mt == "multipart/form-data"
}

// RemoteAddr returns the client address as host:port.
func (r *Request) RemoteAddr() string {
	return r.r.RemoteAddr
}

// RemoteIP returns the client IP without the port.
func (r *Request) RemoteIP() string {
	host, _, err := net.SplitHostPort(r.r.RemoteAddr)
	if err != nil {
		return r.r.RemoteAddr
	}
	return host
}

// Cookie returns the value of the named cookie.
func (r *Request) Cookie(name string) (string, bool) {
	c, err := r.r.Cookie(name)
	if err != nil {
		return "", false
	}
	return c.Value, true
}

// Conn returns the connection the request arrived on.
func (r *Request) Conn() *Conn {
	return r.conn
}

// Endpoint returns the matched endpoint, or nil before matching and for
// not-found requests.
func (r *Request) Endpoint() *Endpoint {
	return r.endpoint
}

// Logger returns the dispatcher logger.
func (r *Request) Logger() *slog.Logger {
	return r.logger
}

// Set stores a request-scoped value in the request context, so logger
// extractors can see it.
func (r *Request) Set(key, value any) {
	r.r = r.r.WithContext(context.WithValue(r.r.Context(), key, value))
}

// Get returns a value stored with Set.
func (r *Request) Get(key any) any {
	return r.r.Context().Value(key)
}

// Session returns the per-connection session.
func (r *Request) Session() (*session.Session, error) {
	return r.conn.Session(r.Context())
}

// ContentDisposition parses the Content-Disposition header.
func (r *Request) ContentDisposition() (string, map[string]string) {
	return multipart.ParseDisposition(r.Header("Content-Disposition"))
}

// Filename returns the upload file name for a raw-body upload: the
// Content-Disposition filename, then the "_filename" parameter, then the
// last path segment.
func (r *Request) Filename() string {
	if _, params := r.ContentDisposition(); params["filename"] != "" {
		return params["filename"]
	}
	if v := r.Param("_filename"); v != "" {
		return v
	}
	if i := strings.LastIndexByte(r.path, '/'); i >= 0 {
		return r.path[i+1:]
	}
	return r.path
}

// Body reads and buffers the request body once. Bodies larger than the
// request body limit fail with a 413 HTTPError wrapping ErrBodyTooLarge.
func (r *Request) Body() ([]byte, error) {
	r.bodyOnce.Do(func() {
		r.body, r.bodyErr = r.loadBody()
	})
	return r.body, r.bodyErr
}

func (r *Request) loadBody() ([]byte, error) {
	max := r.limits.MaxRequestBodySize
	if r.r.ContentLength > max {
		return nil, ErrPayloadTooLarge("Request body too large", WithError(ErrBodyTooLarge))
	}
	if r.r.Body == nil || r.r.ContentLength == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	chunk := make([]byte, min(int64(r.limits.ChunkSize), max+1))
	for {
		n, err := r.r.Body.Read(chunk)
		buf.Write(chunk[:n])
		if int64(buf.Len()) > max {
			return nil, ErrPayloadTooLarge("Request body too large", WithError(ErrBodyTooLarge))
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return buf.Bytes(), nil
		case isTimeout(err):
			if cerr := r.Context().Err(); cerr != nil {
				return nil, cerr
			}
		default:
			return nil, ErrBadRequest("Failed to read request body", WithError(err))
		}
	}
}

// BindJSON decodes a buffered JSON body into v.
func (r *Request) BindJSON(v any) error {
	body, err := r.Body()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return ErrBadRequest("Invalid JSON body", WithError(err))
	}
	return nil
}

// Params parses query, form and multipart parameters once and returns them.
// File fields of a multipart body are streamed to the endpoint's upload sink.
func (r *Request) Params() (*ParamStore, error) {
	r.paramOnce.Do(func() {
		r.paramsErr = r.loadParams(r.endpointSink())
	})
	return &r.params, r.paramsErr
}

// Param returns the first parameter named name, ignoring parse errors.
func (r *Request) Param(name string) string {
	p, _ := r.Params()
	return p.Value(name)
}

// Query returns the first query-string parameter named name. It does not
// touch the body.
func (r *Request) Query(name string) string {
	v, _ := url.ParseQuery(r.query)
	return v.Get(name)
}

// PostValue returns the first form or multipart text field named name.
func (r *Request) PostValue(name string) string {
	ps, _ := r.Params()
	p, _ := ps.Find(name, true, false)
	return p.Value
}

// HasParam reports whether a parameter with the given origin exists.
func (r *Request) HasParam(name string, isPost, isFile bool) bool {
	p, _ := r.Params()
	_, ok := p.Find(name, isPost, isFile)
	return ok
}

func (r *Request) endpointSink() UploadFunc {
	if r.endpoint == nil {
		return nil
	}
	return r.endpoint.uploadSink()
}

// parseParamsWith parses parameters with an explicit upload sink. Once
// parameters were parsed it only reports whether files were lost because
// no sink was set at the time.
func (r *Request) parseParamsWith(sink UploadFunc) error {
	r.paramOnce.Do(func() {
		r.paramsErr = r.loadParams(sink)
	})
	if r.paramsErr != nil {
		return r.paramsErr
	}
	if r.droppedFiles && sink != nil {
		return ErrInternal("Upload not stored", WithError(ErrUploadConsumed))
	}
	return nil
}

func (r *Request) loadParams(sink UploadFunc) error {
	if err := r.params.AddQuery(r.query, false); err != nil {
		r.logger.DebugContext(r.Context(), "skipped malformed query parameter", slog.Any("error", err))
	}

	switch r.Method() {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return nil
	}

	mt, _, _ := mime.ParseMediaType(r.ContentType())
	switch mt {
	case "application/x-www-form-urlencoded":
		body, err := r.Body()
		if err != nil {
			return err
		}
		if err := r.params.AddQuery(string(body), true); err != nil {
			r.logger.DebugContext(r.Context(), "skipped malformed form parameter", slog.Any("error", err))
		}
		return nil
	case "multipart/form-data":
		return r.loadMultipart(sink)
	}
	return nil
}

func (r *Request) loadMultipart(sink UploadFunc) error {
	opts := []multipart.Option{
		multipart.WithChunkSize(r.limits.ChunkSize),
		multipart.WithMaxUploadSize(r.limits.MaxUploadSize),
		multipart.WithFieldFunc(func(name, value string) {
			r.params.Add(Param{Name: name, Value: value, Size: int64(len(value)), IsPost: true})
		}),
		multipart.WithFileFunc(func(name, filename, _ string, size int64) {
			r.params.Add(Param{Name: name, Value: filename, Size: size, IsPost: true, IsFile: true})
			if sink == nil {
				r.droppedFiles = true
			}
		}),
	}
	if sink != nil {
		opts = append(opts, multipart.WithUploadFunc(func(filename string, offset int64, data []byte, last bool) error {
			return sink(r, filename, offset, data, last)
		}))
	}

	err := multipart.Process(r.Context(), r.r.Body, r.ContentType(), r.r.ContentLength, opts...)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, multipart.ErrTooLarge):
		return ErrPayloadTooLarge("Upload too large", WithError(err))
	case errors.Is(err, multipart.ErrSink):
		return ErrInternal("Failed to store upload", WithError(err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return ErrBadRequest("Malformed multipart body", WithError(err))
	}
}
