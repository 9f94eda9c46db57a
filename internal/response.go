package internal

import (
	"bufio"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
)

// Response accumulates the status, headers and body of the single answer a
// request gets. After one of the Send methods runs, further sends fail with
// ErrResponseAlreadySent.
type Response struct {
	w           *ResponseWriter
	defaults    http.Header
	contentType string
	body        []byte
	limits      Limits
	code        int
	sent        bool
}

// newResponse wraps w. Default headers are applied just before the status
// line is written and never override a header the handler set.
func newResponse(w *ResponseWriter, defaults http.Header, limits Limits) *Response {
	res := &Response{w: w, defaults: defaults, limits: limits, code: http.StatusOK}
	if len(defaults) > 0 {
		w.OnBeforeWrite(func() {
			h := w.Header()
			for k, vs := range defaults {
				if _, ok := h[k]; ok {
					continue
				}
				h[k] = append([]string(nil), vs...)
			}
		})
	}
	return res
}

// Code returns the pending status code.
func (r *Response) Code() int {
	return r.code
}

// SetCode sets the status code used by Commit.
func (r *Response) SetCode(code int) *Response {
	r.code = code
	return r
}

// ContentType returns the pending content type.
func (r *Response) ContentType() string {
	return r.contentType
}

// SetContentType sets the content type used by Commit.
func (r *Response) SetContentType(ct string) *Response {
	r.contentType = ct
	return r
}

// SetContent sets the body used by Commit.
func (r *Response) SetContent(body []byte) *Response {
	r.body = body
	return r
}

// Header returns the response header map.
func (r *Response) Header() http.Header {
	return r.w.Header()
}

// SetHeader replaces a response header.
func (r *Response) SetHeader(key, value string) *Response {
	r.w.Header().Set(key, value)
	return r
}

// AddHeader appends a response header value.
func (r *Response) AddHeader(key, value string) *Response {
	r.w.Header().Add(key, value)
	return r
}

// SetCookie adds a Set-Cookie header.
func (r *Response) SetCookie(c *http.Cookie) *Response {
	http.SetCookie(r.w, c)
	return r
}

// mergedHeader returns the handler's headers plus any default header the
// handler did not set. Used when headers are written by hand after a hijack.
func (r *Response) mergedHeader() http.Header {
	h := r.w.Header().Clone()
	for k, vs := range r.defaults {
		if _, ok := h[k]; !ok {
			h[k] = append([]string(nil), vs...)
		}
	}
	return h
}

// Sent reports whether the response has been written or the connection
// hijacked.
func (r *Response) Sent() bool {
	return r.sent || r.w.Written() || r.w.Hijacked()
}

// Status returns the status code that went out, once sent.
func (r *Response) Status() int {
	return r.w.Status()
}

// Size returns the body bytes written so far.
func (r *Response) Size() int64 {
	return r.w.Size()
}

// Hijacked reports whether the connection was taken over.
func (r *Response) Hijacked() bool {
	return r.w.Hijacked()
}

// begin claims the response. It fails if anything was sent already.
func (r *Response) begin() error {
	if r.w.Hijacked() {
		return ErrHijacked
	}
	if r.Sent() {
		return ErrResponseAlreadySent
	}
	r.sent = true
	return nil
}

// Commit sends the pending status, content type and body.
func (r *Response) Commit() error {
	if err := r.begin(); err != nil {
		return err
	}
	h := r.w.Header()
	if r.contentType != "" {
		h.Set("Content-Type", r.contentType)
	}
	h.Set("Content-Length", strconv.Itoa(len(r.body)))
	r.w.WriteHeader(r.code)
	if len(r.body) == 0 {
		return nil
	}
	_, err := r.w.Write(r.body)
	return err
}

// Send sends body with the given status and content type.
func (r *Response) Send(code int, contentType, body string) error {
	return r.SendBytes(code, contentType, []byte(body))
}

// SendBytes sends body with the given status and content type.
func (r *Response) SendBytes(code int, contentType string, body []byte) error {
	r.code, r.contentType, r.body = code, contentType, body
	return r.Commit()
}

// SendCode sends an empty response.
func (r *Response) SendCode(code int) error {
	return r.SendBytes(code, "", nil)
}

// SendJSON encodes v and sends it as application/json.
func (r *Response) SendJSON(code int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return ErrInternal("Failed to encode response", WithError(err))
	}
	return r.SendBytes(code, "application/json", body)
}

// Redirect sends a redirect to url.
func (r *Response) Redirect(code int, url string) error {
	r.w.Header().Set("Location", url)
	return r.SendCode(code)
}

// Stream sends the status line and returns a writer whose output goes out
// in chunks of the stream chunk size. Close flushes what remains.
func (r *Response) Stream(code int, contentType string) (*Stream, error) {
	if err := r.begin(); err != nil {
		return nil, err
	}
	if contentType != "" {
		r.w.Header().Set("Content-Type", contentType)
	}
	r.w.Header().Del("Content-Length")
	r.w.WriteHeader(code)
	return &Stream{buf: bufio.NewWriterSize(flushWriter{r.w}, r.limits.StreamChunkSize)}, nil
}

// Writer returns the raw writer for code that needs net/http directly.
// Anything written through it counts as the response.
func (r *Response) Writer() http.ResponseWriter {
	return r.w
}

// Hijack takes over the connection. The response counts as sent.
func (r *Response) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if r.Sent() {
		return nil, nil, ErrResponseAlreadySent
	}
	conn, rw, err := r.w.Hijack()
	if err != nil {
		return nil, nil, err
	}
	r.sent = true
	return conn, rw, nil
}

// Stream is a chunked response body.
type Stream struct {
	buf *bufio.Writer
}

// Write buffers p, sending full chunks as they fill.
func (s *Stream) Write(p []byte) (int, error) {
	return s.buf.Write(p)
}

// WriteString buffers str.
func (s *Stream) WriteString(str string) (int, error) {
	return s.buf.WriteString(str)
}

// Close sends any buffered bytes.
func (s *Stream) Close() error {
	return s.buf.Flush()
}

// flushWriter pushes every write to the client.
type flushWriter struct {
	w *ResponseWriter
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if err != nil {
		return n, err
	}
	f.w.Flush()
	return n, nil
}
