package internal

import (
	"io/fs"
	"math/bits"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
)

type staticFileKey struct{}

// staticFile is the file a static endpoint's filter found for a request.
type staticFile struct {
	name    string
	size    int64
	gzipped bool
}

// gzipStats remembers whether recent hits were compressed and decides
// which variant to look for first.
type gzipStats struct {
	mu        sync.Mutex
	history   uint64
	mask      uint64
	threshold int
	first     bool
}

func newGzipStats(width, threshold int) *gzipStats {
	if width <= 0 || width > 64 {
		width = 8
	}
	mask := ^uint64(0)
	if width < 64 {
		mask = (uint64(1) << width) - 1
	}
	if threshold < 0 || threshold >= width {
		threshold = width / 2
	}
	return &gzipStats{
		history:   mask &^ 0x7,
		mask:      mask,
		threshold: threshold,
	}
}

func (g *gzipStats) gzipFirst() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.first
}

func (g *gzipStats) record(gzipped bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.history = (g.history << 1) & g.mask
	if gzipped {
		g.history |= 1
	}
	switch g.history {
	case 0:
		g.first = false
	case g.mask:
		g.first = true
	default:
		g.first = bits.OnesCount64(g.history) > g.threshold
	}
}

// StaticOption configures a static file endpoint.
type StaticOption func(*StaticHandler)

// WithDefaultFile sets the file served for directory requests. Empty
// disables directory requests. Defaults to index.html.
func WithDefaultFile(name string) StaticOption {
	return func(h *StaticHandler) {
		h.defaultFile = name
	}
}

// WithCacheControl sets the Cache-Control header and enables ETag checks.
func WithCacheControl(v string) StaticOption {
	return func(h *StaticHandler) {
		h.cacheControl = v
	}
}

// WithLastModified sets a fixed Last-Modified value (an HTTP date) used for
// If-Modified-Since checks.
func WithLastModified(v string) StaticOption {
	return func(h *StaticHandler) {
		h.lastModified = v
	}
}

// WithGzipHistory tunes the gzip-first heuristic: the last width hits are
// remembered and compressed files are tried first while more than
// threshold of them were compressed.
func WithGzipHistory(width, threshold int) StaticOption {
	return func(h *StaticHandler) {
		h.gzip = newGzipStats(width, threshold)
	}
}

// StaticHandler serves files from an fs.FS under a URI prefix.
type StaticHandler struct {
	fsys         fs.FS
	gzip         *gzipStats
	uri          string
	defaultFile  string
	cacheControl string
	lastModified string
}

// NewStaticHandler creates a handler serving fsys under uri.
func NewStaticHandler(uri string, fsys fs.FS, opts ...StaticOption) *StaticHandler {
	h := &StaticHandler{
		fsys:        fsys,
		uri:         uri,
		defaultFile: "index.html",
		gzip:        newGzipStats(8, 4),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Static serves fsys under uri for GET and HEAD. Requests for files that do
// not exist fall through to later endpoints.
func (d *Dispatcher) Static(uri string, fsys fs.FS, opts ...StaticOption) *Endpoint {
	h := NewStaticHandler(uri, fsys, opts...)
	pattern := uri
	if !strings.HasSuffix(pattern, "*") {
		pattern += "*"
	}
	return d.On(http.MethodGet, pattern, h).SetFilter(h.Exists)
}

// Exists is the endpoint filter: it looks the request up and remembers the
// file it found on the request.
func (h *StaticHandler) Exists(req *Request) bool {
	rel, ok := strings.CutPrefix(req.Path(), strings.TrimSuffix(h.uri, "*"))
	if !ok {
		return false
	}
	rel = strings.TrimPrefix(rel, "/")
	dirRequest := rel == "" || strings.HasSuffix(rel, "/")

	if !dirRequest {
		if f, ok := h.find(cleanRel(rel)); ok {
			req.Set(staticFileKey{}, f)
			return true
		}
	}
	if h.defaultFile == "" {
		return false
	}
	f, ok := h.find(cleanRel(path.Join(rel, h.defaultFile)))
	if ok {
		req.Set(staticFileKey{}, f)
	}
	return ok
}

func cleanRel(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

// find tries name and name+".gz" in the order the heuristic prefers.
func (h *StaticHandler) find(name string) (staticFile, bool) {
	candidates := [2]staticFile{{name: name}, {name: name + ".gz", gzipped: true}}
	if h.gzip.gzipFirst() {
		candidates[0], candidates[1] = candidates[1], candidates[0]
	}
	for _, c := range candidates {
		info, err := fs.Stat(h.fsys, c.name)
		if err != nil || info.IsDir() {
			continue
		}
		c.size = info.Size()
		h.gzip.record(c.gzipped)
		return c, true
	}
	return staticFile{}, false
}

// ServeRequest sends the file found by Exists, or 304 when the client copy
// is current.
func (h *StaticHandler) ServeRequest(req *Request, res *Response) error {
	f, ok := req.Get(staticFileKey{}).(staticFile)
	if !ok {
		return ErrNotFound("File not found")
	}

	etag := strconv.Quote(strconv.FormatInt(f.size, 10))
	if h.lastModified != "" && req.Header("If-Modified-Since") == h.lastModified {
		return res.SendCode(http.StatusNotModified)
	}
	if h.cacheControl != "" && etagMatch(req.Header("If-None-Match"), etag) {
		res.SetHeader("Cache-Control", h.cacheControl)
		res.SetHeader("ETag", etag)
		return res.SendCode(http.StatusNotModified)
	}

	headers := http.Header{}
	headers.Set("ETag", etag)
	if h.lastModified != "" {
		headers.Set("Last-Modified", h.lastModified)
	}
	if h.cacheControl != "" {
		headers.Set("Cache-Control", h.cacheControl)
	}

	if f.gzipped {
		return res.SendFile(h.fsys, strings.TrimSuffix(f.name, ".gz"), withFileHeaders(headers), precompressed())
	}
	return res.SendFile(h.fsys, f.name, withFileHeaders(headers))
}

// etagMatch compares an If-None-Match value against etag, accepting the
// unquoted form too.
func etagMatch(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, v := range strings.Split(header, ",") {
		v = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), "W/"))
		if v == "*" || v == etag || strconv.Quote(v) == etag {
			return true
		}
	}
	return false
}
