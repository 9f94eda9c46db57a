package internal

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
)

// contentTypes covers the files a device UI typically ships. Anything else
// falls back to the system MIME table, then text/plain.
var contentTypes = map[string]string{
	".html":  "text/html",
	".htm":   "text/html",
	".css":   "text/css",
	".json":  "application/json",
	".js":    "application/javascript",
	".png":   "image/png",
	".gif":   "image/gif",
	".jpg":   "image/jpeg",
	".ico":   "image/x-icon",
	".svg":   "image/svg+xml",
	".eot":   "font/eot",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".xml":   "text/xml",
	".pdf":   "application/pdf",
	".zip":   "application/zip",
	".gz":    "application/x-gzip",
}

// ContentTypeFor returns the content type for a file name by extension.
func ContentTypeFor(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "text/plain"
}

// FileOption configures SendFile.
type FileOption func(*fileOptions)

type fileOptions struct {
	contentType   string
	headers       http.Header
	download      bool
	precompressed bool
}

// AsAttachment makes the browser save the file instead of rendering it.
func AsAttachment() FileOption {
	return func(o *fileOptions) {
		o.download = true
	}
}

// WithFileContentType overrides the content type derived from the name.
func WithFileContentType(ct string) FileOption {
	return func(o *fileOptions) {
		o.contentType = ct
	}
}

// precompressed sends name+".gz" as name without checking for name itself.
func precompressed() FileOption {
	return func(o *fileOptions) {
		o.precompressed = true
	}
}

// withFileHeaders adds headers to the file response.
func withFileHeaders(h http.Header) FileOption {
	return func(o *fileOptions) {
		o.headers = h
	}
}

// SendFile sends name from fsys. When name is missing but name+".gz"
// exists, and the file is not a download, the compressed file is sent with
// Content-Encoding: gzip. The body is copied in chunk-size pieces.
func (r *Response) SendFile(fsys fs.FS, name string, opts ...FileOption) error {
	o := &fileOptions{}
	for _, opt := range opts {
		opt(o)
	}

	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	served := name
	gzipped := false
	switch {
	case o.precompressed:
		served, gzipped = name+".gz", true
	case !o.download:
		if _, err := fs.Stat(fsys, name); errors.Is(err, fs.ErrNotExist) {
			if _, err := fs.Stat(fsys, name+".gz"); err == nil {
				served, gzipped = name+".gz", true
			}
		}
	}

	f, err := fsys.Open(served)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound("File not found", WithError(err))
		}
		return ErrInternal("Failed to open file", WithError(err))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ErrInternal("Failed to stat file", WithError(err))
	}
	if info.IsDir() {
		return ErrNotFound("File not found")
	}

	if err := r.begin(); err != nil {
		return err
	}

	h := r.w.Header()
	for k, vs := range o.headers {
		h[k] = vs
	}
	ct := o.contentType
	if ct == "" {
		ct = ContentTypeFor(name)
	}
	h.Set("Content-Type", ct)
	h.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	if gzipped {
		h.Set("Content-Encoding", "gzip")
	}
	disposition := "inline"
	if o.download {
		disposition = "attachment"
	}
	h.Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, path.Base(name)))

	r.w.WriteHeader(http.StatusOK)
	buf := make([]byte, r.limits.ChunkSize)
	if _, err := io.CopyBuffer(onlyWriter{r.w}, f, buf); err != nil {
		return fmt.Errorf("volt: send file %s: %w", served, err)
	}
	return nil
}

// onlyWriter hides ReadFrom so io.CopyBuffer uses the chunk buffer.
type onlyWriter struct {
	io.Writer
}
