package internal_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/volt/internal"
)

func webFS() fstest.MapFS {
	return fstest.MapFS{
		"index.html":          {Data: []byte("<h1>home</h1>")},
		"app.js.gz":           {Data: []byte("\x1f\x8bcompressed")},
		"style.css":           {Data: []byte("body{}")},
		"settings/index.html": {Data: []byte("<h1>settings</h1>")},
		"docs/manual.pdf":     {Data: []byte("%PDF")},
	}
}

func TestStatic(t *testing.T) {
	t.Parallel()

	newDispatcher := func(opts ...internal.StaticOption) *internal.Dispatcher {
		d := internal.NewDispatcher(internal.DispatcherConfig{})
		d.Static("/", webFS(), opts...)
		d.GET("/api/*", text("api"))
		return d
	}

	t.Run("plain file", func(t *testing.T) {
		t.Parallel()

		w := serve(newDispatcher(), httptest.NewRequest(http.MethodGet, "/style.css", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "text/css", w.Header().Get("Content-Type"))
		require.Equal(t, `"6"`, w.Header().Get("ETag"))
		require.Empty(t, w.Header().Get("Content-Encoding"))
		require.Equal(t, "body{}", w.Body.String())
	})

	t.Run("compressed variant", func(t *testing.T) {
		t.Parallel()

		w := serve(newDispatcher(), httptest.NewRequest(http.MethodGet, "/app.js", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
		require.Equal(t, "application/javascript", w.Header().Get("Content-Type"))
		require.Equal(t, "\x1f\x8bcompressed", w.Body.String())
	})

	t.Run("default file", func(t *testing.T) {
		t.Parallel()

		d := newDispatcher()
		w := serve(d, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, "<h1>home</h1>", w.Body.String())

		w = serve(d, httptest.NewRequest(http.MethodGet, "/settings/", nil))
		require.Equal(t, "<h1>settings</h1>", w.Body.String())

		w = serve(d, httptest.NewRequest(http.MethodGet, "/settings", nil))
		require.Equal(t, "<h1>settings</h1>", w.Body.String())
	})

	t.Run("directory requests disabled", func(t *testing.T) {
		t.Parallel()

		w := serve(newDispatcher(internal.WithDefaultFile("")), httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing file falls through", func(t *testing.T) {
		t.Parallel()

		w := serve(newDispatcher(), httptest.NewRequest(http.MethodGet, "/api/status", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "api", w.Body.String())
	})

	t.Run("path traversal stays inside", func(t *testing.T) {
		t.Parallel()

		w := serve(newDispatcher(), httptest.NewRequest(http.MethodGet, "/docs/../style.css", nil))
		require.Equal(t, "body{}", w.Body.String())
	})

	t.Run("if-none-match", func(t *testing.T) {
		t.Parallel()

		d := newDispatcher(internal.WithCacheControl("max-age=600"))
		req := httptest.NewRequest(http.MethodGet, "/style.css", nil)
		req.Header.Set("If-None-Match", `"6"`)
		w := serve(d, req)
		require.Equal(t, http.StatusNotModified, w.Code)
		require.Equal(t, "max-age=600", w.Header().Get("Cache-Control"))
		require.Empty(t, w.Body.String())

		req = httptest.NewRequest(http.MethodGet, "/style.css", nil)
		req.Header.Set("If-None-Match", `"7"`)
		w = serve(d, req)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "max-age=600", w.Header().Get("Cache-Control"))
	})

	t.Run("etag ignored without cache control", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/style.css", nil)
		req.Header.Set("If-None-Match", `"6"`)
		require.Equal(t, http.StatusOK, serve(newDispatcher(), req).Code)
	})

	t.Run("if-modified-since", func(t *testing.T) {
		t.Parallel()

		const stamp = "Mon, 05 Oct 2026 10:00:00 GMT"
		d := newDispatcher(internal.WithLastModified(stamp))

		w := serve(d, httptest.NewRequest(http.MethodGet, "/style.css", nil))
		require.Equal(t, stamp, w.Header().Get("Last-Modified"))

		req := httptest.NewRequest(http.MethodGet, "/style.css", nil)
		req.Header.Set("If-Modified-Since", stamp)
		require.Equal(t, http.StatusNotModified, serve(d, req).Code)
	})

	t.Run("under a prefix", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{})
		d.Static("/www", webFS())

		w := serve(d, httptest.NewRequest(http.MethodGet, "/www/docs/manual.pdf", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "application/pdf", w.Header().Get("Content-Type"))

		require.Equal(t, http.StatusNotFound, serve(d, httptest.NewRequest(http.MethodGet, "/style.css", nil)).Code)
	})

	t.Run("post is not served", func(t *testing.T) {
		t.Parallel()

		w := serve(newDispatcher(), httptest.NewRequest(http.MethodPost, "/style.css", nil))
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSendFile(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"config.json":    {Data: []byte(`{"ssid":"home"}`)},
		"report.html.gz": {Data: []byte("gz-bytes")},
		"firmware.bin":   {Data: []byte{0x01, 0x02}},
		"dir/a.txt":      {Data: []byte("a")},
	}

	send := func(name string, opts ...internal.FileOption) internal.HandlerFunc {
		return func(_ *internal.Request, res *internal.Response) error {
			return res.SendFile(fsys, name, opts...)
		}
	}

	tests := []struct {
		name        string
		handler     internal.HandlerFunc
		code        int
		contentType string
		encoding    string
		disposition string
		body        string
	}{
		{
			name:        "inline with type from extension",
			handler:     send("config.json"),
			code:        http.StatusOK,
			contentType: "application/json",
			disposition: `inline; filename="config.json"`,
			body:        `{"ssid":"home"}`,
		},
		{
			name:        "attachment",
			handler:     send("config.json", internal.AsAttachment()),
			code:        http.StatusOK,
			contentType: "application/json",
			disposition: `attachment; filename="config.json"`,
			body:        `{"ssid":"home"}`,
		},
		{
			name:        "gzip fallback",
			handler:     send("report.html"),
			code:        http.StatusOK,
			contentType: "text/html",
			encoding:    "gzip",
			disposition: `inline; filename="report.html"`,
			body:        "gz-bytes",
		},
		{
			name:    "no gzip fallback for downloads",
			handler: send("report.html", internal.AsAttachment()),
			code:    http.StatusNotFound,
		},
		{
			name:        "content type override",
			handler:     send("firmware.bin", internal.WithFileContentType("application/octet-stream")),
			code:        http.StatusOK,
			contentType: "application/octet-stream",
			disposition: `inline; filename="firmware.bin"`,
			body:        "\x01\x02",
		},
		{
			name:    "missing",
			handler: send("nope.txt"),
			code:    http.StatusNotFound,
		},
		{
			name:    "directory",
			handler: send("dir"),
			code:    http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := internal.NewDispatcher(internal.DispatcherConfig{})
			d.GET("/file", tt.handler)
			w := serve(d, httptest.NewRequest(http.MethodGet, "/file", nil))

			require.Equal(t, tt.code, w.Code)
			if tt.code != http.StatusOK {
				return
			}
			require.Equal(t, tt.contentType, w.Header().Get("Content-Type"))
			require.Equal(t, tt.encoding, w.Header().Get("Content-Encoding"))
			require.Equal(t, tt.disposition, w.Header().Get("Content-Disposition"))
			require.Equal(t, tt.body, w.Body.String())
		})
	}
}

func TestContentTypeFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, "text/html", internal.ContentTypeFor("INDEX.HTML"))
	require.Equal(t, "image/svg+xml", internal.ContentTypeFor("logo.svg"))
	require.Equal(t, "font/woff2", internal.ContentTypeFor("a.woff2"))
	require.Equal(t, "text/plain", internal.ContentTypeFor("README"))
}
