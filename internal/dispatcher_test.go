package internal_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/volt/internal"
)

func TestDispatcher_Matching(t *testing.T) {
	t.Parallel()

	t.Run("first registered endpoint wins", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{})
		d.GET("/api/*", text("prefix"))
		d.GET("/api/status", text("exact"))

		w := serve(d, httptest.NewRequest(http.MethodGet, "/api/status", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "prefix", w.Body.String())
	})

	t.Run("method must match", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{})
		d.POST("/config", text("post"))
		d.ANY("/config", text("any"))

		require.Equal(t, "post", serve(d, httptest.NewRequest(http.MethodPost, "/config", nil)).Body.String())
		require.Equal(t, "any", serve(d, httptest.NewRequest(http.MethodDelete, "/config", nil)).Body.String())
	})

	t.Run("GET endpoint answers HEAD", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{})
		d.GET("/status", text("ok"))

		w := serve(d, httptest.NewRequest(http.MethodHead, "/status", nil))
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("optional character before wildcard", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{})
		d.GET("/files/?*", text("files"))

		for _, path := range []string{"/files", "/files/", "/files/a.txt"} {
			w := serve(d, httptest.NewRequest(http.MethodGet, path, nil))
			require.Equal(t, http.StatusOK, w.Code, path)
		}
		require.Equal(t, http.StatusNotFound, serve(d, httptest.NewRequest(http.MethodGet, "/file", nil)).Code)
	})

	t.Run("regexp matcher", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{})
		d.GET("", text("sensor")).SetMatcher(internal.MustRegexp(`/sensors/[0-9]+`))

		require.Equal(t, http.StatusOK, serve(d, httptest.NewRequest(http.MethodGet, "/sensors/12", nil)).Code)
		require.Equal(t, http.StatusNotFound, serve(d, httptest.NewRequest(http.MethodGet, "/sensors/12/x", nil)).Code)
	})

	t.Run("invalid regexp", func(t *testing.T) {
		t.Parallel()

		_, err := internal.Regexp(`/[`)
		require.Error(t, err)
	})

	t.Run("removed endpoint no longer matches", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{})
		e := d.GET("/tmp", text("tmp"))
		require.True(t, d.RemoveEndpoint(e))
		require.False(t, d.RemoveEndpoint(e))
		require.Empty(t, d.Endpoints())
		require.Equal(t, http.StatusNotFound, serve(d, httptest.NewRequest(http.MethodGet, "/tmp", nil)).Code)
	})
}

func TestDispatcher_Filters(t *testing.T) {
	t.Parallel()

	t.Run("failed filter continues the scan", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{})
		d.GET("/", text("admin")).SetFilter(internal.HeaderFilter("X-Admin", "1"))
		d.GET("/", text("public"))

		require.Equal(t, "public", serve(d, httptest.NewRequest(http.MethodGet, "/", nil)).Body.String())

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Admin", "1")
		require.Equal(t, "admin", serve(d, req).Body.String())
	})

	t.Run("panicking filter counts as false", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{})
		d.GET("/", text("never")).SetFilter(func(*internal.Request) bool { panic("boom") })
		d.GET("/", text("fallback"))

		w := serve(d, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, "fallback", w.Body.String())
	})

	t.Run("host filter", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{})
		d.GET("/", text("tenant")).SetFilter(internal.HostFilter("*.device.local"))
		d.GET("/", text("setup")).SetFilter(internal.HostFilter("setup.local"))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = "kitchen.device.local:8080"
		require.Equal(t, "tenant", serve(d, req).Body.String())

		req = httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = "SETUP.local"
		require.Equal(t, "setup", serve(d, req).Body.String())

		req = httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = "device.local"
		require.Equal(t, http.StatusNotFound, serve(d, req).Code)
	})

	t.Run("remote address filters", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{})
		d.GET("/lan", text("lan")).SetFilter(internal.RemoteAddrFilter(netip.MustParsePrefix("192.168.4.0/24")))
		d.GET("/local", text("local")).SetFilter(internal.LocalOnlyFilter)

		req := httptest.NewRequest(http.MethodGet, "/lan", nil)
		req.RemoteAddr = "192.168.4.20:5000"
		require.Equal(t, http.StatusOK, serve(d, req).Code)

		req = httptest.NewRequest(http.MethodGet, "/lan", nil)
		req.RemoteAddr = "10.0.0.2:5000"
		require.Equal(t, http.StatusNotFound, serve(d, req).Code)

		req = httptest.NewRequest(http.MethodGet, "/local", nil)
		req.RemoteAddr = "8.8.8.8:5000"
		require.Equal(t, http.StatusNotFound, serve(d, req).Code)

		req = httptest.NewRequest(http.MethodGet, "/local", nil)
		req.RemoteAddr = "127.0.0.1:5000"
		require.Equal(t, http.StatusOK, serve(d, req).Code)
	})

	t.Run("filter may change the endpoint table", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{})
		var late *internal.Endpoint
		first := d.GET("/", text("first"))
		first.SetFilter(func(*internal.Request) bool {
			if late == nil {
				late = d.GET("/late", text("late"))
				first.SetFilter(func(*internal.Request) bool { return false })
			}
			return false
		})
		d.GET("/", text("second"))

		done := make(chan *httptest.ResponseRecorder, 1)
		go func() { done <- serve(d, httptest.NewRequest(http.MethodGet, "/", nil)) }()
		select {
		case w := <-done:
			require.Equal(t, "second", w.Body.String())
		case <-time.After(2 * time.Second):
			t.Fatal("dispatch blocked while a filter updated the dispatcher")
		}

		require.Equal(t, "late", serve(d, httptest.NewRequest(http.MethodGet, "/late", nil)).Body.String())
		require.Len(t, d.Endpoints(), 3)
	})
}

func TestDispatcher_Rewrite(t *testing.T) {
	t.Parallel()

	t.Run("rewrites path and appends params", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{})
		d.Rewrite("/", "/index.html?lang=en")
		d.GET("/index.html", func(req *internal.Request, res *internal.Response) error {
			require.True(t, req.Rewritten())
			require.Equal(t, "/?v=1", req.OriginalURI())
			require.Equal(t, "/index.html", req.Path())
			require.Equal(t, "1", req.Param("v"))
			require.Equal(t, "en", req.Param("lang"))
			return res.Send(http.StatusOK, "text/plain", "index")
		})

		w := serve(d, httptest.NewRequest(http.MethodGet, "/?v=1", nil))
		require.Equal(t, "index", w.Body.String())
	})

	t.Run("only the first matching rewrite applies", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{})
		d.Rewrite("/a", "/b")
		d.Rewrite("/b", "/c")
		d.GET("/b", text("b"))
		d.GET("/c", text("c"))

		require.Equal(t, "b", serve(d, httptest.NewRequest(http.MethodGet, "/a", nil)).Body.String())
	})

	t.Run("filtered rewrite", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{})
		d.Rewrite("/", "/mobile").SetFilter(internal.HeaderFilter("X-Mobile", ""))
		d.GET("/mobile", text("mobile"))
		d.GET("/", text("desktop"))

		require.Equal(t, "desktop", serve(d, httptest.NewRequest(http.MethodGet, "/", nil)).Body.String())

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Mobile", "yes")
		require.Equal(t, "mobile", serve(d, req).Body.String())
	})

	t.Run("removed rewrite", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{})
		rw := d.Rewrite("/", "/x")
		require.Equal(t, "/x", rw.To())
		require.True(t, d.RemoveRewrite(rw))
		d.GET("/", text("root"))
		require.Equal(t, "root", serve(d, httptest.NewRequest(http.MethodGet, "/", nil)).Body.String())
	})
}

func record(mu *sync.Mutex, log *[]string, name string) internal.MiddlewareFunc {
	return func(req *internal.Request, res *internal.Response, next internal.Next) error {
		mu.Lock()
		*log = append(*log, name)
		mu.Unlock()
		return next()
	}
}

func TestDispatcher_Chain(t *testing.T) {
	t.Parallel()

	t.Run("global middleware runs before endpoint middleware", func(t *testing.T) {
		t.Parallel()

		var (
			mu    sync.Mutex
			order []string
		)
		d := internal.NewDispatcher(internal.DispatcherConfig{})
		d.Use(record(&mu, &order, "g1"), record(&mu, &order, "g2"))
		d.GET("/", func(req *internal.Request, res *internal.Response) error {
			order = append(order, "handler")
			return res.SendCode(http.StatusNoContent)
		}).Use(record(&mu, &order, "e1"))

		w := serve(d, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusNoContent, w.Code)
		require.Equal(t, []string{"g1", "g2", "e1", "handler"}, order)
	})

	t.Run("not found goes through global middleware", func(t *testing.T) {
		t.Parallel()

		var (
			mu    sync.Mutex
			order []string
		)
		d := internal.NewDispatcher(internal.DispatcherConfig{
			NotFound: text("custom 404"),
		})
		d.Use(record(&mu, &order, "g"))

		w := serve(d, httptest.NewRequest(http.MethodGet, "/missing", nil))
		require.Equal(t, "custom 404", w.Body.String())
		require.Equal(t, []string{"g"}, order)
	})

	t.Run("short circuit skips the handler", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{})
		d.Use(internal.MiddlewareFunc(func(req *internal.Request, res *internal.Response, next internal.Next) error {
			return res.Send(http.StatusForbidden, "text/plain", "denied")
		}))
		called := false
		d.GET("/", func(req *internal.Request, res *internal.Response) error {
			called = true
			return nil
		})

		w := serve(d, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusForbidden, w.Code)
		require.False(t, called)
	})

	t.Run("next runs at most once", func(t *testing.T) {
		t.Parallel()

		calls := 0
		var second error
		d := internal.NewDispatcher(internal.DispatcherConfig{})
		d.Use(internal.MiddlewareFunc(func(req *internal.Request, res *internal.Response, next internal.Next) error {
			if err := next(); err != nil {
				return err
			}
			second = next()
			return nil
		}))
		d.GET("/", func(req *internal.Request, res *internal.Response) error {
			calls++
			return res.SendCode(http.StatusOK)
		})

		serve(d, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, 1, calls)
		require.ErrorIs(t, second, internal.ErrNextCalledTwice)
	})

	t.Run("unsent response is committed after the chain", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{})
		d.GET("/", func(req *internal.Request, res *internal.Response) error {
			res.SetCode(http.StatusAccepted).SetContentType("text/plain").SetContent([]byte("later"))
			return nil
		})

		w := serve(d, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusAccepted, w.Code)
		require.Equal(t, "later", w.Body.String())
		require.Equal(t, "5", w.Header().Get("Content-Length"))
	})
}

func TestDispatcher_Responses(t *testing.T) {
	t.Parallel()

	t.Run("second send fails", func(t *testing.T) {
		t.Parallel()

		var second error
		d := internal.NewDispatcher(internal.DispatcherConfig{})
		d.GET("/", func(req *internal.Request, res *internal.Response) error {
			require.NoError(t, res.Send(http.StatusOK, "text/plain", "first"))
			second = res.Send(http.StatusTeapot, "text/plain", "second")
			return nil
		})

		w := serve(d, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, "first", w.Body.String())
		require.ErrorIs(t, second, internal.ErrResponseAlreadySent)
	})

	t.Run("http error keeps its code", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{})
		d.GET("/", func(*internal.Request, *internal.Response) error {
			return internal.ErrBadRequest("missing ssid")
		})

		w := serve(d, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.Equal(t, "missing ssid", w.Body.String())
	})

	t.Run("plain error becomes 500", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{})
		d.GET("/", func(*internal.Request, *internal.Response) error {
			return errors.New("disk gone")
		})

		w := serve(d, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusInternalServerError, w.Code)
		require.NotContains(t, w.Body.String(), "disk gone")
	})

	t.Run("error after send is ignored", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{})
		d.GET("/", func(req *internal.Request, res *internal.Response) error {
			_ = res.Send(http.StatusOK, "text/plain", "done")
			return errors.New("late")
		})

		w := serve(d, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "done", w.Body.String())
	})

	t.Run("custom error handler", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{
			ErrorHandler: func(req *internal.Request, res *internal.Response, err error) error {
				return res.SendJSON(http.StatusTeapot, map[string]string{"error": err.Error()})
			},
		})
		d.GET("/", func(*internal.Request, *internal.Response) error {
			return errors.New("brewing")
		})

		w := serve(d, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusTeapot, w.Code)
		require.JSONEq(t, `{"error":"brewing"}`, w.Body.String())
	})

	t.Run("default headers never override", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{
			DefaultHeaders: http.Header{
				"Access-Control-Allow-Origin": {"*"},
				"Server":                      {"volt"},
			},
		})
		d.GET("/", func(req *internal.Request, res *internal.Response) error {
			res.SetHeader("Server", "custom")
			return res.Send(http.StatusOK, "text/plain", "ok")
		})

		w := serve(d, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, "custom", w.Header().Get("Server"))
	})

	t.Run("redirect", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{})
		d.GET("/old", func(req *internal.Request, res *internal.Response) error {
			return res.Redirect(http.StatusFound, "/new")
		})

		w := serve(d, httptest.NewRequest(http.MethodGet, "/old", nil))
		require.Equal(t, http.StatusFound, w.Code)
		require.Equal(t, "/new", w.Header().Get("Location"))
	})

	t.Run("stream", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{})
		d.GET("/log", func(req *internal.Request, res *internal.Response) error {
			s, err := res.Stream(http.StatusOK, "text/plain")
			if err != nil {
				return err
			}
			for range 3 {
				if _, err := s.WriteString(strings.Repeat("x", 700)); err != nil {
					return err
				}
			}
			return s.Close()
		})

		w := serve(d, httptest.NewRequest(http.MethodGet, "/log", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.Len(t, w.Body.String(), 2100)
		require.True(t, w.Flushed)
	})
}

func TestDispatcher_Body(t *testing.T) {
	t.Parallel()

	t.Run("json body", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{})
		d.POST("/wifi", func(req *internal.Request, res *internal.Response) error {
			var in struct {
				SSID string `json:"ssid"`
			}
			if err := req.BindJSON(&in); err != nil {
				return err
			}
			return res.Send(http.StatusOK, "text/plain", in.SSID)
		})

		w := serve(d, httptest.NewRequest(http.MethodPost, "/wifi", strings.NewReader(`{"ssid":"home"}`)))
		require.Equal(t, "home", w.Body.String())

		w = serve(d, httptest.NewRequest(http.MethodPost, "/wifi", strings.NewReader(`{`)))
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("body over limit is rejected", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{
			Limits: internal.Limits{MaxRequestBodySize: 8},
		})
		d.POST("/", func(req *internal.Request, res *internal.Response) error {
			_, err := req.Body()
			return err
		})

		w := serve(d, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
		require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("form params are marked post", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodPost, "/?q=1", strings.NewReader("name=lamp&name=fan"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		requestVia(t, req, func(r *internal.Request) {
			require.True(t, r.HasParam("q", false, false))
			require.False(t, r.HasParam("q", true, false))
			require.True(t, r.HasParam("name", true, false))

			ps, err := r.Params()
			require.NoError(t, err)
			require.Len(t, ps.All("name"), 2)
			require.Equal(t, "lamp", ps.Value("name"))
		})
	})
}
