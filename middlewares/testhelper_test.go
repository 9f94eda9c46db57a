package middlewares_test

import (
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/dmitrymomot/volt/internal"
)

// result is what a dispatched request produced.
type result struct {
	rec *httptest.ResponseRecorder
	err error // error the chain returned, as seen by the error handler
}

// run dispatches req through mw to a catch-all endpoint running h.
func run(req *http.Request, h internal.HandlerFunc, mw ...internal.Middleware) result {
	var (
		mu  sync.Mutex
		got error
	)
	d := internal.NewDispatcher(internal.DispatcherConfig{
		ErrorHandler: func(req *internal.Request, res *internal.Response, err error) error {
			mu.Lock()
			got = err
			mu.Unlock()
			return internal.DefaultErrorHandler(req, res, err)
		},
	})
	d.Use(mw...)
	d.ANY("*", h)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	mu.Lock()
	defer mu.Unlock()
	return result{rec: rec, err: got}
}

// ok answers 200 "ok".
func ok(_ *internal.Request, res *internal.Response) error {
	return res.Send(http.StatusOK, "text/plain", "ok")
}
