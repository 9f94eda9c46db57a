package internal_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dmitrymomot/volt/internal"
)

// requestVia dispatches req to a catch-all endpoint that runs fn and
// answers 200.
func requestVia(t *testing.T, req *http.Request, fn func(req *internal.Request)) *httptest.ResponseRecorder {
	t.Helper()

	d := internal.NewDispatcher(internal.DispatcherConfig{})
	d.ANY("*", func(req *internal.Request, res *internal.Response) error {
		fn(req)
		return res.SendCode(http.StatusOK)
	})
	return serve(d, req)
}

// serve runs req through h and returns the recorded response.
func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// text answers with a fixed body.
func text(body string) internal.HandlerFunc {
	return func(_ *internal.Request, res *internal.Response) error {
		return res.Send(http.StatusOK, "text/plain", body)
	}
}
