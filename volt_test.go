package volt_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/volt"
	"github.com/dmitrymomot/volt/middlewares"
)

type relayRoutes struct {
	state map[int]bool
}

func (h *relayRoutes) Routes(d *volt.Dispatcher) {
	d.POST("/api/relay", h.toggle)
	d.GET("/api/relay", h.show).SetFilter(volt.HeaderFilter("Accept", "application/json"))
}

func (h *relayRoutes) toggle(req *volt.Request, res *volt.Response) error {
	relay := volt.ParamDefault(req, "relay", -1)
	if relay < 0 {
		return volt.ErrBadRequest("relay is required")
	}
	h.state[relay] = volt.ParamValue[bool](req, "on")
	return res.SendJSON(http.StatusOK, map[string]bool{"on": h.state[relay]})
}

func (h *relayRoutes) show(req *volt.Request, res *volt.Response) error {
	return res.SendJSON(http.StatusOK, h.state)
}

func TestVolt(t *testing.T) {
	t.Parallel()

	app := volt.New(
		volt.WithMiddleware(middlewares.RequestID(), middlewares.Recover()),
		volt.WithRoutes(&relayRoutes{state: map[int]bool{}}),
	)

	t.Run("typed params", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		app.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/relay?relay=2&on=true", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.JSONEq(t, `{"on":true}`, w.Body.String())
		require.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("http error", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		app.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/relay", nil))
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("filter rejects", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		app.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/relay", nil))
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHTTPError(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	err := volt.ErrInternal("save failed", volt.WithError(cause))

	require.True(t, volt.IsHTTPError(err))
	require.ErrorIs(t, err, cause)
	require.Equal(t, http.StatusInternalServerError, volt.AsHTTPError(err).Code)
	require.False(t, volt.IsHTTPError(cause))
}

func TestMatchers(t *testing.T) {
	t.Parallel()

	require.True(t, volt.Wildcard("/fw/v?").Match("/fw/v"))
	require.True(t, volt.MustRegexp(`/users/\d+`).Match("/users/42"))
	require.False(t, volt.Exact("/a").Match("/a/b"))

	_, err := volt.Regexp("(")
	require.Error(t, err)
}
