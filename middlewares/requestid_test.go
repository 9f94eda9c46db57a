package middlewares_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/volt/internal"
	"github.com/dmitrymomot/volt/middlewares"
	"github.com/dmitrymomot/volt/pkg/logger"
)

func TestRequestID(t *testing.T) {
	t.Parallel()

	t.Run("generates new request ID when not present", func(t *testing.T) {
		t.Parallel()

		var captured string
		r := run(httptest.NewRequest(http.MethodGet, "/", nil), func(req *internal.Request, res *internal.Response) error {
			captured = middlewares.GetRequestID(req)
			return ok(req, res)
		}, middlewares.RequestID())

		id := r.rec.Header().Get("X-Request-ID")
		require.NotEmpty(t, id)
		require.Equal(t, id, captured)
		_, err := uuid.Parse(id)
		require.NoError(t, err)
	})

	t.Run("uses existing request ID from header", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Correlation-ID", "upstream-123")
		r := run(req, ok, middlewares.RequestID())
		require.Equal(t, "upstream-123", r.rec.Header().Get("X-Request-ID"))
	})

	t.Run("header priority", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "first")
		req.Header.Set("X-Correlation-ID", "second")
		r := run(req, ok, middlewares.RequestID())
		require.Equal(t, "first", r.rec.Header().Get("X-Request-ID"))
	})

	t.Run("custom options", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Trace", "ignored")
		r := run(req, ok, middlewares.RequestID(
			middlewares.WithRequestIDHeaders("X-Other"),
			middlewares.WithRequestIDGenerator(func() string { return "fixed" }),
			middlewares.WithRequestIDResponseHeader("X-Trace-ID"),
		))
		require.Equal(t, "fixed", r.rec.Header().Get("X-Trace-ID"))
		require.Empty(t, r.rec.Header().Get("X-Request-ID"))
	})

	t.Run("header also on not found", func(t *testing.T) {
		t.Parallel()

		d := internal.NewDispatcher(internal.DispatcherConfig{})
		d.Use(middlewares.RequestID())
		rec := httptest.NewRecorder()
		d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})

	t.Run("GetRequestID without middleware", func(t *testing.T) {
		t.Parallel()

		var captured = "unset"
		run(httptest.NewRequest(http.MethodGet, "/", nil), func(req *internal.Request, res *internal.Response) error {
			captured = middlewares.GetRequestID(req)
			return ok(req, res)
		})
		require.Empty(t, captured)
	})
}

func TestRequestIDExtractor(t *testing.T) {
	t.Parallel()

	extract := middlewares.RequestIDExtractor()
	_, found := extract(context.Background())
	require.False(t, found)

	var buf bytes.Buffer
	log := logger.New(logger.WithOutput(&buf), logger.WithExtractors(extract))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	run(req, func(req *internal.Request, res *internal.Response) error {
		log.InfoContext(req.Context(), "handling")
		return ok(req, res)
	}, middlewares.RequestID())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "req-42", entry["request_id"])
	require.Equal(t, slog.LevelInfo.String(), entry["level"])
}
