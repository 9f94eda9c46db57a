package middlewares

import (
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrymomot/volt/internal"
)

// LoggingConfig configures the logging middleware.
type LoggingConfig struct {
	Logger      *slog.Logger // Defaults to the request logger
	SkipPaths   []string     // Exact paths that are never logged
	Level       slog.Level   // Level for successful requests
	WithHeaders bool         // Include request and response headers
}

// LoggingOption configures LoggingConfig.
type LoggingOption func(*LoggingConfig)

// WithLoggingLogger sets the logger. Defaults to the dispatcher's logger.
func WithLoggingLogger(l *slog.Logger) LoggingOption {
	return func(cfg *LoggingConfig) {
		cfg.Logger = l
	}
}

// WithLoggingLevel sets the level for requests answered below 500.
func WithLoggingLevel(level slog.Level) LoggingOption {
	return func(cfg *LoggingConfig) {
		cfg.Level = level
	}
}

// WithLoggingHeaders includes request and response headers, like curl -v.
func WithLoggingHeaders() LoggingOption {
	return func(cfg *LoggingConfig) {
		cfg.WithHeaders = true
	}
}

// WithLoggingSkipPaths excludes paths such as a polling endpoint.
func WithLoggingSkipPaths(paths ...string) LoggingOption {
	return func(cfg *LoggingConfig) {
		cfg.SkipPaths = paths
	}
}

// Logging returns middleware that logs each exchange the way curl -v
// prints it: a "> METHOD URI" request line and a "< STATUS" response line,
// optionally followed by headers.
func Logging(opts ...LoggingOption) internal.Middleware {
	cfg := &LoggingConfig{Level: slog.LevelInfo}
	for _, opt := range opts {
		opt(cfg)
	}

	return internal.MiddlewareFunc(func(req *internal.Request, res *internal.Response, next internal.Next) error {
		if slices.Contains(cfg.SkipPaths, req.Path()) {
			return next()
		}

		log := cfg.Logger
		if log == nil {
			log = req.Logger()
		}
		ctx := req.Context()

		reqAttrs := []any{
			slog.String("line", "> "+req.Method()+" "+req.URI()+" "+req.HTTP().Proto),
			slog.String("remote", req.RemoteAddr()),
		}
		if cfg.WithHeaders {
			reqAttrs = append(reqAttrs, headerGroup("headers", req.HTTP().Header))
		}
		log.Log(ctx, cfg.Level, "request", reqAttrs...)

		start := time.Now()
		err := next()

		status := exchangeStatus(res, err)
		level := cfg.Level
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case err != nil:
			level = slog.LevelWarn
		}

		resAttrs := []any{
			slog.String("line", "< "+strconv.Itoa(status)+" "+http.StatusText(status)),
			slog.Int64("size", res.Size()),
			slog.Duration("duration", time.Since(start)),
		}
		if cfg.WithHeaders {
			resAttrs = append(resAttrs, headerGroup("headers", res.Header()))
		}
		if res.Hijacked() {
			resAttrs = append(resAttrs, slog.Bool("hijacked", true))
		}
		if err != nil {
			resAttrs = append(resAttrs, slog.Any("error", err))
		}
		log.Log(ctx, level, "response", resAttrs...)

		return err
	})
}

// exchangeStatus is the status the client sees or is about to see: the sent
// one, the one the error handler will pick, or the one Commit will send.
func exchangeStatus(res *internal.Response, err error) int {
	switch {
	case res.Sent():
		return res.Status()
	case err != nil:
		if he := internal.AsHTTPError(err); he != nil {
			return he.StatusCode()
		}
		return http.StatusInternalServerError
	}
	return res.Code()
}

func headerGroup(name string, h http.Header) slog.Attr {
	attrs := make([]any, 0, len(h))
	for _, k := range slices.Sorted(maps.Keys(h)) {
		attrs = append(attrs, slog.String(k, strings.Join(h[k], ", ")))
	}
	return slog.Group(name, attrs...)
}
