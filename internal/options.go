package internal

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/volt/pkg/logger"
	"github.com/dmitrymomot/volt/pkg/session"
)

// Option configures the application.
type Option func(*App)

// WithMiddleware adds global middleware. Middleware runs in the order
// provided, before any endpoint middleware, and also wraps the not-found
// handler.
func WithMiddleware(mw ...Middleware) Option {
	return func(a *App) {
		a.middlewares = append(a.middlewares, mw...)
	}
}

// WithRoutes registers types that declare endpoints on the dispatcher.
// Each Routes method is called once during New.
func WithRoutes(rs ...Routable) Option {
	return func(a *App) {
		a.routes = append(a.routes, rs...)
	}
}

// WithErrorHandler sets the handler for errors returned from the chain.
//
//	volt.WithErrorHandler(func(req *volt.Request, res *volt.Response, err error) error {
//	    return res.SendJSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
//	})
func WithErrorHandler(h ErrorHandler) Option {
	return func(a *App) {
		a.errorHandler = h
	}
}

// WithNotFoundHandler sets the handler for requests no endpoint accepts.
func WithNotFoundHandler(h HandlerFunc) Option {
	return func(a *App) {
		a.notFound = h
	}
}

// WithDefaultHeaders sets headers added to every response that does not
// set them itself.
//
//	volt.WithDefaultHeaders(map[string]string{"Access-Control-Allow-Origin": "*"})
func WithDefaultHeaders(headers map[string]string) Option {
	return func(a *App) {
		if a.defaults == nil {
			a.defaults = make(http.Header, len(headers))
		}
		for k, v := range headers {
			a.defaults.Set(k, v)
		}
	}
}

// WithLimits sets request body, upload and chunk limits. Zero fields keep
// their defaults.
func WithLimits(l Limits) Option {
	return func(a *App) {
		a.limits = l
	}
}

// WithSessionStore backs per-connection sessions with store. Without it
// sessions live in memory.
//
//	volt.WithSessionStore(session.NewRedisStore(client))
func WithSessionStore(store session.Store) Option {
	return func(a *App) {
		a.sessionStore = store
	}
}

// WithHealthChecks enables the liveness (/health/live) and readiness
// (/health/ready) endpoints on the outer router.
//
//	volt.WithHealthChecks(
//	    volt.WithReadinessCheck("redis", redis.Healthcheck(client)),
//	)
func WithHealthChecks(opts ...HealthOption) Option {
	return func(a *App) {
		a.healthConfig = newHealthConfig(opts...)
	}
}

// WithSchedule runs fn on a cron schedule while the server runs. spec
// accepts five or six fields or a descriptor such as "@every 10s". An
// invalid spec panics in New.
//
//	volt.WithSchedule("heartbeat", "@every 10s", func(ctx context.Context) error {
//	    events.Send("tick", "heartbeat", 0, 0)
//	    return nil
//	})
func WithSchedule(name, spec string, fn TaskFunc) Option {
	return func(a *App) {
		if fn != nil {
			a.schedules = append(a.schedules, schedule{name: name, spec: spec, fn: fn})
		}
	}
}

// WithShutdown registers a hook run after the server stops accepting
// requests, such as closing an EventSource or WebSocket handler. Hooks
// run in registration order.
func WithShutdown(fn func(context.Context) error) Option {
	return func(a *App) {
		if fn != nil {
			a.shutdownHooks = append(a.shutdownHooks, fn)
		}
	}
}

// WithLogger creates a JSON logger with a component name and optional
// context extractors.
//
//	volt.New(
//	    volt.WithLogger("voltd", volt.RequestIDExtractor(), volt.ConnIDExtractor()),
//	)
func WithLogger(component string, extractors ...logger.ContextExtractor) Option {
	return func(a *App) {
		a.logger = logger.New(logger.WithExtractors(extractors...)).With("component", component)
	}
}

// WithCustomLogger sets a fully custom logger.
func WithCustomLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}
