package internal

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/volt/pkg/logger"
	"github.com/dmitrymomot/volt/pkg/session"
)

// Default server timeouts. WriteTimeout stays zero: event streams and
// WebSockets outlive any fixed write deadline, and the dispatcher bounds its
// own body reads.
const (
	defaultReadTimeout       = 15 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultReadHeaderTimeout = 5 * time.Second
	defaultMaxHeaderBytes    = 1 << 20 // 1MB
	defaultShutdownTimeout   = 30 * time.Second
)

// schedule is a task registered with WithSchedule.
type schedule struct {
	fn   TaskFunc
	name string
	spec string
}

// App orchestrates the server lifecycle: the outer router with health
// endpoints, the dispatcher behind it, scheduled tasks and graceful
// shutdown. App is immutable after creation.
type App struct {
	router        chi.Router
	dispatcher    *Dispatcher
	scheduler     *Scheduler
	healthConfig  *healthConfig
	logger        *slog.Logger
	sessionStore  session.Store
	errorHandler  ErrorHandler
	notFound      HandlerFunc
	defaults      http.Header
	middlewares   []Middleware
	routes        []Routable
	schedules     []schedule
	shutdownHooks []func(context.Context) error
	limits        Limits
}

// New creates an application with the given options.
//
//	app := volt.New(
//	    volt.WithMiddleware(middlewares.Recover(), middlewares.RequestID()),
//	    volt.WithRoutes(device.NewHandler(store)),
//	)
func New(opts ...Option) *App {
	a := &App{
		router: chi.NewRouter(),
		logger: logger.NewNope(),
	}
	for _, opt := range opts {
		opt(a)
	}

	cfg := DispatcherConfig{
		Logger:         a.logger,
		SessionStore:   a.sessionStore,
		ErrorHandler:   a.errorHandler,
		DefaultHeaders: a.defaults,
		Limits:         a.limits,
	}
	if a.notFound != nil {
		cfg.NotFound = a.notFound
	}
	a.dispatcher = NewDispatcher(cfg)
	a.setupRoutes()
	return a
}

// Router returns the outer chi router. Requests it does not handle reach
// the dispatcher.
func (a *App) Router() chi.Router {
	return a.router
}

// Dispatcher returns the request dispatcher. Endpoints may be added to it
// while the server runs.
func (a *App) Dispatcher() *Dispatcher {
	return a.dispatcher
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// Run starts the HTTP server on addr and blocks until shutdown. Scheduled
// tasks start before serving. On shutdown the server drains first, then
// the scheduler, the shutdown hooks registered on the App and through
// ShutdownHook run, and finally every tracked connection is released.
//
//	err := app.Run(":8080", volt.Logger(log))
func (a *App) Run(addr string, opts ...RunOption) error {
	cfg := buildRunConfig(opts...)
	if addr == "" {
		addr = cfg.address
	}
	if cfg.logger == nil {
		cfg.logger = a.logger
	}

	startupHooks := cfg.startupHooks
	shutdownHooks := append([]func(context.Context) error{}, a.shutdownHooks...)
	shutdownHooks = append(shutdownHooks, cfg.shutdownHooks...)

	if a.scheduler != nil {
		startupHooks = append([]func(context.Context) error{a.scheduler.Start}, startupHooks...)
		shutdownHooks = append([]func(context.Context) error{a.scheduler.Stop}, shutdownHooks...)
	}
	shutdownHooks = append(shutdownHooks, a.dispatcher.Conns().Close)

	return runServer(runtimeConfig{
		handler:         a.router,
		address:         addr,
		logger:          cfg.logger,
		shutdownTimeout: cfg.shutdownTimeout,
		startupHooks:    startupHooks,
		shutdownHooks:   shutdownHooks,
		baseCtx:         cfg.baseCtx,
		conns:           a.dispatcher.Conns(),
	})
}

// setupRoutes wires health endpoints, dispatcher middleware, routes and
// schedules.
func (a *App) setupRoutes() {
	if a.healthConfig != nil {
		conns := a.dispatcher.Conns()
		a.router.Get(a.healthConfig.livenessPath, livenessHandler(conns))
		a.router.Get(a.healthConfig.readinessPath, readinessHandler(a.healthConfig, conns, a.logger))
	}

	a.dispatcher.Use(a.middlewares...)
	a.dispatcher.Mount(a.routes...)

	if len(a.schedules) > 0 {
		a.scheduler = NewScheduler(a.logger)
		for _, s := range a.schedules {
			if err := a.scheduler.Add(s.name, s.spec, s.fn); err != nil {
				panic(err)
			}
		}
	}

	a.router.Handle("/*", a.dispatcher)
	a.router.NotFound(a.dispatcher.ServeHTTP)
	a.router.MethodNotAllowed(a.dispatcher.ServeHTTP)
}
