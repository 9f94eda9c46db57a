// Command voltd runs a Volt device server from a YAML configuration file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dmitrymomot/volt"
	"github.com/dmitrymomot/volt/middlewares"
	"github.com/dmitrymomot/volt/pkg/config"
	"github.com/dmitrymomot/volt/pkg/logger"
	"github.com/dmitrymomot/volt/pkg/objectsink"
	"github.com/dmitrymomot/volt/pkg/redis"
	"github.com/dmitrymomot/volt/pkg/session"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "voltd:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}

	logOpts := []logger.Option{
		logger.WithLevel(logger.ParseLevel(cfg.Log.Level)),
		logger.WithFormat(logger.Format(cfg.Log.Format)),
		logger.WithExtractors(volt.RequestIDExtractor(), volt.ConnIDExtractor()),
	}
	log := logger.New(logOpts...)
	if cfg.Sentry.DSN != "" {
		cfg.Sentry.MinLevel = slog.LevelWarn
		log = logger.NewWithSentry(cfg.Sentry, logOpts...)
	}
	log = log.With(slog.String("component", "voltd"))

	ctx := context.Background()

	var (
		store     volt.SessionStore = session.NewMemoryStore()
		appOpts   []volt.Option
		runOpts   []volt.RunOption
		readiness []volt.HealthOption
	)
	if cfg.RedisURL != "" {
		client, err := redis.Open(ctx, cfg.RedisURL, redis.WithLogger(log), redis.WithClientName("voltd"))
		if err != nil {
			return err
		}
		store = session.NewRedisStore(client, session.WithPrefix("voltd:session:"))
		readiness = append(readiness, volt.WithReadinessCheck("redis", redis.Healthcheck(client)))
		runOpts = append(runOpts, volt.ShutdownHook(redis.Shutdown(client)))
	}

	sink, closeSink, err := uploadSink(cfg.Uploads)
	if err != nil {
		return err
	}
	if closeSink != nil {
		runOpts = append(runOpts, volt.ShutdownHook(func(context.Context) error { return closeSink() }))
	}

	queue := volt.NewAsyncQueue(0, log)
	events := volt.NewEventSource(log, volt.WithEventQueue(queue))
	sockets := volt.NewWebSocket(log).OnFrame(func(c *volt.WebSocketClient, f volt.Frame) error {
		// Echo frames back to the sender.
		return c.Send(f.Type, f.Data)
	})

	started := time.Now()
	if cfg.Events.Schedule != "" {
		appOpts = append(appOpts, volt.WithSchedule("uptime", cfg.Events.Schedule, func(context.Context) error {
			uptime := time.Since(started).Truncate(time.Second).String()
			events.Send(uptime, "uptime", 0, 0)
			sockets.SendAllText(uptime)
			return nil
		}))
	}

	auth := middlewares.Auth(
		middlewares.WithCredentials(cfg.Auth.Username, cfg.Auth.Password),
		middlewares.WithAuthRealm(cfg.Auth.Realm),
		middlewares.WithAuthMode(authMode(cfg.Auth.Mode)),
		middlewares.WithAuthFailureMessage(cfg.Auth.FailureMessage),
	)

	mw := []volt.Middleware{
		middlewares.RequestID(),
		middlewares.Recover(),
		middlewares.Logging(middlewares.WithLoggingLogger(log)),
	}
	if len(cfg.CORS.AllowedOrigins) > 0 {
		corsOpts := []middlewares.CORSOption{middlewares.WithAllowOrigins(cfg.CORS.AllowedOrigins...)}
		if cfg.CORS.MaxAge > 0 {
			corsOpts = append(corsOpts, middlewares.WithMaxAge(time.Duration(cfg.CORS.MaxAge)*time.Second))
		}
		mw = append(mw, middlewares.CORS(corsOpts...))
	}
	if cfg.Auth.Mode != config.AuthNone {
		mw = append(mw, auth)
	}

	appOpts = append(appOpts,
		volt.WithCustomLogger(log),
		volt.WithSessionStore(store),
		volt.WithDefaultHeaders(cfg.DefaultHeaders),
		volt.WithLimits(volt.Limits{
			MaxRequestBodySize: cfg.Limits.MaxRequestBodySize,
			MaxUploadSize:      cfg.Limits.MaxUploadSize,
			ChunkSize:          cfg.Limits.ChunkSize,
			StreamChunkSize:    cfg.Limits.StreamChunkSize,
		}),
		volt.WithMiddleware(mw...),
		volt.WithHealthChecks(readiness...),
		volt.WithShutdown(events.Close),
		volt.WithShutdown(sockets.Close),
		volt.WithShutdown(queue.Close),
	)
	app := volt.New(appOpts...)

	d := app.Dispatcher()
	d.GET("/events", events.ServeRequest)
	d.GET("/ws", sockets.ServeRequest)
	if sink != nil {
		d.On(volt.MethodAny, "/upload", uploadHandler(sink))
	}
	if cfg.Static.Root != "" {
		d.Static(cfg.Static.URI, os.DirFS(cfg.Static.Root),
			volt.WithDefaultFile(cfg.Static.DefaultFile),
			volt.WithCacheControl(cfg.Static.CacheControl),
		)
	}

	if cfg.Sentry.DSN != "" {
		runOpts = append(runOpts, volt.ShutdownHook(logger.FlushSentry(2*time.Second)))
	}
	runOpts = append(runOpts,
		volt.Logger(log),
		volt.ShutdownTimeout(cfg.ShutdownTimeout),
	)

	return app.Run(cfg.Address, runOpts...)
}

// uploadSink prefers S3 when a bucket is configured and falls back to a
// local directory. An empty directory disables uploads.
func uploadSink(cfg config.Uploads) (objectsink.Sink, func() error, error) {
	if cfg.S3.Bucket != "" {
		s, err := objectsink.NewS3(cfg.S3)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	}
	if cfg.Dir == "" {
		return nil, nil, nil
	}
	f, err := objectsink.NewFileSink(cfg.Dir)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func uploadHandler(sink objectsink.Sink) *volt.UploadHandler {
	h := volt.NewUploadHandler(func(req *volt.Request, name string, offset int64, data []byte, last bool) error {
		return sink.Write(req.Context(), name, offset, data, last)
	})
	if a, ok := sink.(objectsink.Aborter); ok {
		h.OnAbort(func(req *volt.Request, name string) {
			req.Logger().WarnContext(req.Context(), "upload aborted", slog.String("filename", name))
			a.Abort(name)
		})
	}
	return h
}

func authMode(mode string) volt.AuthMode {
	if strings.EqualFold(mode, config.AuthDigest) {
		return volt.AuthDigest
	}
	return volt.AuthBasic
}
