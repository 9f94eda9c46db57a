package logger

import (
	"context"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
)

// SentryConfig holds Sentry integration configuration.
type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
	Release     string `yaml:"release"`
	// MinLevel determines which log levels are forwarded (slog.LevelWarn sends warnings and errors).
	MinLevel slog.Level `yaml:"-"`
}

// NewWithSentry creates a logger that writes locally and forwards to Sentry.
// With an empty DSN only local logging is enabled.
func NewWithSentry(cfg SentryConfig, opts ...Option) *slog.Logger {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	local := o.localHandler()

	if cfg.DSN == "" {
		return slog.New(NewLogHandlerDecorator(local, o.extractors...))
	}

	env := cfg.Environment
	if env == "" {
		env = "production"
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: env,
		Release:     cfg.Release,
		EnableLogs:  true,
	}); err != nil {
		slog.New(local).Error("failed to initialize sentry", slog.String("error", err.Error()))
		return slog.New(NewLogHandlerDecorator(local, o.extractors...))
	}

	logLevel := []slog.Level{slog.LevelWarn, slog.LevelError}
	if cfg.MinLevel >= slog.LevelError {
		logLevel = []slog.Level{slog.LevelError}
	}

	remote := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   logLevel,
	}.NewSentryHandler(context.Background())

	return slog.New(NewLogHandlerDecorator(fanout{local, remote}, o.extractors...))
}

// FlushSentry returns a shutdown hook that flushes buffered Sentry events.
func FlushSentry(timeout time.Duration) func(context.Context) error {
	return func(context.Context) error {
		sentry.Flush(timeout)
		return nil
	}
}
