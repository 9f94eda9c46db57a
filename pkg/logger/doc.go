// Package logger provides slog loggers with context extraction and optional
// Sentry forwarding.
//
// New builds a JSON (or text) logger. Context extractors run on every log
// call, so request-scoped values such as the request ID or the connection ID
// appear on each record without being passed explicitly:
//
//	log := logger.New(
//		logger.WithLevel(slog.LevelDebug),
//		logger.WithExtractors(volt.RequestIDExtractor(), volt.ConnIDExtractor()),
//	)
//	log.InfoContext(ctx, "upload complete", slog.Int64("size", n))
//
// NewWithSentry writes locally and forwards warnings and errors to Sentry.
// Errors create Issues; warnings are stored as logs. With an empty DSN it
// falls back to local logging only, so the same code path works on a bench
// device without network access.
//
// LogHandlerDecorator wraps any slog.Handler when a custom handler is needed.
package logger
