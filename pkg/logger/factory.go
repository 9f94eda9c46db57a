package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the slog handler used for local output.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Option configures a logger created by New or NewWithSentry.
type Option func(*options)

type options struct {
	output     io.Writer
	format     Format
	extractors []ContextExtractor
	level      slog.Level
}

func defaultOptions() *options {
	return &options{
		output: os.Stdout,
		format: FormatJSON,
		level:  slog.LevelInfo,
	}
}

// WithLevel sets the minimum level written locally.
// Default: slog.LevelInfo.
func WithLevel(level slog.Level) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithFormat selects JSON or text output.
// Default: FormatJSON.
func WithFormat(f Format) Option {
	return func(o *options) {
		o.format = f
	}
}

// WithOutput sets the destination for local output.
// Default: os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.output = w
		}
	}
}

// WithExtractors adds context extractors applied on every log call.
func WithExtractors(extractors ...ContextExtractor) Option {
	return func(o *options) {
		o.extractors = append(o.extractors, extractors...)
	}
}

// New creates a logger writing to stdout (JSON by default) with optional
// context extractors.
func New(opts ...Option) *slog.Logger {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return slog.New(NewLogHandlerDecorator(o.localHandler(), o.extractors...))
}

// NewNope creates a no-op logger that discards all output.
// Use this as a default when logging is not configured.
func NewNope() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// Unknown values yield slog.LevelInfo.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (o *options) localHandler() slog.Handler {
	ho := &slog.HandlerOptions{Level: o.level}
	if o.format == FormatText {
		return slog.NewTextHandler(o.output, ho)
	}
	return slog.NewJSONHandler(o.output, ho)
}
