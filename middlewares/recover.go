package middlewares

import (
	"log/slog"
	"runtime"

	"github.com/dmitrymomot/volt/internal"
)

// DefaultStackSize is the default maximum stack trace size in bytes.
const DefaultStackSize = 4096

// RecoverConfig configures the recover middleware.
type RecoverConfig struct {
	StackSize         int  // Max stack trace size (default: 4096)
	DisablePrintStack bool // Disable stack trace in logs
}

// RecoverOption configures RecoverConfig.
type RecoverOption func(*RecoverConfig)

// WithRecoverStackSize sets the maximum stack trace size.
func WithRecoverStackSize(size int) RecoverOption {
	return func(cfg *RecoverConfig) {
		cfg.StackSize = size
	}
}

// WithRecoverDisablePrintStack disables including stack trace in logs.
func WithRecoverDisablePrintStack() RecoverOption {
	return func(cfg *RecoverConfig) {
		cfg.DisablePrintStack = true
	}
}

// Recover returns middleware that recovers from panics in later middleware
// and the handler. It logs the panic and returns a PanicError, which the
// dispatcher's error handler turns into a 500.
// Request ID is automatically included via RequestIDExtractor() if configured.
func Recover(opts ...RecoverOption) internal.Middleware {
	cfg := &RecoverConfig{
		StackSize: DefaultStackSize,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return internal.MiddlewareFunc(func(req *internal.Request, _ *internal.Response, next internal.Next) (err error) {
		defer func() {
			if r := recover(); r != nil {
				var stack []byte
				// Allocate only if stack traces are enabled
				if !cfg.DisablePrintStack && cfg.StackSize > 0 {
					stack = make([]byte, cfg.StackSize)
					n := runtime.Stack(stack, false)
					stack = stack[:n]
				}

				attrs := []any{slog.Any("panic", r), slog.String("path", req.Path())}
				if stack != nil {
					attrs = append(attrs, slog.String("stack", string(stack)))
				}
				req.Logger().ErrorContext(req.Context(), "panic recovered", attrs...)

				err = &PanicError{
					Value: r,
					Stack: stack,
				}
			}
		}()

		return next()
	})
}
