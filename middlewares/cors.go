package middlewares

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrymomot/volt/internal"
)

// DefaultCORSMaxAge is the default preflight cache duration.
const DefaultCORSMaxAge = 12 * time.Hour

// DefaultCORSConfig provides sensible defaults for CORS.
var DefaultCORSConfig = CORSConfig{
	AllowOrigins: []string{"*"},
	AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
	AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
	MaxAge:       DefaultCORSMaxAge,
}

// CORSConfig configures the CORS middleware.
type CORSConfig struct {
	// AllowOrigins is a static list of allowed origins.
	// Use "*" to allow all origins (not recommended with credentials).
	AllowOrigins []string

	// AllowOriginFunc is a dynamic origin validator.
	// When set, it completely overrides AllowOrigins for that request.
	// Return true if the origin should be allowed.
	AllowOriginFunc func(origin string) bool

	// AllowMethods specifies the allowed HTTP methods.
	AllowMethods []string

	// AllowHeaders specifies the allowed request headers.
	AllowHeaders []string

	// ExposeHeaders specifies headers exposed to the client.
	ExposeHeaders []string

	// AllowCredentials indicates whether credentials (cookies, authorization headers) are allowed.
	// When true, Access-Control-Allow-Origin cannot be "*"; the actual origin is echoed.
	AllowCredentials bool

	// MaxAge specifies how long preflight responses can be cached.
	MaxAge time.Duration
}

// CORSOption configures CORSConfig.
type CORSOption func(*CORSConfig)

// WithAllowOrigins sets the allowed origins.
func WithAllowOrigins(origins ...string) CORSOption {
	return func(cfg *CORSConfig) {
		cfg.AllowOrigins = origins
	}
}

// WithAllowOriginFunc sets a dynamic origin validator.
// When set, it completely overrides AllowOrigins.
func WithAllowOriginFunc(fn func(origin string) bool) CORSOption {
	return func(cfg *CORSConfig) {
		cfg.AllowOriginFunc = fn
	}
}

// WithAllowMethods sets the allowed HTTP methods.
func WithAllowMethods(methods ...string) CORSOption {
	return func(cfg *CORSConfig) {
		cfg.AllowMethods = methods
	}
}

// WithAllowHeaders sets the allowed request headers.
func WithAllowHeaders(headers ...string) CORSOption {
	return func(cfg *CORSConfig) {
		cfg.AllowHeaders = headers
	}
}

// WithExposeHeaders sets the headers exposed to the client.
func WithExposeHeaders(headers ...string) CORSOption {
	return func(cfg *CORSConfig) {
		cfg.ExposeHeaders = headers
	}
}

// WithAllowCredentials enables credentials support.
// When enabled, Access-Control-Allow-Origin echoes the actual origin instead of "*".
func WithAllowCredentials() CORSOption {
	return func(cfg *CORSConfig) {
		cfg.AllowCredentials = true
	}
}

// WithMaxAge sets the preflight cache duration.
func WithMaxAge(duration time.Duration) CORSOption {
	return func(cfg *CORSConfig) {
		cfg.MaxAge = duration
	}
}

// CORS returns middleware that handles Cross-Origin Resource Sharing.
// It processes preflight (OPTIONS) requests and adds CORS headers to all responses.
func CORS(opts ...CORSOption) internal.Middleware {
	cfg := &CORSConfig{
		AllowOrigins: DefaultCORSConfig.AllowOrigins,
		AllowMethods: DefaultCORSConfig.AllowMethods,
		AllowHeaders: DefaultCORSConfig.AllowHeaders,
		MaxAge:       DefaultCORSConfig.MaxAge,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	// Pre-compute joined strings for headers
	allowMethodsStr := strings.Join(cfg.AllowMethods, ", ")
	allowHeadersStr := strings.Join(cfg.AllowHeaders, ", ")
	exposeHeadersStr := strings.Join(cfg.ExposeHeaders, ", ")
	maxAgeStr := strconv.Itoa(int(cfg.MaxAge.Seconds()))

	hasWildcard := slices.Contains(cfg.AllowOrigins, "*")

	return internal.MiddlewareFunc(func(req *internal.Request, res *internal.Response, next internal.Next) error {
		origin := req.Header("Origin")

		// Not a CORS request
		if origin == "" {
			return next()
		}

		// Origin not allowed: continue without CORS headers, the browser blocks it
		if !isOriginAllowed(origin, cfg, hasWildcard) {
			return next()
		}

		res.AddHeader("Vary", "Origin")

		// Credentials or an explicit list require echoing the actual origin
		if cfg.AllowCredentials || !hasWildcard {
			res.SetHeader("Access-Control-Allow-Origin", origin)
		} else {
			res.SetHeader("Access-Control-Allow-Origin", "*")
		}

		if cfg.AllowCredentials {
			res.SetHeader("Access-Control-Allow-Credentials", "true")
		}

		if exposeHeadersStr != "" {
			res.SetHeader("Access-Control-Expose-Headers", exposeHeadersStr)
		}

		// Preflight never reaches the endpoint
		if req.Method() == http.MethodOptions && req.HasHeader("Access-Control-Request-Method") {
			res.AddHeader("Vary", "Access-Control-Request-Method")
			res.AddHeader("Vary", "Access-Control-Request-Headers")

			res.SetHeader("Access-Control-Allow-Methods", allowMethodsStr)
			res.SetHeader("Access-Control-Allow-Headers", allowHeadersStr)

			if cfg.MaxAge > 0 {
				res.SetHeader("Access-Control-Max-Age", maxAgeStr)
			}

			return res.SendCode(http.StatusNoContent)
		}

		return next()
	})
}

// isOriginAllowed checks if the given origin is allowed based on configuration.
func isOriginAllowed(origin string, cfg *CORSConfig, hasWildcard bool) bool {
	// AllowOriginFunc completely overrides AllowOrigins when set
	if cfg.AllowOriginFunc != nil {
		return cfg.AllowOriginFunc(origin)
	}

	// Wildcard allows all
	if hasWildcard {
		return true
	}

	// Check static list
	return slices.Contains(cfg.AllowOrigins, origin)
}
