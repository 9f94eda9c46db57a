// Package middlewares provides middleware for Volt servers.
//
// Every middleware implements volt.Middleware and runs inside the
// dispatcher's chain: global middleware first, endpoint middleware next,
// then the handler. Returning without calling next short-circuits the chain.
//
// # Request ID
//
// RequestID assigns a unique ID to each request. It checks incoming headers
// for an existing ID or generates a UUID. Use RequestIDExtractor with
// WithLogger to add request_id to every log entry:
//
//	app := volt.New(
//	    volt.WithLogger("voltd", volt.RequestIDExtractor()),
//	    volt.WithMiddleware(middlewares.RequestID()),
//	)
//
// # Recover
//
// Recover catches panics and converts them to a PanicError, which the error
// handler answers with 500 unless something was already sent.
//
// # Logging
//
// Logging writes a curl-like request line and response line per exchange:
//
//	{"msg":"request","line":"> GET /api/state HTTP/1.1"}
//	{"msg":"response","line":"< 200 OK","size":87,"duration":"412µs"}
//
// # Auth
//
// Auth guards endpoints with Basic or Digest authentication. Digest keeps
// its nonce in the connection session, so the challenge and the answer must
// share a connection:
//
//	d.GET("/settings", h.settings).Use(middlewares.Auth(
//	    middlewares.WithCredentials("admin", password),
//	    middlewares.WithAuthMode(volt.AuthDigest),
//	))
//
// # CORS
//
// CORS adds Cross-Origin Resource Sharing headers and answers preflight
// requests with 204 before they reach an endpoint:
//
//	middlewares.CORS(
//	    middlewares.WithAllowOrigins("http://device.local"),
//	    middlewares.WithAllowCredentials(),
//	)
//
// # Recommended Order
//
//	volt.WithMiddleware(
//	    middlewares.CORS(),      // preflight before anything else
//	    middlewares.RequestID(), // ID for all later logging
//	    middlewares.Logging(),
//	    middlewares.Recover(),   // innermost, closest to handlers
//	)
package middlewares
