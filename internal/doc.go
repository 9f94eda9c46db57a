// Package internal provides the core types and implementation for the Volt
// embedded web server.
//
// This package is internal and should not be used directly. Import
// "github.com/dmitrymomot/volt" instead, which re-exports the public API.
//
// # Core Types
//
//   - App: owns the outer chi router, health endpoints, scheduled tasks and
//     graceful shutdown
//   - Dispatcher: the http.Handler that matches requests to endpoints and
//     runs the middleware chain
//   - Endpoint: a method plus URI pattern with optional filter, matcher,
//     endpoint middleware and upload sink
//   - Request and Response: the per-request views handlers work with
//   - Middleware and Next: chain steps; returning without calling next
//     short-circuits the chain
//   - Conn and ConnTracker: per-connection state, including the lazily
//     created session used by digest authentication
//   - EventSource and WebSocket: push handlers built on ClientRegistry
//
// # Matching
//
// Endpoints are tried in registration order. The first endpoint whose
// method and pattern match and whose filter passes handles the request.
// A panicking filter counts as a failed one. GET endpoints also answer HEAD.
// Patterns are exact paths, wildcards ("*" for any run, "?" for one optional
// character) or a custom Matcher such as a regular expression:
//
//	d.GET("/api/device", h.device)
//	d.POST("/api/relay/*", h.relay)
//	d.GET("/fw/v?", h.firmware).SetFilter(volt.LocalOnlyFilter)
//	d.ANY("/users", h.users).SetMatcher(volt.MustRegexp(`/users/\d+`))
//
// Rewrites run before matching. Only the first matching rewrite applies and
// query parameters of its target are appended to the request's own:
//
//	d.Rewrite("/", "/index.html")
//
// # Request Lifecycle
//
// Global middleware run first, then endpoint middleware, then the handler.
// Requests no endpoint matched go through global middleware to the not-found
// handler. An error from the chain reaches the error handler only if nothing
// was sent yet; an HTTPError keeps its status code, anything else becomes a
// 500. When the chain returns without sending, the buffered response is
// committed. A second send on the same response is refused with
// ErrResponseAlreadySent.
//
// # Bodies and Uploads
//
// Request bodies are read in chunks up to Limits.MaxRequestBodySize and
// answered with 413 beyond it. Form and multipart parameters are parsed on
// first access. Multipart file fields stream to the endpoint's UploadFunc;
// the sink sees last=true exactly once per file. UploadHandler also accepts
// raw bodies, treating the whole body as one file.
//
// # Push
//
// EventSource hijacks the connection, writes the event-stream head itself
// and keeps the client until a write fails, the peer goes away or the
// handler is closed. WebSocket upgrades through gorilla/websocket. Both
// register clients in a ClientRegistry: removal is idempotent, close
// callbacks run before a client leaves the registry, and a broadcast never
// mutates the registry while iterating it.
//
// # Authentication
//
// Request.Authenticate checks Basic or Digest credentials. Digest state
// (realm, nonce, opaque) lives in the connection session, so a challenge
// and its answer must arrive on the same connection:
//
//	if !req.Authenticate(user, pass) {
//	    return req.RequestAuthentication(res, volt.AuthDigest, "", "")
//	}
package internal
