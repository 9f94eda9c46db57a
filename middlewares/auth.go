package middlewares

import "github.com/dmitrymomot/volt/internal"

// AuthOption configures AuthMiddleware.
type AuthOption func(*AuthMiddleware)

// WithCredentials sets the accepted username and password.
func WithCredentials(username, password string) AuthOption {
	return func(m *AuthMiddleware) {
		m.username = username
		m.password = password
	}
}

// WithAuthRealm sets the realm named in challenges.
// Defaults to internal.DefaultRealm.
func WithAuthRealm(realm string) AuthOption {
	return func(m *AuthMiddleware) {
		m.realm = realm
	}
}

// WithAuthMode selects Basic or Digest authentication. Defaults to Basic.
func WithAuthMode(mode internal.AuthMode) AuthOption {
	return func(m *AuthMiddleware) {
		m.mode = mode
	}
}

// WithAuthFailureMessage sets the HTML body sent with the 401 challenge.
func WithAuthFailureMessage(msg string) AuthOption {
	return func(m *AuthMiddleware) {
		m.failureMessage = msg
	}
}

// WithAuthSkip exempts requests the filter accepts, for example
// volt.LocalOnlyFilter to trust the local network.
func WithAuthSkip(fn internal.FilterFunc) AuthOption {
	return func(m *AuthMiddleware) {
		m.skip = fn
	}
}

// AuthMiddleware guards endpoints with HTTP Basic or Digest authentication.
// Digest state lives in the connection session, so clients must answer a
// challenge on the connection that received it.
type AuthMiddleware struct {
	skip           internal.FilterFunc
	username       string
	password       string
	realm          string
	failureMessage string
	mode           internal.AuthMode
}

// Auth creates an authentication middleware.
//
//	app := volt.New(
//	    volt.WithMiddleware(middlewares.Auth(
//	        middlewares.WithCredentials("admin", cfg.Auth.Password),
//	        middlewares.WithAuthMode(volt.AuthDigest),
//	    )),
//	)
func Auth(opts ...AuthOption) *AuthMiddleware {
	m := &AuthMiddleware{realm: internal.DefaultRealm}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Username returns the accepted username.
func (m *AuthMiddleware) Username() string { return m.username }

// Realm returns the challenge realm.
func (m *AuthMiddleware) Realm() string { return m.realm }

// Mode returns the authentication scheme.
func (m *AuthMiddleware) Mode() internal.AuthMode { return m.mode }

// IsAllowed reports whether req carries valid credentials or is exempt.
// A middleware without a username allows everything.
func (m *AuthMiddleware) IsAllowed(req *internal.Request) bool {
	if m.username == "" {
		return true
	}
	if m.skip != nil && m.skip(req) {
		return true
	}
	return req.Authenticate(m.username, m.password)
}

// Run implements internal.Middleware. Rejected requests get a 401 challenge
// and never reach next.
func (m *AuthMiddleware) Run(req *internal.Request, res *internal.Response, next internal.Next) error {
	if !m.IsAllowed(req) {
		return req.RequestAuthentication(res, m.mode, m.realm, m.failureMessage)
	}
	return next()
}
