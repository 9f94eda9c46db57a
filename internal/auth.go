package internal

import (
	"net/http"
	"strings"

	"github.com/dmitrymomot/volt/pkg/digest"
)

// AuthMode selects the HTTP authentication scheme of a challenge.
type AuthMode int

const (
	AuthBasic AuthMode = iota
	AuthDigest
)

func (m AuthMode) String() string {
	switch m {
	case AuthBasic:
		return "basic"
	case AuthDigest:
		return "digest"
	}
	return "unknown"
}

// DefaultRealm is used when a challenge names no realm.
const DefaultRealm = "Login Required"

// Session keys that bind a Digest challenge to the connection.
const (
	SessionKeyRealm  = "realm"
	SessionKeyNonce  = "nonce"
	SessionKeyOpaque = "opaque"
)

// Authenticate checks the Authorization header against username and
// password. Basic credentials are compared in constant time. Digest
// credentials must echo the realm, nonce and opaque issued to this
// connection by RequestAuthentication.
func (r *Request) Authenticate(username, password string) bool {
	header := strings.TrimSpace(r.Header("Authorization"))
	if header == "" {
		return false
	}

	scheme, _, _ := strings.Cut(header, " ")
	switch {
	case strings.EqualFold(scheme, "Basic"):
		return digest.CheckBasic(header, username, password)
	case strings.EqualFold(scheme, "Digest"):
		return r.authenticateDigest(header, username, password)
	}
	return false
}

func (r *Request) authenticateDigest(header, username, password string) bool {
	creds, err := digest.ParseAuthorization(header)
	if err != nil {
		r.logger.DebugContext(r.Context(), "digest authorization rejected", "error", err)
		return false
	}
	if creds.Username != username {
		return false
	}

	sess, err := r.Session()
	if err != nil {
		r.logger.WarnContext(r.Context(), "session unavailable for digest auth", "error", err)
		return false
	}
	nonce, opaque := sess.Get(SessionKeyNonce), sess.Get(SessionKeyOpaque)
	if nonce == "" || opaque == "" {
		return false
	}
	if !digest.Equal(creds.Opaque, opaque) ||
		!digest.Equal(creds.Nonce, nonce) ||
		creds.Realm != sess.Get(SessionKeyRealm) {
		return false
	}

	return digest.Verify(creds, password, r.Method())
}

// RequestAuthentication answers with 401, a WWW-Authenticate challenge and
// message as an HTML body. Digest challenges reuse the nonce and opaque
// already issued to this connection.
func (r *Request) RequestAuthentication(res *Response, mode AuthMode, realm, message string) error {
	if realm == "" {
		realm = DefaultRealm
	}
	sess, err := r.Session()
	if err != nil {
		return ErrInternal("Session unavailable", WithError(err))
	}
	sess.Set(SessionKeyRealm, realm)

	switch mode {
	case AuthDigest:
		for _, key := range []string{SessionKeyNonce, SessionKeyOpaque} {
			if sess.Has(key) {
				continue
			}
			token, err := digest.RandomHex()
			if err != nil {
				return ErrInternal("Failed to issue challenge", WithError(err))
			}
			sess.Set(key, token)
		}
		res.SetHeader("WWW-Authenticate",
			digest.ChallengeHeader(realm, sess.Get(SessionKeyNonce), sess.Get(SessionKeyOpaque)))
	default:
		res.SetHeader("WWW-Authenticate", digest.BasicChallengeHeader(realm))
	}

	return res.Send(http.StatusUnauthorized, "text/html", message)
}
