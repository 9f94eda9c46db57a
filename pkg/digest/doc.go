// Package digest implements the credential checks and challenge headers for
// HTTP Basic and Digest (RFC 2617, MD5, qop=auth) authentication.
//
// The package is stateless. Callers keep the issued realm, nonce and opaque
// per connection and pass them back when verifying:
//
//	creds, err := digest.ParseAuthorization(r.Header.Get("Authorization"))
//	if err != nil || creds.Nonce != issuedNonce || creds.Opaque != issuedOpaque {
//		w.Header().Set("WWW-Authenticate", digest.ChallengeHeader(realm, issuedNonce, issuedOpaque))
//		w.WriteHeader(http.StatusUnauthorized)
//		return
//	}
//	if !digest.Verify(creds, password, r.Method) {
//		// reject
//	}
//
// MD5 and Base64 come from the standard library; comparisons of secrets use
// crypto/subtle.
package digest
