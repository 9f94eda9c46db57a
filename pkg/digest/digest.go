package digest

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// QopAuth is the only quality of protection supported.
const QopAuth = "auth"

// Credentials are the fields of a Digest Authorization header.
type Credentials struct {
	Username  string
	Realm     string
	Nonce     string
	URI       string
	Response  string
	Opaque    string
	Qop       string
	NC        string
	CNonce    string
	Algorithm string
}

// ParseAuthorization parses an "Authorization: Digest ..." header value.
// username, realm, nonce, uri and response are required; nc and cnonce are
// required when qop is present.
func ParseAuthorization(header string) (Credentials, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Credentials{}, ErrMissingHeader
	}
	scheme, rest, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, "Digest") {
		return Credentials{}, ErrWrongScheme
	}

	fields := parseFields(rest)
	c := Credentials{
		Username:  fields["username"],
		Realm:     fields["realm"],
		Nonce:     fields["nonce"],
		URI:       fields["uri"],
		Response:  fields["response"],
		Opaque:    fields["opaque"],
		Qop:       fields["qop"],
		NC:        fields["nc"],
		CNonce:    fields["cnonce"],
		Algorithm: fields["algorithm"],
	}

	for name, v := range map[string]string{
		"username": c.Username,
		"realm":    c.Realm,
		"nonce":    c.Nonce,
		"uri":      c.URI,
		"response": c.Response,
	} {
		if v == "" {
			return Credentials{}, fmt.Errorf("%w: %s", ErrMissingField, name)
		}
	}

	if c.Qop != "" {
		if c.Qop != QopAuth {
			return Credentials{}, fmt.Errorf("%w: %s", ErrUnsupportedQop, c.Qop)
		}
		if c.NC == "" || c.CNonce == "" {
			return Credentials{}, fmt.Errorf("%w: nc/cnonce", ErrMissingField)
		}
	}
	if c.Algorithm != "" && !strings.EqualFold(c.Algorithm, "MD5") {
		return Credentials{}, fmt.Errorf("%w: %s", ErrUnsupportedAlg, c.Algorithm)
	}

	return c, nil
}

// parseFields splits comma-separated key=value pairs; commas inside quoted
// values do not split.
func parseFields(s string) map[string]string {
	fields := make(map[string]string)
	for len(s) > 0 {
		s = strings.TrimLeft(s, " \t,")
		eq := strings.IndexByte(s, '=')
		if eq < 0 {
			break
		}
		key := strings.ToLower(strings.TrimSpace(s[:eq]))
		s = strings.TrimLeft(s[eq+1:], " \t")

		var val string
		if strings.HasPrefix(s, `"`) {
			var b strings.Builder
			i := 1
			for ; i < len(s) && s[i] != '"'; i++ {
				if s[i] == '\\' && i+1 < len(s) {
					i++
				}
				b.WriteByte(s[i])
			}
			val = b.String()
			s = s[min(i+1, len(s)):]
		} else {
			end := strings.IndexByte(s, ',')
			if end < 0 {
				end = len(s)
			}
			val = strings.TrimSpace(s[:end])
			s = s[end:]
		}
		fields[key] = val
	}
	return fields
}

// HA1 returns MD5(username:realm:password) in lower-case hex.
func HA1(username, realm, password string) string {
	return md5Hex(username + ":" + realm + ":" + password)
}

// HA2 returns MD5(method:uri) in lower-case hex.
func HA2(method, uri string) string {
	return md5Hex(method + ":" + uri)
}

// Expected computes the response the client must send for the given
// credentials, password and request method.
func Expected(c Credentials, password, method string) string {
	ha1 := HA1(c.Username, c.Realm, password)
	ha2 := HA2(method, c.URI)
	if c.Qop == QopAuth {
		return md5Hex(ha1 + ":" + c.Nonce + ":" + c.NC + ":" + c.CNonce + ":" + QopAuth + ":" + ha2)
	}
	return md5Hex(ha1 + ":" + c.Nonce + ":" + ha2)
}

// Verify reports whether c carries a valid response for password and method.
// It does not check realm, nonce or opaque against issued values.
func Verify(c Credentials, password, method string) bool {
	return Equal(strings.ToLower(c.Response), Expected(c, password, method))
}

// Equal compares two secrets in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// RandomHex returns 128 bits from crypto/rand as 32 hex characters.
func RandomHex() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRandom, err)
	}
	return hex.EncodeToString(b[:]), nil
}

// ChallengeHeader builds the WWW-Authenticate value for a Digest challenge.
func ChallengeHeader(realm, nonce, opaque string) string {
	return fmt.Sprintf(`Digest realm=%q, qop="auth", nonce=%q, opaque=%q`, realm, nonce, opaque)
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
