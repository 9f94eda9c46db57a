package internal

import (
	"strings"
)

// ExtractorSource extracts a value from a request.
// Returns the value and true if found, or ("", false) if not present.
type ExtractorSource = func(*Request) (string, bool)

// Extractor tries multiple sources in order and returns the first match.
type Extractor struct {
	sources []ExtractorSource
}

// NewExtractor creates an Extractor that tries the given sources in order.
func NewExtractor(sources ...ExtractorSource) Extractor {
	return Extractor{sources: sources}
}

// Extract iterates sources in order and returns the first non-empty value.
func (e Extractor) Extract(req *Request) (string, bool) {
	for _, src := range e.sources {
		if v, ok := src(req); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func nonEmpty(v string) (string, bool) {
	return v, v != ""
}

// FromHeader returns a source that reads from a request header.
func FromHeader(name string) ExtractorSource {
	return func(req *Request) (string, bool) {
		return nonEmpty(req.Header(name))
	}
}

// FromQuery returns a source that reads from a query parameter.
func FromQuery(name string) ExtractorSource {
	return func(req *Request) (string, bool) {
		return nonEmpty(req.Query(name))
	}
}

// FromCookie returns a source that reads from a cookie.
func FromCookie(name string) ExtractorSource {
	return func(req *Request) (string, bool) {
		v, ok := req.Cookie(name)
		if !ok {
			return "", false
		}
		return nonEmpty(v)
	}
}

// FromParam returns a source that reads the first parameter of any origin.
func FromParam(name string) ExtractorSource {
	return func(req *Request) (string, bool) {
		return nonEmpty(req.Param(name))
	}
}

// FromForm returns a source that reads from a form or multipart text field.
func FromForm(name string) ExtractorSource {
	return func(req *Request) (string, bool) {
		return nonEmpty(req.PostValue(name))
	}
}

// FromSession returns a source that reads from the connection's session.
func FromSession(key string) ExtractorSource {
	return func(req *Request) (string, bool) {
		sess, err := req.Session()
		if err != nil {
			return "", false
		}
		return nonEmpty(sess.Get(key))
	}
}

// FromBearerToken returns a source that reads a Bearer token from the
// Authorization header. The "Bearer " prefix is matched case-insensitively.
func FromBearerToken() ExtractorSource {
	return func(req *Request) (string, bool) {
		auth := req.Header("Authorization")
		if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
			return "", false
		}
		return nonEmpty(auth[7:])
	}
}
