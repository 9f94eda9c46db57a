package internal

import "strings"

// Rewrite maps one request path to another before endpoint matching.
type Rewrite struct {
	filter FilterFunc
	from   string
	toPath string
	params string
	to     string
}

func newRewrite(from, to string) *Rewrite {
	path, params, _ := strings.Cut(to, "?")
	return &Rewrite{from: from, to: to, toPath: path, params: params}
}

// From returns the path the rewrite applies to.
func (r *Rewrite) From() string {
	return r.from
}

// To returns the target URI, including any query string.
func (r *Rewrite) To() string {
	return r.to
}

// Params returns the query string of the target, without the "?".
func (r *Rewrite) Params() string {
	return r.params
}

// SetFilter restricts the rewrite to requests the filter accepts.
func (r *Rewrite) SetFilter(fn FilterFunc) *Rewrite {
	r.filter = fn
	return r
}

// match reports whether the rewrite applies to req. The path must be equal
// to From.
func (r *Rewrite) match(req *Request) bool {
	if r.from != req.Path() {
		return false
	}
	return r.filter == nil || runFilter(r.filter, req)
}

// apply points req at the target path. Target params are appended to the
// request's own query string.
func (r *Rewrite) apply(req *Request) {
	req.path = r.toPath
	switch {
	case r.params == "":
	case req.query == "":
		req.query = r.params
	default:
		req.query = req.query + "&" + r.params
	}
	req.rewritten = true
}
