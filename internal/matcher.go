package internal

import (
	"fmt"
	"regexp"
	"strings"
)

// Matcher decides whether an endpoint accepts a request path.
type Matcher interface {
	Match(path string) bool
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(path string) bool

// Match implements Matcher.
func (f MatcherFunc) Match(path string) bool {
	return f(path)
}

// Exact matches a single path.
func Exact(pattern string) Matcher {
	return MatcherFunc(func(path string) bool {
		return path == pattern
	})
}

// Wildcard matches pattern with two optional suffixes: a trailing "*" accepts
// any remainder, and a "?" before it (or at the end) makes the preceding
// character optional. "/api/?*" matches "/api", "/api/" and "/api/v1".
// Without either suffix it behaves like Exact.
func Wildcard(pattern string) Matcher {
	tpl := pattern
	prefix := strings.HasSuffix(tpl, "*")
	if prefix {
		tpl = tpl[:len(tpl)-1]
	}
	optional := strings.HasSuffix(tpl, "?")
	if optional {
		tpl = tpl[:len(tpl)-1]
	}
	short := tpl
	if optional && short != "" {
		short = short[:len(short)-1]
	}

	return MatcherFunc(func(path string) bool {
		if optional && path == short {
			return true
		}
		if prefix {
			return strings.HasPrefix(path, tpl)
		}
		return path == tpl
	})
}

// Regexp compiles expr and matches paths it accepts in full.
func Regexp(expr string) (Matcher, error) {
	re, err := regexp.Compile(`^(?:` + expr + `)$`)
	if err != nil {
		return nil, fmt.Errorf("volt: invalid route pattern %q: %w", expr, err)
	}
	return MatcherFunc(re.MatchString), nil
}

// MustRegexp is like Regexp but panics on an invalid expression.
func MustRegexp(expr string) Matcher {
	m, err := Regexp(expr)
	if err != nil {
		panic(err)
	}
	return m
}
