package multipart

import "strings"

// parseDisposition splits a Content-Disposition value into its type and
// lower-cased parameters. Quoted values are unquoted; semicolons inside quotes
// do not split.
func parseDisposition(v string) (string, map[string]string) {
	parts := splitParams(v)
	disposition := strings.ToLower(strings.TrimSpace(parts[0]))

	params := make(map[string]string, len(parts)-1)
	for _, part := range parts[1:] {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.TrimSpace(val)
		if len(val) >= 2 && val[0] == '"' && val[len(val)-1] == '"' {
			val = unquote(val[1 : len(val)-1])
		}
		params[key] = val
	}
	return disposition, params
}

// ParseDisposition is the exported form used by raw-body uploads to extract
// the filename from a request's Content-Disposition header.
func ParseDisposition(v string) (string, map[string]string) {
	return parseDisposition(v)
}

func splitParams(v string) []string {
	var (
		parts  []string
		quoted bool
		escape bool
		start  int
	)
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case escape:
			escape = false
		case c == '\\' && quoted:
			escape = true
		case c == '"':
			quoted = !quoted
		case c == ';' && !quoted:
			parts = append(parts, v[start:i])
			start = i + 1
		}
	}
	return append(parts, v[start:])
}

func unquote(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
