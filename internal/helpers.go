package internal

import "strconv"

// Scalar is the set of types the typed parameter helpers convert to.
type Scalar interface {
	string | int | int64 | float64 | bool
}

// RequestValue returns the request-scoped value stored under key, or the
// zero value of T.
func RequestValue[T any](req *Request, key any) T {
	if v, ok := req.Get(key).(T); ok {
		return v
	}
	var zero T
	return zero
}

// ClientValue returns the client value stored under key, or the zero value
// of T.
func ClientValue[T any](c *Client, key string) T {
	if v, ok := c.Value(key).(T); ok {
		return v
	}
	var zero T
	return zero
}

// ParamValue returns the first parameter named name converted to T. Missing or
// unparsable values yield the zero value.
func ParamValue[T Scalar](req *Request, name string) T {
	v, _ := convertParam[T](req.Param(name))
	return v
}

// Query returns the query parameter named name converted to T.
func Query[T Scalar](req *Request, name string) T {
	v, _ := convertParam[T](req.Query(name))
	return v
}

// ParamDefault returns the parameter named name converted to T, or
// defaultValue if it is empty or cannot be parsed.
func ParamDefault[T Scalar](req *Request, name string, defaultValue T) T {
	raw := req.Param(name)
	if raw == "" {
		return defaultValue
	}
	v, ok := convertParam[T](raw)
	if !ok {
		return defaultValue
	}
	return v
}

// convertParam converts a raw string to T.
func convertParam[T Scalar](raw string) (T, bool) {
	var zero T
	var (
		v   any
		err error
	)
	switch any(zero).(type) {
	case string:
		v = raw
	case int:
		v, err = strconv.Atoi(raw)
	case int64:
		v, err = strconv.ParseInt(raw, 10, 64)
	case float64:
		v, err = strconv.ParseFloat(raw, 64)
	case bool:
		v, err = strconv.ParseBool(raw)
	}
	if err != nil {
		return zero, false
	}
	return v.(T), true
}
