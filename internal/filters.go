package internal

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// HostFilter accepts requests whose Host, without port, matches one of
// hosts. A pattern "*.example.com" matches any subdomain of example.com but
// not example.com itself. Comparison ignores case.
func HostFilter(hosts ...string) FilterFunc {
	return func(req *Request) bool {
		host := req.Host()
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		host = strings.ToLower(host)
		for _, h := range hosts {
			h = strings.ToLower(h)
			if suffix, ok := strings.CutPrefix(h, "*"); ok {
				if strings.HasSuffix(host, suffix) && len(host) > len(suffix) {
					return true
				}
				continue
			}
			if host == h {
				return true
			}
		}
		return false
	}
}

// HeaderFilter accepts requests carrying header name. If value is not
// empty the header must also equal it.
func HeaderFilter(name, value string) FilterFunc {
	return func(req *Request) bool {
		if value == "" {
			return req.HasHeader(name)
		}
		return req.Header(name) == value
	}
}

// LocalAddrFilter accepts requests that arrived on a local address inside
// prefix, e.g. only on the access-point interface of a device with two
// networks.
func LocalAddrFilter(prefix netip.Prefix) FilterFunc {
	return func(req *Request) bool {
		addr, ok := req.Context().Value(http.LocalAddrContextKey).(net.Addr)
		if !ok {
			return false
		}
		ap, err := netip.ParseAddrPort(addr.String())
		if err != nil {
			return false
		}
		return prefix.Contains(ap.Addr().Unmap())
	}
}

// RemoteAddrFilter accepts requests from clients inside prefix.
func RemoteAddrFilter(prefix netip.Prefix) FilterFunc {
	return func(req *Request) bool {
		ap, err := netip.ParseAddrPort(req.RemoteAddr())
		if err != nil {
			return false
		}
		return prefix.Contains(ap.Addr().Unmap())
	}
}

// LocalOnlyFilter accepts requests from loopback, private and link-local
// addresses.
func LocalOnlyFilter(req *Request) bool {
	ap, err := netip.ParseAddrPort(req.RemoteAddr())
	if err != nil {
		return false
	}
	a := ap.Addr().Unmap()
	return a.IsLoopback() || a.IsPrivate() || a.IsLinkLocalUnicast()
}
