package clientip

import (
	"net"
	"net/http"
	"strings"
)

// headers are checked in order; the first valid address wins.
var headers = []string{
	"CF-Connecting-IP",
	"DO-Connecting-IP",
	"X-Forwarded-For",
	"X-Real-IP",
}

// GetIP returns the client address of r. Proxy headers are trusted, so only
// use it behind a proxy that sets or strips them.
func GetIP(r *http.Request) string {
	for _, h := range headers {
		v := r.Header.Get(h)
		if v == "" {
			continue
		}
		// X-Forwarded-For is "client, proxy1, proxy2".
		if i := strings.IndexByte(v, ','); i >= 0 {
			v = v[:i]
		}
		if ip := normalize(v); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := normalize(host); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

func normalize(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil || ip.IsUnspecified() {
		return ""
	}
	return ip.String()
}
