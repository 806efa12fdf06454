package gateway

import (
	"net/http"
	"net/url"
	"strings"
)

const (
	corsAllowMethods = "GET, POST, DELETE, OPTIONS"
	corsAllowHeaders = "Authorization, Content-Type, X-API-Key, X-Request-ID, X-Call-ID, apikey, Mcp-Session-Id, Mcp-Protocol-Version"
)

// CORS allows cross-origin callers whose Origin host matches one of the
// suffixes. A suffix with a leading dot (".example.com") matches the apex
// and every subdomain; without a dot it must equal the host. Requests from
// other origins get no CORS headers. With no suffixes the middleware is a
// no-op.
func CORS(suffixes []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(suffixes) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || !originAllowed(origin, suffixes) {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Expose-Headers", "X-Request-ID, X-Call-ID, Mcp-Session-Id")
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(origin string, suffixes []string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, s := range suffixes {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if apex, ok := strings.CutPrefix(s, "."); ok {
			if host == apex || strings.HasSuffix(host, s) {
				return true
			}
			continue
		}
		if host == s {
			return true
		}
	}
	return false
}
