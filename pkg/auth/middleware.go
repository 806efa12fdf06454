package auth

import (
	"net/http"
	"strings"

	"github.com/rhuss/toolgate/pkg/transport"
)

// Middleware admits each request through the Guard before calling next.
// Requests for which public reports true pass through without an identity;
// a nil public protects everything.
func Middleware(guard *Guard, public func(*http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public != nil && public(r) {
				next.ServeHTTP(w, r)
				return
			}
			id, apiErr := guard.Admit(r.Context(), r.Header)
			if apiErr != nil {
				transport.WriteAPIError(w, apiErr)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// PublicPaths matches requests by exact path. An entry ending in "/"
// matches every path below it.
func PublicPaths(paths ...string) func(*http.Request) bool {
	exact := make(map[string]bool, len(paths))
	var prefixes []string
	for _, p := range paths {
		if strings.HasSuffix(p, "/") {
			prefixes = append(prefixes, p)
		} else {
			exact[p] = true
		}
	}
	return func(r *http.Request) bool {
		if exact[r.URL.Path] {
			return true
		}
		for _, p := range prefixes {
			if strings.HasPrefix(r.URL.Path, p) {
				return true
			}
		}
		return false
	}
}
