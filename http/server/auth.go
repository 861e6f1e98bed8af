package server

import (
	"crypto/subtle"
	"net/http"

	"github.com/hashicorp/go-hclog"
)

// basicAuth protects a route group with HTTP basic authentication.
func basicAuth(username string, password string, logger hclog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok || !equal(u, username) || !equal(p, password) {
				logger.Warn("authentication failed", "method", r.Method, "uri", r.RequestURI, "remoteAddr", r.RemoteAddr)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func equal(a string, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
