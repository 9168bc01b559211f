package middleware

import (
	"net"
	"net/http"

	"codementor-backend/internal/sanitize"
)

// RealIP replaces r.RemoteAddr with the forwarded client address, but only
// for requests arriving from one of the trusted proxies. With no trusted
// proxies the socket address is left alone.
func RealIP(trusted []*net.IPNet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(trusted) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ip := sanitize.ClientIP(r, trusted); ip != sanitize.RemoteHost(r) {
				r.RemoteAddr = ip
			}
			next.ServeHTTP(w, r)
		})
	}
}
