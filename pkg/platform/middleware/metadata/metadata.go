// Package metadata extracts client network metadata early in the middleware
// chain so handlers and services can read it from context.
package metadata

import (
	"net"
	"net/http"
	"strings"

	"trustgate/pkg/requestcontext"
)

// ClientMetadata records the caller's IP address and User-Agent in the
// request context. Apply before any quota or audit middleware.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = requestcontext.WithClientIP(ctx, ClientIPFromRequest(r))
		ctx = requestcontext.WithUserAgent(ctx, r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPFromRequest resolves the caller's address, preferring proxy
// headers over the socket peer. The first X-Forwarded-For entry is the
// original client when the service sits behind a trusted proxy.
func ClientIPFromRequest(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
