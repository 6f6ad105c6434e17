// Package requesttime pins a single observation of the wall clock per
// request so every freshness and quota decision within one request agrees
// on what "now" means.
package requesttime

import (
	"net/http"
	"time"

	"trustgate/pkg/requestcontext"
)

// RequestTime stores the request arrival time in the context.
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
