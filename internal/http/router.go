// Package httpapi assembles the public router. Handlers stay in their
// domain packages; this is wiring only.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trustgate/internal/auth"
	"trustgate/internal/billing"
	"trustgate/internal/platform/metrics"
	verification "trustgate/internal/verification/handler"
	"trustgate/pkg/platform/middleware/metadata"
	"trustgate/pkg/platform/middleware/requestid"
	"trustgate/pkg/platform/middleware/requesttime"
)

// NewRouter wires all public endpoints and the shared middleware chain.
func NewRouter(
	verifyHandler *verification.Handler,
	authHandler *auth.Handler,
	billingHandler *billing.Handler,
	tokens *auth.TokenService,
) http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.RequestID)
	r.Use(requesttime.RequestTime)
	r.Use(metadata.ClientMetadata)
	r.Use(metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		authHandler.Register(api)

		// Lookups accept anonymous callers; a bearer token, when
		// present, unlocks balance-funded fetches.
		api.Group(func(g chi.Router) {
			g.Use(auth.OptionalAuth(tokens))
			verifyHandler.Register(g)
		})

		api.Group(func(g chi.Router) {
			g.Use(auth.RequireAuth(tokens))
			billingHandler.Register(g)
		})
	})

	billingHandler.RegisterWebhooks(r)

	return r
}
