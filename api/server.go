/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from proxy headers
  3. Access log: One zerolog line per request
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Metrics:    Prometheus counters per route pattern
  6. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/routes/*         Route catalog, baseline, comparison
  /api/compliance/*     Compliance balances
  /api/banking/*        Banking ledger
  /api/pools/*          Pooling
  /api/scenarios/*      Demo scenarios
  /metrics              Prometheus scrape endpoint
  /health               Liveness and storage check

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	InitMetrics()

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/routes", func(r chi.Router) {
			r.Get("/", h.ListRoutes)
			r.Post("/", h.CreateRoute)
			r.Get("/comparison", h.GetComparison)
			r.Post("/{id}/baseline", h.SetBaseline)
			r.Get("/{id}/intensity", h.GetIntensity)
		})

		r.Route("/compliance", func(r chi.Router) {
			r.Get("/cb", h.GetComplianceBalance)
			r.Get("/adjusted-cb", h.GetAdjustedBalance)
		})

		r.Route("/banking", func(r chi.Router) {
			r.Get("/records", h.GetBankRecords)
			r.Post("/bank", h.BankSurplus)
			r.Post("/apply", h.ApplyBanked)
		})

		r.Route("/pools", func(r chi.Router) {
			r.Post("/", h.CreatePool)
			r.Get("/{id}", h.GetPool)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

// accessLog writes one structured line per request.
func accessLog(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			event := logger.Info()
			if status >= http.StatusInternalServerError {
				event = logger.Error()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("remote", r.RemoteAddr).
				Msg("request")
		})
	}
}
