/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:      Unique ID per request for tracing
  2. RequestLogger:  One zerolog event per request, latency metrics
  3. Recoverer:      Panic recovery (500 instead of crash)
  4. CORS:           Cross-origin requests for the dashboard

ROUTE GROUPS:
  /api/emissions/*   Records, import/export, aggregates
  /api/samples/*     Demo datasets
  /metrics           Prometheus exposition

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Request logging
  - cmd/emissions/serve.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DefaultCORSOrigins are the dashboard dev server and the API itself.
var DefaultCORSOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured. An empty
// corsOrigins uses DefaultCORSOrigins.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	if len(corsOrigins) == 0 {
		corsOrigins = DefaultCORSOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.Logger, h.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/emissions", func(r chi.Router) {
			r.Get("/", h.ListEmissions)
			r.Post("/", h.CreateEmission)

			// Import/export
			r.Post("/bulk-import", h.BulkImport)
			r.Post("/import", h.ImportCSV)
			r.Get("/export", h.ExportCSV)
			r.Get("/imports", h.ListImports)

			// Aggregates
			r.Get("/stats/summary", h.StatsSummary)
			r.Get("/stats/trend", h.StatsTrend)
			r.Get("/snapshot", h.Snapshot)
			r.Get("/chart", h.Chart)
			r.Get("/taxonomy", h.Taxonomy)

			r.Get("/{year}", h.GetEmission)
			r.Put("/{year}", h.UpdateEmission)
			r.Delete("/{year}", h.DeleteEmission)
		})

		// Sample routes
		r.Route("/samples", func(r chi.Router) {
			r.Get("/", h.ListSamples)
			r.Get("/current", h.GetCurrentSample)
			r.Post("/load", h.LoadSample)
		})
	})

	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics.Handler())
	}

	return r
}
