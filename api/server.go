/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in error logs
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Prometheus counters and latency (when enabled)
  5. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /health               Liveness + store ping
  /metrics              Prometheus exposition (when enabled)
  /api/activities/*     Activities, registration, per-activity stats
  /api/attendance/*     Balances and payments
  /api/stats/*          Aggregated statistics
  /api/persons/*        Directory
  /api/members/*
  /api/subgroups/*
  /api/constants        Dues range
  /api/scenarios/*      Demo scenarios
  /api/fixtures         Fixture upload

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DefaultCORSOrigins is used when no origins are configured.
var DefaultCORSOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	if len(corsOrigins) == 0 {
		corsOrigins = DefaultCORSOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if h.metrics != nil {
		r.Use(h.metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)
	if h.metrics != nil {
		r.Method("GET", "/metrics", h.metrics.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Activity routes
		r.Route("/activities", func(r chi.Router) {
			r.Get("/", h.ListActivities)
			r.Post("/", h.CreateActivity)
			r.Get("/{id}", h.GetActivity)
			r.Get("/{id}/stats", h.GetActivityStats)
			r.Get("/{id}/attendance", h.ListAttendance)
			r.Post("/{id}/attendance", h.RegisterAttendance)
		})

		// Attendance routes
		r.Route("/attendance", func(r chi.Router) {
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/payments", h.ListPayments)
			r.Post("/{id}/payments", h.RecordPayment)
		})

		// Statistics routes
		r.Route("/stats", func(r chi.Router) {
			r.Get("/activities", h.ListActivityStats)
			r.Get("/subgroups", h.ListSubGroupStats)
			r.Get("/members", h.ListMemberStats)
		})

		// Directory routes
		r.Route("/persons", func(r chi.Router) {
			r.Get("/", h.ListPersons)
			r.Post("/", h.CreatePerson)
			r.Get("/{id}/identity", h.GetIdentity)
		})
		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.ListMembers)
			r.Post("/", h.CreateMember)
			r.Get("/{id}", h.GetMember)
		})
		r.Route("/subgroups", func(r chi.Router) {
			r.Get("/", h.ListSubGroups)
			r.Post("/", h.CreateSubGroup)
			r.Post("/{id}/members", h.AddToSubGroup)
		})
		r.Get("/constants", h.GetConstants)
		r.Put("/constants", h.PutConstants)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
		r.Post("/fixtures", h.LoadFixture)
	})

	return r
}
