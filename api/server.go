/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/years/*      Leave year registry
  /api/employees/*  Employees, policies, summaries
  /api/entries/*    Leave request lifecycle
  /api/lieu         Time-in-lieu adjustments
  /api/holidays     Working-day calendar
  /api/admin/*      Rollover, override cancel, audit trail

SECURITY NOTE:
  No authentication middleware. The actor identity comes from the
  X-Actor-ID header, expected to be set by an upstream gateway.

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

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-ID"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Leave year routes
		r.Route("/years", func(r chi.Router) {
			r.Get("/", h.ListYears)
			r.Post("/", h.CreateYear)
			r.Get("/current", h.CurrentYear)
			r.Get("/{id}", h.GetYear)
			r.Get("/{id}/policies", h.ListYearPolicies)
		})

		// Employee routes
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Get("/{id}", h.GetEmployee)
			r.Get("/{id}/summary", h.GetSummary)
			r.Get("/{id}/policy", h.GetPolicy)
			r.Post("/{id}/policy", h.UpsertPolicy)
		})

		// Entry routes
		r.Route("/entries", func(r chi.Router) {
			r.Get("/", h.ListEntries)
			r.Post("/", h.CreateEntry)
			r.Get("/{id}", h.GetEntry)
			r.Post("/{id}/approve", h.ApproveEntry)
			r.Post("/{id}/reject", h.RejectEntry)
			r.Post("/{id}/discuss", h.DiscussEntry)
			r.Post("/{id}/cancel", h.CancelEntry)
			r.Post("/{id}/cancel/confirm", h.ConfirmCancellation)
			r.Post("/{id}/cancel/deny", h.DenyCancellation)
		})

		// Time-in-lieu routes
		r.Route("/lieu", func(r chi.Router) {
			r.Get("/", h.ListAdjustments)
			r.Post("/", h.GrantLieu)
		})

		// Holiday routes
		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Post("/", h.CreateHoliday)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/rollover", h.TriggerRollover)
			r.Get("/rollover/runs", h.ListRolloverRuns)
			r.Post("/entries/{id}/cancel", h.AdminCancelEntry)
			r.Get("/audit/{target}", h.GetAudit)
		})
	})

	return r
}
