/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Timeout:    Bounds every request
  5. CORS:       Cross-origin requests for dashboards

ROUTE GROUPS:
  /api/rules          Rule table
  /api/users/*        Users, goals, bonuses, clock-out, summaries
  /api/activities/*   Activity creation and replay
  /api/goals/*        Goal management
  /api/leaderboard/*  Leaderboard reads and manual recompute
  /api/scenarios/*    Demo data loaders

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/rules", h.ListRules)

		// Demo scenarios
		r.Get("/scenarios", h.ListScenarios)
		r.Post("/scenarios/load", h.LoadScenario)

		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{id}/goals", h.ListUserGoals)
			r.Get("/{id}/bonuses", h.GetUserBonuses)
			r.Post("/{id}/clock-out", h.ClockOut)
			r.Get("/{id}/summaries/{date}", h.GetDailySummary)
		})

		// Activity routes
		r.Route("/activities", func(r chi.Router) {
			r.Post("/", h.CreateActivity)
			r.Get("/{id}", h.GetActivity)
			r.Post("/{id}/replay", h.ReplayActivity)
		})

		// Goal routes
		r.Route("/goals", func(r chi.Router) {
			r.Post("/", h.CreateGoal)
			r.Post("/{id}/archive", h.ArchiveGoal)
		})

		// Leaderboard routes
		r.Route("/leaderboard", func(r chi.Router) {
			r.Get("/", h.GetLeaderboard)
			r.Post("/recompute", h.RecomputeLeaderboard)
			r.Get("/runs", h.ListAggregationRuns)
			r.Get("/{userId}", h.GetLeaderboardEntry)
		})
	})

	return r
}
