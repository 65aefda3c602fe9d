package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Gouthamsurepally/gemini-backend-clone/internal/api/middleware"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/handlers"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, jwtSecret string) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(32 * 1024)) // 32KB max body
	r.Use(middleware.RequireJSON)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS - allow all origins (clients call from anywhere)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	auth := middleware.NewAuthMiddleware(jwtSecret)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/health", h.Health)
	r.Get("/queue/stats", h.QueueStats)

	// Authenticated routes (require bearer token)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Post("/chatroom", h.CreateChatroom)
		r.Get("/chatroom", h.ListChatrooms)
		r.Get("/chatroom/{id}", h.GetChatroom)
		r.Patch("/chatroom/{id}", h.UpdateChatroom)
		r.Delete("/chatroom/{id}", h.DeleteChatroom)
		r.Post("/chatroom/{id}/message", h.SendMessage)
	})

	return r
}
