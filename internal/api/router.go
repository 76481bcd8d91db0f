// Package api wires the HTTP surface: middleware chain, REST routes and the
// WebSocket upgrade endpoint.
package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/BRIKIAchraf/studyhub/internal/api/middleware"
	"github.com/BRIKIAchraf/studyhub/internal/chat"
	"github.com/BRIKIAchraf/studyhub/internal/handlers"
	"github.com/BRIKIAchraf/studyhub/internal/store"
	"github.com/BRIKIAchraf/studyhub/internal/ws"
)

// Config carries router dependencies.
type Config struct {
	Store      store.DataStore
	Redis      *store.RedisStore // optional
	Chat       *chat.Service
	JWTSecret  string
	RateLimits middleware.RateLimiterConfig
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024)) // 16KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting (no-op without Redis)
	var limiter *middleware.RateLimiter
	if cfg.Redis != nil {
		limiter = middleware.NewRateLimiter(cfg.Redis.Client(), logger, cfg.RateLimits)
	} else {
		limiter = middleware.NewRateLimiter(nil, logger, cfg.RateLimits)
	}
	r.Use(limiter.Middleware)

	// CORS - clients are browser apps served from other origins
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(cfg.Store, cfg.Redis, cfg.Chat, logger)
	auth := middleware.NewAuthMiddleware(cfg.JWTSecret)
	wsHandler := ws.NewHandler(auth, cfg.Chat, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Get("/health", h.Health)

	// The live channel; the token travels in the query string.
	r.Get("/ws", wsHandler.ServeWS)

	// Authenticated REST surface
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Get("/courses", h.ListCourses)
		r.Post("/courses", h.CreateCourse)
		r.Post("/courses/{id}/enroll", h.RequestEnrollment)
		r.Get("/courses/{id}/enrollments", h.ListEnrollments)
		r.Put("/enrollments/{id}", h.DecideEnrollment)

		r.Get("/courses/{id}/messages", h.ListMessages)
		r.Get("/courses/{id}/unread-count", h.UnreadCount)
		r.Put("/courses/{id}/messages/{messageID}/pin", h.PinMessage)

		r.Post("/courses/{id}/sessions", h.RecordSession)
		r.Get("/leaderboard", h.Leaderboard)
		r.Get("/admin/stats", h.AdminStats)
	})

	return r
}
