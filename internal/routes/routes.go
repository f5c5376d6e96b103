package routes

import (
	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/handlers"
	"github.com/BradenHooton/loginguard/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	fraudHandler *handlers.FraudHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *auth.TokenManager,
	userRepo auth.UserRepository,
	rateLimitConfig middleware.RateLimitConfig,
) {
	router.Get("/health", healthHandler.Health)

	// Public routes - no authentication required
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimitConfig))
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
	})

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager))

		userHandler.RegisterRoutes(r)
		r.Post("/fraud/predict", fraudHandler.Predict)
		r.Get("/fraud/status", fraudHandler.Status)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(userRepo, "admin"))
			r.Post("/fraud/train", fraudHandler.Train)
			r.Get("/fraud/attempts", fraudHandler.Attempts)
		})
	})
}
