package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/visuluxe/visuluxe/internal/api/handlers"
	"github.com/visuluxe/visuluxe/internal/api/middleware"
	"github.com/visuluxe/visuluxe/internal/auth"
	"github.com/visuluxe/visuluxe/internal/vault"
	"github.com/visuluxe/visuluxe/pkg/config"
	"gorm.io/gorm"
)

type RouterDeps struct {
	Config      *config.Config
	Logger      *slog.Logger
	DB          *gorm.DB
	Redis       *redis.Client
	Queue       *asynq.Client
	AuthService *auth.Service
	OTPService  *auth.OTPService
	JWTService  *auth.JWTService
	Vault       *vault.Service
}

func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logging(deps.Logger))
	r.Use(middleware.RateLimit(deps.Config.RateLimit.Requests, deps.Config.RateLimit.WindowSeconds))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "https://*.visuluxe.com"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authHandler := handlers.NewAuthHandler(deps.AuthService, deps.OTPService)
	providerHandler := handlers.NewProviderHandler(deps.DB, deps.Vault, deps.Queue, deps.Logger)
	providerKeyHandler := handlers.NewProviderKeyHandler(deps.Vault, deps.AuthService, deps.Logger)
	notificationHandler := handlers.NewNotificationHandler(deps.DB, deps.Logger)
	apiKeyHandler := handlers.NewAPIKeyHandler(deps.DB, deps.Logger)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Redis)

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/otp/request", authHandler.RequestOTP)
			r.Post("/otp/verify", authHandler.VerifyOTP)
			r.Post("/logout", authHandler.Logout)
		})

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(deps.JWTService))
			r.Use(middleware.RateLimitByUser(deps.Config.RateLimit.Requests, deps.Config.RateLimit.WindowSeconds))

			r.Get("/me", authHandler.Me)

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", notificationHandler.List)
				r.Post("/read-all", notificationHandler.MarkAllRead)
				r.Post("/{id}/read", notificationHandler.MarkRead)
			})

			r.Route("/api-keys", func(r chi.Router) {
				r.Get("/", apiKeyHandler.List)
				r.Post("/", apiKeyHandler.Create)
				r.Delete("/{id}", apiKeyHandler.Revoke)
			})

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin)

				r.Post("/provider-keys", providerKeyHandler.Manage)
				// Legacy path kept for older dashboard builds
				r.Post("/manage-provider-keys", providerKeyHandler.Manage)

				r.Route("/providers", func(r chi.Router) {
					r.Get("/", providerHandler.List)
					r.Post("/", providerHandler.Create)
					r.Get("/{id}", providerHandler.Get)
					r.Patch("/{id}", providerHandler.Update)
					r.Delete("/{id}", providerHandler.Delete)
				})
			})
		})
	})

	return r
}
