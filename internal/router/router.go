package router

import (
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"codementor-backend/internal/handlers"
	"codementor-backend/internal/metrics"
	"codementor-backend/internal/middleware"
)

type ChatDeps struct {
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	Gate           *middleware.AuthGate
	Limiter        *middleware.RateLimiter
	Chat           *handlers.ChatHandler
	Health         *handlers.HealthHandler
	AllowedOrigins []string
	TrustedProxies []*net.IPNet
}

// NewChat builds the chat service router. Everything under /api/chat requires
// a bearer token.
func NewChat(d ChatDeps) http.Handler {
	r := base(d.Logger, d.Metrics, d.AllowedOrigins, d.TrustedProxies)

	r.Get("/", d.Health.Root)
	r.Get("/health", d.Health.Health)
	r.Handle("/metrics", d.Metrics.Handler())

	r.Route("/api/chat", func(r chi.Router) {
		r.Use(d.Gate.Middleware)
		if d.Limiter != nil {
			r.Use(d.Limiter.Middleware)
		}

		r.Post("/message", d.Chat.SendMessage)
		r.Get("/conversations", d.Chat.ListConversations)
		r.Get("/conversations/{id}", d.Chat.GetConversation)
		r.Delete("/conversations/{id}", d.Chat.DeleteConversation)
		r.Post("/conversations/{id}/continue", d.Chat.ContinueConversation)
		r.Get("/models", d.Chat.Models)
		r.Get("/stats", d.Chat.Stats)
	})

	return r
}

type AuthDeps struct {
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	Gate           *middleware.AuthGate
	Limiter        *middleware.RateLimiter
	Auth           *handlers.AuthHandler
	Health         *handlers.HealthHandler
	AllowedOrigins []string
	TrustedProxies []*net.IPNet
}

// NewAuth builds the auth service router. The routes are served under both
// /api/auth and the older /auth prefix.
func NewAuth(d AuthDeps) http.Handler {
	r := base(d.Logger, d.Metrics, d.AllowedOrigins, d.TrustedProxies)

	r.Get("/", d.Health.Root)
	r.Get("/health", d.Health.Health)
	r.Handle("/metrics", d.Metrics.Handler())

	authRoutes := func(r chi.Router) {
		r.Get("/health", d.Health.Health)

		r.Group(func(r chi.Router) {
			if d.Limiter != nil {
				r.Use(d.Limiter.Middleware)
			}
			r.Post("/register", d.Auth.Register)
			r.Post("/login", d.Auth.Login)
			r.Post("/token/refresh", d.Auth.Refresh)
			r.Get("/verify-email", d.Auth.VerifyEmail)
			r.Post("/resend-verification", d.Auth.ResendVerification)
			r.Post("/forgot-password", d.Auth.ForgotPassword)
			r.Post("/reset-password", d.Auth.ResetPassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(d.Gate.Middleware)
			r.Post("/logout", d.Auth.Logout)
			r.Get("/profile", d.Auth.GetProfile)
			r.Put("/profile", d.Auth.UpdateProfile)
			r.Post("/change-password", d.Auth.ChangePassword)
		})
	}

	r.Route("/api/auth", authRoutes)
	r.Route("/auth", authRoutes)

	return r
}

func base(logger *zap.Logger, m *metrics.Metrics, origins []string, trusted []*net.IPNet) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP(trusted))
	r.Use(chimiddleware.StripSlashes)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Metrics(m))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.CORS(origins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "Resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	return r
}
