package http

import (
	"net/http"

	"github.com/coach-onboarding/internal/config"
	"github.com/coach-onboarding/internal/metrics"
	"github.com/coach-onboarding/internal/transport/http/handler"
	appmiddleware "github.com/coach-onboarding/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", appmiddleware.AdminKeyHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// The onboarding API is unauthenticated, so every route under it is limited per IP.
	publicRL := appmiddleware.NewRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)

	healthH := handler.NewHealthHandler()
	sessionH := handler.NewOnboardingSessionHandler(deps.Sessions)

	r.Get("/health", healthH.Check)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/onboarding", func(r chi.Router) {
			r.Use(publicRL.Limit)

			r.Get("/session", sessionH.Get)
			r.Post("/session", sessionH.Create)
			r.Put("/session", sessionH.Update)
			r.Delete("/session", sessionH.Delete)

			if deps.Invitations != nil {
				invH := handler.NewInvitationHandler(deps.Invitations)
				r.Get("/validate", invH.Validate)
			}
		})

		if deps.Invitations != nil && cfg.AdminAPIKey != "" {
			invH := handler.NewInvitationHandler(deps.Invitations)
			r.Route("/admin", func(r chi.Router) {
				r.Use(appmiddleware.RequireAdminKey(cfg.AdminAPIKey))

				r.Post("/invitations", invH.Create)
				r.Delete("/invitations/{id}", invH.Revoke)
			})
		}
	})

	return r
}
