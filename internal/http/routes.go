// Package http arma el router de la API y el servidor.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/authkit/internal/http/handlers"
	"github.com/dropDatabas3/authkit/internal/http/middlewares"
	"github.com/dropDatabas3/authkit/internal/rate"
)

// RouterDeps contiene todo lo que el router necesita ya construido.
type RouterDeps struct {
	Auth *handlers.AuthHandler
	MFA  *handlers.MFAHandler
	Me   *handlers.MeHandler

	Verifier middlewares.AccessVerifier

	// Limiters opcionales (nil => sin rate limit en ese endpoint).
	LoginLimiter   rate.Limiter
	RefreshLimiter rate.Limiter

	// Handler de /metrics (nil => no se expone).
	Metrics http.Handler
}

// NewRouter arma el árbol de rutas v1 con los middlewares transversales.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middlewares.WithRequestID())
	r.Use(middlewares.WithLogging())
	r.Use(WithMetrics)

	requireAuth := middlewares.WithAuth(deps.Verifier)

	r.Route("/v1/auth", func(r chi.Router) {
		r.Post("/register", deps.Auth.Register)

		r.With(middlewares.WithRateLimit(deps.LoginLimiter, "login")).
			Post("/login", deps.Auth.Login)
		r.With(middlewares.WithRateLimit(deps.RefreshLimiter, "refresh")).
			Post("/refresh", deps.Auth.Refresh)

		r.Post("/logout", deps.Auth.Logout)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/me", deps.Me.Me)
			r.Delete("/me", deps.Auth.Deactivate)
			r.Put("/password", deps.Auth.ChangePassword)
		})
	})

	r.Route("/v1/mfa/totp", func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/enroll", deps.MFA.Enroll)
		r.Post("/verify", deps.MFA.Verify)
		r.Post("/disable", deps.MFA.Disable)
	})

	r.Get("/healthz", handlers.Healthz)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	return r
}
