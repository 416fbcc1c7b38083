package http

import (
	"github.com/authgate/server/internal/auth"
	"github.com/authgate/server/internal/gate"
	"github.com/authgate/server/internal/http/handlers"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new HTTP router with all routes configured. The gate
// runs before every route, so no handler below executes for a request the
// gate redirected.
func NewRouter(authHandler *handlers.AuthHandler, sessions *auth.SessionService, g *gate.Gate) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(gate.Middleware(g, sessions))

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	// Session protocol internals: the gate passes /api/auth/* through
	// unconditionally.
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		r.Get("/session", authHandler.HandleSession)
		r.Route("/two-factor", func(r chi.Router) {
			r.Post("/verify", authHandler.HandleVerifyTwoFactor)
			r.Post("/resend", authHandler.HandleResendTwoFactor)
		})
	})

	pages := handlers.NewPageHandler()
	r.Get("/", pages.HandleHome)
	r.Get("/auth/login", pages.HandleLoginPage)
	r.Get("/auth/two-factor", pages.HandleTwoFactorPage)

	// Protected pages; the gate already redirected anonymous requests.
	r.Get("/dashboard", pages.HandleDashboard)
	r.Get("/settings", pages.HandleSettings)
	r.Get("/settings/{section}", pages.HandleSettings)
	r.Get("/me", authHandler.HandleMe)

	return r
}
