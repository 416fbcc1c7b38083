package handlers

import (
	"net/http"

	"github.com/authgate/server/internal/gate"
	"github.com/go-chi/chi/v5"
)

// PageHandler serves the application pages behind the gate. Rendering proper
// is out of scope here; pages answer with the data a frontend would bind.
type PageHandler struct{}

// NewPageHandler creates a new page handler
func NewPageHandler() *PageHandler {
	return &PageHandler{}
}

// HandleHome handles GET / (public).
func (h *PageHandler) HandleHome(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"page": "home"})
}

// HandleDashboard handles GET /dashboard (protected; gate guarantees a session).
func (h *PageHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	sess := gate.SessionFrom(r.Context())
	respondWithJSON(w, http.StatusOK, map[string]string{
		"page":  "dashboard",
		"email": sess.Email,
	})
}

// HandleSettings handles GET /settings and GET /settings/{section} (protected).
func (h *PageHandler) HandleSettings(w http.ResponseWriter, r *http.Request) {
	section := chi.URLParam(r, "section")
	if section == "" {
		section = "general"
	}
	respondWithJSON(w, http.StatusOK, map[string]string{
		"page":    "settings",
		"section": section,
	})
}

// HandleLoginPage handles GET /auth/login (auth-only; the gate bounces
// authenticated visitors to the post-login destination).
func (h *PageHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{
		"page":        "login",
		"callbackUrl": r.URL.Query().Get("callbackUrl"),
	})
}

// HandleTwoFactorPage handles GET /auth/two-factor (auth-only).
func (h *PageHandler) HandleTwoFactorPage(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"page": "two-factor"})
}
