package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/authgate/server/internal/auth"
	"github.com/authgate/server/internal/gate"
	"github.com/authgate/server/internal/mail"
	"github.com/authgate/server/internal/middleware"
	"github.com/authgate/server/internal/twofactor"
	"github.com/google/uuid"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService   *auth.Service
	sessions      *auth.SessionService
	logger        *slog.Logger
	loginLimiter  *middleware.RateLimiter
	verifyLimiter *middleware.RateLimiter
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.Service, sessions *auth.SessionService, logger *slog.Logger) *AuthHandler {
	// IP rate limiters: 10 per 10min for login, 20 per 10min for verify/resend
	return &AuthHandler{
		authService:   authService,
		sessions:      sessions,
		logger:        logger,
		loginLimiter:  middleware.NewRateLimiter(10*time.Minute, 10),
		verifyLimiter: middleware.NewRateLimiter(10*time.Minute, 20),
	}
}

// loginRequest is the request body for POST /api/auth/login
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse is the JSON response for login
type loginResponse struct {
	TwoFactorRequired bool          `json:"two_factor_required"`
	SessionID         string        `json:"session_id,omitempty"`
	Message           string        `json:"message,omitempty"`
	User              *userResponse `json:"user,omitempty"`
}

// userResponse is the user object in API responses
type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// HandleLogin handles POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	if !h.loginLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			respondWithError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.logger.Error("login failed", slog.String("email", mail.MaskEmail(req.Email)), slog.Any("error", err))
		respondWithError(w, http.StatusInternalServerError, "login failed")
		return
	}

	if result.TwoFactorPending {
		respondWithJSON(w, http.StatusOK, loginResponse{
			TwoFactorRequired: true,
			SessionID:         result.TwoFactorSessionID.String(),
			Message:           "code_sent",
		})
		return
	}

	http.SetCookie(w, result.Cookie)
	respondWithJSON(w, http.StatusOK, loginResponse{
		User: &userResponse{
			ID:    result.User.ID.String(),
			Email: result.User.Email,
			Role:  result.User.Role,
		},
	})
}

// verifyRequest is the request body for POST /api/auth/two-factor/verify
type verifyRequest struct {
	SessionID string `json:"session_id"`
	Code      string `json:"code"`
}

// verifyResponse is the JSON response for a successful verification
type verifyResponse struct {
	Verified bool         `json:"verified"`
	User     userResponse `json:"user"`
}

// HandleVerifyTwoFactor handles POST /api/auth/two-factor/verify.
// The taxonomy maps to distinct error strings so the client knows whether
// to re-enter the code, request a new one, or restart login.
func (h *AuthHandler) HandleVerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Code = strings.TrimSpace(req.Code)
	sessionID, err := uuid.Parse(strings.TrimSpace(req.SessionID))
	if err != nil || req.Code == "" {
		respondWithError(w, http.StatusBadRequest, "session_id and code are required")
		return
	}

	if !h.verifyLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	cookie, user, err := h.authService.CompleteTwoFactor(r.Context(), sessionID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, twofactor.ErrSessionMissing):
			respondWithError(w, http.StatusUnauthorized, "session_missing")
		case errors.Is(err, twofactor.ErrCodeExpired):
			respondWithError(w, http.StatusUnauthorized, "code_expired")
		case errors.Is(err, twofactor.ErrMaxAttempts):
			respondWithError(w, http.StatusUnauthorized, "max_attempts_exceeded")
		case errors.Is(err, twofactor.ErrCodeInvalid):
			respondWithError(w, http.StatusUnauthorized, "code_invalid")
		default:
			h.logger.Error("two-factor verification failed", slog.Any("error", err))
			respondWithError(w, http.StatusInternalServerError, "verification failed")
		}
		return
	}

	http.SetCookie(w, cookie)
	respondWithJSON(w, http.StatusOK, verifyResponse{
		Verified: true,
		User: userResponse{
			ID:    user.ID.String(),
			Email: user.Email,
			Role:  user.Role,
		},
	})
}

// resendRequest is the request body for POST /api/auth/two-factor/resend
type resendRequest struct {
	SessionID string `json:"session_id"`
}

// resendResponse is the JSON response for resend
type resendResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// HandleResendTwoFactor handles POST /api/auth/two-factor/resend
func (h *AuthHandler) HandleResendTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID, err := uuid.Parse(strings.TrimSpace(req.SessionID))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	if !h.verifyLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	newID, err := h.authService.ResendTwoFactor(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, twofactor.ErrSessionMissing) {
			respondWithError(w, http.StatusUnauthorized, "session_missing")
			return
		}
		h.logger.Error("two-factor resend failed", slog.Any("error", err))
		respondWithError(w, http.StatusInternalServerError, "resend failed")
		return
	}

	respondWithJSON(w, http.StatusOK, resendResponse{
		SessionID: newID.String(),
		Message:   "code_sent",
	})
}

// HandleLogout handles POST /api/auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.sessions.Clear())
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "logged_out"})
}

// sessionResponse is the JSON response for GET /api/auth/session
type sessionResponse struct {
	Authenticated bool          `json:"authenticated"`
	User          *userResponse `json:"user,omitempty"`
}

// HandleSession handles GET /api/auth/session. It lives under the gate's
// auth-API passthrough prefix, so it answers for both states.
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.ResolveSession(r)
	if !sess.Present {
		respondWithJSON(w, http.StatusOK, sessionResponse{})
		return
	}
	respondWithJSON(w, http.StatusOK, sessionResponse{
		Authenticated: true,
		User: &userResponse{
			ID:    sess.UserID.String(),
			Email: sess.Email,
			Role:  sess.Role,
		},
	})
}

// HandleMe handles GET /me (protected; the gate guarantees a session).
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	sess := gate.SessionFrom(r.Context())
	if !sess.Present {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	respondWithJSON(w, http.StatusOK, userResponse{
		ID:    sess.UserID.String(),
		Email: sess.Email,
		Role:  sess.Role,
	})
}

// respondWithJSON writes a JSON response
func respondWithJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{"error": message})
}
