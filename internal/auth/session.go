package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/authgate/server/internal/model"
	"github.com/authgate/server/internal/repo"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrConfirmationMissing means session issuance was attempted for a
// two-factor user without a pending TwoFactorConfirmation to consume.
var ErrConfirmationMissing = errors.New("two-factor confirmation required")

// SessionClaims are the JWT claims carried by the session cookie.
type SessionClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// SessionService mints and resolves session cookies. For users with the
// second factor enabled, minting consumes their TwoFactorConfirmation
// exactly once before signing anything.
type SessionService struct {
	secret        []byte
	ttl           time.Duration
	cookieName    string
	secureCookies bool
	confirmations repo.ConfirmationRepo
}

// NewSessionService creates a session service.
func NewSessionService(secret string, ttl time.Duration, cookieName string, secureCookies bool, confirmations repo.ConfirmationRepo) *SessionService {
	return &SessionService{
		secret:        []byte(secret),
		ttl:           ttl,
		cookieName:    cookieName,
		secureCookies: secureCookies,
		confirmations: confirmations,
	}
}

// Issue mints a session cookie for the user. When the user has the second
// factor enabled, a pending confirmation must exist and is consumed here;
// without one the session is refused with ErrConfirmationMissing.
func (s *SessionService) Issue(ctx context.Context, user model.User) (*http.Cookie, error) {
	if user.TwoFactorEnabled {
		if _, err := s.confirmations.Consume(ctx, user.ID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ErrConfirmationMissing
			}
			return nil, fmt.Errorf("consume confirmation: %w", err)
		}
	}

	now := time.Now()
	claims := &SessionClaims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	return s.cookie(signed, int(s.ttl.Seconds())), nil
}

// ResolveSession reads the session off the request cookie. It never fails:
// a missing, malformed or expired cookie resolves to an absent session.
func (s *SessionService) ResolveSession(r *http.Request) model.Session {
	c, err := r.Cookie(s.cookieName)
	if err != nil || c.Value == "" {
		return model.Session{}
	}

	token, err := jwt.ParseWithClaims(c.Value, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return model.Session{}
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return model.Session{}
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return model.Session{}
	}

	return model.Session{
		Present: true,
		UserID:  userID,
		Email:   claims.Email,
		Role:    claims.Role,
	}
}

// Clear returns an expired cookie that removes the session client-side.
func (s *SessionService) Clear() *http.Cookie {
	return s.cookie("", -1)
}

func (s *SessionService) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     s.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}
