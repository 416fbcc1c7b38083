package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/authgate/server/internal/model"
	"github.com/authgate/server/internal/repo"
	"github.com/authgate/server/internal/twofactor"
	"github.com/google/uuid"
)

// ErrInvalidCredentials covers both unknown email and wrong password; the
// two are never distinguished to the caller.
var ErrInvalidCredentials = errors.New("invalid credentials")

// LoginResult is the outcome of a credential check. Exactly one of the two
// branches is populated: a pending two-factor session, or a minted cookie.
type LoginResult struct {
	TwoFactorPending   bool
	TwoFactorSessionID uuid.UUID
	Cookie             *http.Cookie
	User               model.User
}

// Service orchestrates primary login, second-factor completion, and session
// minting.
type Service struct {
	users     repo.UserRepo
	twoFactor *twofactor.Service
	sessions  *SessionService
}

// NewService creates an auth service.
func NewService(users repo.UserRepo, twoFactor *twofactor.Service, sessions *SessionService) *Service {
	return &Service{
		users:     users,
		twoFactor: twoFactor,
		sessions:  sessions,
	}
}

// Login checks the primary credential. For two-factor users it issues a
// challenge and returns its session id; otherwise it mints a session cookie
// directly.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("load user: %w", err)
	}
	if !CheckPassword(user.PasswordHash, password) {
		return LoginResult{}, ErrInvalidCredentials
	}

	if user.TwoFactorEnabled {
		sessionID, err := s.twoFactor.Issue(ctx, user.ID)
		if err != nil {
			return LoginResult{}, fmt.Errorf("issue two-factor challenge: %w", err)
		}
		return LoginResult{
			TwoFactorPending:   true,
			TwoFactorSessionID: sessionID,
			User:               user,
		}, nil
	}

	cookie, err := s.sessions.Issue(ctx, user)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue session: %w", err)
	}
	return LoginResult{Cookie: cookie, User: user}, nil
}

// CompleteTwoFactor verifies the submitted code and, on success, mints the
// session cookie by consuming the confirmation the verification just created.
// Failures pass through the two-factor taxonomy untouched so the handler can
// surface distinct messages.
func (s *Service) CompleteTwoFactor(ctx context.Context, sessionID uuid.UUID, code string) (*http.Cookie, model.User, error) {
	v, err := s.twoFactor.Verify(ctx, sessionID, code)
	if err != nil {
		return nil, model.User{}, err
	}

	user, err := s.users.GetByID(ctx, v.UserID)
	if err != nil {
		return nil, model.User{}, fmt.Errorf("load user: %w", err)
	}

	cookie, err := s.sessions.Issue(ctx, user)
	if err != nil {
		return nil, model.User{}, fmt.Errorf("issue session: %w", err)
	}
	return cookie, user, nil
}

// ResendTwoFactor re-issues the challenge for a pending session.
func (s *Service) ResendTwoFactor(ctx context.Context, sessionID uuid.UUID) (uuid.UUID, error) {
	return s.twoFactor.Resend(ctx, sessionID)
}
