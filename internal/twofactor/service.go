package twofactor

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/authgate/server/internal/mail"
	"github.com/authgate/server/internal/repo"
	"github.com/google/uuid"
)

// Failure taxonomy for code verification. Returned as typed results to the
// caller; the UI layer owns user-facing messaging.
var (
	// ErrSessionMissing means no live token exists for the session id (never
	// issued, already consumed, replaced by a resend, or its user vanished).
	ErrSessionMissing = errors.New("two-factor session not found")
	// ErrCodeExpired means the token outlived its TTL.
	ErrCodeExpired = errors.New("two-factor code expired")
	// ErrCodeInvalid means the submitted code did not match.
	ErrCodeInvalid = errors.New("two-factor code invalid")
	// ErrMaxAttempts means the attempt ceiling was reached.
	ErrMaxAttempts = errors.New("two-factor attempts exceeded")
)

// Verification is the result of a successful code check. It does not carry a
// session: minting one is session issuance's job, which consumes the
// confirmation.
type Verification struct {
	UserID         uuid.UUID
	Email          string
	ConfirmationID uuid.UUID
}

// Service manages the lifecycle of pending second-factor challenges: bounded
// attempts, expiry, and at-most-once code consumption.
type Service struct {
	tokens      repo.TwoFactorRepo
	users       repo.UserRepo
	mailer      mail.Mailer
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
}

// NewService creates a two-factor service.
func NewService(tokens repo.TwoFactorRepo, users repo.UserRepo, mailer mail.Mailer, ttl time.Duration, maxAttempts int) *Service {
	return &Service{
		tokens:      tokens,
		users:       users,
		mailer:      mailer,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Issue creates a fresh challenge for the user, replacing any live one, and
// mails the code. The returned session id is the only handle the client gets;
// whether a prior token existed is never revealed.
func (s *Service) Issue(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return uuid.Nil, ErrSessionMissing
		}
		return uuid.Nil, fmt.Errorf("load user: %w", err)
	}

	sessionID := uuid.New()
	code, err := generateCode()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate code: %w", err)
	}

	expiresAt := s.now().Add(s.ttl)
	if err := s.tokens.ReplaceForUser(ctx, userID, sessionID, hashCode(sessionID, code), expiresAt); err != nil {
		return uuid.Nil, fmt.Errorf("store token: %w", err)
	}

	if err := s.mailer.SendCode(ctx, user.Email, code, sessionID); err != nil {
		return uuid.Nil, fmt.Errorf("dispatch code: %w", err)
	}
	return sessionID, nil
}

// Resend re-issues a challenge for an existing pending session. The session
// id must still resolve to a live token and user, so "resend" cannot be used
// to probe arbitrary session ids beyond the generic ErrSessionMissing.
func (s *Service) Resend(ctx context.Context, sessionID uuid.UUID) (uuid.UUID, error) {
	tok, err := s.tokens.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return uuid.Nil, ErrSessionMissing
		}
		return uuid.Nil, fmt.Errorf("load token: %w", err)
	}
	// Issue replaces the old token, so the prior code dies with the resend.
	return s.Issue(ctx, tok.UserID)
}

// Verify checks a submitted code against the pending session. The checks run
// in a fixed order (session, user, expiry, attempt ceiling, code): each
// earlier failure short-circuits and deletes the token where required, and
// later checks assume the earlier ones passed. In particular the ceiling is
// checked before the code comparison, so a request arriving after the ceiling
// was reached cannot sneak a correct guess through.
func (s *Service) Verify(ctx context.Context, sessionID uuid.UUID, code string) (Verification, error) {
	tok, err := s.tokens.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Verification{}, ErrSessionMissing
		}
		return Verification{}, fmt.Errorf("load token: %w", err)
	}

	user, err := s.users.GetByID(ctx, tok.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// Cannot verify against a vanished account.
			_ = s.tokens.Delete(ctx, sessionID)
			return Verification{}, ErrSessionMissing
		}
		return Verification{}, fmt.Errorf("load user: %w", err)
	}

	if s.now().After(tok.ExpiresAt) {
		if err := s.tokens.Delete(ctx, sessionID); err != nil {
			return Verification{}, fmt.Errorf("delete expired token: %w", err)
		}
		return Verification{}, ErrCodeExpired
	}

	if tok.AttemptCount >= s.maxAttempts {
		if err := s.tokens.Delete(ctx, sessionID); err != nil {
			return Verification{}, fmt.Errorf("delete exhausted token: %w", err)
		}
		return Verification{}, ErrMaxAttempts
	}

	if subtle.ConstantTimeCompare(hashCode(sessionID, code), tok.CodeHash) != 1 {
		_, ok, err := s.tokens.IncrementAttemptBelow(ctx, sessionID, s.maxAttempts)
		if err != nil {
			return Verification{}, fmt.Errorf("record attempt: %w", err)
		}
		if !ok {
			// A concurrent attempt won the race to the ceiling (or consumed
			// the token); the conditional update refused ours.
			_ = s.tokens.Delete(ctx, sessionID)
			return Verification{}, ErrMaxAttempts
		}
		return Verification{}, ErrCodeInvalid
	}

	confirmationID, err := s.tokens.ConsumeAndConfirm(ctx, sessionID, tok.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// Already consumed by a concurrent verification.
			return Verification{}, ErrSessionMissing
		}
		return Verification{}, fmt.Errorf("consume token: %w", err)
	}

	return Verification{
		UserID:         user.ID,
		Email:          user.Email,
		ConfirmationID: confirmationID,
	}, nil
}

// generateCode returns a random 6-digit code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// hashCode returns SHA-256(sessionID:code). The random session id doubles as
// the salt, so the stored hash is useless without the matching token row.
func hashCode(sessionID uuid.UUID, code string) []byte {
	h := sha256.Sum256([]byte(sessionID.String() + ":" + code))
	return h[:]
}
