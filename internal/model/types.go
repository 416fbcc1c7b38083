package model

import (
	"time"

	"github.com/google/uuid"
)

// User represents a user account
type User struct {
	ID               uuid.UUID
	Email            string
	PasswordHash     []byte
	Role             string
	TwoFactorEnabled bool
	CreatedAt        time.Time
}

// TwoFactorToken represents one pending second-factor challenge.
// At most one live token exists per user; issuing a new one replaces the prior.
type TwoFactorToken struct {
	SessionID    uuid.UUID
	UserID       uuid.UUID
	CodeHash     []byte
	ExpiresAt    time.Time
	AttemptCount int
	CreatedAt    time.Time
}

// TwoFactorConfirmation is a one-shot marker that second-factor verification
// succeeded for a user. Session issuance consumes it exactly once.
type TwoFactorConfirmation struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	CreatedAt time.Time
}

// Session is what the request gate sees of the current session: presence,
// owner, and role. The full lifecycle lives in the session cookie itself.
type Session struct {
	Present bool
	UserID  uuid.UUID
	Email   string
	Role    string
}
