package repo

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/authgate/server/internal/model"
	"github.com/google/uuid"
)

// TwoFactorRepo defines the interface for two-factor token repository
// operations. Every mutation is a single atomic statement or transaction so a
// cancelled caller never leaves a token half-updated.
type TwoFactorRepo interface {
	ReplaceForUser(ctx context.Context, userID, sessionID uuid.UUID, codeHash []byte, expiresAt time.Time) error
	GetBySessionID(ctx context.Context, sessionID uuid.UUID) (model.TwoFactorToken, error)
	Delete(ctx context.Context, sessionID uuid.UUID) error
	IncrementAttemptBelow(ctx context.Context, sessionID uuid.UUID, ceiling int) (newCount int, ok bool, err error)
	ConsumeAndConfirm(ctx context.Context, sessionID, userID uuid.UUID) (uuid.UUID, error)
}

type twoFactorRepo struct {
	db *sql.DB
}

// NewTwoFactorRepo creates a new TwoFactorRepo instance
func NewTwoFactorRepo(db *sql.DB) TwoFactorRepo {
	return &twoFactorRepo{db: db}
}

// ReplaceForUser enforces at most one live token per user: atomically deletes
// any existing token for the user and inserts the new one. An advisory lock
// serializes concurrent issuance for the same user.
func (r *twoFactorRepo) ReplaceForUser(ctx context.Context, userID, sessionID uuid.UUID, codeHash []byte, expiresAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Blocks until we hold the lock; released on COMMIT/ROLLBACK.
	_, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(1, hashtext($1::text))`, userID)
	if err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM two_factor_tokens WHERE user_id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("delete existing token: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO two_factor_tokens (session_id, user_id, code_hash, expires_at)
		VALUES ($1, $2, $3, $4)
	`, sessionID, userID, hex.EncodeToString(codeHash), expiresAt)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetBySessionID returns the token for the session id regardless of expiry or
// attempt count; the caller applies its ordered checks. Returns ErrNotFound
// when no token exists.
func (r *twoFactorRepo) GetBySessionID(ctx context.Context, sessionID uuid.UUID) (model.TwoFactorToken, error) {
	var tok model.TwoFactorToken
	var sessionIDStr, userIDStr, codeHashHex string
	err := r.db.QueryRowContext(ctx, `
		SELECT session_id, user_id, code_hash, expires_at, attempt_count, created_at
		FROM two_factor_tokens
		WHERE session_id = $1
	`, sessionID).Scan(
		&sessionIDStr,
		&userIDStr,
		&codeHashHex,
		&tok.ExpiresAt,
		&tok.AttemptCount,
		&tok.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.TwoFactorToken{}, ErrNotFound
		}
		return model.TwoFactorToken{}, fmt.Errorf("query token: %w", err)
	}

	if tok.SessionID, err = uuid.Parse(sessionIDStr); err != nil {
		return model.TwoFactorToken{}, fmt.Errorf("parse session ID: %w", err)
	}
	if tok.UserID, err = uuid.Parse(userIDStr); err != nil {
		return model.TwoFactorToken{}, fmt.Errorf("parse user ID: %w", err)
	}
	if tok.CodeHash, err = hex.DecodeString(codeHashHex); err != nil {
		return model.TwoFactorToken{}, fmt.Errorf("decode code_hash: %w", err)
	}
	return tok, nil
}

// Delete removes the token. Deleting an already-deleted token is not an error.
func (r *twoFactorRepo) Delete(ctx context.Context, sessionID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM two_factor_tokens WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

// IncrementAttemptBelow increments attempt_count only while it is still below
// the ceiling, in one conditional UPDATE. Concurrent verifications serialize
// on the row, so at most ceiling increments can ever succeed. ok is false when
// the token is gone or the ceiling was already reached.
func (r *twoFactorRepo) IncrementAttemptBelow(ctx context.Context, sessionID uuid.UUID, ceiling int) (int, bool, error) {
	var newCount int
	err := r.db.QueryRowContext(ctx, `
		UPDATE two_factor_tokens
		SET attempt_count = attempt_count + 1
		WHERE session_id = $1 AND attempt_count < $2
		RETURNING attempt_count
	`, sessionID, ceiling).Scan(&newCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("increment attempt: %w", err)
	}
	return newCount, true, nil
}

// ConsumeAndConfirm deletes the token and creates the confirmation in one
// transaction, so a crash can never leave the token gone without a
// confirmation. Returns ErrNotFound when the token was already consumed.
func (r *twoFactorRepo) ConsumeAndConfirm(ctx context.Context, sessionID, userID uuid.UUID) (uuid.UUID, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM two_factor_tokens WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("consume token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return uuid.Nil, ErrNotFound
	}

	// One confirmation per user: a stale unconsumed confirmation from an
	// abandoned login is superseded.
	_, err = tx.ExecContext(ctx, `
		DELETE FROM two_factor_confirmations WHERE user_id = $1
	`, userID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("supersede confirmation: %w", err)
	}

	var idStr string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO two_factor_confirmations (user_id)
		VALUES ($1)
		RETURNING id
	`, userID).Scan(&idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert confirmation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse confirmation ID: %w", err)
	}
	return id, nil
}
