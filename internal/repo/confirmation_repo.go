package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ConfirmationRepo defines the interface for two-factor confirmation
// repository operations.
type ConfirmationRepo interface {
	Consume(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
	Exists(ctx context.Context, userID uuid.UUID) (bool, error)
}

type confirmationRepo struct {
	db *sql.DB
}

// NewConfirmationRepo creates a new ConfirmationRepo instance
func NewConfirmationRepo(db *sql.DB) ConfirmationRepo {
	return &confirmationRepo{db: db}
}

// Consume deletes the user's confirmation and returns its id. DELETE with
// RETURNING makes consumption exactly-once: of two concurrent callers only
// one gets a row, the other gets ErrNotFound.
func (r *confirmationRepo) Consume(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	var idStr string
	err := r.db.QueryRowContext(ctx, `
		DELETE FROM two_factor_confirmations
		WHERE user_id = $1
		RETURNING id
	`, userID).Scan(&idStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("consume confirmation: %w", err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse confirmation ID: %w", err)
	}
	return id, nil
}

// Exists reports whether an unconsumed confirmation is pending for the user.
func (r *confirmationRepo) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM two_factor_confirmations WHERE user_id = $1)
	`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check confirmation: %w", err)
	}
	return exists, nil
}
