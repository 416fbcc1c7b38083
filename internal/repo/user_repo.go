package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/authgate/server/internal/model"
	"github.com/google/uuid"
)

// UserRepo defines the interface for user repository operations
type UserRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	Create(ctx context.Context, email string, passwordHash []byte, role string) (model.User, error)
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

// GetByID retrieves a user by ID. Returns ErrNotFound if no such user exists.
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, role, two_factor_enabled, created_at
		FROM users
		WHERE id = $1
	`, id))
}

// GetByEmail retrieves a user by email. Returns ErrNotFound if no such user exists.
func (r *userRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, role, two_factor_enabled, created_at
		FROM users
		WHERE email = $1
	`, email))
}

// Create inserts a new user.
func (r *userRepo) Create(ctx context.Context, email string, passwordHash []byte, role string) (model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash, role)
		VALUES ($1, $2, $3)
		RETURNING id, email, password_hash, role, two_factor_enabled, created_at
	`, email, passwordHash, role))
}

func scanUser(row *sql.Row) (model.User, error) {
	var user model.User
	var idStr string
	err := row.Scan(
		&idStr,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.TwoFactorEnabled,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("query user: %w", err)
	}
	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.User{}, fmt.Errorf("parse user ID: %w", err)
	}
	return user, nil
}
