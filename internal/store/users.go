package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/blinktext/internal/models"
)

const usersTable = "users"

var userColumns = []string{"id", "name", "email", "password_hash", "created_at"}

// UserStore implements models.UserRepository on database/sql.
type UserStore struct {
	db      *sql.DB
	dialect Dialect
}

func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	_, err := NewInsertBuilder(usersTable).
		Set("id", user.ID).
		Set("name", user.Name).
		Set("email", strings.ToLower(user.Email)).
		Set("password_hash", user.PasswordHash).
		Set("created_at", toMillis(user.CreatedAt)).
		Exec(ctx, s.db, s.dialect)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	row := NewSelectBuilder(usersTable, userColumns...).
		Where("email = ?", strings.ToLower(email)).
		QueryRow(ctx, s.db, s.dialect)
	return scanUser(row)
}

func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row := NewSelectBuilder(usersTable, userColumns...).
		Where("id = ?", id).
		QueryRow(ctx, s.db, s.dialect)
	return scanUser(row)
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user      models.User
		createdAt int64
	)
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.CreatedAt = fromMillis(createdAt)
	return &user, nil
}
