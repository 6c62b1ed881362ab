// Package repository provides the record store for users and pass applications,
// backed either by PostgreSQL or by process memory.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/atinyakov/DigitalPass/internal/models"
)

// PostgresAuthRepository implements user persistence using a PostgreSQL database.
type PostgresAuthRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresAuthRepository creates a new PostgresAuthRepository with the given database connection.
// db must be a valid *sql.DB connected to a PostgreSQL instance.
func NewPostgresAuthRepository(db *sql.DB) *PostgresAuthRepository {
	return &PostgresAuthRepository{DB: db}
}

// UserExists checks whether a user with the specified email exists in the database.
func (s *PostgresAuthRepository) UserExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.DB.QueryRowContext(
		ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`,
		email,
	).Scan(&exists)
	return exists, err
}

// CreateUser inserts a new user. A duplicate email yields models.ErrEmailTaken.
func (s *PostgresAuthRepository) CreateUser(ctx context.Context, u models.User) error {
	_, err := s.DB.ExecContext(
		ctx,
		`INSERT INTO users (id, full_name, email, mobile, password_hash, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.FullName, u.Email, u.Mobile, u.PasswordHash, u.CreatedAt,
	)
	if _, ok := uniqueViolation(err); ok {
		return models.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByEmail looks a user up by normalized email.
func (s *PostgresAuthRepository) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, full_name, email, mobile, password_hash, created_at FROM users WHERE email = $1`, email,
	).Scan(&u.ID, &u.FullName, &u.Email, &u.Mobile, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, models.ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}
