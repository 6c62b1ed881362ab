package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/atinyakov/DigitalPass/internal/models"
	"github.com/lib/pq"
)

func setupAuthMock(t *testing.T) (*PostgresAuthRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	repo := NewPostgresAuthRepository(db)
	cleanup := func() { db.Close() }
	return repo, mock, cleanup
}

var userColumns = []string{"id", "full_name", "email", "mobile", "password_hash", "created_at"}

func TestUserExists_True(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	email := "ravi@example.com"
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`)).
		WithArgs(email).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.UserExists(context.Background(), email)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Errorf("expected user to exist, got false")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUserExists_Error(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`)).
		WithArgs("x@example.com").
		WillReturnError(errors.New("query failed"))

	if _, err := repo.UserExists(context.Background(), "x@example.com"); err == nil {
		t.Errorf("expected error, got nil")
	}
}

func TestCreateUser_Success(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	u := models.User{ID: "u1", FullName: "Ravi", Email: "ravi@example.com", Mobile: "9876543210", PasswordHash: "hash", CreatedAt: time.Now()}
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users (id, full_name, email, mobile, password_hash, created_at)`)).
		WithArgs(u.ID, u.FullName, u.Email, u.Mobile, u.PasswordHash, u.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	err := repo.CreateUser(context.Background(), models.User{ID: "u2", Email: "dup@example.com"})
	if !errors.Is(err, models.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestGetUserByEmail(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, full_name, email, mobile, password_hash, created_at FROM users WHERE email = $1`)).
		WithArgs("ravi@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow("u1", "Ravi", "ravi@example.com", "9876543210", "hash", created))

	u, err := repo.GetUserByEmail(context.Background(), "ravi@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID != "u1" || u.PasswordHash != "hash" || !u.CreatedAt.Equal(created) {
		t.Errorf("unexpected user: %+v", u)
	}
}

func TestGetUserByEmail_NotFound(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE email = $1`)).
		WithArgs("missing@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns))

	_, err := repo.GetUserByEmail(context.Background(), "missing@example.com")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
