// Package service provides the business logic of DigitalPass: accounts and
// sessions, the application wizard and payment authorization. Persistence is
// delegated to repositories.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atinyakov/DigitalPass/internal/events"
	"github.com/atinyakov/DigitalPass/internal/models"
	"github.com/atinyakov/DigitalPass/internal/session"
	"github.com/atinyakov/DigitalPass/internal/validation"
)

// AuthRepository defines the persistence operations
// required by the authentication service.
type AuthRepository interface {
	// UserExists returns true if a user with the given email exists.
	UserExists(ctx context.Context, email string) (bool, error)
	// CreateUser stores a new user. Returns models.ErrEmailTaken for duplicates.
	CreateUser(ctx context.Context, u models.User) error
	// GetUserByEmail returns models.ErrNotFound for unknown emails.
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
}

// Sessions opens and closes login sessions.
type Sessions interface {
	Start(ctx context.Context, u models.User) (*session.Session, string, error)
	End(ctx context.Context, id string) error
}

// RegisterRequest is the registration form.
type RegisterRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Mobile   string `json:"mobile"`
	Password string `json:"password"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      models.User `json:"user"`
}

// AuthService implements registration, login and logout.
type AuthService struct {
	repo     AuthRepository
	sessions Sessions
	events   events.Publisher
	log      *zap.Logger
	params   *argon2id.Params
	now      func() time.Time
}

// NewAuthService constructs an AuthService.
func NewAuthService(repo AuthRepository, sessions Sessions, pub events.Publisher, log *zap.Logger) *AuthService {
	return &AuthService{
		repo:     repo,
		sessions: sessions,
		events:   pub,
		log:      log,
		params:   argon2id.DefaultParams,
		now:      time.Now,
	}
}

// NormalizeEmail is the form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserExists checks whether a user with the specified email exists.
func (s *AuthService) UserExists(ctx context.Context, email string) (bool, error) {
	return s.repo.UserExists(ctx, NormalizeEmail(email))
}

// Register validates the form and creates the user with an argon2id password hash.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (models.User, error) {
	if errs := validation.ValidateRegistration(req.FullName, req.Email, req.Mobile, req.Password); !errs.OK() {
		return models.User{}, errs
	}

	email := NormalizeEmail(req.Email)
	exists, err := s.repo.UserExists(ctx, email)
	if err != nil {
		return models.User{}, fmt.Errorf("check user: %w", err)
	}
	if exists {
		return models.User{}, models.ErrEmailTaken
	}

	hash, err := argon2id.CreateHash(req.Password, s.params)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	u := models.User{
		ID:           uuid.NewString(),
		FullName:     strings.TrimSpace(req.FullName),
		Email:        email,
		Mobile:       strings.TrimSpace(req.Mobile),
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return models.User{}, err
	}
	s.log.Info("user registered", zap.String("user_id", u.ID))
	return u, nil
}

// Login checks the credentials and opens a session. Any mismatch yields the
// single models.ErrInvalidCredentials notice.
func (s *AuthService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if errs := validation.ValidateLogin(email, password); !errs.OK() {
		return LoginResult{}, errs
	}

	u, err := s.repo.GetUserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, models.ErrNotFound) {
		return LoginResult{}, models.ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, fmt.Errorf("load user: %w", err)
	}

	ok, err := argon2id.ComparePasswordAndHash(password, u.PasswordHash)
	if err != nil {
		s.log.Error("compare password hash", zap.String("user_id", u.ID), zap.Error(err))
		return LoginResult{}, models.ErrInvalidCredentials
	}
	if !ok {
		return LoginResult{}, models.ErrInvalidCredentials
	}

	sess, token, err := s.sessions.Start(ctx, u)
	if err != nil {
		return LoginResult{}, err
	}
	publish(ctx, s.events, s.log, events.Event{Type: events.SessionLogin, UserID: u.ID, At: s.now()})
	return LoginResult{Token: token, ExpiresAt: sess.ExpiresAt, User: sess.User}, nil
}

// Logout tears the session down.
func (s *AuthService) Logout(ctx context.Context, sess *session.Session) error {
	if err := s.sessions.End(ctx, sess.ID); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	publish(ctx, s.events, s.log, events.Event{Type: events.SessionLogout, UserID: sess.User.ID, At: s.now()})
	return nil
}

func publish(ctx context.Context, pub events.Publisher, log *zap.Logger, e events.Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, e); err != nil {
		log.Warn("publish event", zap.String("type", string(e.Type)), zap.Error(err))
	}
}
