package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/atinyakov/DigitalPass/internal/models"
)

const audience = "digitalpass-api"

// ErrInvalidToken is returned for malformed, expired or forged bearer tokens.
var ErrInvalidToken = errors.New("invalid session token")

// Claims is the payload of a session token.
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Manager opens sessions on login, resolves bearer tokens to sessions and
// tears them down on logout.
type Manager struct {
	store  Store
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewManager builds a Manager issuing HS256 tokens signed with secret.
func NewManager(store Store, secret string, ttl time.Duration) *Manager {
	return &Manager{store: store, secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Start creates a session for u and returns it with its bearer token.
func (m *Manager) Start(ctx context.Context, u models.User) (*Session, string, error) {
	now := m.now()
	s := &Session{
		ID:        uuid.NewString(),
		User:      u,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, "", fmt.Errorf("save session: %w", err)
	}

	claims := Claims{
		SessionID: s.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
			Audience:  []string{audience},
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return nil, "", fmt.Errorf("sign token: %w", err)
	}
	return s, token, nil
}

// Authenticate verifies the token and loads its session.
func (m *Manager) Authenticate(ctx context.Context, token string) (*Session, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !tok.Valid || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}

	s, err := m.store.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if s.User.ID != claims.Subject {
		return nil, ErrInvalidToken
	}
	return s, nil
}

// Save writes back a modified session.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	return m.store.Save(ctx, s)
}

// End removes the session.
func (m *Manager) End(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}
