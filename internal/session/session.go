// Package session keeps the per-login state of a student: the current user,
// the in-progress wizard and the pending application awaiting payment.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/atinyakov/DigitalPass/internal/models"
	"github.com/atinyakov/DigitalPass/internal/wizard"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Session is the server side state behind one bearer token.
type Session struct {
	ID   string      `json:"id"`
	User models.User `json:"user"`
	// Wizard is nil until the user starts an application.
	Wizard *wizard.Snapshot `json:"wizard,omitempty"`
	// PendingApplicationID references the committed application awaiting payment.
	PendingApplicationID string    `json:"pendingApplicationId,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
	ExpiresAt            time.Time `json:"expiresAt"`
}

// ClearApplication drops the wizard and the pending reference.
func (s *Session) ClearApplication() {
	s.Wizard = nil
	s.PendingApplicationID = ""
}

// Store persists sessions until they expire.
type Store interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

type ctxKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored by WithSession.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}
