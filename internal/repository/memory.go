package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atinyakov/DigitalPass/internal/issuance"
	"github.com/atinyakov/DigitalPass/internal/models"
)

// MemoryStore keeps users and applications in process memory. One mutex
// serializes every mutation, so an approval is applied completely or not at all.
type MemoryStore struct {
	mu sync.RWMutex

	users  map[string]models.User
	emails map[string]string

	apps        map[string]models.PassApplication
	order       []string
	passNumbers map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]models.User),
		emails:      make(map[string]string),
		apps:        make(map[string]models.PassApplication),
		passNumbers: make(map[string]string),
	}
}

// UserExists reports whether the email is registered.
func (s *MemoryStore) UserExists(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.emails[email]
	return ok, nil
}

// CreateUser stores u unless its email is taken.
func (s *MemoryStore) CreateUser(_ context.Context, u models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.emails[u.Email]; ok {
		return models.ErrEmailTaken
	}
	s.users[u.ID] = u
	s.emails[u.Email] = u.ID
	return nil
}

// GetUserByEmail looks a user up by email.
func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[email]
	if !ok {
		return models.User{}, models.ErrNotFound
	}
	return s.users[id], nil
}

// CreateApplication appends a pending application.
func (s *MemoryStore) CreateApplication(_ context.Context, app models.PassApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[app.ApplicationID]; ok {
		return fmt.Errorf("%w: duplicate application id", models.ErrStateViolation)
	}
	for _, id := range s.order {
		existing := s.apps[id]
		if existing.UserID == app.UserID && existing.Status == models.StatusPending {
			return models.ErrPendingExists
		}
	}
	app.Status = models.StatusPending
	app.PaymentDate = nil
	app.PassNumber = ""
	s.apps[app.ApplicationID] = app
	s.order = append(s.order, app.ApplicationID)
	return nil
}

// GetApplication fetches an application by id.
func (s *MemoryStore) GetApplication(_ context.Context, id string) (models.PassApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[id]
	if !ok {
		return models.PassApplication{}, models.ErrNotFound
	}
	return clone(app), nil
}

// ListApplications returns the user's applications in insertion order.
func (s *MemoryStore) ListApplications(_ context.Context, userID string) ([]models.PassApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.PassApplication
	for _, id := range s.order {
		if app := s.apps[id]; app.UserID == userID {
			out = append(out, clone(app))
		}
	}
	return out, nil
}

// FindPending returns the user's application awaiting payment.
func (s *MemoryStore) FindPending(_ context.Context, userID string) (models.PassApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		if app := s.apps[id]; app.UserID == userID && app.Status == models.StatusPending {
			return clone(app), nil
		}
	}
	return models.PassApplication{}, models.ErrNotFound
}

// FindActivePass returns the user's most recent approved application that is
// still valid at now.
func (s *MemoryStore) FindActivePass(_ context.Context, userID string, now time.Time) (models.PassApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.activePass(userID, "", now)
	if !ok {
		return models.PassApplication{}, models.ErrNotFound
	}
	return clone(app), nil
}

func (s *MemoryStore) activePass(userID, except string, now time.Time) (models.PassApplication, bool) {
	for i := len(s.order) - 1; i >= 0; i-- {
		app := s.apps[s.order[i]]
		if app.UserID != userID || app.ApplicationID == except {
			continue
		}
		if issuance.Active(app, now) {
			return app, true
		}
	}
	return models.PassApplication{}, false
}

// Approve flips a pending application to approved.
func (s *MemoryStore) Approve(_ context.Context, id string, paidAt time.Time, passNumber string) (models.PassApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.apps[id]
	if !ok {
		return models.PassApplication{}, models.ErrNotFound
	}
	if app.Status != models.StatusPending {
		return models.PassApplication{}, models.ErrNotPending
	}
	if _, taken := s.passNumbers[passNumber]; taken {
		return models.PassApplication{}, models.ErrPassNumberTaken
	}
	if _, active := s.activePass(app.UserID, id, paidAt); active {
		return models.PassApplication{}, models.ErrActivePassExists
	}

	app.Status = models.StatusApproved
	app.PaymentDate = &paidAt
	app.PassNumber = passNumber
	s.apps[id] = app
	s.passNumbers[passNumber] = id
	return clone(app), nil
}

// PurgeAbandoned removes pending applications committed before cutoff.
func (s *MemoryStore) PurgeAbandoned(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	kept := s.order[:0]
	for _, id := range s.order {
		app := s.apps[id]
		if app.Status == models.StatusPending && app.AppliedAt.Before(cutoff) {
			delete(s.apps, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed, nil
}

// DeletePending removes the user's pending application id.
func (s *MemoryStore) DeletePending(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok || app.UserID != userID || app.Status != models.StatusPending {
		return models.ErrNotFound
	}
	delete(s.apps, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func clone(app models.PassApplication) models.PassApplication {
	if app.PaymentDate != nil {
		t := *app.PaymentDate
		app.PaymentDate = &t
	}
	return app
}
