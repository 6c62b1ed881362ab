package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryStore keeps sessions in process memory. Sessions are stored encoded
// so callers never share a *Session between requests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
	expires  map[string]time.Time
	now      func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]byte),
		expires:  make(map[string]time.Time),
		now:      time.Now,
	}
}

// Save stores a copy of s.
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = raw
	m.expires[s.ID] = s.ExpiresAt
	return nil
}

// Get returns a copy of the session, or ErrNotFound once it expired.
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	raw, ok := m.sessions[id]
	exp := m.expires[id]
	m.mu.RUnlock()
	if !ok || !m.now().Before(exp) {
		return nil, ErrNotFound
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Delete removes the session.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.expires, id)
	return nil
}

// Sweep drops expired sessions and reports how many were removed.
func (m *MemoryStore) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, exp := range m.expires {
		if !now.Before(exp) {
			delete(m.sessions, id)
			delete(m.expires, id)
			n++
		}
	}
	return n
}

// StartSweeper drops expired sessions from m every interval until ctx is done.
func StartSweeper(ctx context.Context, m *MemoryStore, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := m.Sweep(now); n > 0 {
					log.Debug("swept expired sessions", zap.Int("removed", n))
				}
			}
		}
	}()
}
