package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/atinyakov/DigitalPass/internal/models"
)

// DefaultFile is where the client state lives unless told otherwise.
const DefaultFile = "digitalpass.json"

// LocalStorage persists State as JSON in a file.
type LocalStorage struct {
	Path string

	mu    sync.Mutex
	state State
}

// NewLocalStorage returns storage backed by path, DefaultFile when empty.
func NewLocalStorage(path string) *LocalStorage {
	if path == "" {
		path = DefaultFile
	}
	return &LocalStorage{Path: path}
}

// Load reads the state file. A missing file leaves an empty state.
func (ls *LocalStorage) Load() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	data, err := os.ReadFile(ls.Path)
	if errors.Is(err, os.ErrNotExist) {
		ls.state = State{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	ls.state = st
	return nil
}

// Save writes the state file, readable by the owner only.
func (ls *LocalStorage) Save() error {
	ls.mu.Lock()
	data, err := json.MarshalIndent(ls.state, "", "  ")
	ls.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	return os.WriteFile(ls.Path, data, 0o600)
}

// State returns a copy of the current state.
func (ls *LocalStorage) State() State {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.state
}

// Token returns the stored session token when it has not expired yet.
func (ls *LocalStorage) Token(now time.Time) (string, bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.state.Token == "" || !now.Before(ls.state.ExpiresAt) {
		return "", false
	}
	return ls.state.Token, true
}

// SetSession records a login. A different account drops the cached pass.
func (ls *LocalStorage) SetSession(email, token string, expiresAt time.Time) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.state.Email != email {
		ls.state.Pass = nil
	}
	ls.state.Email = email
	ls.state.Token = token
	ls.state.ExpiresAt = expiresAt
}

// ClearSession forgets the token but keeps the cached pass.
func (ls *LocalStorage) ClearSession() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.state.Token = ""
	ls.state.ExpiresAt = time.Time{}
}

// SetPass caches the latest pass.
func (ls *LocalStorage) SetPass(rec models.PassRecord) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.state.Pass = &rec
}
