package session

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atinyakov/DigitalPass/internal/models"
	"github.com/atinyakov/DigitalPass/internal/wizard"
)

var student = models.User{ID: "u1", FullName: "Ravi", Email: "ravi@example.com", Mobile: "9876543210", PasswordHash: "secret-hash"}

func TestManager_StartAuthenticate(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), "test-secret", time.Hour)

	s, token, err := m.Start(ctx, student)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := m.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, student.ID, got.User.ID)
	assert.Empty(t, got.User.PasswordHash)
}

func TestManager_SaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), "test-secret", time.Hour)
	s, token, err := m.Start(ctx, student)
	require.NoError(t, err)

	snap := wizard.New(student.ID).Snapshot()
	s.Wizard = &snap
	s.PendingApplicationID = "app-1"
	require.NoError(t, m.Save(ctx, s))

	got, err := m.Authenticate(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, got.Wizard)
	assert.Equal(t, wizard.StatePersonal, got.Wizard.State)
	assert.Equal(t, "app-1", got.PendingApplicationID)

	got.ClearApplication()
	assert.Nil(t, got.Wizard)
	assert.Empty(t, got.PendingApplicationID)
}

func TestManager_RejectsBadTokens(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store, "test-secret", time.Hour)
	_, token, err := m.Start(ctx, student)
	require.NoError(t, err)

	other := NewManager(store, "other-secret", time.Hour)
	_, err = other.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Authenticate(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{SessionID: "x"})
	raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.Authenticate(ctx, raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManager_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store, "test-secret", time.Minute)
	start := time.Now()
	m.now = func() time.Time { return start }

	_, token, err := m.Start(ctx, student)
	require.NoError(t, err)

	later := start.Add(2 * time.Minute)
	m.now = func() time.Time { return later }
	_, err = m.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManager_End(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), "test-secret", time.Hour)
	s, token, err := m.Start(ctx, student)
	require.NoError(t, err)

	require.NoError(t, m.End(ctx, s.ID))
	_, err = m.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Sweep(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()
	require.NoError(t, store.Save(ctx, &Session{ID: "old", ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, store.Save(ctx, &Session{ID: "fresh", ExpiresAt: now.Add(time.Hour)}))

	_, err := store.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 1, store.Sweep(now))
	_, err = store.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestStartSweeper(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := NewMemoryStore()
	require.NoError(t, store.Save(ctx, &Session{ID: "old", ExpiresAt: time.Now().Add(20 * time.Millisecond)}))

	StartSweeper(ctx, store, 10*time.Millisecond, zap.NewNop())

	assert.Eventually(t, func() bool {
		store.mu.RLock()
		defer store.mu.RUnlock()
		return len(store.sessions) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	s := &Session{ID: "s1"}
	got, ok := FromContext(WithSession(context.Background(), s))
	require.True(t, ok)
	assert.Same(t, s, got)
}
