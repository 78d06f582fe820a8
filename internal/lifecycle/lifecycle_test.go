package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/warden/internal/database/testutil"
	"github.com/charlesng35/warden/internal/models"
	"github.com/charlesng35/warden/internal/store"
	"github.com/charlesng35/warden/pkg/crypto"
	"github.com/charlesng35/warden/pkg/mail"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type captureMailer struct {
	mu       sync.Mutex
	messages []mail.Message
	err      error
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *captureMailer) sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.messages...)
}

func newLifecycleStore(t *testing.T) *store.IdentityStore {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	s, err := store.NewIdentityStore(db)
	require.NoError(t, err)
	return s
}

func createUser(t *testing.T, s store.Identities, username string) *models.User {
	t.Helper()

	hash, err := crypto.HashPassword("sekret!")
	require.NoError(t, err)

	user := &models.User{
		Username:          username,
		Email:             username + "@example.com",
		EncryptedPassword: hash,
	}
	require.NoError(t, s.Save(context.Background(), user))
	return user
}
