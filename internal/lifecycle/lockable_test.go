package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/charlesng35/warden/pkg/errors"
)

func TestRecordFailedAttemptLocksAtMaximum(t *testing.T) {
	s := newLifecycleStore(t)
	clock := newFakeClock()
	mailer := &captureMailer{}
	ctx := context.Background()

	l, err := NewLockable(s,
		LockableConfig{MaximumAttempts: 3, UnlockStrategy: UnlockStrategyBoth},
		WithLockableClock(clock.Now),
		WithLockableMailer(mailer))
	require.NoError(t, err)

	user := createUser(t, s, "harker")

	for i := 0; i < 2; i++ {
		locked, err := l.RecordFailedAttempt(ctx, user)
		require.NoError(t, err)
		require.False(t, locked)
		require.False(t, l.IsLocked(user))
	}

	locked, err := l.RecordFailedAttempt(ctx, user)
	require.NoError(t, err)
	require.True(t, locked)
	require.True(t, l.IsLocked(user))
	require.NotNil(t, user.UnlockToken)

	sent := mailer.sent()
	require.Len(t, sent, 1)
	require.Contains(t, sent[0].Body, *user.UnlockToken)
}

func TestResetAttempts(t *testing.T) {
	s := newLifecycleStore(t)
	ctx := context.Background()

	l, err := NewLockable(s, LockableConfig{MaximumAttempts: 5})
	require.NoError(t, err)

	user := createUser(t, s, "lucy")
	_, err = l.RecordFailedAttempt(ctx, user)
	require.NoError(t, err)
	require.Equal(t, 1, user.FailedAttempts)

	require.NoError(t, l.ResetAttempts(ctx, user))
	require.Zero(t, user.FailedAttempts)

	reloaded, err := s.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.Zero(t, reloaded.FailedAttempts)
}

func TestLockStrategyNoneNeverLocks(t *testing.T) {
	s := newLifecycleStore(t)
	ctx := context.Background()

	l, err := NewLockable(s, LockableConfig{MaximumAttempts: 1, LockStrategy: LockStrategyNone})
	require.NoError(t, err)
	require.False(t, l.Enabled())

	user := createUser(t, s, "seward")
	for i := 0; i < 5; i++ {
		locked, err := l.RecordFailedAttempt(ctx, user)
		require.NoError(t, err)
		require.False(t, locked)
	}
	require.Zero(t, user.FailedAttempts)
}

func TestMaybeAutoUnlock(t *testing.T) {
	s := newLifecycleStore(t)
	clock := newFakeClock()
	ctx := context.Background()

	l, err := NewLockable(s,
		LockableConfig{MaximumAttempts: 1, UnlockStrategy: UnlockStrategyTime, UnlockIn: time.Hour},
		WithLockableClock(clock.Now))
	require.NoError(t, err)

	user := createUser(t, s, "art")
	locked, err := l.RecordFailedAttempt(ctx, user)
	require.NoError(t, err)
	require.True(t, locked)

	// Still inside the unlock window.
	require.False(t, l.MaybeAutoUnlock(user))
	require.True(t, l.IsLocked(user))
	require.True(t, l.AccessLocked(user))

	clock.Advance(time.Hour + time.Minute)
	require.False(t, l.AccessLocked(user))
	require.True(t, l.MaybeAutoUnlock(user))
	require.False(t, l.IsLocked(user))
	require.Zero(t, user.FailedAttempts)

	// The unlock is in-memory until the caller persists it.
	reloaded, err := s.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.LockedAt)
}

func TestUnlockByToken(t *testing.T) {
	s := newLifecycleStore(t)
	clock := newFakeClock()
	ctx := context.Background()

	l, err := NewLockable(s,
		LockableConfig{MaximumAttempts: 1, UnlockStrategy: UnlockStrategyEmail},
		WithLockableClock(clock.Now))
	require.NoError(t, err)

	user := createUser(t, s, "quincey")
	_, err = l.RecordFailedAttempt(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, user.UnlockToken)
	token := *user.UnlockToken

	_, err = l.UnlockByToken(ctx, "wrong")
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)

	unlocked, err := l.UnlockByToken(ctx, token)
	require.NoError(t, err)
	require.False(t, l.IsLocked(unlocked))
	require.Nil(t, unlocked.UnlockToken)

	// Email-only strategy never unlocks by time.
	user2 := createUser(t, s, "van.helsing")
	_, err = l.RecordFailedAttempt(ctx, user2)
	require.NoError(t, err)
	clock.Advance(48 * time.Hour)
	require.False(t, l.MaybeAutoUnlock(user2))
	require.True(t, l.AccessLocked(user2))
}
