package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/warden/pkg/crypto"
	apperrors "github.com/charlesng35/warden/pkg/errors"
)

func TestRecoverableSendInstructions(t *testing.T) {
	s := newLifecycleStore(t)
	clock := newFakeClock()
	mailer := &captureMailer{}
	ctx := context.Background()

	r, err := NewRecoverable(s,
		WithRecoverableClock(clock.Now),
		WithRecoverableMailer(mailer))
	require.NoError(t, err)

	user := createUser(t, s, "mina")

	first, err := r.SendInstructions(ctx, user)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	clock.Advance(time.Hour)
	second, err := r.SendInstructions(ctx, user)
	require.NoError(t, err)
	require.Equal(t, first, second)

	clock.Advance(DefaultResetPasswordWithin)
	third, err := r.SendInstructions(ctx, user)
	require.NoError(t, err)
	require.NotEqual(t, first, third)

	require.Len(t, mailer.sent(), 3)
}

func TestResetByToken(t *testing.T) {
	s := newLifecycleStore(t)
	clock := newFakeClock()
	ctx := context.Background()

	r, err := NewRecoverable(s, WithRecoverableClock(clock.Now))
	require.NoError(t, err)

	user := createUser(t, s, "jon")
	token, err := r.SendInstructions(ctx, user)
	require.NoError(t, err)

	reset, err := r.ResetByToken(ctx, token, "brand new pass")
	require.NoError(t, err)
	require.True(t, crypto.VerifyPassword(reset.EncryptedPassword, "brand new pass"))
	require.Nil(t, reset.ResetPasswordToken)

	// The token clears with the password change, so it cannot be replayed.
	_, err = r.ResetByToken(ctx, token, "another pass")
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestResetByTokenExpired(t *testing.T) {
	s := newLifecycleStore(t)
	clock := newFakeClock()
	ctx := context.Background()

	r, err := NewRecoverable(s, WithRecoverableClock(clock.Now))
	require.NoError(t, err)

	user := createUser(t, s, "lucy")
	token, err := r.SendInstructions(ctx, user)
	require.NoError(t, err)

	clock.Advance(DefaultResetPasswordWithin + time.Second)

	_, err = r.ResetByToken(ctx, token, "brand new pass")
	expired, ok := apperrors.IsExpiredToken(err)
	require.True(t, ok)
	require.Equal(t, "reset_password", expired.Kind)
}

func TestResetByTokenRejectsBadPassword(t *testing.T) {
	s := newLifecycleStore(t)
	ctx := context.Background()

	r, err := NewRecoverable(s)
	require.NoError(t, err)

	user := createUser(t, s, "art")
	token, err := r.SendInstructions(ctx, user)
	require.NoError(t, err)

	_, err = r.ResetByToken(ctx, token, "tiny")
	var verr *apperrors.ValidationError
	require.ErrorAs(t, err, &verr)

	// The token survives a failed attempt.
	reset, err := r.ResetByToken(ctx, token, "long enough now")
	require.NoError(t, err)
	require.True(t, crypto.VerifyPassword(reset.EncryptedPassword, "long enough now"))
}
