package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/warden/internal/models"
	"github.com/charlesng35/warden/internal/store"
	apperrors "github.com/charlesng35/warden/pkg/errors"
	"github.com/charlesng35/warden/pkg/logger"
	"github.com/charlesng35/warden/pkg/mail"
)

// DefaultResetPasswordWithin is how long a reset token stays valid.
const DefaultResetPasswordWithin = 24 * time.Hour

// Recoverable manages password resets via a time boxed emailed token.
type Recoverable struct {
	identities store.Identities
	mailer     mail.Mailer
	clock      Clock
	within     time.Duration
}

// RecoverableOption customises the Recoverable service.
type RecoverableOption func(*Recoverable)

// WithRecoverableClock overrides the time source.
func WithRecoverableClock(clock Clock) RecoverableOption {
	return func(r *Recoverable) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithRecoverableMailer attaches a mailer for reset instruction emails.
func WithRecoverableMailer(mailer mail.Mailer) RecoverableOption {
	return func(r *Recoverable) {
		r.mailer = mailer
	}
}

// WithResetPasswordWithin overrides the token validity window.
func WithResetPasswordWithin(window time.Duration) RecoverableOption {
	return func(r *Recoverable) {
		if window > 0 {
			r.within = window
		}
	}
}

// NewRecoverable constructs the password recovery service.
func NewRecoverable(identities store.Identities, opts ...RecoverableOption) (*Recoverable, error) {
	if identities == nil {
		return nil, errors.New("recoverable: identity store is required")
	}

	r := &Recoverable{
		identities: identities,
		clock:      time.Now,
		within:     DefaultResetPasswordWithin,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// SendInstructions issues a reset token for the user and emails it if a
// mailer is configured. Repeat requests inside the validity window reuse the
// stored token. The token is returned for callers that deliver it out of
// band.
func (r *Recoverable) SendInstructions(ctx context.Context, user *models.User) (string, error) {
	if user == nil {
		return "", errors.New("recoverable: user is required")
	}

	now := r.clock()
	token, sentAt, changed, err := ensureToken(user.ResetPasswordToken, user.ResetPasswordSentAt, r.within, now)
	if err != nil {
		return "", fmt.Errorf("recoverable: generate token: %w", err)
	}

	if changed {
		user.ResetPasswordToken = &token
		user.ResetPasswordSentAt = sentAt
		if err := r.identities.Save(ctx, user); err != nil {
			return "", err
		}
	}

	if r.mailer != nil {
		msg := mail.Message{
			To:      []string{user.Email},
			Subject: "Reset password instructions",
			Body:    fmt.Sprintf("Hello %s!\n\nSomeone has requested a link to change your password. You can do this with the token below:\n\n%s\n\nIf you didn't request this, please ignore this email.\n", user.Username, token),
		}
		if err := r.mailer.Send(ctx, msg); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
			logger.Error("failed to send reset password instructions",
				zap.String("user_id", user.ID),
				zap.Error(err))
		}
	}

	return token, nil
}

// ResetByToken resolves the reset token and applies the new password. The
// password change and the token clear land in the same save, so a used token
// can never be replayed. Expired tokens report an ExpiredTokenError.
func (r *Recoverable) ResetByToken(ctx context.Context, token, newPassword string) (*models.User, error) {
	user, err := r.identities.FindByToken(ctx, store.TokenResetPassword, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}

	if user.ResetPasswordSentAt == nil || r.clock().Sub(*user.ResetPasswordSentAt) > r.within {
		return nil, apperrors.NewExpiredToken("reset_password")
	}

	if err := SetPassword(user, newPassword); err != nil {
		return nil, err
	}

	user.ResetPasswordToken = nil
	user.ResetPasswordSentAt = nil
	if err := r.identities.Save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
