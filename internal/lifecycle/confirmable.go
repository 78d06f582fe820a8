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

// DefaultConfirmWithin is how long a confirmation token stays valid.
const DefaultConfirmWithin = 24 * time.Hour

// Confirmable manages account confirmation tokens. New accounts stay
// unconfirmed until the emailed token comes back via Confirm.
type Confirmable struct {
	identities store.Identities
	mailer     mail.Mailer
	clock      Clock
	within     time.Duration
}

// ConfirmableOption customises the Confirmable service.
type ConfirmableOption func(*Confirmable)

// WithConfirmableClock overrides the time source.
func WithConfirmableClock(clock Clock) ConfirmableOption {
	return func(c *Confirmable) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithConfirmableMailer attaches a mailer for instruction emails. Without a
// mailer, tokens are still issued and returned to the caller.
func WithConfirmableMailer(mailer mail.Mailer) ConfirmableOption {
	return func(c *Confirmable) {
		c.mailer = mailer
	}
}

// WithConfirmWithin overrides the token validity window.
func WithConfirmWithin(window time.Duration) ConfirmableOption {
	return func(c *Confirmable) {
		if window > 0 {
			c.within = window
		}
	}
}

// NewConfirmable constructs the confirmation service.
func NewConfirmable(identities store.Identities, opts ...ConfirmableOption) (*Confirmable, error) {
	if identities == nil {
		return nil, errors.New("confirmable: identity store is required")
	}

	c := &Confirmable{
		identities: identities,
		clock:      time.Now,
		within:     DefaultConfirmWithin,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SendInstructions issues a confirmation token for the user and emails it if
// a mailer is configured. Calling it again inside the validity window hands
// out the same token; after the window it rotates. The token is returned so
// callers without email delivery can surface it through another channel.
func (c *Confirmable) SendInstructions(ctx context.Context, user *models.User) (string, error) {
	if user == nil {
		return "", errors.New("confirmable: user is required")
	}
	if user.IsConfirmed {
		return "", apperrors.ErrAlreadyConfirmed
	}

	now := c.clock()
	token, sentAt, changed, err := ensureToken(user.ConfirmationToken, user.ConfirmationSentAt, c.within, now)
	if err != nil {
		return "", fmt.Errorf("confirmable: generate token: %w", err)
	}

	if changed {
		user.ConfirmationToken = &token
		user.ConfirmationSentAt = sentAt
		if err := c.identities.Save(ctx, user); err != nil {
			return "", err
		}
	}

	if c.mailer != nil {
		msg := mail.Message{
			To:      []string{user.Email},
			Subject: "Confirmation instructions",
			Body:    fmt.Sprintf("Welcome %s!\n\nYou can confirm your account with the token below:\n\n%s\n", user.Username, token),
		}
		// Delivery failures are logged, never surfaced: the token is
		// already persisted and can be re-sent.
		if err := c.mailer.Send(ctx, msg); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
			logger.Error("failed to send confirmation instructions",
				zap.String("user_id", user.ID),
				zap.Error(err))
		}
	}

	return token, nil
}

// Confirm resolves the token and marks the account confirmed. An expired
// token yields an ExpiredTokenError so the caller can offer a resend; a
// token for an already confirmed account is rejected.
func (c *Confirmable) Confirm(ctx context.Context, token string) (*models.User, error) {
	user, err := c.identities.FindByToken(ctx, store.TokenConfirmation, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}

	if user.IsConfirmed {
		return nil, apperrors.ErrAlreadyConfirmed
	}

	if user.ConfirmationSentAt == nil || c.clock().Sub(*user.ConfirmationSentAt) > c.within {
		return nil, apperrors.NewExpiredToken("confirmation")
	}

	user.IsConfirmed = true
	user.ConfirmationToken = nil
	user.ConfirmationSentAt = nil
	if err := c.identities.Save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
