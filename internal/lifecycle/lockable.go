package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/warden/internal/models"
	"github.com/charlesng35/warden/internal/store"
	"github.com/charlesng35/warden/pkg/crypto"
	apperrors "github.com/charlesng35/warden/pkg/errors"
	"github.com/charlesng35/warden/pkg/logger"
	"github.com/charlesng35/warden/pkg/mail"
	"github.com/charlesng35/warden/pkg/metrics"
)

// Lock and unlock strategies.
const (
	LockStrategyFailedAttempts = "failed_attempts"
	LockStrategyNone           = "none"

	UnlockStrategyTime  = "time"
	UnlockStrategyEmail = "email"
	UnlockStrategyBoth  = "both"
	UnlockStrategyNone  = "none"
)

// Lockable defaults.
const (
	DefaultMaximumAttempts = 10
	DefaultUnlockIn        = time.Hour
)

// LockableConfig carries the locking policy.
type LockableConfig struct {
	MaximumAttempts int
	LockStrategy    string
	UnlockStrategy  string
	UnlockIn        time.Duration
}

func (c *LockableConfig) applyDefaults() {
	if c.MaximumAttempts <= 0 {
		c.MaximumAttempts = DefaultMaximumAttempts
	}
	if c.LockStrategy == "" {
		c.LockStrategy = LockStrategyFailedAttempts
	}
	if c.UnlockStrategy == "" {
		c.UnlockStrategy = UnlockStrategyBoth
	}
	if c.UnlockIn <= 0 {
		c.UnlockIn = DefaultUnlockIn
	}
}

// Lockable locks accounts after repeated failed sign-in attempts and unlocks
// them by elapsed time, by emailed token, or both.
type Lockable struct {
	identities store.Identities
	mailer     mail.Mailer
	clock      Clock
	cfg        LockableConfig
}

// LockableOption customises the Lockable service.
type LockableOption func(*Lockable)

// WithLockableClock overrides the time source.
func WithLockableClock(clock Clock) LockableOption {
	return func(l *Lockable) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithLockableMailer attaches a mailer for unlock instruction emails.
func WithLockableMailer(mailer mail.Mailer) LockableOption {
	return func(l *Lockable) {
		l.mailer = mailer
	}
}

// NewLockable constructs the locking service.
func NewLockable(identities store.Identities, cfg LockableConfig, opts ...LockableOption) (*Lockable, error) {
	if identities == nil {
		return nil, errors.New("lockable: identity store is required")
	}

	cfg.applyDefaults()
	l := &Lockable{
		identities: identities,
		clock:      time.Now,
		cfg:        cfg,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Enabled reports whether the locking strategy is active at all.
func (l *Lockable) Enabled() bool {
	return l.cfg.LockStrategy == LockStrategyFailedAttempts
}

// IsLocked reports whether the account currently carries a lock.
func (l *Lockable) IsLocked(user *models.User) bool {
	return user != nil && user.LockedAt != nil
}

// LockExpired reports whether a time based lock has aged past the unlock
// window.
func (l *Lockable) LockExpired(user *models.User) bool {
	if !l.IsLocked(user) || !l.unlocksByTime() {
		return false
	}
	return l.clock().Sub(*user.LockedAt) > l.cfg.UnlockIn
}

// AccessLocked reports whether the lock still bars access. An expired time
// lock no longer does; it is lifted on the next resolution.
func (l *Lockable) AccessLocked(user *models.User) bool {
	return l.IsLocked(user) && !l.LockExpired(user)
}

// RecordFailedAttempt bumps the failure counter and locks the account once
// the maximum is reached. It returns true when this attempt caused the lock.
func (l *Lockable) RecordFailedAttempt(ctx context.Context, user *models.User) (bool, error) {
	if !l.Enabled() || user == nil {
		return false, nil
	}

	user.FailedAttempts++
	if user.FailedAttempts < l.cfg.MaximumAttempts {
		return false, l.identities.Save(ctx, user)
	}

	if err := l.LockAccess(ctx, user); err != nil {
		return false, err
	}
	return true, nil
}

// ResetAttempts clears the failure counter after a successful sign-in.
func (l *Lockable) ResetAttempts(ctx context.Context, user *models.User) error {
	if !l.Enabled() || user == nil || user.FailedAttempts == 0 {
		return nil
	}
	user.FailedAttempts = 0
	return l.identities.Save(ctx, user)
}

// LockAccess locks the account now and, when the unlock strategy includes
// email, issues an unlock token and mails the instructions.
func (l *Lockable) LockAccess(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("lockable: user is required")
	}

	now := l.clock()
	user.LockedAt = &now

	// A locked account is fully signed out everywhere.
	user.AuthenticationToken = nil
	user.RememberToken = nil

	var token string
	if l.unlocksByEmail() {
		fresh, err := crypto.GenerateToken()
		if err != nil {
			return fmt.Errorf("lockable: generate unlock token: %w", err)
		}
		token = fresh
		user.UnlockToken = &token
	}

	if err := l.identities.Save(ctx, user); err != nil {
		return err
	}

	metrics.AccountLockouts.Inc()
	logger.Warn("account locked",
		zap.String("user_id", user.ID),
		zap.Int("failed_attempts", user.FailedAttempts))

	if token != "" && l.mailer != nil {
		msg := mail.Message{
			To:      []string{user.Email},
			Subject: "Unlock instructions",
			Body:    fmt.Sprintf("Hello %s!\n\nYour account has been locked due to an excessive amount of unsuccessful sign in attempts.\n\nYou can unlock it with the token below:\n\n%s\n", user.Username, token),
		}
		if err := l.mailer.Send(ctx, msg); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
			logger.Error("failed to send unlock instructions",
				zap.String("user_id", user.ID),
				zap.Error(err))
		}
	}

	return nil
}

// UnlockAccess clears the lock and the failure counter. Unlocking an
// account that is not locked is a no-op.
func (l *Lockable) UnlockAccess(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("lockable: user is required")
	}
	if user.LockedAt == nil && user.UnlockToken == nil && user.FailedAttempts == 0 {
		return nil
	}

	user.LockedAt = nil
	user.UnlockToken = nil
	user.FailedAttempts = 0
	return l.identities.Save(ctx, user)
}

// MaybeAutoUnlock lifts an expired time lock in memory only. The caller owns
// the subsequent save, so a lock cleared during a login attempt persists
// together with the rest of that attempt's outcome.
func (l *Lockable) MaybeAutoUnlock(user *models.User) bool {
	if !l.LockExpired(user) {
		return false
	}

	user.LockedAt = nil
	user.UnlockToken = nil
	user.FailedAttempts = 0
	return true
}

// UnlockByToken resolves an emailed unlock token and lifts the lock.
func (l *Lockable) UnlockByToken(ctx context.Context, token string) (*models.User, error) {
	if !l.unlocksByEmail() {
		return nil, apperrors.ErrInvalidToken
	}

	user, err := l.identities.FindByToken(ctx, store.TokenUnlock, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}

	if err := l.UnlockAccess(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (l *Lockable) unlocksByEmail() bool {
	return l.cfg.UnlockStrategy == UnlockStrategyEmail || l.cfg.UnlockStrategy == UnlockStrategyBoth
}

func (l *Lockable) unlocksByTime() bool {
	return l.cfg.UnlockStrategy == UnlockStrategyTime || l.cfg.UnlockStrategy == UnlockStrategyBoth
}
