package auth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/warden/internal/lifecycle"
	"github.com/charlesng35/warden/internal/models"
	"github.com/charlesng35/warden/internal/store"
	"github.com/charlesng35/warden/pkg/crypto"
	apperrors "github.com/charlesng35/warden/pkg/errors"
	"github.com/charlesng35/warden/pkg/logger"
	"github.com/charlesng35/warden/pkg/metrics"
)

const (
	// SessionKey is the session entry holding the user's rotated
	// authentication token.
	SessionKey = "warden.authenticity_token"

	// RememberCookie is the persistent cookie backing auto-login.
	RememberCookie = "remember_token"

	// DefaultRememberFor keeps remembered sessions alive for two weeks.
	DefaultRememberFor = 1209600 * time.Second
)

// Driver performs session based authentication. One driver serves one
// request: it memoizes the resolved user, so reuse across requests would
// leak identity between callers.
type Driver struct {
	identities store.Identities
	session    SessionStore
	cookies    CookieJar
	lockable   *lifecycle.Lockable
	hooks      Hooks
	clock      lifecycle.Clock

	rememberFor         time.Duration
	requireConfirmation bool
	remoteIP            string

	user    *models.User
	checked bool
}

// Option customises a Driver.
type Option func(*Driver)

// WithCookieJar enables the remember-me flow via the given jar.
func WithCookieJar(cookies CookieJar) Option {
	return func(d *Driver) { d.cookies = cookies }
}

// WithLockable gates logins behind the account locking policy.
func WithLockable(lockable *lifecycle.Lockable) Option {
	return func(d *Driver) { d.lockable = lockable }
}

// WithHooks registers authentication event callbacks.
func WithHooks(hooks Hooks) Option {
	return func(d *Driver) { d.hooks = hooks }
}

// WithClock overrides the time source.
func WithClock(clock lifecycle.Clock) Option {
	return func(d *Driver) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithRememberFor overrides the remember cookie lifetime.
func WithRememberFor(ttl time.Duration) Option {
	return func(d *Driver) {
		if ttl > 0 {
			d.rememberFor = ttl
		}
	}
}

// WithConfirmationRequired refuses logins from unconfirmed accounts.
func WithConfirmationRequired(required bool) Option {
	return func(d *Driver) { d.requireConfirmation = required }
}

// WithRemoteIP records the caller's address on the trackable columns.
func WithRemoteIP(ip string) Option {
	return func(d *Driver) { d.remoteIP = ip }
}

// New constructs a request scoped driver.
func New(identities store.Identities, session SessionStore, opts ...Option) (*Driver, error) {
	if identities == nil {
		return nil, errors.New("auth driver: identity store is required")
	}
	if session == nil {
		return nil, errors.New("auth driver: session store is required")
	}

	d := &Driver{
		identities:  identities,
		session:     session,
		clock:       time.Now,
		rememberFor: DefaultRememberFor,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// LoggedIn reports whether the caller has a verified identity, attempting
// remember-cookie auto-login when the session carries none.
func (d *Driver) LoggedIn(ctx context.Context) bool {
	return d.CurrentUser(ctx) != nil
}

// CurrentUser resolves and memoizes the caller's user. A stale session token
// is dropped from the session; a stale remember cookie fails silently.
func (d *Driver) CurrentUser(ctx context.Context) *models.User {
	if d.checked {
		return d.user
	}
	d.checked = true

	if token, ok := d.session.Get(SessionKey); ok {
		user, err := d.identities.FindByToken(ctx, store.TokenAuthentication, token)
		if err == nil {
			// An account locked after login is treated as logged out. An
			// expired time lock no longer counts.
			if d.lockable != nil && d.lockable.Enabled() && d.lockable.AccessLocked(user) {
				d.session.Delete(SessionKey)
				return nil
			}
			d.user = user
			return user
		}
		d.session.Delete(SessionKey)
		if !errors.Is(err, store.ErrNotFound) {
			logger.Error("session token lookup failed", zap.Error(err))
			return nil
		}
	}

	if d.cookies != nil {
		d.autoLogin(ctx)
	}
	return d.user
}

// Authenticate verifies the identifier/password pair and, on success,
// completes the login. A plain mismatch or unknown identifier is reported as
// false with a nil error; only the policy gates return distinguishable
// errors: ErrLocked when the account is locked and ErrUnconfirmed when
// confirmation is still pending.
func (d *Driver) Authenticate(ctx context.Context, identifier, password string, remember bool) (bool, error) {
	user, err := d.identities.FindByUsernameOrEmail(ctx, identifier)
	if errors.Is(err, store.ErrNotFound) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return false, nil
	}
	if err != nil {
		return false, err
	}

	// Policy gates precede password verification: an unconfirmed or locked
	// account refuses login before any attempt counting happens.
	if d.requireConfirmation && !user.IsConfirmed {
		metrics.AuthAttempts.WithLabelValues("unconfirmed").Inc()
		return false, apperrors.ErrUnconfirmed
	}

	if d.lockable != nil && d.lockable.Enabled() {
		d.lockable.MaybeAutoUnlock(user)
		if d.lockable.IsLocked(user) {
			metrics.AuthAttempts.WithLabelValues("locked").Inc()
			return false, apperrors.ErrLocked
		}
	}

	if !crypto.VerifyPassword(user.EncryptedPassword, password) {
		if d.lockable != nil && d.lockable.Enabled() {
			locked, err := d.lockable.RecordFailedAttempt(ctx, user)
			if err != nil {
				return false, err
			}
			if locked {
				metrics.AuthAttempts.WithLabelValues("locked").Inc()
				return false, apperrors.ErrLocked
			}
		}
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return false, nil
	}

	if d.lockable != nil && d.lockable.Enabled() {
		if err := d.lockable.ResetAttempts(ctx, user); err != nil {
			return false, err
		}
	}

	fire(ctx, d.hooks.AfterAuthentication, user)

	if !d.completeLogin(ctx, user, remember) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return false, nil
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return true, nil
}

// ForceLogin signs the identified user in without credential or policy
// checks. Unknown identifiers report false.
func (d *Driver) ForceLogin(ctx context.Context, identifier string) (bool, error) {
	user, err := d.identities.FindByUsernameOrEmail(ctx, identifier)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return d.completeLogin(ctx, user, false), nil
}

// SetUser signs the given user in directly, bypassing all checks.
func (d *Driver) SetUser(ctx context.Context, user *models.User) bool {
	if user == nil {
		return false
	}
	return d.completeLogin(ctx, user, false)
}

// Logout revokes the caller's tokens and clears the session entry. With
// destroy the whole session is dropped; otherwise the session id rotates and
// unrelated session data survives.
func (d *Driver) Logout(ctx context.Context, destroy bool) error {
	if user := d.CurrentUser(ctx); user != nil {
		fire(ctx, d.hooks.BeforeLogout, user)

		user.AuthenticationToken = nil
		user.RememberToken = nil
		if err := d.identities.Save(ctx, user); err != nil {
			return err
		}
		metrics.ActiveLogins.Dec()
	}

	if d.cookies != nil {
		d.cookies.Delete(RememberCookie)
	}
	d.user = nil
	d.checked = true

	if destroy {
		return d.session.Destroy()
	}
	d.session.Delete(SessionKey)
	return d.session.RotateID()
}

// autoLogin restores a session from the remember cookie. Every failure is
// silent: an unresolvable token drops the cookie, a policy gate leaves it in
// place in case the condition clears.
func (d *Driver) autoLogin(ctx context.Context) bool {
	token, ok := d.cookies.Get(RememberCookie)
	if !ok {
		return false
	}

	user, err := d.identities.FindByToken(ctx, store.TokenRemember, token)
	if err != nil {
		d.cookies.Delete(RememberCookie)
		return false
	}

	if d.lockable != nil && d.lockable.Enabled() {
		d.lockable.MaybeAutoUnlock(user)
		if d.lockable.IsLocked(user) {
			return false
		}
	}
	if d.requireConfirmation && !user.IsConfirmed {
		return false
	}

	return d.completeLogin(ctx, user, false)
}

// completeLogin rotates the authentication token, updates the trackable
// columns, and establishes the session. Any persistence failure is logged
// and reported as a plain false so callers treat it as a failed login.
func (d *Driver) completeLogin(ctx context.Context, user *models.User, remember bool) bool {
	token, err := crypto.GenerateToken()
	if err != nil {
		logger.Error("failed to generate authentication token", zap.Error(err))
		return false
	}

	now := d.clock()
	user.AuthenticationToken = &token
	user.LastSignInAt = user.CurrentSignInAt
	user.LastSignInIP = user.CurrentSignInIP
	user.CurrentSignInAt = &now
	user.CurrentSignInIP = d.remoteIP
	user.SignInCount++

	if remember && d.cookies != nil {
		rememberToken, err := crypto.GenerateToken()
		if err != nil {
			logger.Error("failed to generate remember token", zap.Error(err))
			return false
		}
		user.RememberToken = &rememberToken
	}

	if err := d.identities.Save(ctx, user); err != nil {
		logger.Error("failed to complete login",
			zap.String("user_id", user.ID),
			zap.Error(err))
		return false
	}

	d.session.Set(SessionKey, token)
	if err := d.session.RotateID(); err != nil {
		logger.Warn("failed to rotate session id", zap.Error(err))
	}

	if remember && d.cookies != nil {
		d.cookies.Set(RememberCookie, *user.RememberToken, int(d.rememberFor.Seconds()))
	}

	d.user = user
	d.checked = true
	metrics.ActiveLogins.Inc()
	fire(ctx, d.hooks.AfterLogin, user)
	return true
}
