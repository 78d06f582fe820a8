// Package maintenance clears expired lifecycle tokens in the background so
// stale confirmation, reset, and unlock state does not accumulate.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/warden/internal/models"
	"github.com/charlesng35/warden/pkg/logger"
)

const defaultTokenSpec = "@daily"

// TokenWindows carries the validity windows the cleaner enforces. A zero
// window disables the matching sweep.
type TokenWindows struct {
	ConfirmWithin       time.Duration
	ResetPasswordWithin time.Duration
	UnlockIn            time.Duration
}

// Cleaner periodically purges expired lifecycle tokens.
type Cleaner struct {
	db      *gorm.DB
	windows TokenWindows
	cron    *cron.Cron
	now     func() time.Time
	log     *zap.Logger

	tokenSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for expiry comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithTokenSchedule overrides the cron specification for the token sweep.
func WithTokenSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.tokenSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults.
func NewCleaner(db *gorm.DB, windows TokenWindows, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:            db,
		windows:       windows,
		now:           time.Now,
		tokenSchedule: defaultTokenSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the sweep with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if c.db == nil {
		return nil
	}

	if _, err := c.cron.AddFunc(c.tokenSchedule, func() {
		if _, err := CleanupTokens(context.Background(), c.db, c.now(), c.windows); err != nil {
			c.log.Warn("token cleanup failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes the sweep immediately. Primarily used in tests and during
// graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if c.db != nil {
		if _, err := CleanupTokens(ctx, c.db, c.now(), c.windows); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// TokenCleanupStats captures the number of records touched per token type.
type TokenCleanupStats struct {
	Confirmations  int64
	PasswordResets int64
	ExpiredLocks   int64
}

// CleanupTokens clears lifecycle token columns whose validity windows have
// passed. Expired locks are lifted entirely, counter included.
func CleanupTokens(ctx context.Context, db *gorm.DB, now time.Time, windows TokenWindows) (TokenCleanupStats, error) {
	if db == nil {
		return TokenCleanupStats{}, errors.New("cleanup tokens: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	stats := TokenCleanupStats{}

	if windows.ConfirmWithin > 0 {
		result := db.WithContext(ctx).
			Model(&models.User{}).
			Where("confirmation_token IS NOT NULL AND confirmation_sent_at < ?", now.Add(-windows.ConfirmWithin)).
			Updates(map[string]any{
				"confirmation_token":   nil,
				"confirmation_sent_at": nil,
			})
		if result.Error != nil {
			return stats, fmt.Errorf("cleanup tokens: confirmations: %w", result.Error)
		}
		stats.Confirmations = result.RowsAffected
	}

	if windows.ResetPasswordWithin > 0 {
		result := db.WithContext(ctx).
			Model(&models.User{}).
			Where("reset_password_token IS NOT NULL AND reset_password_sent_at < ?", now.Add(-windows.ResetPasswordWithin)).
			Updates(map[string]any{
				"reset_password_token":   nil,
				"reset_password_sent_at": nil,
			})
		if result.Error != nil {
			return stats, fmt.Errorf("cleanup tokens: password resets: %w", result.Error)
		}
		stats.PasswordResets = result.RowsAffected
	}

	if windows.UnlockIn > 0 {
		result := db.WithContext(ctx).
			Model(&models.User{}).
			Where("locked_at IS NOT NULL AND locked_at < ?", now.Add(-windows.UnlockIn)).
			Updates(map[string]any{
				"locked_at":       nil,
				"unlock_token":    nil,
				"failed_attempts": 0,
			})
		if result.Error != nil {
			return stats, fmt.Errorf("cleanup tokens: expired locks: %w", result.Error)
		}
		stats.ExpiredLocks = result.RowsAffected
	}

	return stats, nil
}
