package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/warden/internal/auth"
	"github.com/charlesng35/warden/internal/lifecycle"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, "sqlite", cfg.Database.Driver)

	require.Equal(t, auth.DefaultRememberFor, cfg.Warden.RememberFor)
	require.False(t, cfg.Warden.Confirmable.Enabled)
	require.Equal(t, 24*time.Hour, cfg.Warden.Confirmable.ConfirmWithin)
	require.Equal(t, 10, cfg.Warden.Lockable.MaximumAttempts)
	require.Equal(t, lifecycle.LockStrategyFailedAttempts, cfg.Warden.Lockable.LockStrategy)
	require.Equal(t, lifecycle.UnlockStrategyBoth, cfg.Warden.Lockable.UnlockStrategy)
	require.Equal(t, time.Hour, cfg.Warden.Lockable.UnlockIn)
	require.True(t, cfg.Warden.Recoverable.Enabled)
	require.Equal(t, 24*time.Hour, cfg.Warden.Recoverable.ResetPasswordWithin)
	require.Equal(t, "digest", cfg.Warden.HTTPAuthenticable.Method)

	require.False(t, cfg.Email.SMTP.Enabled)
	require.Equal(t, 587, cfg.Email.SMTP.Port)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	payload := []byte(`
server:
  port: 9100
warden:
  confirmable:
    enabled: true
    confirm_within: 48h
  lockable:
    enabled: true
    maximum_attempts: 3
    unlock_strategy: time
  http_authenticatable:
    enabled: true
    method: basic
    realm: Ops
    users:
      admin: s3cr3t
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), payload, 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	require.Equal(t, 9100, cfg.Server.Port)
	require.True(t, cfg.Warden.Confirmable.Enabled)
	require.Equal(t, 48*time.Hour, cfg.Warden.Confirmable.ConfirmWithin)
	require.Equal(t, 3, cfg.Warden.Lockable.MaximumAttempts)
	require.Equal(t, "time", cfg.Warden.Lockable.UnlockStrategy)
	require.True(t, cfg.Warden.HTTPAuthenticable.Enabled)
	require.Equal(t, "basic", cfg.Warden.HTTPAuthenticable.Method)
	require.Equal(t, map[string]string{"admin": "s3cr3t"}, cfg.Warden.HTTPAuthenticable.Users)

	policy := cfg.Warden.Lockable.LockableConfig()
	require.Equal(t, 3, policy.MaximumAttempts)
	require.Equal(t, lifecycle.UnlockStrategyTime, policy.UnlockStrategy)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("WARDEN_SERVER_PORT", "9200")
	t.Setenv("WARDEN_WARDEN_LOCKABLE_MAXIMUM_ATTEMPTS", "5")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 9200, cfg.Server.Port)
	require.Equal(t, 5, cfg.Warden.Lockable.MaximumAttempts)
}
