package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/charlesng35/warden/internal/lifecycle"
)

// Config represents the runtime configuration for the Warden service.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Warden     WardenConfig     `mapstructure:"warden"`
	Email      EmailConfig      `mapstructure:"email"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// WardenConfig captures all authentication behaviour settings.
type WardenConfig struct {
	RememberFor time.Duration `mapstructure:"remember_for"`

	Confirmable       ConfirmableSettings `mapstructure:"confirmable"`
	Lockable          LockableSettings    `mapstructure:"lockable"`
	Recoverable       RecoverableSettings `mapstructure:"recoverable"`
	HTTPAuthenticable HTTPAuthSettings    `mapstructure:"http_authenticatable"`
}

// ConfirmableSettings controls account confirmation.
type ConfirmableSettings struct {
	Enabled       bool          `mapstructure:"enabled"`
	ConfirmWithin time.Duration `mapstructure:"confirm_within"`
}

// LockableSettings controls account locking.
type LockableSettings struct {
	Enabled         bool          `mapstructure:"enabled"`
	MaximumAttempts int           `mapstructure:"maximum_attempts"`
	LockStrategy    string        `mapstructure:"lock_strategy"`
	UnlockStrategy  string        `mapstructure:"unlock_strategy"`
	UnlockIn        time.Duration `mapstructure:"unlock_in"`
}

// RecoverableSettings controls password recovery.
type RecoverableSettings struct {
	Enabled             bool          `mapstructure:"enabled"`
	ResetPasswordWithin time.Duration `mapstructure:"reset_password_within"`
}

// HTTPAuthSettings configures HTTP Basic/Digest protection with a static
// credential table.
type HTTPAuthSettings struct {
	Enabled bool              `mapstructure:"enabled"`
	Method  string            `mapstructure:"method"`
	Realm   string            `mapstructure:"realm"`
	Users   map[string]string `mapstructure:"users"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	SMTP SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LockableConfig converts the settings into the lifecycle policy.
func (s LockableSettings) LockableConfig() lifecycle.LockableConfig {
	return lifecycle.LockableConfig{
		MaximumAttempts: s.MaximumAttempts,
		LockStrategy:    s.LockStrategy,
		UnlockStrategy:  s.UnlockStrategy,
		UnlockIn:        s.UnlockIn,
	}
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("WARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/warden.sqlite")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)

	v.SetDefault("warden.remember_for", "336h") // 2 weeks
	v.SetDefault("warden.confirmable.enabled", false)
	v.SetDefault("warden.confirmable.confirm_within", "24h")
	v.SetDefault("warden.lockable.enabled", false)
	v.SetDefault("warden.lockable.maximum_attempts", 10)
	v.SetDefault("warden.lockable.lock_strategy", "failed_attempts")
	v.SetDefault("warden.lockable.unlock_strategy", "both")
	v.SetDefault("warden.lockable.unlock_in", "1h")
	v.SetDefault("warden.recoverable.enabled", true)
	v.SetDefault("warden.recoverable.reset_password_within", "24h")
	v.SetDefault("warden.http_authenticatable.enabled", false)
	v.SetDefault("warden.http_authenticatable.method", "digest")
	v.SetDefault("warden.http_authenticatable.realm", "Protected by Warden")

	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "10s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
