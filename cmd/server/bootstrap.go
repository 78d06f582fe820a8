package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/warden/internal/app"
	"github.com/charlesng35/warden/internal/app/maintenance"
	iauth "github.com/charlesng35/warden/internal/auth"
	"github.com/charlesng35/warden/internal/database"
	"github.com/charlesng35/warden/internal/handlers"
	"github.com/charlesng35/warden/internal/lifecycle"
	"github.com/charlesng35/warden/internal/middleware"
	"github.com/charlesng35/warden/internal/store"
	"github.com/charlesng35/warden/pkg/mail"
)

// runtimeStack bundles the long-lived services behind the HTTP server.
type runtimeStack struct {
	DB          *gorm.DB
	Identities  *store.IdentityStore
	Mailer      mail.Mailer
	Confirmable *lifecycle.Confirmable
	Recoverable *lifecycle.Recoverable
	Lockable    *lifecycle.Lockable
	Cleaner     *maintenance.Cleaner
	Router      *gin.Engine
}

// bootstrapRuntime initialises the database, lifecycle services, background
// maintenance, and the HTTP router.
func bootstrapRuntime(cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Email.SMTP.Enabled {
		stack.Mailer, err = mail.NewSMTPMailer(mail.SMTPSettings{
			Enabled:  true,
			Host:     cfg.Email.SMTP.Host,
			Port:     cfg.Email.SMTP.Port,
			Username: cfg.Email.SMTP.Username,
			Password: cfg.Email.SMTP.Password,
			From:     cfg.Email.SMTP.From,
			UseTLS:   cfg.Email.SMTP.UseTLS,
			Timeout:  cfg.Email.SMTP.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("initialise mailer: %w", err)
		}
	}

	windows := maintenance.TokenWindows{}
	if cfg.Warden.Confirmable.Enabled {
		windows.ConfirmWithin = cfg.Warden.Confirmable.ConfirmWithin
	}
	if cfg.Warden.Recoverable.Enabled {
		windows.ResetPasswordWithin = cfg.Warden.Recoverable.ResetPasswordWithin
	}
	if cfg.Warden.Lockable.Enabled {
		windows.UnlockIn = cfg.Warden.Lockable.UnlockIn
	}

	stack.Identities, err = store.NewIdentityStore(stack.DB, store.WithTokenGC(func() {
		if _, err := maintenance.CleanupTokens(context.Background(), stack.DB, time.Now(), windows); err != nil {
			log.Warn("opportunistic token cleanup failed", zap.Error(err))
		}
	}))
	if err != nil {
		return nil, fmt.Errorf("initialise identity store: %w", err)
	}

	if cfg.Warden.Confirmable.Enabled {
		opts := []lifecycle.ConfirmableOption{
			lifecycle.WithConfirmWithin(cfg.Warden.Confirmable.ConfirmWithin),
		}
		if stack.Mailer != nil {
			opts = append(opts, lifecycle.WithConfirmableMailer(stack.Mailer))
		}
		stack.Confirmable, err = lifecycle.NewConfirmable(stack.Identities, opts...)
		if err != nil {
			return nil, fmt.Errorf("initialise confirmable: %w", err)
		}
	}

	if cfg.Warden.Recoverable.Enabled {
		opts := []lifecycle.RecoverableOption{
			lifecycle.WithResetPasswordWithin(cfg.Warden.Recoverable.ResetPasswordWithin),
		}
		if stack.Mailer != nil {
			opts = append(opts, lifecycle.WithRecoverableMailer(stack.Mailer))
		}
		stack.Recoverable, err = lifecycle.NewRecoverable(stack.Identities, opts...)
		if err != nil {
			return nil, fmt.Errorf("initialise recoverable: %w", err)
		}
	}

	if cfg.Warden.Lockable.Enabled {
		opts := []lifecycle.LockableOption{}
		if stack.Mailer != nil {
			opts = append(opts, lifecycle.WithLockableMailer(stack.Mailer))
		}
		stack.Lockable, err = lifecycle.NewLockable(stack.Identities, cfg.Warden.Lockable.LockableConfig(), opts...)
		if err != nil {
			return nil, fmt.Errorf("initialise lockable: %w", err)
		}
	}

	stack.Cleaner = maintenance.NewCleaner(stack.DB, windows)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = buildRouter(cfg, stack)
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}

	success = true
	return stack, nil
}

// buildRouter assembles the HTTP surface: session routes, health, metrics,
// and the optional HTTP-auth protected operations group.
func buildRouter(cfg *app.Config, stack *runtimeStack) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Recovery())

	registry := iauth.NewSessionRegistry()
	factory := func(c *gin.Context) (*iauth.Driver, error) {
		opts := []iauth.Option{
			iauth.WithCookieJar(iauth.NewGinCookieJar(c)),
			iauth.WithRememberFor(cfg.Warden.RememberFor),
			iauth.WithConfirmationRequired(cfg.Warden.Confirmable.Enabled),
			iauth.WithRemoteIP(c.ClientIP()),
		}
		if stack.Lockable != nil {
			opts = append(opts, iauth.WithLockable(stack.Lockable))
		}
		return iauth.New(stack.Identities, registry.ForRequest(c), opts...)
	}
	r.Use(middleware.Warden(factory))

	sessions, err := handlers.NewSessionsHandler(stack.Identities, stack.Confirmable, stack.Recoverable, stack.Lockable)
	if err != nil {
		return nil, err
	}
	sessions.Register(r.Group("/auth"))

	if cfg.Monitoring.Health.Enabled {
		r.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}

	ops := r.Group("/")
	if cfg.Warden.HTTPAuthenticable.Enabled {
		authn, err := iauth.NewHTTPAuthenticator(iauth.HTTPAuthConfig{
			Method: cfg.Warden.HTTPAuthenticable.Method,
			Realm:  cfg.Warden.HTTPAuthenticable.Realm,
			Users:  cfg.Warden.HTTPAuthenticable.Users,
		})
		if err != nil {
			return nil, err
		}
		ops.Use(authn.Middleware())
	}
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		ops.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	return r, nil
}

// Shutdown stops background jobs and closes the database.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if err := s.Cleaner.RunOnce(stopCtx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}
	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := database.Config{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		DSN:    cfg.Database.DSN,
	}

	switch cfg.Database.Driver {
	case "postgres":
		dbCfg.Host = cfg.Database.Postgres.Host
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = cfg.Database.Postgres.Database
		dbCfg.User = cfg.Database.Postgres.Username
		dbCfg.Password = cfg.Database.Postgres.Password
	case "mysql":
		dbCfg.Host = cfg.Database.MySQL.Host
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = cfg.Database.MySQL.Database
		dbCfg.User = cfg.Database.MySQL.Username
		dbCfg.Password = cfg.Database.MySQL.Password
	}

	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to access underlying database handle", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
