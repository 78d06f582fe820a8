package auth

import (
	"context"

	"github.com/charlesng35/warden/internal/models"
)

// Hook receives the affected user. Hooks run synchronously in registration
// order; a hook must not mutate driver state.
type Hook func(ctx context.Context, user *models.User)

// Hooks are callbacks the host application injects to observe authentication
// events. The zero value is valid and fires nothing.
type Hooks struct {
	// AfterAuthentication fires once credentials have verified, before the
	// login completes. Trackable fields are not yet updated.
	AfterAuthentication []Hook

	// AfterLogin fires after the login fully completed and persisted.
	AfterLogin []Hook

	// BeforeLogout fires before tokens are revoked, while the user is still
	// signed in.
	BeforeLogout []Hook
}

func fire(ctx context.Context, hooks []Hook, user *models.User) {
	for _, hook := range hooks {
		hook(ctx, user)
	}
}
