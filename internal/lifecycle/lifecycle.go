// Package lifecycle implements the account lifecycle services: confirmation,
// locking, and password recovery. Each service wraps the identity store and
// owns one family of token columns on the user record.
package lifecycle

import (
	"time"

	"github.com/charlesng35/warden/pkg/crypto"
)

// Clock abstracts time.Now so expiry behaviour is testable.
type Clock func() time.Time

// ensureToken reuses the stored token while it is still inside its validity
// window, rotating it once the window has passed. It returns the token to
// hand out and whether the record changed.
func ensureToken(token *string, sentAt *time.Time, window time.Duration, now time.Time) (string, *time.Time, bool, error) {
	if token != nil && sentAt != nil && now.Sub(*sentAt) <= window {
		return *token, sentAt, false, nil
	}

	fresh, err := crypto.GenerateToken()
	if err != nil {
		return "", nil, false, err
	}
	return fresh, &now, true, nil
}
