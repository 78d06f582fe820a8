package lifecycle

import (
	"github.com/charlesng35/warden/internal/models"
	"github.com/charlesng35/warden/pkg/crypto"
	apperrors "github.com/charlesng35/warden/pkg/errors"
)

// Password length bounds. The upper bound exists because bcrypt truncates
// long inputs, so accepting more would be misleading.
const (
	PasswordMinLength = 6
	PasswordMaxLength = 128
)

// ValidatePassword checks the plaintext password against the length rules.
func ValidatePassword(password string) error {
	if password == "" {
		return apperrors.ErrPasswordRequired
	}
	if len(password) < PasswordMinLength {
		return apperrors.NewValidation("password", "is too short (minimum is 6 characters)")
	}
	if len(password) > PasswordMaxLength {
		return apperrors.NewValidation("password", "is too long (maximum is 128 characters)")
	}
	return nil
}

// SetPassword validates and hashes the plaintext onto the user record. The
// caller is responsible for persisting the change.
func SetPassword(user *models.User, password string) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return err
	}
	user.EncryptedPassword = hash
	return nil
}
