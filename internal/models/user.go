package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the identity, credential, and lifecycle record at the heart of the
// module. Which lifecycle columns are actually exercised depends on the
// feature toggles in configuration; the schema always carries them.
type User struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`

	// EncryptedPassword is never empty for a persisted, enabled account.
	EncryptedPassword string `gorm:"not null" json:"-"`

	// AuthenticationToken is rotated on every successful login and cleared
	// on logout. RememberToken lives independently and only exists when the
	// user asked to be remembered.
	AuthenticationToken *string `gorm:"uniqueIndex" json:"-"`
	RememberToken       *string `gorm:"uniqueIndex" json:"-"`

	// Trackable
	SignInCount     int        `gorm:"default:0" json:"sign_in_count"`
	CurrentSignInAt *time.Time `json:"current_sign_in_at"`
	CurrentSignInIP string     `json:"current_sign_in_ip"`
	LastSignInAt    *time.Time `json:"last_sign_in_at"`
	LastSignInIP    string     `json:"last_sign_in_ip"`

	// Confirmable
	IsConfirmed        bool       `gorm:"default:false" json:"is_confirmed"`
	ConfirmationToken  *string    `gorm:"uniqueIndex" json:"-"`
	ConfirmationSentAt *time.Time `json:"-"`

	// Lockable
	FailedAttempts int        `gorm:"default:0" json:"-"`
	UnlockToken    *string    `gorm:"uniqueIndex" json:"-"`
	LockedAt       *time.Time `json:"-"`

	// Recoverable
	ResetPasswordToken  *string    `gorm:"uniqueIndex" json:"-"`
	ResetPasswordSentAt *time.Time `json:"-"`

	Roles []Role `gorm:"many2many:user_roles;" json:"roles,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// BeforeSave normalizes the natural keys so uniqueness and lookups are
// case-insensitive.
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Normalize()
	return nil
}

// Normalize trims and downcases username and email.
func (u *User) Normalize() {
	u.Username = strings.ToLower(strings.TrimSpace(u.Username))
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
}

// HasRole reports whether the user holds the named role, compared
// case-insensitively.
func (u *User) HasRole(name string) bool {
	for _, role := range u.Roles {
		if strings.EqualFold(role.Name, name) {
			return true
		}
	}
	return false
}
