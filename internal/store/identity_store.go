package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/warden/internal/models"
	apperrors "github.com/charlesng35/warden/pkg/errors"
)

// TokenKind names a bearer-token class stored on the user record.
type TokenKind string

const (
	TokenAuthentication TokenKind = "authentication_token"
	TokenRemember       TokenKind = "remember_token"
	TokenConfirmation   TokenKind = "confirmation_token"
	TokenUnlock         TokenKind = "unlock_token"
	TokenResetPassword  TokenKind = "reset_password_token"
)

// ErrNotFound indicates no user matches the lookup.
var ErrNotFound = errors.New("identity store: user not found")

// Identities is the persistence contract the driver and lifecycle services
// consume. Implementations must guarantee unique constraints on username,
// email, and every token column; the in-code uniqueness pre-check only
// exists to produce a friendlier error message.
type Identities interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByUsernameOrEmail(ctx context.Context, identifier string) (*models.User, error)
	FindByToken(ctx context.Context, kind TokenKind, value string) (*models.User, error)
	Save(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, user *models.User) error
}

// Option customises the IdentityStore.
type Option func(*IdentityStore)

// WithTokenGC registers an opportunistic cleanup callback that runs with
// roughly 1% probability at construction time. The callback must be safe to
// run concurrently with normal reads.
func WithTokenGC(gc func()) Option {
	return func(s *IdentityStore) {
		s.gc = gc
	}
}

// IdentityStore is the GORM-backed Identities implementation.
type IdentityStore struct {
	db *gorm.DB
	gc func()
}

// NewIdentityStore constructs an identity store over the provided database.
func NewIdentityStore(db *gorm.DB, opts ...Option) (*IdentityStore, error) {
	if db == nil {
		return nil, errors.New("identity store: db is required")
	}

	s := &IdentityStore{db: db}
	for _, opt := range opts {
		opt(s)
	}

	if s.gc != nil && rand.Intn(100) == 0 {
		go s.gc()
	}

	return s, nil
}

// FindByID fetches a user with roles and permissions preloaded.
func (s *IdentityStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}

	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Roles.Permissions").
		Take(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("identity store: find by id: %w", err)
	}
	return &user, nil
}

// FindByUsernameOrEmail resolves the identifier against either natural key,
// case-insensitively. The lookup is a UNION of two indexed queries rather
// than an OR so each branch can use its own unique index.
func (s *IdentityStore) FindByUsernameOrEmail(ctx context.Context, identifier string) (*models.User, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" {
		return nil, ErrNotFound
	}

	var id string
	err := s.db.WithContext(ctx).Raw(
		`SELECT id FROM users WHERE username = ?
		 UNION
		 SELECT id FROM users WHERE email = ?
		 LIMIT 1`,
		identifier, identifier,
	).Scan(&id).Error
	if err != nil {
		return nil, fmt.Errorf("identity store: find by username or email: %w", err)
	}
	if id == "" {
		return nil, ErrNotFound
	}

	return s.FindByID(ctx, id)
}

// FindByToken resolves a user by one of its bearer-token columns.
func (s *IdentityStore) FindByToken(ctx context.Context, kind TokenKind, value string) (*models.User, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrNotFound
	}

	switch kind {
	case TokenAuthentication, TokenRemember, TokenConfirmation, TokenUnlock, TokenResetPassword:
	default:
		return nil, fmt.Errorf("identity store: unknown token kind %q", kind)
	}

	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where(fmt.Sprintf("%s = ?", kind), value).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("identity store: find by %s: %w", kind, err)
	}
	if len(ids) == 0 {
		return nil, ErrNotFound
	}

	return s.FindByID(ctx, ids[0])
}

// Save persists the user after normalizing natural keys and running the
// friendly uniqueness pre-check. The database unique constraints stay
// authoritative; a concurrent writer that slips past the pre-check surfaces
// as a constraint error here.
func (s *IdentityStore) Save(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("identity store: user is required")
	}

	user.Normalize()

	if user.Username == "" {
		return apperrors.NewValidation("username", "is required")
	}
	if user.Email == "" {
		return apperrors.NewValidation("email", "is required")
	}
	if user.EncryptedPassword == "" {
		return apperrors.NewValidation("password", "is required")
	}

	if err := s.checkNaturalKeys(ctx, user); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("identity store: save user: %w", err)
	}
	return nil
}

// Delete removes the user and its role associations. Join rows are owned
// exclusively by the user, so they go first.
func (s *IdentityStore) Delete(ctx context.Context, user *models.User) error {
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return errors.New("identity store: user with id is required")
	}

	if err := s.db.WithContext(ctx).Model(user).Association("Roles").Clear(); err != nil {
		return fmt.Errorf("identity store: clear roles: %w", err)
	}

	if err := s.db.WithContext(ctx).Delete(&models.User{}, "id = ?", user.ID).Error; err != nil {
		return fmt.Errorf("identity store: delete user: %w", err)
	}
	return nil
}

func (s *IdentityStore) checkNaturalKeys(ctx context.Context, user *models.User) error {
	var existing models.User
	err := s.db.WithContext(ctx).
		Where("(username = ? OR email = ?) AND id <> ?", user.Username, user.Email, user.ID).
		Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("identity store: uniqueness check: %w", err)
	}

	if existing.Email == user.Email {
		return apperrors.NewValidation("email", "already exists")
	}
	return apperrors.NewValidation("username", "already exists")
}
