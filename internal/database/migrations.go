package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/warden/internal/models"
)

// AutoMigrate applies the schema for all core models.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	return db.AutoMigrate(
		&models.User{},
		&models.Role{},
		&models.Permission{},
	)
}

// SeedData inserts the default roles and their baseline permissions when they
// do not already exist. Idempotent so it can run on every start-up.
func SeedData(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	defaults := []struct {
		role        models.Role
		permissions []models.Permission
	}{
		{
			role: models.Role{Name: "admin", Description: "Full administrative access"},
			permissions: []models.Permission{
				{Resource: "users", Action: "manage", Name: "manage_users", Description: "Administer user accounts"},
				{Resource: "roles", Action: "manage", Name: "manage_roles", Description: "Administer roles and grants"},
			},
		},
		{
			role: models.Role{Name: "user", Description: "Default signed-in role"},
		},
	}

	for _, entry := range defaults {
		var role models.Role
		err := db.Where("name = ?", entry.role.Name).Take(&role).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			role = entry.role
			if err := db.Create(&role).Error; err != nil {
				return fmt.Errorf("seed role %s: %w", entry.role.Name, err)
			}
		case err != nil:
			return fmt.Errorf("lookup role %s: %w", entry.role.Name, err)
		}

		for _, perm := range entry.permissions {
			var existing models.Permission
			err := db.Where("resource = ? AND action = ?", perm.Resource, perm.Action).Take(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				existing = perm
				if err := db.Create(&existing).Error; err != nil {
					return fmt.Errorf("seed permission %s: %w", perm.Name, err)
				}
			case err != nil:
				return fmt.Errorf("lookup permission %s: %w", perm.Name, err)
			}

			if err := db.Model(&role).Association("Permissions").Append(&existing); err != nil {
				return fmt.Errorf("attach permission %s to %s: %w", perm.Name, role.Name, err)
			}
		}
	}

	return nil
}
