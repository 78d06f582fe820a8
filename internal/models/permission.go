package models

// Permission is a fine-grained (action, resource) grant attached to roles.
// Callers may match with the "manage" action wildcard or the "all" resource
// wildcard; those are match targets supplied at check time, not stored rows.
type Permission struct {
	BaseModel

	Resource    string `gorm:"not null;index" json:"resource"`
	Action      string `gorm:"not null;index" json:"action"`
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`

	Roles []Role `gorm:"many2many:role_permissions;" json:"roles,omitempty"`
}
