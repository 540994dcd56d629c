package model

import "time"

// Roles recognised by the access middleware and recipient lookups.
const (
	RoleAdmin      = "admin"
	RoleSupervisor = "supervisor"
	RoleTechnician = "tecnico"
	RoleUser       = "usuario"
)

// User is a notification and report recipient. Authentication happens elsewhere.
type User struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	Email     string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Role      string    `gorm:"size:32;not null;default:usuario;index" json:"role"`
	Active    bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName keeps the table name used by the existing schema.
func (User) TableName() string {
	return "usuarios"
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleSupervisor, RoleTechnician, RoleUser:
		return true
	}
	return false
}
