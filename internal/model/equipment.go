package model

import "time"

// EquipmentStatus is the operational status of a monitored asset.
type EquipmentStatus string

const (
	EquipmentActive      EquipmentStatus = "activo"
	EquipmentInactive    EquipmentStatus = "inactivo"
	EquipmentMaintenance EquipmentStatus = "mantenimiento"
)

// Valid reports whether s is one of the known statuses.
func (s EquipmentStatus) Valid() bool {
	switch s {
	case EquipmentActive, EquipmentInactive, EquipmentMaintenance:
		return true
	}
	return false
}

// Equipment represents a monitored physical asset.
type Equipment struct {
	ID             int64           `gorm:"primaryKey" json:"id"`
	Code           *string         `gorm:"uniqueIndex;size:16" json:"code,omitempty"`
	Name           string          `gorm:"uniqueIndex;size:100;not null" json:"name"`
	Type           string          `gorm:"size:50;not null" json:"type"`
	Location       string          `gorm:"size:100" json:"location"`
	Description    string          `gorm:"size:500" json:"description,omitempty"`
	InstalledAt    *time.Time      `json:"installed_at,omitempty"`
	Status         EquipmentStatus `gorm:"size:16;not null;default:activo;index" json:"status"`
	OperatingHours *float64        `json:"operating_hours,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`

	// Associations
	Sensors     []Sensor `gorm:"foreignKey:EquipmentID;constraint:OnDelete:CASCADE" json:"sensors,omitempty"`
	Technicians []*User  `gorm:"many2many:equipment_technicians;" json:"-"`
}

// TableName keeps the table name used by the existing schema.
func (Equipment) TableName() string {
	return "equipos"
}
