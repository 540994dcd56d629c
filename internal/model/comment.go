package model

import (
	"fmt"
	"time"
)

// OwnerKind names the entity a comment is attached to.
type OwnerKind string

const (
	OwnerEquipment OwnerKind = "equipo"
	OwnerSensor    OwnerKind = "sensor"
	OwnerAlert     OwnerKind = "alerta"
)

// ParseOwnerKind validates a raw owner kind.
func ParseOwnerKind(raw string) (OwnerKind, error) {
	switch k := OwnerKind(raw); k {
	case OwnerEquipment, OwnerSensor, OwnerAlert:
		return k, nil
	}
	return "", fmt.Errorf("unknown comment owner kind %q", raw)
}

// Comment is a note attached to equipment, a sensor or an alert.
type Comment struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	OwnerKind OwnerKind `gorm:"size:16;not null;index:idx_comentarios_owner,priority:1" json:"owner_kind"`
	OwnerID   int64     `gorm:"not null;index:idx_comentarios_owner,priority:2" json:"owner_id"`
	Author    string    `gorm:"size:128" json:"author,omitempty"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// TableName keeps the table name used by the existing schema.
func (Comment) TableName() string {
	return "comentarios"
}
